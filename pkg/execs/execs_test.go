package execs_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macropower/shelf/pkg/execs"
)

func TestParseCommand(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		err      error
		line     string
		wantCmd  string
		wantArgs []string
		wantErr  bool
	}{
		"simple": {
			line:     "mdls -name kMDItemDateAdded -raw",
			wantCmd:  "mdls",
			wantArgs: []string{"-name", "kMDItemDateAdded", "-raw"},
		},
		"quoted argument": {
			line:     `stat -f "%B"`,
			wantCmd:  "stat",
			wantArgs: []string{"-f", "%B"},
		},
		"no arguments": {
			line:     "date",
			wantCmd:  "date",
			wantArgs: []string{},
		},
		"empty": {
			line: "   ",
			err:  execs.ErrEmptyCommand,
		},
		"unterminated quote": {
			line:    `mdls "oops`,
			wantErr: true,
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			cmd, err := execs.ParseCommand(nil, tc.line)
			if tc.err != nil {
				require.ErrorIs(t, err, tc.err)

				return
			}
			if tc.wantErr {
				require.Error(t, err)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.wantCmd, cmd.Command)
			assert.Equal(t, tc.wantArgs, cmd.Args)
		})
	}
}

func TestCommand_GetEnv(t *testing.T) {
	t.Parallel()

	cmd := execs.NewCommand([]string{
		"PATH=/usr/bin",
		"HOME=/home/test",
		"SECRET_TOKEN=abc",
		"MALFORMED",
	}, "true")
	cmd.Env = []execs.EnvVar{
		{Name: "LANG", Value: "C"},
		{Name: "HOME", Value: "/override"},
		{Name: "", Value: "ignored"},
	}

	assert.Equal(t, []string{
		"HOME=/override",
		"LANG=C",
		"PATH=/usr/bin",
	}, cmd.GetEnv())
}

func TestCommand_WithArgs(t *testing.T) {
	t.Parallel()

	base := execs.NewCommand(nil, "mdls", "-raw")
	withPath := base.WithArgs("/tmp/file")

	assert.Equal(t, []string{"-raw"}, base.Args)
	assert.Equal(t, []string{"-raw", "/tmp/file"}, withPath.Args)
	assert.Equal(t, "mdls -raw /tmp/file", withPath.String())
}

func TestExecutor_Exec(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		err        error
		cmd        execs.Command
		wantStdout string
	}{
		"success": {
			cmd:        execs.NewCommand([]string{"PATH=/usr/bin:/bin"}, "sh", "-c", "echo hello"),
			wantStdout: "hello\n",
		},
		"failure": {
			cmd: execs.NewCommand([]string{"PATH=/usr/bin:/bin"}, "sh", "-c", "exit 3"),
			err: execs.ErrCommandExecution,
		},
		"empty command": {
			cmd: execs.Command{},
			err: execs.ErrEmptyCommand,
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			res, err := execs.NewExecutor(tc.cmd).Exec(t.Context(), t.TempDir())
			if tc.err != nil {
				require.ErrorIs(t, err, tc.err)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.wantStdout, res.Stdout)
		})
	}
}

func TestExecutor_ExecTimeout(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()

	cmd := execs.NewCommand([]string{"PATH=/usr/bin:/bin"}, "sh", "-c", "sleep 5")

	start := time.Now()
	_, err := execs.NewExecutor(cmd).Exec(ctx, t.TempDir())

	require.ErrorIs(t, err, execs.ErrCommandExecution)
	assert.Less(t, time.Since(start), 4*time.Second)
}
