package dateadded_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macropower/shelf/pkg/dateadded"
	"github.com/macropower/shelf/pkg/execs"
	"github.com/macropower/shelf/pkg/filter"
)

type fakeReader struct {
	added    time.Time
	ok       bool
	calls    atomic.Int32
	deadline atomic.Bool
}

func (f *fakeReader) ReadAddedDate(ctx context.Context, _ string) (time.Time, bool) {
	f.calls.Add(1)

	if _, ok := ctx.Deadline(); ok {
		f.deadline.Store(true)
	}

	return f.added, f.ok
}

func writeFile(t *testing.T, modTime time.Time) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "file.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
	require.NoError(t, os.Chtimes(path, modTime, modTime))

	return path
}

func TestResolver_Resolve(t *testing.T) {
	t.Parallel()

	modTime := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	nativeTime := time.Date(2023, 1, 2, 3, 4, 5, 0, time.UTC)

	tcs := map[string]struct {
		reader *fakeReader
		want   time.Time
	}{
		"native unavailable falls back to modification time": {
			reader: &fakeReader{ok: false},
			want:   modTime,
		},
		"native available is used": {
			reader: &fakeReader{ok: true, added: nativeTime},
			want:   nativeTime,
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			path := writeFile(t, modTime)
			r := dateadded.NewResolver(dateadded.WithNativeReader(tc.reader))

			got, err := r.Resolve(t.Context(), path, time.UTC)
			require.NoError(t, err)
			assert.True(t, tc.want.Equal(got), "want %s, got %s", tc.want, got)
			assert.Equal(t, int32(1), tc.reader.calls.Load())
			assert.True(t, tc.reader.deadline.Load(), "native query should be bounded")
		})
	}
}

func TestResolver_Resolve_ModTimeFallback(t *testing.T) {
	t.Parallel()

	modTime := time.Now().Add(-72 * time.Hour).Truncate(time.Second)
	path := writeFile(t, modTime)

	info, err := os.Stat(path)
	require.NoError(t, err)

	got, err := dateadded.NewModTimeResolver().Resolve(t.Context(), path, time.UTC)
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(got))
}

func TestResolver_Resolve_Directory(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	modTime := time.Date(2022, 8, 8, 8, 8, 8, 0, time.UTC)
	require.NoError(t, os.Chtimes(dir, modTime, modTime))

	got, err := dateadded.NewModTimeResolver().Resolve(t.Context(), dir, time.UTC)
	require.NoError(t, err)
	assert.True(t, modTime.Equal(got))
}

func TestResolver_Resolve_Localized(t *testing.T) {
	t.Parallel()

	modTime := time.Date(2024, 5, 1, 22, 30, 0, 0, time.UTC)
	path := writeFile(t, modTime)

	loc := time.FixedZone("UTC+3", 3*60*60)

	got, err := dateadded.NewModTimeResolver().Resolve(t.Context(), path, loc)
	require.NoError(t, err)
	assert.Equal(t, loc, got.Location())
	assert.Equal(t, 2, got.Day())
	assert.Equal(t, 1, got.Hour())
}

func TestResolver_Resolve_PathNotFound(t *testing.T) {
	t.Parallel()

	path := writeFile(t, time.Now())
	require.NoError(t, os.Remove(path))

	reader := &fakeReader{ok: true, added: time.Now()}
	r := dateadded.NewResolver(dateadded.WithNativeReader(reader))

	_, err := r.Resolve(t.Context(), path, time.UTC)
	require.ErrorIs(t, err, filter.ErrPathNotFound)
	require.ErrorIs(t, err, os.ErrNotExist)
	assert.Equal(t, int32(0), reader.calls.Load())
}

func TestMdlsReader_ReadAddedDate(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		err    error
		want   time.Time
		output string
		wantOK bool
	}{
		"valid output": {
			output: "2024-02-29 09:15:00 +0000\n",
			want:   time.Date(2024, 2, 29, 9, 15, 0, 0, time.UTC),
			wantOK: true,
		},
		"offset output": {
			output: "2024-02-29 09:15:00 +0200",
			want:   time.Date(2024, 2, 29, 7, 15, 0, 0, time.UTC),
			wantOK: true,
		},
		"null attribute": {
			output: "(null)",
		},
		"empty output": {
			output: "",
		},
		"garbage output": {
			output: "kMDItemDateAdded = 2024",
		},
		"command failure": {
			err: execs.ErrCommandExecution,
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			var gotCmd execs.Command

			reader := dateadded.NewMdlsReader(dateadded.WithRunner(
				func(_ context.Context, cmd execs.Command) ([]byte, error) {
					gotCmd = cmd
					if tc.err != nil {
						return nil, tc.err
					}

					return []byte(tc.output), nil
				},
			))

			got, ok := reader.ReadAddedDate(t.Context(), "/tmp/some file.pdf")
			assert.Equal(t, tc.wantOK, ok)
			assert.Equal(t, "mdls", gotCmd.Command)
			assert.Equal(t, []string{"-name", "kMDItemDateAdded", "-raw", "/tmp/some file.pdf"}, gotCmd.Args)

			if tc.wantOK {
				assert.True(t, tc.want.Equal(got), "want %s, got %s", tc.want, got)
			}
		})
	}
}

func TestMdlsReader_WithCommand(t *testing.T) {
	t.Parallel()

	cmd, err := execs.ParseCommand(nil, `stat -f "%SB" -t "%Y-%m-%d %H:%M:%S %z"`)
	require.NoError(t, err)

	var gotArgs []string

	reader := dateadded.NewMdlsReader(
		dateadded.WithCommand(cmd),
		dateadded.WithRunner(func(_ context.Context, c execs.Command) ([]byte, error) {
			gotArgs = c.Args

			return nil, errors.New("boom")
		}),
	)

	_, ok := reader.ReadAddedDate(t.Context(), "/x")
	assert.False(t, ok)
	assert.Equal(t, []string{"-f", "%SB", "-t", "%Y-%m-%d %H:%M:%S %z", "/x"}, gotArgs)
}

func TestResolver_FallbackWhenNativeCommandFails(t *testing.T) {
	t.Parallel()

	modTime := time.Date(2021, 3, 3, 3, 3, 3, 0, time.UTC)
	path := writeFile(t, modTime)

	reader := dateadded.NewMdlsReader(dateadded.WithRunner(
		func(context.Context, execs.Command) ([]byte, error) {
			return nil, execs.ErrCommandExecution
		},
	))

	got, err := dateadded.NewResolver(dateadded.WithNativeReader(reader)).Resolve(t.Context(), path, time.UTC)
	require.NoError(t, err)
	assert.True(t, modTime.Equal(got))
}
