package log_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macropower/shelf/pkg/log"
)

func TestCreateHandlerWithStrings(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		level   string
		format  string
		want    string
		wantErr error
	}{
		"json": {
			level:  "info",
			format: "json",
			want:   `"msg":"hello"`,
		},
		"logfmt": {
			level:  "INFO",
			format: "logfmt",
			want:   "msg=hello",
		},
		"text": {
			level:  "warning",
			format: "text",
			want:   "",
		},
		"unknown level": {
			level:   "loud",
			format:  "json",
			wantErr: log.ErrUnknownLogLevel,
		},
		"unknown format": {
			level:   "info",
			format:  "xml",
			wantErr: log.ErrUnknownLogFormat,
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer

			h, err := log.CreateHandlerWithStrings(&buf, tc.level, tc.format)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				require.ErrorIs(t, err, log.ErrInvalidArgument)

				return
			}

			require.NoError(t, err)

			slog.New(h).Info("hello")

			if tc.want == "" {
				// Info is below the warn level.
				assert.Empty(t, buf.String())
			} else {
				assert.Contains(t, buf.String(), tc.want)
			}
		})
	}
}

func TestNewContext(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	logger := slog.New(log.CreateHandler(&buf, slog.LevelDebug, log.FormatJSON)).
		With(slog.String("run_id", "abc"))

	ctx := log.NewContext(context.Background(), logger)
	assert.Same(t, logger, log.WithContext(ctx))

	log.WithContext(ctx).DebugContext(ctx, "evaluated")
	assert.Contains(t, buf.String(), `"run_id":"abc"`)

	assert.Same(t, slog.Default(), log.WithContext(context.Background()))
}

func TestAbbreviateHome(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		path string
		home string
		want string
	}{
		"home": {
			path: "/home/me",
			home: "/home/me",
			want: "~",
		},
		"under home": {
			path: "/home/me/Downloads/report.pdf",
			home: "/home/me",
			want: "~/Downloads/report.pdf",
		},
		"sibling prefix": {
			path: "/home/meme/report.pdf",
			home: "/home/me",
			want: "/home/meme/report.pdf",
		},
		"no home": {
			path: "/tmp/report.pdf",
			want: "/tmp/report.pdf",
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tc.want, log.AbbreviateHome(tc.path, tc.home))
		})
	}
}
