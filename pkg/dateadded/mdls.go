package dateadded

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/macropower/shelf/pkg/execs"
	"github.com/macropower/shelf/pkg/log"
)

// MdlsLayout is the time layout printed by `mdls -raw` for date attributes.
const MdlsLayout = "2006-01-02 15:04:05 -0700"

// DefaultMdlsCommand is the query run by [MdlsReader]. The path is appended.
var DefaultMdlsCommand = []string{"mdls", "-name", "kMDItemDateAdded", "-raw"}

// Runner runs an external command and returns its standard output.
type Runner func(ctx context.Context, cmd execs.Command) ([]byte, error)

// ExecRunner is the default [Runner], backed by [execs.Executor].
func ExecRunner(ctx context.Context, cmd execs.Command) ([]byte, error) {
	res, err := execs.NewExecutor(cmd).Exec(ctx, "")
	if err != nil {
		return nil, err //nolint:wrapcheck // Return the original error.
	}

	return []byte(res.Stdout), nil
}

// MdlsReader is a [NativeReader] that queries the Spotlight metadata store.
type MdlsReader struct {
	run Runner
	cmd execs.Command
}

// MdlsOpt configures an [MdlsReader].
type MdlsOpt func(*MdlsReader)

// WithRunner replaces the [Runner] used to invoke the query.
func WithRunner(run Runner) MdlsOpt {
	return func(m *MdlsReader) {
		m.run = run
	}
}

// WithCommand replaces the query command. The path is appended to its args.
func WithCommand(cmd execs.Command) MdlsOpt {
	return func(m *MdlsReader) {
		m.cmd = cmd
	}
}

// NewMdlsReader creates a new [MdlsReader].
func NewMdlsReader(opts ...MdlsOpt) *MdlsReader {
	m := &MdlsReader{
		run: ExecRunner,
		cmd: execs.NewCommand(os.Environ(), DefaultMdlsCommand[0], DefaultMdlsCommand[1:]...),
	}
	for _, opt := range opts {
		opt(m)
	}

	return m
}

// ReadAddedDate implements [NativeReader].
func (m *MdlsReader) ReadAddedDate(ctx context.Context, path string) (time.Time, bool) {
	logger := log.WithContext(ctx).With(slog.String("path", path))

	out, err := m.run(ctx, m.cmd.WithArgs(path))
	if err != nil {
		logger.DebugContext(ctx, "metadata query failed", slog.Any("error", err))

		return time.Time{}, false
	}

	raw := strings.TrimSpace(string(out))
	if raw == "" || raw == "(null)" {
		return time.Time{}, false
	}

	added, err := time.Parse(MdlsLayout, raw)
	if err != nil {
		logger.DebugContext(ctx, "unexpected metadata query output",
			slog.String("output", raw),
			slog.Any("error", err),
		)

		return time.Time{}, false
	}

	return added, true
}
