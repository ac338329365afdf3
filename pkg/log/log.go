package log

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/muesli/termenv"
	"go.opentelemetry.io/otel/trace"

	charmlog "github.com/charmbracelet/log"
)

type (
	Format string
	Level  string

	contextKey struct{}
)

const (
	FormatJSON   Format = "json"
	FormatLogfmt Format = "logfmt"
	FormatText   Format = "text"

	LevelError Level = "error"
	LevelWarn  Level = "warn"
	LevelInfo  Level = "info"
	LevelDebug Level = "debug"
)

var (
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrUnknownLogLevel  = errors.New("unknown log level")
	ErrUnknownLogFormat = errors.New("unknown log format")

	AllFormats = []string{
		string(FormatJSON),
		string(FormatLogfmt),
		string(FormatText),
	}
	AllLevels = []string{
		string(LevelError),
		string(LevelWarn),
		string(LevelInfo),
		string(LevelDebug),
	}

	levels = map[Level]slog.Level{
		LevelError: slog.LevelError,
		LevelWarn:  slog.LevelWarn,
		"warning":  slog.LevelWarn,
		LevelInfo:  slog.LevelInfo,
		LevelDebug: slog.LevelDebug,
	}

	// Attribute keys holding filesystem paths.
	pathKeys = []string{"path", "location", "dir"}
)

// CreateHandlerWithStrings creates a [slog.Handler] by strings.
func CreateHandlerWithStrings(w io.Writer, logLevel, logFormat string) (slog.Handler, error) {
	logLvl, err := GetLevel(logLevel)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}

	logFmt, err := GetFormat(logFormat)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}

	return CreateHandler(w, logLvl, logFmt), nil
}

// CreateHandler creates a [slog.Handler] writing to w. Unknown formats fall
// back to [FormatText].
//
// Paths under the user's home directory are logged relative to "~" by the
// text handler. Machine-readable formats keep absolute paths.
func CreateHandler(w io.Writer, logLvl slog.Level, logFmt Format) slog.Handler {
	opts := &slog.HandlerOptions{
		AddSource: true,
		Level:     logLvl,
	}

	switch logFmt {
	case FormatJSON:
		return slog.NewJSONHandler(w, opts)
	case FormatLogfmt:
		return slog.NewTextHandler(w, opts)
	default:
		return &homeHandler{
			Handler: newCharmLogHandler(w, logLvl),
			home:    userHome(),
		}
	}
}

func GetLevel(level string) (slog.Level, error) {
	lvl, ok := levels[Level(strings.ToLower(level))]
	if !ok {
		return 0, fmt.Errorf("%w %q", ErrUnknownLogLevel, level)
	}

	return lvl, nil
}

func GetFormat(format string) (Format, error) {
	switch logFmt := Format(strings.ToLower(format)); logFmt {
	case FormatJSON, FormatLogfmt, FormatText:
		return logFmt, nil
	}

	return "", fmt.Errorf("%w %q", ErrUnknownLogFormat, format)
}

func newCharmLogHandler(w io.Writer, level slog.Level) slog.Handler {
	//nolint:gosec // G115: input from GetLevel.
	lvl := int32(level)

	logger := charmlog.NewWithOptions(w, charmlog.Options{
		Level:           charmlog.Level(lvl),
		Formatter:       charmlog.TextFormatter,
		ReportTimestamp: true,
		ReportCaller:    true,
		TimeFormat:      time.StampMilli,
	})
	// Detect colors for w, which is not necessarily stdout.
	logger.SetColorProfile(termenv.NewOutput(w).EnvColorProfile())

	return logger
}

// homeHandler abbreviates home directory paths in path attributes.
type homeHandler struct {
	slog.Handler

	home string
}

func (h *homeHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.home == "" {
		return h.Handler.Handle(ctx, r) //nolint:wrapcheck // Pass through.
	}

	nr := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	r.Attrs(func(a slog.Attr) bool {
		nr.AddAttrs(h.abbreviate(a))

		return true
	})

	return h.Handler.Handle(ctx, nr) //nolint:wrapcheck // Pass through.
}

func (h *homeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	abbreviated := make([]slog.Attr, 0, len(attrs))
	for _, a := range attrs {
		abbreviated = append(abbreviated, h.abbreviate(a))
	}

	return &homeHandler{Handler: h.Handler.WithAttrs(abbreviated), home: h.home}
}

func (h *homeHandler) WithGroup(name string) slog.Handler {
	return &homeHandler{Handler: h.Handler.WithGroup(name), home: h.home}
}

func (h *homeHandler) abbreviate(a slog.Attr) slog.Attr {
	if a.Value.Kind() != slog.KindString || !slices.Contains(pathKeys, a.Key) {
		return a
	}

	return slog.String(a.Key, AbbreviateHome(a.Value.String(), h.home))
}

// AbbreviateHome replaces the home directory prefix of p with "~".
func AbbreviateHome(p, home string) string {
	if home == "" {
		return p
	}

	if p == home {
		return "~"
	}

	rel, ok := strings.CutPrefix(p, home+string(filepath.Separator))
	if !ok {
		return p
	}

	return filepath.Join("~", rel)
}

func userHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return home
}

// NewContext returns a copy of ctx carrying logger, which is then returned
// by [WithContext].
func NewContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, logger)
}

// WithContext returns the logger stored by [NewContext]. Otherwise, it
// returns the default logger, with the trace ID of the current span if any.
func WithContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(contextKey{}).(*slog.Logger); ok {
		return logger
	}

	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return slog.Default()
	}

	// The first 8 characters are enough to correlate spans.
	traceID := sc.TraceID().String()

	return slog.With(slog.String("trace_id", traceID[:8]))
}
