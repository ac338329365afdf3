package dateadded

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/macropower/shelf/pkg/filter"
	"github.com/macropower/shelf/pkg/log"
)

// DefaultTimeout bounds a single native metadata query.
const DefaultTimeout = 5 * time.Second

// NativeReader reads a platform-native "date added" attribute.
type NativeReader interface {
	// ReadAddedDate returns the attribute for path, or false if it is
	// unavailable for any reason.
	ReadAddedDate(ctx context.Context, path string) (time.Time, bool)
}

// NopReader is a [NativeReader] for platforms without a native attribute.
type NopReader struct{}

// ReadAddedDate always reports the attribute as unavailable.
func (NopReader) ReadAddedDate(context.Context, string) (time.Time, bool) {
	return time.Time{}, false
}

// Resolver resolves the instant a path was added to the filesystem.
// It holds no mutable state and is safe for concurrent use.
type Resolver struct {
	native  NativeReader
	timeout time.Duration
}

// ResolverOpt configures a [Resolver].
type ResolverOpt func(*Resolver)

// WithNativeReader sets the [NativeReader] used before falling back to the
// modification time.
func WithNativeReader(nr NativeReader) ResolverOpt {
	return func(r *Resolver) {
		r.native = nr
	}
}

// WithTimeout bounds each native query. Zero disables the bound.
func WithTimeout(d time.Duration) ResolverOpt {
	return func(r *Resolver) {
		r.timeout = d
	}
}

// NewResolver creates a new [Resolver] using [DefaultReader].
func NewResolver(opts ...ResolverOpt) *Resolver {
	r := &Resolver{
		native:  DefaultReader(),
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.native == nil {
		r.native = NopReader{}
	}

	return r
}

// NewModTimeResolver creates a [Resolver] that only uses modification times.
func NewModTimeResolver() *Resolver {
	return NewResolver(WithNativeReader(NopReader{}))
}

// Resolve returns the instant path was added, localized to loc.
//
// It fails with [filter.ErrPathNotFound] if path does not exist.
func (r *Resolver) Resolve(ctx context.Context, path string, loc *time.Location) (time.Time, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return time.Time{}, fmt.Errorf("%w: %w", filter.ErrPathNotFound, err)
		}

		return time.Time{}, fmt.Errorf("stat: %w", err)
	}

	instant := info.ModTime()

	added, ok := r.readNative(ctx, path)
	if ok {
		instant = added
	}

	if loc == nil {
		loc = time.Local
	}

	return instant.In(loc), nil
}

func (r *Resolver) readNative(ctx context.Context, path string) (time.Time, bool) {
	if r.timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	added, ok := r.native.ReadAddedDate(ctx, path)
	if !ok {
		log.WithContext(ctx).DebugContext(ctx, "native date added unavailable, using modification time",
			slog.String("path", path),
		)
	}

	return added, ok
}
