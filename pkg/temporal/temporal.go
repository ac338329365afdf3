package temporal

import (
	"context"
	"fmt"
	"time"

	"github.com/macropower/shelf/pkg/dateadded"
	"github.com/macropower/shelf/pkg/duration"
	"github.com/macropower/shelf/pkg/filter"
)

// InstantResolver resolves the instant a [Filter] compares against.
type InstantResolver interface {
	Resolve(ctx context.Context, path string, loc *time.Location) (time.Time, error)
}

// Kind describes one member of the temporal filter family.
type Kind struct {
	// Name is the registered filter name and the key of its context.
	Name string
	// Label is used in descriptions.
	Label string
	// Verb describes what happened at the instant.
	Verb string
}

var (
	// DateAdded compares the instant an entry was added to the filesystem.
	DateAdded = Kind{Name: "dateadded", Label: "DateAdded", Verb: "added to the filesystem"}

	// LastModified compares the instant an entry was last modified.
	LastModified = Kind{Name: "lastmodified", Label: "LastModified", Verb: "last modified"}
)

// Filter matches entries whose instant lies on one side of a window ending
// now. It is immutable after construction and safe for concurrent use.
type Filter struct {
	resolver  InstantResolver
	now       func() time.Time
	loc       *time.Location
	kind      Kind
	duration  duration.Duration
	direction Direction
}

// Opt configures a [Filter].
type Opt func(*Filter)

// WithClock sets the function used to get the current time.
func WithClock(now func() time.Time) Opt {
	return func(f *Filter) {
		f.now = now
	}
}

// New creates a new [Filter] of the given kind.
//
// It fails with [filter.ErrInvalidConfiguration] if the mode or timezone
// cannot be parsed. The timezone defaults to the local timezone at the time
// of construction.
func New(kind Kind, res InstantResolver, opts Options, fopts ...Opt) (*Filter, error) {
	mode := opts.Mode
	if mode == "" {
		mode = Older.String()
	}

	direction, err := ParseDirection(mode)
	if err != nil {
		return nil, err
	}

	loc, err := ParseLocation(opts.Timezone)
	if err != nil {
		return nil, err
	}

	f := &Filter{
		kind:      kind,
		resolver:  res,
		duration:  opts.Duration(),
		direction: direction,
		loc:       loc,
		now:       time.Now,
	}
	for _, opt := range fopts {
		opt(f)
	}

	return f, nil
}

// Factory returns a [filter.Factory] creating filters of the given kind.
func Factory(kind Kind, res InstantResolver, fopts ...Opt) filter.Factory {
	return func(b []byte) (filter.Filter, error) {
		opts, err := DecodeOptions(b)
		if err != nil {
			return nil, err
		}

		return New(kind, res, opts, fopts...)
	}
}

// Register adds the `dateadded` and `lastmodified` filters to reg.
// The `dateadded` filter uses added, or a default [dateadded.Resolver] if
// added is nil.
func Register(reg *filter.Registry, added InstantResolver, fopts ...Opt) {
	if added == nil {
		added = dateadded.NewResolver()
	}

	reg.Register(DateAdded.Name, Factory(DateAdded, added, fopts...))
	reg.Register(LastModified.Name, Factory(LastModified, dateadded.NewModTimeResolver(), fopts...))
}

// Name implements [filter.Filter].
func (f *Filter) Name() string {
	return f.kind.Name
}

// Duration returns the configured duration.
func (f *Filter) Duration() duration.Duration {
	return f.duration
}

// Direction returns the configured direction.
func (f *Filter) Direction() Direction {
	return f.direction
}

// Location returns the timezone of the exposed instant.
func (f *Filter) Location() *time.Location {
	return f.loc
}

// Evaluate implements [filter.Filter].
//
// Errors from the resolver, including [filter.ErrPathNotFound], are returned
// unchanged.
func (f *Filter) Evaluate(ctx context.Context, path string) (filter.Result, error) {
	instant, err := f.resolver.Resolve(ctx, path, f.loc)
	if err != nil {
		return filter.NoMatch, err //nolint:wrapcheck // Callers match on the resolver's errors.
	}

	if !f.Matches(instant) {
		return filter.NoMatch, nil
	}

	return filter.Match(filter.Context{
		f.kind.Name: filter.NewDateTime(instant),
	}), nil
}

// Matches reports whether instant falls on the configured side of the window.
//
// The window boundary is instant plus the duration. An instant whose boundary
// equals the current time has not yet passed it, so it matches [Newer] and
// not [Older].
func (f *Filter) Matches(instant time.Time) bool {
	if f.duration.IsZero() {
		return true
	}

	past := f.duration.AddTo(instant).Before(f.now())

	return (f.direction == Older) == past
}

func (f *Filter) String() string {
	if f.duration.IsZero() {
		return fmt.Sprintf("[%s] All files, any time %s", f.kind.Label, f.kind.Verb)
	}

	return fmt.Sprintf("[%s] All files %s %s than %s",
		f.kind.Label, f.kind.Verb, f.direction, f.duration)
}
