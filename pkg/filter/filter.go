package filter

import (
	"context"
	"errors"
	"maps"
	"slices"
	"time"
)

var (
	// ErrInvalidConfiguration is returned when a filter is constructed with
	// options it cannot accept.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrPathNotFound is returned when the evaluated path no longer exists.
	ErrPathNotFound = errors.New("path not found")

	// ErrUnknownFilter is returned when no filter is registered for a name.
	ErrUnknownFilter = errors.New("unknown filter")
)

// Filter decides whether a path matches.
type Filter interface {
	// Name returns the filter's registered name, which is also the key it
	// uses in the [Context] it produces.
	Name() string
	// Evaluate evaluates the filter against the given path.
	// Implementations must be safe for concurrent use.
	Evaluate(ctx context.Context, path string) (Result, error)
}

// Context holds the data exposed by matched filters.
type Context map[string]any

// Merge copies all entries of other into c, and returns the keys that were
// already present in c.
func (c Context) Merge(other Context) []string {
	var collisions []string

	for _, k := range slices.Sorted(maps.Keys(other)) {
		if _, ok := c[k]; ok {
			collisions = append(collisions, k)
		}

		c[k] = other[k]
	}

	return collisions
}

// Result is the outcome of a [Filter] evaluation.
type Result struct {
	Context Context
	Matched bool
}

// NoMatch is the [Result] of a filter that did not match.
var NoMatch = Result{}

// Match returns a matched [Result] exposing c.
func Match(c Context) Result {
	if c == nil {
		c = Context{}
	}

	return Result{Context: c, Matched: true}
}

// DateTime is a [time.Time] exposed to templates by its calendar components.
type DateTime struct {
	time.Time
}

// NewDateTime creates a new [DateTime].
func NewDateTime(t time.Time) DateTime {
	return DateTime{Time: t}
}

// Fields returns the calendar components of the [DateTime], keyed by the
// names used in templates.
func (dt DateTime) Fields() map[string]any {
	return map[string]any{
		"year":      dt.Year(),
		"month":     int(dt.Month()),
		"day":       dt.Day(),
		"hour":      dt.Hour(),
		"minute":    dt.Minute(),
		"second":    dt.Second(),
		"weekday":   dt.Weekday().String(),
		"timestamp": dt.Unix(),
	}
}
