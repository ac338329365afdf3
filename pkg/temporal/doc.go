// Package temporal implements filters that match filesystem entries by a
// point in time, relative to a configured [duration.Duration].
//
// Two filters are provided:
//   - `dateadded`: when the entry was added to the filesystem, see
//     [github.com/macropower/shelf/pkg/dateadded].
//   - `lastmodified`: when the entry was last modified.
//
// Both accept the options `years`, `months`, `weeks`, `days`, `hours`,
// `minutes`, `seconds`, `mode` ("older" or "newer") and `timezone`.
//
// With mode "older", an entry matches when at least the configured duration
// has passed since its instant. With mode "newer", it matches when less than
// the configured duration has passed. A duration of zero matches every entry.
//
// Matched entries expose their instant to templates under the filter's name,
// e.g. `{dateadded.year}` or `{lastmodified.month}`.
package temporal
