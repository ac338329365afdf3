// Package filter defines the contract that every rule filter satisfies.
//
// A [Filter] is evaluated once per candidate path. It either returns
// [NoMatch], or a matched [Result] whose [Context] is merged into the rule's
// context and made available to output templates, e.g. `{dateadded.year}`.
//
// Filters are constructed by name from configuration through a [Registry].
package filter
