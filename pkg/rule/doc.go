// Package rule decides which filesystem entries a rule selects, by combining
// the results of its filters.
//
// Matched filters expose data to an optional CEL (Common Expression Language)
// guard and to the rule's output template.
package rule
