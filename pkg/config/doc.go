// Package config loads configuration files.
//
// A [Loader] decodes a document into any versioned configuration type,
// validates it against the type's JSON schema, and annotates errors with
// their position in the source.
package config
