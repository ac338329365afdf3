// Package expr provides CEL (Common Expression Language) functionality
// for evaluating expressions against filesystem entries.
//
// It creates CEL environments with custom functions for:
//   - File path operations (pathBase, pathDir, pathExt, pathStem)
//   - Relative time formatting (humanTime)
//   - Filesystem event checks (the `has` macro and `fs.*` constants)
//
// Rule expressions have access to the [EntryVariables]:
//   - `path` (string): The absolute path of the entry
//   - `relative_path` (string): The path relative to the rule location
//   - `name` (string): The last element of the path
//   - `is_dir` (bool): Whether the entry is a directory
//
// along with one `dyn` variable per filter, holding the data the filter
// exposed when it matched (e.g. `dateadded.year`).
package expr
