// Package dateadded resolves when a filesystem entry was added.
//
// A [Resolver] prefers a platform-native "date added" attribute, read through
// a [NativeReader], and falls back to the entry's modification time whenever
// the native attribute cannot be read. An unsupported platform or a failing
// metadata query is never an error; only a missing path is.
//
// On darwin the native attribute is read with `mdls` (see [MdlsReader]). On
// all other platforms [DefaultReader] returns a [NopReader].
package dateadded
