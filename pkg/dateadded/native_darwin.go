package dateadded

// DefaultReader returns the [NativeReader] for the current platform.
func DefaultReader() NativeReader { //nolint:ireturn // Platform-dependent implementation.
	return NewMdlsReader()
}
