// Package execs provides utilities for executing external commands.
//
// It is used by the `dateadded` package to run the read-only metadata
// queries that some platforms expose only as command line tools. Commands
// run with a reduced environment and are always bound to a context, so that
// callers can enforce a timeout on slow filesystems.
package execs
