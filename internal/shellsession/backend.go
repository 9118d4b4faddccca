// Package shellsession owns one persistent shell subprocess per session,
// detects command completion with the sentinel protocol, and exposes
// synchronous and streaming execution on top of an interchangeable
// Backend.
package shellsession

import "io"

// Backend is the interchangeable subprocess-execution strategy underneath
// a Session. A Backend is responsible only for starting the shell and
// exposing its three standard streams; the sentinel protocol, buffering,
// and busy-slot bookkeeping all live in Session and are identical across
// backends.
type Backend interface {
	// Start launches the shell. Idempotent once started.
	Start() error

	// Stdin returns the writer used to send commands to the shell.
	Stdin() io.Writer

	// Stdout returns the reader for the shell's standard output.
	Stdout() io.Reader

	// Stderr returns the reader for the shell's standard error.
	Stderr() io.Reader

	// Stop best-effort terminates the shell and its process group. Safe
	// to call multiple times.
	Stop() error

	// Exited reports whether the underlying process has already exited,
	// and its exit code if so.
	Exited() (bool, int)
}
