//go:build !linux

package shellsession

import "os"

// disableEcho is a no-op outside Linux; the PTY backend's primary deployment
// target is Linux containers, matching the process-group handling in
// pty_backend.go which is likewise Linux-only.
func disableEcho(tty *os.File) error {
	return nil
}
