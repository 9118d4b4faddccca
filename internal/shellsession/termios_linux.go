//go:build linux

package shellsession

import (
	"os"

	"golang.org/x/sys/unix"
)

// disableEcho clears the PTY slave's ECHO flag so the tty driver stops
// echoing written input back onto the stdout stream. Without this, every
// wrapped command's `echo '<<exit>>'` line is echoed back before the real
// output, contaminating the sentinel search.
func disableEcho(tty *os.File) error {
	fd := int(tty.Fd())
	t, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return err
	}
	t.Lflag &^= unix.ECHO | unix.ECHONL
	return unix.IoctlSetTermios(fd, unix.TCSETS, t)
}
