package shellsession

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	goruntime "runtime"
	"sync"
	"syscall"

	"github.com/ajaxzhan/shellbridge/internal/logging"
	"github.com/creack/pty"
)

// ptyBackend runs the shell as a native subprocess. Stdin and stdout are
// wired through a real PTY so the shell never falls back to fully
// block-buffered I/O the way it would over a plain pipe; stderr is kept on
// its own os.Pipe so it can be read, filtered, and reported separately
// from stdout, per the streaming contract.
type ptyBackend struct {
	shell string

	mu       sync.Mutex
	cmd      *exec.Cmd
	ptmx     *os.File
	stderrR  *os.File
	stderrW  *os.File
	hasPgid  bool
	exited   bool
	exitCode int
}

// NewPTYBackend builds a Backend that runs shell as a native PTY-backed
// subprocess.
func NewPTYBackend(shell string) Backend {
	return &ptyBackend{shell: shell}
}

func (b *ptyBackend) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cmd != nil {
		return nil // idempotent
	}

	// --noediting keeps bash off readline: readline manages the tty itself
	// and re-echoes typed input as part of its own line editing, which
	// would reintroduce the echo this backend otherwise disables below.
	args := []string{"--norc", "--noprofile", "--noediting", "-i"}
	cmd := exec.Command(b.shell, args...)
	cmd.Env = append(os.Environ(), "PS1=$ ")

	if goruntime.GOOS == "linux" {
		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
		b.hasPgid = true
	}

	ptmx, tty, err := pty.Open()
	if err != nil {
		return fmt.Errorf("shellsession: open pty: %w", err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		ptmx.Close()
		tty.Close()
		return fmt.Errorf("shellsession: open stderr pipe: %w", err)
	}
	if err := disableEcho(tty); err != nil {
		ptmx.Close()
		tty.Close()
		stderrR.Close()
		stderrW.Close()
		return fmt.Errorf("shellsession: disable pty echo: %w", err)
	}

	cmd.Stdin = tty
	cmd.Stdout = tty
	cmd.Stderr = stderrW

	if err := cmd.Start(); err != nil {
		ptmx.Close()
		tty.Close()
		stderrR.Close()
		stderrW.Close()
		return fmt.Errorf("shellsession: start shell: %w", err)
	}
	// The child holds its own copy of the slave ends; the parent doesn't
	// need them once the process is running.
	tty.Close()
	stderrW.Close()

	b.cmd = cmd
	b.ptmx = ptmx
	b.stderrR = stderrR
	b.stderrW = stderrW

	go b.waitForExit()

	return nil
}

func (b *ptyBackend) waitForExit() {
	b.mu.Lock()
	cmd := b.cmd
	b.mu.Unlock()
	if cmd == nil {
		return
	}
	err := cmd.Wait()

	code := 0
	if exitErr, ok := err.(*exec.ExitError); ok {
		code = exitErr.ExitCode()
	}

	b.mu.Lock()
	b.exited = true
	b.exitCode = code
	b.mu.Unlock()
}

func (b *ptyBackend) Stdin() io.Writer {
	return b.ptmx
}

func (b *ptyBackend) Stdout() io.Reader {
	return b.ptmx
}

func (b *ptyBackend) Stderr() io.Reader {
	return b.stderrR
}

func (b *ptyBackend) Stop() error {
	b.mu.Lock()
	cmd := b.cmd
	hasPgid := b.hasPgid
	ptmx := b.ptmx
	stderrR := b.stderrR
	b.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return nil
	}

	if hasPgid {
		if pgid, err := syscall.Getpgid(cmd.Process.Pid); err == nil {
			syscall.Kill(-pgid, syscall.SIGKILL)
		} else {
			cmd.Process.Kill()
		}
	} else {
		cmd.Process.Kill()
	}

	if ptmx != nil {
		ptmx.Close()
	}
	if stderrR != nil {
		stderrR.Close()
	}

	logging.Debug("pty backend stopped", logging.Int("pid", cmd.Process.Pid))
	return nil
}

func (b *ptyBackend) Exited() (bool, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.exited, b.exitCode
}
