// Package docker provides a shellsession.Backend that execs the shell
// inside an already-running container instead of a native subprocess.
package docker

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/ajaxzhan/shellbridge/internal/logging"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

// Backend runs the shell as a non-TTY exec inside a named container.
// Unlike a PTY, a non-TTY exec keeps stdout and stderr demultiplexed
// (via the docker engine's stream-framing protocol, decoded here with
// stdcopy), which is exactly the separate-stream contract the shell
// session needs.
type Backend struct {
	client      *client.Client
	containerID string
	shell       string

	mu        sync.Mutex
	execID    string
	conn      io.ReadWriteCloser
	stdoutR   *io.PipeReader
	stderrR   *io.PipeReader
	cancel    context.CancelFunc
	exited    bool
	exitCode  int
}

// New builds a Backend that execs shell inside containerID using cli.
func New(cli *client.Client, containerID, shell string) *Backend {
	return &Backend{client: cli, containerID: containerID, shell: shell}
}

func (b *Backend) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.execID != "" {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())

	execResp, err := b.client.ContainerExecCreate(ctx, b.containerID, container.ExecOptions{
		AttachStdin:  true,
		AttachStdout: true,
		AttachStderr: true,
		Tty:          false,
		Cmd:          []string{b.shell, "--norc", "--noprofile", "-i"},
		Env:          []string{"PS1=$ "},
	})
	if err != nil {
		cancel()
		return fmt.Errorf("shellsession/docker: create exec: %w", err)
	}

	attachResp, err := b.client.ContainerExecAttach(ctx, execResp.ID, container.ExecAttachOptions{Tty: false})
	if err != nil {
		cancel()
		return fmt.Errorf("shellsession/docker: attach exec: %w", err)
	}

	stdoutR, stdoutW := io.Pipe()
	stderrR, stderrW := io.Pipe()
	go func() {
		_, err := stdcopy.StdCopy(writerNoClose{stdoutW}, writerNoClose{stderrW}, attachResp.Reader)
		b.mu.Lock()
		b.exited = true
		b.mu.Unlock()
		stdoutW.CloseWithError(err)
		stderrW.CloseWithError(err)
		logging.Debug("docker backend exec stream ended", logging.String("exec_id", execResp.ID))
	}()

	b.execID = execResp.ID
	b.conn = attachResp.Conn
	b.stdoutR = stdoutR
	b.stderrR = stderrR
	b.cancel = cancel

	return nil
}

// writerNoClose adapts an io.PipeWriter so stdcopy.StdCopy's own close
// semantics don't race with CloseWithError above.
type writerNoClose struct{ w *io.PipeWriter }

func (w writerNoClose) Write(p []byte) (int, error) { return w.w.Write(p) }

func (b *Backend) Stdin() io.Writer {
	return b.conn
}

func (b *Backend) Stdout() io.Reader {
	return b.stdoutR
}

func (b *Backend) Stderr() io.Reader {
	return b.stderrR
}

func (b *Backend) Stop() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cancel != nil {
		b.cancel()
	}
	if b.conn != nil {
		b.conn.Close()
	}
	return nil
}

func (b *Backend) Exited() (bool, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.exited, b.exitCode
}
