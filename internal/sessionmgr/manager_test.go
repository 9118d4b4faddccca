package sessionmgr

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/ajaxzhan/shellbridge/internal/shellsession"
)

// fakeBackend is a minimal scripted Backend: Run's wrapped command is
// answered with a fixed stdout/stderr pair as soon as it's written.
type fakeBackend struct {
	stdoutR *io.PipeReader
	stdoutW *io.PipeWriter
	stderrR *io.PipeReader
	stderrW *io.PipeWriter
	reply   string
	errText string
}

func newFakeBackend(reply, errText string) *fakeBackend {
	outR, outW := io.Pipe()
	errR, errW := io.Pipe()
	return &fakeBackend{stdoutR: outR, stdoutW: outW, stderrR: errR, stderrW: errW, reply: reply, errText: errText}
}

func (b *fakeBackend) Start() error { return nil }
func (b *fakeBackend) Stdin() io.Writer {
	return discardThenReply{b}
}
func (b *fakeBackend) Stdout() io.Reader   { return b.stdoutR }
func (b *fakeBackend) Stderr() io.Reader   { return b.stderrR }
func (b *fakeBackend) Stop() error         { b.stdoutW.Close(); b.stderrW.Close(); return nil }
func (b *fakeBackend) Exited() (bool, int) { return false, 0 }

// discardThenReply accepts the wrapped command write and immediately
// replies on stdout/stderr, simulating a shell that never blocks.
type discardThenReply struct{ b *fakeBackend }

func (d discardThenReply) Write(p []byte) (int, error) {
	go func() {
		if d.b.errText != "" {
			d.b.stderrW.Write([]byte(d.b.errText))
		}
		d.b.stdoutW.Write([]byte(d.b.reply + "\n" + shellsession.Sentinel + "\n"))
	}()
	return len(p), nil
}

func testConfig() shellsession.Config {
	return shellsession.Config{
		WorkspaceRoot:   "/workspace",
		DefaultTimeout:  time.Second,
		StderrFilter:    nil,
		RestartTriggers: []string{"not a tty", "wait: no child processes"},
	}
}

func TestManager_Execute_CreatesSessionAndAnnotates(t *testing.T) {
	m := New(testConfig(), func() shellsession.Backend { return newFakeBackend("hi", "") })

	result := m.Execute(context.Background(), "echo hi", nil, time.Second)
	if result.Output != "hi" {
		t.Errorf("Output = %q, want %q", result.Output, "hi")
	}
	if !strings.Contains(result.System, "Created new session with ID: 1") {
		t.Errorf("expected creation note, got %q", result.System)
	}
}

func TestManager_Execute_ReusesIdleSession(t *testing.T) {
	calls := 0
	m := New(testConfig(), func() shellsession.Backend {
		calls++
		return newFakeBackend("ok", "")
	})

	m.Execute(context.Background(), "echo one", nil, time.Second)
	result := m.Execute(context.Background(), "echo two", nil, time.Second)

	if strings.Contains(result.System, "Created") {
		t.Errorf("second call should reuse the idle session, got %q", result.System)
	}
	if calls != 1 {
		t.Errorf("expected exactly one backend created, got %d", calls)
	}
}

func TestManager_Execute_AutoRestartsOnTrigger(t *testing.T) {
	attempt := 0
	m := New(testConfig(), func() shellsession.Backend {
		attempt++
		if attempt == 1 {
			return newFakeBackend("bash: no tty present", "bash: job control: not a tty")
		}
		return newFakeBackend("recovered", "")
	})

	result := m.Execute(context.Background(), "fg", nil, time.Second)
	if !strings.Contains(result.System, "automatically restarted") {
		t.Errorf("expected auto-restart note, got %q", result.System)
	}
	if result.Output != "recovered" {
		t.Errorf("Output = %q, want the re-run's output after restart", result.Output)
	}
	if attempt != 2 {
		t.Errorf("expected exactly two backends (original + one retry), got %d", attempt)
	}
}

func TestManager_Status_UnknownSession(t *testing.T) {
	m := New(testConfig(), func() shellsession.Backend { return newFakeBackend("", "") })
	result := m.Status(42)
	if !strings.Contains(result.System, "does not exist") {
		t.Errorf("expected does-not-exist notice, got %q", result.System)
	}
}

func TestManager_Restart_ReplacesSession(t *testing.T) {
	m := New(testConfig(), func() shellsession.Backend { return newFakeBackend("ok", "") })
	m.Execute(context.Background(), "echo one", nil, time.Second)

	result := m.Restart(1)
	if !strings.Contains(result.System, "restarted") {
		t.Errorf("expected restart confirmation, got %q", result.System)
	}

	result = m.Execute(context.Background(), "echo two", func() *int { id := 1; return &id }(), time.Second)
	if result.Output != "ok" {
		t.Errorf("Output = %q after restart, want %q", result.Output, "ok")
	}
}

func TestManager_List_FormatsEachSession(t *testing.T) {
	m := New(testConfig(), func() shellsession.Backend { return newFakeBackend("ok", "") })
	m.Execute(context.Background(), "echo one", nil, time.Second)

	result := m.List()
	if !strings.Contains(result.Output, "1: idle") {
		t.Errorf("expected session 1 listed idle, got %q", result.Output)
	}
}
