package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ajaxzhan/shellbridge/internal/fileeditor"
	"github.com/ajaxzhan/shellbridge/internal/pathguard"
	"github.com/ajaxzhan/shellbridge/internal/sessionmgr"
	"github.com/ajaxzhan/shellbridge/internal/shellsession"
	"github.com/ajaxzhan/shellbridge/internal/workspace"
)

// scriptedBackend answers every write on stdin with a fixed reply,
// simulating a shell that never blocks, for exercising the HTTP layer
// without a real subprocess.
type scriptedBackend struct {
	stdoutR *io.PipeReader
	stdoutW *io.PipeWriter
	stderrR *io.PipeReader
	stderrW *io.PipeWriter
	reply   string
}

func newScriptedBackend(reply string) *scriptedBackend {
	outR, outW := io.Pipe()
	errR, errW := io.Pipe()
	return &scriptedBackend{stdoutR: outR, stdoutW: outW, stderrR: errR, stderrW: errW, reply: reply}
}

func (b *scriptedBackend) Start() error      { return nil }
func (b *scriptedBackend) Stdin() io.Writer  { return scriptedWriter{b} }
func (b *scriptedBackend) Stdout() io.Reader { return b.stdoutR }
func (b *scriptedBackend) Stderr() io.Reader { return b.stderrR }
func (b *scriptedBackend) Stop() error       { b.stdoutW.Close(); b.stderrW.Close(); return nil }
func (b *scriptedBackend) Exited() (bool, int) { return false, 0 }

type scriptedWriter struct{ b *scriptedBackend }

func (w scriptedWriter) Write(p []byte) (int, error) {
	go w.b.stdoutW.Write([]byte(w.b.reply + "\n" + shellsession.Sentinel + "\n"))
	return len(p), nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	root := t.TempDir()
	guard := pathguard.New(root)

	cfg := shellsession.Config{
		WorkspaceRoot:   root,
		DefaultTimeout:  time.Second,
		RestartTriggers: []string{"not a tty"},
	}
	mgr := sessionmgr.New(cfg, func() shellsession.Backend { return newScriptedBackend("hi") })
	editor := fileeditor.New(guard)
	lister := workspace.New(guard)

	return New(mgr, editor, lister)
}

func TestHandleBash_Execute(t *testing.T) {
	srv := newTestServer(t)
	body := `{"command":"echo hi"}`
	req := httptest.NewRequest(http.MethodPost, "/bash", strings.NewReader(body))
	rec := httptest.NewRecorder()

	srv.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var got map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got["output"] != "hi" {
		t.Errorf("output = %v", got["output"])
	}
}

func TestHandleBash_ListSessions(t *testing.T) {
	srv := newTestServer(t)
	execReq := httptest.NewRequest(http.MethodPost, "/bash", strings.NewReader(`{"command":"echo hi"}`))
	srv.Routes().ServeHTTP(httptest.NewRecorder(), execReq)

	listReq := httptest.NewRequest(http.MethodPost, "/bash", strings.NewReader(`{"list_sessions":true}`))
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, listReq)

	if !strings.Contains(rec.Body.String(), "1: idle") {
		t.Errorf("expected session 1 listed idle, got %s", rec.Body.String())
	}
}

func TestHandleFile_WriteThenRead(t *testing.T) {
	srv := newTestServer(t)

	writeBody := `{"command":"write","path":"f.txt","content":"hello"}`
	req := httptest.NewRequest(http.MethodPost, "/file", strings.NewReader(writeBody))
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("write status = %d, body = %s", rec.Code, rec.Body.String())
	}

	readBody := `{"command":"read","path":"f.txt","line_numbers":false}`
	req = httptest.NewRequest(http.MethodPost, "/file", strings.NewReader(readBody))
	rec = httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)

	var got map[string]any
	json.Unmarshal(rec.Body.Bytes(), &got)
	if got["output"] != "hello" {
		t.Errorf("output = %v, body = %s", got["output"], rec.Body.String())
	}
}

func TestHandleFile_UnknownPathReturns400(t *testing.T) {
	srv := newTestServer(t)
	body := `{"command":"read","path":"missing.txt"}`
	req := httptest.NewRequest(http.MethodPost, "/file", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandleListFiles(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/list-files", nil)
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestHandleStatus(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || !bytes.Contains(rec.Body.Bytes(), []byte("\"ok\"")) {
		t.Errorf("status response = %s", rec.Body.String())
	}
}
