package shellsession

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ajaxzhan/shellbridge/internal/logging"
	"github.com/ajaxzhan/shellbridge/pkg/types"
)

// Sentinel is the fixed literal echoed after every wrapped command to mark
// completion on stdout. It is not user-visible and must stay stable across
// versions.
const Sentinel = "<<exit>>"

// MaxCommandBytes is the byte-length ceiling checked before any command is
// written to a session's stdin.
const MaxCommandBytes = 100000

const readChunkSize = 256

// sentinelIndex finds the sentinel anchored at the start of a line (start of
// buffer or right after a newline), skipping any occurrence embedded inside
// other text. PTY backends disable terminal echo so the real sentinel is
// normally the only candidate, but this guards against an echoed command
// line (e.g. `echo '<<exit>>'`) matching before the real one, the same way
// the teacher's marker search anchors to a line start.
func sentinelIndex(full string) int {
	search := 0
	for {
		idx := strings.Index(full[search:], Sentinel)
		if idx < 0 {
			return -1
		}
		abs := search + idx
		if abs == 0 || full[abs-1] == '\n' {
			return abs
		}
		search = abs + 1
	}
}

// Config bundles a session's tunable behavior, sourced from
// internal/config.RuntimeConfig.
type Config struct {
	WorkspaceRoot   string
	DefaultTimeout  time.Duration
	MaxTimeout      time.Duration
	StderrFilter    []string
	RestartTriggers []string
}

// Chunk is one piece of output emitted by Stream, tagged with which
// stream it came from.
type Chunk struct {
	Stream string // "stdout" or "stderr"
	Data   string
}

// Session owns one persistent shell subprocess and detects completion of
// the command currently in flight via the sentinel protocol.
type Session struct {
	ID  int
	cfg Config

	backend Backend

	mu          sync.Mutex
	started     bool
	busy        bool
	lastCommand string
	createdAt   time.Time
	stdoutBuf   strings.Builder
	stderrBuf   strings.Builder
	tapOut      chan []byte
	tapErr      chan []byte
}

// New creates an idle, unstarted session bound to backend.
func New(id int, backend Backend, cfg Config) *Session {
	return &Session{
		ID:        id,
		cfg:       cfg,
		backend:   backend,
		createdAt: time.Now(),
	}
}

// Info returns a read-only snapshot of the session's current state.
func (s *Session) Info() types.SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := types.SessionIdle
	if s.busy {
		status = types.SessionRunning
	}
	return types.SessionInfo{
		ID:          s.ID,
		Status:      status,
		LastCommand: s.lastCommand,
		CreatedAt:   s.createdAt,
	}
}

// Start launches the backend shell and the background readers that keep
// the stdout/stderr buffers current even between calls. Idempotent.
func (s *Session) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	if err := s.backend.Start(); err != nil {
		return types.NewToolError(types.ErrIOError, "start", "", err)
	}

	s.mu.Lock()
	s.started = true
	s.mu.Unlock()

	go s.pump(s.backend.Stdout(), "stdout")
	go s.pump(s.backend.Stderr(), "stderr")

	logging.Info("shell session started", logging.Int("session_id", s.ID))
	return nil
}

// pump continuously reads from one of the backend's streams, appending to
// the matching buffer and forwarding to an active Stream tap if present.
func (s *Session) pump(r io.Reader, which string) {
	buf := make([]byte, readChunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			s.mu.Lock()
			if which == "stdout" {
				s.stdoutBuf.Write(chunk)
			} else {
				s.stderrBuf.Write(chunk)
			}
			var tap chan []byte
			if which == "stdout" {
				tap = s.tapOut
			} else {
				tap = s.tapErr
			}
			s.mu.Unlock()

			if tap != nil {
				select {
				case tap <- chunk:
				default:
				}
			}
		}
		if err != nil {
			return
		}
	}
}

// Stop best-effort terminates the subprocess. Safe to call multiple times.
func (s *Session) Stop() error {
	s.mu.Lock()
	s.busy = false
	s.mu.Unlock()
	return s.backend.Stop()
}

func (s *Session) wrap(command string) string {
	return fmt.Sprintf("%s\ncd %q\necho '%s'\n", command, s.cfg.WorkspaceRoot, Sentinel)
}

// Run executes command synchronously, blocking for at most timeout for the
// sentinel to appear in the accumulated stdout buffer.
func (s *Session) Run(ctx context.Context, command string, timeout time.Duration) (types.Result, error) {
	if len(command) > MaxCommandBytes {
		return types.Result{}, types.NewToolError(types.ErrCommandTooLong, "run", "", nil)
	}
	if timeout <= 0 {
		timeout = s.cfg.DefaultTimeout
	}
	if s.cfg.MaxTimeout > 0 && timeout > s.cfg.MaxTimeout {
		timeout = s.cfg.MaxTimeout
	}

	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return types.Result{}, types.NewToolError(types.ErrNotStarted, "run", "", nil)
	}
	if exited, code := s.backend.Exited(); exited {
		s.mu.Unlock()
		return types.Result{
			System: "Session process has exited; restart required",
		}, types.NewToolError(types.ErrProcessExited, "run", "", fmt.Errorf("exit code %d", code))
	}
	if s.busy {
		occupying := s.lastCommand
		s.mu.Unlock()
		return types.Result{
			System: fmt.Sprintf("Session %d is busy running: %s", s.ID, occupying),
		}, nil
	}

	s.stdoutBuf.Reset()
	s.stderrBuf.Reset()
	s.lastCommand = command
	s.busy = true
	s.mu.Unlock()

	if _, err := s.backend.Stdin().Write([]byte(s.wrap(command))); err != nil {
		s.mu.Lock()
		s.busy = false
		s.mu.Unlock()
		return types.Result{}, types.NewToolError(types.ErrIOError, "run", "", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-runCtx.Done():
			if result, done := s.tryComplete(); done {
				return result, nil
			}
			if exited, _ := s.backend.Exited(); exited {
				// The shell process died mid-command without ever
				// producing the sentinel: harvest whatever residue
				// exists and surface it as an unrecoverable stream error
				// rather than a plain timeout.
				s.mu.Lock()
				s.busy = false
				errOut := filterStderr(s.stderrBuf.String(), s.cfg.StderrFilter)
				s.mu.Unlock()
				return types.Result{Error: errOut}, types.NewToolError(types.ErrStreamError, "run", "", nil)
			}
			return types.Result{
				System: fmt.Sprintf("Command timed out after %g seconds. This process will continue to run in session %d.", timeout.Seconds(), s.ID),
			}, nil
		case <-ticker.C:
			if result, done := s.tryComplete(); done {
				return result, nil
			}
		}
	}
}

// tryComplete checks the stdout buffer for the sentinel; if present it
// extracts the command's output, resets busy, and returns the final
// result. Safe to call from Run's poll loop and from Poll/Status.
func (s *Session) tryComplete() (types.Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.busy {
		return types.Result{}, false
	}

	full := s.stdoutBuf.String()
	idx := sentinelIndex(full)
	if idx < 0 {
		return types.Result{}, false
	}

	output := full[:idx]
	output = types.TrimTrailingNewline(output)

	errOut := filterStderr(s.stderrBuf.String(), s.cfg.StderrFilter)

	s.busy = false
	s.stdoutBuf.Reset()
	s.stderrBuf.Reset()

	return types.Result{Output: output, Error: errOut}, true
}

// Poll is a non-blocking inspection of the stdout buffer. If the sentinel
// is present it marks the session idle and returns true.
func (s *Session) Poll() (types.Result, bool) {
	return s.tryComplete()
}

// Snapshot returns the currently accumulated partial output/error without
// blocking or mutating busy state.
func (s *Session) Snapshot() types.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return types.Result{
		Output: s.stdoutBuf.String(),
		Error:  filterStderr(s.stderrBuf.String(), s.cfg.StderrFilter),
	}
}

// Busy reports whether a command is currently in flight.
func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// LastCommand returns the most recently submitted command.
func (s *Session) LastCommand() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastCommand
}

// MatchesAny reports whether text contains any of substrings, ignoring
// case. Used both for the stderr filter and for the manager's
// auto-recovery substring heuristic, so the two concerns share one
// matching rule.
func MatchesAny(text string, substrings []string) bool {
	lower := strings.ToLower(text)
	for _, sub := range substrings {
		if sub != "" && strings.Contains(lower, strings.ToLower(sub)) {
			return true
		}
	}
	return false
}

// Stream executes command and returns a channel of output chunks, closed
// once the sentinel is observed, the context is cancelled, or a read
// error occurs. Requires the session not be busy.
func (s *Session) Stream(ctx context.Context, command string) (<-chan Chunk, error) {
	if len(command) > MaxCommandBytes {
		return nil, types.NewToolError(types.ErrCommandTooLong, "stream", "", nil)
	}

	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return nil, types.NewToolError(types.ErrBusy, "stream", "", nil)
	}
	if !s.started {
		s.mu.Unlock()
		if err := s.Start(); err != nil {
			return nil, err
		}
		s.mu.Lock()
		if s.busy {
			s.mu.Unlock()
			return nil, types.NewToolError(types.ErrBusy, "stream", "", nil)
		}
	}

	s.stdoutBuf.Reset()
	s.stderrBuf.Reset()
	s.lastCommand = command
	s.busy = true
	tapOut := make(chan []byte, 64)
	tapErr := make(chan []byte, 64)
	s.tapOut = tapOut
	s.tapErr = tapErr
	s.mu.Unlock()

	if _, err := s.backend.Stdin().Write([]byte(s.wrap(command))); err != nil {
		s.mu.Lock()
		s.busy = false
		s.tapOut, s.tapErr = nil, nil
		s.mu.Unlock()
		return nil, types.NewToolError(types.ErrIOError, "stream", "", err)
	}

	out := make(chan Chunk, 64)
	go s.pumpStream(ctx, tapOut, tapErr, out)
	return out, nil
}

func (s *Session) pumpStream(ctx context.Context, tapOut, tapErr chan []byte, out chan<- Chunk) {
	defer close(out)
	defer func() {
		s.mu.Lock()
		s.tapOut, s.tapErr = nil, nil
		s.busy = false
		s.mu.Unlock()
	}()

	var seen strings.Builder
	var stderrResidue strings.Builder

	for {
		select {
		case <-ctx.Done():
			return
		case chunk, ok := <-tapOut:
			if !ok {
				return
			}
			priorLen := seen.Len()
			seen.Write(chunk)
			full := seen.String()
			if idx := sentinelIndex(full); idx >= 0 {
				if idx > priorLen {
					out <- Chunk{Stream: "stdout", Data: full[priorLen:idx]}
				}
				return
			}
			out <- Chunk{Stream: "stdout", Data: string(chunk)}
		case chunk, ok := <-tapErr:
			if !ok {
				continue
			}
			stderrResidue.Write(chunk)
			lines := strings.Split(stderrResidue.String(), "\n")
			stderrResidue.Reset()
			stderrResidue.WriteString(lines[len(lines)-1])
			for _, line := range lines[:len(lines)-1] {
				filtered := filterStderrLine(line, s.cfg.StderrFilter)
				if filtered != "" {
					out <- Chunk{Stream: "stderr", Data: filtered + "\n"}
				}
			}
		}
	}
}

// filterStderr strips lines matching any of the configured substrings
// (case-insensitive), mirroring the distillation's stderr filter.
func filterStderr(text string, substrings []string) string {
	if text == "" {
		return text
	}
	text = strings.TrimSuffix(text, "\n")
	var kept []string
	for _, line := range strings.Split(text, "\n") {
		if filterStderrLine(line, substrings) != "" || line == "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

func filterStderrLine(line string, substrings []string) string {
	if MatchesAny(line, substrings) {
		return ""
	}
	return line
}

// StatusLine renders the one-line summary used by the session manager's
// list() operation: "<id>: running|idle, last=<cmd>, cwd=<workspace>".
func (s *Session) StatusLine() string {
	s.mu.Lock()
	busy := s.busy
	lastCommand := s.lastCommand
	s.mu.Unlock()

	state := "idle"
	if busy {
		state = "running"
	}
	return strconv.Itoa(s.ID) + ": " + state + ", last=" + lastCommand + ", cwd=" + s.cfg.WorkspaceRoot
}
