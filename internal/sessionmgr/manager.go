// Package sessionmgr keeps the map of shell sessions, selects ids, and
// drives the single-shot auto-recovery policy on top of shellsession.
package sessionmgr

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ajaxzhan/shellbridge/internal/logging"
	"github.com/ajaxzhan/shellbridge/internal/shellsession"
	"github.com/ajaxzhan/shellbridge/pkg/types"
)

// The trigger constants below name the substrings that indicate a session's
// underlying shell needs to be replaced rather than retried in place.
// Kept as named constants in one place rather than scattered literals.
const (
	triggerNotATTY    = "not a tty"
	triggerNoChildren = "wait: no child processes"
)

// BackendFactory builds a fresh Backend for a new session. The manager
// calls it both for on-demand creation and for restart.
type BackendFactory func() shellsession.Backend

// Manager owns the session map and guarantees at most one command in
// flight per session id.
type Manager struct {
	mu         sync.Mutex
	sessions   map[int]*shellsession.Session
	cfg        shellsession.Config
	newBackend BackendFactory
}

// New creates an empty Manager. cfg is shared by every session it creates.
func New(cfg shellsession.Config, newBackend BackendFactory) *Manager {
	return &Manager{
		sessions:   make(map[int]*shellsession.Session),
		cfg:        cfg,
		newBackend: newBackend,
	}
}

// createLocked starts a new session at id. Caller must hold m.mu.
func (m *Manager) createLocked(id int) (*shellsession.Session, error) {
	sess := shellsession.New(id, m.newBackend(), m.cfg)
	if err := sess.Start(); err != nil {
		return nil, err
	}
	m.sessions[id] = sess
	logging.Info("session created", logging.Int("session_id", id))
	return sess, nil
}

// selectOrCreate picks the session id to operate on, creating one if
// necessary. If requested is nil, it selects the smallest positive id
// that is either absent or present-and-idle.
func (m *Manager) selectOrCreate(requested *int) (sess *shellsession.Session, created bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if requested != nil {
		id := *requested
		if existing, ok := m.sessions[id]; ok {
			return existing, false, nil
		}
		sess, err = m.createLocked(id)
		return sess, true, err
	}

	for id := 1; ; id++ {
		existing, ok := m.sessions[id]
		if !ok {
			sess, err = m.createLocked(id)
			return sess, true, err
		}
		if !existing.Busy() {
			return existing, false, nil
		}
	}
}

// EnsureSession allocates a session for id (or the next available id if
// nil) without running a command, reporting whether it was newly created.
func (m *Manager) EnsureSession(requested *int) (id int, created bool, err error) {
	sess, created, err := m.selectOrCreate(requested)
	if err != nil {
		return 0, false, err
	}
	return sess.ID, created, nil
}

// AllocateStreamSession registers and starts a new session at
// max(existing id)+1, for the streaming adapter's one-session-per-
// connection allocation.
func (m *Manager) AllocateStreamSession() (*shellsession.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := 1
	for id := range m.sessions {
		if id >= next {
			next = id + 1
		}
	}
	return m.createLocked(next)
}

// Get returns the session at id, if any.
func (m *Manager) Get(id int) (*shellsession.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	return sess, ok
}

// Remove stops and forgets the session at id. Safe to call even if id
// doesn't exist.
func (m *Manager) Remove(id int) {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if ok {
		sess.Stop()
	}
}

// List formats the one-line summary of every session, in ascending id
// order.
func (m *Manager) List() types.Result {
	m.mu.Lock()
	ids := make([]int, 0, len(m.sessions))
	sessions := make(map[int]*shellsession.Session, len(m.sessions))
	for id, sess := range m.sessions {
		ids = append(ids, id)
		sessions[id] = sess
	}
	m.mu.Unlock()

	sort.Ints(ids)

	if len(ids) == 0 {
		return types.Result{System: "No active sessions"}
	}

	out := ""
	for i, id := range ids {
		sessions[id].Poll()
		if i > 0 {
			out += "\n"
		}
		out += sessions[id].StatusLine()
	}
	return types.Result{Output: out}
}

// Status reports session id's current state: the finished command's
// result with a "Command completed" note, its partial output with a
// "still running" note if busy, or an idle notice.
func (m *Manager) Status(id int) types.Result {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return types.Result{System: fmt.Sprintf("Session %d does not exist", id)}
	}

	if result, done := sess.Poll(); done {
		return result.Combine(types.Result{System: "Command completed"})
	}
	if sess.Busy() {
		note := fmt.Sprintf("Command still running in session %d", id)
		return sess.Snapshot().Combine(types.Result{System: note})
	}
	return types.Result{System: fmt.Sprintf("Session %d is idle", id)}
}

// Restart stops the session at id (if any) and replaces it with a fresh
// one at the same id.
func (m *Manager) Restart(id int) types.Result {
	m.mu.Lock()
	defer m.mu.Unlock()

	if old, ok := m.sessions[id]; ok {
		old.Stop()
		delete(m.sessions, id)
	}
	if _, err := m.createLocked(id); err != nil {
		return types.Result{System: fmt.Sprintf("Failed to restart session %d: %v", id, err)}
	}
	return types.Result{System: fmt.Sprintf("Session %d restarted", id)}
}

// Execute runs command against the chosen (or newly created) session,
// applying the single-shot auto-recovery policy on restart-indicating
// failures.
func (m *Manager) Execute(ctx context.Context, command string, session *int, timeout time.Duration) types.Result {
	sess, created, err := m.selectOrCreate(session)
	if err != nil {
		return types.Result{System: fmt.Sprintf("Failed to create session: %v", err)}
	}

	// Lost the race: another caller claimed the session between
	// selection and this check.
	if !created && sess.Busy() {
		return types.Result{System: fmt.Sprintf("Session %d is busy running: %s", sess.ID, sess.LastCommand())}
	}

	if len(command) > shellsession.MaxCommandBytes {
		return types.Result{System: "Command too long"}
	}

	result, runErr := sess.Run(ctx, command, timeout)
	if needsRestart(result, runErr) {
		result = m.autoRestartAndRerun(ctx, sess.ID, command, timeout)
	}

	if created {
		note := fmt.Sprintf("Created new session with ID: %d", sess.ID)
		result = result.Combine(types.Result{System: note})
	}
	return result
}

// needsRestart reports whether result/err describes one of the three
// auto-recovery conditions: restart-required, stream-reading error, or
// command completed despite a stream issue.
func needsRestart(result types.Result, err error) bool {
	if toolErr, ok := err.(*types.ToolError); ok {
		if toolErr.Kind == types.ErrStreamError || toolErr.Kind == types.ErrProcessExited {
			return true
		}
	}
	combined := result.Output + result.Error + result.System
	return shellsession.MatchesAny(combined, []string{triggerNotATTY, triggerNoChildren})
}

// autoRestartAndRerun replaces the session at id and re-runs command
// exactly once, annotating the outcome with a system note recording the
// auto-restart. Further failures are surfaced without another retry.
func (m *Manager) autoRestartAndRerun(ctx context.Context, id int, command string, timeout time.Duration) types.Result {
	m.mu.Lock()
	if old, ok := m.sessions[id]; ok {
		old.Stop()
		delete(m.sessions, id)
	}
	sess, err := m.createLocked(id)
	m.mu.Unlock()

	if err != nil {
		return types.Result{System: fmt.Sprintf("Auto-restart of session %d failed: %v", id, err)}
	}

	logging.Warn("auto-restarting session after stream failure", logging.Int("session_id", id))

	result, _ := sess.Run(ctx, command, timeout)
	note := fmt.Sprintf("Session %d was automatically restarted after a stream failure", id)
	return result.Combine(types.Result{System: note})
}
