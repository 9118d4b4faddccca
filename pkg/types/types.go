// Package types defines the core domain types shared across the workspace
// execution service: sessions, the result envelope, and request records.
package types

import (
	"encoding/json"
	"strings"
	"time"
)

// SessionStatus represents the lifecycle state of a shell session.
type SessionStatus string

const (
	SessionIdle    SessionStatus = "idle"
	SessionRunning SessionStatus = "running"
	SessionClosed  SessionStatus = "closed"
)

// BackendKind selects which executor a shell session is backed by.
type BackendKind string

const (
	BackendPTY    BackendKind = "pty"
	BackendDocker BackendKind = "docker"
)

// SessionInfo is a point-in-time, read-only snapshot of a shell session,
// safe to hand out to callers without exposing the live session's mutex.
type SessionInfo struct {
	ID          int           `json:"id"`
	Status      SessionStatus `json:"status"`
	LastCommand string        `json:"last_command,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
}

// Result is the uniform four-field envelope returned by every operation.
// Exactly which fields are populated depends on the outcome; see Combine
// for how two partial results are merged.
type Result struct {
	Output      string `json:"output,omitempty"`
	Error       string `json:"error,omitempty"`
	System      string `json:"system,omitempty"`
	Base64Image string `json:"base64_image,omitempty"`
}

// HasContent reports whether the result carries any field at all.
func (r Result) HasContent() bool {
	return r.Output != "" || r.Error != "" || r.System != "" || r.Base64Image != ""
}

// Combine merges r with other, concatenating matching text fields in order.
// It panics if both sides carry a Base64Image, mirroring the distillation's
// refusal to combine two binary results into one.
func (r Result) Combine(other Result) Result {
	if r.Base64Image != "" && other.Base64Image != "" {
		panic("types: cannot combine two results that both carry an image")
	}
	combined := Result{
		Output: r.Output + other.Output,
		Error:  r.Error + other.Error,
		System: joinSystem(r.System, other.System),
	}
	if r.Base64Image != "" {
		combined.Base64Image = r.Base64Image
	} else {
		combined.Base64Image = other.Base64Image
	}
	return combined
}

func joinSystem(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return a + "; " + b
	}
}

// WorkspaceEntry describes a single file or directory returned by the
// workspace lister.
type WorkspaceEntry struct {
	Name         string `json:"name"`
	Path         string `json:"path"`
	RelativePath string `json:"relative_path"`
	Type         string `json:"type"` // "file" or "directory"
}

// WorkspaceListing is the response body of the list-files endpoint.
type WorkspaceListing struct {
	WorkspacePath string           `json:"workspace_path"`
	TotalItems    int              `json:"total_items"`
	Items         []WorkspaceEntry `json:"items"`
}

// BashRequest is the decoded body of a POST /bash request. Every field is
// optional; the dispatcher decides which operation to run from whichever
// combination is set.
type BashRequest struct {
	Command       *string `json:"command,omitempty"`
	Session       *int    `json:"session,omitempty"`
	Restart       bool    `json:"restart,omitempty"`
	ListSessions  bool    `json:"list_sessions,omitempty"`
	CheckSession  *int    `json:"check_session,omitempty"`
	TimeoutSecond *float64 `json:"timeout,omitempty"`
}

// FileRequest is the decoded body of a POST /file request: a named
// operation plus a free-form parameter bag. The dispatcher filters this
// bag down to the fields each operation's tagged variant declares.
type FileRequest struct {
	Command string         `json:"command"`
	Params  map[string]any `json:"-"`
}

// UnmarshalJSON decodes Command normally and keeps every other key in
// Params, so the dispatcher can filter it down per operation without the
// caller needing to know the full parameter schema up front.
func (f *FileRequest) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if cmd, ok := raw["command"].(string); ok {
		f.Command = cmd
	}
	delete(raw, "command")
	f.Params = raw
	return nil
}

// FileMode selects how file content is interpreted at the API boundary.
type FileMode string

const (
	ModeText   FileMode = "text"
	ModeBinary FileMode = "binary"
)

// TrimTrailingNewline removes a single trailing "\n" if present, matching
// the sentinel protocol's treatment of the line immediately before it.
func TrimTrailingNewline(s string) string {
	return strings.TrimSuffix(s, "\n")
}
