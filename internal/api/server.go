// Package api owns HTTP route registration and the mapping between
// decoded requests and the session manager / file editor / workspace
// lister, translating component results into HTTP status codes and
// JSON bodies.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ajaxzhan/shellbridge/internal/fileeditor"
	"github.com/ajaxzhan/shellbridge/internal/logging"
	"github.com/ajaxzhan/shellbridge/internal/sessionmgr"
	"github.com/ajaxzhan/shellbridge/internal/workspace"
	"github.com/ajaxzhan/shellbridge/pkg/types"
	"github.com/gorilla/websocket"
)

// Server wires the HTTP surface over the three domain components.
type Server struct {
	mgr      *sessionmgr.Manager
	editor   *fileeditor.Editor
	lister   *workspace.Lister
	upgrader websocket.Upgrader
}

// New builds a Server over the given components.
func New(mgr *sessionmgr.Manager, editor *fileeditor.Editor, lister *workspace.Lister) *Server {
	return &Server{
		mgr:    mgr,
		editor: editor,
		lister: lister,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Routes registers every endpoint on a fresh http.ServeMux.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/bash", s.handleBash)
	mux.HandleFunc("/bash/ws", s.handleBashStream)
	mux.HandleFunc("/file", s.handleFile)
	mux.HandleFunc("/list-files", s.handleListFiles)
	mux.HandleFunc("/status", s.handleStatus)
	return mux
}

// handleRoot serves the service descriptor at the bare root path.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "shellbridge",
		"endpoints": []string{
			"POST /bash", "POST /file", "GET /status",
			"GET /list-files", "WS /bash/ws",
		},
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "shellbridge"})
}

// handleBash implements the five bash-request branches: list_sessions,
// check_session, restart, and (the default) execute, with the
// command-omitted/no-session case falling naturally out of Execute's own
// "Created new session" annotation.
func (s *Server) handleBash(w http.ResponseWriter, r *http.Request) {
	var req types.BashRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeResult(w, types.Result{}, types.NewToolError(types.ErrInvalidArguments, "bash", "", err))
		return
	}

	switch {
	case req.ListSessions:
		writeResult(w, s.mgr.List(), nil)

	case req.CheckSession != nil:
		writeResult(w, s.mgr.Status(*req.CheckSession), nil)

	case req.Restart:
		id := 1
		if req.Session != nil {
			id = *req.Session
		}
		writeResult(w, s.mgr.Restart(id), nil)

	default:
		command := ""
		if req.Command != nil {
			command = *req.Command
		}
		var timeout time.Duration
		if req.TimeoutSecond != nil {
			timeout = time.Duration(*req.TimeoutSecond * float64(time.Second))
		}
		writeResult(w, s.mgr.Execute(r.Context(), command, req.Session, timeout), nil)
	}
}

// handleFile decodes a FileRequest and dispatches it to the editor,
// which itself filters the parameter bag down to what the named
// operation accepts.
func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	var req types.FileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeResult(w, types.Result{}, types.NewToolError(types.ErrInvalidArguments, "file", "", err))
		return
	}
	result, err := s.editor.Dispatch(req.Command, req.Params)
	writeResult(w, result, err)
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	gitIgnore := r.URL.Query().Get("git_ignore") == "true"
	listing, err := s.lister.List(r.Context(), gitIgnore)
	if err != nil {
		status := http.StatusInternalServerError
		if toolErr, ok := err.(*types.ToolError); ok && toolErr.Kind.IsClientError() {
			status = http.StatusBadRequest
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

// writeResult maps a component outcome to an HTTP status and JSON body:
// a *types.ToolError's kind decides 400 vs 500, anything else is a 500.
func writeResult(w http.ResponseWriter, result types.Result, err error) {
	if err != nil {
		status := http.StatusInternalServerError
		message := err.Error()
		if toolErr, ok := err.(*types.ToolError); ok {
			if toolErr.Kind.IsClientError() {
				status = http.StatusBadRequest
			}
			message = toolErr.Error()
		}
		writeJSON(w, status, types.Result{Error: message})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.Error("failed to encode response", logging.Err(err))
	}
}
