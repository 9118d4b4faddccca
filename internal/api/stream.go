package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/ajaxzhan/shellbridge/internal/logging"
	"github.com/ajaxzhan/shellbridge/internal/shellsession"
	"github.com/gorilla/websocket"
)

// handleBashStream implements the dedicated-session-per-connection
// streaming protocol: on accept, allocate a fresh session id and enter a
// receive loop where each non-empty text frame is submitted as a
// command, with chunks forwarded back as outbound frames.
func (s *Server) handleBashStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn("websocket upgrade failed", logging.Err(err))
		return
	}
	defer conn.Close()

	sess, err := s.mgr.AllocateStreamSession()
	if err != nil {
		conn.WriteMessage(websocket.TextMessage, []byte("ERROR: "+err.Error()+"\n"))
		return
	}
	defer s.mgr.Remove(sess.ID)

	logging.Info("streaming session opened", logging.Int("session_id", sess.ID))

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			logging.Debug("streaming session connection closed", logging.Int("session_id", sess.ID))
			return
		}

		command := strings.TrimSpace(string(frame))
		if command == "" {
			continue
		}

		if err := s.runStreamCommand(r.Context(), conn, sess, command); err != nil {
			conn.WriteMessage(websocket.TextMessage, []byte("ERROR: "+err.Error()+"\n"))
		}
	}
}

// runStreamCommand submits command to the session's Stream and forwards
// every chunk as an outbound text frame until the channel closes.
func (s *Server) runStreamCommand(ctx context.Context, conn *websocket.Conn, sess *shellsession.Session, command string) error {
	chunks, err := sess.Stream(ctx, command)
	if err != nil {
		return err
	}
	for chunk := range chunks {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(chunk.Data)); err != nil {
			return err
		}
	}
	return nil
}
