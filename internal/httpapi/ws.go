package httpapi

import (
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/antoniostano/recall/internal/protocol"
	"github.com/antoniostano/recall/internal/session"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsReadTimeout  = 120 * time.Second
	wsMaxMessage   = 2 << 20
)

// handleSessionWS runs a chat session over a websocket. Each inbound user_text
// runs one full turn; assistant deltas stream back as they arrive from the
// provider, followed by assistant_done with the complete reply.
func (s *Server) handleSessionWS(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if sessionID == "" {
		respondError(w, http.StatusBadRequest, "missing_session_id", "query parameter session_id is required")
		return
	}
	if _, err := s.sessions.Get(sessionID); err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	if s.metrics != nil {
		s.metrics.SessionEvents.WithLabelValues("ws_connected").Inc()
	}

	conn.SetReadLimit(wsMaxMessage)
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		if msgType != websocket.TextMessage {
			continue
		}

		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			s.writeWS(conn, protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				SessionID: sessionID,
				Code:      "invalid_message",
				Detail:    err.Error(),
			})
			continue
		}

		switch msg := parsed.(type) {
		case protocol.UserText:
			text, err := s.runner.RunTurn(r.Context(), sessionID, msg.Text, func(delta string) error {
				return s.writeWS(conn, protocol.AssistantDelta{
					Type:      protocol.TypeAssistantDelta,
					SessionID: sessionID,
					TextDelta: delta,
				})
			})
			if err != nil {
				code := "turn_failed"
				if errors.Is(err, session.ErrNotFound) {
					code = "session_not_found"
				}
				s.writeWS(conn, protocol.ErrorEvent{
					Type:      protocol.TypeErrorEvent,
					SessionID: sessionID,
					Code:      code,
					Detail:    err.Error(),
				})
				continue
			}
			if err := s.writeWS(conn, protocol.AssistantDone{
				Type:      protocol.TypeAssistantDone,
				SessionID: sessionID,
				Text:      text,
			}); err != nil {
				return
			}

		case protocol.EndSession:
			if err := s.runner.EndSession(r.Context(), sessionID); err != nil {
				s.writeWS(conn, protocol.ErrorEvent{
					Type:      protocol.TypeErrorEvent,
					SessionID: sessionID,
					Code:      "end_failed",
					Detail:    err.Error(),
				})
				continue
			}
			if s.metrics != nil {
				s.metrics.ActiveSessions.Set(float64(s.sessions.ActiveCount()))
				s.metrics.SessionEvents.WithLabelValues("ended").Inc()
			}
			_ = s.writeWS(conn, protocol.SessionEnded{
				Type:      protocol.TypeSessionEnded,
				SessionID: sessionID,
			})
			return
		}
	}
}

func (s *Server) writeWS(conn *websocket.Conn, msg any) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := conn.WriteJSON(msg); err != nil {
		log.Printf("httpapi: websocket write failed: %v", err)
		return err
	}
	return nil
}
