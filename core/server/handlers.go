package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-sense/core/broadcast"
)

const systemName = "MASTER SYSTEM"

type healthResponse struct {
	Status string `json:"status"`
	System string `json:"system"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("failed to write response", "error", err)
	}
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "online", System: systemName})
}

func (s *Server) schema(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, broadcast.Schema())
}

func (s *Server) serveWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already answered the request.
		logger.WarnContext(r.Context(), "websocket upgrade failed", "error", err)
		return
	}

	id := s.hub.Add(conn)
	defer s.hub.Remove(id)

	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.WarnContext(r.Context(), "websocket read failed", "peer", id, "error", err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		s.handleControl(r, id, message)
	}
}

func (s *Server) handleControl(r *http.Request, id string, message []byte) {
	if strings.TrimSpace(string(message)) == "ping" {
		s.reply(r, id, broadcast.Control{Type: "pong"})
		return
	}

	var control broadcast.Control
	if err := json.Unmarshal(message, &control); err != nil {
		logger.DebugContext(r.Context(), "ignoring unknown client message", "peer", id)
		return
	}

	switch control.Type {
	case "ping":
		s.reply(r, id, broadcast.Control{Type: "pong"})
	case "command":
		text := strings.TrimSpace(control.Text)
		if text == "" || s.commands == nil {
			return
		}
		if err := s.commands.SendCommand(text); err != nil {
			logger.WarnContext(r.Context(), "dropped client command", "peer", id, "error", err)
			s.reply(r, id, broadcast.Control{Type: "error", Text: err.Error()})
		}
	default:
		logger.DebugContext(r.Context(), "ignoring unknown control type", "peer", id, "type", control.Type)
	}
}

func (s *Server) reply(r *http.Request, id string, control broadcast.Control) {
	if err := s.hub.Send(id, control); err != nil {
		logger.DebugContext(r.Context(), "failed to reply to client", "peer", id, "error", err)
	}
}
