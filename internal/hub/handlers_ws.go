package hub

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// handleWSStatus streams learning-session status broadcasts (C15) to a
// connected browser, sending the current snapshot immediately on connect.
func (s *Server) handleWSStatus(w http.ResponseWriter, r *http.Request) {
	conn, err := s.wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("ws status upgrade failed")
		return
	}

	sub := s.broadcaster.Subscribe(conn)
	if data, err := json.Marshal(s.learning.Status()); err == nil {
		sub.SafeSend(data)
	}

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	s.broadcaster.Unsubscribe(sub)
}

// handleWSLogs streams one agent's sanitized log events (C11) to a
// connected browser, replaying its buffered history on connect.
func (s *Server) handleWSLogs(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")

	conn, err := s.wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("ws logs upgrade failed")
		return
	}

	client := s.logs.Subscribe(agentID, conn)
	for _, ev := range s.logs.Snapshot(agentID, 100) {
		if data, err := json.Marshal(ev); err == nil {
			client.SafeSend(data)
		}
	}

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	s.logs.Unsubscribe(agentID, client)
}
