package hub

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

type pairingOpenRequest struct {
	DurationSeconds int `json:"duration_seconds"`
}

func (s *Server) handlePairingOpen(w http.ResponseWriter, r *http.Request) {
	var req pairingOpenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apiValidation("invalid json body"))
		return
	}
	if err := s.pairing.OpenPairing(req.DurationSeconds); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "open"})
}

func (s *Server) handlePairingAccept(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "id")
	if err := s.pairing.AcceptOffer(r.Context(), agentID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

func (s *Server) handleDeleteAgent(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "id")
	if err := s.pairing.UnpairAndDeleteAgent(r.Context(), agentID); err != nil {
		writeError(w, err)
		return
	}
	s.registry.Drop(agentID)
	w.WriteHeader(http.StatusNoContent)
}
