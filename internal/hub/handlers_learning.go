package hub

import (
	"encoding/json"
	"net/http"

	"github.com/irhub/irhub/internal/learning"
)

type learnStartRequest struct {
	RemoteID string `json:"remote_id"`
	Extend   bool   `json:"extend,omitempty"`
}

func (s *Server) handleLearnStart(w http.ResponseWriter, r *http.Request) {
	var req learnStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apiValidation("invalid json body"))
		return
	}
	if err := s.learning.Start(r.Context(), req.RemoteID, req.Extend); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.learning.Status())
}

func (s *Server) handleLearnCapture(w http.ResponseWriter, r *http.Request) {
	var req learning.CaptureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apiValidation("invalid json body"))
		return
	}
	result, err := s.learning.Capture(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleLearnStop(w http.ResponseWriter, r *http.Request) {
	s.learning.Stop(r.Context())
	writeJSON(w, http.StatusOK, s.learning.Status())
}
