package hub

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

type createRemoteRequest struct {
	Name      string  `json:"name"`
	Icon      *string `json:"icon,omitempty"`
	CarrierHz *int    `json:"carrier_hz,omitempty"`
	DutyCycle *int    `json:"duty_cycle,omitempty"`
}

func (s *Server) handleCreateRemote(w http.ResponseWriter, r *http.Request) {
	var req createRemoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apiValidation("invalid json body"))
		return
	}

	remote, err := s.store.CreateRemote(r.Context(), nil, req.Name, req.Icon, req.CarrierHz, req.DutyCycle)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, remote)
}

func (s *Server) handleListRemotes(w http.ResponseWriter, r *http.Request) {
	remotes, err := s.store.ListRemotes(r.Context(), nil)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, remotes)
}

type createButtonRequest struct {
	Name string  `json:"name"`
	Icon *string `json:"icon,omitempty"`
}

func (s *Server) handleCreateButton(w http.ResponseWriter, r *http.Request) {
	remoteID := chi.URLParam(r, "id")
	var req createButtonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apiValidation("invalid json body"))
		return
	}

	button, err := s.store.CreateButton(r.Context(), nil, remoteID, req.Name, req.Icon)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, button)
}

func (s *Server) handleListButtons(w http.ResponseWriter, r *http.Request) {
	remoteID := chi.URLParam(r, "id")
	buttons, err := s.store.ListButtons(r.Context(), nil, remoteID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, buttons)
}
