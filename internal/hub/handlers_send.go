package hub

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/irhub/irhub/internal/apierr"
	"github.com/irhub/irhub/internal/protocol"
)

type sendButtonRequest struct {
	Mode   string `json:"mode"` // "press" or "hold"
	HoldMs int    `json:"hold_ms,omitempty"`
}

// handleSendButton implements the send endpoint, routed through the agent
// resolution rule in C6 and the agent's Send operation in C7; the plan and
// repeat-count math lives in internal/sender (C13).
func (s *Server) handleSendButton(w http.ResponseWriter, r *http.Request) {
	buttonID := chi.URLParam(r, "id")
	var req sendButtonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apiValidation("invalid json body"))
		return
	}

	ctx := r.Context()
	button, err := s.store.GetButton(ctx, nil, buttonID)
	if err != nil {
		writeError(w, err)
		return
	}
	sig, ok, err := s.store.GetSignals(ctx, nil, buttonID)
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeError(w, apierr.PressMissing)
		return
	}
	remote, err := s.store.GetRemote(ctx, nil, button.RemoteID)
	if err != nil {
		writeError(w, err)
		return
	}

	_, agent, err := s.registry.ResolveAgentForRemote(ctx, remote)
	if err != nil {
		writeError(w, err)
		return
	}

	sendReq := protocol.SendRequest{
		ButtonID:     button.ID,
		Mode:         req.Mode,
		HoldMs:       req.HoldMs,
		PressInitial: sig.PressInitial,
		CarrierHz:    remote.CarrierHz,
		DutyCycle:    remote.DutyCycle,
	}
	if sig.HoldInitial != nil {
		sendReq.HoldInitial = *sig.HoldInitial
	}
	if sig.HoldRepeat != nil {
		sendReq.HoldRepeat = *sig.HoldRepeat
	}
	if sig.HoldGapUs != nil {
		sendReq.HoldGapUs = *sig.HoldGapUs
	}

	result, err := agent.Send(ctx, sendReq)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
