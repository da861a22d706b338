// Package apierr is the shared error envelope used everywhere a component
// needs to surface a stable, machine-readable failure: HTTP responses,
// agent-side RPC error classification, and MQTT-relayed hub errors (spec
// §7 — "every error response carries {code, message}").
package apierr

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Error is a stable machine-readable code plus a human-readable message,
// tagged with the HTTP status it maps to.
type Error struct {
	Code    string
	Message string
	Status  int
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func New(status int, code, message string) *Error {
	return &Error{Code: code, Message: message, Status: status}
}

func (e *Error) WithMessage(message string) *Error {
	return &Error{Code: e.Code, Message: message, Status: e.Status}
}

// Canonical codes from spec §4.6, §4.8, §4.9, §4.12, §4.13, §7.
var (
	AgentRequired             = New(http.StatusBadRequest, "agent_required", "multiple agents are active; specify agent_id")
	NoAgents                  = New(http.StatusServiceUnavailable, "no_agents", "no agents are currently online")
	AgentOffline              = New(http.StatusServiceUnavailable, "agent_offline", "the resolved agent is not online")
	AgentTimeout              = New(http.StatusGatewayTimeout, "agent_timeout", "the agent did not respond in time")
	MqttNotConnected          = New(http.StatusServiceUnavailable, "mqtt_not_connected", "not connected to the MQTT broker")
	MqttPublishFailed         = New(http.StatusServiceUnavailable, "mqtt_publish_failed", "failed to publish to the MQTT broker")
	LearningActive            = New(http.StatusConflict, "learning_active", "a learning session is in progress")
	SessionAlreadyRunning     = New(http.StatusConflict, "session_already_running", "a learning session is already running")
	SignalExists              = New(http.StatusConflict, "signal_exists", "a signal already exists for this button")
	PressMissing              = New(http.StatusBadRequest, "press_missing", "a press signal must be captured before a hold")
	NeedMoreFrames            = New(http.StatusBadRequest, "need_more_frames", "not enough frames were captured to extract a hold repeat")
	UnpairAckTimeout          = New(http.StatusConflict, "unpair_ack_timeout", "agent did not acknowledge unpair in time")
	MqttPasswordDecryptFailed = New(http.StatusBadRequest, "mqtt_password_decrypt_failed", "the stored MQTT password could not be decrypted")
	MasterKeyMissing          = New(http.StatusBadRequest, "master_key_missing", "no settings master key is configured")
	Validation                = New(http.StatusBadRequest, "validation_error", "invalid request")
	NotFound                  = New(http.StatusNotFound, "not_found", "resource not found")
)

// WriteJSON writes err as {"code":..., "message":...} with its status code.
// Non-*Error values are mapped to a generic 500 so a bug never leaks
// internals to the client.
func WriteJSON(w http.ResponseWriter, err error) {
	apiErr, ok := err.(*Error)
	if !ok {
		apiErr = New(http.StatusInternalServerError, "internal_error", "an unexpected error occurred")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apiErr.Status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"code":    apiErr.Code,
		"message": apiErr.Message,
	})
}
