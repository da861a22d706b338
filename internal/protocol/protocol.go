// Package protocol defines the wire envelopes shared by the hub and agent
// sides of the MQTT command fabric: RPC request/response, pairing messages,
// agent runtime state, and log events.
package protocol

import (
	"encoding/json"
	"fmt"
)

// MQTT command names, used as the trailing segment of
// ir/agents/{agent_id}/cmd/{command}.
const (
	CmdSend            = "send"
	CmdLearnStart      = "learn/start"
	CmdLearnCapture    = "learn/capture"
	CmdLearnStop       = "learn/stop"
	CmdRuntimeDebugGet = "runtime/debug/get"
	CmdRuntimeDebugSet = "runtime/debug/set"
)

// RpcRequest is the envelope published on a command topic.
type RpcRequest struct {
	RequestID   string          `json:"request_id"`
	HubID       string          `json:"hub_id"`
	RequestedAt string          `json:"requested_at"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

// RpcError is the error shape nested in an RpcResponse.
type RpcError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"status_code"`
}

func (e *RpcError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// RpcResponse is the envelope published on a response topic.
type RpcResponse struct {
	RequestID   string          `json:"request_id"`
	OK          bool            `json:"ok"`
	RespondedAt string          `json:"responded_at"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       *RpcError       `json:"error,omitempty"`
}

// CommandTopic returns the hub->agent command topic for a given command.
func CommandTopic(agentID, command string) string {
	return fmt.Sprintf("ir/agents/%s/cmd/%s", agentID, command)
}

// CommandWildcardTopic is the subscription pattern an agent uses to receive
// every command addressed to it.
func CommandWildcardTopic(agentID string) string {
	return fmt.Sprintf("ir/agents/%s/cmd/#", agentID)
}

// ResponseTopic returns the agent->hub response topic for a given request.
func ResponseTopic(hubID, agentID, requestID string) string {
	return fmt.Sprintf("ir/hubs/%s/agents/%s/resp/%s", hubID, agentID, requestID)
}

// ResponseWildcardTopic is the subscription pattern a hub uses to receive
// every response addressed to it.
func ResponseWildcardTopic(hubID string) string {
	return fmt.Sprintf("ir/hubs/%s/agents/+/resp/+", hubID)
}

// StateTopic is the retained topic carrying an agent's runtime state.
func StateTopic(agentID string) string {
	return fmt.Sprintf("ir/agents/%s/state", agentID)
}

// LogsTopic is the topic an agent publishes sanitized log events to.
func LogsTopic(agentID string) string {
	return fmt.Sprintf("ir/agents/%s/logs", agentID)
}

// LogsWildcardTopic is the filter the hub subscribes with to receive log
// events from every MQTT agent.
func LogsWildcardTopic() string {
	return "ir/agents/+/logs"
}

// OnlineTopic is the retained presence topic an agent publishes "1" to
// after connecting and clears via an MQTT last-will message on ungraceful
// disconnect, so the hub can track MQTT agent liveness without polling.
func OnlineTopic(agentID string) string {
	return fmt.Sprintf("ir/agents/%s/online", agentID)
}

// OnlineWildcardTopic is the filter the hub subscribes with to track
// presence for every MQTT agent.
func OnlineWildcardTopic() string {
	return "ir/agents/+/online"
}

// Pairing topics (see spec §4.9 / §6).
const (
	PairingOpenTopic = "ir/pairing/open"
)

func PairingOfferTopic(sessionID, agentUID string) string {
	return fmt.Sprintf("ir/pairing/offer/%s/%s", sessionID, agentUID)
}

func PairingOfferWildcardTopic() string {
	return "ir/pairing/offer/+/+"
}

func PairingAcceptTopic(sessionID, agentUID string) string {
	return fmt.Sprintf("ir/pairing/accept/%s/%s", sessionID, agentUID)
}

func PairingAcceptWildcardTopic(agentUID string) string {
	return fmt.Sprintf("ir/pairing/accept/+/%s", agentUID)
}

func PairingUnpairTopic(agentUID string) string {
	return fmt.Sprintf("ir/pairing/unpair/%s", agentUID)
}

func PairingUnpairWildcardTopic() string {
	return "ir/pairing/unpair/+"
}

func PairingUnpairAckTopic(agentUID string) string {
	return fmt.Sprintf("ir/pairing/unpair_ack/%s", agentUID)
}

func PairingUnpairAckWildcardTopic() string {
	return "ir/pairing/unpair_ack/+"
}

// PairingOpenPayload is published retained on PairingOpenTopic. An empty
// message (zero value, marshaled as "{}") closes the window.
type PairingOpenPayload struct {
	SessionID string `json:"session_id,omitempty"`
	Nonce     string `json:"nonce,omitempty"`
	HubID     string `json:"hub_id,omitempty"`
	HubName   string `json:"hub_name,omitempty"`
	HubTopic  string `json:"hub_topic,omitempty"`
	SwVersion string `json:"sw_version,omitempty"`
	ExpiresAt string `json:"expires_at,omitempty"`
}

// PairingOfferPayload is published by an agent offering itself.
type PairingOfferPayload struct {
	SessionID    string `json:"session_id"`
	Nonce        string `json:"nonce"`
	AgentUID     string `json:"agent_uid"`
	ReadableName string `json:"readable_name"`
	BaseTopic    string `json:"base_topic"`
	SwVersion    string `json:"sw_version"`
	CanSend      bool   `json:"can_send"`
	CanLearn     bool   `json:"can_learn"`
	OfferedAt    string `json:"offered_at"`
}

// PairingAcceptPayload is published by the hub accepting an offer.
type PairingAcceptPayload struct {
	SessionID  string `json:"session_id"`
	Nonce      string `json:"nonce"`
	AgentUID   string `json:"agent_uid"`
	HubID      string `json:"hub_id"`
	HubName    string `json:"hub_name"`
	HubTopic   string `json:"hub_topic"`
	SwVersion  string `json:"sw_version"`
	AcceptedAt string `json:"accepted_at"`
}

// PairingUnpairPayload is the retained unpair command.
type PairingUnpairPayload struct {
	CommandID   string `json:"command_id"`
	AgentUID    string `json:"agent_uid"`
	HubID       string `json:"hub_id"`
	HubTopic    string `json:"hub_topic"`
	RequestedAt string `json:"requested_at"`
}

// PairingUnpairAckPayload acknowledges an unpair command.
type PairingUnpairAckPayload struct {
	AgentUID  string `json:"agent_uid"`
	CommandID string `json:"command_id"`
	AckedAt   string `json:"acked_at"`
}

// AgentState is the retained payload on StateTopic. PairingHubID and Debug
// are the two fields every consumer relies on; the rest record enough of
// the pairing handshake to rebuild the binding after a restart.
type AgentState struct {
	PairingHubID      string `json:"pairing_hub_id"`
	Debug             bool   `json:"debug"`
	PairingSessionID  string `json:"pairing_session_id,omitempty"`
	PairingNonce      string `json:"pairing_nonce,omitempty"`
	PairingHubName    string `json:"pairing_hub_name,omitempty"`
	PairingHubTopic   string `json:"pairing_hub_topic,omitempty"`
	PairingAcceptedAt string `json:"pairing_accepted_at,omitempty"`
}

// LogLevel enumerates the dispatch levels from spec §4.11.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// rank gives a total order to log levels for minimum-level comparisons.
func (l LogLevel) rank() int {
	switch l {
	case LogDebug:
		return 0
	case LogInfo:
		return 1
	case LogWarn:
		return 2
	case LogError:
		return 3
	default:
		return 1
	}
}

// AtLeast reports whether l is at least as severe as min.
func (l LogLevel) AtLeast(min LogLevel) bool {
	return l.rank() >= min.rank()
}

// LogEvent is a sanitized structured event published on LogsTopic, and the
// shape stored in the hub's per-agent ring buffer.
type LogEvent struct {
	Timestamp string         `json:"timestamp"`
	Level     LogLevel       `json:"level"`
	Category  string         `json:"category"`
	Message   string         `json:"message"`
	RequestID string         `json:"request_id,omitempty"`
	ErrorCode string         `json:"error_code,omitempty"`
	Meta      map[string]any `json:"meta,omitempty"`
}

// Payloads for the RPC command set (C8), carried as RpcRequest.Payload /
// RpcResponse.Result.

type SendRequest struct {
	ButtonID     string `json:"button_id"`
	Mode         string `json:"mode"` // "press" or "hold"
	HoldMs       int    `json:"hold_ms,omitempty"`
	PressInitial string `json:"press_initial"`
	HoldInitial  string `json:"hold_initial,omitempty"`
	HoldRepeat   string `json:"hold_repeat,omitempty"`
	HoldGapUs    int    `json:"hold_gap_us,omitempty"`
	CarrierHz    *int   `json:"carrier_hz,omitempty"`
	DutyCycle    *int   `json:"duty_cycle,omitempty"`
}

type SendResult struct {
	Mode      string `json:"mode"`
	Repeats   int    `json:"repeats"`
	CarrierHz *int   `json:"carrier_hz,omitempty"`
	DutyCycle *int   `json:"duty_cycle,omitempty"`
	GapUs     *int   `json:"gap_us,omitempty"`
	Stdout    string `json:"stdout"`
	Stderr    string `json:"stderr"`
}

type LearnStartRequest struct {
	Session string `json:"session"`
}

type LearnStopRequest struct {
	Session string `json:"session"`
}

type LearnCaptureRequest struct {
	TimeoutMs int    `json:"timeout_ms"`
	Mode      string `json:"mode"` // "press" or "hold"
	Wideband  bool   `json:"wideband,omitempty"`
}

type LearnCaptureResult struct {
	Raw     string `json:"raw"`
	TailGap *int   `json:"tail_gap_us,omitempty"`
}

type StatusResult struct {
	Online        bool `json:"online"`
	LearningActive bool `json:"learning_active"`
	CanSend       bool `json:"can_send"`
	CanLearn      bool `json:"can_learn"`
}

type DebugGetResult struct {
	Debug bool `json:"debug"`
}

type DebugSetRequest struct {
	Debug bool `json:"debug"`
}
