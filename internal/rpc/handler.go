package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/irhub/irhub/internal/engine"
	"github.com/irhub/irhub/internal/protocol"
)

// ErrValueError classifies a bad-request-shaped failure (maps to HTTP 400).
var ErrValueError = errors.New("rpc: invalid request")

// ErrRuntimeError classifies a conflict-shaped failure (maps to HTTP 409).
var ErrRuntimeError = errors.New("rpc: runtime conflict")

// Dispatcher resolves one command to a result, or an error classified by
// errors.Is against ErrValueError / ErrRuntimeError / context.DeadlineExceeded.
type Dispatcher func(ctx context.Context, command string, payload json.RawMessage) (any, error)

// Handler is the agent-side mirror of Client: it subscribes to its own
// command topic, dispatches locally, and publishes a response envelope.
type Handler struct {
	mqttClient mqtt.Client
	agentUID   string
	dispatch   Dispatcher
	boundHubID func() string
	log        zerolog.Logger
}

func NewHandler(mqttClient mqtt.Client, agentUID string, boundHubID func() string, dispatch Dispatcher, log zerolog.Logger) *Handler {
	return &Handler{
		mqttClient: mqttClient,
		agentUID:   agentUID,
		dispatch:   dispatch,
		boundHubID: boundHubID,
		log:        log.With().Str("component", "rpc_handler").Logger(),
	}
}

// Start subscribes to every command addressed to this agent.
func (h *Handler) Start() error {
	topic := protocol.CommandWildcardTopic(h.agentUID)
	token := h.mqttClient.Subscribe(topic, 1, h.onCommand)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("rpc: subscribe %s: %w", topic, err)
	}
	return nil
}

func (h *Handler) onCommand(_ mqtt.Client, msg mqtt.Message) {
	command, ok := commandFromTopic(msg.Topic(), h.agentUID)
	if !ok {
		return
	}

	var req protocol.RpcRequest
	if err := json.Unmarshal(msg.Payload(), &req); err != nil {
		h.log.Warn().Str("topic", msg.Topic()).Err(err).Msg("malformed request payload")
		return
	}

	if bound := h.boundHubID(); bound != "" && req.HubID != bound {
		h.log.Debug().Str("hub_id", req.HubID).Str("bound_hub_id", bound).Msg("dropping command from unbound hub")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	result, dispatchErr := h.dispatch(ctx, command, req.Payload)
	resp := protocol.RpcResponse{
		RequestID:   req.RequestID,
		RespondedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	if dispatchErr != nil {
		resp.OK = false
		resp.Error = classifyError(dispatchErr)
	} else {
		resp.OK = true
		resultBytes, err := json.Marshal(result)
		if err != nil {
			resp.OK = false
			resp.Error = &protocol.RpcError{Code: "internal_error", Message: err.Error(), StatusCode: 500}
		} else {
			resp.Result = resultBytes
		}
	}

	body, err := json.Marshal(resp)
	if err != nil {
		h.log.Error().Err(err).Msg("marshal response")
		return
	}
	topic := protocol.ResponseTopic(req.HubID, h.agentUID, req.RequestID)
	token := h.mqttClient.Publish(topic, 1, false, body)
	token.Wait()
	if err := token.Error(); err != nil {
		h.log.Warn().Str("topic", topic).Err(err).Msg("publish response failed")
	}
}

func classifyError(err error) *protocol.RpcError {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, engine.ErrTimeout):
		return &protocol.RpcError{Code: "timeout", Message: err.Error(), StatusCode: 408}
	case errors.Is(err, ErrValueError):
		return &protocol.RpcError{Code: "value_error", Message: err.Error(), StatusCode: 400}
	case errors.Is(err, ErrRuntimeError):
		return &protocol.RpcError{Code: "runtime_error", Message: err.Error(), StatusCode: 409}
	default:
		return &protocol.RpcError{Code: "internal_error", Message: err.Error(), StatusCode: 500}
	}
}

// commandFromTopic extracts {command} from ir/agents/{agent_uid}/cmd/{command}.
func commandFromTopic(topic, agentUID string) (string, bool) {
	prefix := fmt.Sprintf("ir/agents/%s/cmd/", agentUID)
	if len(topic) <= len(prefix) || topic[:len(prefix)] != prefix {
		return "", false
	}
	return topic[len(prefix):], true
}
