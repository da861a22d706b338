// Package rpc implements the hub<->agent command fabric (spec component
// C8): a request/response protocol layered over plain MQTT publish/
// subscribe, correlated by request id rather than by connection state.
package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/irhub/irhub/internal/apierr"
	"github.com/irhub/irhub/internal/protocol"
)

// AgentRoutingError wraps an error response relayed from the agent side.
type AgentRoutingError struct {
	Code       string
	Message    string
	StatusCode int
}

func (e *AgentRoutingError) Error() string {
	return fmt.Sprintf("rpc: agent error %s: %s", e.Code, e.Message)
}

type waiter struct {
	agentID string
	done    chan struct{}
	result  protocol.RpcResponse
	got     bool
}

// Client is the hub-side RPC caller: one per hub process, shared across all
// agents it addresses.
type Client struct {
	mqttClient mqtt.Client
	hubID      string
	log        zerolog.Logger

	mu      sync.Mutex
	waiters map[string]*waiter
}

func NewClient(mqttClient mqtt.Client, hubID string, log zerolog.Logger) *Client {
	return &Client{
		mqttClient: mqttClient,
		hubID:      hubID,
		log:        log.With().Str("component", "rpc_client").Logger(),
		waiters:    make(map[string]*waiter),
	}
}

// Start subscribes to every response addressed to this hub.
func (c *Client) Start() error {
	topic := protocol.ResponseWildcardTopic(c.hubID)
	token := c.mqttClient.Subscribe(topic, 1, c.onResponse)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("rpc: subscribe %s: %w", topic, err)
	}
	return nil
}

// Call publishes a command and blocks until a matching response arrives, the
// timeout elapses, or ctx is cancelled. timeout is floored at 0.5s.
func (c *Client) Call(ctx context.Context, agentID, command string, payload any, timeout time.Duration) (json.RawMessage, error) {
	if !c.mqttClient.IsConnected() {
		return nil, apierr.MqttNotConnected
	}
	if timeout < 500*time.Millisecond {
		timeout = 500 * time.Millisecond
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("rpc: marshal payload: %w", err)
	}

	requestID := uuid.New().String()
	req := protocol.RpcRequest{
		RequestID:   requestID,
		HubID:       c.hubID,
		RequestedAt: time.Now().UTC().Format(time.RFC3339Nano),
		Payload:     payloadBytes,
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("rpc: marshal request: %w", err)
	}

	w := &waiter{agentID: agentID, done: make(chan struct{})}
	c.mu.Lock()
	c.waiters[requestID] = w
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.waiters, requestID)
		c.mu.Unlock()
	}()

	topic := protocol.CommandTopic(agentID, command)
	token := c.mqttClient.Publish(topic, 1, false, body)
	if !token.WaitTimeout(timeout) || token.Error() != nil {
		c.log.Warn().Str("agent_id", agentID).Str("command", command).Err(token.Error()).Msg("publish failed")
		return nil, apierr.MqttPublishFailed
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(timeout):
		return nil, apierr.AgentTimeout
	case <-w.done:
	}

	if !w.got {
		return nil, apierr.AgentTimeout
	}
	if !w.result.OK {
		if w.result.Error != nil {
			return nil, &AgentRoutingError{Code: w.result.Error.Code, Message: w.result.Error.Message, StatusCode: w.result.Error.StatusCode}
		}
		return nil, &AgentRoutingError{Code: "unknown_error", Message: "agent reported failure with no detail", StatusCode: 500}
	}
	return w.result.Result, nil
}

func (c *Client) onResponse(_ mqtt.Client, msg mqtt.Message) {
	agentID, requestID, ok := parseResponseTopic(msg.Topic())
	if !ok {
		return
	}

	var resp protocol.RpcResponse
	if err := json.Unmarshal(msg.Payload(), &resp); err != nil {
		c.log.Warn().Str("topic", msg.Topic()).Err(err).Msg("malformed response payload")
		return
	}
	if resp.RequestID != "" && resp.RequestID != requestID {
		c.log.Warn().Str("topic", msg.Topic()).Msg("response request_id mismatch, dropping")
		return
	}

	c.mu.Lock()
	w, ok := c.waiters[requestID]
	c.mu.Unlock()
	if !ok {
		return
	}
	if w.agentID != agentID {
		c.log.Warn().Str("topic", msg.Topic()).Msg("response agent_id mismatch, dropping")
		return
	}

	w.result = resp
	w.got = true
	close(w.done)
}

// Stop releases every pending waiter; callers observe a timeout.
func (c *Client) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, w := range c.waiters {
		close(w.done)
		delete(c.waiters, id)
	}
}

// parseResponseTopic extracts {agent_id} and {request_id} from
// ir/hubs/{hub}/agents/{agent_id}/resp/{request_id}.
func parseResponseTopic(topic string) (agentID, requestID string, ok bool) {
	const prefix = "ir/hubs/"
	if len(topic) <= len(prefix) {
		return "", "", false
	}
	rest := topic[len(prefix):]
	parts := splitN(rest, '/', 5)
	if len(parts) != 5 || parts[1] != "agents" || parts[3] != "resp" {
		return "", "", false
	}
	return parts[2], parts[4], true
}

func splitN(s string, sep byte, n int) []string {
	out := make([]string, 0, n)
	start := 0
	for i := 0; i < len(s) && len(out) < n-1; i++ {
		if s[i] == sep {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}
