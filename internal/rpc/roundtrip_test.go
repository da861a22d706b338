package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/irhub/irhub/internal/mqtttest"
	"github.com/irhub/irhub/internal/protocol"
)

type echoPayload struct {
	Value string `json:"value"`
}

func TestClientHandlerRoundTrip(t *testing.T) {
	broker := mqtttest.NewBroker()
	hubClient := broker.NewClient()
	agentClient := broker.NewClient()

	client := NewClient(hubClient, "hub-1", zerolog.Nop())
	if err := client.Start(); err != nil {
		t.Fatalf("client.Start: %v", err)
	}

	dispatch := func(ctx context.Context, command string, payload json.RawMessage) (any, error) {
		var in echoPayload
		if err := json.Unmarshal(payload, &in); err != nil {
			return nil, err
		}
		return echoPayload{Value: "echo:" + in.Value}, nil
	}
	boundHub := func() string { return "hub-1" }
	handler := NewHandler(agentClient, "agent-1", boundHub, dispatch, zerolog.Nop())
	if err := handler.Start(); err != nil {
		t.Fatalf("handler.Start: %v", err)
	}

	result, err := client.Call(context.Background(), "agent-1", "send", echoPayload{Value: "hi"}, 2*time.Second)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	var out echoPayload
	if err := json.Unmarshal(result, &out); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if out.Value != "echo:hi" {
		t.Fatalf("Value = %q, want echo:hi", out.Value)
	}
}

func TestClientCallFailsWhenDisconnected(t *testing.T) {
	broker := mqtttest.NewBroker()
	c := broker.NewClient()
	c.Disconnect(0)
	client := NewClient(c, "hub-1", zerolog.Nop())

	_, err := client.Call(context.Background(), "agent-1", "send", echoPayload{}, time.Second)
	if err == nil {
		t.Fatalf("expected error when mqtt client not connected")
	}
}

func TestHandlerDropsCommandFromWrongHub(t *testing.T) {
	broker := mqtttest.NewBroker()
	hubClient := broker.NewClient()
	agentClient := broker.NewClient()

	dispatchCalled := false
	dispatch := func(ctx context.Context, command string, payload json.RawMessage) (any, error) {
		dispatchCalled = true
		return nil, nil
	}
	handler := NewHandler(agentClient, "agent-1", func() string { return "hub-expected" }, dispatch, zerolog.Nop())
	if err := handler.Start(); err != nil {
		t.Fatalf("handler.Start: %v", err)
	}

	client := NewClient(hubClient, "hub-other", zerolog.Nop())
	if err := client.Start(); err != nil {
		t.Fatalf("client.Start: %v", err)
	}
	client.Call(context.Background(), "agent-1", "send", echoPayload{}, 300*time.Millisecond)

	if dispatchCalled {
		t.Fatalf("dispatch was called for a command from an unbound hub")
	}
}

func TestHandlerClassifiesDispatchErrorsAsRpcErrors(t *testing.T) {
	broker := mqtttest.NewBroker()
	hubClient := broker.NewClient()
	agentClient := broker.NewClient()

	dispatch := func(ctx context.Context, command string, payload json.RawMessage) (any, error) {
		return nil, errors.Join(ErrValueError, errors.New("bad mode"))
	}
	handler := NewHandler(agentClient, "agent-1", func() string { return "hub-1" }, dispatch, zerolog.Nop())
	handler.Start()

	client := NewClient(hubClient, "hub-1", zerolog.Nop())
	client.Start()

	_, err := client.Call(context.Background(), "agent-1", "send", echoPayload{}, time.Second)
	var routingErr *AgentRoutingError
	if !errors.As(err, &routingErr) {
		t.Fatalf("err = %v, want *AgentRoutingError", err)
	}
	if routingErr.Code != "value_error" {
		t.Fatalf("Code = %q, want value_error", routingErr.Code)
	}
}
