package agentstate

import (
	"context"
	"testing"

	"github.com/irhub/irhub/internal/mqtttest"
	"github.com/irhub/irhub/internal/protocol"
	"github.com/rs/zerolog"
)

func TestStartReturnsPromptlyWithNoRetainedState(t *testing.T) {
	broker := mqtttest.NewBroker()
	s := New(broker.NewClient(), "agent-1", nil, zerolog.Nop())

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
}

func TestSetBindingPublishesAndSnapshots(t *testing.T) {
	broker := mqtttest.NewBroker()
	s := New(broker.NewClient(), "agent-1", nil, zerolog.Nop())
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	err := s.SetBinding(protocol.PairingAcceptPayload{
		SessionID: "sess-1", Nonce: "nonce-1", HubID: "hub-1", HubName: "Hub", HubTopic: "ir/hubs/hub-1", AcceptedAt: "now",
	})
	if err != nil {
		t.Fatalf("SetBinding: %v", err)
	}

	snap := s.Snapshot()
	if snap.PairingHubID != "hub-1" || snap.PairingSessionID != "sess-1" {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestClearBindingResetsFields(t *testing.T) {
	broker := mqtttest.NewBroker()
	s := New(broker.NewClient(), "agent-1", nil, zerolog.Nop())
	s.Start(context.Background())
	s.SetBinding(protocol.PairingAcceptPayload{HubID: "hub-1"})

	if err := s.ClearBinding(); err != nil {
		t.Fatalf("ClearBinding: %v", err)
	}
	if s.Snapshot().PairingHubID != "" {
		t.Fatalf("PairingHubID = %q, want empty", s.Snapshot().PairingHubID)
	}
}

func TestSetDebugFiresObserverOnFlip(t *testing.T) {
	broker := mqtttest.NewBroker()
	var seen []bool
	s := New(broker.NewClient(), "agent-1", func(debug bool) { seen = append(seen, debug) }, zerolog.Nop())
	s.Start(context.Background())

	if err := s.SetDebug(true); err != nil {
		t.Fatalf("SetDebug: %v", err)
	}
	if err := s.SetDebug(true); err != nil { // no flip, no second observer call
		t.Fatalf("SetDebug (again): %v", err)
	}
	if err := s.SetDebug(false); err != nil {
		t.Fatalf("SetDebug(false): %v", err)
	}

	if len(seen) != 2 || seen[0] != true || seen[1] != false {
		t.Fatalf("observer calls = %v, want [true false]", seen)
	}
}
