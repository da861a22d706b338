package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/irhub/irhub/internal/agentapi"
	"github.com/irhub/irhub/internal/apierr"
	"github.com/irhub/irhub/internal/catalog"
	"github.com/irhub/irhub/internal/engine"
)

func newTestRegistry(t *testing.T) (*Registry, *catalog.Store) {
	t.Helper()
	store, err := catalog.Open(":memory:")
	if err != nil {
		t.Fatalf("catalog.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return New(store), store
}

func newLocalAgent() agentapi.Agent {
	return &agentapi.LocalAgent{Engine: &engine.FakeEngine{}, CanSend: true}
}

func TestResolveAgentForRemoteNoAgents(t *testing.T) {
	r, store := newTestRegistry(t)
	ctx := context.Background()
	remote, err := store.CreateRemote(ctx, nil, "TV", nil, nil, nil)
	if err != nil {
		t.Fatalf("CreateRemote: %v", err)
	}

	_, _, err = r.ResolveAgentForRemote(ctx, remote)
	if !errors.Is(err, apierr.NoAgents) {
		t.Fatalf("err = %v, want NoAgents", err)
	}
}

func TestResolveAgentForRemoteAutoBindsSingleAgent(t *testing.T) {
	r, store := newTestRegistry(t)
	ctx := context.Background()
	remote, _ := store.CreateRemote(ctx, nil, "TV", nil, nil, nil)

	if _, err := r.Register(ctx, "agent-1", newLocalAgent(), catalog.UpsertAgentInput{Name: "A1", Transport: "local"}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	agentID, _, err := r.ResolveAgentForRemote(ctx, remote)
	if err != nil {
		t.Fatalf("ResolveAgentForRemote: %v", err)
	}
	if agentID != "agent-1" {
		t.Fatalf("agentID = %q, want agent-1", agentID)
	}

	got, err := store.GetRemote(ctx, nil, remote.ID)
	if err != nil {
		t.Fatalf("GetRemote: %v", err)
	}
	if got.AssignedAgentID == nil || *got.AssignedAgentID != "agent-1" {
		t.Fatalf("AssignedAgentID = %v, want agent-1", got.AssignedAgentID)
	}
}

func TestResolveAgentForRemoteRequiresChoiceWithMultipleAgents(t *testing.T) {
	r, store := newTestRegistry(t)
	ctx := context.Background()
	remote, _ := store.CreateRemote(ctx, nil, "TV", nil, nil, nil)

	r.Register(ctx, "agent-1", newLocalAgent(), catalog.UpsertAgentInput{Name: "A1", Transport: "local"})
	r.Register(ctx, "agent-2", newLocalAgent(), catalog.UpsertAgentInput{Name: "A2", Transport: "mqtt"})

	_, _, err := r.ResolveAgentForRemote(ctx, remote)
	if !errors.Is(err, apierr.AgentRequired) {
		t.Fatalf("err = %v, want AgentRequired", err)
	}
}

func TestResolveAgentForRemoteAssignedButOffline(t *testing.T) {
	r, store := newTestRegistry(t)
	ctx := context.Background()
	remote, _ := store.CreateRemote(ctx, nil, "TV", nil, nil, nil)
	agentID := "agent-1"
	if err := store.SetAssignedAgent(ctx, nil, remote.ID, &agentID); err != nil {
		t.Fatalf("SetAssignedAgent: %v", err)
	}
	remote, _ = store.GetRemote(ctx, nil, remote.ID)

	_, _, err := r.ResolveAgentForRemote(ctx, remote)
	if !errors.Is(err, apierr.AgentOffline) {
		t.Fatalf("err = %v, want AgentOffline", err)
	}
}

func TestUnregisterMarksOffline(t *testing.T) {
	r, store := newTestRegistry(t)
	ctx := context.Background()

	if _, err := r.Register(ctx, "agent-1", newLocalAgent(), catalog.UpsertAgentInput{Name: "A1", Transport: "local"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Unregister(ctx, "agent-1"); err != nil {
		t.Fatalf("Unregister: %v", err)
	}
	if _, ok := r.Live("agent-1"); ok {
		t.Fatalf("agent-1 still live after Unregister")
	}
	got, err := store.GetAgent(ctx, nil, "agent-1")
	if err != nil {
		t.Fatalf("GetAgent: %v", err)
	}
	if got.Status != "offline" {
		t.Fatalf("Status = %q, want offline", got.Status)
	}
}

func TestUpdateAgentReturnsNotFoundForMissing(t *testing.T) {
	r, _ := newTestRegistry(t)
	name := "New Name"
	if err := r.UpdateAgent(context.Background(), "nope", &name, nil, nil); !errors.Is(err, apierr.NotFound) {
		t.Fatalf("err = %v, want NotFound", err)
	}
}
