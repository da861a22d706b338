// Package registry tracks which agents are currently live and resolves
// which one should service a given remote (spec component C6).
package registry

import (
	"context"
	"errors"
	"sync"

	"github.com/irhub/irhub/internal/agentapi"
	"github.com/irhub/irhub/internal/apierr"
	"github.com/irhub/irhub/internal/catalog"
)

// Registry holds the live agent objects, guarded by a mutex, plus the
// persisted catalog store they are recorded in.
type Registry struct {
	store *catalog.Store

	mu        sync.RWMutex
	live      map[string]agentapi.Agent
	transport map[string]string
}

func New(store *catalog.Store) *Registry {
	return &Registry{
		store:     store,
		live:      make(map[string]agentapi.Agent),
		transport: make(map[string]string),
	}
}

// Register records a live agent object and marks its persisted row online.
// State mutation happens under lock; the database write happens outside it,
// mirroring the register/unregister split used throughout the hub.
func (r *Registry) Register(ctx context.Context, agentID string, live agentapi.Agent, in catalog.UpsertAgentInput) (catalog.Agent, error) {
	r.mu.Lock()
	r.live[agentID] = live
	r.transport[agentID] = in.Transport
	r.mu.Unlock()

	in.AgentID = agentID
	in.Status = "online"
	return r.store.UpsertAgent(ctx, nil, in)
}

// Unregister removes the live agent object and marks its persisted row
// offline.
func (r *Registry) Unregister(ctx context.Context, agentID string) error {
	r.mu.Lock()
	delete(r.live, agentID)
	delete(r.transport, agentID)
	r.mu.Unlock()

	return r.markOffline(ctx, agentID)
}

// IsLiveMqttAgent reports whether agentID is currently registered over the
// MQTT transport, the only transport whose log events arrive over the wire
// rather than through a direct Sink.Append call (internal/logs.AgentLookup).
func (r *Registry) IsLiveMqttAgent(agentID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.transport[agentID] == "mqtt"
}

// Drop removes the live agent object without touching the persisted row,
// for callers that have already deleted or otherwise retired it.
func (r *Registry) Drop(agentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.live, agentID)
	delete(r.transport, agentID)
}

func (r *Registry) markOffline(ctx context.Context, agentID string) error {
	agent, err := r.store.GetAgent(ctx, nil, agentID)
	if err != nil {
		return err
	}
	_, err = r.store.UpsertAgent(ctx, nil, catalog.UpsertAgentInput{
		AgentID:    agentID,
		Name:       agent.Name,
		Transport:  agent.Transport,
		Status:     "offline",
		CanSend:    agent.CanSend,
		CanLearn:   agent.CanLearn,
		SwVersion:  agent.SwVersion,
		AgentTopic: agent.AgentTopic,
	})
	return err
}

// Live returns the live object for agentID, or (nil, false) if it isn't
// currently registered.
func (r *Registry) Live(agentID string) (agentapi.Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.live[agentID]
	return a, ok
}

// LiveCount returns how many agents are currently registered.
func (r *Registry) LiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.live)
}

// liveIDs returns the agent ids currently registered, in no particular
// order. Used only when exactly one is needed or all must be enumerated.
func (r *Registry) liveIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.live))
	for id := range r.live {
		ids = append(ids, id)
	}
	return ids
}

// ResolveAgentForRemote implements the four-branch routing rule from §4.6.
func (r *Registry) ResolveAgentForRemote(ctx context.Context, remote catalog.Remote) (string, agentapi.Agent, error) {
	if remote.AssignedAgentID != nil && *remote.AssignedAgentID != "" {
		agent, ok := r.Live(*remote.AssignedAgentID)
		if !ok {
			return "", nil, apierr.AgentOffline
		}
		return *remote.AssignedAgentID, agent, nil
	}

	ids := r.liveIDs()
	switch len(ids) {
	case 0:
		return "", nil, apierr.NoAgents
	case 1:
		agentID := ids[0]
		agent, ok := r.Live(agentID)
		if !ok {
			return "", nil, apierr.NoAgents
		}
		if err := r.store.SetAssignedAgent(ctx, nil, remote.ID, &agentID); err != nil {
			return "", nil, err
		}
		return agentID, agent, nil
	default:
		return "", nil, apierr.AgentRequired
	}
}

// UpdateAgent patches a subset of {name, icon, configuration_url}.
func (r *Registry) UpdateAgent(ctx context.Context, agentID string, name, icon, configurationURL *string) error {
	err := r.store.UpdateAgentFields(ctx, nil, agentID, name, icon, configurationURL)
	if errors.Is(err, catalog.ErrUnknownAgent) {
		return apierr.NotFound
	}
	return err
}
