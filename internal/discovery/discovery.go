// Package discovery tracks MQTT agent liveness from a retained presence
// topic plus a last-will message, registering and unregistering live agent
// objects in internal/registry as agents come and go, the way
// internal/logs.HubSink tracks log topics for the same wildcard fan-out.
package discovery

import (
	"context"
	"fmt"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/irhub/irhub/internal/agentapi"
	"github.com/irhub/irhub/internal/catalog"
	"github.com/irhub/irhub/internal/protocol"
	"github.com/irhub/irhub/internal/registry"
	"github.com/irhub/irhub/internal/rpc"
)

// Tracker subscribes to every agent's presence topic and keeps the registry
// in sync with who is actually connected.
type Tracker struct {
	mqttClient mqtt.Client
	store      *catalog.Store
	registry   *registry.Registry
	rpcClient  *rpc.Client
	log        zerolog.Logger
}

func New(mqttClient mqtt.Client, store *catalog.Store, reg *registry.Registry, rpcClient *rpc.Client, log zerolog.Logger) *Tracker {
	return &Tracker{
		mqttClient: mqttClient,
		store:      store,
		registry:   reg,
		rpcClient:  rpcClient,
		log:        log.With().Str("component", "discovery").Logger(),
	}
}

// Start subscribes to the presence wildcard. Call once, after the pairing
// manager and RPC client have subscribed.
func (t *Tracker) Start() error {
	topic := protocol.OnlineWildcardTopic()
	token := t.mqttClient.Subscribe(topic, 1, t.onMessage)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("discovery: subscribe %s: %w", topic, err)
	}
	return nil
}

func (t *Tracker) onMessage(_ mqtt.Client, msg mqtt.Message) {
	agentID, ok := agentIDFromOnlineTopic(msg.Topic())
	if !ok {
		return
	}
	ctx := context.Background()

	if len(msg.Payload()) == 0 {
		if err := t.registry.Unregister(ctx, agentID); err != nil {
			t.log.Warn().Err(err).Str("agent_id", agentID).Msg("mark agent offline")
		}
		return
	}

	agent, err := t.store.GetAgent(ctx, nil, agentID)
	if err != nil {
		t.log.Warn().Err(err).Str("agent_id", agentID).Msg("unknown agent announced presence")
		return
	}
	if agent.Pending {
		// Offered but not yet accepted; not addressable until paired.
		return
	}

	live := &agentapi.MqttAgent{
		Client:   t.rpcClient,
		AgentID:  agentID,
		CanSend:  agent.CanSend,
		CanLearn: agent.CanLearn,
	}
	_, err = t.registry.Register(ctx, agentID, live, catalog.UpsertAgentInput{
		Name:             agent.Name,
		Icon:             agent.Icon,
		Transport:        "mqtt",
		CanSend:          agent.CanSend,
		CanLearn:         agent.CanLearn,
		SwVersion:        agent.SwVersion,
		AgentTopic:       agent.AgentTopic,
		ConfigurationURL: agent.ConfigurationURL,
	})
	if err != nil {
		t.log.Warn().Err(err).Str("agent_id", agentID).Msg("register agent on presence")
	}
}

func agentIDFromOnlineTopic(topic string) (string, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[0] != "ir" || parts[1] != "agents" || parts[3] != "online" {
		return "", false
	}
	return parts[2], true
}
