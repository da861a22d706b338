// Package agentstate implements the agent-side runtime state store (spec
// component C10): a retained MQTT topic mirroring the agent's pairing
// binding and debug flag, mutated under a mutex and republished on every
// change.
package agentstate

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/irhub/irhub/internal/protocol"
)

// DebugObserver is notified when the effective debug flag flips.
type DebugObserver func(debug bool)

// Store holds one agent's runtime state and keeps it mirrored on a
// retained MQTT topic.
type Store struct {
	mqttClient mqtt.Client
	agentID    string
	onDebug    DebugObserver
	log        zerolog.Logger

	mu    sync.Mutex
	state protocol.AgentState

	received chan struct{}
	once     sync.Once
}

func New(mqttClient mqtt.Client, agentID string, onDebug DebugObserver, log zerolog.Logger) *Store {
	return &Store{
		mqttClient: mqttClient,
		agentID:    agentID,
		onDebug:    onDebug,
		log:        log.With().Str("component", "agent_state").Logger(),
		received:   make(chan struct{}),
	}
}

// Start subscribes to the state topic and waits up to 1s for the retained
// value to arrive before returning, so callers see the last-known state
// rather than the zero value on a warm restart.
func (s *Store) Start(ctx context.Context) error {
	topic := protocol.StateTopic(s.agentID)
	token := s.mqttClient.Subscribe(topic, 1, s.onMessage)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("agentstate: subscribe %s: %w", topic, err)
	}

	select {
	case <-s.received:
	case <-time.After(1 * time.Second):
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func (s *Store) onMessage(_ mqtt.Client, msg mqtt.Message) {
	var incoming protocol.AgentState
	if len(msg.Payload()) > 0 {
		if err := json.Unmarshal(msg.Payload(), &incoming); err != nil {
			s.log.Warn().Err(err).Msg("malformed retained state payload")
			return
		}
	}

	s.mu.Lock()
	s.state = incoming
	s.mu.Unlock()

	s.once.Do(func() { close(s.received) })
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() protocol.AgentState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetBinding records a successful pairing accept.
func (s *Store) SetBinding(accept protocol.PairingAcceptPayload) error {
	s.mu.Lock()
	s.state.PairingHubID = accept.HubID
	s.state.PairingSessionID = accept.SessionID
	s.state.PairingNonce = accept.Nonce
	s.state.PairingHubName = accept.HubName
	s.state.PairingHubTopic = accept.HubTopic
	s.state.PairingAcceptedAt = accept.AcceptedAt
	snapshot := s.state
	s.mu.Unlock()
	return s.publish(snapshot)
}

// ClearBinding drops the pairing binding, e.g. on unpair.
func (s *Store) ClearBinding() error {
	s.mu.Lock()
	s.state.PairingHubID = ""
	s.state.PairingSessionID = ""
	s.state.PairingNonce = ""
	s.state.PairingHubName = ""
	s.state.PairingHubTopic = ""
	s.state.PairingAcceptedAt = ""
	snapshot := s.state
	s.mu.Unlock()
	return s.publish(snapshot)
}

// SetDebug updates the debug flag and fires the observer on a flip.
func (s *Store) SetDebug(debug bool) error {
	s.mu.Lock()
	changed := s.state.Debug != debug
	s.state.Debug = debug
	snapshot := s.state
	s.mu.Unlock()

	if err := s.publish(snapshot); err != nil {
		return err
	}
	if changed && s.onDebug != nil {
		s.onDebug(debug)
	}
	return nil
}

func (s *Store) publish(state protocol.AgentState) error {
	body, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("agentstate: marshal: %w", err)
	}
	token := s.mqttClient.Publish(protocol.StateTopic(s.agentID), 1, true, body)
	token.Wait()
	return token.Error()
}
