// Package pairing implements the agent<->hub pairing handshake (spec
// component C9): an offer/accept exchange over MQTT (the open window and the
// unpair command are retained topics), guarded by a one-shot
// (session_id, nonce) capability.
package pairing

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/irhub/irhub/internal/apierr"
	"github.com/irhub/irhub/internal/catalog"
	"github.com/irhub/irhub/internal/protocol"
)

func randomHex128() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		panic(err) // crypto/rand failing means the platform is broken
	}
	return hex.EncodeToString(b)
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// majorVersionCompatible splits both versions on "." and compares the first
// segment. An empty version on either side is treated as compatible.
func majorVersionCompatible(a, b string) bool {
	if a == "" || b == "" {
		return true
	}
	return strings.SplitN(a, ".", 2)[0] == strings.SplitN(b, ".", 2)[0]
}

// window is the currently open pairing session, or nil when closed.
type window struct {
	sessionID string
	nonce     string
	expiresAt time.Time
	timer     *time.Timer
}

// HubManager is the hub side of the pairing handshake.
type HubManager struct {
	mqttClient mqtt.Client
	store      *catalog.Store
	hubID      string
	hubName    string
	hubTopic   string
	swVersion  string
	log        zerolog.Logger

	mu  sync.Mutex
	win *window

	unpairMu      sync.Mutex
	unpairWaiters map[string]*unpairWaiter
}

func NewHubManager(mqttClient mqtt.Client, store *catalog.Store, hubID, hubName, hubTopic, swVersion string, log zerolog.Logger) *HubManager {
	return &HubManager{
		mqttClient:    mqttClient,
		store:         store,
		hubID:         hubID,
		hubName:       hubName,
		hubTopic:      hubTopic,
		swVersion:     swVersion,
		log:           log.With().Str("component", "pairing_hub").Logger(),
		unpairWaiters: make(map[string]*unpairWaiter),
	}
}

// Start subscribes to offers and unpair acks.
func (m *HubManager) Start() error {
	if err := m.subscribe(protocol.PairingOfferWildcardTopic(), m.onOffer); err != nil {
		return err
	}
	if err := m.subscribe(protocol.PairingUnpairAckWildcardTopic(), m.onUnpairAck); err != nil {
		return err
	}
	return nil
}

func (m *HubManager) subscribe(topic string, handler mqtt.MessageHandler) error {
	token := m.mqttClient.Subscribe(topic, 1, handler)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("pairing: subscribe %s: %w", topic, err)
	}
	return nil
}

// OpenPairing generates a session and publishes a retained open window.
// durationSeconds is clamped to [10, 3600].
func (m *HubManager) OpenPairing(durationSeconds int) error {
	if durationSeconds < 10 {
		durationSeconds = 10
	}
	if durationSeconds > 3600 {
		durationSeconds = 3600
	}

	sessionID := randomHex128()
	nonce := randomHex128()
	expiresAt := time.Now().Add(time.Duration(durationSeconds) * time.Second)

	m.mu.Lock()
	if m.win != nil && m.win.timer != nil {
		m.win.timer.Stop()
	}
	w := &window{sessionID: sessionID, nonce: nonce, expiresAt: expiresAt}
	w.timer = time.AfterFunc(time.Until(expiresAt), func() { m.ClosePairing() })
	m.win = w
	m.mu.Unlock()

	payload := protocol.PairingOpenPayload{
		SessionID: sessionID,
		Nonce:     nonce,
		HubID:     m.hubID,
		HubName:   m.hubName,
		HubTopic:  m.hubTopic,
		SwVersion: m.swVersion,
		ExpiresAt: expiresAt.UTC().Format(time.RFC3339Nano),
	}
	return m.publishRetained(protocol.PairingOpenTopic, payload)
}

// ClosePairing publishes an empty retained message and purges pending agents
// for the window's session.
func (m *HubManager) ClosePairing() error {
	m.mu.Lock()
	w := m.win
	if w != nil && w.timer != nil {
		w.timer.Stop()
	}
	m.win = nil
	m.mu.Unlock()

	if err := m.publishRetainedEmpty(protocol.PairingOpenTopic); err != nil {
		return err
	}
	if w == nil {
		return nil
	}
	return m.store.DeletePendingAgents(context.Background(), nil, &w.sessionID)
}

func (m *HubManager) onOffer(_ mqtt.Client, msg mqtt.Message) {
	var offer protocol.PairingOfferPayload
	if err := json.Unmarshal(msg.Payload(), &offer); err != nil {
		m.log.Warn().Err(err).Msg("malformed pairing offer")
		return
	}

	m.mu.Lock()
	w := m.win
	m.mu.Unlock()
	if w == nil {
		return
	}
	if offer.SessionID != w.sessionID || offer.Nonce != w.nonce {
		m.log.Warn().Str("agent_uid", offer.AgentUID).Msg("pairing offer session/nonce mismatch, dropping")
		return
	}
	if time.Now().After(w.expiresAt) {
		m.log.Warn().Str("agent_uid", offer.AgentUID).Msg("pairing offer after window expired, dropping")
		return
	}
	if !majorVersionCompatible(offer.SwVersion, m.swVersion) {
		m.log.Warn().Str("agent_uid", offer.AgentUID).Str("sw_version", offer.SwVersion).Msg("pairing offer incompatible major version")
		return
	}

	pending := true
	_, err := m.store.UpsertAgent(context.Background(), nil, catalog.UpsertAgentInput{
		AgentID:    offer.AgentUID,
		Name:       offer.ReadableName,
		Transport:  "mqtt",
		Status:     "offline",
		CanSend:    offer.CanSend,
		CanLearn:   offer.CanLearn,
		SwVersion:  offer.SwVersion,
		AgentTopic: offer.BaseTopic,
	})
	if err != nil {
		m.log.Error().Err(err).Msg("upsert agent on pairing offer")
		return
	}
	if err := m.store.SetPendingState(context.Background(), nil, offer.AgentUID, pending, &w.sessionID); err != nil {
		m.log.Error().Err(err).Msg("set pending state on pairing offer")
	}
}

// AcceptOffer accepts a pending agent's offer, publishing a non-retained
// accept message and flipping it out of the pending state.
func (m *HubManager) AcceptOffer(ctx context.Context, agentID string) error {
	m.mu.Lock()
	w := m.win
	m.mu.Unlock()
	if w == nil {
		return apierr.New(http.StatusConflict, "pairing_window_closed", "no pairing window is open")
	}

	payload := protocol.PairingAcceptPayload{
		SessionID:  w.sessionID,
		Nonce:      w.nonce,
		AgentUID:   agentID,
		HubID:      m.hubID,
		HubName:    m.hubName,
		HubTopic:   m.hubTopic,
		SwVersion:  m.swVersion,
		AcceptedAt: nowRFC3339(),
	}
	topic := protocol.PairingAcceptTopic(w.sessionID, agentID)
	if err := m.publish(topic, false, payload); err != nil {
		return err
	}
	return m.store.SetPendingState(ctx, nil, agentID, false, nil)
}

// UnpairAndDeleteAgent tells the agent to drop its binding, waits for its
// ack, then deletes the record. If the agent is still pending, no ack is
// required.
func (m *HubManager) UnpairAndDeleteAgent(ctx context.Context, agentID string) error {
	agent, err := m.store.GetAgent(ctx, nil, agentID)
	if err != nil {
		return err
	}

	if !agent.Pending {
		commandID := randomHex128()
		ackCh := make(chan struct{}, 1)
		m.registerUnpairWaiter(agentID, commandID, ackCh)
		defer m.clearUnpairWaiter(agentID)

		payload := protocol.PairingUnpairPayload{
			CommandID:   commandID,
			AgentUID:    agentID,
			HubID:       m.hubID,
			HubTopic:    m.hubTopic,
			RequestedAt: nowRFC3339(),
		}
		if err := m.publishRetained(protocol.PairingUnpairTopic(agentID), payload); err != nil {
			return err
		}

		select {
		case <-ackCh:
		case <-time.After(8 * time.Second):
			return apierr.UnpairAckTimeout
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if err := m.clearAssignmentsReferencing(ctx, agentID); err != nil {
		return err
	}
	_, err = m.store.DeleteAgent(ctx, nil, agentID)
	return err
}

func (m *HubManager) clearAssignmentsReferencing(ctx context.Context, agentID string) error {
	remotes, err := m.store.ListRemotes(ctx, nil)
	if err != nil {
		return err
	}
	for _, r := range remotes {
		if r.AssignedAgentID != nil && *r.AssignedAgentID == agentID {
			if err := m.store.SetAssignedAgent(ctx, nil, r.ID, nil); err != nil {
				return err
			}
		}
	}
	return nil
}

type unpairWaiter struct {
	commandID string
	ackCh     chan struct{}
}

func (m *HubManager) registerUnpairWaiter(agentID, commandID string, ackCh chan struct{}) {
	m.unpairMu.Lock()
	m.unpairWaiters[agentID] = &unpairWaiter{commandID: commandID, ackCh: ackCh}
	m.unpairMu.Unlock()
}

func (m *HubManager) clearUnpairWaiter(agentID string) {
	m.unpairMu.Lock()
	delete(m.unpairWaiters, agentID)
	m.unpairMu.Unlock()
}

func (m *HubManager) onUnpairAck(_ mqtt.Client, msg mqtt.Message) {
	var ack protocol.PairingUnpairAckPayload
	if err := json.Unmarshal(msg.Payload(), &ack); err != nil {
		m.log.Warn().Err(err).Msg("malformed unpair ack")
		return
	}
	m.unpairMu.Lock()
	w, ok := m.unpairWaiters[ack.AgentUID]
	m.unpairMu.Unlock()
	if !ok || w.commandID != ack.CommandID {
		return
	}
	select {
	case w.ackCh <- struct{}{}:
	default:
	}
}

func (m *HubManager) publish(topic string, retained bool, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("pairing: marshal: %w", err)
	}
	token := m.mqttClient.Publish(topic, 1, retained, body)
	token.Wait()
	return token.Error()
}

func (m *HubManager) publishRetained(topic string, payload any) error {
	return m.publish(topic, true, payload)
}

func (m *HubManager) publishRetainedEmpty(topic string) error {
	token := m.mqttClient.Publish(topic, 1, true, []byte("{}"))
	token.Wait()
	return token.Error()
}

