package pairing

import (
	"encoding/json"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/irhub/irhub/internal/protocol"
)

// Binder persists a successful pairing binding; agentstate.Store satisfies
// this.
type Binder interface {
	SetBinding(accept protocol.PairingAcceptPayload) error
	ClearBinding() error
}

// AgentInfo is the static identity an agent offers during pairing.
type AgentInfo struct {
	AgentUID     string
	ReadableName string
	BaseTopic    string
	SwVersion    string
	CanSend      bool
	CanLearn     bool
}

// AgentManager is the agent side of the pairing handshake.
type AgentManager struct {
	mqttClient mqtt.Client
	info       AgentInfo
	binder     Binder
	log        zerolog.Logger

	mu           sync.Mutex
	bound        bool
	rememberSess string
	rememberNonc string
}

func NewAgentManager(mqttClient mqtt.Client, info AgentInfo, binder Binder, log zerolog.Logger) *AgentManager {
	return &AgentManager{
		mqttClient: mqttClient,
		info:       info,
		binder:     binder,
		log:        log.With().Str("component", "pairing_agent").Logger(),
	}
}

// Start subscribes to the unpair command always, and to open/accept only
// when not yet bound.
func (m *AgentManager) Start(bound bool) error {
	m.mu.Lock()
	m.bound = bound
	m.mu.Unlock()

	if err := m.subscribe(protocol.PairingUnpairWildcardTopic(), m.onUnpair); err != nil {
		return err
	}
	if !bound {
		m.listenForOffers()
	}
	return nil
}

func (m *AgentManager) listenForOffers() error {
	if err := m.subscribe(protocol.PairingOpenTopic, m.onOpen); err != nil {
		return err
	}
	return m.subscribe(protocol.PairingAcceptWildcardTopic(m.info.AgentUID), m.onAccept)
}

func (m *AgentManager) subscribe(topic string, handler mqtt.MessageHandler) error {
	token := m.mqttClient.Subscribe(topic, 1, handler)
	token.Wait()
	return token.Error()
}

func (m *AgentManager) onOpen(_ mqtt.Client, msg mqtt.Message) {
	if len(msg.Payload()) == 0 || string(msg.Payload()) == "{}" {
		return // window closed
	}
	var open protocol.PairingOpenPayload
	if err := json.Unmarshal(msg.Payload(), &open); err != nil {
		m.log.Warn().Err(err).Msg("malformed pairing open payload")
		return
	}

	expiresAt, err := time.Parse(time.RFC3339Nano, open.ExpiresAt)
	if err != nil || time.Now().After(expiresAt) {
		return
	}
	if !majorVersionCompatible(open.SwVersion, m.info.SwVersion) {
		return
	}

	m.mu.Lock()
	m.rememberSess = open.SessionID
	m.rememberNonc = open.Nonce
	m.mu.Unlock()

	offer := protocol.PairingOfferPayload{
		SessionID:    open.SessionID,
		Nonce:        open.Nonce,
		AgentUID:     m.info.AgentUID,
		ReadableName: m.info.ReadableName,
		BaseTopic:    m.info.BaseTopic,
		SwVersion:    m.info.SwVersion,
		CanSend:      m.info.CanSend,
		CanLearn:     m.info.CanLearn,
		OfferedAt:    nowRFC3339(),
	}
	body, err := json.Marshal(offer)
	if err != nil {
		m.log.Error().Err(err).Msg("marshal pairing offer")
		return
	}
	topic := protocol.PairingOfferTopic(open.SessionID, m.info.AgentUID)
	token := m.mqttClient.Publish(topic, 1, false, body)
	token.Wait()
	if err := token.Error(); err != nil {
		m.log.Warn().Err(err).Msg("publish pairing offer failed")
	}
}

func (m *AgentManager) onAccept(_ mqtt.Client, msg mqtt.Message) {
	var accept protocol.PairingAcceptPayload
	if err := json.Unmarshal(msg.Payload(), &accept); err != nil {
		m.log.Warn().Err(err).Msg("malformed pairing accept payload")
		return
	}

	m.mu.Lock()
	matches := accept.SessionID == m.rememberSess && accept.Nonce == m.rememberNonc && m.rememberSess != ""
	if matches {
		m.bound = true
	}
	m.mu.Unlock()
	if !matches {
		m.log.Warn().Str("agent_uid", accept.AgentUID).Msg("pairing accept session/nonce mismatch, dropping")
		return
	}

	if err := m.binder.SetBinding(accept); err != nil {
		m.log.Error().Err(err).Msg("persist pairing binding")
	}
}

func (m *AgentManager) onUnpair(_ mqtt.Client, msg mqtt.Message) {
	if len(msg.Payload()) == 0 {
		return // cleared retained command
	}
	var unpair protocol.PairingUnpairPayload
	if err := json.Unmarshal(msg.Payload(), &unpair); err != nil {
		m.log.Warn().Err(err).Msg("malformed unpair payload")
		return
	}
	if unpair.AgentUID != m.info.AgentUID {
		return
	}

	if err := m.binder.ClearBinding(); err != nil {
		m.log.Error().Err(err).Msg("clear pairing binding")
	}

	ack := protocol.PairingUnpairAckPayload{
		AgentUID:  m.info.AgentUID,
		CommandID: unpair.CommandID,
		AckedAt:   nowRFC3339(),
	}
	ackBody, err := json.Marshal(ack)
	if err == nil {
		token := m.mqttClient.Publish(protocol.PairingUnpairAckTopic(m.info.AgentUID), 1, false, ackBody)
		token.Wait()
	}

	clearToken := m.mqttClient.Publish(protocol.PairingUnpairTopic(m.info.AgentUID), 1, true, []byte{})
	clearToken.Wait()

	m.mu.Lock()
	m.bound = false
	m.rememberSess = ""
	m.rememberNonc = ""
	m.mu.Unlock()
	m.listenForOffers()
}
