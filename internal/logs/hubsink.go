package logs

import (
	"encoding/json"
	"strings"
	"sync"
	"sync/atomic"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/irhub/irhub/internal/protocol"
)

const ringCapacity = 100

// ring is a fixed-size oldest-evicted circular buffer of log events.
type ring struct {
	mu   sync.Mutex
	buf  [ringCapacity]protocol.LogEvent
	len  int
	next int
}

func (r *ring) push(ev protocol.LogEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf[r.next] = ev
	r.next = (r.next + 1) % ringCapacity
	if r.len < ringCapacity {
		r.len++
	}
}

// snapshot returns up to min(limit, len) most recent events, oldest first.
func (r *ring) snapshot(limit int) []protocol.LogEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := r.len
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]protocol.LogEvent, n)
	start := (r.next - n + ringCapacity) % ringCapacity
	for i := 0; i < n; i++ {
		out[i] = r.buf[(start+i)%ringCapacity]
	}
	return out
}

// WSClient is a subscribed browser websocket connection for one agent's log
// stream. Modeled on the teacher's Client/SafeSend split: sends never panic
// on a closed channel, and the connection is closed at most once.
type WSClient struct {
	conn      *websocket.Conn
	send      chan []byte
	closeOnce sync.Once
	closed    atomic.Bool
}

func newWSClient(conn *websocket.Conn) *WSClient {
	return &WSClient{conn: conn, send: make(chan []byte, 32)}
}

// SafeSend enqueues data for the client's write pump. Returns false if the
// client is closed or its buffer is full (message dropped, not blocked on).
func (c *WSClient) SafeSend(data []byte) (sent bool) {
	defer func() {
		if recover() != nil {
			sent = false
		}
	}()
	if c.closed.Load() {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *WSClient) Close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.send)
	})
}

// WritePump drains c.send to the underlying websocket connection until the
// channel is closed or a write fails. Callers run this in its own goroutine.
func (c *WSClient) WritePump() {
	for data := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
	_ = c.conn.Close()
}

// AgentLookup resolves whether an agent id is a registered, non-pending MQTT
// agent — only those agents' published log events are accepted.
type AgentLookup interface {
	IsLiveMqttAgent(agentID string) bool
}

// HubSink fans agent log events into per-agent bounded rings and out to
// subscribed browser websockets.
type HubSink struct {
	mqttClient mqtt.Client
	lookup     AgentLookup
	log        zerolog.Logger

	mu    sync.Mutex
	rings map[string]*ring
	subs  map[string]map[*WSClient]struct{}
}

func NewHubSink(mqttClient mqtt.Client, lookup AgentLookup, log zerolog.Logger) *HubSink {
	return &HubSink{
		mqttClient: mqttClient,
		lookup:     lookup,
		log:        log.With().Str("component", "log_hub_sink").Logger(),
		rings:      make(map[string]*ring),
		subs:       make(map[string]map[*WSClient]struct{}),
	}
}

// Start subscribes to every MQTT agent's log topic.
func (h *HubSink) Start() error {
	token := h.mqttClient.Subscribe(protocol.LogsWildcardTopic(), 1, h.onMessage)
	token.Wait()
	return token.Error()
}

func (h *HubSink) onMessage(_ mqtt.Client, msg mqtt.Message) {
	agentID, ok := agentIDFromLogsTopic(msg.Topic())
	if !ok {
		return
	}
	if h.lookup != nil && !h.lookup.IsLiveMqttAgent(agentID) {
		return
	}
	var ev protocol.LogEvent
	if err := json.Unmarshal(msg.Payload(), &ev); err != nil {
		h.log.Warn().Err(err).Str("agent_id", agentID).Msg("malformed log event")
		return
	}
	h.Append(agentID, ev)
}

func agentIDFromLogsTopic(topic string) (string, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[0] != "ir" || parts[1] != "agents" || parts[3] != "logs" {
		return "", false
	}
	return parts[2], true
}

// Append records ev in the agent's ring and fans it out to subscribers. Used
// both by onMessage (MQTT agents) and directly by the local-transport agent.
func (h *HubSink) Append(agentID string, ev protocol.LogEvent) {
	h.mu.Lock()
	r, ok := h.rings[agentID]
	if !ok {
		r = &ring{}
		h.rings[agentID] = r
	}
	subs := make([]*WSClient, 0, len(h.subs[agentID]))
	for c := range h.subs[agentID] {
		subs = append(subs, c)
	}
	h.mu.Unlock()

	r.push(ev)

	if len(subs) == 0 {
		return
	}
	body, err := json.Marshal(ev)
	if err != nil {
		h.log.Error().Err(err).Msg("marshal log event for fan-out")
		return
	}
	var dead []*WSClient
	for _, c := range subs {
		if !c.SafeSend(body) {
			dead = append(dead, c)
		}
	}
	if len(dead) > 0 {
		h.pruneAll(agentID, dead)
	}
}

func (h *HubSink) pruneAll(agentID string, dead []*WSClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.subs[agentID]
	for _, c := range dead {
		delete(set, c)
	}
}

// Snapshot returns the agent's most recent min(limit, 100) events.
func (h *HubSink) Snapshot(agentID string, limit int) []protocol.LogEvent {
	h.mu.Lock()
	r, ok := h.rings[agentID]
	h.mu.Unlock()
	if !ok {
		return nil
	}
	return r.snapshot(limit)
}

// Subscribe registers conn as a log subscriber for agentID and starts its
// write pump. Callers must arrange to call Unsubscribe when the connection
// closes.
func (h *HubSink) Subscribe(agentID string, conn *websocket.Conn) *WSClient {
	c := newWSClient(conn)
	h.mu.Lock()
	set, ok := h.subs[agentID]
	if !ok {
		set = make(map[*WSClient]struct{})
		h.subs[agentID] = set
	}
	set[c] = struct{}{}
	h.mu.Unlock()

	go c.WritePump()
	return c
}

func (h *HubSink) Unsubscribe(agentID string, c *WSClient) {
	h.mu.Lock()
	if set, ok := h.subs[agentID]; ok {
		delete(set, c)
	}
	h.mu.Unlock()
	c.Close()
}
