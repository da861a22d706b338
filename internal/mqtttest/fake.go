// Package mqtttest is a minimal in-memory stand-in for paho.mqtt.golang's
// mqtt.Client, used by the hub/agent transport tests so they don't need a
// real broker. It routes Publish calls straight to matching Subscribe
// handlers on the same instance, synchronously.
package mqtttest

import (
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Broker is a trivial single-process pub/sub hub: every Client created from
// the same Broker sees every other Client's publishes, filtered by topic.
type Broker struct {
	mu   sync.Mutex
	subs []subscription
}

type subscription struct {
	filter  string
	handler mqtt.MessageHandler
}

func NewBroker() *Broker { return &Broker{} }

// NewClient returns a mqtt.Client backed by this broker.
func (b *Broker) NewClient() *Client { return &Client{broker: b, connected: true} }

func (b *Broker) subscribe(filter string, handler mqtt.MessageHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, subscription{filter: filter, handler: handler})
}

func (b *Broker) publish(client mqtt.Client, topic string, payload []byte, qos byte, retained bool) {
	b.mu.Lock()
	matches := make([]mqtt.MessageHandler, 0, len(b.subs))
	for _, s := range b.subs {
		if topicMatches(s.filter, topic) {
			matches = append(matches, s.handler)
		}
	}
	b.mu.Unlock()

	msg := &Message{topic: topic, payload: payload, qos: qos, retained: retained}
	for _, h := range matches {
		h(client, msg)
	}
}

// topicMatches implements MQTT's "+" (single-level) and "#" (multi-level)
// wildcard matching.
func topicMatches(filter, topic string) bool {
	fParts := strings.Split(filter, "/")
	tParts := strings.Split(topic, "/")
	for i, fp := range fParts {
		if fp == "#" {
			return true
		}
		if i >= len(tParts) {
			return false
		}
		if fp != "+" && fp != tParts[i] {
			return false
		}
	}
	return len(fParts) == len(tParts)
}

// Client is a fake mqtt.Client. It implements only the subset of the real
// interface this module's transport code actually calls.
type Client struct {
	broker    *Broker
	connected bool
}

func (c *Client) IsConnected() bool      { return c.connected }
func (c *Client) IsConnectionOpen() bool { return true }

func (c *Client) Connect() mqtt.Token {
	c.connected = true
	return &Token{}
}

func (c *Client) Disconnect(quiesce uint) { c.connected = false }

func (c *Client) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	var body []byte
	switch p := payload.(type) {
	case []byte:
		body = p
	case string:
		body = []byte(p)
	}
	c.broker.publish(c, topic, body, qos, retained)
	return &Token{}
}

func (c *Client) Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token {
	c.broker.subscribe(topic, callback)
	return &Token{}
}

func (c *Client) SubscribeMultiple(filters map[string]byte, callback mqtt.MessageHandler) mqtt.Token {
	for topic := range filters {
		c.broker.subscribe(topic, callback)
	}
	return &Token{}
}

func (c *Client) Unsubscribe(topics ...string) mqtt.Token { return &Token{} }

func (c *Client) AddRoute(topic string, callback mqtt.MessageHandler) {
	c.broker.subscribe(topic, callback)
}

func (c *Client) OptionsReader() mqtt.ClientOptionsReader { return mqtt.ClientOptionsReader{} }

// Token is an already-completed fake token: Wait returns immediately.
type Token struct{ err error }

func (t *Token) Wait() bool                       { return true }
func (t *Token) WaitTimeout(_ time.Duration) bool { return true }
func (t *Token) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t *Token) Error() error { return t.err }

// Message is a fake mqtt.Message.
type Message struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

func (m *Message) Duplicate() bool   { return false }
func (m *Message) Qos() byte         { return m.qos }
func (m *Message) Retained() bool    { return m.retained }
func (m *Message) Topic() string     { return m.topic }
func (m *Message) MessageID() uint16 { return 0 }
func (m *Message) Payload() []byte   { return m.payload }
func (m *Message) Ack()              {}
