package broadcast

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const taskQueueSize = 1024

type loopKey struct{}

// WithLoop marks ctx as running on the Broadcaster's registered runtime
// loop, so a Broadcast call made with it executes its send directly instead
// of hopping through the task queue.
func WithLoop(ctx context.Context) context.Context {
	return context.WithValue(ctx, loopKey{}, true)
}

func onLoop(ctx context.Context) bool {
	v, _ := ctx.Value(loopKey{}).(bool)
	return v
}

// Subscriber is one connected listener. Sends never panic on a closed
// channel and Close is idempotent, mirroring the teacher's Client/SafeSend
// split for websocket fan-out.
type Subscriber struct {
	conn      *websocket.Conn
	send      chan []byte
	closeOnce sync.Once
	closed    atomic.Bool
}

func newSubscriber(conn *websocket.Conn) *Subscriber {
	return &Subscriber{conn: conn, send: make(chan []byte, 32)}
}

func (s *Subscriber) SafeSend(data []byte) (sent bool) {
	defer func() {
		if recover() != nil {
			sent = false
		}
	}()
	if s.closed.Load() {
		return false
	}
	select {
	case s.send <- data:
		return true
	default:
		return false
	}
}

func (s *Subscriber) Close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		close(s.send)
	})
}

// WritePump drains s.send to the websocket connection until the channel
// closes or a write fails.
func (s *Subscriber) WritePump() {
	for data := range s.send {
		if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
	_ = s.conn.Close()
}

// Broadcaster maintains a set of subscribers and fans payloads out to them.
// Broadcast is safe from any goroutine: it either runs the send directly
// (caller is already on the registered loop, per WithLoop) or schedules it
// onto the loop goroutine started by Run.
type Broadcaster struct {
	log zerolog.Logger

	mu   sync.Mutex
	subs map[*Subscriber]struct{}

	tasks chan func()
}

func New(log zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		log:   log.With().Str("component", "broadcaster").Logger(),
		subs:  make(map[*Subscriber]struct{}),
		tasks: make(chan func(), taskQueueSize),
	}
}

// Run services the task queue until ctx is done. Call once, in its own
// goroutine; pass ctx wrapped with WithLoop to callers that end up running
// on the same goroutine as Run (there are none in this codebase today, but
// the seam exists for a future in-loop caller).
func (b *Broadcaster) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-b.tasks:
			task()
		}
	}
}

// Broadcast marshals payload and sends it to every subscriber.
func (b *Broadcaster) Broadcast(ctx context.Context, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		b.log.Error().Err(err).Msg("marshal broadcast payload")
		return
	}
	send := func() { b.doBroadcast(data) }
	if onLoop(ctx) {
		send()
		return
	}
	select {
	case b.tasks <- send:
	default:
		b.log.Warn().Msg("broadcast queue full, dropping message")
	}
}

func (b *Broadcaster) doBroadcast(data []byte) {
	b.mu.Lock()
	subs := make([]*Subscriber, 0, len(b.subs))
	for s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	var dead []*Subscriber
	for _, s := range subs {
		if !s.SafeSend(data) {
			dead = append(dead, s)
		}
	}
	if len(dead) == 0 {
		return
	}
	b.mu.Lock()
	for _, s := range dead {
		delete(b.subs, s)
	}
	b.mu.Unlock()
}

// Subscribe registers conn and starts its write pump.
func (b *Broadcaster) Subscribe(conn *websocket.Conn) *Subscriber {
	s := newSubscriber(conn)
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()
	go s.WritePump()
	return s
}

func (b *Broadcaster) Unsubscribe(s *Subscriber) {
	b.mu.Lock()
	delete(b.subs, s)
	b.mu.Unlock()
	s.Close()
}

// Count reports the number of currently registered subscribers.
func (b *Broadcaster) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
