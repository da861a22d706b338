package broadcast

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

func dialSubscriber(t *testing.T, b *Broadcaster) (*websocket.Conn, func()) {
	t.Helper()
	var upgrader websocket.Upgrader
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		b.Subscribe(conn)
	}))
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn, srv.Close
}

func TestBroadcastQueuedFromOtherGoroutineReachesSubscriber(t *testing.T) {
	b := New(zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	conn, closeSrv := dialSubscriber(t, b)
	defer conn.Close()
	defer closeSrv()
	time.Sleep(20 * time.Millisecond)

	b.Broadcast(context.Background(), map[string]any{"hello": "world"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if !strings.Contains(string(data), "world") {
		t.Fatalf("data = %q", string(data))
	}
}

func TestBroadcastOnLoopSendsWithoutQueue(t *testing.T) {
	b := New(zerolog.Nop())
	conn, closeSrv := dialSubscriber(t, b)
	defer conn.Close()
	defer closeSrv()
	time.Sleep(20 * time.Millisecond)

	b.Broadcast(WithLoop(context.Background()), map[string]any{"direct": true})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if !strings.Contains(string(data), "direct") {
		t.Fatalf("data = %q", string(data))
	}
}

func TestUnsubscribeStopsFurtherDelivery(t *testing.T) {
	b := New(zerolog.Nop())
	conn, closeSrv := dialSubscriber(t, b)
	defer conn.Close()
	defer closeSrv()
	time.Sleep(20 * time.Millisecond)

	if b.Count() != 1 {
		t.Fatalf("Count() = %d, want 1", b.Count())
	}

	b.mu.Lock()
	var sub *Subscriber
	for s := range b.subs {
		sub = s
	}
	b.mu.Unlock()
	b.Unsubscribe(sub)

	if b.Count() != 0 {
		t.Fatalf("Count() after Unsubscribe = %d, want 0", b.Count())
	}
}
