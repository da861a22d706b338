package logs

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/irhub/irhub/internal/mqtttest"
	"github.com/irhub/irhub/internal/protocol"
)

func TestRingSnapshotReturnsMostRecentOldestFirst(t *testing.T) {
	r := &ring{}
	for i := 0; i < ringCapacity+10; i++ {
		r.push(protocol.LogEvent{Message: fmt.Sprintf("msg-%d", i)})
	}
	snap := r.snapshot(5)
	if len(snap) != 5 {
		t.Fatalf("len(snap) = %d, want 5", len(snap))
	}
	want := ringCapacity + 10 - 5
	if snap[0].Message != fmt.Sprintf("msg-%d", want) {
		t.Fatalf("snap[0] = %q, want msg-%d", snap[0].Message, want)
	}
}

type fixedLookup struct {
	allowed map[string]bool
}

func (f fixedLookup) IsLiveMqttAgent(agentID string) bool {
	return f.allowed[agentID]
}

func TestHubSinkRejectsEventsFromUnknownOrPendingAgents(t *testing.T) {
	broker := mqtttest.NewBroker()
	agentClient := broker.NewClient()
	sink := NewHubSink(broker.NewClient(), fixedLookup{allowed: map[string]bool{"agent-ok": true}}, zerolog.Nop())
	if err := sink.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	agentClient.Publish(protocol.LogsTopic("agent-pending"), 1, false, []byte(`{"level":"info","category":"x","message":"hi"}`))
	agentClient.Publish(protocol.LogsTopic("agent-ok"), 1, false, []byte(`{"level":"info","category":"x","message":"hi"}`))

	if snap := sink.Snapshot("agent-pending", 10); len(snap) != 0 {
		t.Fatalf("expected 0 events for rejected agent, got %d", len(snap))
	}
	if snap := sink.Snapshot("agent-ok", 10); len(snap) != 1 {
		t.Fatalf("expected 1 event for accepted agent, got %d", len(snap))
	}
}

func TestHubSinkFansOutToWebsocketSubscribers(t *testing.T) {
	sink := NewHubSink(nil, nil, zerolog.Nop())

	var upgrader websocket.Upgrader
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		sink.Subscribe("agent-1", conn)
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	time.Sleep(20 * time.Millisecond) // let the server finish Subscribe
	sink.Append("agent-1", protocol.LogEvent{Message: "hello"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if !strings.Contains(string(data), "hello") {
		t.Fatalf("message = %q, want it to contain hello", string(data))
	}
}
