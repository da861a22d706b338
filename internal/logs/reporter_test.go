package logs

import (
	"encoding/json"
	"strings"
	"testing"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/irhub/irhub/internal/mqtttest"
	"github.com/irhub/irhub/internal/protocol"
)

func TestSanitizeTruncatesFields(t *testing.T) {
	ev := Event{
		Level:     protocol.LogInfo,
		Category:  strings.Repeat("c", 100),
		Message:   strings.Repeat("m", 500),
		RequestID: strings.Repeat("r", 200),
		ErrorCode: strings.Repeat("e", 200),
	}
	got := Sanitize(ev)
	if len(got.Category) != maxCategoryLen {
		t.Fatalf("Category len = %d, want %d", len(got.Category), maxCategoryLen)
	}
	if len(got.Message) != maxMessageLen {
		t.Fatalf("Message len = %d, want %d", len(got.Message), maxMessageLen)
	}
	if len(got.RequestID) != maxIDLen || len(got.ErrorCode) != maxIDLen {
		t.Fatalf("RequestID/ErrorCode not truncated to %d", maxIDLen)
	}
}

func TestSanitizeMetaBoundsKeysAndListItems(t *testing.T) {
	meta := map[string]any{}
	for i := 0; i < 30; i++ {
		meta[strings.Repeat("k", i+1)] = i
	}
	items := make([]any, 0, 20)
	for i := 0; i < 20; i++ {
		items = append(items, i)
	}
	meta["list"] = items

	got := Sanitize(Event{Meta: meta})
	if len(got.Meta) > maxMetaKeys {
		t.Fatalf("Meta has %d keys, want <= %d", len(got.Meta), maxMetaKeys)
	}
	if list, ok := got.Meta["list"].([]any); ok && len(list) > maxMetaListItems {
		t.Fatalf("list has %d items, want <= %d", len(list), maxMetaListItems)
	}
}

func TestSanitizeMetaTruncatesDeepNesting(t *testing.T) {
	nested := map[string]any{
		"a": map[string]any{
			"b": map[string]any{
				"c": map[string]any{
					"d": "too deep",
				},
			},
		},
	}
	got := Sanitize(Event{Meta: nested})
	a, ok := got.Meta["a"].(map[string]any)
	if !ok {
		t.Fatalf("expected nested map at depth 1")
	}
	b, ok := a["b"].(map[string]any)
	if !ok {
		t.Fatalf("expected nested map at depth 2")
	}
	if _, isMap := b["c"].(map[string]any); isMap {
		t.Fatalf("expected depth-3 map to be truncated to a placeholder string")
	}
}

type recordingSink struct {
	events []protocol.LogEvent
}

func (s *recordingSink) Append(agentID string, ev protocol.LogEvent) {
	s.events = append(s.events, ev)
}

func TestReporterAlwaysWritesLocalSinkRegardlessOfDispatchLevel(t *testing.T) {
	broker := mqtttest.NewBroker()
	sink := &recordingSink{}
	r := NewReporter(broker.NewClient(), "agent-1", protocol.LogWarn, sink, zerolog.Nop())

	r.Log(Event{Level: protocol.LogDebug, Category: "engine", Message: "debug detail"})
	r.Log(Event{Level: protocol.LogError, Category: "engine", Message: "boom"})

	if len(sink.events) != 2 {
		t.Fatalf("local sink got %d events, want 2", len(sink.events))
	}
}

func TestReporterDispatchesOnlyAboveMinLevel(t *testing.T) {
	broker := mqtttest.NewBroker()
	agentClient := broker.NewClient()
	hubClient := broker.NewClient()

	var got []protocol.LogEvent
	hubClient.Subscribe(protocol.LogsWildcardTopic(), 1, func(_ mqtt.Client, msg mqtt.Message) {
		var ev protocol.LogEvent
		if err := json.Unmarshal(msg.Payload(), &ev); err == nil {
			got = append(got, ev)
		}
	})

	r := NewReporter(agentClient, "agent-1", protocol.LogWarn, nil, zerolog.Nop())
	r.Log(Event{Level: protocol.LogInfo, Category: "x", Message: "below threshold"})
	r.Log(Event{Level: protocol.LogError, Category: "x", Message: "above threshold"})

	if len(got) != 1 {
		t.Fatalf("dispatched %d events, want 1", len(got))
	}
	if got[0].Message != "above threshold" {
		t.Fatalf("Message = %q", got[0].Message)
	}
}
