package rpc

import (
	"context"
	"errors"
	"testing"
)

func TestParseResponseTopic(t *testing.T) {
	agentID, requestID, ok := parseResponseTopic("ir/hubs/hub-1/agents/agent-2/resp/req-3")
	if !ok {
		t.Fatalf("parseResponseTopic: ok = false")
	}
	if agentID != "agent-2" || requestID != "req-3" {
		t.Fatalf("got agentID=%q requestID=%q", agentID, requestID)
	}
}

func TestParseResponseTopicRejectsShapeMismatch(t *testing.T) {
	cases := []string{
		"ir/hubs/hub-1/agents/agent-2/wrong/req-3",
		"ir/hubs/hub-1/agents/agent-2",
		"ir/pairing/open",
	}
	for _, topic := range cases {
		if _, _, ok := parseResponseTopic(topic); ok {
			t.Fatalf("parseResponseTopic(%q) = ok, want rejected", topic)
		}
	}
}

func TestCommandFromTopic(t *testing.T) {
	cmd, ok := commandFromTopic("ir/agents/agent-1/cmd/learn/start", "agent-1")
	if !ok || cmd != "learn/start" {
		t.Fatalf("commandFromTopic = %q, %v", cmd, ok)
	}
}

func TestCommandFromTopicRejectsOtherAgent(t *testing.T) {
	if _, ok := commandFromTopic("ir/agents/agent-1/cmd/send", "agent-2"); ok {
		t.Fatalf("expected rejection for mismatched agent id")
	}
}

func TestClassifyErrorMapsKnownKinds(t *testing.T) {
	cases := []struct {
		err  error
		code string
	}{
		{context.DeadlineExceeded, "timeout"},
		{ErrValueError, "value_error"},
		{ErrRuntimeError, "runtime_error"},
		{errors.New("boom"), "internal_error"},
	}
	for _, c := range cases {
		got := classifyError(c.err)
		if got.Code != c.code {
			t.Fatalf("classifyError(%v).Code = %q, want %q", c.err, got.Code, c.code)
		}
	}
}
