package agentapi

import (
	"context"
	"errors"
	"testing"

	"github.com/irhub/irhub/internal/engine"
	"github.com/irhub/irhub/internal/protocol"
)

func TestLocalAgentSendRejectsWhileLearning(t *testing.T) {
	a := &LocalAgent{Engine: &engine.FakeEngine{}, ScratchDir: t.TempDir(), CanSend: true}
	a.SetLearningActive(true)

	_, err := a.Send(context.Background(), protocol.SendRequest{Mode: "press", PressInitial: "900 -450"})
	if !errors.Is(err, ErrLearningActive) {
		t.Fatalf("Send while learning err = %v, want ErrLearningActive", err)
	}
}

func TestLocalAgentSendDelegatesToEngine(t *testing.T) {
	fake := &engine.FakeEngine{SendResult: engine.SendResult{Stdout: "done"}}
	a := &LocalAgent{Engine: fake, ScratchDir: t.TempDir(), CanSend: true}

	result, err := a.Send(context.Background(), protocol.SendRequest{Mode: "press", PressInitial: "900 -450"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if result.Stdout != "done" || result.Mode != "press" {
		t.Fatalf("result = %+v", result)
	}
}

func TestLocalAgentStatusReflectsLearningFlag(t *testing.T) {
	a := &LocalAgent{Engine: &engine.FakeEngine{}, ScratchDir: t.TempDir(), CanSend: true, CanLearn: true}
	a.SetLearningActive(true)

	status, err := a.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !status.LearningActive || !status.CanSend || !status.CanLearn {
		t.Fatalf("status = %+v", status)
	}
}

func TestLocalAgentLearnCaptureDelegatesToEngine(t *testing.T) {
	fake := &engine.FakeEngine{ReceiveQueue: []engine.ReceiveResult{{Raw: "900 -450"}}}
	a := &LocalAgent{Engine: fake, ScratchDir: t.TempDir()}

	result, err := a.LearnCapture(context.Background(), protocol.LearnCaptureRequest{TimeoutMs: 1000, Mode: "press"})
	if err != nil {
		t.Fatalf("LearnCapture: %v", err)
	}
	if result.Raw != "900 -450" {
		t.Fatalf("Raw = %q", result.Raw)
	}
}
