package learning

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/irhub/irhub/internal/agentapi"
	"github.com/irhub/irhub/internal/apierr"
	"github.com/irhub/irhub/internal/broadcast"
	"github.com/irhub/irhub/internal/catalog"
	"github.com/irhub/irhub/internal/engine"
	"github.com/irhub/irhub/internal/protocol"
)

// fakeAgent is a hand-rolled agentapi.Agent double whose LearnCapture
// responses are scripted per call, used to drive both press (fixed-takes)
// and hold (timeout-terminated) capture loops deterministically.
type fakeAgent struct {
	debug      bool
	rawFrames  []string // successive LearnCapture responses
	next       int
	learnStart int
	calls      int
}

func (a *fakeAgent) Send(ctx context.Context, req protocol.SendRequest) (protocol.SendResult, error) {
	return protocol.SendResult{}, nil
}

func (a *fakeAgent) LearnStart(ctx context.Context, session string) error {
	a.learnStart++
	return nil
}

func (a *fakeAgent) LearnStop(ctx context.Context, session string) error { return nil }

func (a *fakeAgent) LearnCapture(ctx context.Context, req protocol.LearnCaptureRequest) (protocol.LearnCaptureResult, error) {
	a.calls++
	if a.next >= len(a.rawFrames) {
		return protocol.LearnCaptureResult{}, engine.ErrTimeout
	}
	raw := a.rawFrames[a.next]
	a.next++
	return protocol.LearnCaptureResult{Raw: raw}, nil
}

func (a *fakeAgent) Status(ctx context.Context) (protocol.StatusResult, error) {
	return protocol.StatusResult{Online: true}, nil
}

func (a *fakeAgent) DebugGet(ctx context.Context) (bool, error) { return a.debug, nil }

// fakeLookup resolves every remote to the same fixed agent.
type fakeLookup struct {
	agentID string
	agent   agentapi.Agent
	offline bool
}

func (l *fakeLookup) ResolveAgentForRemote(ctx context.Context, remote catalog.Remote) (string, agentapi.Agent, error) {
	return l.agentID, l.agent, nil
}

func (l *fakeLookup) Live(agentID string) (agentapi.Agent, bool) {
	if l.offline {
		return nil, false
	}
	return l.agent, true
}

func newTestService(t *testing.T, agent *fakeAgent) (*Service, *catalog.Store, catalog.Remote) {
	t.Helper()
	store, err := catalog.Open(":memory:")
	if err != nil {
		t.Fatalf("catalog.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	remote, err := store.CreateRemote(context.Background(), nil, "Living Room TV", nil, nil, nil)
	if err != nil {
		t.Fatalf("CreateRemote: %v", err)
	}

	lookup := &fakeLookup{agentID: "agent-1", agent: agent}
	b := broadcast.New(zerolog.Nop())
	svc := New(store, lookup, b, zerolog.Nop())
	return svc, store, remote
}

func TestStartRejectsConcurrentSession(t *testing.T) {
	svc, _, remote := newTestService(t, &fakeAgent{})
	ctx := context.Background()

	if err := svc.Start(ctx, remote.ID, false); err != nil {
		t.Fatalf("Start: %v", err)
	}
	err := svc.Start(ctx, remote.ID, false)
	if !errors.Is(err, apierr.SessionAlreadyRunning) {
		t.Fatalf("second Start err = %v, want SessionAlreadyRunning", err)
	}
}

func TestStopClearsSessionAndBroadcastsDisabled(t *testing.T) {
	svc, _, remote := newTestService(t, &fakeAgent{})
	ctx := context.Background()

	if err := svc.Start(ctx, remote.ID, false); err != nil {
		t.Fatalf("Start: %v", err)
	}
	svc.Stop(ctx)

	status := svc.Status()
	if status.LearnEnabled {
		t.Fatalf("Status after Stop = enabled, want disabled")
	}

	// A fresh Start should succeed again now the slot is free.
	if err := svc.Start(ctx, remote.ID, false); err != nil {
		t.Fatalf("Start after Stop: %v", err)
	}
}

func TestStartExtendComputesNextIndexFromExistingButtons(t *testing.T) {
	agent := &fakeAgent{}
	svc, store, remote := newTestService(t, agent)
	ctx := context.Background()

	if _, err := store.CreateButton(ctx, nil, remote.ID, "BTN_0001", nil); err != nil {
		t.Fatalf("CreateButton: %v", err)
	}
	if _, err := store.CreateButton(ctx, nil, remote.ID, "BTN_0003", nil); err != nil {
		t.Fatalf("CreateButton: %v", err)
	}
	if _, err := store.CreateButton(ctx, nil, remote.ID, "Custom Name", nil); err != nil {
		t.Fatalf("CreateButton: %v", err)
	}

	if err := svc.Start(ctx, remote.ID, true); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if svc.session.NextButtonIndex != 4 {
		t.Fatalf("NextButtonIndex = %d, want 4", svc.session.NextButtonIndex)
	}
}

func TestCapturePressAggregatesTakesAndAutoNames(t *testing.T) {
	frame := "900 -450 500 -1600"
	agent := &fakeAgent{rawFrames: []string{frame, frame, frame}}
	svc, store, remote := newTestService(t, agent)
	ctx := context.Background()

	if err := svc.Start(ctx, remote.ID, false); err != nil {
		t.Fatalf("Start: %v", err)
	}

	result, err := svc.Capture(ctx, CaptureRequest{RemoteID: remote.ID, Mode: "press", Takes: 3, TimeoutMs: 1000})
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if result.ButtonName != "BTN_0001" {
		t.Fatalf("ButtonName = %q, want BTN_0001", result.ButtonName)
	}
	if result.Quality < 0.99 {
		t.Fatalf("Quality = %v, want ~1.0 for identical takes", result.Quality)
	}
	if agent.learnStart != 1 {
		t.Fatalf("learnStart calls = %d, want 1", agent.learnStart)
	}

	sig, ok, err := store.GetSignals(ctx, nil, result.ButtonID)
	if err != nil || !ok {
		t.Fatalf("GetSignals: ok=%v err=%v", ok, err)
	}
	if sig.PressInitial == "" {
		t.Fatalf("PressInitial not persisted")
	}

	if svc.session.NextButtonIndex != 2 {
		t.Fatalf("NextButtonIndex after capture = %d, want 2", svc.session.NextButtonIndex)
	}

	// A second press capture without overwrite should conflict.
	_, err = svc.Capture(ctx, CaptureRequest{RemoteID: remote.ID, Mode: "press", Takes: 1, TimeoutMs: 1000, ButtonName: strPtr("BTN_0001")})
	if !errors.Is(err, apierr.SignalExists) {
		t.Fatalf("repeat capture err = %v, want SignalExists", err)
	}
}

func TestCapturePressPersistsDebugCapturesWhenAgentDebugOn(t *testing.T) {
	frame := "900 -450 500 -1600"
	agent := &fakeAgent{debug: true, rawFrames: []string{frame, frame}}
	svc, store, remote := newTestService(t, agent)
	ctx := context.Background()

	if err := svc.Start(ctx, remote.ID, false); err != nil {
		t.Fatalf("Start: %v", err)
	}
	result, err := svc.Capture(ctx, CaptureRequest{RemoteID: remote.ID, Mode: "press", Takes: 2, TimeoutMs: 1000})
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}

	captures, err := store.ListCaptures(ctx, nil, result.ButtonID)
	if err != nil {
		t.Fatalf("ListCaptures: %v", err)
	}
	if len(captures) != 2 {
		t.Fatalf("len(captures) = %d, want 2", len(captures))
	}
}

func TestCaptureHoldRequiresExistingPress(t *testing.T) {
	agent := &fakeAgent{}
	svc, store, remote := newTestService(t, agent)
	ctx := context.Background()

	if _, err := store.CreateButton(ctx, nil, remote.ID, "BTN_0001", nil); err != nil {
		t.Fatalf("CreateButton: %v", err)
	}
	if err := svc.Start(ctx, remote.ID, false); err != nil {
		t.Fatalf("Start: %v", err)
	}

	_, err := svc.Capture(ctx, CaptureRequest{RemoteID: remote.ID, Mode: "hold", Takes: 1, TimeoutMs: 200, ButtonName: strPtr("BTN_0001")})
	if !errors.Is(err, apierr.PressMissing) {
		t.Fatalf("hold without press err = %v, want PressMissing", err)
	}
}

func TestCaptureHoldExtractsRepeatsAndStopsOnTimeout(t *testing.T) {
	press := "900 -450 500 -1600"
	initial := "900 -450 500 -4500"
	repeat := "900 -450 200 -2250"
	agent := &fakeAgent{rawFrames: []string{press, initial, repeat, repeat}}
	svc, _, remote := newTestService(t, agent)
	ctx := context.Background()

	if err := svc.Start(ctx, remote.ID, false); err != nil {
		t.Fatalf("Start: %v", err)
	}
	pressResult, err := svc.Capture(ctx, CaptureRequest{RemoteID: remote.ID, Mode: "press", Takes: 1, TimeoutMs: 500})
	if err != nil {
		t.Fatalf("press Capture: %v", err)
	}

	result, err := svc.Capture(ctx, CaptureRequest{RemoteID: remote.ID, Mode: "hold", Takes: 1, TimeoutMs: 2000, ButtonName: strPtr(pressResult.ButtonName)})
	if err != nil {
		t.Fatalf("hold Capture: %v", err)
	}
	if result.RepeatCount != 2 {
		t.Fatalf("RepeatCount = %d, want 2 (two repeats before the scripted agent ran dry)", result.RepeatCount)
	}
}

func TestCaptureFailsWhenAgentOffline(t *testing.T) {
	svc, _, remote := newTestService(t, &fakeAgent{})
	svc.agents = &fakeLookup{agentID: "agent-1", agent: &fakeAgent{}, offline: true}
	ctx := context.Background()

	if err := svc.Start(ctx, remote.ID, false); err != nil {
		t.Fatalf("Start: %v", err)
	}
	_, err := svc.Capture(ctx, CaptureRequest{RemoteID: remote.ID, Mode: "press", Takes: 1, TimeoutMs: 500})
	if !errors.Is(err, apierr.AgentOffline) {
		t.Fatalf("Capture with offline agent err = %v, want AgentOffline", err)
	}
}

func TestCaptureRejectsInvalidMode(t *testing.T) {
	svc, _, remote := newTestService(t, &fakeAgent{})
	ctx := context.Background()
	if err := svc.Start(ctx, remote.ID, false); err != nil {
		t.Fatalf("Start: %v", err)
	}
	_, err := svc.Capture(ctx, CaptureRequest{RemoteID: remote.ID, Mode: "bogus", Takes: 1, TimeoutMs: 500})
	if !errors.Is(err, apierr.Validation) && !strings.Contains(err.Error(), "validation") {
		t.Fatalf("invalid mode err = %v, want a validation error", err)
	}
}

func strPtr(s string) *string { return &s }
