package agentapi

import (
	"context"
	"errors"
	"sync"

	"github.com/irhub/irhub/internal/engine"
	"github.com/irhub/irhub/internal/protocol"
	"github.com/irhub/irhub/internal/sender"
)

// ErrLearningActive is returned by Send while a learning session owns the
// hardware engine.
var ErrLearningActive = errors.New("agentapi: learning session active")

// LocalAgent drives the IR hardware engine directly, in-process. It is used
// when the hub and the hardware share a host.
type LocalAgent struct {
	Engine     engine.Engine
	ScratchDir string
	Emitters   []string
	CanSend    bool
	CanLearn   bool

	// DebugFlag, if set, reports the agent's current debug flag (backed by
	// internal/agentstate.Store.Snapshot().Debug in the local process). Nil
	// means debug is always considered off.
	DebugFlag func() bool

	mu             sync.Mutex
	learningActive bool
}

// SetLearningActive sets the flag that makes Send fail with
// ErrLearningActive, so sends during a learning session are rejected rather
// than racing the engine. LearnStart and LearnStop set and clear it; the
// agent process's RPC dispatcher also calls it directly.
func (a *LocalAgent) SetLearningActive(active bool) {
	a.mu.Lock()
	a.learningActive = active
	a.mu.Unlock()
}

func (a *LocalAgent) isLearningActive() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.learningActive
}

func (a *LocalAgent) Send(ctx context.Context, req protocol.SendRequest) (protocol.SendResult, error) {
	if a.isLearningActive() {
		return protocol.SendResult{}, ErrLearningActive
	}
	plan, err := sender.BuildPlan(req)
	if err != nil {
		return protocol.SendResult{}, err
	}
	result, err := sender.Execute(ctx, a.Engine, a.ScratchDir, plan, a.Emitters)
	if err != nil {
		return protocol.SendResult{}, err
	}
	return protocol.SendResult{
		Mode:      plan.Mode,
		Repeats:   plan.Repeats,
		CarrierHz: plan.CarrierHz,
		DutyCycle: plan.DutyCycle,
		GapUs:     plan.GapUs,
		Stdout:    result.Stdout,
		Stderr:    result.Stderr,
	}, nil
}

// LearnStart and LearnStop set and clear the learning-active flag (see
// SetLearningActive); captures themselves go through LearnCapture.
func (a *LocalAgent) LearnStart(ctx context.Context, session string) error {
	a.SetLearningActive(true)
	return nil
}

func (a *LocalAgent) LearnStop(ctx context.Context, session string) error {
	a.SetLearningActive(false)
	return nil
}

func (a *LocalAgent) LearnCapture(ctx context.Context, req protocol.LearnCaptureRequest) (protocol.LearnCaptureResult, error) {
	res, err := a.Engine.ReceiveOne(ctx, req.TimeoutMs, req.Wideband)
	if err != nil {
		return protocol.LearnCaptureResult{}, err
	}
	return protocol.LearnCaptureResult{Raw: res.Raw}, nil
}

func (a *LocalAgent) Status(ctx context.Context) (protocol.StatusResult, error) {
	return protocol.StatusResult{
		Online:         true,
		LearningActive: a.isLearningActive(),
		CanSend:        a.CanSend,
		CanLearn:       a.CanLearn,
	}, nil
}

func (a *LocalAgent) DebugGet(ctx context.Context) (bool, error) {
	if a.DebugFlag == nil {
		return false, nil
	}
	return a.DebugFlag(), nil
}
