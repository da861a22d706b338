// Package agentapi defines the operation set every agent exposes to the
// hub, regardless of whether it runs in-process (LocalAgent) or is reached
// over MQTT (MqttAgent).
package agentapi

import (
	"context"
	"errors"

	"github.com/irhub/irhub/internal/engine"
	"github.com/irhub/irhub/internal/protocol"
	"github.com/irhub/irhub/internal/rpc"
)

// Agent is the uniform surface the registry and sender service drive.
type Agent interface {
	Send(ctx context.Context, req protocol.SendRequest) (protocol.SendResult, error)
	LearnStart(ctx context.Context, session string) error
	LearnStop(ctx context.Context, session string) error
	LearnCapture(ctx context.Context, req protocol.LearnCaptureRequest) (protocol.LearnCaptureResult, error)
	Status(ctx context.Context) (protocol.StatusResult, error)
	// DebugGet reports the agent's current debug flag, consulted by the
	// learning service to decide whether to persist raw per-take captures.
	DebugGet(ctx context.Context) (bool, error)
}

// IsCaptureTimeout reports whether err represents a LearnCapture call that
// produced no frame within its window, regardless of whether the agent ran
// in-process (engine.ErrTimeout) or over MQTT (an AgentRoutingError carrying
// the "timeout" code the agent-side handler classifies engine.ErrTimeout
// into). The learning service's hold-capture loop uses this to stop
// collecting repeats rather than fail the capture outright.
func IsCaptureTimeout(err error) bool {
	if errors.Is(err, engine.ErrTimeout) {
		return true
	}
	var routingErr *rpc.AgentRoutingError
	if errors.As(err, &routingErr) {
		return routingErr.Code == "timeout"
	}
	return false
}
