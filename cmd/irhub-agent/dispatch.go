package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/irhub/irhub/internal/agentapi"
	"github.com/irhub/irhub/internal/agentstate"
	"github.com/irhub/irhub/internal/logs"
	"github.com/irhub/irhub/internal/protocol"
	"github.com/irhub/irhub/internal/rpc"
	"github.com/irhub/irhub/internal/sender"
)

// newDispatcher wires the RPC command set (C8) onto the same LocalAgent
// logic the hub uses for an embedded local agent: send builds and executes
// a plan, learn/start and learn/stop just toggle the busy flag (the
// capture loop itself lives in the hub's learning service and drives
// learn/capture repeatedly), and the runtime/debug commands read and write
// the persisted debug flag agentstate.Store exposes on the state topic.
func newDispatcher(local *agentapi.LocalAgent, state *agentstate.Store, reporter *logs.Reporter) rpc.Dispatcher {
	return func(ctx context.Context, command string, payload json.RawMessage) (any, error) {
		switch command {
		case protocol.CmdSend:
			var req protocol.SendRequest
			if err := json.Unmarshal(payload, &req); err != nil {
				return nil, fmt.Errorf("%w: %v", rpc.ErrValueError, err)
			}
			result, err := local.Send(ctx, req)
			if err != nil {
				reporter.Log(logs.Event{Level: protocol.LogError, Category: "send", Message: err.Error()})
				return nil, classifyLocalErr(err)
			}
			return result, nil

		case protocol.CmdLearnStart:
			local.SetLearningActive(true)
			return nil, nil

		case protocol.CmdLearnStop:
			local.SetLearningActive(false)
			return nil, nil

		case protocol.CmdLearnCapture:
			var req protocol.LearnCaptureRequest
			if err := json.Unmarshal(payload, &req); err != nil {
				return nil, fmt.Errorf("%w: %v", rpc.ErrValueError, err)
			}
			result, err := local.LearnCapture(ctx, req)
			if err != nil {
				reporter.Log(logs.Event{Level: protocol.LogWarn, Category: "learn_capture", Message: err.Error()})
				return nil, classifyLocalErr(err)
			}
			return result, nil

		case protocol.CmdRuntimeDebugGet:
			return protocol.DebugGetResult{Debug: state.Snapshot().Debug}, nil

		case protocol.CmdRuntimeDebugSet:
			var req protocol.DebugSetRequest
			if err := json.Unmarshal(payload, &req); err != nil {
				return nil, fmt.Errorf("%w: %v", rpc.ErrValueError, err)
			}
			if err := state.SetDebug(req.Debug); err != nil {
				return nil, err
			}
			return protocol.DebugGetResult{Debug: req.Debug}, nil

		default:
			return nil, fmt.Errorf("%w: unknown command %q", rpc.ErrValueError, command)
		}
	}
}

// classifyLocalErr wraps LocalAgent/sender sentinels the handler's
// classifyError doesn't already know about (engine.ErrTimeout is handled
// there directly) so they come back as the right RPC error code.
func classifyLocalErr(err error) error {
	switch {
	case errors.Is(err, sender.ErrInvalidRequest):
		return fmt.Errorf("%w: %v", rpc.ErrValueError, err)
	case errors.Is(err, agentapi.ErrLearningActive):
		return fmt.Errorf("%w: %v", rpc.ErrRuntimeError, err)
	default:
		return err
	}
}
