package agentapi

import (
	"context"
	"encoding/json"
	"time"

	"github.com/irhub/irhub/internal/protocol"
	"github.com/irhub/irhub/internal/rpc"
)

// MqttAgent delegates every operation to a remote agent over the MQTT
// command RPC (C8), applying the per-command timeout table from §4.7.
// Status is not part of the RPC command set (§4.8); it reflects the
// capabilities recorded for this agent in the catalog, since "online"
// here just means "currently registered".
type MqttAgent struct {
	Client   *rpc.Client
	AgentID  string
	CanSend  bool
	CanLearn bool
}

func (a *MqttAgent) call(ctx context.Context, command string, payload any, timeout time.Duration, out any) error {
	result, err := a.Client.Call(ctx, a.AgentID, command, payload, timeout)
	if err != nil {
		return err
	}
	if out == nil || len(result) == 0 {
		return nil
	}
	return json.Unmarshal(result, out)
}

func (a *MqttAgent) Send(ctx context.Context, req protocol.SendRequest) (protocol.SendResult, error) {
	timeout := 12 * time.Second
	if req.Mode == "hold" {
		t := time.Duration(req.HoldMs)*time.Millisecond + 5*time.Second
		if t < 12*time.Second {
			t = 12 * time.Second
		}
		timeout = t
	}
	var out protocol.SendResult
	if err := a.call(ctx, protocol.CmdSend, req, timeout, &out); err != nil {
		return protocol.SendResult{}, err
	}
	return out, nil
}

func (a *MqttAgent) LearnStart(ctx context.Context, session string) error {
	return a.call(ctx, protocol.CmdLearnStart, protocol.LearnStartRequest{Session: session}, 8*time.Second, nil)
}

func (a *MqttAgent) LearnStop(ctx context.Context, session string) error {
	return a.call(ctx, protocol.CmdLearnStop, protocol.LearnStopRequest{Session: session}, 8*time.Second, nil)
}

func (a *MqttAgent) LearnCapture(ctx context.Context, req protocol.LearnCaptureRequest) (protocol.LearnCaptureResult, error) {
	timeout := 20 * time.Second
	if req.TimeoutMs > 0 {
		t := time.Duration(req.TimeoutMs)*time.Millisecond + 5*time.Second
		if t < 5*time.Second {
			t = 5 * time.Second
		}
		timeout = t
	}
	var out protocol.LearnCaptureResult
	if err := a.call(ctx, protocol.CmdLearnCapture, req, timeout, &out); err != nil {
		return protocol.LearnCaptureResult{}, err
	}
	return out, nil
}

func (a *MqttAgent) Status(ctx context.Context) (protocol.StatusResult, error) {
	return protocol.StatusResult{
		Online:   true,
		CanSend:  a.CanSend,
		CanLearn: a.CanLearn,
	}, nil
}

func (a *MqttAgent) DebugGet(ctx context.Context) (bool, error) {
	var out protocol.DebugGetResult
	if err := a.call(ctx, protocol.CmdRuntimeDebugGet, nil, 5*time.Second, &out); err != nil {
		return false, err
	}
	return out.Debug, nil
}
