package learning

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/irhub/irhub/internal/agentapi"
	"github.com/irhub/irhub/internal/apierr"
	"github.com/irhub/irhub/internal/catalog"
	"github.com/irhub/irhub/internal/irsignal"
	"github.com/irhub/irhub/internal/protocol"
)

// Capture drives one press or hold capture within the active session, per
// spec §4.12. The session must already be running on req.RemoteID.
func (s *Service) Capture(ctx context.Context, req CaptureRequest) (CaptureResult, error) {
	if req.Mode != "press" && req.Mode != "hold" {
		return CaptureResult{}, apierr.Validation.WithMessage("mode must be \"press\" or \"hold\"")
	}
	if req.Takes <= 0 {
		req.Takes = 1
	}
	if req.TimeoutMs <= 0 {
		return CaptureResult{}, apierr.Validation.WithMessage("timeout_ms must be > 0")
	}

	s.mu.Lock()
	sess := s.session
	if sess == nil || sess.RemoteID != req.RemoteID {
		s.mu.Unlock()
		return CaptureResult{}, apierr.NotFound.WithMessage("no active learning session for this remote")
	}
	agentID := sess.AgentID
	alreadyStarted := sess.learnStarted
	settings := s.settings
	s.mu.Unlock()

	agent, ok := s.agents.Live(agentID)
	if !ok {
		return CaptureResult{}, apierr.AgentOffline
	}

	if !alreadyStarted {
		if err := agent.LearnStart(ctx, req.RemoteID); err != nil {
			return CaptureResult{}, fmt.Errorf("learning: learn start: %w", err)
		}
		s.mu.Lock()
		if s.session != nil && s.session.RemoteID == req.RemoteID {
			s.session.learnStarted = true
		}
		s.mu.Unlock()
	}

	if req.Mode == "press" {
		return s.capturePress(ctx, agent, req, settings)
	}
	return s.captureHold(ctx, agent, req, settings)
}

func (s *Service) capturePress(ctx context.Context, agent agentapi.Agent, req CaptureRequest, settings Settings) (CaptureResult, error) {
	buttonName, autoNamed, err := s.resolveButtonName(req)
	if err != nil {
		return CaptureResult{}, err
	}

	button, err := s.store.CreateButton(ctx, nil, req.RemoteID, buttonName, nil)
	if err != nil {
		return CaptureResult{}, fmt.Errorf("learning: create button: %w", err)
	}

	existing, ok, err := s.store.GetSignals(ctx, nil, button.ID)
	if err != nil {
		return CaptureResult{}, fmt.Errorf("learning: get signals: %w", err)
	}
	if ok && existing.PressInitial != "" && !req.Overwrite {
		return CaptureResult{}, apierr.SignalExists
	}

	frames := make([]irsignal.Frame, 0, req.Takes)
	debugOn, err := agent.DebugGet(ctx)
	if err != nil {
		debugOn = false
	}

	for take := 0; take < req.Takes; take++ {
		res, err := agent.LearnCapture(ctx, protocol.LearnCaptureRequest{TimeoutMs: req.TimeoutMs, Mode: "press"})
		if err != nil {
			return CaptureResult{}, fmt.Errorf("learning: capture press take %d: %w", take+1, err)
		}
		if debugOn {
			if err := s.store.CreateCapture(ctx, nil, button.ID, "press", take, res.Raw); err != nil {
				return CaptureResult{}, fmt.Errorf("learning: persist debug capture: %w", err)
			}
		}
		frame, _, err := irsignal.ParseAndNormalize(res.Raw)
		if err != nil {
			return CaptureResult{}, fmt.Errorf("learning: parse press take %d: %w", take+1, err)
		}
		frames = append(frames, frame)
	}

	agg, err := irsignal.Aggregate(frames, settings.AggregateRoundToUs, settings.AggregateMinMatchRatio)
	if err != nil {
		return CaptureResult{}, apierr.NeedMoreFrames.WithMessage(err.Error())
	}

	encoded := irsignal.EncodePulses(agg.Aggregated)
	if err := s.store.UpsertPress(ctx, nil, catalog.UpsertPressInput{
		ButtonID:     button.ID,
		PressInitial: encoded,
		SampleCount:  len(agg.Dominant),
		Quality:      agg.Quality,
	}); err != nil {
		return CaptureResult{}, fmt.Errorf("learning: persist press: %w", err)
	}

	s.mu.Lock()
	if s.session != nil && s.session.RemoteID == req.RemoteID {
		if autoNamed {
			s.session.NextButtonIndex++
		}
		id := button.ID
		name := button.Name
		s.session.LastButtonID = &id
		s.session.LastButtonName = &name
		s.session.appendLog(LogEntry{
			Timestamp: time.Now(),
			Level:     "success",
			Message:   fmt.Sprintf("captured press for %s (takes=%d, quality=%.2f)", button.Name, req.Takes, agg.Quality),
		})
		status := s.session.status()
		s.mu.Unlock()
		s.broadcaster.Broadcast(ctx, status)
	} else {
		s.mu.Unlock()
	}

	return CaptureResult{ButtonID: button.ID, ButtonName: button.Name, Mode: "press", Quality: agg.Quality}, nil
}

// resolveButtonName picks the name a press capture should write to: the
// caller's explicit choice, or the next BTN_%04d slot, reporting whether it
// was auto-assigned so the caller only advances the session counter then.
func (s *Service) resolveButtonName(req CaptureRequest) (name string, autoNamed bool, err error) {
	if req.ButtonName != nil && *req.ButtonName != "" {
		return *req.ButtonName, false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil || s.session.RemoteID != req.RemoteID {
		return "", false, apierr.NotFound.WithMessage("no active learning session for this remote")
	}
	return fmt.Sprintf("BTN_%04d", s.session.NextButtonIndex), true, nil
}

func (s *Service) captureHold(ctx context.Context, agent agentapi.Agent, req CaptureRequest, settings Settings) (CaptureResult, error) {
	button, err := s.resolveHoldButton(ctx, req)
	if err != nil {
		return CaptureResult{}, err
	}

	signals, ok, err := s.store.GetSignals(ctx, nil, button.ID)
	if err != nil {
		return CaptureResult{}, fmt.Errorf("learning: get signals: %w", err)
	}
	if !ok || signals.PressInitial == "" {
		return CaptureResult{}, apierr.PressMissing
	}
	if signals.HoldInitial != nil && *signals.HoldInitial != "" && !req.Overwrite {
		return CaptureResult{}, apierr.SignalExists
	}

	debugOn, err := agent.DebugGet(ctx)
	if err != nil {
		debugOn = false
	}

	frames, tailGaps, frameEnds, err := s.collectHoldFrames(ctx, agent, button.ID, req.TimeoutMs, settings.HoldIdleTimeoutMs, debugOn)
	if err != nil {
		return CaptureResult{}, err
	}
	if len(frames) < 2 {
		return CaptureResult{}, apierr.NeedMoreFrames
	}

	hr, err := irsignal.ExtractHold(frames, settings.AggregateRoundToUs, settings.AggregateMinMatchRatio)
	if err != nil {
		return CaptureResult{}, apierr.NeedMoreFrames.WithMessage(err.Error())
	}

	gap, err := irsignal.InferGap(frames, tailGaps, frameEnds)
	if err != nil {
		return CaptureResult{}, apierr.NeedMoreFrames.WithMessage(err.Error())
	}

	if err := s.store.UpdateHold(ctx, nil, catalog.UpdateHoldInput{
		ButtonID:    button.ID,
		HoldInitial: irsignal.EncodePulses(hr.Initial),
		HoldRepeat:  irsignal.EncodePulses(hr.Repeat),
		HoldGapUs:   int(gap),
		SampleCount: hr.RepeatCount,
		Quality:     hr.Quality,
	}); err != nil {
		return CaptureResult{}, fmt.Errorf("learning: persist hold: %w", err)
	}

	s.mu.Lock()
	if s.session != nil && s.session.RemoteID == req.RemoteID {
		id := button.ID
		name := button.Name
		s.session.LastButtonID = &id
		s.session.LastButtonName = &name
		s.session.appendLog(LogEntry{
			Timestamp: time.Now(),
			Level:     "success",
			Message:   fmt.Sprintf("captured hold for %s (repeats=%d, quality=%.2f)", button.Name, hr.RepeatCount, hr.Quality),
		})
		status := s.session.status()
		s.mu.Unlock()
		s.broadcaster.Broadcast(ctx, status)
	} else {
		s.mu.Unlock()
	}

	return CaptureResult{ButtonID: button.ID, ButtonName: button.Name, Mode: "hold", Quality: hr.Quality, RepeatCount: hr.RepeatCount}, nil
}

// resolveHoldButton picks the button a hold capture targets: an explicit
// name within the remote, or the session's most recently captured button.
func (s *Service) resolveHoldButton(ctx context.Context, req CaptureRequest) (catalog.Button, error) {
	if req.ButtonName != nil && *req.ButtonName != "" {
		button, err := s.store.CreateButton(ctx, nil, req.RemoteID, *req.ButtonName, nil)
		if err != nil {
			return catalog.Button{}, mapCatalogNotFound(err)
		}
		return button, nil
	}

	s.mu.Lock()
	if s.session == nil || s.session.RemoteID != req.RemoteID {
		s.mu.Unlock()
		return catalog.Button{}, apierr.NotFound.WithMessage("no active learning session for this remote")
	}
	lastID := s.session.LastButtonID
	s.mu.Unlock()

	if lastID == nil {
		return catalog.Button{}, apierr.Validation.WithMessage("no button specified and no prior capture in this session")
	}
	button, err := s.store.GetButton(ctx, nil, *lastID)
	if err != nil {
		return catalog.Button{}, mapCatalogNotFound(err)
	}
	return button, nil
}

// mapCatalogNotFound turns the catalog package's unknown-id sentinels into
// the shared apierr envelope so they reach the HTTP layer as a clean 404
// rather than an opaque 500.
func mapCatalogNotFound(err error) error {
	if errors.Is(err, catalog.ErrUnknownButton) || errors.Is(err, catalog.ErrUnknownRemote) {
		return apierr.NotFound.WithMessage(err.Error())
	}
	return err
}

// collectHoldFrames runs the repeat-collection loop from spec §4.12: an
// initial blocking capture up to timeoutMs, then successive captures each
// bounded by min(holdIdleTimeoutMs, time remaining before timeoutMs elapses
// from the initial capture), stopping at the first capture timeout.
func (s *Service) collectHoldFrames(ctx context.Context, agent agentapi.Agent, buttonID string, timeoutMs, holdIdleTimeoutMs int, debugOn bool) ([]irsignal.Frame, []*int32, []float64, error) {
	epoch := time.Now()

	var frames []irsignal.Frame
	var tailGaps []*int32
	var frameEnds []float64

	takeFrame := func(take int, ms int) (bool, error) {
		res, err := agent.LearnCapture(ctx, protocol.LearnCaptureRequest{TimeoutMs: ms, Mode: "hold"})
		if err != nil {
			if agentapi.IsCaptureTimeout(err) {
				return false, nil
			}
			return false, fmt.Errorf("learning: capture hold take %d: %w", take+1, err)
		}
		if debugOn {
			if err := s.store.CreateCapture(ctx, nil, buttonID, "hold", take, res.Raw); err != nil {
				return false, fmt.Errorf("learning: persist debug capture: %w", err)
			}
		}
		frame, tailGap, err := irsignal.ParseAndNormalize(res.Raw)
		if err != nil {
			return false, fmt.Errorf("learning: parse hold take %d: %w", take+1, err)
		}
		frames = append(frames, frame)
		tailGaps = append(tailGaps, tailGap)
		frameEnds = append(frameEnds, time.Since(epoch).Seconds())
		return true, nil
	}

	got, err := takeFrame(0, timeoutMs)
	if err != nil {
		return nil, nil, nil, err
	}
	if !got {
		return frames, tailGaps, frameEnds, nil
	}

	deadline := time.Now().Add(time.Duration(timeoutMs) * time.Millisecond)
	for take := 1; ; take++ {
		remainingMs := int(time.Until(deadline).Milliseconds())
		if remainingMs <= 0 {
			break
		}
		effectiveMs := holdIdleTimeoutMs
		if remainingMs < effectiveMs {
			effectiveMs = remainingMs
		}
		if effectiveMs <= 0 {
			break
		}

		got, err := takeFrame(take, effectiveMs)
		if err != nil {
			return nil, nil, nil, err
		}
		if !got {
			break
		}
	}

	return frames, tailGaps, frameEnds, nil
}
