// Package sender turns a resolved button's signals into an engine send
// call: decode the stored pulse trains, work out how many times the hold
// repeat has to fire to cover the requested hold duration, and hand the
// resulting files to the IR hardware engine.
package sender

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/irhub/irhub/internal/engine"
	"github.com/irhub/irhub/internal/irsignal"
	"github.com/irhub/irhub/internal/protocol"
)

var ErrInvalidRequest = errors.New("sender: invalid request")

// Plan is the validated, decoded form of a send request: everything
// Execute needs, with no further interpretation required.
type Plan struct {
	Mode      string
	CarrierHz *int
	DutyCycle *int
	GapUs     *int
	Repeats   int
	Files     []irsignal.Frame
}

// Result mirrors protocol.SendResult minus the fields the caller already
// knows (mode/carrier/duty/gap come from the Plan).
type Result struct {
	Stdout string
	Stderr string
}

// BuildPlan validates req and decodes its pulse trains. It performs no I/O.
func BuildPlan(req protocol.SendRequest) (Plan, error) {
	if req.PressInitial == "" {
		return Plan{}, fmt.Errorf("%w: press_initial is required", ErrInvalidRequest)
	}

	switch req.Mode {
	case "press":
		initial, err := irsignal.DecodePulses(req.PressInitial)
		if err != nil {
			return Plan{}, fmt.Errorf("%w: press_initial: %v", ErrInvalidRequest, err)
		}
		return Plan{
			Mode:      "press",
			CarrierHz: req.CarrierHz,
			DutyCycle: req.DutyCycle,
			Files:     []irsignal.Frame{initial},
		}, nil

	case "hold":
		if req.HoldMs <= 0 {
			return Plan{}, fmt.Errorf("%w: hold_ms must be > 0", ErrInvalidRequest)
		}
		if req.HoldInitial == "" || req.HoldRepeat == "" {
			return Plan{}, fmt.Errorf("%w: hold_initial and hold_repeat are required", ErrInvalidRequest)
		}
		if req.HoldGapUs <= 0 {
			return Plan{}, fmt.Errorf("%w: hold_gap_us must be > 0", ErrInvalidRequest)
		}

		initial, err := irsignal.DecodePulses(req.HoldInitial)
		if err != nil {
			return Plan{}, fmt.Errorf("%w: hold_initial: %v", ErrInvalidRequest, err)
		}
		repeat, err := irsignal.DecodePulses(req.HoldRepeat)
		if err != nil {
			return Plan{}, fmt.Errorf("%w: hold_repeat: %v", ErrInvalidRequest, err)
		}

		repeats := repeatCount(req.HoldMs, initial, repeat, req.HoldGapUs)
		gapUs := req.HoldGapUs
		files := make([]irsignal.Frame, 0, repeats+1)
		files = append(files, initial)
		for i := 0; i < repeats; i++ {
			files = append(files, repeat)
		}

		return Plan{
			Mode:      "hold",
			CarrierHz: req.CarrierHz,
			DutyCycle: req.DutyCycle,
			GapUs:     &gapUs,
			Repeats:   repeats,
			Files:     files,
		}, nil

	default:
		return Plan{}, fmt.Errorf("%w: mode must be press or hold, got %q", ErrInvalidRequest, req.Mode)
	}
}

// repeatCount implements the ceiling formula from §4.13:
// max(1, ceil((hold_ms*1000 - sum|initial|) / (sum|repeat| + gap_us))).
func repeatCount(holdMs int, initial, repeat irsignal.Frame, gapUs int) int {
	holdUs := float64(holdMs) * 1000
	initialUs := sumAbs(initial)
	repeatUs := sumAbs(repeat)

	denom := repeatUs + float64(gapUs)
	if denom <= 0 {
		return 1
	}
	n := int(math.Ceil((holdUs - initialUs) / denom))
	if n < 1 {
		return 1
	}
	return n
}

func sumAbs(f irsignal.Frame) float64 {
	var total float64
	for _, v := range f {
		if v < 0 {
			total -= float64(v)
		} else {
			total += float64(v)
		}
	}
	return total
}

// Execute writes the plan's frames to scratch files and invokes the engine.
func Execute(ctx context.Context, eng engine.Engine, scratchDir string, plan Plan, emitters []string) (Result, error) {
	paths := make([]string, 0, len(plan.Files))
	defer func() {
		for _, p := range paths {
			os.Remove(p)
		}
	}()

	for i, frame := range plan.Files {
		f, err := os.CreateTemp(scratchDir, fmt.Sprintf("irhub-send-%d-*.txt", i))
		if err != nil {
			return Result{}, fmt.Errorf("sender: scratch file: %w", err)
		}
		content := irsignal.ToPulseSpaceText(frame)
		if _, err := f.WriteString(content); err != nil {
			f.Close()
			return Result{}, fmt.Errorf("sender: write scratch file: %w", err)
		}
		f.Close()
		paths = append(paths, f.Name())
	}

	sendResult, err := eng.SendFiles(ctx, paths, plan.GapUs, plan.CarrierHz, plan.DutyCycle, emitters)
	if err != nil {
		return Result{}, err
	}
	return Result{Stdout: sendResult.Stdout, Stderr: sendResult.Stderr}, nil
}
