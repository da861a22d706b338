// Package engine implements the IR hardware engine (spec component C4): a
// thin contract over one-shot IR reception and pulse-file transmission,
// backed by external CLI binaries.
package engine

import (
	"context"
	"errors"
)

// ErrTimeout is returned when the external receiver produced nothing within
// the requested window: the run outlived its deadline, or it exited cleanly
// with an empty capture. A non-zero exit is an EngineFailure instead.
var ErrTimeout = errors.New("engine: timeout")

// EngineFailure wraps a non-zero exit from an external binary, carrying its
// stderr for diagnostics.
type EngineFailure struct {
	Stderr string
}

func (e *EngineFailure) Error() string {
	return "engine: external command failed: " + e.Stderr
}

// ReceiveResult is the outcome of a one-shot receive.
type ReceiveResult struct {
	Raw    string
	Stdout string
	Stderr string
}

// SendResult is the outcome of a pulse-file transmission.
type SendResult struct {
	Stdout string
	Stderr string
}

// Engine is the contract C13 (sender) and C12 (learning) depend on. It never
// interprets pulse/space text itself; that is irsignal's job.
type Engine interface {
	// ReceiveOne waits up to timeoutMs for a single IR message.
	ReceiveOne(ctx context.Context, timeoutMs int, wideband bool) (ReceiveResult, error)

	// SendFiles transmits one or more pulse/space files in order. gapUs,
	// carrierHz, and dutyCycle are forwarded as flags only when non-nil;
	// emitters, when non-empty, restricts which hardware emitters fire.
	SendFiles(ctx context.Context, paths []string, gapUs, carrierHz, dutyCycle *int, emitters []string) (SendResult, error)
}
