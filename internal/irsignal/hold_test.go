package irsignal

import (
	"errors"
	"testing"
)

func TestExtractHoldNoRepeats(t *testing.T) {
	initial := Frame{900, -450, 900}
	got, err := ExtractHold([]Frame{initial}, 1, 0.5)
	if err != nil {
		t.Fatalf("ExtractHold: %v", err)
	}
	if !framesEqual(got.Initial, initial) {
		t.Fatalf("Initial = %v, want %v", got.Initial, initial)
	}
	if got.Repeat != nil || got.RepeatCount != 0 {
		t.Fatalf("Repeat = %v, RepeatCount = %d, want nil/0", got.Repeat, got.RepeatCount)
	}
}

func TestExtractHoldWithRepeats(t *testing.T) {
	initial := Frame{9000, -4500, 560, -560, 560}
	repeats := []Frame{
		{560, -560, 560},
		{562, -558, 561},
		{558, -562, 559},
	}
	frames := append([]Frame{initial}, repeats...)

	got, err := ExtractHold(frames, 1, 0.5)
	if err != nil {
		t.Fatalf("ExtractHold: %v", err)
	}
	if !framesEqual(got.Initial, initial) {
		t.Fatalf("Initial = %v, want %v", got.Initial, initial)
	}
	if got.RepeatCount != 3 {
		t.Fatalf("RepeatCount = %d, want 3", got.RepeatCount)
	}
	want := Frame{560, -560, 560}
	if !framesEqual(got.Repeat, want) {
		t.Fatalf("Repeat = %v, want %v", got.Repeat, want)
	}
}

func TestExtractHoldNoFrames(t *testing.T) {
	if _, err := ExtractHold(nil, 1, 0.5); !errors.Is(err, ErrNeedMoreFrames) {
		t.Fatalf("ExtractHold(nil) err = %v, want ErrNeedMoreFrames", err)
	}
}

func TestInferGapFromTailGaps(t *testing.T) {
	initial := Frame{9000, -4500}
	r1 := Frame{560, -560}
	r2 := Frame{561, -561}
	r3 := Frame{559, -559}
	r4 := Frame{560, -560}
	frames := []Frame{initial, r1, r2, r3, r4}

	g1, g2, g3, g4 := int32(45000), int32(45010), int32(44990), int32(45000)
	tailGaps := []*int32{nil, &g1, &g2, &g3, &g4}
	ends := make([]float64, len(frames))

	got, err := InferGap(frames, tailGaps, ends)
	if err != nil {
		t.Fatalf("InferGap: %v", err)
	}
	if got != 45000 {
		t.Fatalf("InferGap = %d, want 45000", got)
	}
}

func TestInferGapTwoCandidatesTakesMinimum(t *testing.T) {
	initial := Frame{9000, -4500}
	r1 := Frame{560, -560}
	r2 := Frame{560, -560}
	frames := []Frame{initial, r1, r2}

	g1, g2 := int32(45000), int32(44000)
	tailGaps := []*int32{nil, &g1, &g2}
	ends := make([]float64, len(frames))

	got, err := InferGap(frames, tailGaps, ends)
	if err != nil {
		t.Fatalf("InferGap: %v", err)
	}
	if got != 44000 {
		t.Fatalf("InferGap = %d, want 44000 (minimum of two)", got)
	}
}

func TestInferGapSingleCandidatePassesThrough(t *testing.T) {
	initial := Frame{9000, -4500}
	r1 := Frame{560, -560}
	frames := []Frame{initial, r1}

	g1 := int32(45000)
	tailGaps := []*int32{nil, &g1}
	ends := make([]float64, len(frames))

	got, err := InferGap(frames, tailGaps, ends)
	if err != nil {
		t.Fatalf("InferGap: %v", err)
	}
	if got != 45000 {
		t.Fatalf("InferGap = %d, want 45000", got)
	}
}

func TestInferGapFallsBackToTimestamps(t *testing.T) {
	initial := Frame{9000, -4500} // duration 13500us
	r1 := Frame{560, -560}        // duration 1120us
	frames := []Frame{initial, r1}
	tailGaps := []*int32{nil, nil}
	// end[0] at t=0, end[1] at t=0.0596s -> delta=59600us, minus r1 duration
	// 1120us = 58480us gap.
	ends := []float64{0, 0.0596}

	got, err := InferGap(frames, tailGaps, ends)
	if err != nil {
		t.Fatalf("InferGap: %v", err)
	}
	if got != 58480 {
		t.Fatalf("InferGap = %d, want 58480", got)
	}
}

func TestInferGapNoPositiveGapFails(t *testing.T) {
	initial := Frame{9000, -4500}
	r1 := Frame{560, -560}
	frames := []Frame{initial, r1}
	g1 := int32(-100)
	tailGaps := []*int32{nil, &g1}
	ends := make([]float64, len(frames))

	if _, err := InferGap(frames, tailGaps, ends); !errors.Is(err, ErrNeedMoreFrames) {
		t.Fatalf("InferGap err = %v, want ErrNeedMoreFrames", err)
	}
}

func TestInferGapRequiresARepeat(t *testing.T) {
	frames := []Frame{{9000, -4500}}
	tailGaps := []*int32{nil}
	ends := []float64{0}
	if _, err := InferGap(frames, tailGaps, ends); !errors.Is(err, ErrNeedMoreFrames) {
		t.Fatalf("InferGap err = %v, want ErrNeedMoreFrames", err)
	}
}

func TestDurationUs(t *testing.T) {
	f := Frame{900, -450, 900}
	if got := DurationUs(f); got != 2250 {
		t.Fatalf("DurationUs = %d, want 2250", got)
	}
}
