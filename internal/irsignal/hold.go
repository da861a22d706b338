package irsignal

import (
	"errors"
	"fmt"
	"sort"
)

// ErrNeedMoreFrames is returned when a hold capture does not have enough
// frames to extract a repeat, or when no positive inter-frame gap can be
// inferred from the frames it does have (spec §8, property 10).
var ErrNeedMoreFrames = errors.New("irsignal: need more frames")

// HoldResult is the outcome of extracting the initial/repeat split from a
// held-button capture.
type HoldResult struct {
	Initial     Frame
	Repeat      Frame // nil if there were no repeat frames
	RepeatCount int
	Quality     float64 // 0 if RepeatCount == 0
}

// ExtractHold separates the initial frame from the repeat frames of a
// held-button capture and aggregates the repeats via Aggregate. frames[0]
// is the initial frame; frames[1:] are repeats captured while the button
// stayed held.
//
// roundToUs and minMatchRatio are forwarded to Aggregate for the repeat
// cluster, exactly as they would be for a press capture.
func ExtractHold(frames []Frame, roundToUs int, minMatchRatio float64) (HoldResult, error) {
	if len(frames) == 0 {
		return HoldResult{}, fmt.Errorf("%w: no frames captured", ErrNeedMoreFrames)
	}

	initial := frames[0]
	repeats := frames[1:]

	if len(repeats) == 0 {
		return HoldResult{Initial: initial}, nil
	}

	agg, err := Aggregate(repeats, roundToUs, minMatchRatio)
	if err != nil {
		return HoldResult{}, fmt.Errorf("irsignal: aggregating hold repeats: %w", err)
	}

	return HoldResult{
		Initial:     initial,
		Repeat:      agg.Aggregated,
		RepeatCount: len(repeats),
		Quality:     agg.Quality,
	}, nil
}

// DurationUs returns the total wall-clock span of a frame in microseconds:
// the sum of the absolute value of every pulse and space.
func DurationUs(f Frame) int64 {
	var total int64
	for _, v := range f {
		if v < 0 {
			total -= int64(v)
		} else {
			total += int64(v)
		}
	}
	return total
}

// InferGap infers the steady-state hold gap (the silence between
// consecutive repeat frames) from a capture sequence, per spec §4.3.
//
// frames[0] is the initial frame and frames[1:] are repeats, mirroring
// ExtractHold. tailGaps is aligned with frames: tailGaps[i] is the trailing
// gap ParseAndNormalize observed for frames[i] (nil if absent); tailGaps[0]
// is ignored. frameEndSeconds[i] is the monotonic wall-clock time at which
// reception of frames[i] completed; it is only consulted when a tail gap is
// missing.
//
// There must be at least one repeat frame (len(frames) >= 2); InferGap
// returns ErrNeedMoreFrames otherwise, and also if no positive candidate
// gap can be produced.
func InferGap(frames []Frame, tailGaps []*int32, frameEndSeconds []float64) (int32, error) {
	if len(frames) < 2 {
		return 0, fmt.Errorf("%w: at least one repeat frame is required for gap inference", ErrNeedMoreFrames)
	}
	if len(tailGaps) != len(frames) || len(frameEndSeconds) != len(frames) {
		return 0, fmt.Errorf("irsignal: infer gap: frames/tailGaps/frameEndSeconds length mismatch")
	}

	candidates := make([]int64, 0, len(frames)-1)
	for i := 1; i < len(frames); i++ {
		if tailGaps[i] != nil {
			candidates = append(candidates, int64(*tailGaps[i]))
			continue
		}
		deltaSeconds := frameEndSeconds[i] - frameEndSeconds[i-1]
		deltaUs := int64(deltaSeconds*1e6) - DurationUs(frames[i])
		candidates = append(candidates, deltaUs)
	}

	gap := reduceGapCandidates(candidates)
	if gap <= 0 {
		return 0, fmt.Errorf("%w: no positive gap could be inferred", ErrNeedMoreFrames)
	}
	return int32(gap), nil
}

// reduceGapCandidates applies spec §4.3's candidate-reduction rule:
// count>=3 drops the largest and takes the median of what remains; count=2
// takes the minimum; count=1 passes through.
func reduceGapCandidates(candidates []int64) int64 {
	switch {
	case len(candidates) == 0:
		return 0
	case len(candidates) == 1:
		return candidates[0]
	case len(candidates) == 2:
		if candidates[0] < candidates[1] {
			return candidates[0]
		}
		return candidates[1]
	default:
		sorted := append([]int64(nil), candidates...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
		remaining := sorted[:len(sorted)-1] // drop the largest
		return medianInt64(remaining)
	}
}

func medianInt64(sorted []int64) int64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return sorted[n/2-1]
}
