package irsignal

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrInsufficientMatches is returned by Aggregate when no cluster of frames
// reaches the required match ratio.
var ErrInsufficientMatches = errors.New("irsignal: insufficient matching frames")

// AggregateResult is the outcome of aggregating multiple takes of the same
// button press into one canonical frame.
type AggregateResult struct {
	Aggregated Frame
	Dominant   []int // indices into the input frames slice, ascending
	Quality    float64
}

// clusterKey groups frames by (length, sign pattern) per spec §4.2.
type clusterKey struct {
	length int
	signs  string
}

func keyFor(f Frame) clusterKey {
	signs := make([]byte, len(f))
	for i, v := range f {
		if v < 0 {
			signs[i] = '-'
		} else {
			signs[i] = '+'
		}
	}
	return clusterKey{length: len(f), signs: string(signs)}
}

// Aggregate picks the dominant cluster among frames (grouped by (length,
// sign pattern)), requires it to hold at least ceil(len(frames)*minMatchRatio)
// members, and combines the cluster via per-position median-of-magnitudes
// rounded to the nearest multiple of roundToUs (minimum 1).
//
// roundToUs must be in [1, 1000] and minMatchRatio in (0, 1]; callers are
// expected to have already validated those ranges (e.g. via learning
// settings), so Aggregate does not re-validate them.
func Aggregate(frames []Frame, roundToUs int, minMatchRatio float64) (AggregateResult, error) {
	if len(frames) == 0 {
		return AggregateResult{}, fmt.Errorf("%w: no frames", ErrInsufficientMatches)
	}
	if roundToUs < 1 {
		roundToUs = 1
	}

	clusters := make(map[clusterKey][]int)
	for i, f := range frames {
		k := keyFor(f)
		clusters[k] = append(clusters[k], i)
	}

	var dominant []int
	for _, idxs := range clusters {
		if len(idxs) > len(dominant) {
			dominant = idxs
		}
	}

	required := int(math.Ceil(float64(len(frames)) * minMatchRatio))
	if len(dominant) < required {
		return AggregateResult{}, fmt.Errorf("%w: dominant cluster has %d of %d frames, need %d",
			ErrInsufficientMatches, len(dominant), len(frames), required)
	}

	sort.Ints(dominant)
	length := len(frames[dominant[0]])
	aggregated := make(Frame, length)

	for pos := 0; pos < length; pos++ {
		mags := make([]int32, len(dominant))
		sign := int32(1)
		for i, idx := range dominant {
			v := frames[idx][pos]
			if v < 0 {
				sign = -1
				mags[i] = -v
			} else {
				sign = 1
				mags[i] = v
			}
		}
		med := medianInt32(mags)
		rounded := roundToNearest(med, roundToUs)
		if rounded < 1 {
			rounded = 1
		}
		aggregated[pos] = sign * rounded
	}

	quality := qualityScore(frames, dominant, aggregated)

	return AggregateResult{
		Aggregated: aggregated,
		Dominant:   dominant,
		Quality:    quality,
	}, nil
}

// medianInt32 returns the lower-middle element for even-length inputs, the
// exact middle for odd-length inputs, without mutating the input slice.
func medianInt32(vals []int32) int32 {
	sorted := append([]int32(nil), vals...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return sorted[n/2-1]
}

func roundToNearest(v int32, step int) int32 {
	s := int32(step)
	if s <= 0 {
		s = 1
	}
	// Round-half-up.
	return ((v + s/2) / s) * s
}

// qualityScore computes max(0, 1 - min(1, meanMeanAbsErrorUs/500)) where the
// error is the per-frame mean absolute delta of durations from the
// aggregated frame, averaged over the dominant cluster.
func qualityScore(frames []Frame, dominant []int, aggregated Frame) float64 {
	if len(dominant) == 0 || len(aggregated) == 0 {
		return 0
	}
	var sumMeanAbsErr float64
	for _, idx := range dominant {
		f := frames[idx]
		var sumAbs float64
		for pos, v := range aggregated {
			d := float64(v) - float64(f[pos])
			if d < 0 {
				d = -d
			}
			sumAbs += d
		}
		sumMeanAbsErr += sumAbs / float64(len(aggregated))
	}
	meanMeanAbsErr := sumMeanAbsErr / float64(len(dominant))
	score := 1 - math.Min(1, meanMeanAbsErr/500)
	if score < 0 {
		score = 0
	}
	return score
}
