// Package irsignal implements the IR pulse/space codec, multi-take
// aggregator, and hold-frame extractor (spec components C1-C3). It is a
// pure, dependency-free package: every function operates on plain
// microsecond-duration slices and returns sentinel errors, so the rest of
// the module can unit test it without an engine, a database, or a broker.
package irsignal

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidCapture is returned by ParseAndNormalize when the raw capture
// text contains no usable tokens, starts with a space, or normalizes to an
// empty sequence.
var ErrInvalidCapture = errors.New("irsignal: invalid capture")

// Frame is a sequence of signed, nonzero microsecond durations: positive
// entries are pulses (emitter on), negative entries are spaces (emitter
// off). A well-formed frame alternates sign and starts and ends positive.
type Frame []int32

// ParseAndNormalize parses free-form capture text into a normalized Frame
// plus the optional trailing gap that was stripped from it.
//
// Accepted token forms, freely mixed: bare signed integers ("900 -450"), or
// "pulse N"/"space N" pairs. Tokens that parse as neither (e.g. "carrier",
// "frequency", or a bare metadata number following one of those words) are
// ignored.
func ParseAndNormalize(raw string) (Frame, *int32, error) {
	entries, err := tokenize(raw)
	if err != nil {
		return nil, nil, err
	}
	if len(entries) == 0 {
		return nil, nil, fmt.Errorf("%w: no pulse/space tokens found", ErrInvalidCapture)
	}
	if entries[0] < 0 {
		return nil, nil, fmt.Errorf("%w: capture starts with a space", ErrInvalidCapture)
	}

	merged := mergeConsecutiveSameSign(entries)

	var tailGap *int32
	for len(merged) > 0 && merged[len(merged)-1] < 0 {
		g := -merged[len(merged)-1]
		tailGap = &g
		merged = merged[:len(merged)-1]
	}

	// Re-merge: stripping a trailing space can never create a new adjacent
	// same-sign pair (we only ever removed from the end), but re-running is
	// cheap and keeps the invariant obviously true.
	merged = mergeConsecutiveSameSign(merged)

	if len(merged) == 0 {
		return nil, nil, fmt.Errorf("%w: empty after normalization", ErrInvalidCapture)
	}
	if merged[0] < 0 {
		return nil, nil, fmt.Errorf("%w: normalized capture starts with a space", ErrInvalidCapture)
	}
	if !alternates(merged) {
		return nil, nil, fmt.Errorf("%w: non-alternating after merge", ErrInvalidCapture)
	}

	return Frame(merged), tailGap, nil
}

// tokenize extracts signed microsecond entries from raw text, handling both
// bare-integer and "pulse N"/"space N" forms. Zero-length entries are
// dropped per spec §4.1.
func tokenize(raw string) ([]int32, error) {
	fields := strings.Fields(raw)
	entries := make([]int32, 0, len(fields))

	for i := 0; i < len(fields); i++ {
		tok := fields[i]
		lower := strings.ToLower(tok)

		switch lower {
		case "pulse", "space":
			if i+1 >= len(fields) {
				continue
			}
			n, err := strconv.ParseInt(fields[i+1], 10, 32)
			i++
			if err != nil {
				continue
			}
			if n == 0 {
				continue
			}
			mag := int32(n)
			if mag < 0 {
				mag = -mag
			}
			if lower == "space" {
				mag = -mag
			}
			entries = append(entries, mag)
			continue
		case "carrier", "frequency":
			// Metadata keyword; its numeric argument (if any) is ignored too.
			if i+1 < len(fields) {
				if _, err := strconv.ParseInt(fields[i+1], 10, 64); err == nil {
					i++
				}
			}
			continue
		}

		n, err := strconv.ParseInt(tok, 10, 32)
		if err != nil {
			// Unknown metadata token; ignore it rather than failing the
			// whole capture, per spec §4.1.
			continue
		}
		if n == 0 {
			continue
		}
		entries = append(entries, int32(n))
	}

	return entries, nil
}

// mergeConsecutiveSameSign adds the magnitudes of adjacent same-sign
// entries together, since some hardware emits a logical pulse as two split
// samples.
func mergeConsecutiveSameSign(entries []int32) []int32 {
	if len(entries) == 0 {
		return entries
	}
	out := make([]int32, 0, len(entries))
	cur := entries[0]
	for _, e := range entries[1:] {
		if sameSign(cur, e) {
			cur += e
		} else {
			out = append(out, cur)
			cur = e
		}
	}
	out = append(out, cur)
	return out
}

func sameSign(a, b int32) bool {
	return (a < 0) == (b < 0)
}

func alternates(entries []int32) bool {
	for i := 1; i < len(entries); i++ {
		if sameSign(entries[i-1], entries[i]) {
			return false
		}
	}
	return true
}

// EncodePulses renders a frame as space-separated signed decimal integers.
func EncodePulses(f Frame) string {
	parts := make([]string, len(f))
	for i, v := range f {
		parts[i] = strconv.FormatInt(int64(v), 10)
	}
	return strings.Join(parts, " ")
}

// DecodePulses is the inverse of EncodePulses.
func DecodePulses(s string) (Frame, error) {
	fields := strings.Fields(s)
	out := make(Frame, 0, len(fields))
	for _, f := range fields {
		n, err := strconv.ParseInt(f, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("irsignal: decode pulses: %w", err)
		}
		if n == 0 {
			return nil, fmt.Errorf("%w: zero-length entry in encoded signal", ErrInvalidCapture)
		}
		out = append(out, int32(n))
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: empty encoded signal", ErrInvalidCapture)
	}
	return out, nil
}

// ToPulseSpaceText renders one "pulse N" or "space N" line per entry,
// terminated by a trailing newline. This is the on-disk format fed to the
// external IR transmitter (spec §6, "Engine wire file format").
func ToPulseSpaceText(f Frame) string {
	var b strings.Builder
	for _, v := range f {
		mag := v
		word := "pulse"
		if mag < 0 {
			mag = -mag
			word = "space"
		}
		b.WriteString(word)
		b.WriteByte(' ')
		b.WriteString(strconv.FormatInt(int64(mag), 10))
		b.WriteByte('\n')
	}
	return b.String()
}
