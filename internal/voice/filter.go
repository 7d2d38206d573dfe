package voice

import "math"

// resonantLP is a per-channel resonant low-pass filter (Chamberlin
// state-variable topology), the same two-state "keep its own history"
// shape the crossfade pipeline needs: two independent instances are
// cross-faded whenever the cutoff or resonance jumps by more than the
// pipeline's threshold.
type resonantLP struct {
	lowL, bandL float64
	lowR, bandR float64
}

func (f *resonantLP) reset() {
	f.lowL, f.bandL = 0, 0
	f.lowR, f.bandR = 0, 0
}

// process runs one stereo sample through the filter. cutoff is in Hz,
// resonance in [0, 1) (higher = narrower/peakier).
func (f *resonantLP) process(cutoffHz, resonance, sampleRate float64, l, r float32) (float32, float32) {
	if cutoffHz <= 0 || cutoffHz >= sampleRate/2 {
		return l, r
	}
	freq := 2 * math.Sin(math.Pi*cutoffHz/sampleRate)
	damp := math.Min(2*(1-math.Pow(resonance, 0.25)), math.Min(2, 2/freq-freq*0.5))

	highL := float64(l) - f.lowL - damp*f.bandL
	f.bandL += freq * highL
	f.lowL += freq * f.bandL

	highR := float64(r) - f.lowR - damp*f.bandR
	f.bandR += freq * highR
	f.lowR += freq * f.bandR

	return float32(f.lowL), float32(f.lowR)
}
