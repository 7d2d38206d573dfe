// Package lfo implements the vibrato/tremolo/autowah modulation source
// each voice's pitch, force and filter pipelines sample once per frame.
package lfo

import "math/rand"

// Waveform constants for the modulation shape.
const (
	WaveSaw      = 0
	WaveSquare   = 1
	WaveTriangle = 2
	WaveRandom   = 3
)

// LFO is a low-frequency oscillator. Unlike a device-wide modulation
// source, the render core gives each voice its own LFO instance (one
// per pitch/force/filter pipeline slot), so a sample-and-hold LFO needs
// its own deterministically seeded generator rather than reaching for
// math/rand's global source, per the core's "no global mutable state"
// rule.
type LFO struct {
	depth    float64 // modulation depth (units depend on context: semitones, gain factor, cutoff)
	rateHz   float64 // oscillation rate in Hz
	waveform int     // 0=saw, 1=square, 2=triangle, 3=random
	phase    float64 // current phase [0, 1)
	randVal  float64 // held random value for sample-and-hold

	rng *rand.Rand
}

// Seed installs a deterministic random source for the sample-and-hold
// waveform. Voices that never call Seed get a fixed default source
// (seed 1), lazily created on first use, which is enough for the debug
// instrument and tests; a host wanting distinct per-voice modulation
// noise across notes should seed each voice's LFOs explicitly.
func (l *LFO) Seed(seed int64) { l.rng = rand.New(rand.NewSource(seed)) }

func (l *LFO) rand() *rand.Rand {
	if l.rng == nil {
		l.rng = rand.New(rand.NewSource(1))
	}
	return l.rng
}

// Set configures the LFO parameters.
func (l *LFO) Set(depth, rateHz float64, waveform int) {
	l.depth = depth
	l.rateHz = rateHz
	if waveform < 0 || waveform > 3 {
		waveform = WaveTriangle
	}
	l.waveform = waveform
}

// Sample advances the LFO by one sample and returns a value in [-depth, +depth].
// Returns 0 if depth or rate is zero.
func (l *LFO) Sample(sampleRate float64) float64 {
	if l.depth == 0 || l.rateHz == 0 || sampleRate == 0 {
		return 0
	}

	// Compute waveform value from current phase
	var waveVal float64
	switch l.waveform {
	case WaveSaw:
		waveVal = 1.0 - 2.0*l.phase
	case WaveSquare:
		if l.phase < 0.5 {
			waveVal = 1.0
		} else {
			waveVal = -1.0
		}
	case WaveRandom:
		waveVal = l.randVal
	default: // WaveTriangle
		if l.phase < 0.5 {
			waveVal = 4.0*l.phase - 1.0
		} else {
			waveVal = 3.0 - 4.0*l.phase
		}
	}

	// Advance phase
	oldPhase := l.phase
	l.phase += l.rateHz / sampleRate
	for l.phase >= 1.0 {
		l.phase -= 1.0
	}

	// For random waveform, draw a fresh held value at each cycle boundary.
	if l.waveform == WaveRandom && l.phase < oldPhase {
		l.randVal = l.rand().Float64()*2.0 - 1.0
	}

	return waveVal * l.depth
}

// Active returns true if the LFO has non-zero depth and rate.
func (l *LFO) Active() bool {
	return l.depth != 0 && l.rateHz != 0
}

// Reset zeros the LFO phase.
func (l *LFO) Reset() {
	l.phase = 0
	l.randVal = 0
}
