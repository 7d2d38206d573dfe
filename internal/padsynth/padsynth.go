// Package padsynth implements the offline PADsynth sample bank builder:
// for each target pitch, a Gaussian-smeared harmonic spectrum is built in
// the frequency domain and inverse-transformed into a cyclic time-domain
// sample, once at load time.
//
// The inverse transform uses github.com/mjibson/go-dsp/fft — a naive
// hand-rolled DFT would be O(n^2) for sample lengths in the tens of
// thousands, which load-time PADsynth builds need to avoid.
package padsynth

import (
	"fmt"
	"math"
	"math/cmplx"
	"math/rand"
	"sync"

	"github.com/mjibson/go-dsp/fft"
)

// Harmonic is one partial of the source spectrum.
type Harmonic struct {
	FreqMul   float64
	Amplitude float64
	Phase     float64 // radians; only used when UsePhaseData is set
}

// ResonanceEnvelope shapes freq_amp by bin position, evaluated at bins
// spread evenly across a 0..24000 Hz domain.
type ResonanceEnvelope func(hz float64) float64

// Params configures one bank build.
type Params struct {
	AudioRate    float64
	SampleLength int // power of two
	SampleCount  int // <= 128, number of pitch slots
	MinPitch     float64
	MaxPitch     float64
	CentrePitch  float64
	Harmonics    []Harmonic

	BandwidthBaseCents float64
	BandwidthScale     float64

	UsePhaseData            bool
	PhaseSpreadBandwidthBase float64
	PhaseSpreadBandwidthScale float64

	Resonance ResonanceEnvelope

	RoundToPeriod bool // snap each pitch so sample contains a whole number of cycles

	Seed int64
}

// Sample is one pitch slot's cyclic waveform: SampleLength+1 frames, the
// extra frame duplicating frame 0 so linear interpolation never needs a
// wraparound branch.
type Sample struct {
	Pitch  float64
	Frames []float64
}

const gaussianSpread = 5.2247 // bandwidths on each side of a harmonic's center

// BuildBank renders one Sample per pitch slot, evenly spaced between
// MinPitch and MaxPitch, in parallel, one goroutine per pitch slot, joined before
// returning. Each worker owns its pitch slot's frequency-domain buffers
// exclusively, so there is no shared mutable state between workers.
func BuildBank(p Params) ([]Sample, error) {
	if p.SampleLength <= 0 || p.SampleLength&(p.SampleLength-1) != 0 {
		return nil, fmt.Errorf("padsynth: sample_length %d must be a power of two", p.SampleLength)
	}
	if p.SampleCount <= 0 || p.SampleCount > 128 {
		return nil, fmt.Errorf("padsynth: sample_count %d must be in (0, 128]", p.SampleCount)
	}
	if p.AudioRate <= 0 {
		return nil, fmt.Errorf("padsynth: audio_rate must be positive")
	}

	samples := make([]Sample, p.SampleCount)
	var wg sync.WaitGroup
	errs := make([]error, p.SampleCount)

	for slot := 0; slot < p.SampleCount; slot++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			pitch := pitchForSlot(p, slot)
			s, err := buildOne(p, pitch, int64(slot))
			if err != nil {
				errs[slot] = err
				return
			}
			samples[slot] = s
		}(slot)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return samples, nil
}

func pitchForSlot(p Params, slot int) float64 {
	if p.SampleCount == 1 {
		return p.MinPitch
	}
	t := float64(slot) / float64(p.SampleCount-1)
	pitch := p.MinPitch + t*(p.MaxPitch-p.MinPitch)
	if p.RoundToPeriod && pitch > 0 {
		cycles := math.Round(float64(p.SampleLength) * pitch / p.AudioRate)
		if cycles > 0 {
			pitch = cycles * p.AudioRate / float64(p.SampleLength)
		}
	}
	return pitch
}

func buildOne(p Params, pitch float64, seedOffset int64) (Sample, error) {
	n := p.SampleLength
	half := n / 2
	freqAmp := make([]float64, half)
	freqPhase := make([]float64, half)
	ampReal := make([]float64, half)
	ampImag := make([]float64, half)

	nyquist := p.AudioRate / 2
	binHz := p.AudioRate / float64(n)

	for _, h := range p.Harmonics {
		fh := pitch * h.FreqMul
		if fh <= 0 || fh >= nyquist {
			continue
		}
		bwCents := p.BandwidthBaseCents * math.Pow(h.FreqMul, p.BandwidthScale)
		bwHz := fh * (math.Exp2(bwCents/1200) - 1)
		if bwHz <= 0 {
			bwHz = binHz
		}
		lo := int(math.Max(0, (fh-gaussianSpread*bwHz)/binHz))
		hi := int(math.Min(float64(half-1), (fh+gaussianSpread*bwHz)/binHz))
		for i := lo; i <= hi; i++ {
			f := float64(i) * binHz
			profile := math.Exp(-sq((f-fh)/bwHz)) / bwHz * h.Amplitude
			if p.UsePhaseData {
				ampReal[i] += profile * math.Cos(h.Phase)
				ampImag[i] += profile * math.Sin(h.Phase)
			} else {
				freqAmp[i] += profile
			}
		}
	}

	rng := rand.New(rand.NewSource(p.Seed + seedOffset))

	if p.UsePhaseData {
		spreadRng := rand.New(rand.NewSource(p.Seed + seedOffset + 1<<20))
		for i := range freqAmp {
			mag := math.Hypot(ampReal[i], ampImag[i])
			phase := math.Atan2(ampImag[i], ampReal[i])
			spreadBw := p.PhaseSpreadBandwidthBase * math.Pow(1+float64(i), p.PhaseSpreadBandwidthScale)
			phase += (spreadRng.Float64()*2 - 1) * spreadBw
			freqAmp[i] = mag
			freqPhase[i] = phase
		}
	} else {
		for i := range freqPhase {
			freqPhase[i] = rng.Float64() * 2 * math.Pi
		}
	}

	if p.Resonance != nil {
		for i := range freqAmp {
			hz := float64(i) * 24000 / float64(half-1)
			freqAmp[i] *= p.Resonance(hz)
		}
	}

	spectrum := make([]complex128, n)
	for i := 0; i < half; i++ {
		c := cmplx.Rect(freqAmp[i], freqPhase[i])
		spectrum[i] = c
		if i > 0 {
			spectrum[n-i] = cmplx.Conj(c)
		}
	}

	timeDomain := fft.IFFT(spectrum)

	real := make([]float64, n+1)
	peak := 0.0
	for i := 0; i < n; i++ {
		v := real128(timeDomain[i])
		real[i] = v
		if a := math.Abs(v); a > peak {
			peak = a
		}
	}
	if peak > 0 {
		for i := 0; i < n; i++ {
			real[i] /= peak
		}
	}
	real[n] = real[0]

	return Sample{Pitch: pitch, Frames: real}, nil
}

func sq(x float64) float64 { return x * x }

func real128(c complex128) float64 { return real(c) }
