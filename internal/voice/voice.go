// Package voice implements per-voice DSP state: the pitch, force, and
// filter pipelines, attack/release ramps, and the fixed-capacity pool
// voices are allocated from.
//
// The per-voice LFOs are the teacher's internal/lfo.LFO, instantiated
// once per voice instead of shared globally, since vibrato/tremolo/
// autowah must run independently per note.
package voice

import (
	"math"

	"github.com/kunquat/kunquat-go/internal/lfo"
)

// RampAttackTime and RampReleaseTime are the per-sample ramp increments,
// normalized by sample rate (1/sec units), the way the attack and
// release ramps of the pitch/force pipeline are specified.
const (
	RampAttackTime  = 500.0
	RampReleaseTime = 200.0
)

// filterCrossfadeFrames is the window length, in samples, over which the
// filter pipeline fades between its two biquad-equivalent states when the
// cutoff or resonance jumps.
const filterCrossfadeFrames = 200

// filterJumpThreshold is the relative cutoff change (1.45%) that triggers
// a crossfade between filter states.
const filterJumpThreshold = 0.0145

// Slider linearly steps a value toward a target by a fixed per-frame
// magnitude, used by the pitch/force/filter pipelines' sliders.
type Slider struct {
	Value  float64
	Target float64
	Step   float64
	Active bool
}

// Set starts the slider toward target at the given per-frame step size.
func (s *Slider) Set(target, step float64) {
	s.Target = target
	s.Step = math.Abs(step)
	s.Active = s.Value != target
}

// Next advances the slider by one frame and returns its new value.
func (s *Slider) Next() float64 {
	if !s.Active {
		return s.Value
	}
	if s.Value < s.Target {
		s.Value = math.Min(s.Target, s.Value+s.Step)
	} else {
		s.Value = math.Max(s.Target, s.Value-s.Step)
	}
	if s.Value == s.Target {
		s.Active = false
	}
	return s.Value
}

// Arpeggio holds a ring buffer of tone offsets (in cents) applied on top
// of the pitch pipeline, stepping once every Length frames.
type Arpeggio struct {
	Tones  []float64
	Ref    float64
	Length int

	frame int
	index int
}

func (a *Arpeggio) factor() float64 {
	if len(a.Tones) == 0 {
		return 1
	}
	f := math.Exp2((a.Tones[a.index] - a.Ref) / 1200)
	a.frame++
	if a.Length > 0 && a.frame >= a.Length {
		a.frame = 0
		a.index = (a.index + 1) % len(a.Tones)
	}
	return f
}

// Voice is one slot in the pool: the state machine and per-frame DSP
// pipeline for a single sounding note.
type Voice struct {
	Active  bool
	NoteOn  bool
	GroupID int
	Channel int

	// NodeID names the device graph generator node this voice renders
	// through, so the engine can route each active voice to the audio
	// unit that triggered it instead of every generator node seeing
	// every voice.
	NodeID string

	BasePitch   float64
	PitchSlider Slider
	VibratoLFO  lfo.LFO
	Arp         Arpeggio

	Force         float64
	GlobalForce   float64
	ForceSlider   Slider
	TremoloLFO    lfo.LFO
	ForceEnv      *Envelope
	ForceRelease  *Envelope

	LowpassCutoff  float64
	LowpassSlider  Slider
	AutowahLFO     lfo.LFO
	Resonance      float64

	// Panning is the base stereo position in [-1, 1] (-1 = hard left, 1 =
	// hard right), stepped by PanningSlider and offset by PanEnvelope
	// before being clamped and applied in RenderBlock.
	Panning       float64
	PanningSlider Slider
	PanEnvelope   *PanEnvelope

	filters      [2]resonantLP
	activeFilter int
	crossfadeAt  int // remaining crossfade frames, 0 = not crossfading
	lastCutoff   float64
	lastResonance float64

	rampAttack  float64
	rampRelease float64

	sampleRate float64
	stop       int // frame offset within the current block where the voice goes silent, -1 if not yet known
}

// New creates an inactive voice for the given sample rate.
func New(sampleRate float64) *Voice {
	return &Voice{sampleRate: sampleRate, stop: -1}
}

// Trigger begins a new note on this voice slot (Allocated -> Active).
func (v *Voice) Trigger(groupID, channel int, pitch, force float64) {
	v.Active = true
	v.NoteOn = true
	v.GroupID = groupID
	v.Channel = channel
	v.BasePitch = pitch
	v.Force = force
	v.GlobalForce = 1
	v.rampAttack = 0
	v.rampRelease = 0
	v.stop = -1
	v.filters[0].reset()
	v.filters[1].reset()
	v.activeFilter = 0
	v.crossfadeAt = 0
	v.VibratoLFO.Reset()
	v.TremoloLFO.Reset()
	v.AutowahLFO.Reset()
}

// Release transitions Active -> Releasing (note-off).
func (v *Voice) Release() {
	v.NoteOn = false
	if v.ForceRelease != nil {
		v.ForceRelease.TriggerRelease()
	}
}

// Silent reports whether the voice has finished its release tail and its
// pool slot can be reclaimed.
func (v *Voice) Silent() bool {
	if !v.Active {
		return true
	}
	if v.NoteOn {
		return false
	}
	if v.ForceRelease != nil {
		return v.ForceRelease.Ended()
	}
	return v.rampRelease >= 1
}

// RenderBlock runs the pitch/force/filter/panning pipeline and the
// attack/release ramps for len(dst)/2 frames, writing interleaved (L, R)
// stereo output into dst.
//
// stop reports the frame index, if any, within this block at which the
// voice fell silent (-1 if it remained active through the whole block).
func (v *Voice) RenderBlock(waveform func(pitch float64) float64, dst []float32) (stop int) {
	stop = -1
	frames := len(dst) / 2
	for i := 0; i < frames; i++ {
		// 1. pitch pipeline
		pitch := v.BasePitch
		if v.PitchSlider.Active || v.PitchSlider.Value != 0 {
			pitch += v.PitchSlider.Next()
		}
		actualPitch := pitch
		if v.VibratoLFO.Active() {
			actualPitch *= 1 + v.VibratoLFO.Sample(v.sampleRate)/1200
		}
		actualPitch *= v.Arp.factor()

		sample := float32(waveform(actualPitch))

		// 2. force pipeline
		force := v.Force * v.GlobalForce
		if v.ForceSlider.Active {
			force = v.ForceSlider.Next() * v.GlobalForce
		}
		if v.TremoloLFO.Active() {
			force *= 1 + v.TremoloLFO.Sample(v.sampleRate)
		}
		if v.ForceEnv != nil {
			force *= v.ForceEnv.Step()
		}
		if !v.NoteOn && v.ForceRelease != nil {
			force *= v.ForceRelease.Step()
			if v.ForceRelease.Ended() && stop < 0 {
				stop = i
			}
		}
		sample *= float32(force)

		// 3. filter pipeline
		if v.LowpassCutoff > 0 {
			cutoff := v.LowpassCutoff
			if v.LowpassSlider.Active {
				cutoff = v.LowpassSlider.Next()
			}
			if v.AutowahLFO.Active() {
				cutoff *= 1 + v.AutowahLFO.Sample(v.sampleRate)
			}
			if v.lastCutoff != 0 && (math.Abs(cutoff-v.lastCutoff)/v.lastCutoff > filterJumpThreshold || v.Resonance != v.lastResonance) {
				v.activeFilter = 1 - v.activeFilter
				v.crossfadeAt = filterCrossfadeFrames
			}
			v.lastCutoff = cutoff
			v.lastResonance = v.Resonance

			l, _ := v.filters[v.activeFilter].process(cutoff, v.Resonance, v.sampleRate, sample, sample)
			if v.crossfadeAt > 0 {
				other := 1 - v.activeFilter
				l2, _ := v.filters[other].process(cutoff, v.Resonance, v.sampleRate, sample, sample)
				t := float64(filterCrossfadeFrames-v.crossfadeAt) / filterCrossfadeFrames
				l = float32(float64(l2)*(1-t) + float64(l)*t)
				v.crossfadeAt--
			}
			sample = l
		}

		// 4. attack ramp
		v.rampAttack = math.Min(1, v.rampAttack+RampAttackTime/v.sampleRate)
		sample *= float32(v.rampAttack)

		// 5. release ramp (only when no force-release envelope is driving silence)
		if !v.NoteOn && v.ForceRelease == nil {
			v.rampRelease = math.Min(1, v.rampRelease+RampReleaseTime/v.sampleRate)
			sample *= float32(1 - v.rampRelease)
			if v.rampRelease >= 1 && stop < 0 {
				stop = i
			}
		}

		// 6. panning: slider plus a pitch-indexed envelope contribution,
		// clamped before being applied to the stereo spread.
		pan := v.Panning
		if v.PanningSlider.Active {
			pan = v.PanningSlider.Next()
		}
		if v.PanEnvelope != nil {
			pan += v.PanEnvelope.At(actualPitch)
		}
		if pan > 1 {
			pan = 1
		} else if pan < -1 {
			pan = -1
		}

		dst[i*2] = sample * float32(1-pan)
		dst[i*2+1] = sample * float32(1+pan)
	}
	v.stop = stop
	return stop
}
