package voice

// envState tags the stage of an Envelope, generalized from the teacher's
// filterEnvelope attack/decay/sustain/release state machine to a plain
// float64-valued envelope shared by the force and filter pipelines.
type envState int

const (
	envAttack envState = iota
	envDecay
	envSustain
	envRelease
	envOff
)

// Envelope is a four-stage attack/decay/sustain/release ramp between
// explicit breakpoint values, stepped once per frame.
type Envelope struct {
	Attack  float64 // value reached at the end of the attack stage
	Decay   float64 // value reached at the end of the decay stage
	Sustain float64 // sustain level (held while note_on)
	Release float64 // value reached at the end of the release stage

	AttackFrames  int
	DecayFrames   int
	ReleaseFrames int

	// SustainHold does not change Step's output: the sustain stage holds
	// at Sustain until TriggerRelease whether it is set or not.
	SustainHold bool

	// ScaleFromNotePitch rescales the whole envelope's frame counts by a
	// per-voice factor set via SetPitchScale, so higher notes decay
	// proportionally faster, per the force pipeline's configuration.
	ScaleFromNotePitch bool

	state      envState
	frame      int
	current    float64
	pitchScale float64
}

// NewEnvelope returns a zeroed envelope starting at its attack stage.
func NewEnvelope() *Envelope {
	return &Envelope{Sustain: 1, pitchScale: 1}
}

// SetPitchScale sets the per-voice frame-count scale factor used when
// ScaleFromNotePitch is enabled (1 = no change).
func (e *Envelope) SetPitchScale(scale float64) { e.pitchScale = scale }

func (e *Envelope) scaledFrames(n int) int {
	if !e.ScaleFromNotePitch || e.pitchScale <= 0 {
		return n
	}
	scaled := int(float64(n) / e.pitchScale)
	if scaled < 1 {
		scaled = 1
	}
	return scaled
}

// TriggerRelease begins the release stage. Subsequent Step calls ramp toward
// the Release value and Ended reports true once it arrives.
func (e *Envelope) TriggerRelease() {
	if e.state != envRelease && e.state != envOff {
		e.state = envRelease
		e.frame = 0
	}
}

// Ended reports whether the envelope has completed its release stage.
func (e *Envelope) Ended() bool { return e.state == envOff }

// Step advances the envelope by one frame and returns its current value.
func (e *Envelope) Step() float64 {
	switch e.state {
	case envAttack:
		n := e.scaledFrames(e.AttackFrames)
		if n <= 0 {
			e.current = e.Attack
			e.state = envDecay
			e.frame = 0
		} else {
			e.current = lerpStage(0, e.Attack, e.frame, n)
			e.frame++
			if e.frame >= n {
				e.current = e.Attack
				e.state = envDecay
				e.frame = 0
			}
		}
	case envDecay:
		n := e.scaledFrames(e.DecayFrames)
		if n <= 0 {
			e.current = e.Decay
			e.state = envSustain
			e.frame = 0
		} else {
			e.current = lerpStage(e.Attack, e.Decay, e.frame, n)
			e.frame++
			if e.frame >= n {
				e.current = e.Decay
				e.state = envSustain
				e.frame = 0
			}
		}
	case envSustain:
		if e.SustainHold {
			e.current = e.Sustain
		} else {
			e.current = e.Sustain
		}
	case envRelease:
		n := e.scaledFrames(e.ReleaseFrames)
		if n <= 0 {
			e.current = e.Release
			e.state = envOff
		} else {
			start := e.current
			e.current = lerpStage(start, e.Release, e.frame, n)
			e.frame++
			if e.frame >= n {
				e.current = e.Release
				e.state = envOff
			}
		}
	case envOff:
		e.current = e.Release
	}
	return e.current
}

func lerpStage(from, to float64, frame, total int) float64 {
	if total <= 0 {
		return to
	}
	t := float64(frame) / float64(total)
	return from + (to-from)*t
}
