// Package tstamp implements the core's musical-time value type: a rational
// number of beats expressed as whole beats plus an exact sub-beat remainder.
package tstamp

import (
	"fmt"
	"math"
)

// Beat is the number of sub-beat units per beat. It is highly composite
// (2^7 * 3^4 * 5 * 7 * 11 * 13 * 17) so exact division by common musical
// subdivisions (halves, thirds, fifths, sevenths, ...) stays exact.
const Beat int64 = 882161280

// Tstamp is a value type: (beats, rem) with 0 <= rem < Beat. Callers build
// and pass it on the stack; there is no heap allocation or shared state.
type Tstamp struct {
	Beats int64
	Rem   int32
}

// New builds a Tstamp, normalizing rem into [0, Beat) and carrying the
// overflow into beats.
func New(beats int64, rem int64) Tstamp {
	if rem >= 0 {
		beats += rem / Beat
		rem %= Beat
	} else {
		// ceil-div towards negative infinity so the remainder stays in range.
		borrow := (-rem + Beat - 1) / Beat
		beats -= borrow
		rem += borrow * Beat
	}
	return Tstamp{Beats: beats, Rem: int32(rem)}
}

// Set is New, returning an error instead of silently normalizing when the
// caller passed an already-out-of-range remainder directly (Argument-class
// misuse).
func Set(beats int64, rem int32) (Tstamp, error) {
	if rem < 0 || int64(rem) >= Beat {
		return Tstamp{}, fmt.Errorf("tstamp: rem %d out of range [0, %d)", rem, Beat)
	}
	return Tstamp{Beats: beats, Rem: rem}, nil
}

// Zero is the additive identity.
var Zero = Tstamp{}

// Cmp orders Tstamp values lexicographically: beats first, then rem.
func Cmp(a, b Tstamp) int {
	switch {
	case a.Beats < b.Beats:
		return -1
	case a.Beats > b.Beats:
		return 1
	case a.Rem < b.Rem:
		return -1
	case a.Rem > b.Rem:
		return 1
	default:
		return 0
	}
}

// Less reports whether a sorts before b.
func Less(a, b Tstamp) bool { return Cmp(a, b) < 0 }

// Add returns a+b, carrying rem overflow into beats.
func Add(a, b Tstamp) Tstamp {
	beats := a.Beats + b.Beats
	rem := int64(a.Rem) + int64(b.Rem)
	if rem >= Beat {
		rem -= Beat
		beats++
	}
	return Tstamp{Beats: beats, Rem: int32(rem)}
}

// Sub returns a-b, borrowing from beats when a's rem is smaller.
func Sub(a, b Tstamp) Tstamp {
	beats := a.Beats - b.Beats
	rem := int64(a.Rem) - int64(b.Rem)
	if rem < 0 {
		rem += Beat
		beats--
	}
	return Tstamp{Beats: beats, Rem: int32(rem)}
}

// Neg returns the additive inverse: unary minus is subtraction from zero.
func Neg(a Tstamp) Tstamp { return Sub(Zero, a) }

// IsZero reports whether a is exactly (0, 0).
func IsZero(a Tstamp) bool { return a.Beats == 0 && a.Rem == 0 }

// ToFrames converts a to a frame count at the given tempo (beats per
// minute) and sample rate (frames per second). Both must be positive.
//
// When rate*60 is divisible by tempo and a holds an integer number of
// beats, the result is an exact integer float64 value (no floating-point
// creep at beat boundaries), because the whole-beats term is computed
// separately from the fractional remainder term.
func ToFrames(a Tstamp, tempo, rate float64) (float64, error) {
	if tempo <= 0 {
		return 0, fmt.Errorf("tstamp: tempo must be positive, got %v", tempo)
	}
	if rate <= 0 {
		return 0, fmt.Errorf("tstamp: rate must be positive, got %v", rate)
	}
	framesPerBeat := rate * 60 / tempo
	whole := float64(a.Beats) * framesPerBeat
	frac := (float64(a.Rem) / float64(Beat)) * framesPerBeat
	return whole + frac, nil
}

// FromFrames converts a frame count back to musical time, rounding to the
// nearest sub-beat unit.
func FromFrames(frames, tempo, rate float64) (Tstamp, error) {
	if tempo <= 0 {
		return Tstamp{}, fmt.Errorf("tstamp: tempo must be positive, got %v", tempo)
	}
	if rate <= 0 {
		return Tstamp{}, fmt.Errorf("tstamp: rate must be positive, got %v", rate)
	}
	framesPerBeat := rate * 60 / tempo
	totalBeats := frames / framesPerBeat
	beats := math.Floor(totalBeats)
	fracBeats := totalBeats - beats
	rem := math.Round(fracBeats * float64(Beat))
	if rem >= float64(Beat) {
		rem -= float64(Beat)
		beats++
	}
	return New(int64(beats), int64(rem)), nil
}

func (t Tstamp) String() string {
	return fmt.Sprintf("%d+%d/%d", t.Beats, t.Rem, Beat)
}
