// Package scale implements the tuning table: a fixed-capacity array of
// scale degrees mapping to frequency ratios, with the retuning algorithm
// that shifts the reference note while holding one pivot note fixed.
//
// Ratios are plain float64 rather than exact rationals. The retuning
// algorithm it is grounded on (original_source/src/lib/Scale.c) carries
// ratios as an exact-rational Real type; the retrieval pack offers no
// rational-arithmetic library, and the tuning invariants this core must
// hold (pivot note unchanged, retune(-1, *) restores originals) only
// need round-trip accuracy to float64 precision, so the exact-rational
// type is not worth introducing — see DESIGN.md.
package scale

import (
	"fmt"
	"math"
)

// MaxNotes is the tuning table's fixed note capacity.
const MaxNotes = 128

// MaxMods is the fixed capacity for note modifiers (ratio multipliers).
const MaxMods = 16

// Octaves is the number of precomputed octave factors, centered on the
// middle octave at index Octaves/2.
const Octaves = 16

// MiddleOctave is the index into OctFactors corresponding to ratio 1.
const MiddleOctave = Octaves / 2

// Note is one entry of the tuning table.
type Note struct {
	exists         bool
	OriginalRatio  float64
	CurrentRatio   float64
	Cents          float64
}

// Mod is a ratio multiplier note modifier.
type Mod struct {
	exists bool
	Ratio  float64
	Cents  float64
}

// Scale is the tuning table: up to MaxNotes notes, up to MaxMods
// modifiers, a reference note/pitch, and an octave ratio.
type Scale struct {
	notes      [MaxNotes]Note
	mods       [MaxMods]Mod
	noteCount  int
	refNote    int
	refNoteCur int
	refPitch   float64
	octaveRatio float64
	octFactors [Octaves]float64
}

// New creates a Scale with the given reference pitch (Hz, must be
// positive) and octave ratio (must be positive).
func New(refPitch, octaveRatio float64) (*Scale, error) {
	if refPitch <= 0 {
		return nil, fmt.Errorf("scale: reference pitch must be positive, got %v", refPitch)
	}
	if octaveRatio <= 0 {
		return nil, fmt.Errorf("scale: octave ratio must be positive, got %v", octaveRatio)
	}
	s := &Scale{refPitch: refPitch}
	s.setOctaveRatio(octaveRatio)
	return s, nil
}

func (s *Scale) setOctaveRatio(ratio float64) {
	s.octaveRatio = ratio
	s.octFactors[MiddleOctave] = 1
	f := 1.0
	for i := MiddleOctave + 1; i < Octaves; i++ {
		f *= ratio
		s.octFactors[i] = f
	}
	f = 1.0
	for i := MiddleOctave - 1; i >= 0; i-- {
		f /= ratio
		s.octFactors[i] = f
	}
}

// OctaveRatio returns the scale's octave ratio.
func (s *Scale) OctaveRatio() float64 { return s.octaveRatio }

// OctFactor returns the precomputed multiplier for the given octave index.
func (s *Scale) OctFactor(octave int) (float64, error) {
	if octave < 0 || octave >= Octaves {
		return 0, fmt.Errorf("scale: octave %d out of range [0, %d)", octave, Octaves)
	}
	return s.octFactors[octave], nil
}

// NoteCount reports how many notes are currently defined.
func (s *Scale) NoteCount() int { return s.noteCount }

// SetNote defines (or redefines) the note at index with the given ratio
// relative to the reference pitch. Indices are appended in order; index
// must be <= NoteCount().
func (s *Scale) SetNote(index int, ratio float64) error {
	if index < 0 || index >= MaxNotes {
		return fmt.Errorf("scale: note index %d out of range [0, %d)", index, MaxNotes)
	}
	if ratio <= 0 {
		return fmt.Errorf("scale: note ratio must be positive, got %v", ratio)
	}
	s.notes[index] = Note{exists: true, OriginalRatio: ratio, CurrentRatio: ratio, Cents: ratioToCents(ratio)}
	if index >= s.noteCount {
		s.noteCount = index + 1
	}
	return nil
}

// SetNoteCents is SetNote expressed in cents relative to the reference.
func (s *Scale) SetNoteCents(index int, cents float64) error {
	return s.SetNote(index, centsToRatio(cents))
}

func ratioToCents(ratio float64) float64 { return 1200 * math.Log2(ratio) }
func centsToRatio(cents float64) float64 { return math.Exp2(cents / 1200) }

// SetRefNote sets the original reference note index. It must already exist.
func (s *Scale) SetRefNote(index int) error {
	if index < 0 || index >= s.noteCount || !s.notes[index].exists {
		return fmt.Errorf("scale: reference note %d does not exist", index)
	}
	s.refNote = index
	s.refNoteCur = index
	return nil
}

// RefNote returns the original reference note index.
func (s *Scale) RefNote() int { return s.refNote }

// CurRefNote returns the currently-retuned reference note index.
func (s *Scale) CurRefNote() int { return s.refNoteCur }

// RefPitch returns the reference pitch in Hz.
func (s *Scale) RefPitch() float64 { return s.refPitch }

// Note returns the note at index and whether it exists.
func (s *Scale) Note(index int) (Note, bool) {
	if index < 0 || index >= MaxNotes || !s.notes[index].exists {
		return Note{}, false
	}
	return s.notes[index], true
}

// Pitch returns the frequency in Hz for the given note index and octave.
func (s *Scale) Pitch(index, octave int) (float64, error) {
	n, ok := s.Note(index)
	if !ok {
		return 0, fmt.Errorf("scale: note %d does not exist", index)
	}
	octFactor, err := s.OctFactor(octave)
	if err != nil {
		return 0, err
	}
	return s.refPitch * n.CurrentRatio * octFactor, nil
}

// Retune shifts the reference note to newRef while holding fixedPoint's
// current ratio unchanged, per the core's "retuning preserves a fixed
// pivot" rule. newRef < 0 resets all current ratios to their originals
// (the "reset to original" case).
//
// When fixedPoint does not name an existing note, it falls back to the
// current reference note rather than erroring — ported as-is from the
// algorithm this is grounded on, which flags the fallback as provisional
// but ships it; see DESIGN.md for the decision to keep that behavior.
func (s *Scale) Retune(newRef, fixedPoint int) error {
	if newRef >= MaxNotes {
		return fmt.Errorf("scale: new reference %d out of range", newRef)
	}
	if newRef < 0 {
		s.refNoteCur = s.refNote
		for i := 0; i < s.noteCount && s.notes[i].exists; i++ {
			s.notes[i].CurrentRatio = s.notes[i].OriginalRatio
		}
		return nil
	}
	if fixedPoint < 0 || fixedPoint >= MaxNotes {
		return fmt.Errorf("scale: fixed point %d out of range", fixedPoint)
	}
	if newRef == s.refNoteCur || !s.notes[newRef].exists {
		return nil
	}
	if !s.notes[fixedPoint].exists {
		fixedPoint = s.refNoteCur
	}

	n := s.noteCount
	fixedNewOrder := fixedPoint - newRef
	if fixedNewOrder < 0 {
		fixedNewOrder += n
	}
	fixedCounterpart := (s.refNoteCur + fixedNewOrder) % n

	fixedToNewRefRatio := s.notes[fixedCounterpart].CurrentRatio / s.notes[s.refNoteCur].CurrentRatio
	if fixedCounterpart > s.refNoteCur && fixedPoint < newRef {
		fixedToNewRefRatio /= s.octaveRatio
	} else if fixedCounterpart < s.refNoteCur && fixedPoint > newRef {
		fixedToNewRefRatio *= s.octaveRatio
	}

	newRatios := make([]float64, n)
	newRatios[newRef] = s.notes[fixedPoint].CurrentRatio / fixedToNewRefRatio

	for i := 1; i < n; i++ {
		curFromOldRef := (s.refNoteCur + i) % n
		curFromNewRef := (newRef + i) % n
		if curFromNewRef == fixedPoint {
			newRatios[fixedPoint] = s.notes[fixedPoint].CurrentRatio
			continue
		}
		toRefRatio := s.notes[curFromOldRef].CurrentRatio / s.notes[s.refNoteCur].CurrentRatio
		if curFromNewRef > newRef && curFromOldRef < s.refNoteCur {
			toRefRatio *= s.octaveRatio
		} else if curFromNewRef < newRef && curFromOldRef > s.refNoteCur {
			toRefRatio /= s.octaveRatio
		}
		newRatios[curFromNewRef] = toRefRatio * newRatios[newRef]
	}

	s.refNoteCur = newRef
	for i := 0; i < n; i++ {
		s.notes[i].CurrentRatio = newRatios[i]
	}
	return nil
}

// Drift reports how far the current ratio at the original reference note
// has moved from its original ratio, as a multiplier (1 = no drift).
// Ported from the original's Scale_drift. Nothing else in this module
// calls it; the PADsynth builder does not consult the scale.
func (s *Scale) Drift() (float64, error) {
	n, ok := s.Note(s.refNote)
	if !ok {
		return 0, fmt.Errorf("scale: reference note %d does not exist", s.refNote)
	}
	return n.CurrentRatio / n.OriginalRatio, nil
}
