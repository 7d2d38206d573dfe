package voice

import "sort"

// PanPoint is one breakpoint of a pitch-indexed pan envelope: at Pitch Hz
// the envelope contributes Pan (before clamping) to the panning stage.
type PanPoint struct {
	Pitch float64
	Pan   float64
}

// PanEnvelope is a piecewise-linear pitch -> pan contribution table, the
// panning pipeline's analogue of the force/filter pipelines' breakpoint
// Envelope: a chord's upper notes can be keyed to sit further toward one
// channel than its lower notes without a separate pan event per note.
type PanEnvelope struct {
	// Points must be sorted ascending by Pitch.
	Points []PanPoint
}

// At interpolates the envelope's contribution at pitch, holding the
// first/last breakpoint's value outside the table's range.
func (e *PanEnvelope) At(pitch float64) float64 {
	n := len(e.Points)
	if n == 0 {
		return 0
	}
	if pitch <= e.Points[0].Pitch {
		return e.Points[0].Pan
	}
	if pitch >= e.Points[n-1].Pitch {
		return e.Points[n-1].Pan
	}
	i := sort.Search(n, func(i int) bool { return e.Points[i].Pitch >= pitch })
	lo, hi := e.Points[i-1], e.Points[i]
	t := (pitch - lo.Pitch) / (hi.Pitch - lo.Pitch)
	return lo.Pan + (hi.Pan-lo.Pan)*t
}
