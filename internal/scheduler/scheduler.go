// Package scheduler implements the song cursor and tempo/trigger
// dispatch loop: per render step it figures out how many frames can be
// rendered before the next thing that needs attention (a trigger row or
// the pattern end), and advances the cursor by that many frames once the
// device graph has rendered them. A tempo slide does not end a step: the
// slide is stepped once per frame, and the cursor advances at the tempo
// in effect when the step began.
//
// The cursor/runtime-state split here is the same shape as the teacher's
// trackCursor/runtimeState pair in internal/sequencer/sequencer.go,
// generalized from "N parallel MML tracks" to "one shared pattern
// timeline with an order list per song".
package scheduler

import (
	"fmt"
	"math"

	"github.com/kunquat/kunquat-go/internal/tstamp"
)

// TriggerRow is one row of a pattern's trigger column: a time plus the
// events firing there, in column order.
type TriggerRow struct {
	At     tstamp.Tstamp
	Column int
	Events []string // opaque to the scheduler; handed to the event runtime as-is
}

// Pattern is a trigger timeline of fixed length.
type Pattern struct {
	Length tstamp.Tstamp
	Rows   []TriggerRow // sorted by (At, Column)
}

// OrderEntry names one (pattern, instance) occurrence in a song's order list.
type OrderEntry struct {
	Pattern  int
	Instance int
}

// Song is one track's order list.
type Song struct {
	Order []OrderEntry
}

// Cursor is the scheduler's position: which song/order-list slot, and
// how far into the current pattern.
type Cursor struct {
	Track           int
	OrderIndex      int
	Row             tstamp.Tstamp
	PatternDelay    int64 // beats of "no progress" remaining, per `mpd`
	nextRowIndex    int
}

// TempoState tracks the current tempo and an in-progress slide.
type TempoState struct {
	BPM          float64
	SlideTarget  float64
	SlideStep    float64 // per-frame exponential step in log2(bpm); 0 = no slide
}

func (t *TempoState) stepFrame() {
	if t.SlideStep == 0 {
		return
	}
	cur := math.Log2(t.BPM)
	target := math.Log2(t.SlideTarget)
	next := cur + t.SlideStep
	if (t.SlideStep > 0 && next >= target) || (t.SlideStep < 0 && next <= target) {
		t.BPM = t.SlideTarget
		t.SlideStep = 0
		return
	}
	t.BPM = math.Exp2(next)
}

// Scheduler advances a Cursor through a Song's patterns at a given
// sample rate, dispatching trigger rows as it passes them.
type Scheduler struct {
	Songs      []Song
	Patterns   []Pattern
	SampleRate float64
	Infinite   bool

	Tempo  TempoState
	Cursor Cursor

	ended bool
}

// New creates a Scheduler starting at the beginning of track 0.
func New(songs []Song, patterns []Pattern, sampleRate float64, startBPM float64) *Scheduler {
	return &Scheduler{
		Songs:      songs,
		Patterns:   patterns,
		SampleRate: sampleRate,
		Tempo:      TempoState{BPM: startBPM},
	}
}

func (s *Scheduler) currentPattern() (*Pattern, *OrderEntry, error) {
	if s.Cursor.Track < 0 || s.Cursor.Track >= len(s.Songs) {
		return nil, nil, fmt.Errorf("scheduler: track %d out of range", s.Cursor.Track)
	}
	song := s.Songs[s.Cursor.Track]
	if len(song.Order) == 0 {
		return nil, nil, fmt.Errorf("scheduler: track %d has an empty order list", s.Cursor.Track)
	}
	if s.Cursor.OrderIndex >= len(song.Order) {
		if s.Infinite {
			s.Cursor.OrderIndex = 0
		} else {
			return nil, nil, nil
		}
	}
	entry := song.Order[s.Cursor.OrderIndex]
	if entry.Pattern < 0 || entry.Pattern >= len(s.Patterns) {
		return nil, nil, fmt.Errorf("scheduler: order list references unknown pattern %d", entry.Pattern)
	}
	return &s.Patterns[entry.Pattern], &entry, nil
}

// Ended reports whether playback has reached the end of a finite order
// list (never true in infinite mode).
func (s *Scheduler) Ended() bool { return s.ended }

// Step computes how many frames may be rendered before the next trigger
// row or pattern end, advances the cursor by that many frames, and
// returns any trigger rows crossed (in column order, already sorted by
// the pattern's row order). The end of a tempo slide does not shorten
// the step.
func (s *Scheduler) Step(maxFrames int) (frames int, rows []TriggerRow, err error) {
	if s.ended {
		return 0, nil, nil
	}
	pat, _, err := s.currentPattern()
	if err != nil {
		return 0, nil, err
	}
	if pat == nil {
		s.ended = true
		return 0, nil, nil
	}

	if tstamp.IsZero(pat.Length) {
		s.advancePattern()
		return 0, nil, nil
	}

	if s.Cursor.PatternDelay > 0 {
		// Pattern delay inserts beats of silence; consume it one beat-frame at a time.
		delayTS := tstamp.New(s.Cursor.PatternDelay, 0)
		frames, err = s.framesFor(delayTS, maxFrames)
		if err != nil {
			return 0, nil, err
		}
		consumed, err := tstamp.FromFrames(float64(frames), s.Tempo.BPM, s.SampleRate)
		if err != nil {
			return 0, nil, err
		}
		s.Cursor.PatternDelay -= consumed.Beats
		if s.Cursor.PatternDelay < 0 {
			s.Cursor.PatternDelay = 0
		}
		for i := 0; i < frames; i++ {
			s.Tempo.stepFrame()
		}
		return frames, nil, nil
	}

	// Find the next boundary: next row at/after cursor, or pattern end.
	nextAt := pat.Length
	for s.Cursor.nextRowIndex < len(pat.Rows) && tstamp.Less(pat.Rows[s.Cursor.nextRowIndex].At, s.Cursor.Row) {
		s.Cursor.nextRowIndex++
	}
	if s.Cursor.nextRowIndex < len(pat.Rows) {
		nextAt = pat.Rows[s.Cursor.nextRowIndex].At
	}

	dist := tstamp.Sub(nextAt, s.Cursor.Row)
	if tstamp.IsZero(dist) {
		// at a trigger row right now: dispatch it without advancing.
		at := s.Cursor.Row
		for s.Cursor.nextRowIndex < len(pat.Rows) && tstamp.Cmp(pat.Rows[s.Cursor.nextRowIndex].At, at) == 0 {
			rows = append(rows, pat.Rows[s.Cursor.nextRowIndex])
			s.Cursor.nextRowIndex++
		}
		return 0, rows, nil
	}

	frames, err = s.framesFor(dist, maxFrames)
	if err != nil {
		return 0, nil, err
	}
	advanced, err := tstamp.FromFrames(float64(frames), s.Tempo.BPM, s.SampleRate)
	if err != nil {
		return 0, nil, err
	}
	s.Cursor.Row = tstamp.Add(s.Cursor.Row, advanced)
	for i := 0; i < frames; i++ {
		s.Tempo.stepFrame()
	}

	if tstamp.Cmp(s.Cursor.Row, pat.Length) >= 0 {
		s.advancePattern()
	}
	return frames, nil, nil
}

func (s *Scheduler) framesFor(dist tstamp.Tstamp, maxFrames int) (int, error) {
	f, err := tstamp.ToFrames(dist, s.Tempo.BPM, s.SampleRate)
	if err != nil {
		return 0, err
	}
	frames := int(math.Ceil(f))
	if frames > maxFrames {
		frames = maxFrames
	}
	if frames < 0 {
		frames = 0
	}
	return frames, nil
}

func (s *Scheduler) advancePattern() {
	s.Cursor.OrderIndex++
	s.Cursor.Row = tstamp.Zero
	s.Cursor.nextRowIndex = 0
	song := s.Songs[s.Cursor.Track]
	if s.Cursor.OrderIndex >= len(song.Order) {
		if s.Infinite {
			s.Cursor.OrderIndex = 0
		} else {
			s.ended = true
		}
	}
}

// Jump repositions the cursor to a specific order-list slot and row,
// per the jump event. Backward jumps naturally create loops because
// nothing here prevents revisiting an earlier OrderIndex.
func (s *Scheduler) Jump(orderIndex int, row tstamp.Tstamp) {
	s.Cursor.OrderIndex = orderIndex
	s.Cursor.Row = row
	s.Cursor.nextRowIndex = 0
	s.ended = false
}

// PatternDelayBeats honors `mpd k`: insert k beats of "no progress" before the
// next trigger row is processed.
func (s *Scheduler) PatternDelayBeats(k int64) { s.Cursor.PatternDelay += k }

// Seek positions the cursor at (track, nanoseconds) by iterating patterns
// and accumulating frame counts until the target offset is reached. Every
// pattern is measured at the scheduler's current tempo; tempo changes
// inside the skipped patterns are not applied.
func (s *Scheduler) Seek(track int, nanoseconds int64) error {
	if track < 0 || track >= len(s.Songs) {
		return fmt.Errorf("scheduler: track %d out of range", track)
	}
	s.Cursor = Cursor{Track: track}
	s.ended = false
	targetFrames := float64(nanoseconds) * s.SampleRate / 1e9

	accumulated := 0.0
	for {
		pat, _, err := s.currentPattern()
		if err != nil {
			return err
		}
		if pat == nil {
			return nil
		}
		patFrames, err := tstamp.ToFrames(pat.Length, s.Tempo.BPM, s.SampleRate)
		if err != nil {
			return err
		}
		if accumulated+patFrames >= targetFrames {
			remaining := targetFrames - accumulated
			row, err := tstamp.FromFrames(remaining, s.Tempo.BPM, s.SampleRate)
			if err != nil {
				return err
			}
			s.Cursor.Row = row
			return nil
		}
		accumulated += patFrames
		s.advancePattern()
		if s.ended {
			return nil
		}
	}
}
