package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kunquat/kunquat-go/internal/tstamp"
)

func twoBeatPattern() Pattern {
	return Pattern{
		Length: tstamp.New(2, 0),
		Rows: []TriggerRow{
			{At: tstamp.New(1, 0), Column: 0, Events: []string{"n+"}},
		},
	}
}

func TestStepStopsAtTriggerRow(t *testing.T) {
	s := New([]Song{{Order: []OrderEntry{{Pattern: 0}}}}, []Pattern{twoBeatPattern()}, 48000, 120)
	frames, rows, err := s.Step(1 << 30)
	require.NoError(t, err)
	assert.Nil(t, rows)
	assert.Greater(t, frames, 0)

	_, rows, err = s.Step(0)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.Equal(t, "n+", rows[0].Events[0])
}

func TestZeroLengthPatternAdvancesWithoutFrames(t *testing.T) {
	patterns := []Pattern{{Length: tstamp.Zero}, twoBeatPattern()}
	s := New([]Song{{Order: []OrderEntry{{Pattern: 0}, {Pattern: 1}}}}, patterns, 48000, 120)
	frames, rows, err := s.Step(1000)
	require.NoError(t, err)
	assert.Equal(t, 0, frames)
	assert.Nil(t, rows)
	assert.Equal(t, 1, s.Cursor.OrderIndex)
}

func TestInfiniteModeWraps(t *testing.T) {
	s := New([]Song{{Order: []OrderEntry{{Pattern: 0}}}}, []Pattern{{Length: tstamp.New(1, 0)}}, 48000, 120)
	s.Infinite = true
	for i := 0; i < 5; i++ {
		_, _, err := s.Step(1 << 30)
		require.NoError(t, err)
	}
	assert.False(t, s.Ended())
}

func TestNonInfiniteEndsAtOrderListEnd(t *testing.T) {
	s := New([]Song{{Order: []OrderEntry{{Pattern: 0}}}}, []Pattern{{Length: tstamp.New(1, 0)}}, 48000, 120)
	for i := 0; i < 3 && !s.Ended(); i++ {
		_, _, err := s.Step(1 << 30)
		require.NoError(t, err)
	}
	assert.True(t, s.Ended())
}

func TestJumpCreatesLoop(t *testing.T) {
	s := New([]Song{{Order: []OrderEntry{{Pattern: 0}, {Pattern: 0}}}}, []Pattern{{Length: tstamp.New(1, 0)}}, 48000, 120)
	s.Cursor.OrderIndex = 1
	s.Jump(0, tstamp.Zero)
	assert.Equal(t, 0, s.Cursor.OrderIndex)
	assert.False(t, s.Ended())
}

func TestTempoSlideStepsLog2Exponentially(t *testing.T) {
	ts := TempoState{BPM: 120, SlideTarget: 240, SlideStep: 1}
	for i := 0; i < 200 && ts.SlideStep != 0; i++ {
		ts.stepFrame()
	}
	assert.InDelta(t, 240, ts.BPM, 1e-6)
}

func TestSeekAccumulatesAcrossPatterns(t *testing.T) {
	patterns := []Pattern{{Length: tstamp.New(1, 0)}, {Length: tstamp.New(1, 0)}}
	s := New([]Song{{Order: []OrderEntry{{Pattern: 0}, {Pattern: 1}}}}, patterns, 48000, 120)
	framesPerBeat, _ := tstamp.ToFrames(tstamp.New(1, 0), 120, 48000)
	ns := int64(framesPerBeat / 48000 * 1e9 * 1.5)
	require.NoError(t, s.Seek(0, ns))
	assert.Equal(t, 1, s.Cursor.OrderIndex)
}
