package scale

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildTestScale(t *testing.T) *Scale {
	t.Helper()
	s, err := New(440, 2)
	require.NoError(t, err)
	ratios := []float64{1, 9.0 / 8, 5.0 / 4, 4.0 / 3, 3.0 / 2, 5.0 / 3, 15.0 / 8}
	for i, r := range ratios {
		require.NoError(t, s.SetNote(i, r))
	}
	require.NoError(t, s.SetRefNote(0))
	return s
}

func TestRetunePreservesFixedPoint(t *testing.T) {
	s := buildTestScale(t)
	before, ok := s.Note(4)
	require.True(t, ok)

	require.NoError(t, s.Retune(2, 4))

	after, ok := s.Note(4)
	require.True(t, ok)
	assert.InDelta(t, before.CurrentRatio, after.CurrentRatio, 1e-9)
}

func TestRetuneResetRestoresOriginals(t *testing.T) {
	s := buildTestScale(t)
	require.NoError(t, s.Retune(3, 5))
	require.NoError(t, s.Retune(-1, 0))

	for i := 0; i < s.NoteCount(); i++ {
		n, ok := s.Note(i)
		require.True(t, ok)
		assert.InDelta(t, n.OriginalRatio, n.CurrentRatio, 1e-9)
	}
	assert.Equal(t, s.RefNote(), s.CurRefNote())
}

func TestRetuneThenResetIsIdentity(t *testing.T) {
	s := buildTestScale(t)
	var originals []float64
	for i := 0; i < s.NoteCount(); i++ {
		n, _ := s.Note(i)
		originals = append(originals, n.CurrentRatio)
	}

	require.NoError(t, s.Retune(1, 3))
	require.NoError(t, s.Retune(-1, 0))

	for i := 0; i < s.NoteCount(); i++ {
		n, _ := s.Note(i)
		assert.InDelta(t, originals[i], n.CurrentRatio, 1e-9)
	}
}

func TestRetuneFallsBackToCurrentRefWhenFixedPointMissing(t *testing.T) {
	s := buildTestScale(t)
	// fixed point 99 does not exist; must fall back without erroring.
	err := s.Retune(2, 99)
	assert.NoError(t, err)
}

func TestRetuneNoopWhenAlreadyCurrentRef(t *testing.T) {
	s := buildTestScale(t)
	before, _ := s.Note(3)
	require.NoError(t, s.Retune(0, 3)) // already the current reference
	after, _ := s.Note(3)
	assert.Equal(t, before, after)
}

func TestOctFactorsAreSymmetricAboutMiddle(t *testing.T) {
	s := buildTestScale(t)
	assert.Equal(t, 1.0, s.octFactors[MiddleOctave])
	up, err := s.OctFactor(MiddleOctave + 1)
	require.NoError(t, err)
	down, err := s.OctFactor(MiddleOctave - 1)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, up*down, 1e-9)
}

func TestPitchScalesWithOctave(t *testing.T) {
	s := buildTestScale(t)
	base, err := s.Pitch(0, MiddleOctave)
	require.NoError(t, err)
	up, err := s.Pitch(0, MiddleOctave+1)
	require.NoError(t, err)
	assert.InDelta(t, base*s.OctaveRatio(), up, 1e-9)
}

func TestDriftIsOneBeforeRetune(t *testing.T) {
	s := buildTestScale(t)
	d, err := s.Drift()
	require.NoError(t, err)
	assert.InDelta(t, 1.0, d, 1e-12)
}

func TestDriftReflectsRetune(t *testing.T) {
	s := buildTestScale(t)
	require.NoError(t, s.Retune(2, 5))
	d, err := s.Drift()
	require.NoError(t, err)
	assert.NotEqual(t, 1.0, d)
}

func TestNewRejectsNonPositiveInputs(t *testing.T) {
	_, err := New(0, 2)
	assert.Error(t, err)
	_, err = New(440, 0)
	assert.Error(t, err)
}

func TestSetNoteRejectsNonPositiveRatio(t *testing.T) {
	s := buildTestScale(t)
	assert.Error(t, s.SetNote(10, 0))
	assert.Error(t, s.SetNote(10, -1))
}
