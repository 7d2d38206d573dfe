package tstamp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func genTstamp(t *rapid.T) Tstamp {
	beats := rapid.Int64Range(-1_000_000, 1_000_000).Draw(t, "beats")
	rem := rapid.Int64Range(0, Beat-1).Draw(t, "rem")
	return New(beats, rem)
}

func TestAddCommutative(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a, b := genTstamp(t), genTstamp(t)
		assert.Equal(t, Add(a, b), Add(b, a))
	})
}

func TestSubSelfIsZero(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := genTstamp(t)
		assert.Equal(t, Zero, Sub(a, a))
	})
}

func TestSubAddInverse(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a, b := genTstamp(t), genTstamp(t)
		assert.Equal(t, a, Sub(Add(a, b), b))
	})
}

func TestRoundTripFrames(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := genTstamp(t)
		tempo := rapid.Float64Range(1, 999).Draw(t, "tempo")
		rate := rapid.Float64Range(1000, 192000).Draw(t, "rate")
		frames, err := ToFrames(a, tempo, rate)
		require.NoError(t, err)
		back, err := FromFrames(frames, tempo, rate)
		require.NoError(t, err)
		gotFrames, err := ToFrames(back, tempo, rate)
		require.NoError(t, err)
		assert.InDelta(t, frames, gotFrames, 1.0)
	})
}

func TestRemBoundaryCarries(t *testing.T) {
	a := Tstamp{Beats: 5, Rem: int32(Beat - 1)}
	b := Tstamp{Beats: 0, Rem: 1}
	got := Add(a, b)
	assert.Equal(t, Tstamp{Beats: 6, Rem: 0}, got)
}

func TestIntegerBeatsToFramesExact(t *testing.T) {
	// rate*60 divisible by tempo => exact integer frame count for integer beats.
	a := Tstamp{Beats: 4, Rem: 0}
	frames, err := ToFrames(a, 120, 48000)
	require.NoError(t, err)
	assert.Equal(t, float64(4*48000*60/120), frames)
}

func TestCmpOrdersLexicographically(t *testing.T) {
	a := Tstamp{Beats: 1, Rem: 5}
	b := Tstamp{Beats: 1, Rem: 10}
	c := Tstamp{Beats: 2, Rem: 0}
	assert.Equal(t, -1, Cmp(a, b))
	assert.Equal(t, -1, Cmp(b, c))
	assert.Equal(t, 0, Cmp(a, a))
}

func TestToFramesRejectsNonPositive(t *testing.T) {
	_, err := ToFrames(Zero, 0, 48000)
	assert.Error(t, err)
	_, err = ToFrames(Zero, 120, 0)
	assert.Error(t, err)
}

func TestNegIsSubtractionFromZero(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := genTstamp(t)
		assert.Equal(t, Sub(Zero, a), Neg(a))
	})
}
