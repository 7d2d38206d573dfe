package padsynth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseParams() Params {
	return Params{
		AudioRate:          48000,
		SampleLength:       1024,
		SampleCount:        4,
		MinPitch:           110,
		MaxPitch:           880,
		CentrePitch:        440,
		Harmonics:          []Harmonic{{FreqMul: 1, Amplitude: 1}, {FreqMul: 2, Amplitude: 0.5}},
		BandwidthBaseCents: 40,
		BandwidthScale:     1,
		Seed:               7,
	}
}

func TestBuildBankProducesOnePerSlot(t *testing.T) {
	bank, err := BuildBank(baseParams())
	require.NoError(t, err)
	assert.Len(t, bank, 4)
	for _, s := range bank {
		assert.Len(t, s.Frames, baseParams().SampleLength+1)
	}
}

func TestBuildBankWrapsLastFrameToFirst(t *testing.T) {
	bank, err := BuildBank(baseParams())
	require.NoError(t, err)
	for _, s := range bank {
		assert.Equal(t, s.Frames[0], s.Frames[len(s.Frames)-1])
	}
}

func TestBuildBankIsDeterministic(t *testing.T) {
	a, err := BuildBank(baseParams())
	require.NoError(t, err)
	b, err := BuildBank(baseParams())
	require.NoError(t, err)
	for i := range a {
		assert.Equal(t, a[i].Frames, b[i].Frames)
	}
}

func TestBuildBankNormalizesToUnitPeak(t *testing.T) {
	bank, err := BuildBank(baseParams())
	require.NoError(t, err)
	for _, s := range bank {
		peak := 0.0
		for _, v := range s.Frames {
			if a := abs(v); a > peak {
				peak = a
			}
		}
		assert.InDelta(t, 1.0, peak, 1e-6)
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func TestBuildBankRejectsNonPowerOfTwoLength(t *testing.T) {
	p := baseParams()
	p.SampleLength = 1000
	_, err := BuildBank(p)
	assert.Error(t, err)
}

func TestBuildBankRejectsExcessiveSampleCount(t *testing.T) {
	p := baseParams()
	p.SampleCount = 200
	_, err := BuildBank(p)
	assert.Error(t, err)
}

func TestBuildBankHonorsRoundToPeriod(t *testing.T) {
	p := baseParams()
	p.RoundToPeriod = true
	bank, err := BuildBank(p)
	require.NoError(t, err)
	for _, s := range bank {
		if s.Pitch == 0 {
			continue
		}
		cycles := float64(p.SampleLength) * s.Pitch / p.AudioRate
		assert.InDelta(t, cycles, float64(int(cycles+0.5)), 1e-6)
	}
}
