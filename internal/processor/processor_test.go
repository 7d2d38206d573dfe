package processor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kunquat/kunquat-go/internal/graph"
	"github.com/kunquat/kunquat-go/internal/voice"
)

func TestAddGeneratorProducesDebugCycle(t *testing.T) {
	sampleRate := 220.0
	gen := NewAdd(sampleRate)
	pool := voice.NewPool(1, sampleRate)
	v := pool.Voice(0)
	v.Trigger(1, 0, 55, 1) // period = sampleRate/pitch = 4 frames
	v.Active = true

	out := make(graph.StereoBuffer, 8*2)
	gen.Render([]*voice.Voice{v}, out)

	assert.InDelta(t, 1.0, out[0], 1e-6)
	assert.InDelta(t, 0.5, out[2], 1e-6)
	assert.InDelta(t, 0.5, out[4], 1e-6)
	assert.InDelta(t, 0.5, out[6], 1e-6)
	assert.InDelta(t, 1.0, out[8], 1e-6)
}

func TestNoiseGeneratorIsDeterministicPerVoice(t *testing.T) {
	sampleRate := 48000.0
	gen := NewNoise(sampleRate)
	pool := voice.NewPool(1, sampleRate)
	v := pool.Voice(0)
	v.Trigger(1, 0, 440, 1)
	v.Active = true

	out1 := make(graph.StereoBuffer, 64)
	gen.Render([]*voice.Voice{v}, out1)

	gen2 := NewNoise(sampleRate)
	v.Trigger(1, 0, 440, 1)
	v.Active = true
	out2 := make(graph.StereoBuffer, 64)
	gen2.Render([]*voice.Voice{v}, out2)

	assert.Equal(t, out1, out2)
}

func TestFilterAttenuatesHighFrequencyMoreThanLow(t *testing.T) {
	f := &Filter{CutoffHz: 200, Resonance: 0, SampleRate: 48000}
	var lowOut, highOut float32
	for i := 0; i < 200; i++ {
		l, _ := f.Process(1, 1)
		lowOut = l
	}
	f.Reset()
	for i := 0; i < 200; i++ {
		sign := float32(1)
		if i%2 == 1 {
			sign = -1
		}
		l, _ := f.Process(sign, sign)
		highOut = l
	}
	assert.Greater(t, lowOut, highOut)
}

func TestMixedEffectsAreAllConstructible(t *testing.T) {
	for _, name := range []string{"delay", "reverb", "chorus", "distortion", "compressor", "eq3", "eq5"} {
		fx, err := NewMixedEffect(name, 48000, 140)
		require.NoError(t, err, name)
		fx.Reset()
		l, r := fx.Process(1, -1)
		assert.False(t, isNaN(float64(l)) || isNaN(float64(r)), name)
	}
	_, err := NewMixedEffect("bogus", 48000, 120)
	assert.Error(t, err)
}

func TestMixedEffectWiresIntoDeviceGraph(t *testing.T) {
	g := graph.New()
	gen := NewAdd(220)
	fx, err := NewMixedEffect("delay", 220, 120)
	require.NoError(t, err)

	require.NoError(t, g.AddNode(&graph.Node{ID: "debug", Kind: graph.KindAdd, Gen: gen}))
	require.NoError(t, g.AddNode(&graph.Node{ID: "delay", Kind: graph.KindMixedEffect, Fx: fx}))
	require.NoError(t, g.Connect("debug", "delay"))

	pool := voice.NewPool(1, 220)
	v := pool.Voice(0)
	v.Trigger(1, 0, 55, 1)
	v.Active = true
	g.Node("debug").SetVoices([]*voice.Voice{v})

	require.NoError(t, g.Render(8))
	assert.Equal(t, []string{"delay"}, g.Sinks())
}

func isNaN(f float64) bool { return f != f }

func TestKindNameCoversAllKinds(t *testing.T) {
	for k := graph.KindSample; k <= graph.KindMixedEffect; k++ {
		name, err := KindName(k)
		require.NoError(t, err)
		assert.NotEmpty(t, name)
	}
}
