package kunquat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kunquat/kunquat-go/internal/config"
)

func debugConfig() config.EngineConfig {
	cfg := config.Default()
	cfg.AudioRate = 220
	cfg.BlockSizeFrames = 128
	cfg.MaxVoices = 8
	return cfg
}

func TestDebugNoteProducesFixedPattern(t *testing.T) {
	e, err := NewDebugEngine(debugConfig())
	require.NoError(t, err)

	require.NoError(t, e.FireEvent(0, `["n+","55"]`))
	frames, err := e.Play(128)
	require.NoError(t, err)
	assert.Equal(t, 128, frames)

	left := e.GetAudio(0)
	for cycle := 0; cycle < 10; cycle++ {
		base := cycle * 4
		assert.InDelta(t, 1.0, left[base], 1e-5)
		assert.InDelta(t, 0.5, left[base+1], 1e-5)
		assert.InDelta(t, 0.5, left[base+2], 1e-5)
		assert.InDelta(t, 0.5, left[base+3], 1e-5)
	}
	for i := 40; i < 128; i++ {
		assert.InDelta(t, 0.0, left[i], 1e-5)
	}
}

func TestPauseRendersSilence(t *testing.T) {
	e, err := NewDebugEngine(debugConfig())
	require.NoError(t, err)
	require.NoError(t, e.FireEvent(0, `["n+","55"]`))
	e.Pause()

	frames, err := e.Play(128)
	require.NoError(t, err)
	assert.Equal(t, 128, frames)
	for _, s := range e.GetAudio(0) {
		assert.Equal(t, float32(0), s)
	}
}

func TestNoteOffMirrorsThePattern(t *testing.T) {
	e, err := NewDebugEngine(debugConfig())
	require.NoError(t, err)
	require.NoError(t, e.FireEvent(0, `["n+","55"]`))
	_, err = e.Play(20)
	require.NoError(t, err)
	require.NoError(t, e.FireEvent(0, `["n-",""]`))
	frames, err := e.Play(20)
	require.NoError(t, err)
	assert.Equal(t, 20, frames)
}

func TestRetriggerCutsThePreviousVoice(t *testing.T) {
	e, err := NewDebugEngine(debugConfig())
	require.NoError(t, err)
	require.NoError(t, e.FireEvent(0, `["n+","55"]`))
	_, err = e.Play(2)
	require.NoError(t, err)

	require.NoError(t, e.FireEvent(0, `["n+","55"]`))
	_, err = e.Play(8)
	require.NoError(t, err)

	// Once the cut voice's release tail has fully died out, the channel
	// should show exactly the re-triggered voice's own fixed cycle, not
	// the sum of two simultaneously sounding notes.
	left := e.GetAudio(0)
	assert.InDelta(t, 1.0, left[4], 1e-5)
	assert.InDelta(t, 0.5, left[5], 1e-5)
	assert.InDelta(t, 0.5, left[6], 1e-5)
	assert.InDelta(t, 0.5, left[7], 1e-5)
}

func TestSetForceScalesAmplitude(t *testing.T) {
	e, err := NewDebugEngine(debugConfig())
	require.NoError(t, err)
	require.NoError(t, e.FireEvent(0, `["n+","55"]`))
	require.NoError(t, e.FireEvent(0, `[".f","0.5"]`))
	_, err = e.Play(1)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, e.GetAudio(0)[0], 1e-5)
}

func TestTempoEventsDriveScheduler(t *testing.T) {
	e, err := NewDebugEngine(debugConfig())
	require.NoError(t, err)
	require.NoError(t, e.FireEvent(0, `["m.t","90"]`))
	_, err = e.Play(1)
	require.NoError(t, err)
	assert.Equal(t, 90.0, e.sched.Tempo.BPM)

	require.NoError(t, e.FireEvent(0, `["m/=t","2"]`))
	require.NoError(t, e.FireEvent(0, `["m/t","180"]`))
	_, err = e.Play(1)
	require.NoError(t, err)
	assert.Equal(t, 180.0, e.sched.Tempo.SlideTarget)
	assert.NotEqual(t, 0.0, e.sched.Tempo.SlideStep)
}

func TestIndependentChannelsMixAdditively(t *testing.T) {
	e, err := NewDebugEngine(debugConfig())
	require.NoError(t, err)
	require.NoError(t, e.FireEvent(0, `["n+","55"]`))
	require.NoError(t, e.FireEvent(1, `["n+","55"]`))
	_, err = e.Play(4)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, e.GetAudio(0)[0], 1e-5)
}

func TestFireEventRejectsMalformedJSON(t *testing.T) {
	e, err := NewDebugEngine(debugConfig())
	require.NoError(t, err)
	assert.Error(t, e.FireEvent(0, `not json`))
}

func TestReceiveEventsReturnsEmptyArrayWhenIdle(t *testing.T) {
	e, err := NewDebugEngine(debugConfig())
	require.NoError(t, err)
	assert.Equal(t, "[]", e.ReceiveEvents())
}

func TestSetPositionClearsPendingEvents(t *testing.T) {
	e, err := NewDebugEngine(debugConfig())
	require.NoError(t, err)
	require.NoError(t, e.FireEvent(0, `["n+","55"]`))
	require.NoError(t, e.SetPosition(0, 0))
	frames, err := e.Play(4)
	require.NoError(t, err)
	assert.Equal(t, 4, frames)
	for _, s := range e.GetAudio(0) {
		assert.Equal(t, float32(0), s)
	}
}
