// Command kqplay is a minimal playback harness for the render core: it
// builds a debug-instrument Engine (no composition tree to load yet),
// fires a note, renders a fixed duration, and writes the result to a
// WAV file — the same "render offline, dump a file" shape as the
// teacher's cmd/play_mml, generalized from an MML player to a render
// core driven entirely through the play/fire_event contract.
package main

import (
	"encoding/binary"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kunquat/kunquat-go"
	"github.com/kunquat/kunquat-go/internal/audio"
	"github.com/kunquat/kunquat-go/internal/config"
	"github.com/kunquat/kunquat-go/internal/graph"
	"github.com/kunquat/kunquat-go/internal/klog"
	"github.com/kunquat/kunquat-go/internal/processor"
)

func main() {
	var (
		sampleRate int
		seconds    float64
		pitch      float64
		bpm        float64
		outPath    string
		effects    string
		live       bool
	)

	root := &cobra.Command{
		Use:   "kqplay",
		Short: "Render a debug note through the kunquat-go render core",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			cfg.AudioRate = sampleRate

			var chain []string
			if effects != "" {
				chain = strings.Split(effects, ",")
			}
			eng, err := kunquat.NewEngine(cfg, graph.KindAdd, processor.NewAdd(float64(sampleRate)), chain, bpm)
			if err != nil {
				return fmt.Errorf("build engine: %w", err)
			}
			if err := eng.FireEvent(0, fmt.Sprintf(`["n+","%g"]`, pitch)); err != nil {
				return fmt.Errorf("fire_event: %w", err)
			}

			if live {
				return playLive(eng, sampleRate, seconds)
			}

			totalFrames := int(seconds * float64(sampleRate))
			const block = 1024
			left := make([]float32, 0, totalFrames)
			right := make([]float32, 0, totalFrames)
			for len(left) < totalFrames {
				n := block
				if remaining := totalFrames - len(left); remaining < n {
					n = remaining
				}
				rendered, err := eng.Play(n)
				if err != nil {
					return fmt.Errorf("play: %w", err)
				}
				left = append(left, eng.GetAudio(0)[:rendered]...)
				right = append(right, eng.GetAudio(1)[:rendered]...)
				if rendered == 0 && eng.HasStopped() {
					break
				}
			}

			klog.Infof("rendered %d frames at %d Hz", len(left), sampleRate)
			return writeWAV(outPath, sampleRate, left, right)
		},
	}

	root.Flags().IntVar(&sampleRate, "sample-rate", 48000, "output sample rate")
	root.Flags().Float64Var(&seconds, "seconds", 2.0, "duration to render")
	root.Flags().Float64Var(&pitch, "pitch", 220.0, "debug note pitch in Hz")
	root.Flags().Float64Var(&bpm, "bpm", 120.0, "tempo used to derive tempo-synced mixed_effect parameters")
	root.Flags().StringVar(&outPath, "out", "kqplay.wav", "output WAV path")
	root.Flags().StringVar(&effects, "effects", "delay,reverb", "comma-separated mixed_effect chain applied after the generator (empty for none)")
	root.Flags().BoolVar(&live, "live", false, "stream through the system audio device via internal/audio instead of writing a WAV file")

	if err := root.Execute(); err != nil {
		klog.Errorf("kqplay: %v", err)
		os.Exit(1)
	}
}

// playLive streams eng through internal/audio.Player: Engine implements
// audio.SampleSource/FinishingSource directly (see engine.go's Process/
// Finished), so it can be handed straight to the same ebitaudio.Player
// wrapper cmd/play_mml used, instead of only being rendered to a file.
func playLive(eng *kunquat.Engine, sampleRate int, seconds float64) error {
	player, err := audio.NewPlayer(sampleRate, eng)
	if err != nil {
		return fmt.Errorf("new_player: %w", err)
	}
	player.Play()
	time.Sleep(time.Duration(seconds * float64(time.Second)))
	return player.Stop()
}

// writeWAV dumps interleaved 16-bit PCM. No WAV-writing library appears
// anywhere in the example pack's dependency graph, so this stays on
// encoding/binary rather than reaching for one arbitrarily.
func writeWAV(path string, sampleRate int, left, right []float32) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	frames := len(left)
	dataSize := frames * 4 // 2 channels * 2 bytes
	riffSize := 36 + dataSize

	write := func(v any) error { return binary.Write(f, binary.LittleEndian, v) }

	if _, err := f.WriteString("RIFF"); err != nil {
		return err
	}
	if err := write(uint32(riffSize)); err != nil {
		return err
	}
	if _, err := f.WriteString("WAVEfmt "); err != nil {
		return err
	}
	if err := write(uint32(16)); err != nil {
		return err
	}
	if err := write(uint16(1)); err != nil {
		return err
	} // PCM
	if err := write(uint16(2)); err != nil {
		return err
	} // channels
	if err := write(uint32(sampleRate)); err != nil {
		return err
	}
	byteRate := sampleRate * 2 * 2
	if err := write(uint32(byteRate)); err != nil {
		return err
	}
	if err := write(uint16(4)); err != nil {
		return err
	} // block align
	if err := write(uint16(16)); err != nil {
		return err
	} // bits per sample
	if _, err := f.WriteString("data"); err != nil {
		return err
	}
	if err := write(uint32(dataSize)); err != nil {
		return err
	}

	clip := func(s float32) int16 {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		return int16(s * 32767)
	}
	for i := 0; i < frames; i++ {
		if err := write(clip(left[i])); err != nil {
			return err
		}
		if err := write(clip(right[i])); err != nil {
			return err
		}
	}
	return nil
}
