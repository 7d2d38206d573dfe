// Package config loads engine-wide render settings that live outside the
// composition tree (sample rate, buffer sizing, pool capacities). The
// composition itself stays a JSON key tree per the core's external
// interfaces; this is host-side tuning, so it is plain YAML.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// EngineConfig holds the fixed capacities the render core allocates at load
// time. Rendering still allocates some per-block scratch: Engine.Play grows
// its output buffers and builds a per-segment voice map, and the generators
// allocate a per-voice stereo buffer on each Render call.
type EngineConfig struct {
	AudioRate        int `yaml:"audio_rate"`
	BlockSizeFrames  int `yaml:"block_size_frames"`
	MaxVoices        int `yaml:"max_voices"`
	MaxEventsPerTick int `yaml:"max_events_per_tick"`
	MaxAudioUnits    int `yaml:"max_audio_units"`
	MaxProcessors    int `yaml:"max_processors"`
	MaxPatternInsts  int `yaml:"max_pattern_instances"`
	MaxDevicePorts   int `yaml:"max_device_ports"`
	PADsynthWorkers  int `yaml:"padsynth_workers"`
}

// Default returns the capacities used when no config file is supplied.
func Default() EngineConfig {
	return EngineConfig{
		AudioRate:        48000,
		BlockSizeFrames:  256,
		MaxVoices:        256,
		MaxEventsPerTick: 2048,
		MaxAudioUnits:    256,
		MaxProcessors:    1024,
		MaxPatternInsts:  1024,
		MaxDevicePorts:   256,
		PADsynthWorkers:  4,
	}
}

// Load reads an EngineConfig from a YAML file, filling unset fields from
// Default().
func Load(path string) (EngineConfig, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read engine config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse engine config: %w", err)
	}
	return cfg, nil
}

// Validate checks that every capacity is usable.
func (c EngineConfig) Validate() error {
	if c.AudioRate <= 0 {
		return fmt.Errorf("audio_rate must be positive")
	}
	if c.BlockSizeFrames <= 0 {
		return fmt.Errorf("block_size_frames must be positive")
	}
	if c.MaxVoices <= 0 {
		return fmt.Errorf("max_voices must be positive")
	}
	if c.MaxEventsPerTick <= 0 {
		return fmt.Errorf("max_events_per_tick must be positive")
	}
	return nil
}
