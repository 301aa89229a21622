package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Load reads a YAML runtime configuration file, validates it, and
// normalizes it. This is the primary configuration source.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	Normalize(&cfg)

	return &cfg, nil
}

// RealtimeProfile is an optional TOML-formatted tuning file for the
// host's real-time scheduling knobs, kept separate from the per-unit
// YAML configuration because it is host-specific, not deployment
// specific (the same YAML might run under different TOML profiles on
// different machines).
type RealtimeProfile struct {
	Policy            string `toml:"policy"`
	Priority          int    `toml:"priority"`
	CPUAffinity       []int  `toml:"cpu_affinity"`
	LockMemory        bool   `toml:"lock_memory"`
	PrefaultStackSize int    `toml:"prefault_stack_size"`
}

// LoadRealtimeProfile reads a TOML real-time tuning profile and, if
// path is non-empty, overlays it onto cfg.Runtime.Realtime.
func LoadRealtimeProfile(cfg *Config, path string) error {
	if path == "" {
		return nil
	}

	var profile RealtimeProfile
	if _, err := toml.DecodeFile(path, &profile); err != nil {
		return fmt.Errorf("config: parse realtime profile %s: %w", path, err)
	}

	cfg.Runtime.Realtime.Enabled = true
	if profile.Policy != "" {
		cfg.Runtime.Realtime.Policy = profile.Policy
	}
	if profile.Priority != 0 {
		cfg.Runtime.Realtime.Priority = profile.Priority
	}
	if len(profile.CPUAffinity) > 0 {
		cfg.Runtime.Realtime.CPUAffinity = profile.CPUAffinity
	}
	cfg.Runtime.Realtime.LockMemory = profile.LockMemory
	if profile.PrefaultStackSize != 0 {
		cfg.Runtime.Realtime.PrefaultStackSize = profile.PrefaultStackSize
	}

	return Validate(cfg)
}
