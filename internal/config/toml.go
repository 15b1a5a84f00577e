// Package config provides configuration helpers and TOML parsing.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// FileConfig represents the TOML configuration file.
type FileConfig struct {
	Game       GameConfig       `toml:"game"`
	Server     ServerConfig     `toml:"server"`
	Timeouts   TimeoutConfig    `toml:"timeouts"`
	Difficulty DifficultyConfig `toml:"difficulty"`
	Log        LogConfig        `toml:"log"`
}

// GameConfig maps gameplay settings.
type GameConfig struct {
	Student      *int     `toml:"student"`
	InitialTier  *string  `toml:"initial-tier"`
	RecentWindow *int     `toml:"recent-window"`
	Catalog      *string  `toml:"catalog"`
	Zones        *int     `toml:"zones"`
	FocusWeak    *bool    `toml:"focus-weak"`
	WeakTop      *int     `toml:"weak-top"`
	WeakFactor   *float64 `toml:"weak-factor"`
	WeakWindow   *int     `toml:"weak-window"`
}

// ServerConfig maps backend endpoints.
type ServerConfig struct {
	URL          *string `toml:"url"`
	PredictorURL *string `toml:"predictor-url"`
	Offline      *bool   `toml:"offline"`
}

// TimeoutConfig maps per-call timeouts in seconds.
type TimeoutConfig struct {
	Probe    *float64 `toml:"probe"`
	Predict  *float64 `toml:"predict"`
	Feedback *float64 `toml:"feedback"`
	Write    *float64 `toml:"write"`
	Session  *float64 `toml:"session"`
}

// DifficultyConfig maps the per-tier round settings.
type DifficultyConfig struct {
	Low    TierFileConfig `toml:"low"`
	Medium TierFileConfig `toml:"medium"`
	High   TierFileConfig `toml:"high"`
}

// TierFileConfig maps one tier.
type TierFileConfig struct {
	Signs       *int     `toml:"signs"`
	Time        *float64 `toml:"time"`
	VisualAid   *bool    `toml:"visual-aid"`
	Distractors *bool    `toml:"distractors"`
	Repetition  *bool    `toml:"repetition"`
}

// LogConfig maps logging settings.
type LogConfig struct {
	Mode *string `toml:"mode"`
	File *string `toml:"file"`
}

// LoadConfig reads a TOML config from the given path. Missing file is not an error.
func LoadConfig(path string) (FileConfig, error) {
	if path == "" {
		return FileConfig{}, fmt.Errorf("config path is empty")
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, nil
		}
		return FileConfig{}, fmt.Errorf("failed to stat config: %w", err)
	}
	var cfg FileConfig
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return FileConfig{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return FileConfig{}, fmt.Errorf("unknown config key %q", undecoded[0].String())
	}
	return cfg, nil
}
