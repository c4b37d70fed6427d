// Package tuning loads the engine's conversion ratios, timers and rarity
// ladder from YAML.
package tuning

import (
	"time"

	"github.com/xtding233/reef-engine/internal/gacha"
)

// RawConfig mirrors the YAML file. Pointer fields let an override file set
// only the values it cares about.
type RawConfig struct {
	Version string       `yaml:"version"`
	Engine  EngineConfig `yaml:"engine"`
	Rarity  RarityConfig `yaml:"rarity"`
	Notes   string       `yaml:"notes,omitempty"`
}

type EngineConfig struct {
	Tick                  *time.Duration `yaml:"tick"`
	EnergyThreshold       *uint32        `yaml:"energy_threshold"`
	KeysPerEnergy         *uint64        `yaml:"keys_per_energy"`
	ClicksPerEnergy       *uint64        `yaml:"clicks_per_energy"`
	AudioSecondsPerEnergy *time.Duration `yaml:"audio_seconds_per_energy"`
	IdleTimeout           *time.Duration `yaml:"idle_timeout"`
	IdleEnergyInterval    *time.Duration `yaml:"idle_energy_interval"`
	IdlePool              string         `yaml:"idle_pool,omitempty"`
	AutosaveInterval      *time.Duration `yaml:"autosave_interval"`
	MaxPoolEnergy         *uint32        `yaml:"max_pool_energy"`
	RestartBackoff        *time.Duration `yaml:"restart_backoff"`
}

type RarityConfig struct {
	Legendary *TierConfig `yaml:"legendary,omitempty"`
	Epic      *TierConfig `yaml:"epic,omitempty"`
	Rare      *TierConfig `yaml:"rare,omitempty"`
	Uncommon  *TierConfig `yaml:"uncommon,omitempty"`
}

type TierConfig struct {
	Numerator   *uint32 `yaml:"numerator"`
	Denominator *uint32 `yaml:"denominator"`
	Cap         *uint32 `yaml:"cap"`
}

// Tuning is the normalized form the scheduler reads every tick.
type Tuning struct {
	Tick                  time.Duration
	EnergyThreshold       uint32
	KeysPerEnergy         uint64
	ClicksPerEnergy       uint64
	AudioSecondsPerEnergy time.Duration
	IdleTimeout           time.Duration
	IdleEnergyInterval    time.Duration
	IdlePool              string
	AutosaveInterval      time.Duration
	MaxPoolEnergy         uint32
	RestartBackoff        time.Duration
	Ladder                gacha.Ladder
	Version               string // effective config version for logs
}

func (r RarityConfig) tiers() [4]*TierConfig {
	return [4]*TierConfig{r.Legendary, r.Epic, r.Rare, r.Uncommon}
}
