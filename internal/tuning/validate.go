package tuning

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/xtding233/reef-engine/internal/state"
)

var ErrInvalidTuning = errors.New("invalid tuning")

// ValidateRaw checks semantic constraints of the fields a RawConfig sets.
func ValidateRaw(cfg RawConfig) error {
	var errs []string
	e := cfg.Engine

	positive := func(name string, ok bool) {
		if !ok {
			errs = append(errs, name+" must be > 0")
		}
	}
	if e.Tick != nil {
		positive("engine.tick", *e.Tick > 0)
	}
	if e.EnergyThreshold != nil {
		positive("engine.energy_threshold", *e.EnergyThreshold > 0)
	}
	if e.KeysPerEnergy != nil {
		positive("engine.keys_per_energy", *e.KeysPerEnergy > 0)
	}
	if e.ClicksPerEnergy != nil {
		positive("engine.clicks_per_energy", *e.ClicksPerEnergy > 0)
	}
	if e.AudioSecondsPerEnergy != nil {
		positive("engine.audio_seconds_per_energy", *e.AudioSecondsPerEnergy > 0)
	}
	if e.IdleTimeout != nil {
		positive("engine.idle_timeout", *e.IdleTimeout > 0)
	}
	if e.IdleEnergyInterval != nil {
		positive("engine.idle_energy_interval", *e.IdleEnergyInterval > 0)
	}
	if e.AutosaveInterval != nil {
		positive("engine.autosave_interval", *e.AutosaveInterval > 0)
	}
	if e.MaxPoolEnergy != nil && e.EnergyThreshold != nil && *e.MaxPoolEnergy < *e.EnergyThreshold {
		errs = append(errs, "engine.max_pool_energy must be >= engine.energy_threshold")
	}
	if e.RestartBackoff != nil && *e.RestartBackoff < 0 {
		errs = append(errs, "engine.restart_backoff must be >= 0")
	}
	if e.IdlePool != "" && !state.IsPool(e.IdlePool) {
		errs = append(errs, fmt.Sprintf("engine.idle_pool must be one of: %s", strings.Join(state.Pools, ", ")))
	}

	names := [4]string{"legendary", "epic", "rare", "uncommon"}
	for i, tc := range cfg.Rarity.tiers() {
		if tc == nil {
			continue
		}
		p := "rarity." + names[i]
		if tc.Denominator != nil && *tc.Denominator == 0 {
			errs = append(errs, p+".denominator must be >= 1")
		}
		if tc.Numerator != nil && *tc.Numerator == 0 {
			errs = append(errs, p+".numerator must be >= 1")
		}
		if tc.Numerator != nil && tc.Cap != nil && *tc.Cap < *tc.Numerator {
			errs = append(errs, p+".cap must be >= numerator")
		}
		if tc.Denominator != nil && tc.Cap != nil && *tc.Cap > *tc.Denominator {
			errs = append(errs, p+".cap must be <= denominator")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidTuning, strings.Join(errs, "; "))
	}
	return nil
}

// missingFields lists required values the merged config leaves unset.
func missingFields(cfg RawConfig) []string {
	var out []string
	e := cfg.Engine
	req := map[string]bool{
		"engine.tick":                     e.Tick == nil,
		"engine.energy_threshold":         e.EnergyThreshold == nil,
		"engine.keys_per_energy":          e.KeysPerEnergy == nil,
		"engine.clicks_per_energy":        e.ClicksPerEnergy == nil,
		"engine.audio_seconds_per_energy": e.AudioSecondsPerEnergy == nil,
		"engine.idle_timeout":             e.IdleTimeout == nil,
		"engine.idle_energy_interval":     e.IdleEnergyInterval == nil,
		"engine.idle_pool":                e.IdlePool == "",
		"engine.autosave_interval":        e.AutosaveInterval == nil,
		"engine.max_pool_energy":          e.MaxPoolEnergy == nil,
		"engine.restart_backoff":          e.RestartBackoff == nil,
	}
	names := [4]string{"legendary", "epic", "rare", "uncommon"}
	for i, tc := range cfg.Rarity.tiers() {
		p := "rarity." + names[i]
		req[p] = tc == nil || tc.Numerator == nil || tc.Denominator == nil || tc.Cap == nil
	}
	for k, missing := range req {
		if missing {
			out = append(out, k)
		}
	}
	slices.Sort(out)
	return out
}
