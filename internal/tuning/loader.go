package tuning

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/xtding233/reef-engine/internal/gacha"
)

//go:embed defaults.yaml
var defaultYAML []byte

// Default returns the built-in tuning.
func Default() Tuning {
	raw, err := parseYAML(defaultYAML)
	if err != nil {
		panic("tuning: embedded defaults: " + err.Error())
	}
	t, err := Resolve(raw)
	if err != nil {
		panic("tuning: embedded defaults: " + err.Error())
	}
	return t
}

// Loader merges the embedded defaults with an optional user file and caches
// the result until Invalidate is called.
type Loader struct {
	path string // empty means defaults only

	mu     sync.RWMutex
	cached *Tuning
}

// NewLoader creates a loader for the given override file.
func NewLoader(path string) *Loader {
	return &Loader{path: path}
}

// Path returns the override file path.
func (l *Loader) Path() string { return l.path }

// Load returns the resolved tuning, reading from disk on a cache miss.
func (l *Loader) Load() (Tuning, error) {
	l.mu.RLock()
	if l.cached != nil {
		t := *l.cached
		l.mu.RUnlock()
		return t, nil
	}
	l.mu.RUnlock()

	raw, err := l.LoadMerged()
	if err != nil {
		return Tuning{}, err
	}
	t, err := Resolve(raw)
	if err != nil {
		return Tuning{}, err
	}

	l.mu.Lock()
	l.cached = &t
	l.mu.Unlock()
	return t, nil
}

// LoadMerged returns defaults <- user file, without normalization.
func (l *Loader) LoadMerged() (RawConfig, error) {
	def, err := parseYAML(defaultYAML)
	if err != nil {
		return RawConfig{}, fmt.Errorf("read defaults: %w", err)
	}
	if l.path == "" {
		return def, nil
	}
	user, err := readYAML(l.path)
	if err != nil {
		return RawConfig{}, fmt.Errorf("read %s: %w", l.path, err)
	}
	return mergeRaw(def, user), nil
}

// Invalidate clears the cache. Call after the watcher detects a change.
func (l *Loader) Invalidate() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cached = nil
}

// Resolve validates a merged config and normalizes it.
func Resolve(raw RawConfig) (Tuning, error) {
	if err := ValidateRaw(raw); err != nil {
		return Tuning{}, err
	}
	if missing := missingFields(raw); len(missing) > 0 {
		return Tuning{}, fmt.Errorf("%w: missing %v", ErrInvalidTuning, missing)
	}
	e := raw.Engine
	t := Tuning{
		Tick:                  *e.Tick,
		EnergyThreshold:       *e.EnergyThreshold,
		KeysPerEnergy:         *e.KeysPerEnergy,
		ClicksPerEnergy:       *e.ClicksPerEnergy,
		AudioSecondsPerEnergy: *e.AudioSecondsPerEnergy,
		IdleTimeout:           *e.IdleTimeout,
		IdleEnergyInterval:    *e.IdleEnergyInterval,
		IdlePool:              e.IdlePool,
		AutosaveInterval:      *e.AutosaveInterval,
		MaxPoolEnergy:         *e.MaxPoolEnergy,
		RestartBackoff:        *e.RestartBackoff,
		Version:               raw.Version,
	}
	for i, tc := range raw.Rarity.tiers() {
		t.Ladder[i] = gacha.Tier{
			Rarity:      gacha.DefaultLadder[i].Rarity,
			Numerator:   *tc.Numerator,
			Denominator: *tc.Denominator,
			Cap:         *tc.Cap,
		}
	}
	if err := t.Ladder.Validate(); err != nil {
		return Tuning{}, fmt.Errorf("%w: %v", ErrInvalidTuning, err)
	}
	return t, nil
}

// readYAML loads a YAML file. A missing file is an empty config.
func readYAML(path string) (RawConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return RawConfig{}, nil
		}
		return RawConfig{}, err
	}
	return parseYAML(b)
}

func parseYAML(b []byte) (RawConfig, error) {
	var cfg RawConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return RawConfig{}, err
	}
	return cfg, nil
}

// mergeRaw returns a with every field that b sets overriding it.
func mergeRaw(a, b RawConfig) RawConfig {
	out := a
	if b.Version != "" {
		out.Version = b.Version
	}
	if b.Notes != "" {
		out.Notes = b.Notes
	}

	ea, eb := &out.Engine, b.Engine
	override(&ea.Tick, eb.Tick)
	override(&ea.EnergyThreshold, eb.EnergyThreshold)
	override(&ea.KeysPerEnergy, eb.KeysPerEnergy)
	override(&ea.ClicksPerEnergy, eb.ClicksPerEnergy)
	override(&ea.AudioSecondsPerEnergy, eb.AudioSecondsPerEnergy)
	override(&ea.IdleTimeout, eb.IdleTimeout)
	override(&ea.IdleEnergyInterval, eb.IdleEnergyInterval)
	override(&ea.AutosaveInterval, eb.AutosaveInterval)
	override(&ea.MaxPoolEnergy, eb.MaxPoolEnergy)
	override(&ea.RestartBackoff, eb.RestartBackoff)
	if eb.IdlePool != "" {
		ea.IdlePool = eb.IdlePool
	}

	ra := &out.Rarity
	for i, dst := range [4]**TierConfig{&ra.Legendary, &ra.Epic, &ra.Rare, &ra.Uncommon} {
		src := b.Rarity.tiers()[i]
		switch {
		case src == nil:
		case *dst == nil:
			c := *src
			*dst = &c
		default:
			c := **dst
			override(&c.Numerator, src.Numerator)
			override(&c.Denominator, src.Denominator)
			override(&c.Cap, src.Cap)
			*dst = &c
		}
	}
	return out
}

func override[T any](dst **T, src *T) {
	if src != nil {
		v := *src
		*dst = &v
	}
}
