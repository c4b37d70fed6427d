package state

import (
	"log/slog"
	"math"
	"time"

	"github.com/xtding233/reef-engine/internal/gacha"
)

// DefaultMaxPoolEnergy keeps a tampered save from cascading into many
// discoveries on the first tick after load.
const DefaultMaxPoolEnergy uint32 = 1000

// SanitizeOptions carries the limits sanitation clamps against.
type SanitizeOptions struct {
	MaxPoolEnergy uint32
	Ladder        gacha.Ladder
	Logger        *slog.Logger
	// Now stamps collection entries whose first-seen time is missing.
	Now func() time.Time
}

// DefaultSanitizeOptions uses the default pool cap and rarity ladder.
func DefaultSanitizeOptions() SanitizeOptions {
	return SanitizeOptions{MaxPoolEnergy: DefaultMaxPoolEnergy, Ladder: gacha.DefaultLadder}
}

// Sanitize repairs out-of-range or unrecognized fields in place and returns
// how many repairs it made. It never fails and is idempotent.
func Sanitize(s *GameState, opts SanitizeOptions) int {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	if opts.MaxPoolEnergy == 0 {
		opts.MaxPoolEnergy = DefaultMaxPoolEnergy
	}
	if opts.Ladder == (gacha.Ladder{}) {
		opts.Ladder = gacha.DefaultLadder
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	repairs := 0
	fix := func(msg string, args ...any) {
		repairs++
		log.Warn(msg, args...)
	}

	d := &s.Display
	if math.IsNaN(d.MusicVolume) || math.IsInf(d.MusicVolume, 0) || d.MusicVolume < 0 || d.MusicVolume > 1 {
		fix("sanitize: music_volume out of range, resetting", "value", d.MusicVolume, "default", DefaultMusicVolume)
		d.MusicVolume = DefaultMusicVolume
	}
	if !ValidSizeIndex(d.SizeIndex) {
		fix("sanitize: size_index out of range, resetting", "value", d.SizeIndex, "max", len(SizePresets)-1)
		d.SizeIndex = DefaultSizeIndex
	}
	if !ValidDayNightCycle(d.DayNightCycle) {
		fix("sanitize: unknown day_night_cycle, resetting", "value", d.DayNightCycle)
		d.DayNightCycle = DefaultDayNightCycle
	}
	if !ValidCloseBehavior(d.CloseBehavior) {
		fix("sanitize: unknown close_behavior, resetting", "value", d.CloseBehavior)
		d.CloseBehavior = DefaultCloseBehavior
	}
	if !finite(d.Position.X) || !finite(d.Position.Y) {
		fix("sanitize: non-finite position, resetting to origin", "x", d.Position.X, "y", d.Position.Y)
		d.Position = Position{}
	}
	if hidden, changed := dedupe(d.HiddenCreatures); changed {
		fix("sanitize: dropped empty or duplicate hidden creatures", "before", len(d.HiddenCreatures), "after", len(hidden))
		d.HiddenCreatures = hidden
	}

	if s.PoolEnergy == nil {
		s.PoolEnergy = make(map[string]uint32, len(Pools))
	}
	for k := range s.PoolEnergy {
		if !IsPool(k) {
			fix("sanitize: dropping unknown pool", "pool", k)
			delete(s.PoolEnergy, k)
		}
	}
	for _, p := range Pools {
		v, ok := s.PoolEnergy[p]
		if !ok {
			fix("sanitize: missing pool, adding", "pool", p)
			s.PoolEnergy[p] = 0
			continue
		}
		if v > opts.MaxPoolEnergy {
			fix("sanitize: pool energy exceeds cap, clamping", "pool", p, "value", v, "cap", opts.MaxPoolEnergy)
			s.PoolEnergy[p] = opts.MaxPoolEnergy
		}
	}

	caps := opts.Ladder.Caps()
	for _, r := range []gacha.Rarity{gacha.Legendary, gacha.Epic, gacha.Rare, gacha.Uncommon} {
		if v, limit := s.Pity.Get(r), caps.Get(r); v > limit {
			fix("sanitize: pity above cap, clamping", "tier", r, "value", v, "cap", limit)
			s.Pity.Set(r, limit)
		}
	}

	if s.Collection == nil {
		s.Collection = make(map[string]OwnedCreature)
	}
	for id, owned := range s.Collection {
		if id == "" {
			fix("sanitize: dropping collection entry with empty id")
			delete(s.Collection, id)
			continue
		}
		if owned.Count == 0 {
			fix("sanitize: collection count zero, raising to 1", "creature", id)
			owned.Count = 1
			s.Collection[id] = owned
		}
		if owned.FirstSeen.IsZero() {
			fix("sanitize: missing or unreadable first_seen, stamping now", "creature", id)
			owned.FirstSeen = opts.Now().UTC()
			s.Collection[id] = owned
		}
	}
	return repairs
}

func finite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }

func dedupe(ids []string) ([]string, bool) {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	if len(out) == len(ids) {
		return ids, false
	}
	return out, true
}

// CleanIDs drops empty and duplicate ids, keeping first occurrences in order.
func CleanIDs(ids []string) []string {
	out, _ := dedupe(ids)
	return out
}
