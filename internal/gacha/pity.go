package gacha

// PityCounters tracks consecutive misses per tier.
// Each counter stays within [0, cap] of its tier.
type PityCounters struct {
	Legendary uint32 `json:"legendary"`
	Epic      uint32 `json:"epic"`
	Rare      uint32 `json:"rare"`
	Uncommon  uint32 `json:"uncommon"`
}

func (p *PityCounters) counter(r Rarity) *uint32 {
	switch r {
	case Legendary:
		return &p.Legendary
	case Epic:
		return &p.Epic
	case Rare:
		return &p.Rare
	case Uncommon:
		return &p.Uncommon
	}
	return nil
}

// Get returns the pity counter of a tier (0 for Common).
func (p PityCounters) Get(r Rarity) uint32 {
	if c := p.counter(r); c != nil {
		return *c
	}
	return 0
}

// Set overwrites the counter of a tier. Common has no counter.
func (p *PityCounters) Set(r Rarity, v uint32) {
	if c := p.counter(r); c != nil {
		*c = v
	}
}

// Roll evaluates the ladder top-down and returns the outcome together with
// the updated counters. The input counters are not modified.
//   - hit on a tier: that tier's counter resets to 0, lower tiers are untouched
//   - miss on a tier: its counter increments, capped, and the next tier is tried
//   - all four miss: Common, every counter has been incremented once
func Roll(ladder Ladder, pity PityCounters, rng RandomSource) (Rarity, PityCounters, error) {
	if rng == nil {
		rng = DefaultRNG()
	}
	next := pity
	for _, t := range ladder {
		c := next.counter(t.Rarity)
		if c == nil {
			return Common, pity, ErrLadderConfig
		}
		hit, err := DrawRatio(t.effectiveNumerator(*c), t.Denominator, rng)
		if err != nil {
			return Common, pity, err
		}
		if hit {
			*c = 0
			return t.Rarity, next, nil
		}
		if *c < t.Cap {
			*c++
		} else {
			*c = t.Cap
		}
	}
	return Common, next, nil
}

// PitySystem keeps counters between rolls.
type PitySystem struct {
	Ladder   Ladder
	Counters PityCounters
	RNG      RandomSource
}

// NewPitySystem creates a pity system over the given ladder and RNG.
func NewPitySystem(ladder Ladder, rng RandomSource) *PitySystem {
	if rng == nil {
		rng = DefaultRNG()
	}
	return &PitySystem{Ladder: ladder, RNG: rng}
}

// Draw rolls once and stores the updated counters.
// On error the counters are left as they were.
func (ps *PitySystem) Draw() (Rarity, error) {
	r, next, err := Roll(ps.Ladder, ps.Counters, ps.RNG)
	if err != nil {
		return Common, err
	}
	ps.Counters = next
	return r, nil
}
