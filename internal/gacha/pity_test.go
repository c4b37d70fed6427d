package gacha

import (
	"errors"
	"testing"
)

func TestEffectiveProbSoftPity(t *testing.T) {
	leg, _ := DefaultLadder.Tier(Legendary)
	if got := leg.EffectiveProb(0); got != 1.0/200 {
		t.Fatalf("base legendary prob = %v", got)
	}
	if got := leg.EffectiveProb(4); got != 5.0/200 {
		t.Fatalf("legendary prob at pity 4 = %v", got)
	}
	// beyond cap stays at cap
	if got := leg.EffectiveProb(1 << 31); got != 5.0/200 {
		t.Fatalf("legendary prob above cap = %v", got)
	}
}

func TestPityCountersNeverExceedCap(t *testing.T) {
	rng := NewSeededRNG(42)
	caps := DefaultLadder.Caps()
	var pity PityCounters
	for i := 0; i < 10000; i++ {
		_, next, err := Roll(DefaultLadder, pity, rng)
		if err != nil {
			t.Fatal(err)
		}
		pity = next
		if pity.Legendary > caps.Legendary || pity.Epic > caps.Epic ||
			pity.Rare > caps.Rare || pity.Uncommon > caps.Uncommon {
			t.Fatalf("roll %d: pity %+v exceeds caps %+v", i, pity, caps)
		}
	}
}

func TestRollDoesNotMutateInput(t *testing.T) {
	in := PityCounters{Legendary: 2, Epic: 1}
	before := in
	if _, _, err := Roll(DefaultLadder, in, NewSeededRNG(3)); err != nil {
		t.Fatal(err)
	}
	if in != before {
		t.Fatalf("input counters changed: %+v", in)
	}
}

func TestHitResetsOnlyThatTier(t *testing.T) {
	rng := NewSeededRNG(99)
	var pity PityCounters
	seen := make(map[Rarity]bool)
	for i := 0; i < 100000 && len(seen) < 4; i++ {
		prev := pity
		r, next, err := Roll(DefaultLadder, pity, rng)
		if err != nil {
			t.Fatal(err)
		}
		pity = next
		if r == Common {
			continue
		}
		seen[r] = true
		if next.Get(r) != 0 {
			t.Fatalf("%s pity must reset to 0 after a hit, got %d", r, next.Get(r))
		}
		// tiers below the hit are untouched
		switch r {
		case Legendary:
			if next.Epic != prev.Epic || next.Rare != prev.Rare || next.Uncommon != prev.Uncommon {
				t.Fatalf("legendary hit touched lower tiers: %+v -> %+v", prev, next)
			}
		case Epic:
			if next.Rare != prev.Rare || next.Uncommon != prev.Uncommon {
				t.Fatalf("epic hit touched lower tiers: %+v -> %+v", prev, next)
			}
		case Rare:
			if next.Uncommon != prev.Uncommon {
				t.Fatalf("rare hit touched uncommon: %+v -> %+v", prev, next)
			}
		}
	}
	if len(seen) < 4 {
		t.Fatalf("not every pity tier was hit: %v", seen)
	}
}

func TestCommonIncrementsAllCounters(t *testing.T) {
	// a source that never hits anything
	never := constRNG(0.999999)
	r, next, err := Roll(DefaultLadder, PityCounters{Legendary: 5, Epic: 1}, never)
	if err != nil {
		t.Fatal(err)
	}
	if r != Common {
		t.Fatalf("expected common, got %s", r)
	}
	want := PityCounters{Legendary: 5, Epic: 2, Rare: 1, Uncommon: 1}
	if next != want {
		t.Fatalf("got %+v want %+v", next, want)
	}
}

func TestAllRaritiesReachable(t *testing.T) {
	rng := NewSeededRNG(99999)
	ps := NewPitySystem(DefaultLadder, rng)
	seen := make(map[Rarity]bool)
	for i := 0; i < 100000; i++ {
		r, err := ps.Draw()
		if err != nil {
			t.Fatal(err)
		}
		seen[r] = true
	}
	for _, r := range Rarities {
		if !seen[r] {
			t.Fatalf("tier %s never rolled in 100000 attempts", r)
		}
	}
}

func TestLegendaryBaseRate(t *testing.T) {
	// 1/200 over 50000 fresh rolls ≈ 250
	rate, err := HitRateAt(DefaultLadder, PityCounters{}, Legendary, 50000, NewSeededRNG(12345))
	if err != nil {
		t.Fatal(err)
	}
	if count := rate * 50000; count < 100 || count > 500 {
		t.Fatalf("legendary count %.0f outside [100,500]", count)
	}
}

func TestMaxPityIncreasesHitRate(t *testing.T) {
	const n = 20000
	caps := DefaultLadder.Caps()
	cases := []struct {
		tier Rarity
		max  PityCounters
	}{
		{Legendary, PityCounters{Legendary: caps.Legendary}},
		{Epic, PityCounters{Epic: caps.Epic}},
		{Rare, PityCounters{Rare: caps.Rare}},
		{Uncommon, PityCounters{Uncommon: caps.Uncommon}},
	}
	rng := NewSeededRNG(777)
	for _, tc := range cases {
		zero, err := HitRateAt(DefaultLadder, PityCounters{}, tc.tier, n, rng)
		if err != nil {
			t.Fatal(err)
		}
		max, err := HitRateAt(DefaultLadder, tc.max, tc.tier, n, rng)
		if err != nil {
			t.Fatal(err)
		}
		if max <= zero {
			t.Fatalf("%s: max pity rate %f should exceed zero pity rate %f", tc.tier, max, zero)
		}
	}
}

func TestPitySystemKeepsCountersOnError(t *testing.T) {
	bad := DefaultLadder
	bad[0].Denominator = 0
	ps := NewPitySystem(bad, NewSeededRNG(1))
	ps.Counters = PityCounters{Legendary: 3}
	if _, err := ps.Draw(); !errors.Is(err, ErrInvalidProb) {
		t.Fatalf("expected ErrInvalidProb, got %v", err)
	}
	if ps.Counters.Legendary != 3 {
		t.Fatalf("counters changed on error: %+v", ps.Counters)
	}
}

func TestLadderValidate(t *testing.T) {
	if err := DefaultLadder.Validate(); err != nil {
		t.Fatalf("default ladder invalid: %v", err)
	}
	bad := DefaultLadder
	bad[1].Cap = 0
	bad[2], bad[3] = bad[3], bad[2]
	if err := bad.Validate(); !errors.Is(err, ErrLadderConfig) {
		t.Fatalf("expected ErrLadderConfig, got %v", err)
	}
}

type constRNG float64

func (c constRNG) Float64() float64 { return float64(c) }
func (c constRNG) IntN(int) int     { return 0 }
