package gacha

// Tier is one rung of the rarity ladder.
// Example: Legendary 1/200 cap 5 → base 0.5%, each miss adds 1/200, up to 5/200.
type Tier struct {
	Rarity      Rarity
	Numerator   uint32 // base chance numerator
	Denominator uint32
	Cap         uint32 // max effective numerator, also the max pity counter
}

// Ladder holds the four pity-tracked tiers, evaluated in order.
// Anything that falls through every rung is Common.
type Ladder [4]Tier

// DefaultLadder: Legendary 1/200 cap 5, Epic 1/50 cap 4, Rare 1/20 cap 4, Uncommon 1/8 cap 4.
var DefaultLadder = Ladder{
	{Rarity: Legendary, Numerator: 1, Denominator: 200, Cap: 5},
	{Rarity: Epic, Numerator: 1, Denominator: 50, Cap: 4},
	{Rarity: Rare, Numerator: 1, Denominator: 20, Cap: 4},
	{Rarity: Uncommon, Numerator: 1, Denominator: 8, Cap: 4},
}

var ladderOrder = [4]Rarity{Legendary, Epic, Rare, Uncommon}

// effectiveNumerator = min(base + pity, cap)
func (t Tier) effectiveNumerator(pity uint32) uint32 {
	n := uint64(t.Numerator) + uint64(pity)
	if n > uint64(t.Cap) {
		return t.Cap
	}
	return uint32(n)
}

// EffectiveProb is the hit chance this tier uses at the given pity.
func (t Tier) EffectiveProb(pity uint32) float64 {
	if t.Denominator == 0 {
		return 0
	}
	return float64(t.effectiveNumerator(pity)) / float64(t.Denominator)
}

// Caps returns the pity cap of each tier as counters.
func (l Ladder) Caps() PityCounters {
	var c PityCounters
	for _, t := range l {
		c.Set(t.Rarity, t.Cap)
	}
	return c
}

// Tier looks up a rung by rarity.
func (l Ladder) Tier(r Rarity) (Tier, bool) {
	for _, t := range l {
		if t.Rarity == r {
			return t, true
		}
	}
	return Tier{}, false
}
