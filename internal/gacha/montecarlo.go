package gacha

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Stats summarizes integer samples.
type Stats struct {
	Mean   float64
	Var    float64
	StdDev float64
	P50    float64
	P90    float64
	P99    float64
	// Optional: raw samples if caller needs histograms/exports
	Samples []int `json:"-"`
}

// TierReport is the simulated behavior of one rarity.
type TierReport struct {
	Rarity  Rarity
	Hits    int
	HitRate float64
	// draws between consecutive hits of this rarity (first gap counted from the start)
	Gap Stats
}

// Report summarizes one simulation run.
type Report struct {
	Rolls int
	Tiers []TierReport // Legendary → Common
	Final PityCounters
}

// calcStats computes mean/variance/percentiles for integer samples.
func calcStats(xs []int) Stats {
	n := len(xs)
	if n == 0 {
		return Stats{}
	}
	fs := make([]float64, n)
	for i, v := range xs {
		fs[i] = float64(v)
	}
	sort.Float64s(fs)

	mean := stat.Mean(fs, nil)
	variance := 0.0
	if n > 1 {
		variance = stat.Variance(fs, nil)
	}
	std := math.Sqrt(variance)
	return Stats{
		Mean:    mean,
		Var:     variance,
		StdDev:  std,
		P50:     stat.Quantile(0.50, stat.Empirical, fs, nil),
		P90:     stat.Quantile(0.90, stat.Empirical, fs, nil),
		P99:     stat.Quantile(0.99, stat.Empirical, fs, nil),
		Samples: xs,
	}
}

// RunMonteCarlo rolls the ladder `rolls` times in one continuous session
// starting from fresh pity, the way a long-running player experiences it.
func RunMonteCarlo(ladder Ladder, rolls int, rng RandomSource) (Report, error) {
	if rolls <= 0 {
		return Report{}, nil
	}
	if err := ladder.Validate(); err != nil {
		return Report{}, err
	}
	ps := NewPitySystem(ladder, rng)

	hits := make(map[Rarity]int, len(Rarities))
	gaps := make(map[Rarity][]int, len(Rarities))
	since := make(map[Rarity]int, len(Rarities))

	for i := 0; i < rolls; i++ {
		r, err := ps.Draw()
		if err != nil {
			return Report{}, err
		}
		for _, t := range Rarities {
			since[t]++
		}
		hits[r]++
		gaps[r] = append(gaps[r], since[r])
		since[r] = 0
	}

	rep := Report{Rolls: rolls, Final: ps.Counters}
	for _, t := range Rarities {
		rep.Tiers = append(rep.Tiers, TierReport{
			Rarity:  t,
			Hits:    hits[t],
			HitRate: float64(hits[t]) / float64(rolls),
			Gap:     calcStats(gaps[t]),
		})
	}
	return rep, nil
}

// HitRateAt estimates a tier's hit chance when every roll starts from the
// given pity counters. Used to compare pity levels with the same trial count.
func HitRateAt(ladder Ladder, pity PityCounters, target Rarity, trials int, rng RandomSource) (float64, error) {
	if trials <= 0 {
		return 0, nil
	}
	hits := 0
	for i := 0; i < trials; i++ {
		r, _, err := Roll(ladder, pity, rng)
		if err != nil {
			return 0, err
		}
		if r == target {
			hits++
		}
	}
	return float64(hits) / float64(trials), nil
}
