// Command reefsim rolls the rarity ladder offline and reports how often
// each tier lands and how long players wait between hits.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/gocarina/gocsv"

	"github.com/xtding233/reef-engine/internal/gacha"
	"github.com/xtding233/reef-engine/internal/tuning"
)

type tierRow struct {
	Rarity    string  `csv:"rarity"`
	Hits      int     `csv:"hits"`
	HitRate   float64 `csv:"hit_rate"`
	GapMean   float64 `csv:"gap_mean"`
	GapStdDev float64 `csv:"gap_stddev"`
	GapP50    float64 `csv:"gap_p50"`
	GapP90    float64 `csv:"gap_p90"`
	GapP99    float64 `csv:"gap_p99"`
	FreshRate float64 `csv:"fresh_rate"`
	AtCapRate float64 `csv:"at_cap_rate"`
	PityCap   uint32  `csv:"pity_cap"`
}

type options struct {
	rolls       int
	probeTrials int
	seed        uint64
	tuningFile  string
	csvPath     string
}

func main() {
	var o options
	flag.IntVar(&o.rolls, "rolls", 100000, "rolls in the simulated session")
	flag.IntVar(&o.probeTrials, "probe", 20000, "trials per tier for fresh vs at-cap hit rates (0 skips)")
	flag.Uint64Var(&o.seed, "seed", 0, "PRNG seed (0 uses the system RNG)")
	flag.StringVar(&o.tuningFile, "tuning", "", "YAML tuning override file")
	flag.StringVar(&o.csvPath, "csv", "", "write per-tier rows as CSV to this path")
	flag.Parse()

	if err := run(o, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "reefsim:", err)
		os.Exit(1)
	}
}

func run(o options, w io.Writer) error {
	tu, err := tuning.NewLoader(o.tuningFile).Load()
	if err != nil {
		return err
	}
	rng := gacha.DefaultRNG()
	if o.seed != 0 {
		rng = gacha.NewSeededRNG(o.seed)
	}
	rows, final, err := simulate(tu.Ladder, o.rolls, o.probeTrials, rng)
	if err != nil {
		return err
	}
	printRows(w, o.rolls, rows, final)
	if o.csvPath == "" {
		return nil
	}
	f, err := os.Create(o.csvPath)
	if err != nil {
		return err
	}
	if err := gocsv.Marshal(rows, f); err != nil {
		f.Close()
		return fmt.Errorf("write csv: %w", err)
	}
	return f.Close()
}

func simulate(ladder gacha.Ladder, rolls, probeTrials int, rng gacha.RandomSource) ([]*tierRow, gacha.PityCounters, error) {
	rep, err := gacha.RunMonteCarlo(ladder, rolls, rng)
	if err != nil {
		return nil, gacha.PityCounters{}, err
	}
	caps := ladder.Caps()
	rows := make([]*tierRow, 0, len(rep.Tiers))
	for _, t := range rep.Tiers {
		row := &tierRow{
			Rarity:    t.Rarity.String(),
			Hits:      t.Hits,
			HitRate:   t.HitRate,
			GapMean:   t.Gap.Mean,
			GapStdDev: t.Gap.StdDev,
			GapP50:    t.Gap.P50,
			GapP90:    t.Gap.P90,
			GapP99:    t.Gap.P99,
			PityCap:   caps.Get(t.Rarity),
		}
		if probeTrials > 0 && t.Rarity != gacha.Common {
			if row.FreshRate, err = gacha.HitRateAt(ladder, gacha.PityCounters{}, t.Rarity, probeTrials, rng); err != nil {
				return nil, gacha.PityCounters{}, err
			}
			var atCap gacha.PityCounters
			atCap.Set(t.Rarity, row.PityCap)
			if row.AtCapRate, err = gacha.HitRateAt(ladder, atCap, t.Rarity, probeTrials, rng); err != nil {
				return nil, gacha.PityCounters{}, err
			}
		}
		rows = append(rows, row)
	}
	return rows, rep.Final, nil
}

func printRows(w io.Writer, rolls int, rows []*tierRow, final gacha.PityCounters) {
	fmt.Fprintf(w, "rolls=%d\n", rolls)
	fmt.Fprintf(w, "%-10s %8s %9s %9s %9s %7s %7s %9s %9s\n",
		"rarity", "hits", "rate", "gap_mean", "gap_sd", "p50", "p90", "fresh", "at_cap")
	for _, r := range rows {
		fmt.Fprintf(w, "%-10s %8d %9.5f %9.2f %9.2f %7.0f %7.0f %9.5f %9.5f\n",
			r.Rarity, r.Hits, r.HitRate, r.GapMean, r.GapStdDev, r.GapP50, r.GapP90, r.FreshRate, r.AtCapRate)
	}
	fmt.Fprintf(w, "final pity: legendary=%d epic=%d rare=%d uncommon=%d\n",
		final.Legendary, final.Epic, final.Rare, final.Uncommon)
}
