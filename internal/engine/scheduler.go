// Package engine runs the tick loop that turns input into energy and
// energy into discoveries.
package engine

import (
	"context"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/xtding233/reef-engine/internal/catalog"
	"github.com/xtding233/reef-engine/internal/gacha"
	"github.com/xtding233/reef-engine/internal/history"
	"github.com/xtding233/reef-engine/internal/input"
	"github.com/xtding233/reef-engine/internal/state"
	"github.com/xtding233/reef-engine/internal/tuning"
)

var tracer = otel.Tracer("github.com/xtding233/reef-engine/internal/engine")

// Persister writes a state snapshot to durable storage.
type Persister interface {
	Save(ctx context.Context, s *state.GameState) error
}

// Recorder receives discoveries for the history index. Enqueue must not block.
type Recorder interface {
	Enqueue(history.Entry)
}

type Config struct {
	Store     *state.Store
	Catalog   *catalog.Catalog
	Counters  *input.Counters
	Audio     *input.AudioFlag
	Tuning    tuning.Tuning
	Persister Persister
	Notifier  Notifier
	Recorder  Recorder
	RNG       gacha.RandomSource
	Logger    *slog.Logger
}

// Scheduler is the only writer of energy, pity and collection state.
// Step and Run must be driven from a single goroutine.
type Scheduler struct {
	store     *state.Store
	catalog   *catalog.Catalog
	counters  *input.Counters
	audio     *input.AudioFlag
	persister Persister
	notifier  Notifier
	recorder  Recorder
	rng       gacha.RandomSource
	log       *slog.Logger
	tuning    atomic.Pointer[tuning.Tuning]

	started      bool
	last         time.Time
	lastActivity time.Time
	lastSave     time.Time
	audioAcc     time.Duration
	idleAcc      time.Duration
}

func New(cfg Config) *Scheduler {
	s := &Scheduler{
		store:     cfg.Store,
		catalog:   cfg.Catalog,
		counters:  cfg.Counters,
		audio:     cfg.Audio,
		persister: cfg.Persister,
		notifier:  cfg.Notifier,
		recorder:  cfg.Recorder,
		rng:       cfg.RNG,
		log:       cfg.Logger,
	}
	if s.counters == nil {
		s.counters = &input.Counters{}
	}
	if s.audio == nil {
		s.audio = &input.AudioFlag{}
	}
	if s.notifier == nil {
		s.notifier = nopNotifier{}
	}
	if s.rng == nil {
		s.rng = gacha.DefaultRNG()
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	t := cfg.Tuning
	s.tuning.Store(&t)
	return s
}

// SetTuning swaps the tuning; the next tick uses it.
func (s *Scheduler) SetTuning(t tuning.Tuning) { s.tuning.Store(&t) }

func (s *Scheduler) Tuning() tuning.Tuning { return *s.tuning.Load() }

// Run ticks at the tuned interval until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	interval := s.Tuning().Tick
	tk := time.NewTicker(interval)
	defer tk.Stop()
	s.Step(ctx, time.Now())
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-tk.C:
			s.Step(ctx, now)
			if next := s.Tuning().Tick; next != interval {
				interval = next
				tk.Reset(interval)
			}
		}
	}
}

// StepResult describes what one tick did.
type StepResult struct {
	Delta       time.Duration
	Credited    map[string]uint32 // energy added per pool this tick
	Attempts    int               // pools that crossed the threshold
	Discoveries []Discovery
	Wasted      int // rolls with no matching creature
	Saved       bool
	SaveErr     error
}

type credit struct{ typing, click, audio, idle uint32 }

// Step runs one tick at wall-clock time now.
func (s *Scheduler) Step(ctx context.Context, now time.Time) StepResult {
	t := s.Tuning()
	if !s.started {
		s.started = true
		s.last, s.lastActivity, s.lastSave = now, now, now
	}
	delta := max(now.Sub(s.last), 0)
	s.last = now
	res := StepResult{Delta: delta, Credited: make(map[string]uint32, len(state.Pools))}

	keys, clicks := s.counters.Drain()
	audioOn := s.audio.Active()
	if keys > 0 || clicks > 0 || audioOn {
		s.lastActivity = now
	}

	var c credit
	c.typing = clampU32(keys / t.KeysPerEnergy)
	c.click = clampU32(clicks / t.ClicksPerEnergy)
	if audioOn {
		s.audioAcc += delta
		for s.audioAcc >= t.AudioSecondsPerEnergy {
			s.audioAcc -= t.AudioSecondsPerEnergy
			c.audio++
		}
	}
	if now.Sub(s.lastActivity) >= t.IdleTimeout {
		s.idleAcc += delta
		for s.idleAcc >= t.IdleEnergyInterval {
			s.idleAcc -= t.IdleEnergyInterval
			c.idle++
		}
	} else {
		s.idleAcc = 0
	}
	res.Credited[state.PoolTyping] = c.typing
	res.Credited[state.PoolClick] = c.click
	res.Credited[state.PoolAudio] = c.audio
	idlePool := t.IdlePool
	if !state.IsPool(idlePool) {
		idlePool = state.PoolTyping
	}
	res.Credited[idlePool] = addSat(res.Credited[idlePool], c.idle)

	needSave := now.Sub(s.lastSave) >= t.AutosaveInterval
	var (
		pools    map[string]uint32
		snapshot *state.GameState
		entries  []history.Entry
	)
	err := s.store.Update(func(g *state.GameState) error {
		if g.PoolEnergy == nil {
			g.PoolEnergy = state.DefaultPoolEnergy()
		}
		for pool, n := range res.Credited {
			g.PoolEnergy[pool] = addSat(g.PoolEnergy[pool], n)
		}
		for _, pool := range state.Pools {
			if g.PoolEnergy[pool] < t.EnergyThreshold {
				continue
			}
			res.Attempts++
			g.PoolEnergy[pool] = 0
			g.TotalDiscoveries++
			d, ok := s.resolve(g, pool, t.Ladder, now)
			if !ok {
				res.Wasted++
				continue
			}
			res.Discoveries = append(res.Discoveries, d)
			entries = append(entries, history.Entry{
				CreatureID:       d.CreatureID,
				Pool:             d.Pool,
				Rarity:           string(d.Rarity),
				IsNew:            d.IsNew,
				At:               d.At,
				TotalDiscoveries: d.TotalDiscoveries,
			})
		}
		pools = make(map[string]uint32, len(g.PoolEnergy))
		for k, v := range g.PoolEnergy {
			pools[k] = v
		}
		if len(res.Discoveries) > 0 {
			needSave = true
		}
		if needSave && s.persister != nil {
			snapshot = g.Clone()
		}
		return nil
	})
	if err != nil {
		s.log.Error("tick failed", "err", err)
		return res
	}

	// lock released: notify, index, persist
	s.notifier.Notify(Event{Name: EventEnergyUpdate, Payload: EnergyUpdate{Pools: pools, Threshold: t.EnergyThreshold}})
	for _, d := range res.Discoveries {
		s.log.Info("discovery", "creature", d.CreatureID, "pool", d.Pool, "rarity", d.Rarity, "new", d.IsNew, "total", d.TotalDiscoveries)
		s.notifier.Notify(Event{Name: EventDiscovery, Payload: d})
	}
	if s.recorder != nil {
		for _, e := range entries {
			s.recorder.Enqueue(e)
		}
	}
	if res.Attempts > 0 {
		_, span := tracer.Start(ctx, "engine.resolve", trace.WithTimestamp(now))
		span.SetAttributes(
			attribute.Int("engine.attempts", res.Attempts),
			attribute.Int("engine.discoveries", len(res.Discoveries)),
			attribute.Int("engine.wasted", res.Wasted),
		)
		span.End()
	}
	if snapshot != nil {
		s.lastSave = now
		res.Saved = true
		if err := s.persister.Save(ctx, snapshot); err != nil {
			res.SaveErr = err
			s.log.Error("save failed", "err", err)
		}
	}
	return res
}

// resolve rolls rarity for one pool and awards a creature. Called with the
// state lock held. A roll error leaves pity as it was.
func (s *Scheduler) resolve(g *state.GameState, pool string, ladder gacha.Ladder, now time.Time) (Discovery, bool) {
	rarity, pity, err := gacha.Roll(ladder, g.Pity, s.rng)
	if err != nil {
		s.log.Error("rarity roll failed, no discovery", "pool", pool, "err", err)
		return Discovery{}, false
	}
	g.Pity = pity
	if s.catalog == nil {
		return Discovery{}, false
	}
	def, ok := s.catalog.Select(pool, rarity, s.rng)
	if !ok {
		s.log.Debug("no creature for roll", "pool", pool, "rarity", rarity)
		return Discovery{}, false
	}
	isNew := g.Award(def.ID, now)
	return Discovery{
		CreatureID:       def.ID,
		Name:             def.Name,
		Pool:             pool,
		Rarity:           rarity,
		IsNew:            isNew,
		TotalDiscoveries: g.TotalDiscoveries,
		At:               now.UTC(),
	}, true
}

func clampU32(v uint64) uint32 {
	if v > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(v)
}

func addSat(a, b uint32) uint32 {
	return clampU32(uint64(a) + uint64(b))
}
