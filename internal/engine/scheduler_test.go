package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/xtding233/reef-engine/internal/catalog"
	"github.com/xtding233/reef-engine/internal/gacha"
	"github.com/xtding233/reef-engine/internal/history"
	"github.com/xtding233/reef-engine/internal/input"
	"github.com/xtding233/reef-engine/internal/state"
	"github.com/xtding233/reef-engine/internal/tuning"
)

var t0 = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

type fakePersister struct {
	mu    sync.Mutex
	saves []*state.GameState
	err   error
}

func (p *fakePersister) Save(_ context.Context, s *state.GameState) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.saves = append(p.saves, s)
	return p.err
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) Notify(e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) named(name string) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Event
	for _, e := range l.events {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

// missRNG fails every Bernoulli trial, so every roll is Common.
type missRNG struct{}

func (missRNG) Float64() float64 { return 0.999999 }
func (missRNG) IntN(int) int { return 0 }

type recorder struct{ entries []history.Entry }

func (r *recorder) Enqueue(e history.Entry) { r.entries = append(r.entries, e) }

type harness struct {
	sched    *Scheduler
	store    *state.Store
	counters *input.Counters
	audio    *input.AudioFlag
	saves    *fakePersister
	events   *eventLog
	history  *recorder
}

func newHarness(t *testing.T, tu tuning.Tuning, cat *catalog.Catalog) *harness {
	t.Helper()
	if cat == nil {
		var err error
		if cat, err = catalog.Default(); err != nil {
			t.Fatal(err)
		}
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := &harness{
		store:    state.NewStore(state.New(), logger),
		counters: &input.Counters{},
		audio:    &input.AudioFlag{},
		saves:    &fakePersister{},
		events:   &eventLog{},
		history:  &recorder{},
	}
	h.sched = New(Config{
		Store:     h.store,
		Catalog:   cat,
		Counters:  h.counters,
		Audio:     h.audio,
		Tuning:    tu,
		Persister: h.saves,
		Notifier:  h.events,
		Recorder:  h.history,
		RNG:       gacha.NewSeededRNG(3),
		Logger:    logger,
	})
	return h
}

func (h *harness) pools() map[string]uint32 { return h.store.Snapshot().PoolEnergy }

func TestKeysFloorWithoutCarry(t *testing.T) {
	tu := tuning.Default()
	tu.KeysPerEnergy = 5
	h := newHarness(t, tu, nil)
	h.counters.Add(input.Key, 47)
	res := h.sched.Step(context.Background(), t0)
	if res.Credited[state.PoolTyping] != 9 || h.pools()[state.PoolTyping] != 9 {
		t.Fatalf("credited %d, pool %d", res.Credited[state.PoolTyping], h.pools()[state.PoolTyping])
	}
	h.counters.Add(input.Key, 3)
	h.sched.Step(context.Background(), t0.Add(500*time.Millisecond))
	if got := h.pools()[state.PoolTyping]; got != 9 {
		t.Fatalf("remainder was carried: pool %d", got)
	}
}

func TestClicksAndScrollFeedClickPool(t *testing.T) {
	h := newHarness(t, tuning.Default(), nil)
	for i := 0; i < 7; i++ {
		h.counters.Record(input.Click)
	}
	for i := 0; i < 4; i++ {
		h.counters.Record(input.Scroll)
	}
	h.sched.Step(context.Background(), t0)
	if got := h.pools()[state.PoolClick]; got != 2 {
		t.Fatalf("click pool = %d", got)
	}
}

func TestOvershootDiscardedOneAttempt(t *testing.T) {
	h := newHarness(t, tuning.Default(), nil)
	_ = h.store.Update(func(g *state.GameState) error {
		g.PoolEnergy[state.PoolTyping] = 45
		return nil
	})
	res := h.sched.Step(context.Background(), t0)
	if res.Attempts != 1 {
		t.Fatalf("attempts = %d", res.Attempts)
	}
	snap := h.store.Snapshot()
	if snap.PoolEnergy[state.PoolTyping] != 0 {
		t.Fatalf("pool = %d, overshoot must not be banked", snap.PoolEnergy[state.PoolTyping])
	}
	if snap.TotalDiscoveries != 1 {
		t.Fatalf("total = %d", snap.TotalDiscoveries)
	}
	if len(res.Discoveries) != 1 || res.Discoveries[0].Pool != state.PoolTyping {
		t.Fatalf("discoveries = %+v", res.Discoveries)
	}
	if snap.Collection[res.Discoveries[0].CreatureID].Count != 1 || !res.Discoveries[0].IsNew {
		t.Fatalf("collection = %+v", snap.Collection)
	}
	if !res.Saved || len(h.saves.saves) != 1 {
		t.Fatal("discovery should trigger a save")
	}
	if len(h.history.entries) != 1 || h.history.entries[0].CreatureID != res.Discoveries[0].CreatureID {
		t.Fatalf("history = %+v", h.history.entries)
	}
	if len(h.events.named(EventDiscovery)) != 1 {
		t.Fatal("expected one discovery event")
	}
}

func TestPoolsResolveIndependently(t *testing.T) {
	h := newHarness(t, tuning.Default(), nil)
	_ = h.store.Update(func(g *state.GameState) error {
		g.PoolEnergy[state.PoolTyping] = 40
		g.PoolEnergy[state.PoolClick] = 39
		g.PoolEnergy[state.PoolAudio] = 100
		return nil
	})
	res := h.sched.Step(context.Background(), t0)
	if res.Attempts != 2 {
		t.Fatalf("attempts = %d", res.Attempts)
	}
	p := h.pools()
	if p[state.PoolTyping] != 0 || p[state.PoolClick] != 39 || p[state.PoolAudio] != 0 {
		t.Fatalf("pools = %v", p)
	}
	if h.store.Snapshot().TotalDiscoveries != 2 {
		t.Fatal("each crossing pool counts a discovery")
	}
}

func TestWastedRollStillUpdatesPity(t *testing.T) {
	cat, err := catalog.Parse([]byte(`creatures: [{id: crab, pool: click, rarity: common}]`))
	if err != nil {
		t.Fatal(err)
	}
	h := newHarness(t, tuning.Default(), cat)
	h.sched.rng = missRNG{}
	_ = h.store.Update(func(g *state.GameState) error {
		g.PoolEnergy[state.PoolAudio] = 40
		return nil
	})
	res := h.sched.Step(context.Background(), t0)
	if res.Attempts != 1 || res.Wasted != 1 || len(res.Discoveries) != 0 {
		t.Fatalf("res = %+v", res)
	}
	snap := h.store.Snapshot()
	if len(snap.Collection) != 0 {
		t.Fatalf("collection = %+v", snap.Collection)
	}
	if snap.Pity != (gacha.PityCounters{Legendary: 1, Epic: 1, Rare: 1, Uncommon: 1}) {
		t.Fatalf("pity = %+v, should move even when the roll is wasted", snap.Pity)
	}
	if snap.TotalDiscoveries != 1 {
		t.Fatalf("total = %d", snap.TotalDiscoveries)
	}
}

func TestRollErrorLeavesPity(t *testing.T) {
	tu := tuning.Default()
	tu.Ladder[0].Denominator = 0
	h := newHarness(t, tu, nil)
	_ = h.store.Update(func(g *state.GameState) error {
		g.PoolEnergy[state.PoolTyping] = 40
		g.Pity = gacha.PityCounters{Legendary: 2, Epic: 1}
		return nil
	})
	res := h.sched.Step(context.Background(), t0)
	if len(res.Discoveries) != 0 {
		t.Fatal("a failed roll must not award")
	}
	snap := h.store.Snapshot()
	if snap.Pity != (gacha.PityCounters{Legendary: 2, Epic: 1}) {
		t.Fatalf("pity = %+v", snap.Pity)
	}
}

func TestAudioAccumulator(t *testing.T) {
	h := newHarness(t, tuning.Default(), nil)
	ctx := context.Background()
	h.audio.Set(true)
	now := t0
	h.sched.Step(ctx, now)
	for i := 0; i < 24; i++ { // 12 s of audio
		now = now.Add(500 * time.Millisecond)
		h.sched.Step(ctx, now)
	}
	if got := h.pools()[state.PoolAudio]; got != 2 {
		t.Fatalf("audio pool = %d", got)
	}
	// silence keeps the partial second count
	h.audio.Set(false)
	now = now.Add(10 * time.Second)
	h.sched.Step(ctx, now)
	h.audio.Set(true)
	now = now.Add(3 * time.Second)
	h.sched.Step(ctx, now)
	if got := h.pools()[state.PoolAudio]; got != 3 {
		t.Fatalf("audio pool after resume = %d", got)
	}
}

func TestIdleFallback(t *testing.T) {
	h := newHarness(t, tuning.Default(), nil)
	ctx := context.Background()
	h.sched.Step(ctx, t0)
	now := t0
	for now.Sub(t0) < 960*time.Second {
		now = now.Add(30 * time.Second)
		h.sched.Step(ctx, now)
	}
	if got := h.pools()[state.PoolTyping]; got != 3 {
		t.Fatalf("idle credit = %d, want 3 (at 900s, 930s, 960s)", got)
	}
	h.counters.Record(input.Key)
	now = now.Add(30 * time.Second)
	h.sched.Step(ctx, now)
	now = now.Add(30 * time.Second)
	h.sched.Step(ctx, now)
	if got := h.pools()[state.PoolTyping]; got != 3 {
		t.Fatalf("idle credit after input = %d", got)
	}
}

func TestIdlePoolConfigurable(t *testing.T) {
	tu := tuning.Default()
	tu.IdlePool = state.PoolClick
	tu.IdleTimeout = time.Second
	tu.IdleEnergyInterval = time.Second
	h := newHarness(t, tu, nil)
	h.sched.Step(context.Background(), t0)
	h.sched.Step(context.Background(), t0.Add(2*time.Second))
	p := h.pools()
	if p[state.PoolClick] != 2 || p[state.PoolTyping] != 0 {
		t.Fatalf("pools = %v", p)
	}
}

func TestAutosave(t *testing.T) {
	h := newHarness(t, tuning.Default(), nil)
	ctx := context.Background()
	if res := h.sched.Step(ctx, t0); res.Saved {
		t.Fatal("no save on the first quiet tick")
	}
	if res := h.sched.Step(ctx, t0.Add(59*time.Second)); res.Saved {
		t.Fatal("saved too early")
	}
	if res := h.sched.Step(ctx, t0.Add(60*time.Second)); !res.Saved {
		t.Fatal("expected autosave")
	}
	if res := h.sched.Step(ctx, t0.Add(61*time.Second)); res.Saved {
		t.Fatal("autosave interval should restart")
	}
}

func TestSaveErrorReported(t *testing.T) {
	h := newHarness(t, tuning.Default(), nil)
	h.saves.err = errors.New("disk full")
	h.sched.Step(context.Background(), t0)
	res := h.sched.Step(context.Background(), t0.Add(time.Minute))
	if res.SaveErr == nil {
		t.Fatal("expected save error")
	}
}

func TestEnergyUpdateEveryTick(t *testing.T) {
	h := newHarness(t, tuning.Default(), nil)
	h.counters.Add(input.Click, 10)
	h.sched.Step(context.Background(), t0)
	h.sched.Step(context.Background(), t0.Add(time.Second))
	ev := h.events.named(EventEnergyUpdate)
	if len(ev) != 2 {
		t.Fatalf("energy updates = %d", len(ev))
	}
	up := ev[0].Payload.(EnergyUpdate)
	if up.Threshold != 40 || up.Pools[state.PoolClick] != 2 || len(up.Pools) != 3 {
		t.Fatalf("payload = %+v", up)
	}
}

func TestNotifyRunsOutsideLock(t *testing.T) {
	h := newHarness(t, tuning.Default(), nil)
	h.sched.notifier = NotifierFunc(func(Event) { _ = h.store.Snapshot() })
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.sched.Step(context.Background(), t0)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("notifier deadlocked on the state lock")
	}
}

func TestSetTuningAppliesNextTick(t *testing.T) {
	h := newHarness(t, tuning.Default(), nil)
	tu := tuning.Default()
	tu.KeysPerEnergy = 1
	h.sched.SetTuning(tu)
	h.counters.Add(input.Key, 7)
	h.sched.Step(context.Background(), t0)
	if got := h.pools()[state.PoolTyping]; got != 7 {
		t.Fatalf("typing = %d", got)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	tu := tuning.Default()
	tu.Tick = time.Millisecond
	h := newHarness(t, tu, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.sched.Run(ctx)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	if len(h.events.named(EventEnergyUpdate)) == 0 {
		t.Fatal("expected ticks")
	}
}
