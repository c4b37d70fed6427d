// Package ipc is the command surface UI clients use to read and change the
// game state.
package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/xtding233/reef-engine/internal/engine"
	"github.com/xtding233/reef-engine/internal/gacha"
	"github.com/xtding233/reef-engine/internal/history"
	"github.com/xtding233/reef-engine/internal/input"
	"github.com/xtding233/reef-engine/internal/state"
)

var (
	ErrOutOfRange      = errors.New("value out of range")
	ErrUnknownSetting  = errors.New("unknown setting")
	ErrHistoryDisabled = errors.New("history index not configured")
)

// Persistence is the subset of save.Manager the service needs.
type Persistence interface {
	Save(ctx context.Context, s *state.GameState) error
	Import(ctx context.Context, path string) (*state.GameState, error)
	Export(ctx context.Context, s *state.GameState, dst string) error
}

// History is the subset of history.SQLiteIndex the service needs.
type History interface {
	Recent(ctx context.Context, limit int) ([]history.Entry, error)
	Clear(ctx context.Context) error
}

type Config struct {
	Store     *state.Store
	Saves     Persistence
	Notifier  engine.Notifier
	Counters  *input.Counters
	History   History
	Threshold func() uint32 // current energy threshold
	Logger    *slog.Logger
}

// Service executes commands. Each command holds the state lock for a single
// read or mutation and releases it before I/O or notification.
type Service struct {
	store     *state.Store
	saves     Persistence
	notifier  engine.Notifier
	counters  *input.Counters
	history   History
	threshold func() uint32
	log       *slog.Logger
}

func NewService(cfg Config) *Service {
	s := &Service{
		store:     cfg.Store,
		saves:     cfg.Saves,
		notifier:  cfg.Notifier,
		counters:  cfg.Counters,
		history:   cfg.History,
		threshold: cfg.Threshold,
		log:       cfg.Logger,
	}
	if s.notifier == nil {
		s.notifier = engine.NotifierFunc(func(engine.Event) {})
	}
	if s.counters == nil {
		s.counters = &input.Counters{}
	}
	if s.threshold == nil {
		s.threshold = func() uint32 { return 0 }
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	return s
}

type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type SizeView struct {
	Index int    `json:"index"`
	Label string `json:"label"`
	Cols  int    `json:"cols"`
	Rows  int    `json:"rows"`
}

// StateView is the full snapshot returned to clients.
type StateView struct {
	Collection             map[string]state.OwnedCreature `json:"collection"`
	PoolEnergy             map[string]uint32              `json:"poolEnergy"`
	Threshold              uint32                         `json:"threshold"`
	TotalDiscoveries       uint32                         `json:"totalDiscoveries"`
	Pity                   gacha.PityCounters             `json:"pity"`
	Position               Position                       `json:"position"`
	Size                   SizeView                       `json:"size"`
	SendScores             bool                           `json:"sendScores"`
	SoundEnabled           bool                           `json:"soundEnabled"`
	MusicVolume            float64                        `json:"musicVolume"`
	DayNightCycle          string                         `json:"dayNightCycle"`
	MessageBottlesEnabled  bool                           `json:"messageBottlesEnabled"`
	MessageBottlesPrompted bool                           `json:"messageBottlesPrompted"`
	CloseBehavior          string                         `json:"closeBehavior"`
	HiddenCreatures        []string                       `json:"hiddenCreatures"`
}

func sizeView(i int) SizeView {
	p := state.SizePresets[i]
	return SizeView{Index: i, Label: p.Label, Cols: p.Cols, Rows: p.Rows}
}

// State returns a snapshot of everything a client renders.
func (s *Service) State() StateView {
	g := s.store.Snapshot()
	d := g.Display
	hidden := d.HiddenCreatures
	if hidden == nil {
		hidden = []string{}
	}
	size := d.SizeIndex
	if !state.ValidSizeIndex(size) {
		size = state.DefaultSizeIndex
	}
	return StateView{
		Collection:             g.Collection,
		PoolEnergy:             g.PoolEnergy,
		Threshold:              s.threshold(),
		TotalDiscoveries:       g.TotalDiscoveries,
		Pity:                   g.Pity,
		Position:               Position{X: d.Position.X, Y: d.Position.Y},
		Size:                   sizeView(size),
		SendScores:             d.SendScores,
		SoundEnabled:           d.SoundEnabled,
		MusicVolume:            d.MusicVolume,
		DayNightCycle:          d.DayNightCycle,
		MessageBottlesEnabled:  d.MessageBottlesEnabled,
		MessageBottlesPrompted: d.MessageBottlesPrompted,
		CloseBehavior:          d.CloseBehavior,
		HiddenCreatures:        hidden,
	}
}

// mutate applies fn under the lock, saves the resulting snapshot and then
// emits ev. fn returning an error aborts before anything is saved.
func (s *Service) mutate(ctx context.Context, fn func(g *state.GameState) (engine.Event, error)) error {
	var (
		ev   engine.Event
		snap *state.GameState
	)
	err := s.store.Update(func(g *state.GameState) error {
		var err error
		if ev, err = fn(g); err != nil {
			return err
		}
		snap = g.Clone()
		return nil
	})
	if err != nil {
		return err
	}
	if err := s.persist(ctx, snap); err != nil {
		return err
	}
	if ev.Name != "" {
		s.notifier.Notify(ev)
	}
	return nil
}

func (s *Service) persist(ctx context.Context, snap *state.GameState) error {
	if s.saves == nil {
		return nil
	}
	if err := s.saves.Save(ctx, snap); err != nil {
		s.log.Error("save failed", "err", err)
		return fmt.Errorf("save: %w", err)
	}
	return nil
}

func (s *Service) SetSendScores(ctx context.Context, enabled bool) error {
	return s.mutate(ctx, func(g *state.GameState) (engine.Event, error) {
		g.Display.SendScores = enabled
		return engine.Event{Name: engine.EventSendScores, Payload: map[string]bool{"enabled": enabled}}, nil
	})
}

func (s *Service) SetSoundEnabled(ctx context.Context, enabled bool) error {
	return s.mutate(ctx, func(g *state.GameState) (engine.Event, error) {
		g.Display.SoundEnabled = enabled
		return engine.Event{Name: engine.EventSoundSettings, Payload: map[string]bool{"enabled": enabled}}, nil
	})
}

// SetMusicVolume clamps v to [0,1].
func (s *Service) SetMusicVolume(ctx context.Context, v float64) error {
	if math.IsNaN(v) {
		return fmt.Errorf("music volume: %w", ErrOutOfRange)
	}
	v = min(max(v, 0), 1)
	return s.mutate(ctx, func(g *state.GameState) (engine.Event, error) {
		g.Display.MusicVolume = v
		return engine.Event{Name: engine.EventSoundSettings, Payload: map[string]float64{"volume": v}}, nil
	})
}

func (s *Service) SetSizeIndex(ctx context.Context, i int) error {
	if !state.ValidSizeIndex(i) {
		return fmt.Errorf("size index %d: %w", i, ErrOutOfRange)
	}
	return s.mutate(ctx, func(g *state.GameState) (engine.Event, error) {
		g.Display.SizeIndex = i
		return engine.Event{Name: engine.EventSizeIndex, Payload: sizeView(i)}, nil
	})
}

// SetDayNightCycle falls back to the default for unknown modes.
func (s *Service) SetDayNightCycle(ctx context.Context, cycle string) error {
	if !state.ValidDayNightCycle(cycle) {
		cycle = state.DefaultDayNightCycle
	}
	return s.mutate(ctx, func(g *state.GameState) (engine.Event, error) {
		g.Display.DayNightCycle = cycle
		return engine.Event{Name: engine.EventDayNightCycle, Payload: map[string]string{"cycle": cycle}}, nil
	})
}

// SetCloseBehavior falls back to "ask" for unknown values.
func (s *Service) SetCloseBehavior(ctx context.Context, behavior string) error {
	if !state.ValidCloseBehavior(behavior) {
		behavior = state.DefaultCloseBehavior
	}
	return s.mutate(ctx, func(g *state.GameState) (engine.Event, error) {
		g.Display.CloseBehavior = behavior
		return engine.Event{Name: engine.EventCloseBehavior, Payload: map[string]string{"behavior": behavior}}, nil
	})
}

// SetMessageBottles updates the preference. Once prompted is true it stays true.
func (s *Service) SetMessageBottles(ctx context.Context, enabled, prompted bool) error {
	return s.mutate(ctx, func(g *state.GameState) (engine.Event, error) {
		g.Display.MessageBottlesEnabled = enabled
		if prompted {
			g.Display.MessageBottlesPrompted = true
		}
		return engine.Event{Name: engine.EventMessageBottles, Payload: map[string]bool{
			"enabled":  enabled,
			"prompted": g.Display.MessageBottlesPrompted,
		}}, nil
	})
}

func (s *Service) SetHiddenCreatures(ctx context.Context, ids []string) error {
	ids = state.CleanIDs(ids)
	return s.mutate(ctx, func(g *state.GameState) (engine.Event, error) {
		g.Display.HiddenCreatures = ids
		return engine.Event{Name: engine.EventHiddenCreatures, Payload: map[string][]string{"hidden": ids}}, nil
	})
}

// SetPosition records the window position in memory; the next save
// persists it.
func (s *Service) SetPosition(x, y float64) error {
	if math.IsNaN(x) || math.IsInf(x, 0) || math.IsNaN(y) || math.IsInf(y, 0) {
		return fmt.Errorf("position: %w", ErrOutOfRange)
	}
	return s.store.Update(func(g *state.GameState) error {
		g.Display.Position = state.Position{X: x, Y: y}
		return nil
	})
}

// Reset clears the collection and all progression, keeping display settings.
func (s *Service) Reset(ctx context.Context) error {
	err := s.mutate(ctx, func(g *state.GameState) (engine.Event, error) {
		g.ResetProgress()
		return engine.Event{Name: engine.EventResetAquarium}, nil
	})
	if err != nil {
		return err
	}
	if s.history != nil {
		if err := s.history.Clear(ctx); err != nil {
			s.log.Warn("clear history failed", "err", err)
		}
	}
	s.log.Info("aquarium reset")
	return nil
}

// SaveNow persists the current state, e.g. before shutdown.
func (s *Service) SaveNow(ctx context.Context) error {
	return s.persist(ctx, s.store.Snapshot())
}

// Import loads a document and installs it. On any failure the current
// state is left untouched.
func (s *Service) Import(ctx context.Context, path string) error {
	if s.saves == nil {
		return errors.New("persistence not configured")
	}
	next, err := s.saves.Import(ctx, path)
	if err != nil {
		return err
	}
	snap := s.store.Replace(next)
	s.log.Info("save imported", "path", path, "creatures", len(snap.Collection))
	return s.persist(ctx, snap)
}

// Export saves the current state and copies it to path.
func (s *Service) Export(ctx context.Context, path string) error {
	if s.saves == nil {
		return errors.New("persistence not configured")
	}
	return s.saves.Export(ctx, s.store.Snapshot(), path)
}

func (s *Service) RecentDiscoveries(ctx context.Context, limit int) ([]history.Entry, error) {
	if s.history == nil {
		return nil, ErrHistoryDisabled
	}
	return s.history.Recent(ctx, limit)
}

// RecordInput forwards counts from out-of-process hook helpers.
func (s *Service) RecordInput(keys, clicks uint64) {
	s.counters.Add(input.Key, keys)
	s.counters.Add(input.Click, clicks)
}
