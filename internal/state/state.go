// Package state holds the game aggregate: collection, energy pools, pity,
// and display settings.
package state

import (
	"maps"
	"slices"
	"time"

	"github.com/xtding233/reef-engine/internal/gacha"
)

// Energy pools.
const (
	PoolTyping = "typing"
	PoolClick  = "click"
	PoolAudio  = "audio"
)

// Pools lists the required pools in resolution order.
var Pools = []string{PoolTyping, PoolClick, PoolAudio}

// IsPool reports whether name is one of the required pools.
func IsPool(name string) bool {
	return slices.Contains(Pools, name)
}

// OwnedCreature is one collection entry. FirstSeen never changes after creation.
type OwnedCreature struct {
	Count     uint32    `json:"count"`
	FirstSeen time.Time `json:"firstSeen"`
}

// Position is the window position in screen coordinates.
type Position struct {
	X float64
	Y float64
}

// Display settings are opaque to the engine apart from validation.
type Display struct {
	Position               Position
	SizeIndex              int
	SendScores             bool
	SoundEnabled           bool
	MusicVolume            float64
	DayNightCycle          string
	MessageBottlesEnabled  bool
	MessageBottlesPrompted bool
	CloseBehavior          string
	HiddenCreatures        []string
}

// GameState is the aggregate root. Only mutate it through a Store.
type GameState struct {
	Collection       map[string]OwnedCreature
	PoolEnergy       map[string]uint32
	TotalDiscoveries uint32
	Pity             gacha.PityCounters
	Display          Display

	// Generation is stamped by the Store on every critical section, so
	// clones taken from one store are ordered by lock acquisition.
	// Zero means the state never passed through a Store.
	Generation uint64
}

// DefaultDisplay returns the settings of a fresh install.
func DefaultDisplay() Display {
	return Display{
		SizeIndex:     DefaultSizeIndex,
		SendScores:    true,
		MusicVolume:   DefaultMusicVolume,
		DayNightCycle: DefaultDayNightCycle,
		CloseBehavior: DefaultCloseBehavior,
	}
}

// DefaultPoolEnergy returns every required pool at zero.
func DefaultPoolEnergy() map[string]uint32 {
	m := make(map[string]uint32, len(Pools))
	for _, p := range Pools {
		m[p] = 0
	}
	return m
}

// New returns a fresh default state.
func New() *GameState {
	return &GameState{
		Collection: make(map[string]OwnedCreature),
		PoolEnergy: DefaultPoolEnergy(),
		Display:    DefaultDisplay(),
	}
}

// Clone returns a deep copy safe to use outside the store lock.
func (s *GameState) Clone() *GameState {
	c := *s
	c.Collection = maps.Clone(s.Collection)
	if c.Collection == nil {
		c.Collection = make(map[string]OwnedCreature)
	}
	c.PoolEnergy = maps.Clone(s.PoolEnergy)
	if c.PoolEnergy == nil {
		c.PoolEnergy = make(map[string]uint32)
	}
	c.Display.HiddenCreatures = slices.Clone(s.Display.HiddenCreatures)
	return &c
}

// Award creates or increments a collection entry and reports whether it is new.
func (s *GameState) Award(id string, now time.Time) (isNew bool) {
	if s.Collection == nil {
		s.Collection = make(map[string]OwnedCreature)
	}
	owned, ok := s.Collection[id]
	if !ok {
		s.Collection[id] = OwnedCreature{Count: 1, FirstSeen: now.UTC()}
		return true
	}
	owned.Count++
	s.Collection[id] = owned
	return false
}

// ResetProgress clears the collection and all progression, keeping display settings.
func (s *GameState) ResetProgress() {
	s.Collection = make(map[string]OwnedCreature)
	s.PoolEnergy = DefaultPoolEnergy()
	s.TotalDiscoveries = 0
	s.Pity = gacha.PityCounters{}
}
