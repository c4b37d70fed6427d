// Package save persists the game state: atomic writes with a backup copy,
// fallback loading, legacy migration and validated import/export.
package save

import (
	"encoding/json"
	"time"

	"github.com/xtding233/reef-engine/internal/gacha"
	"github.com/xtding233/reef-engine/internal/state"
)

// CurrentVersion is written into every saved document.
const CurrentVersion = 2

// Document is the on-disk JSON form of a GameState.
type Document struct {
	Version     int                        `json:"version"`
	Meta        Meta                       `json:"meta"`
	Collection  map[string]CollectionEntry `json:"collection"`
	Progression Progression                `json:"progression"`
	Display     DisplayDoc                 `json:"display"`
}

type Meta struct {
	Created    Timestamp `json:"created"`
	LastSaved  Timestamp `json:"lastSaved"`
	AppVersion string    `json:"appVersion"`
}

type CollectionEntry struct {
	Count     uint32    `json:"count"`
	FirstSeen Timestamp `json:"firstSeen"`
}

type Progression struct {
	PoolEnergy       map[string]uint32  `json:"poolEnergy,omitempty"`
	Energy           *uint32            `json:"energy,omitempty"` // single-pool saves only
	TotalDiscoveries uint32             `json:"totalDiscoveries"`
	Pity             gacha.PityCounters `json:"pity"`
}

type DisplayDoc struct {
	Position               [2]float64 `json:"position"`
	SizeIndex              int        `json:"sizeIndex"`
	SendScores             bool       `json:"sendScores"`
	SoundEnabled           bool       `json:"soundEnabled"`
	MusicVolume            float64    `json:"musicVolume"`
	DayNightCycle          string     `json:"dayNightCycle"`
	MessageBottlesEnabled  bool       `json:"messageBottlesEnabled"`
	MessageBottlesPrompted bool       `json:"messageBottlesPrompted"`
	CloseBehavior          string     `json:"closeBehavior"`
	HiddenCreatures        []string   `json:"hiddenCreatures"`
}

func displayDoc(d state.Display) DisplayDoc {
	hidden := d.HiddenCreatures
	if hidden == nil {
		hidden = []string{}
	}
	return DisplayDoc{
		Position:               [2]float64{d.Position.X, d.Position.Y},
		SizeIndex:              d.SizeIndex,
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

func (d DisplayDoc) display() state.Display {
	hidden := d.HiddenCreatures
	if len(hidden) == 0 {
		hidden = nil
	}
	return state.Display{
		Position:               state.Position{X: d.Position[0], Y: d.Position[1]},
		SizeIndex:              d.SizeIndex,
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

// FromState builds a document; meta is filled in by the caller.
func FromState(s *state.GameState) Document {
	c := s.Clone()
	coll := make(map[string]CollectionEntry, len(c.Collection))
	for id, o := range c.Collection {
		coll[id] = CollectionEntry{Count: o.Count, FirstSeen: Timestamp{o.FirstSeen}}
	}
	return Document{
		Version:    CurrentVersion,
		Collection: coll,
		Progression: Progression{
			PoolEnergy:       c.PoolEnergy,
			TotalDiscoveries: c.TotalDiscoveries,
			Pity:             c.Pity,
		},
		Display: displayDoc(c.Display),
	}
}

// State converts a migrated document back into a GameState.
func (d Document) State() *state.GameState {
	coll := make(map[string]state.OwnedCreature, len(d.Collection))
	for id, e := range d.Collection {
		coll[id] = state.OwnedCreature{Count: e.Count, FirstSeen: e.FirstSeen.Time}
	}
	return &state.GameState{
		Collection:       coll,
		PoolEnergy:       d.Progression.PoolEnergy,
		TotalDiscoveries: d.Progression.TotalDiscoveries,
		Pity:             d.Progression.Pity,
		Display:          d.Display.display(),
	}
}

// Migrate upgrades older documents in place and reports whether it changed
// anything. A flat energy value becomes the typing pool when no per-pool
// energy is present.
func (d *Document) Migrate() bool {
	changed := false
	if len(d.Progression.PoolEnergy) == 0 && d.Progression.Energy != nil {
		d.Progression.PoolEnergy = map[string]uint32{
			state.PoolTyping: *d.Progression.Energy,
			state.PoolClick:  0,
			state.PoolAudio:  0,
		}
		changed = true
	}
	if d.Progression.Energy != nil {
		d.Progression.Energy = nil
		changed = true
	}
	if d.Version < CurrentVersion {
		d.Version = CurrentVersion
		changed = true
	}
	return changed
}

// Timestamp reads any JSON string. Text that is not a recognised time
// layout decodes as the zero time, which sanitation later replaces, so one
// bad field does not reject the whole document.
type Timestamp struct{ time.Time }

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	time.DateTime,
	time.DateOnly,
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	t.Time = time.Time{}
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil
	}
	for _, layout := range timestampLayouts {
		if v, err := time.Parse(layout, raw); err == nil {
			t.Time = v
			return nil
		}
	}
	return nil
}
