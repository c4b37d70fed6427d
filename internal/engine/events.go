package engine

import (
	"time"

	"github.com/xtding233/reef-engine/internal/gacha"
)

// Event names delivered to UI clients.
const (
	EventEnergyUpdate    = "energy-update"
	EventDiscovery       = "discovery"
	EventResetAquarium   = "reset-aquarium"
	EventSendScores      = "send-scores"
	EventSoundSettings   = "sound-settings"
	EventSizeIndex       = "size-index"
	EventDayNightCycle   = "day-night-cycle"
	EventCloseBehavior   = "close-behavior"
	EventMessageBottles  = "message-bottles-settings"
	EventHiddenCreatures = "hidden-creatures"
)

// Event is one notification. Payload is JSON-encodable or nil.
type Event struct {
	Name    string `json:"event"`
	Payload any    `json:"payload,omitempty"`
}

type EnergyUpdate struct {
	Pools     map[string]uint32 `json:"pools"`
	Threshold uint32            `json:"threshold"`
}

type Discovery struct {
	CreatureID       string       `json:"creatureId"`
	Name             string       `json:"name"`
	Pool             string       `json:"pool"`
	Rarity           gacha.Rarity `json:"rarity"`
	IsNew            bool         `json:"isNew"`
	TotalDiscoveries uint32       `json:"totalDiscoveries"`
	At               time.Time    `json:"at"`
}

// Notifier receives events. Implementations must not block for long; they
// are called from the scheduler goroutine, never with the state lock held.
type Notifier interface {
	Notify(Event)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Event)

func (f NotifierFunc) Notify(e Event) { f(e) }

type nopNotifier struct{}

func (nopNotifier) Notify(Event) {}
