// Package input turns raw keyboard, mouse and audio signals into the counts
// and flags the scheduler samples each tick.
package input

import "sync/atomic"

// Kind is a raw input event class.
type Kind int

const (
	Key Kind = iota
	Click
	Scroll // one wheel notch, counted as a click
)

// Counters is the lock-free keystroke/click tally shared between hook
// goroutines and the scheduler.
type Counters struct {
	keys   atomic.Uint64
	clicks atomic.Uint64
}

// Record counts one event. Safe from any goroutine.
func (c *Counters) Record(k Kind) {
	switch k {
	case Key:
		c.keys.Add(1)
	case Click, Scroll:
		c.clicks.Add(1)
	}
}

// Add counts n events of one kind at once.
func (c *Counters) Add(k Kind, n uint64) {
	if n == 0 {
		return
	}
	switch k {
	case Key:
		c.keys.Add(n)
	case Click, Scroll:
		c.clicks.Add(n)
	}
}

// Drain returns the counts since the previous drain and resets them.
// Every increment is observed by exactly one drain.
func (c *Counters) Drain() (keys, clicks uint64) {
	return c.keys.Swap(0), c.clicks.Swap(0)
}
