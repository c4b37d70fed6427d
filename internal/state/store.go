package state

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrPoisoned is returned when a critical section panicked. The lock is
// released and the state stays usable as a best-effort snapshot.
var ErrPoisoned = errors.New("state: critical section panicked")

// Store is the single lock-guarded owner of a GameState. One coarse lock
// covers the whole aggregate so multi-field transitions commit together.
type Store struct {
	mu     sync.Mutex
	state  *GameState
	log    *slog.Logger
	panics int
	gen    uint64
}

// NewStore wraps s; nil means a fresh default state.
func NewStore(s *GameState, logger *slog.Logger) *Store {
	if s == nil {
		s = New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{state: s, log: logger}
}

// Update runs fn with exclusive access. A panic inside fn is recovered and
// reported as ErrPoisoned; whatever fn already wrote is kept. The state is
// stamped with a fresh generation before fn runs, so a clone taken inside
// fn carries it.
func (st *Store) Update(fn func(s *GameState) error) (err error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.stamp()
	defer func() {
		if r := recover(); r != nil {
			st.panics++
			st.log.Error("state lock poisoned, continuing with current state", "panic", r, "count", st.panics)
			err = fmt.Errorf("%w: %v", ErrPoisoned, r)
		}
	}()
	return fn(st.state)
}

// View runs fn with exclusive access for reading. fn must not retain s.
func (st *Store) View(fn func(s *GameState)) error {
	return st.Update(func(s *GameState) error {
		fn(s)
		return nil
	})
}

// Snapshot returns a deep copy of the current state.
func (st *Store) Snapshot() *GameState {
	var out *GameState
	if err := st.View(func(s *GameState) { out = s.Clone() }); err != nil {
		return New()
	}
	return out
}

// Replace swaps in a new state, e.g. after an import, and returns a
// stamped copy of it for persisting.
func (st *Store) Replace(next *GameState) *GameState {
	if next == nil {
		next = New()
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	st.state = next
	st.stamp()
	return next.Clone()
}

func (st *Store) stamp() {
	st.gen++
	st.state.Generation = st.gen
}

// Panics reports how many critical sections have panicked.
func (st *Store) Panics() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.panics
}
