// Package history keeps an append-only SQLite index of discoveries.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"
)

// Entry is one recorded discovery.
type Entry struct {
	CreatureID       string    `json:"creatureId"`
	Pool             string    `json:"pool"`
	Rarity           string    `json:"rarity"`
	IsNew            bool      `json:"isNew"`
	At               time.Time `json:"at"`
	TotalDiscoveries uint32    `json:"totalDiscoveries"`
}

type SQLiteIndex struct {
	db  *sql.DB
	log *slog.Logger

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	// sendMu is held for reading by every send on ch and for writing
	// around close(ch).
	sendMu sync.RWMutex
	closed bool

	dropped atomic.Uint64
}

type reqKind int

const (
	reqInsert reqKind = iota + 1
	reqClear
	reqFlush
)

type req struct {
	kind  reqKind
	entry Entry
	done  chan error
}

// OpenSQLite opens (or creates) the index at path and starts its writer.
func OpenSQLite(path string, logger *slog.Logger) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{db: db, log: logger, ch: make(chan req, 4096)}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS discoveries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			creature_id TEXT NOT NULL,
			pool TEXT NOT NULL,
			rarity TEXT NOT NULL,
			is_new INTEGER NOT NULL,
			at TEXT NOT NULL,
			total INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_discoveries_creature ON discoveries(creature_id);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.sendMu.Lock()
		s.closed = true
		close(s.ch)
		s.sendMu.Unlock()
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// Enqueue queues an entry without blocking. A full queue drops the entry;
// the save file stays the source of truth.
func (s *SQLiteIndex) Enqueue(e Entry) {
	if s == nil {
		return
	}
	s.sendMu.RLock()
	defer s.sendMu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- req{kind: reqInsert, entry: e}:
	default:
		if n := s.dropped.Add(1); n == 1 || n%100 == 0 {
			s.log.Warn("history queue full, dropping entry", "creature", e.CreatureID, "dropped", n)
		}
	}
}

// Clear deletes every entry, ordered after anything already queued.
func (s *SQLiteIndex) Clear(ctx context.Context) error {
	return s.sync(ctx, reqClear)
}

// Flush waits until everything queued so far is written.
func (s *SQLiteIndex) Flush(ctx context.Context) error {
	return s.sync(ctx, reqFlush)
}

func (s *SQLiteIndex) sync(ctx context.Context, kind reqKind) error {
	if s == nil {
		return nil
	}
	done := make(chan error, 1)
	s.sendMu.RLock()
	if s.closed {
		s.sendMu.RUnlock()
		return nil
	}
	select {
	case s.ch <- req{kind: kind, done: done}:
		s.sendMu.RUnlock()
	case <-ctx.Done():
		s.sendMu.RUnlock()
		return ctx.Err()
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dropped reports how many entries were dropped on a full queue.
func (s *SQLiteIndex) Dropped() uint64 { return s.dropped.Load() }

// Recent returns up to limit entries, newest first.
func (s *SQLiteIndex) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT creature_id, pool, rarity, is_new, at, total FROM discoveries ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var (
			e     Entry
			isNew int
			at    string
		)
		if err := rows.Scan(&e.CreatureID, &e.Pool, &e.Rarity, &isNew, &at, &e.TotalDiscoveries); err != nil {
			return nil, err
		}
		e.IsNew = isNew != 0
		e.At, _ = time.Parse(time.RFC3339Nano, at)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteIndex) loop() {
	for r := range s.ch {
		var err error
		switch r.kind {
		case reqInsert:
			err = s.insert(r.entry)
		case reqClear:
			_, err = s.db.Exec(`DELETE FROM discoveries`)
		case reqFlush:
		}
		if err != nil {
			s.log.Error("history write failed", "kind", r.kind, "err", err)
		}
		if r.done != nil {
			r.done <- err
		}
	}
}

func (s *SQLiteIndex) insert(e Entry) error {
	isNew := 0
	if e.IsNew {
		isNew = 1
	}
	_, err := s.db.Exec(
		`INSERT INTO discoveries(creature_id, pool, rarity, is_new, at, total) VALUES (?, ?, ?, ?, ?, ?)`,
		e.CreatureID, e.Pool, e.Rarity, isNew, e.At.UTC().Format(time.RFC3339Nano), e.TotalDiscoveries,
	)
	return err
}
