package save

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/zstd"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/xtding233/reef-engine/internal/state"
)

var tracer = otel.Tracer("github.com/xtding233/reef-engine/internal/save")

const (
	FileName = "save.reef"
	AppDir   = "ascii-reef"
)

// Paths are the three files a save directory holds.
type Paths struct {
	Main   string
	Backup string
	Temp   string
}

// PathsIn returns the save file layout inside dir.
func PathsIn(dir string) Paths {
	main := filepath.Join(dir, FileName)
	return Paths{Main: main, Backup: main + ".bak", Temp: main + ".tmp"}
}

// DefaultDir is the per-user configuration directory for saves.
func DefaultDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, AppDir), nil
}

// Source says which file a state was loaded from.
type Source string

const (
	SourceMain    Source = "main"
	SourceBackup  Source = "backup"
	SourceDefault Source = "default"
)

type Options struct {
	AppVersion string
	Sanitize   state.SanitizeOptions
	Logger     *slog.Logger
	Now        func() time.Time
}

// Manager reads and writes the save files. Save calls are serialized and a
// snapshot older than the last one written is dropped.
type Manager struct {
	paths    Paths
	opts     Options
	log      *slog.Logger
	sanitize atomic.Pointer[state.SanitizeOptions]

	mu      sync.Mutex
	written uint64 // generation of the last snapshot on disk
}

func NewManager(paths Paths, opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	m := &Manager{paths: paths, opts: opts, log: opts.Logger}
	m.SetSanitizeOptions(opts.Sanitize)
	return m
}

func (m *Manager) Paths() Paths { return m.paths }

// SetSanitizeOptions replaces the limits used by later loads and imports,
// e.g. after a tuning reload.
func (m *Manager) SetSanitizeOptions(o state.SanitizeOptions) {
	if o.Logger == nil {
		o.Logger = m.opts.Logger
	}
	if o.Now == nil {
		o.Now = m.opts.Now
	}
	m.sanitize.Store(&o)
}

// Save writes s to the temp file, copies the current main file to the
// backup (best effort), then renames the temp file over the main file.
func (m *Manager) Save(ctx context.Context, s *state.GameState) (err error) {
	_, span := tracer.Start(ctx, "save.Save")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	m.mu.Lock()
	defer m.mu.Unlock()

	if s.Generation != 0 && s.Generation < m.written {
		m.log.Debug("skipping stale save", "generation", s.Generation, "written", m.written)
		span.SetAttributes(attribute.Bool("save.stale", true))
		return nil
	}

	now := m.opts.Now().UTC()
	doc := FromState(s)
	doc.Meta = Meta{Created: Timestamp{m.createdAt(now)}, LastSaved: Timestamp{now}, AppVersion: m.opts.AppVersion}
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode save: %w", err)
	}
	span.SetAttributes(attribute.Int("save.bytes", len(b)))

	if err := os.MkdirAll(filepath.Dir(m.paths.Main), 0o755); err != nil {
		return fmt.Errorf("create save dir: %w", err)
	}
	if err := writeSynced(m.paths.Temp, b); err != nil {
		return fmt.Errorf("write temp save: %w", err)
	}
	if _, err := os.Stat(m.paths.Main); err == nil {
		if err := copyFile(m.paths.Main, m.paths.Backup); err != nil {
			m.log.Warn("save backup failed", "path", m.paths.Backup, "err", err)
		}
	}
	if err := os.Rename(m.paths.Temp, m.paths.Main); err != nil {
		return fmt.Errorf("rename save: %w", err)
	}
	m.written = max(m.written, s.Generation)
	return nil
}

// createdAt keeps meta.created from the existing main file.
func (m *Manager) createdAt(now time.Time) time.Time {
	b, err := os.ReadFile(m.paths.Main)
	if err != nil {
		return now
	}
	var prev struct {
		Meta struct {
			Created Timestamp `json:"created"`
		} `json:"meta"`
	}
	if json.Unmarshal(b, &prev) != nil || prev.Meta.Created.IsZero() {
		return now
	}
	return prev.Meta.Created.Time
}

// Load reads the main file, or the backup when the main file is absent, or
// returns a default state when neither exists. A main file that exists but
// fails to parse is an error; the backup is not tried.
func (m *Manager) Load(ctx context.Context) (_ *state.GameState, _ Source, err error) {
	_, span := tracer.Start(ctx, "save.Load")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	for _, c := range []struct {
		path string
		src  Source
	}{{m.paths.Main, SourceMain}, {m.paths.Backup, SourceBackup}} {
		b, err := os.ReadFile(c.path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, c.src, fmt.Errorf("read %s save: %w", c.src, err)
		}
		s, err := m.Decode(b)
		if err != nil {
			return nil, c.src, err
		}
		span.SetAttributes(attribute.String("save.source", string(c.src)))
		return s, c.src, nil
	}
	span.SetAttributes(attribute.String("save.source", string(SourceDefault)))
	return state.New(), SourceDefault, nil
}

// LoadOrDefault is the startup path: any load failure degrades to a fresh
// state and is only logged.
func (m *Manager) LoadOrDefault(ctx context.Context) *state.GameState {
	s, src, err := m.Load(ctx)
	if err != nil {
		m.log.Error("load save failed, starting fresh", "source", src, "err", err)
		return state.New()
	}
	m.log.Info("save loaded", "source", src, "creatures", len(s.Collection), "discoveries", s.TotalDiscoveries)
	return s
}

// Decode validates, parses, migrates and sanitizes a document.
func (m *Manager) Decode(b []byte) (*state.GameState, error) {
	doc, err := Parse(b, displayDoc(state.DefaultDisplay()))
	if err != nil {
		return nil, err
	}
	if doc.Migrate() {
		m.log.Info("migrated save document", "version", doc.Version)
	}
	s := doc.State()
	state.Sanitize(s, *m.sanitize.Load())
	return s, nil
}

// Import reads a document from path (zstd-compressed when it ends in .zst).
// The caller installs the returned state and saves it.
func (m *Manager) Import(ctx context.Context, path string) (_ *state.GameState, err error) {
	_, span := tracer.Start(ctx, "save.Import")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	b, err := readMaybeCompressed(path)
	if err != nil {
		return nil, fmt.Errorf("read import: %w", err)
	}
	return m.Decode(b)
}

// Export saves s and copies the main file to dst, compressing it when dst
// ends in .zst.
func (m *Manager) Export(ctx context.Context, s *state.GameState, dst string) error {
	if err := m.Save(ctx, s); err != nil {
		return err
	}
	_, span := tracer.Start(ctx, "save.Export")
	defer span.End()

	m.mu.Lock()
	defer m.mu.Unlock()
	if isCompressed(dst) {
		b, err := os.ReadFile(m.paths.Main)
		if err != nil {
			return fmt.Errorf("read save: %w", err)
		}
		return writeCompressed(dst, b)
	}
	if err := copyFile(m.paths.Main, dst); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	return nil
}

func isCompressed(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".zst")
}

func readMaybeCompressed(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if !isCompressed(path) {
		return io.ReadAll(f)
	}
	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return io.ReadAll(dec)
}

func writeCompressed(path string, b []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		f.Close()
		return err
	}
	if _, err := enc.Write(b); err != nil {
		enc.Close()
		f.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeSynced(path string, b []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(b); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
