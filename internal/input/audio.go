package input

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"
)

// AudioFlag is the "something is playing" signal.
type AudioFlag struct {
	active atomic.Bool
}

func (f *AudioFlag) Set(v bool) { f.active.Store(v) }

func (f *AudioFlag) Active() bool { return f.active.Load() }

// Detector reports whether audio is currently playing.
type Detector interface {
	Playing() (bool, error)
}

// StaticDetector always returns its own value.
type StaticDetector bool

func (s StaticDetector) Playing() (bool, error) { return bool(s), nil }

// ProcAsoundDetector inspects ALSA substream status files under Root
// (default /proc/asound) for a RUNNING stream.
type ProcAsoundDetector struct {
	Root string
}

func (d ProcAsoundDetector) Playing() (bool, error) {
	root := d.Root
	if root == "" {
		root = "/proc/asound"
	}
	matches, err := filepath.Glob(filepath.Join(root, "card*", "pcm*", "sub*", "status"))
	if err != nil {
		return false, err
	}
	for _, m := range matches {
		b, err := os.ReadFile(m)
		if err != nil {
			continue
		}
		if bytes.Contains(b, []byte("RUNNING")) {
			return true, nil
		}
	}
	return false, nil
}

// AudioPoller samples a Detector on a fixed period and stores the result.
type AudioPoller struct {
	Detector Detector
	Flag     *AudioFlag
	Interval time.Duration
	Logger   *slog.Logger
}

// Run polls until ctx is done. A detector error reads as inactive.
func (p *AudioPoller) Run(ctx context.Context) {
	interval := p.Interval
	if interval <= 0 {
		interval = time.Second
	}
	log := p.Logger
	if log == nil {
		log = slog.Default()
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	failing := false
	for {
		playing, err := p.Detector.Playing()
		if err != nil {
			if !failing {
				log.Warn("audio detector failed, treating as silent", "err", err)
			}
			failing = true
			playing = false
		} else {
			failing = false
		}
		p.Flag.Set(playing)

		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}
