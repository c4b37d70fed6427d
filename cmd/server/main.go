// Command reefd runs the reef progression engine: it turns input activity
// into energy, rolls discoveries and keeps the save file current.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/xtding233/reef-engine/internal/catalog"
	"github.com/xtding233/reef-engine/internal/engine"
	"github.com/xtding233/reef-engine/internal/history"
	"github.com/xtding233/reef-engine/internal/input"
	"github.com/xtding233/reef-engine/internal/ipc"
	"github.com/xtding233/reef-engine/internal/notify"
	"github.com/xtding233/reef-engine/internal/platform/otel"
	"github.com/xtding233/reef-engine/internal/save"
	"github.com/xtding233/reef-engine/internal/state"
	"github.com/xtding233/reef-engine/internal/tuning"
)

var version = "dev"

func main() {
	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		slog.Error("config", "err", err)
		os.Exit(2)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("reefd exited", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg Config, logger *slog.Logger) error {
	shutdownTracing, err := otel.Setup(ctx, "reefd", version)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn("otel shutdown", "err", err)
		}
	}()

	loader := tuning.NewLoader(cfg.TuningFile)
	tu, err := loader.Load()
	if err != nil {
		return err
	}
	cat, err := loadCatalog(cfg.CatalogFile)
	if err != nil {
		return err
	}
	detector, err := audioDetector(cfg.AudioDetector)
	if err != nil {
		return err
	}

	dir := cfg.SaveDir
	if dir == "" {
		if dir, err = save.DefaultDir(); err != nil {
			return err
		}
	}
	saves := save.NewManager(save.PathsIn(dir), save.Options{
		AppVersion: version,
		Sanitize:   sanitizeOptions(tu),
		Logger:     logger,
	})
	store := state.NewStore(saves.LoadOrDefault(ctx), logger)

	var (
		recorder engine.Recorder
		hist     ipc.History
		index    *history.SQLiteIndex
	)
	if cfg.HistoryDB != "off" {
		path := cfg.HistoryDB
		if path == "" {
			path = filepath.Join(dir, "history.db")
		}
		if index, err = history.OpenSQLite(path, logger); err != nil {
			logger.Warn("history disabled", "path", path, "err", err)
		} else {
			recorder, hist = index, index
			defer index.Close()
		}
	}

	hub := notify.NewHub(logger)
	counters := &input.Counters{}
	audio := &input.AudioFlag{}
	sched := engine.New(engine.Config{
		Store:     store,
		Catalog:   cat,
		Counters:  counters,
		Audio:     audio,
		Tuning:    tu,
		Persister: saves,
		Notifier:  hub,
		Recorder:  recorder,
		Logger:    logger,
	})
	svc := ipc.NewService(ipc.Config{
		Store:     store,
		Saves:     saves,
		Notifier:  hub,
		Counters:  counters,
		History:   hist,
		Threshold: func() uint32 { return sched.Tuning().EnergyThreshold },
		Logger:    logger,
	})

	var hc *healthEndpoint
	if cfg.HealthAddr != "" {
		if hc, err = startHealth(cfg.HealthAddr, logger); err != nil {
			return err
		}
		defer hc.stop()
	}

	var wg sync.WaitGroup
	goRun := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}
	goRun(func() { sched.Run(ctx) })
	goRun(func() {
		(&input.AudioPoller{Detector: detector, Flag: audio, Interval: cfg.AudioPoll, Logger: logger}).Run(ctx)
	})
	applyTuning := func(t tuning.Tuning) {
		sched.SetTuning(t)
		saves.SetSanitizeOptions(sanitizeOptions(t))
	}
	goRun(func() { tuning.Watch(ctx, loader, cfg.TuningPoll, applyTuning, logger) })
	if cfg.InputFIFO != "" {
		goRun(func() {
			input.Supervise(ctx, "input", tu.RestartBackoff, logger, input.FileListener(cfg.InputFIFO, counters))
		})
	}
	goRun(func() {
		input.Supervise(ctx, "http", tu.RestartBackoff, logger, serveHTTP(cfg.HTTPAddr, ipc.Handler(svc, hub.Handler(), cfg.Origins...)))
	})
	hc.setServing(true)
	logger.Info("reefd started", "version", version, "save_dir", dir, "http", cfg.HTTPAddr, "creatures", cat.Len())

	<-ctx.Done()
	hc.setServing(false)
	wg.Wait()

	if err := svc.SaveNow(context.Background()); err != nil {
		return err
	}
	logger.Info("reefd stopped, state saved")
	return nil
}

func sanitizeOptions(t tuning.Tuning) state.SanitizeOptions {
	return state.SanitizeOptions{MaxPoolEnergy: t.MaxPoolEnergy, Ladder: t.Ladder}
}

func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Default()
	}
	return catalog.LoadFile(path)
}

// serveHTTP returns a listener func for input.Supervise.
func serveHTTP(addr string, h http.Handler) func(context.Context) error {
	return func(ctx context.Context) error {
		srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 5 * time.Second}
		stop := context.AfterFunc(ctx, func() {
			sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		})
		defer stop()
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
