package main

import (
	"flag"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"time"

	"github.com/xtding233/reef-engine/internal/input"
	"github.com/xtding233/reef-engine/internal/platform/config"
)

// Config is the process configuration. Every field can come from the
// environment and be overridden by a flag.
type Config struct {
	SaveDir       string        `env:"REEF_SAVE_DIR"`
	TuningFile    string        `env:"REEF_TUNING_FILE"`
	TuningPoll    time.Duration `env:"REEF_TUNING_POLL" envDefault:"2s"`
	CatalogFile   string        `env:"REEF_CATALOG_FILE"`
	HTTPAddr      string        `env:"REEF_HTTP_ADDR" envDefault:"127.0.0.1:7878"`
	Origins       []string      `env:"REEF_ALLOWED_ORIGINS" envSeparator:","`
	HealthAddr    string        `env:"REEF_HEALTH_ADDR" envDefault:"127.0.0.1:7879"`
	HistoryDB     string        `env:"REEF_HISTORY_DB"` // "off" disables; empty means <save dir>/history.db
	InputFIFO     string        `env:"REEF_INPUT_FIFO"`
	AudioDetector string        `env:"REEF_AUDIO_DETECTOR" envDefault:"auto"`
	AudioPoll     time.Duration `env:"REEF_AUDIO_POLL" envDefault:"1s"`
	LogLevel      string        `env:"REEF_LOG_LEVEL" envDefault:"info"`
}

func loadConfig(args []string) (Config, error) {
	var cfg Config
	fs := flag.NewFlagSet("reefd", flag.ContinueOnError)
	str := func(name, usage string, dst *string) {
		fs.Func(name, usage, func(v string) error { *dst = v; return nil })
	}
	dur := func(name, usage string, dst *time.Duration) {
		fs.Func(name, usage, func(v string) error {
			d, err := time.ParseDuration(v)
			if err != nil {
				return err
			}
			*dst = d
			return nil
		})
	}
	str("save-dir", "directory holding save.reef (default: user config dir)", &cfg.SaveDir)
	str("tuning", "YAML tuning override file", &cfg.TuningFile)
	dur("tuning-poll", "tuning file poll interval", &cfg.TuningPoll)
	str("catalog", "YAML creature catalog (default: built in)", &cfg.CatalogFile)
	str("http", "command/event listen address", &cfg.HTTPAddr)
	fs.Func("origins", "comma-separated browser origins allowed to send commands", func(v string) error {
		cfg.Origins = strings.Split(v, ",")
		return nil
	})
	str("health", "gRPC health listen address (empty disables)", &cfg.HealthAddr)
	str("history", `history database path, or "off"`, &cfg.HistoryDB)
	str("input", "FIFO or pipe carrying k/c/s input lines", &cfg.InputFIFO)
	str("audio", "audio detector: auto, proc, on, off", &cfg.AudioDetector)
	dur("audio-poll", "audio detector poll interval", &cfg.AudioPoll)
	str("log-level", "debug, info, warn or error", &cfg.LogLevel)

	if err := config.ParseConfigFromArgs(&cfg, fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func parseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}

func audioDetector(name string) (input.Detector, error) {
	switch strings.ToLower(name) {
	case "", "auto":
		if runtime.GOOS == "linux" {
			return input.ProcAsoundDetector{}, nil
		}
		return input.StaticDetector(false), nil
	case "proc":
		return input.ProcAsoundDetector{}, nil
	case "on":
		return input.StaticDetector(true), nil
	case "off":
		return input.StaticDetector(false), nil
	}
	return nil, fmt.Errorf("unknown audio detector %q", name)
}
