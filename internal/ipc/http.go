package ipc

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/xtding233/reef-engine/internal/notify"
	"github.com/xtding233/reef-engine/internal/save"
)

type okResp struct {
	OK  bool   `json:"ok"`
	Err string `json:"err,omitempty"`
}

func parseFloat(r *http.Request, key string) (float64, bool, string) {
	s := r.URL.Query().Get(key)
	if s == "" {
		return 0, false, ""
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false, "invalid " + key
	}
	return v, true, ""
}

func parseInt(r *http.Request, key string) (int, bool, string) {
	s := r.URL.Query().Get(key)
	if s == "" {
		return 0, false, ""
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, false, "invalid " + key
	}
	return v, true, ""
}

func parseUint(r *http.Request, key string) (uint64, bool, string) {
	s := r.URL.Query().Get(key)
	if s == "" {
		return 0, false, ""
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, false, "invalid " + key
	}
	return v, true, ""
}

func parseBool(r *http.Request, key string) (bool, bool, string) {
	s := r.URL.Query().Get(key)
	if s == "" {
		return false, false, ""
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, false, "invalid " + key
	}
	return v, true, ""
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeResult maps a command error onto a status code.
func writeResult(w http.ResponseWriter, err error) {
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, okResp{OK: true})
	case errors.Is(err, ErrOutOfRange), errors.Is(err, ErrUnknownSetting), errors.Is(err, save.ErrInvalidDocument):
		writeJSON(w, http.StatusBadRequest, okResp{Err: err.Error()})
	case errors.Is(err, ErrHistoryDisabled):
		writeJSON(w, http.StatusNotFound, okResp{Err: err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, okResp{Err: err.Error()})
	}
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, okResp{Err: msg})
}

// Handler routes the HTTP transport. events, when non-nil, serves the
// websocket notification stream. Every route is limited to loopback callers,
// and browser requests only pass when their Origin is in allowedOrigins.
func Handler(s *Service, events http.Handler, allowedOrigins ...string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /state", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.State())
	})
	mux.HandleFunc("POST /settings/{name}", s.handleSetting)
	mux.HandleFunc("POST /reset", func(w http.ResponseWriter, r *http.Request) {
		writeResult(w, s.Reset(r.Context()))
	})
	mux.HandleFunc("POST /save", func(w http.ResponseWriter, r *http.Request) {
		writeResult(w, s.SaveNow(r.Context()))
	})
	mux.HandleFunc("POST /import", func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Query().Get("path")
		if path == "" {
			badRequest(w, "missing param path")
			return
		}
		writeResult(w, s.Import(r.Context(), path))
	})
	mux.HandleFunc("POST /export", func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Query().Get("path")
		if path == "" {
			badRequest(w, "missing param path")
			return
		}
		writeResult(w, s.Export(r.Context(), path))
	})
	mux.HandleFunc("POST /input", func(w http.ResponseWriter, r *http.Request) {
		keys, _, msg := parseUint(r, "keys")
		if msg != "" {
			badRequest(w, msg)
			return
		}
		clicks, _, msg := parseUint(r, "clicks")
		if msg != "" {
			badRequest(w, msg)
			return
		}
		s.RecordInput(keys, clicks)
		writeResult(w, nil)
	})
	mux.HandleFunc("GET /history", func(w http.ResponseWriter, r *http.Request) {
		limit, _, msg := parseInt(r, "limit")
		if msg != "" {
			badRequest(w, msg)
			return
		}
		entries, err := s.RecentDiscoveries(r.Context(), limit)
		if err != nil {
			writeResult(w, err)
			return
		}
		writeJSON(w, http.StatusOK, entries)
	})
	if events != nil {
		mux.Handle("GET /events", events)
	}
	return guard(mux, allowedOrigins, s.log)
}

func normalizeOrigin(o string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(o)), "/")
}

// guard rejects non-loopback peers and browser requests from origins that
// are not allowed. Requests from non-browser clients carry no Origin and no
// cross-site Sec-Fetch-Site, and pass.
func guard(next http.Handler, allowedOrigins []string, logger *slog.Logger) http.Handler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o = normalizeOrigin(o); o != "" {
			allowed[o] = true
		}
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !notify.IsLoopbackRemote(r.RemoteAddr) {
			logger.Warn("rejected non-loopback request", "remote", r.RemoteAddr, "path", r.URL.Path)
			writeJSON(w, http.StatusForbidden, okResp{Err: "loopback only"})
			return
		}
		origin := normalizeOrigin(r.Header.Get("Origin"))
		site := r.Header.Get("Sec-Fetch-Site")
		fromBrowser := origin != "" || (site != "" && site != "none")
		if fromBrowser && !allowed[origin] {
			logger.Warn("rejected browser request", "origin", origin, "fetch_site", site, "path", r.URL.Path)
			writeJSON(w, http.StatusForbidden, okResp{Err: "origin not allowed"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Service) handleSetting(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	switch name := r.PathValue("name"); name {
	case "send_scores", "sound_enabled":
		v, ok, msg := parseBool(r, "enabled")
		if !ok {
			badRequest(w, orMissing(msg, "enabled"))
			return
		}
		if name == "send_scores" {
			writeResult(w, s.SetSendScores(ctx, v))
		} else {
			writeResult(w, s.SetSoundEnabled(ctx, v))
		}
	case "music_volume":
		v, ok, msg := parseFloat(r, "volume")
		if !ok {
			badRequest(w, orMissing(msg, "volume"))
			return
		}
		writeResult(w, s.SetMusicVolume(ctx, v))
	case "size_index":
		v, ok, msg := parseInt(r, "index")
		if !ok {
			badRequest(w, orMissing(msg, "index"))
			return
		}
		writeResult(w, s.SetSizeIndex(ctx, v))
	case "day_night_cycle":
		writeResult(w, s.SetDayNightCycle(ctx, r.URL.Query().Get("cycle")))
	case "close_behavior":
		writeResult(w, s.SetCloseBehavior(ctx, r.URL.Query().Get("behavior")))
	case "message_bottles":
		enabled, ok, msg := parseBool(r, "enabled")
		if !ok {
			badRequest(w, orMissing(msg, "enabled"))
			return
		}
		prompted, _, msg := parseBool(r, "prompted")
		if msg != "" {
			badRequest(w, msg)
			return
		}
		writeResult(w, s.SetMessageBottles(ctx, enabled, prompted))
	case "hidden_creatures":
		var ids []string
		if raw := r.URL.Query().Get("ids"); raw != "" {
			ids = strings.Split(raw, ",")
		}
		writeResult(w, s.SetHiddenCreatures(ctx, ids))
	case "position":
		x, okX, msgX := parseFloat(r, "x")
		y, okY, msgY := parseFloat(r, "y")
		if !okX || !okY {
			badRequest(w, orMissing(msgX+msgY, "x/y"))
			return
		}
		writeResult(w, s.SetPosition(x, y))
	default:
		writeResult(w, fmt.Errorf("%q: %w", name, ErrUnknownSetting))
	}
}

func orMissing(msg, key string) string {
	if msg != "" {
		return msg
	}
	return "missing param " + key
}
