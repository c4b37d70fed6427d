package input

import (
	"context"
	"log/slog"
	"time"
)

// Supervise runs listen and restarts it after backoff whenever it returns,
// until ctx is done. listen should block for as long as it is healthy.
func Supervise(ctx context.Context, name string, backoff time.Duration, logger *slog.Logger, listen func(context.Context) error) {
	if logger == nil {
		logger = slog.Default()
	}
	for restarts := 0; ; restarts++ {
		err := listen(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			logger.Error("listener stopped, restarting", "listener", name, "err", err, "backoff", backoff, "restarts", restarts)
		} else {
			logger.Warn("listener exited, restarting", "listener", name, "backoff", backoff, "restarts", restarts)
		}
		t := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}
