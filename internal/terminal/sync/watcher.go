package sync

import (
	"context"
	"log/slog"
	"time"

	"github.com/tapcard/terminal/internal/terminal/domain"
	"github.com/tapcard/terminal/internal/terminal/store"
)

// Watcher probes connectivity on an interval and triggers a full sync on the
// offline→online edge when the user's settings enable sync-on-connection.
// Edge triggering keeps a healthy connection from causing a refresh storm.
type Watcher struct {
	engine   *Engine
	prober   Prober
	repo     *store.Repository
	defaults domain.Settings
	interval time.Duration
	logger   *slog.Logger
}

func NewWatcher(engine *Engine, prober Prober, repo *store.Repository, defaults domain.Settings, interval time.Duration, logger *slog.Logger) *Watcher {
	return &Watcher{
		engine:   engine,
		prober:   prober,
		repo:     repo,
		defaults: defaults,
		interval: interval,
		logger:   logger.With("component", "sync_watcher"),
	}
}

// Run blocks until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	wasOnline := !w.prober.DecideOfflineMode(ctx)
	w.logger.InfoContext(ctx, "connectivity watcher started", "interval", w.interval.String(), "online", wasOnline)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("connectivity watcher stopping")
			return ctx.Err()
		case <-ticker.C:
			online := !w.prober.DecideOfflineMode(ctx)
			if online && !wasOnline {
				w.logger.InfoContext(ctx, "connectivity regained")
				if w.syncOnConnection(ctx) {
					if result, err := w.engine.PerformFullSync(ctx, false); err != nil {
						w.logger.ErrorContext(ctx, "auto sync failed", "error", err)
					} else {
						w.logger.InfoContext(ctx, "auto sync finished",
							"synced", result.TransactionsSynced, "failed", result.TransactionsFailed, "message", result.Message)
					}
				}
			}
			wasOnline = online
		}
	}
}

func (w *Watcher) syncOnConnection(ctx context.Context) bool {
	settings, found, err := w.repo.Settings(ctx)
	if err != nil {
		w.logger.WarnContext(ctx, "failed to read settings, using defaults", "error", err)
		return w.defaults.SyncOnConnection
	}
	if !found {
		return w.defaults.SyncOnConnection
	}
	return settings.SyncOnConnection
}
