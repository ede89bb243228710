package bootstrap

import (
	"context"
	"log/slog"
	"time"

	"github.com/yanqian/solar-forecast/internal/domain/cache"
	"github.com/yanqian/solar-forecast/internal/infra/config"
)

// Janitor evicts cache entries older than the retention window from stores that do not expire
// entries on their own.
type Janitor struct {
	sweeper   cache.Sweeper
	retention time.Duration
	interval  time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// NewJanitor returns a janitor for store. Stores without a Sweep method (Valkey) yield a janitor
// whose passes are no-ops.
func NewJanitor(cfg *config.Config, store cache.Store, logger *slog.Logger) *Janitor {
	sweeper, _ := store.(cache.Sweeper)
	return &Janitor{
		sweeper:   sweeper,
		retention: cfg.Cache.Retention,
		interval:  cfg.Cache.JanitorInterval,
		logger:    logger.With("component", "cache.janitor"),
		now:       time.Now,
	}
}

// Enabled reports whether the store needs sweeping.
func (j *Janitor) Enabled() bool {
	return j.sweeper != nil && j.retention > 0
}

// SweepOnce removes entries written before now - retention.
func (j *Janitor) SweepOnce(ctx context.Context) (int, error) {
	if !j.Enabled() {
		return 0, nil
	}
	cutoff := j.now().Add(-j.retention)
	removed, err := j.sweeper.Sweep(ctx, cutoff)
	if err != nil {
		return removed, err
	}
	if removed > 0 {
		j.logger.Info("cache entries evicted", "removed", removed, "cutoff", cutoff)
	}
	return removed, nil
}

// Run sweeps on every tick until ctx is cancelled.
func (j *Janitor) Run(ctx context.Context) {
	if !j.Enabled() || j.interval <= 0 {
		return
	}
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := j.SweepOnce(ctx); err != nil {
				j.logger.Error("cache sweep failed", "error", err)
			}
		}
	}
}
