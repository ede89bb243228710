package quota

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/yanqian/solar-forecast/pkg/util"
)

// Limiter enforces the daily external call budget.
type Limiter struct {
	mu     sync.Mutex
	store  Store
	cfg    Config
	log    CallLog
	logger *slog.Logger
	now    func() time.Time
}

// NewLimiter loads the call log from store, or starts a fresh one, and applies day rollover.
func NewLimiter(ctx context.Context, cfg Config, store Store, logger *slog.Logger) (*Limiter, error) {
	return newLimiter(ctx, cfg, store, logger, time.Now)
}

func newLimiter(ctx context.Context, cfg Config, store Store, logger *slog.Logger, now func() time.Time) (*Limiter, error) {
	if cfg.DailyQuota <= 0 {
		cfg.DailyQuota = DefaultDailyQuota
	}
	if cfg.HistoryCap <= 0 {
		cfg.HistoryCap = DefaultHistoryCap
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	l := &Limiter{
		store:  store,
		cfg:    cfg,
		logger: logger.With("component", "quota.limiter"),
		now:    now,
	}

	stored, ok, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load call log: %w", err)
	}
	if ok && stored.Version != 0 && stored.Version != LogVersion {
		return nil, fmt.Errorf("call log version %d not supported", stored.Version)
	}
	if !ok {
		current := l.localNow()
		l.log = CallLog{
			Version:   LogVersion,
			Today:     util.FormatDate(current),
			LastReset: current,
		}
		if err := l.store.Save(ctx, l.log); err != nil {
			return nil, fmt.Errorf("save call log: %w", err)
		}
		return l, nil
	}

	stored.Version = LogVersion
	l.log = stored
	if l.rolloverLocked() {
		if err := l.store.Save(ctx, l.log); err != nil {
			return nil, fmt.Errorf("save call log: %w", err)
		}
	}
	return l, nil
}

// Reserve charges one call against today's budget if it fits. Checking and charging happen under
// one lock, so concurrent callers never overspend the quota. A reservation stays charged even if
// the call later fails. The returned error reports a persistence failure; the reservation holds.
func (l *Limiter) Reserve(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rolloverLocked()
	if l.log.CallsToday >= l.cfg.DailyQuota {
		return false, nil
	}
	l.log.CallsToday++
	if err := l.store.Save(ctx, l.log); err != nil {
		return true, fmt.Errorf("save call log: %w", err)
	}
	return true, nil
}

// Complete appends the outcome of a reserved call to the bounded history.
func (l *Limiter) Complete(ctx context.Context, endpoint string, success bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.log.History = append(l.log.History, CallRecord{
		Timestamp: l.localNow(),
		Endpoint:  endpoint,
		Success:   success,
	})
	if over := len(l.log.History) - l.cfg.HistoryCap; over > 0 {
		l.log.History = append([]CallRecord(nil), l.log.History[over:]...)
	}

	l.logger.Info("external api call recorded", "endpoint", endpoint, "success", success, "calls_today", l.log.CallsToday, "quota", l.cfg.DailyQuota)
	if err := l.store.Save(ctx, l.log); err != nil {
		return fmt.Errorf("save call log: %w", err)
	}
	return nil
}

// Stats returns the current quota snapshot.
func (l *Limiter) Stats(ctx context.Context) Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.rolloverLocked() {
		l.persistLocked(ctx)
	}
	remaining := l.cfg.DailyQuota - l.log.CallsToday
	if remaining < 0 {
		remaining = 0
	}
	return Stats{
		CallsToday:     l.log.CallsToday,
		MaxCallsPerDay: l.cfg.DailyQuota,
		RemainingCalls: remaining,
		Today:          l.log.Today,
		LastReset:      l.log.LastReset,
	}
}

// History returns a copy of the bounded call history, oldest first.
func (l *Limiter) History() []CallRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]CallRecord(nil), l.log.History...)
}

func (l *Limiter) rolloverLocked() bool {
	current := l.localNow()
	today := util.FormatDate(current)
	if l.log.Today == today {
		return false
	}
	l.logger.Info("daily quota reset", "previous_day", l.log.Today, "calls", l.log.CallsToday, "today", today)
	l.log.Today = today
	l.log.CallsToday = 0
	l.log.LastReset = current
	return true
}

func (l *Limiter) persistLocked(ctx context.Context) {
	if err := l.store.Save(ctx, l.log); err != nil {
		l.logger.Warn("persist call log failed", "error", err)
	}
}

func (l *Limiter) localNow() time.Time {
	return l.now().In(l.cfg.Location)
}
