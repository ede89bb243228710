package quota

import (
	"context"
	"time"
)

// LogVersion tags persisted call logs.
const LogVersion = 1

// Defaults observed for the OpenWeather One Call plan.
const (
	DefaultDailyQuota = 950
	DefaultHistoryCap = 1000
)

// CallRecord is one attempted external call.
type CallRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Endpoint  string    `json:"endpoint"`
	Success   bool      `json:"success"`
}

// CallLog is the persisted per-day counter.
type CallLog struct {
	Version    int          `json:"version"`
	Today      string       `json:"today"`
	CallsToday int          `json:"calls_today"`
	LastReset  time.Time    `json:"last_reset"`
	History    []CallRecord `json:"history"`
}

// Stats is the externally visible quota snapshot.
type Stats struct {
	CallsToday     int       `json:"calls_today"`
	MaxCallsPerDay int       `json:"max_calls_per_day"`
	RemainingCalls int       `json:"remaining_calls"`
	Today          string    `json:"today"`
	LastReset      time.Time `json:"last_reset"`
}

// Store persists the call log. Load reports false when nothing was stored yet.
type Store interface {
	Load(ctx context.Context) (CallLog, bool, error)
	Save(ctx context.Context, log CallLog) error
}

// Config tunes the limiter.
type Config struct {
	DailyQuota int
	HistoryCap int
	Location   *time.Location
}
