package quotastore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yanqian/solar-forecast/internal/domain/quota"
)

// PostgresStore persists the call log using pgx, for deployments sharing one budget.
type PostgresStore struct {
	pool *pgxpool.Pool
	name string
}

// NewPostgresStore constructs the store. name selects the row, letting several budgets share a table.
func NewPostgresStore(pool *pgxpool.Pool, name string) *PostgresStore {
	if name == "" {
		name = logRowID
	}
	return &PostgresStore{pool: pool, name: name}
}

// EnsureSchema creates the call log table when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS api_call_log (
			id TEXT PRIMARY KEY,
			version INTEGER NOT NULL,
			today TEXT NOT NULL,
			calls_today INTEGER NOT NULL,
			last_reset TIMESTAMPTZ NOT NULL,
			history JSONB NOT NULL DEFAULT '[]'::jsonb
		)
	`)
	return err
}

// Load implements quota.Store.
func (s *PostgresStore) Load(ctx context.Context) (quota.CallLog, bool, error) {
	var (
		log     quota.CallLog
		history []byte
	)
	err := s.pool.QueryRow(ctx, `
		SELECT version, today, calls_today, last_reset, history
		FROM api_call_log
		WHERE id = $1
	`, s.name).Scan(&log.Version, &log.Today, &log.CallsToday, &log.LastReset, &history)
	if errors.Is(err, pgx.ErrNoRows) {
		return quota.CallLog{}, false, nil
	}
	if err != nil {
		return quota.CallLog{}, false, err
	}
	if err := json.Unmarshal(history, &log.History); err != nil {
		return quota.CallLog{}, false, fmt.Errorf("decode history: %w", err)
	}
	return log, true, nil
}

// Save implements quota.Store.
func (s *PostgresStore) Save(ctx context.Context, log quota.CallLog) error {
	history, err := json.Marshal(nonNilHistory(log.History))
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO api_call_log (id, version, today, calls_today, last_reset, history)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			version = EXCLUDED.version,
			today = EXCLUDED.today,
			calls_today = EXCLUDED.calls_today,
			last_reset = EXCLUDED.last_reset,
			history = EXCLUDED.history
	`, s.name, log.Version, log.Today, log.CallsToday, log.LastReset, history)
	return err
}

var _ quota.Store = (*PostgresStore)(nil)
