package quotastore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/yanqian/solar-forecast/internal/domain/quota"
)

const logRowID = "default"

// SQLiteStore persists the call log in a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and if needed creates) the database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database dir: %w", err)
	}
	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_sync=FULL")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS api_call_log (
		id TEXT PRIMARY KEY,
		version INTEGER NOT NULL,
		today TEXT NOT NULL,
		calls_today INTEGER NOT NULL,
		last_reset DATETIME NOT NULL,
		history TEXT NOT NULL
	);`)
	return err
}

// Load implements quota.Store.
func (s *SQLiteStore) Load(ctx context.Context) (quota.CallLog, bool, error) {
	var (
		log       quota.CallLog
		lastReset string
		history   string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT version, today, calls_today, last_reset, history
		FROM api_call_log
		WHERE id = ?
	`, logRowID).Scan(&log.Version, &log.Today, &log.CallsToday, &lastReset, &history)
	if errors.Is(err, sql.ErrNoRows) {
		return quota.CallLog{}, false, nil
	}
	if err != nil {
		return quota.CallLog{}, false, fmt.Errorf("query call log: %w", err)
	}
	if log.LastReset, err = time.Parse(time.RFC3339Nano, lastReset); err != nil {
		return quota.CallLog{}, false, fmt.Errorf("parse last_reset: %w", err)
	}
	if err := json.Unmarshal([]byte(history), &log.History); err != nil {
		return quota.CallLog{}, false, fmt.Errorf("decode history: %w", err)
	}
	return log, true, nil
}

// Save implements quota.Store.
func (s *SQLiteStore) Save(ctx context.Context, log quota.CallLog) error {
	history, err := json.Marshal(nonNilHistory(log.History))
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO api_call_log (id, version, today, calls_today, last_reset, history)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			version = excluded.version,
			today = excluded.today,
			calls_today = excluded.calls_today,
			last_reset = excluded.last_reset,
			history = excluded.history
	`, logRowID, log.Version, log.Today, log.CallsToday, log.LastReset.Format(time.RFC3339Nano), string(history))
	if err != nil {
		return fmt.Errorf("save call log: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func nonNilHistory(h []quota.CallRecord) []quota.CallRecord {
	if h == nil {
		return []quota.CallRecord{}
	}
	return h
}

var _ quota.Store = (*SQLiteStore)(nil)
