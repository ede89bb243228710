package publish

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"

	"github.com/yanqian/solar-forecast/internal/domain/forecast"
)

const archiveTable = "solar_forecast_hourly"

const createArchiveTable = `
CREATE TABLE IF NOT EXISTS ` + archiveTable + ` (
	run_id         String,
	generated_at   DateTime64(3, 'UTC'),
	slot           DateTime64(3, 'UTC'),
	lat            Float64,
	lon            Float64,
	predicted_kw   Float64,
	is_daylight    UInt8,
	is_fallback    UInt8,
	weather_source LowCardinality(String),
	error          String
) ENGINE = MergeTree
ORDER BY (slot, run_id)`

// ArchiveConfig holds ClickHouse connection settings.
type ArchiveConfig struct {
	Addr     string
	Database string
	Username string
	Password string
}

// execer is the subset of driver.Conn used by the archive.
type execer interface {
	Exec(ctx context.Context, query string, args ...any) error
}

// ClickHouseArchive stores every computed hourly prediction so it can be compared with measured
// generation later.
type ClickHouseArchive struct {
	conn   execer
	close  func() error
	logger *slog.Logger
}

// NewClickHouseArchive connects and makes sure the archive table exists.
func NewClickHouseArchive(ctx context.Context, cfg ArchiveConfig, logger *slog.Logger) (*ClickHouseArchive, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout: 5 * time.Second,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open clickhouse: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}
	if err := conn.Exec(ctx, createArchiveTable); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("create %s: %w", archiveTable, err)
	}
	a := newClickHouseArchive(conn, logger)
	a.close = conn.Close
	a.logger.Info("forecast archive enabled", "addr", cfg.Addr, "database", cfg.Database)
	return a, nil
}

func newClickHouseArchive(conn execer, logger *slog.Logger) *ClickHouseArchive {
	return &ClickHouseArchive{conn: conn, logger: logger.With("component", "publish.clickhouse")}
}

// Publish implements forecast.Publisher. Results without records are skipped.
func (a *ClickHouseArchive) Publish(ctx context.Context, res forecast.Result) error {
	if len(res.Data) == 0 {
		return nil
	}
	query, args := archiveInsert(res)
	if err := a.conn.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("archive forecast %s: %w", res.Metadata.RunID, err)
	}
	a.logger.Debug("forecast archived", "run_id", res.Metadata.RunID, "rows", len(res.Data))
	return nil
}

// Close releases the connection.
func (a *ClickHouseArchive) Close() {
	if a.close == nil {
		return
	}
	if err := a.close(); err != nil {
		a.logger.Error("close clickhouse", "error", err)
	}
}

func archiveInsert(res forecast.Result) (string, []any) {
	const columns = 10
	source := forecast.SourceNone
	if res.WeatherQuality != nil {
		source = res.WeatherQuality.Source
	}

	var b strings.Builder
	b.WriteString("INSERT INTO " + archiveTable +
		" (run_id, generated_at, slot, lat, lon, predicted_kw, is_daylight, is_fallback, weather_source, error) VALUES ")
	args := make([]any, 0, len(res.Data)*columns)
	for i, rec := range res.Data {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args,
			res.Metadata.RunID,
			res.Metadata.GeneratedAt.UTC(),
			rec.Timestamp.UTC(),
			res.Metadata.Latitude,
			res.Metadata.Longitude,
			rec.PredictedKW,
			uint8(rec.IsDaylight),
			boolToUint8(rec.IsFallback),
			source,
			rec.Error,
		)
	}
	return b.String(), args
}

func boolToUint8(v bool) uint8 {
	if v {
		return 1
	}
	return 0
}

var _ forecast.Publisher = (*ClickHouseArchive)(nil)
