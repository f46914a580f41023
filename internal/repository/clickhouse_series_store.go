package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"IPHForecast/internal/domain/models"
	domrepo "IPHForecast/internal/domain/repository"
	pkgch "IPHForecast/pkg/clickhouse"
	applogger "IPHForecast/pkg/logger"
)

// CHSeriesStore implements SeriesStore backed by a ClickHouse ReplacingMergeTree.
// Re-appending a date replaces the earlier row after merge; reads use FINAL.
type CHSeriesStore struct {
	db    *sql.DB
	table string
	l     *applogger.Logger
}

func NewCHSeriesStore(ch *pkgch.Client, database, table string, l *applogger.Logger) *CHSeriesStore {
	if l == nil {
		l = applogger.NewNop()
	}
	return &CHSeriesStore{db: ch.DB(), table: database + "." + table, l: l}
}

var _ domrepo.SeriesStore = (*CHSeriesStore)(nil)

// SeriesSchema returns the idempotent DDL for the series table.
func SeriesSchema(database, table string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
			date       Date,
			value      Float64,
			lag_1      Float64,
			lag_2      Float64,
			lag_3      Float64,
			lag_4      Float64,
			ma_3       Float64,
			ma_7       Float64,
			ingested_at DateTime DEFAULT now()
		) ENGINE = ReplacingMergeTree(ingested_at)
		ORDER BY date`, database, table),
	}
}

func (s *CHSeriesStore) Load(ctx context.Context) ([]models.Observation, error) {
	start := time.Now()
	q := fmt.Sprintf(`
        SELECT date, value, lag_1, lag_2, lag_3, lag_4, ma_3, ma_7
        FROM %s FINAL
        ORDER BY date ASC
    `, s.table)
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		s.l.Error("clickhouse load_series query error", applogger.String("table", s.table), applogger.Error(err))
		return nil, fmt.Errorf("load series: %w", err)
	}
	defer rows.Close()

	out := make([]models.Observation, 0, 512)
	for rows.Next() {
		var o models.Observation
		if err := rows.Scan(&o.Date, &o.Value, &o.Lag1, &o.Lag2, &o.Lag3, &o.Lag4, &o.MA3, &o.MA7); err != nil {
			s.l.Error("clickhouse load_series scan error", applogger.String("table", s.table), applogger.Error(err))
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		o.Date = o.Date.UTC()
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	s.l.Info("clickhouse load_series ok",
		applogger.String("table", s.table),
		applogger.Int("rows", len(out)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return out, nil
}

func (s *CHSeriesStore) Append(ctx context.Context, o models.Observation) error {
	q := fmt.Sprintf("INSERT INTO %s (date, value, lag_1, lag_2, lag_3, lag_4, ma_3, ma_7) VALUES (?, ?, ?, ?, ?, ?, ?, ?)", s.table)
	if _, err := s.db.ExecContext(ctx, q, o.Date, o.Value, o.Lag1, o.Lag2, o.Lag3, o.Lag4, o.MA3, o.MA7); err != nil {
		s.l.Error("clickhouse append error",
			applogger.String("table", s.table),
			applogger.Date("date", o.Date),
			applogger.Error(err),
		)
		return fmt.Errorf("append observation: %w", err)
	}
	return nil
}

func (s *CHSeriesStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close is a no-op; the pool belongs to pkg/clickhouse.Client.
func (s *CHSeriesStore) Close() error { return nil }
