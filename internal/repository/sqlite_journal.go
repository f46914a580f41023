package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"IPHForecast/internal/domain/models"
	domrepo "IPHForecast/internal/domain/repository"
	applogger "IPHForecast/pkg/logger"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteJournal persists forecast runs to a local SQLite database.
type SQLiteJournal struct {
	db *sql.DB
	mu sync.Mutex
	l  *applogger.Logger
}

// NewSQLiteJournal opens (or creates) the journal and runs migrations.
// Use ":memory:" for an ephemeral journal.
func NewSQLiteJournal(path string, l *applogger.Logger) (*SQLiteJournal, error) {
	if l == nil {
		l = applogger.NewNop()
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("mkdir journal dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if path == ":memory:" {
		// every pooled connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	} else if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	j := &SQLiteJournal{db: db, l: l}
	if err := j.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	l.Info("forecast journal opened", applogger.String("path", path))
	return j, nil
}

var _ domrepo.ForecastJournal = (*SQLiteJournal)(nil)

func (j *SQLiteJournal) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS forecast_runs (
			id          TEXT PRIMARY KEY,
			model       TEXT NOT NULL,
			trigger     TEXT NOT NULL,
			created_at  INTEGER NOT NULL,
			last_date   TEXT NOT NULL,
			points_json TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_created ON forecast_runs(created_at)`,
	}
	for _, s := range stmts {
		if _, err := j.db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// Record stores run, assigning an ID and creation time when missing.
func (j *SQLiteJournal) Record(ctx context.Context, run *models.ForecastRun) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	pts, err := json.Marshal(run.Points)
	if err != nil {
		return fmt.Errorf("marshal points: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	_, err = j.db.ExecContext(ctx,
		`INSERT INTO forecast_runs (id, model, trigger, created_at, last_date, points_json) VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.Model, run.Trigger, run.CreatedAt.UnixMilli(), run.LastDate.Format("2006-01-02"), string(pts),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// Recent returns up to limit runs, newest first.
func (j *SQLiteJournal) Recent(ctx context.Context, limit int) ([]models.ForecastRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, model, trigger, created_at, last_date, points_json
		 FROM forecast_runs ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []models.ForecastRun
	for rows.Next() {
		var (
			r       models.ForecastRun
			created int64
			last    string
			pts     string
		)
		if err := rows.Scan(&r.ID, &r.Model, &r.Trigger, &created, &last, &pts); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.CreatedAt = time.UnixMilli(created).UTC()
		r.LastDate, _ = time.Parse("2006-01-02", last)
		if err := json.Unmarshal([]byte(pts), &r.Points); err != nil {
			j.l.Warn("corrupt journal points", applogger.String("id", r.ID), applogger.Error(err))
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}
