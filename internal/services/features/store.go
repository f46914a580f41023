package features

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"IPHForecast/internal/domain"
	"IPHForecast/internal/domain/models"
	domrepo "IPHForecast/internal/domain/repository"
	applogger "IPHForecast/pkg/logger"
	"IPHForecast/pkg/util"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Snapshot is an immutable view of the series. Appends replace it wholesale, so
// a caller that needs several reads to agree takes one Snapshot and reads from it.
type Snapshot struct {
	rows    []models.Observation
	values  []float64
	version uint64
}

// Store holds the cleaned series in memory, backed by a SeriesStore.
// Reads work on the current snapshot; Append is serialized by writeMu.
type Store struct {
	series  domrepo.SeriesStore
	metrics domrepo.Metrics
	l       *applogger.Logger

	writeMu sync.Mutex
	mu      sync.RWMutex
	snap    *Snapshot
}

// NewStore creates an empty store. Call Reload to pull rows from the backing series.
func NewStore(series domrepo.SeriesStore, metrics domrepo.Metrics, l *applogger.Logger) *Store {
	if metrics == nil {
		metrics = domrepo.NopMetrics{}
	}
	if l == nil {
		l = applogger.NewNop()
	}
	return &Store{series: series, metrics: metrics, l: l, snap: &Snapshot{}}
}

// Reload replaces the in-memory series with the backing store's rows.
func (s *Store) Reload(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	start := time.Now()
	rows, err := s.series.Load(ctx)
	if err != nil {
		return fmt.Errorf("load series: %w", err)
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Date.Before(rows[j].Date) })

	s.mu.Lock()
	s.snap = newSnapshot(rows, s.snap.version+1)
	s.mu.Unlock()

	if n := len(rows); n > 0 {
		s.metrics.RecordLatestValue(rows[n-1].Value)
	}
	s.l.Info("series loaded",
		applogger.Int("rows", len(rows)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return nil
}

func newSnapshot(rows []models.Observation, version uint64) *Snapshot {
	values := make([]float64, len(rows))
	for i, r := range rows {
		values[i] = r.Value
	}
	return &Snapshot{rows: rows, values: values, version: version}
}

func (s *Store) current() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Snapshot returns the current view of the series.
func (s *Store) Snapshot() *Snapshot { return s.current() }

func (s *Store) Len() int                                      { return s.current().Len() }
func (s *Store) Version() uint64                               { return s.current().Version() }
func (s *Store) Latest() (models.Observation, error)           { return s.current().Latest() }
func (s *Store) LatestFeatures() (models.FeatureVector, error) { return s.current().LatestFeatures() }
func (s *Store) Rows() []models.Observation                    { return s.current().Rows() }
func (s *Store) Values() []float64                             { return s.current().Values() }
func (s *Store) Window(months int) []models.Observation        { return s.current().Window(months) }
func (s *Store) Summary() (models.DataSummary, error)          { return s.current().Summary() }

func (s *Store) WhatIfFeatures(current float64) (models.FeatureVector, error) {
	return s.current().WhatIfFeatures(current)
}

// Len returns the number of observations.
func (v *Snapshot) Len() int { return len(v.rows) }

// Version increases on every reload and append.
func (v *Snapshot) Version() uint64 { return v.version }

// Latest returns the most recent observation.
func (v *Snapshot) Latest() (models.Observation, error) {
	if len(v.rows) == 0 {
		return models.Observation{}, domain.ErrEmptyDataset
	}
	return v.rows[len(v.rows)-1], nil
}

// LatestFeatures returns the feature vector of the most recent row.
func (v *Snapshot) LatestFeatures() (models.FeatureVector, error) {
	obs, err := v.Latest()
	if err != nil {
		return models.FeatureVector{}, err
	}
	return obs.Features(), nil
}

// Rows returns a copy of the full series.
func (v *Snapshot) Rows() []models.Observation {
	out := make([]models.Observation, len(v.rows))
	copy(out, v.rows)
	return out
}

// Values returns a copy of the target values, oldest first.
func (v *Snapshot) Values() []float64 {
	out := make([]float64, len(v.values))
	copy(out, v.values)
	return out
}

// Window returns rows dated on or after (last date - months). months <= 0 returns
// the full series. The result is for display and never feeds a predictor.
func (v *Snapshot) Window(months int) []models.Observation {
	if months <= 0 || len(v.rows) == 0 {
		return v.Rows()
	}
	cutoff := util.MonthsBefore(v.rows[len(v.rows)-1].Date, months)
	idx := sort.Search(len(v.rows), func(i int) bool { return !v.rows[i].Date.Before(cutoff) })
	out := make([]models.Observation, len(v.rows)-idx)
	copy(out, v.rows[idx:])
	return out
}

// WhatIfFeatures recomputes the feature vector as if current were this period's value.
func (v *Snapshot) WhatIfFeatures(current float64) (models.FeatureVector, error) {
	if len(v.values) == 0 {
		return models.FeatureVector{}, domain.ErrEmptyDataset
	}
	return WhatIf(v.values, current), nil
}

// Append derives lag/MA columns for (date, value), persists the row and publishes
// a new snapshot. date must be after the latest row, so every row's features
// stay the trailing values as of its own date. Concurrent callers are serialized.
func (s *Store) Append(ctx context.Context, date time.Time, value float64) (models.Observation, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	start := time.Now()
	cur := s.current()
	if last, err := cur.Latest(); err == nil && !date.After(last.Date) {
		s.metrics.RecordError("series_stale")
		return models.Observation{}, fmt.Errorf("%w: %s is not after %s",
			domain.ErrStaleObservation, util.FormatDate(date), util.FormatDate(last.Date))
	}
	obs := ComputeObservation(cur.values, date, value)

	if err := s.series.Append(ctx, obs); err != nil {
		s.metrics.RecordError("series_append")
		s.l.Error("series append failed",
			applogger.Date("date", date),
			applogger.Float64("value", value),
			applogger.Error(err),
		)
		return models.Observation{}, fmt.Errorf("persist observation: %w", err)
	}

	rows := make([]models.Observation, len(cur.rows), len(cur.rows)+1)
	copy(rows, cur.rows)
	rows = append(rows, obs)

	s.mu.Lock()
	s.snap = newSnapshot(rows, cur.version+1)
	s.mu.Unlock()

	s.metrics.RecordObservation("append")
	s.metrics.RecordLatestValue(value)
	s.metrics.RecordLatency("series_append", time.Since(start).Seconds())
	s.l.Info("observation appended",
		applogger.Date("date", date),
		applogger.Float64("value", value),
		applogger.Int("rows", len(rows)),
	)
	return obs, nil
}

// Summary describes the series. Std is the sample standard deviation.
func (v *Snapshot) Summary() (models.DataSummary, error) {
	n := len(v.rows)
	if n == 0 {
		return models.DataSummary{}, domain.ErrEmptyDataset
	}
	m, std := stat.MeanStdDev(v.values, nil)
	if n < 2 {
		std = 0
	}
	latest := v.rows[n-1]
	fv := latest.Features()
	return models.DataSummary{
		TotalRecords:   n,
		From:           v.rows[0].Date,
		To:             latest.Date,
		Mean:           m,
		Std:            std,
		Min:            floats.Min(v.values),
		Max:            floats.Max(v.values),
		LatestValue:    latest.Value,
		LatestFeatures: &fv,
	}, nil
}

// Health checks the backing store.
func (s *Store) Health(ctx context.Context) error {
	return s.series.Health(ctx)
}
