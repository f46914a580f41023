package repository

import (
	"context"

	"IPHForecast/internal/domain/models"
)

// SeriesStore persists the observation series behind the in-memory feature store.
type SeriesStore interface {
	// Load returns all rows with a target value, sorted by date ascending.
	Load(ctx context.Context) ([]models.Observation, error)
	Append(ctx context.Context, obs models.Observation) error
	Health(ctx context.Context) error
	Close() error
}

// IndicatorStream delivers live indicator updates.
type IndicatorStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.IndicatorUpdate, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// Publisher emits ingestion and forecast events.
type Publisher interface {
	PublishObservation(ctx context.Context, u *models.IndicatorUpdate) error
	PublishForecast(ctx context.Context, run *models.ForecastRun) error
	Close() error
}

// ForecastJournal records forecast runs.
type ForecastJournal interface {
	Record(ctx context.Context, run *models.ForecastRun) error
	Recent(ctx context.Context, limit int) ([]models.ForecastRun, error)
	Close() error
}

type Metrics interface {
	RecordObservation(source string)
	RecordError(kind string)
	RecordLatestValue(value float64)
	RecordLatency(op string, seconds float64)
	RecordSubEstimatorFailure(model string)
}

// NopMetrics discards all measurements.
type NopMetrics struct{}

func (NopMetrics) RecordObservation(string)         {}
func (NopMetrics) RecordError(string)               {}
func (NopMetrics) RecordLatestValue(float64)        {}
func (NopMetrics) RecordLatency(string, float64)    {}
func (NopMetrics) RecordSubEstimatorFailure(string) {}
