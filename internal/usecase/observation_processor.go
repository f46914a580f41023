package usecase

import (
	"context"
	"fmt"
	"time"

	"IPHForecast/internal/domain/models"
	drepo "IPHForecast/internal/domain/repository"
)

// Appender is the part of the feature store ingestion writes to.
type Appender interface {
	Append(ctx context.Context, date time.Time, value float64) (models.Observation, error)
}

// ObservationProcessor routes accepted indicator updates to the configured backend:
// "store" appends directly, "kafka" publishes to the observations topic.
type ObservationProcessor struct {
	pub     drepo.Publisher
	store   Appender
	metrics drepo.Metrics
	backend string
	timeout time.Duration
}

func NewObservationProcessor(
	pub drepo.Publisher,
	store Appender,
	metrics drepo.Metrics,
	backend string,
	timeout time.Duration,
) *ObservationProcessor {
	if metrics == nil {
		metrics = drepo.NopMetrics{}
	}
	return &ObservationProcessor{
		pub:     pub,
		store:   store,
		metrics: metrics,
		backend: backend,
		timeout: timeout,
	}
}

// Backend returns the configured route.
func (p *ObservationProcessor) Backend() string { return p.backend }

// Process routes a single update.
func (p *ObservationProcessor) Process(ctx context.Context, u *models.IndicatorUpdate) error {
	if u == nil {
		return fmt.Errorf("update is nil")
	}
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	start := time.Now()
	var err error
	switch p.backend {
	case "kafka":
		err = p.pub.PublishObservation(ctx, u)
	case "store":
		_, err = p.store.Append(ctx, u.Date, u.Value)
	default:
		err = fmt.Errorf("unknown backend: %s", p.backend)
	}
	if err != nil {
		p.metrics.RecordError("process")
		return fmt.Errorf("process observation: %w", err)
	}

	src := u.Source
	if src == "" {
		src = p.backend
	}
	if p.backend == "kafka" {
		p.metrics.RecordObservation(src)
	}
	p.metrics.RecordLatency("process", time.Since(start).Seconds())
	return nil
}

// Close releases the publisher.
func (p *ObservationProcessor) Close() {
	if p.pub != nil {
		_ = p.pub.Close()
	}
}
