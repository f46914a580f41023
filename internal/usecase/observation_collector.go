package usecase

import (
	"context"
	"sync"

	"IPHForecast/internal/domain/models"
	drepo "IPHForecast/internal/domain/repository"
	mid "IPHForecast/internal/middleware"
	"IPHForecast/pkg/logger"
)

// ObservationCollector reads the live indicator feed and hands updates to the
// pipeline, or straight to the processor when no pipeline is configured.
type ObservationCollector struct {
	stream  drepo.IndicatorStream
	proc    mid.Proc
	pipe    *mid.ObservationPipeline
	metrics drepo.Metrics
	l       *logger.Logger

	wg sync.WaitGroup
}

func NewObservationCollector(stream drepo.IndicatorStream, proc mid.Proc, pipe *mid.ObservationPipeline, metrics drepo.Metrics, l *logger.Logger) *ObservationCollector {
	if metrics == nil {
		metrics = drepo.NopMetrics{}
	}
	if l == nil {
		l = logger.NewNop()
	}
	return &ObservationCollector{stream: stream, proc: proc, pipe: pipe, metrics: metrics, l: l}
}

func (c *ObservationCollector) IsConnected() bool { return c.stream.IsConnected() }

// Start connects, subscribes and consumes until ctx ends.
func (c *ObservationCollector) Start(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.stream.Subscribe(ctx); err != nil {
		return err
	}
	if c.pipe != nil {
		c.pipe.Start(ctx)
	}
	c.wg.Add(1)
	go c.consume(ctx)
	return nil
}

func (c *ObservationCollector) consume(ctx context.Context) {
	defer c.wg.Done()
	for ctx.Err() == nil {
		updates, errs := c.stream.Read(ctx)
		c.drain(ctx, updates, errs)
		if ctx.Err() != nil {
			return
		}
		c.metrics.RecordError("stream")
		if err := c.stream.Reconnect(ctx); err != nil {
			c.l.Warn("feed reconnect failed", logger.Error(err))
		}
	}
}

// drain returns when the read channels close or report an error.
func (c *ObservationCollector) drain(ctx context.Context, updates <-chan *models.IndicatorUpdate, errs <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-errs:
			if ok && err != nil {
				c.l.Warn("feed read failed", logger.Error(err))
			}
			if !ok || err != nil {
				c.flush(ctx, updates)
				return
			}
		case u, ok := <-updates:
			if !ok {
				return
			}
			if u == nil {
				continue
			}
			c.handle(ctx, u)
		}
	}
}

// flush handles updates already buffered when the stream failed.
func (c *ObservationCollector) flush(ctx context.Context, updates <-chan *models.IndicatorUpdate) {
	for {
		select {
		case u, ok := <-updates:
			if !ok {
				return
			}
			if u != nil {
				c.handle(ctx, u)
			}
		default:
			return
		}
	}
}

func (c *ObservationCollector) handle(ctx context.Context, u *models.IndicatorUpdate) {
	var err error
	if c.pipe != nil {
		err = c.pipe.Process(ctx, u)
	} else {
		err = c.proc.Process(ctx, u)
	}
	if err != nil {
		c.l.Warn("observation not processed",
			logger.Date("date", u.Date),
			logger.Float64("value", u.Value),
			logger.Error(err),
		)
	}
}

// Shutdown stops the pipeline, closes the stream and waits for the reader.
func (c *ObservationCollector) Shutdown(ctx context.Context) error {
	if c.pipe != nil {
		c.pipe.Stop()
	}
	err := c.stream.Close()
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
	return err
}
