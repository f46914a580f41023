package middleware

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"IPHForecast/internal/domain/models"
	domrepo "IPHForecast/internal/domain/repository"
	"IPHForecast/pkg/logger"
)

// Proc is the downstream the pipeline feeds.
type Proc interface {
	Process(ctx context.Context, u *models.IndicatorUpdate) error
}

// ObservationPipeline sits between the live feed and the processor.
// It validates updates, drops repeats of an already accepted (date, value),
// and buffers updates whose downstream write failed for retry.
type ObservationPipeline struct {
	proc     Proc
	metrics  domrepo.Metrics
	l        *logger.Logger
	now      func() time.Time
	maxAhead time.Duration
	bufCh    chan *models.IndicatorUpdate
	stopCh   chan struct{}
	doneCh   chan struct{}

	mu       sync.Mutex
	started  bool
	accepted map[string]float64
}

type PipelineOption func(*ObservationPipeline)

// WithBufferSize sets how many failed updates are held for retry.
func WithBufferSize(n int) PipelineOption {
	return func(p *ObservationPipeline) {
		if n > 0 {
			p.bufCh = make(chan *models.IndicatorUpdate, n)
		}
	}
}

// WithMaxAhead rejects updates dated further than d past now.
func WithMaxAhead(d time.Duration) PipelineOption {
	return func(p *ObservationPipeline) { p.maxAhead = d }
}

func WithLogger(l *logger.Logger) PipelineOption {
	return func(p *ObservationPipeline) {
		if l != nil {
			p.l = l
		}
	}
}

func NewObservationPipeline(proc Proc, metrics domrepo.Metrics, opts ...PipelineOption) *ObservationPipeline {
	if metrics == nil {
		metrics = domrepo.NopMetrics{}
	}
	p := &ObservationPipeline{
		proc:     proc,
		metrics:  metrics,
		l:        logger.NewNop(),
		now:      time.Now,
		maxAhead: 8 * 24 * time.Hour,
		bufCh:    make(chan *models.IndicatorUpdate, 64),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		accepted: make(map[string]float64),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches the retry loop for buffered updates.
func (p *ObservationPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go func() {
		defer close(p.doneCh)
		backoff := 50 * time.Millisecond
		for {
			select {
			case <-p.stopCh:
				return
			case <-ctx.Done():
				return
			case u := <-p.bufCh:
				if err := p.forward(ctx, u); err != nil {
					if backoff < 5*time.Second {
						backoff *= 2
					}
					p.metrics.RecordError("pipeline_flush")
					select {
					case <-time.After(backoff):
					case <-p.stopCh:
						return
					}
					p.enqueue(u)
					continue
				}
				backoff = 50 * time.Millisecond
			}
		}
	}()
}

// Stop ends the retry loop; buffered updates are discarded.
func (p *ObservationPipeline) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.mu.Unlock()
	close(p.stopCh)
	<-p.doneCh
	if n := len(p.bufCh); n > 0 {
		p.l.Warn("pipeline stopped with buffered updates", logger.Int("pending", n))
	}
}

// Process validates and forwards u. Duplicates are dropped silently; downstream
// failures are buffered and reported.
func (p *ObservationPipeline) Process(ctx context.Context, u *models.IndicatorUpdate) error {
	start := p.now()
	if err := p.validate(u); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}
	if p.seen(u) {
		p.metrics.RecordError("pipeline_duplicate")
		return nil
	}
	if err := p.forward(ctx, u); err != nil {
		p.metrics.RecordError("pipeline_process")
		p.enqueue(u)
		return fmt.Errorf("pipeline downstream: %w", err)
	}
	p.metrics.RecordLatency("pipeline_process", time.Since(start).Seconds())
	return nil
}

func (p *ObservationPipeline) forward(ctx context.Context, u *models.IndicatorUpdate) error {
	if err := p.proc.Process(ctx, u); err != nil {
		return err
	}
	p.mu.Lock()
	p.accepted[dateKey(u.Date)] = u.Value
	p.mu.Unlock()
	return nil
}

func (p *ObservationPipeline) enqueue(u *models.IndicatorUpdate) {
	select {
	case p.bufCh <- u:
		p.metrics.RecordLatency("pipeline_buffer_depth", float64(len(p.bufCh)))
	default:
		p.metrics.RecordError("pipeline_buffer_full")
		p.l.Warn("pipeline buffer full, dropping update", logger.Date("date", u.Date))
	}
}

func (p *ObservationPipeline) seen(u *models.IndicatorUpdate) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.accepted[dateKey(u.Date)]
	return ok && v == u.Value
}

func (p *ObservationPipeline) validate(u *models.IndicatorUpdate) error {
	if u == nil {
		return fmt.Errorf("update nil")
	}
	if u.Date.IsZero() {
		return fmt.Errorf("date missing")
	}
	if math.IsNaN(u.Value) || math.IsInf(u.Value, 0) {
		return fmt.Errorf("value not finite")
	}
	if p.maxAhead > 0 && u.Date.After(p.now().Add(p.maxAhead)) {
		return fmt.Errorf("date %s too far in the future", dateKey(u.Date))
	}
	return nil
}

func dateKey(t time.Time) string { return t.UTC().Format("2006-01-02") }
