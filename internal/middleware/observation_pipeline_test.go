package middleware

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"IPHForecast/internal/domain/models"
)

type recProc struct {
	mu    sync.Mutex
	fail  int
	calls []*models.IndicatorUpdate
}

func (r *recProc) Process(_ context.Context, u *models.IndicatorUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail > 0 {
		r.fail--
		return errors.New("down")
	}
	r.calls = append(r.calls, u)
	return nil
}

func (r *recProc) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

var monday = time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

func TestPipelineValidates(t *testing.T) {
	p := NewObservationPipeline(&recProc{}, nil)
	bad := []*models.IndicatorUpdate{
		nil,
		{Value: 1},
		{Date: monday, Value: math.NaN()},
		{Date: time.Now().AddDate(0, 1, 0), Value: 1},
	}
	for i, u := range bad {
		if err := p.Process(context.Background(), u); err == nil {
			t.Errorf("case %d: expected validation error", i)
		}
	}
}

func TestPipelineDropsDuplicates(t *testing.T) {
	proc := &recProc{}
	p := NewObservationPipeline(proc, nil)
	ctx := context.Background()
	u := &models.IndicatorUpdate{Date: monday, Value: 1.5}
	_ = p.Process(ctx, u)
	_ = p.Process(ctx, &models.IndicatorUpdate{Date: monday, Value: 1.5})
	_ = p.Process(ctx, &models.IndicatorUpdate{Date: monday, Value: 1.7})
	if proc.count() != 2 {
		t.Fatalf("calls = %d", proc.count())
	}
}

func TestPipelineRetriesBuffered(t *testing.T) {
	proc := &recProc{fail: 1}
	p := NewObservationPipeline(proc, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	defer p.Stop()

	if err := p.Process(ctx, &models.IndicatorUpdate{Date: monday, Value: 2}); err == nil {
		t.Fatal("first write should report the downstream error")
	}
	deadline := time.Now().Add(2 * time.Second)
	for proc.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if proc.count() != 1 {
		t.Fatal("buffered update was not retried")
	}
}
