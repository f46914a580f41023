package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"IPHForecast/internal/domain/models"
	"IPHForecast/pkg/logger"

	"github.com/robfig/cron/v3"
)

// RunTrigger is the part of ForecastService the snapshot job drives.
type RunTrigger interface {
	TriggerRun(ctx context.Context, model, trigger string) (*models.ForecastRun, error)
	ModelNames() []string
}

// SnapshotJob journals a forecast for every loaded model on a cron schedule.
type SnapshotJob struct {
	cron    *cron.Cron
	runs    RunTrigger
	timeout time.Duration
	l       *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
}

func NewSnapshotJob(runs RunTrigger, timeout time.Duration, l *logger.Logger) *SnapshotJob {
	if l == nil {
		l = logger.NewNop()
	}
	if timeout <= 0 {
		timeout = time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &SnapshotJob{
		cron:    cron.New(cron.WithSeconds()),
		runs:    runs,
		timeout: timeout,
		l:       l,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Register schedules the weekly snapshot. spec uses the six-field cron syntax.
func (j *SnapshotJob) Register(spec string) error {
	if _, err := j.cron.AddFunc(spec, j.weekly); err != nil {
		return fmt.Errorf("register snapshot job: %w", err)
	}
	return nil
}

func (j *SnapshotJob) Start() {
	j.cron.Start()
	j.l.Info("snapshot scheduler started", logger.Int("entries", len(j.cron.Entries())))
}

// Stop waits for a running snapshot to finish or ctx to end.
func (j *SnapshotJob) Stop(ctx context.Context) {
	done := j.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		j.cancel()
	}
	j.l.Info("snapshot scheduler stopped")
}

// RunNow executes the snapshot immediately and returns the recorded runs.
func (j *SnapshotJob) RunNow(ctx context.Context) []models.ForecastRun {
	return j.snapshot(ctx, "manual")
}

func (j *SnapshotJob) weekly() {
	j.snapshot(j.ctx, "scheduled")
}

// snapshot serializes overlapping invocations. One model failing does not stop the others.
func (j *SnapshotJob) snapshot(parent context.Context, trigger string) []models.ForecastRun {
	j.mu.Lock()
	defer j.mu.Unlock()

	ctx, cancel := context.WithTimeout(parent, j.timeout)
	defer cancel()

	start := time.Now()
	var out []models.ForecastRun
	for _, name := range j.runs.ModelNames() {
		run, err := j.runs.TriggerRun(ctx, name, trigger)
		if err != nil {
			j.l.Error("snapshot run failed",
				logger.String("model", name),
				logger.String("trigger", trigger),
				logger.Error(err),
			)
			continue
		}
		out = append(out, *run)
	}
	j.l.Info("snapshot completed",
		logger.String("trigger", trigger),
		logger.Int("runs", len(out)),
		logger.Duration("duration_ms", time.Since(start)),
	)
	return out
}
