package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"IPHForecast/internal/domain"
	"IPHForecast/internal/domain/models"
)

type recAppender struct {
	mu   sync.Mutex
	got  []models.IndicatorUpdate
	err  error
	seen chan struct{}
}

func (a *recAppender) Append(_ context.Context, date time.Time, value float64) (models.Observation, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return models.Observation{}, a.err
	}
	a.got = append(a.got, models.IndicatorUpdate{Date: date, Value: value})
	if a.seen != nil {
		a.seen <- struct{}{}
	}
	return models.Observation{Date: date, Value: value}, nil
}

func (a *recAppender) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.got)
}

func TestObservationProcessorBackends(t *testing.T) {
	u := &models.IndicatorUpdate{Date: week(1), Value: 0.4, Source: "feed"}

	store := &recAppender{}
	pub := &recPublisher{}
	if err := NewObservationProcessor(pub, store, nil, "store", time.Second).Process(context.Background(), u); err != nil {
		t.Fatalf("store backend: %v", err)
	}
	if store.count() != 1 || len(pub.observations) != 0 {
		t.Fatalf("store backend routed wrong: store=%d pub=%d", store.count(), len(pub.observations))
	}

	store, pub = &recAppender{}, &recPublisher{}
	if err := NewObservationProcessor(pub, store, nil, "kafka", 0).Process(context.Background(), u); err != nil {
		t.Fatalf("kafka backend: %v", err)
	}
	if store.count() != 0 || len(pub.observations) != 1 {
		t.Fatalf("kafka backend routed wrong: store=%d pub=%d", store.count(), len(pub.observations))
	}

	if err := NewObservationProcessor(pub, store, nil, "s3", 0).Process(context.Background(), u); err == nil {
		t.Fatal("expected unknown backend error")
	}
	if err := NewObservationProcessor(pub, store, nil, "store", 0).Process(context.Background(), nil); err == nil {
		t.Fatal("expected nil update error")
	}
}

func TestObservationProcessorWrapsFailure(t *testing.T) {
	cause := errors.New("disk full")
	p := NewObservationProcessor(nil, &recAppender{err: cause}, nil, "store", 0)
	err := p.Process(context.Background(), &models.IndicatorUpdate{Date: week(0), Value: 1})
	if !errors.Is(err, cause) {
		t.Fatalf("err = %v", err)
	}
}

func TestKafkaObservationsHandler(t *testing.T) {
	store := &recAppender{}
	h := NewKafkaObservationsHandler("iph.observations", store, nil)
	if h.Topic() != "iph.observations" {
		t.Fatalf("topic = %s", h.Topic())
	}

	if err := h.Handle(context.Background(), []byte(`{"date":"2024-02-05","value":1.25,"source":"feed"}`)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if err := h.Handle(context.Background(), []byte(`{"date":"2024-02-12T00:00:00Z","value":-0.5}`)); err != nil {
		t.Fatalf("handle rfc3339: %v", err)
	}
	if store.count() != 2 || store.got[0].Value != 1.25 || !store.got[1].Date.Equal(time.Date(2024, 2, 12, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("appended = %+v", store.got)
	}

	for name, body := range map[string]string{
		"json":  `{"date":`,
		"date":  `{"date":"next week","value":1}`,
		"value": `{"date":"2024-02-19"}`,
	} {
		if err := h.Handle(context.Background(), []byte(body)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
	if store.count() != 2 {
		t.Fatalf("invalid messages appended: %d", store.count())
	}

	stale := NewKafkaObservationsHandler("iph.observations", &recAppender{err: fmt.Errorf("append: %w", domain.ErrStaleObservation)}, nil)
	if err := stale.Handle(context.Background(), []byte(`{"date":"2024-01-01","value":1}`)); err != nil {
		t.Fatalf("replayed week should be dropped, got %v", err)
	}
	failing := NewKafkaObservationsHandler("iph.observations", &recAppender{err: errors.New("disk full")}, nil)
	if err := failing.Handle(context.Background(), []byte(`{"date":"2024-01-01","value":1}`)); err == nil {
		t.Fatal("expected store error to be returned for retry")
	}
}

type fakeStream struct {
	mu         sync.Mutex
	batches    [][]*models.IndicatorUpdate
	reads      int
	reconnects int
	connected  bool
}

func (s *fakeStream) Connect(context.Context) error {
	s.mu.Lock()
	s.connected = true
	s.mu.Unlock()
	return nil
}

func (s *fakeStream) Subscribe(context.Context) error { return nil }

// Read serves one batch per call, then reports a read error so the collector reconnects.
func (s *fakeStream) Read(ctx context.Context) (<-chan *models.IndicatorUpdate, <-chan error) {
	s.mu.Lock()
	var batch []*models.IndicatorUpdate
	if s.reads < len(s.batches) {
		batch = s.batches[s.reads]
	}
	s.reads++
	s.mu.Unlock()

	updates := make(chan *models.IndicatorUpdate, len(batch))
	errs := make(chan error, 1)
	for _, u := range batch {
		updates <- u
	}
	close(updates)
	if batch == nil {
		go func() {
			<-ctx.Done()
			close(errs)
		}()
		return make(chan *models.IndicatorUpdate), errs
	}
	errs <- errors.New("connection reset")
	close(errs)
	return updates, errs
}

func (s *fakeStream) Reconnect(context.Context) error {
	s.mu.Lock()
	s.reconnects++
	s.mu.Unlock()
	return nil
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	s.connected = false
	s.mu.Unlock()
	return nil
}

func (s *fakeStream) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func TestObservationCollectorReconnectsAndProcesses(t *testing.T) {
	stream := &fakeStream{batches: [][]*models.IndicatorUpdate{
		{{Date: week(0), Value: 1}},
		{{Date: week(1), Value: 2}},
	}}
	store := &recAppender{seen: make(chan struct{}, 4)}
	proc := NewObservationProcessor(nil, store, nil, "store", 0)
	c := NewObservationCollector(stream, proc, nil, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := c.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !c.IsConnected() {
		t.Fatal("collector not connected")
	}
	for i := 0; i < 2; i++ {
		select {
		case <-store.seen:
		case <-time.After(2 * time.Second):
			t.Fatalf("update %d not processed", i)
		}
	}

	cancel()
	shutdownCtx, done := context.WithTimeout(context.Background(), time.Second)
	defer done()
	if err := c.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	stream.mu.Lock()
	defer stream.mu.Unlock()
	if stream.reconnects < 1 {
		t.Fatalf("reconnects = %d", stream.reconnects)
	}
}

type fakeRuns struct {
	names []string
	fail  map[string]bool
	calls []string
}

func (f *fakeRuns) ModelNames() []string { return f.names }

func (f *fakeRuns) TriggerRun(_ context.Context, model, trigger string) (*models.ForecastRun, error) {
	f.calls = append(f.calls, model+":"+trigger)
	if f.fail[model] {
		return nil, errors.New("predict failed")
	}
	return &models.ForecastRun{Model: model, Trigger: trigger}, nil
}

func TestSnapshotJobRunNowSkipsFailures(t *testing.T) {
	runs := &fakeRuns{names: []string{"Random_Forest", "KNN", "LightGBM"}, fail: map[string]bool{"KNN": true}}
	j := NewSnapshotJob(runs, time.Second, nil)
	out := j.RunNow(context.Background())
	if len(out) != 2 || out[0].Model != "Random_Forest" || out[1].Model != "LightGBM" {
		t.Fatalf("runs = %+v", out)
	}
	if len(runs.calls) != 3 || runs.calls[0] != "Random_Forest:manual" {
		t.Fatalf("calls = %v", runs.calls)
	}
}

func TestSnapshotJobRegister(t *testing.T) {
	j := NewSnapshotJob(&fakeRuns{}, 0, nil)
	if err := j.Register("0 0 8 * * 1"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := j.Register("every monday"); err == nil {
		t.Fatal("expected invalid spec error")
	}
	j.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	j.Stop(ctx)
}
