package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"IPHForecast/internal/domain"
	domrepo "IPHForecast/internal/domain/repository"
	pkgkafka "IPHForecast/pkg/kafka"
	"IPHForecast/pkg/util"
)

// KafkaObservationsHandler consumes the observations topic and appends to the store.
type KafkaObservationsHandler struct {
	topic   string
	store   Appender
	metrics domrepo.Metrics
}

func NewKafkaObservationsHandler(topic string, store Appender, metrics domrepo.Metrics) *KafkaObservationsHandler {
	if metrics == nil {
		metrics = domrepo.NopMetrics{}
	}
	return &KafkaObservationsHandler{topic: topic, store: store, metrics: metrics}
}

func (h *KafkaObservationsHandler) Topic() string { return h.topic }

// incoming message schema: {date, value, source}; date is YYYY-MM-DD or RFC3339
func (h *KafkaObservationsHandler) Handle(ctx context.Context, b []byte) error {
	var m struct {
		Date   string   `json:"date"`
		Value  *float64 `json:"value"`
		Source string   `json:"source"`
	}
	if err := json.Unmarshal(b, &m); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return err
	}
	date, ok := util.ParseDate(m.Date)
	if !ok || m.Value == nil || math.IsNaN(*m.Value) || math.IsInf(*m.Value, 0) {
		h.metrics.RecordError("consumer_invalid")
		return fmt.Errorf("invalid observation message: date=%q trace=%s", m.Date, pkgkafka.TraceID(ctx))
	}

	start := time.Now()
	_, err := h.store.Append(ctx, date, *m.Value)
	h.metrics.RecordLatency("consumer_append", time.Since(start).Seconds())
	switch {
	case errors.Is(err, domain.ErrStaleObservation):
		// replays of already stored weeks are expected; retrying cannot help
		h.metrics.RecordError("consumer_stale")
		return nil
	case err != nil:
		h.metrics.RecordError("consumer_append")
		return err
	}
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaObservationsHandler)(nil)
