package repository

import (
	"context"

	"IPHForecast/internal/domain/models"
	"IPHForecast/internal/domain/repository"
	pkgkafka "IPHForecast/pkg/kafka"
	applogger "IPHForecast/pkg/logger"
	"IPHForecast/pkg/util"

	"github.com/google/uuid"
)

// KafkaPublisher implements Publisher for Kafka.
type KafkaPublisher struct {
	producer          *pkgkafka.Producer
	observationsTopic string
	forecastsTopic    string
}

func NewKafkaPublisher(producer *pkgkafka.Producer, observationsTopic, forecastsTopic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, observationsTopic: observationsTopic, forecastsTopic: forecastsTopic}
}

var (
	_ repository.Publisher = (*KafkaPublisher)(nil)
	_ applogger.Publisher  = (*KafkaPublisher)(nil)
)

// PublishObservation keys by date so replays of one week land on one partition.
func (p *KafkaPublisher) PublishObservation(ctx context.Context, u *models.IndicatorUpdate) error {
	return p.producer.Publish(ctx, pkgkafka.Message{
		Topic:   p.observationsTopic,
		Key:     util.FormatDate(u.Date),
		Value:   u,
		Headers: map[string]string{"event": "observation", "source": u.Source, "trace_id": uuid.NewString()},
	})
}

func (p *KafkaPublisher) PublishForecast(ctx context.Context, run *models.ForecastRun) error {
	return p.producer.Publish(ctx, pkgkafka.Message{
		Topic:   p.forecastsTopic,
		Key:     run.Model,
		Value:   run,
		Headers: map[string]string{"event": "forecast_run", "trigger": run.Trigger},
	})
}

// PublishMessage lets the log collector ship batches through the same producer.
func (p *KafkaPublisher) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	return p.producer.Publish(ctx, pkgkafka.Message{
		Topic:   topic,
		Value:   payload,
		Headers: map[string]string{"event": "log_batch"},
	})
}

func (p *KafkaPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// NopPublisher drops every event; used when no brokers are configured.
type NopPublisher struct{}

func (NopPublisher) PublishObservation(context.Context, *models.IndicatorUpdate) error { return nil }
func (NopPublisher) PublishForecast(context.Context, *models.ForecastRun) error        { return nil }
func (NopPublisher) Close() error                                                      { return nil }
