package di

import (
	"context"
	"fmt"
	"time"

	domrepo "IPHForecast/internal/domain/repository"
	"IPHForecast/internal/handler/api"
	mid "IPHForecast/internal/middleware"
	internalrepo "IPHForecast/internal/repository"
	"IPHForecast/internal/service/cache"
	"IPHForecast/internal/service/feed"
	"IPHForecast/internal/service/ratelimit"
	"IPHForecast/internal/services/features"
	"IPHForecast/internal/services/forecast"
	"IPHForecast/internal/services/insight"
	"IPHForecast/internal/services/predictors"
	"IPHForecast/internal/usecase"
	pkgch "IPHForecast/pkg/clickhouse"
	"IPHForecast/pkg/config"
	pkgkafka "IPHForecast/pkg/kafka"
	applogger "IPHForecast/pkg/logger"
	"IPHForecast/pkg/metrics"
	"IPHForecast/pkg/server"
)

const startupTimeout = 30 * time.Second

// ProvideLogger builds the root logger from the logging section.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	return applogger.New(&applogger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() domrepo.Metrics {
	return metrics.New(nil)
}

// ProvideClickHouseClient connects only when the series lives in ClickHouse.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if cfg.Storage.Type != "clickhouse" {
		return nil, nil
	}
	// tables are addressed as db.table; connect to default so CREATE DATABASE can run first
	opts := append(pkgch.FromConfig(cfg), pkgch.WithDatabase("default"))
	client, err := pkgch.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, internalrepo.SeriesSchema(cfg.ClickHouse.Database, cfg.ClickHouse.Table)); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvideSeriesStore picks the persistence behind the feature store.
func ProvideSeriesStore(cfg *config.Config, ch *pkgch.Client, l *applogger.Logger) (domrepo.SeriesStore, error) {
	switch cfg.Storage.Type {
	case "clickhouse":
		if ch == nil {
			return nil, fmt.Errorf("storage type clickhouse needs a clickhouse client")
		}
		return internalrepo.NewCHSeriesStore(ch, cfg.ClickHouse.Database, cfg.ClickHouse.Table, l.With("series")), nil
	case "csv":
		return internalrepo.NewCSVSeriesStore(cfg.Storage.CSVPath, l.With("series")), nil
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Storage.Type)
	}
}

// ProvideFeatureStore loads the series once at startup.
func ProvideFeatureStore(series domrepo.SeriesStore, m domrepo.Metrics, l *applogger.Logger) (*features.Store, error) {
	st := features.NewStore(series, m, l.With("features"))
	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()
	if err := st.Reload(ctx); err != nil {
		return nil, fmt.Errorf("load series: %w", err)
	}
	l.Info("series loaded", applogger.Int("rows", st.Len()))
	return st, nil
}

// ProvideKafkaProducer returns nil when no brokers are configured.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.Linger),
		pkgkafka.WithWriteTimeout(cfg.Kafka.Producer.WriteTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithHashByKey(true),
		pkgkafka.WithAutoCreateTopics(cfg.Kafka.AutoCreateTopics),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvidePublisher wraps the producer, and ships error logs when logging.ship_topic is set.
func ProvidePublisher(producer *pkgkafka.Producer, cfg *config.Config, l *applogger.Logger) domrepo.Publisher {
	if producer == nil {
		return internalrepo.NopPublisher{}
	}
	kp := internalrepo.NewKafkaPublisher(producer, cfg.Kafka.ObservationsTopic, cfg.Kafka.ForecastsTopic)
	if cfg.Logging.ShipTopic != "" {
		l.AddCollector(&applogger.CollectionConfig{
			Topic:     cfg.Logging.ShipTopic,
			Service:   "iph-forecast",
			Publisher: kp,
		})
	}
	return kp
}

// ProvidePredictors loads every configured model; failures are skipped but reported.
func ProvidePredictors(cfg *config.Config, l *applogger.Logger) predictors.Loaded {
	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()
	return predictors.LoadAll(ctx, predictors.NewSource(cfg), cfg.Models.List, l.With("models"))
}

func ProvideTables(cfg *config.Config) forecast.Tables {
	return forecast.TablesFromConfig(cfg)
}

func ProvideRegistry(loaded predictors.Loaded, l *applogger.Logger) *forecast.Registry {
	r := forecast.NewRegistry(loaded.Predictors, l.With("registry"))
	r.SetLoadReport(loaded.Report)
	return r
}

func ProvideEstimator(r *forecast.Registry, t forecast.Tables, cfg *config.Config, m domrepo.Metrics, l *applogger.Logger) *forecast.Estimator {
	return forecast.NewEstimator(r, t, forecast.BandConfigFromConfig(cfg), m, l.With("estimator"))
}

func ProvideClassifier(t forecast.Tables, l *applogger.Logger) *insight.Classifier {
	return insight.NewClassifier(insight.DefaultThresholds(), t, l.With("insight"))
}

// ProvideJournal opens the SQLite run journal.
func ProvideJournal(cfg *config.Config, l *applogger.Logger) (domrepo.ForecastJournal, error) {
	if cfg.Journal.SQLitePath == "" {
		return nil, nil
	}
	j, err := internalrepo.NewSQLiteJournal(cfg.Journal.SQLitePath, l.With("journal"))
	if err != nil {
		return nil, fmt.Errorf("forecast journal: %w", err)
	}
	return j, nil
}

func ProvideCache(cfg *config.Config) cache.BytesCache {
	return cache.New(cfg)
}

func ProvideLimiter(cfg *config.Config) *ratelimit.Limiter {
	return ratelimit.New(cfg.RateLimit.Capacity, cfg.RateLimit.RefillPerSec)
}

// ProvideForecastService wires the forecast use case with health checks for every
// backing dependency that is actually in use.
func ProvideForecastService(
	cfg *config.Config,
	store *features.Store,
	est *forecast.Estimator,
	cls *insight.Classifier,
	journal domrepo.ForecastJournal,
	pub domrepo.Publisher,
	m domrepo.Metrics,
	c cache.BytesCache,
	ch *pkgch.Client,
	l *applogger.Logger,
) *usecase.ForecastService {
	opts := []usecase.ForecastOption{
		usecase.WithHorizon(cfg.Forecast.Horizon),
		usecase.WithConfidenceLevel(cfg.Forecast.ConfidenceLevel),
	}
	if rc, ok := c.(*cache.RedisCache); ok {
		opts = append(opts, usecase.WithHealthCheck("redis", rc.Ping))
	}
	if ch != nil {
		opts = append(opts, usecase.WithHealthCheck("clickhouse", ch.Health))
	}
	return usecase.NewForecastService(store, est, cls, journal, pub, m, l.With("forecast"), opts...)
}

func ProvideForecastHandler(
	cfg *config.Config,
	svc *usecase.ForecastService,
	c cache.BytesCache,
	limiter *ratelimit.Limiter,
	l *applogger.Logger,
) *api.ForecastEchoHandler {
	return api.NewForecastEchoHandler(l.With("api"), svc, c, cfg.Cache.TTL, limiter)
}

// ProvideObservationProcessor routes live updates to the store or to Kafka.
func ProvideObservationProcessor(pub domrepo.Publisher, store *features.Store, m domrepo.Metrics, cfg *config.Config) *usecase.ObservationProcessor {
	return usecase.NewObservationProcessor(pub, store, m, cfg.Ingestion.Backend, cfg.Ingestion.AppendTimeout)
}

// ProvideObservationCollector returns nil unless the live feed is enabled.
func ProvideObservationCollector(
	cfg *config.Config,
	proc *usecase.ObservationProcessor,
	m domrepo.Metrics,
	l *applogger.Logger,
) *usecase.ObservationCollector {
	if !cfg.Ingestion.FeedEnabled {
		return nil
	}
	stream := feed.New(cfg.Ingestion.FeedURL,
		feed.WithToken(cfg.Ingestion.FeedToken),
		feed.WithReconnectDelay(cfg.Ingestion.Reconnect),
		feed.WithPingInterval(cfg.Ingestion.PingInterval),
		feed.WithBufferSize(cfg.Ingestion.BufferSize),
		feed.WithLogger(l.With("feed")),
	)
	pipe := mid.NewObservationPipeline(proc, m,
		mid.WithBufferSize(cfg.Ingestion.BufferSize),
		mid.WithMaxAhead(14*24*time.Hour),
		mid.WithLogger(l.With("pipeline")),
	)
	return usecase.NewObservationCollector(stream, proc, pipe, m, l.With("collector"))
}

// ProvideKafkaConsumer returns nil unless kafka.consumer.enabled is set.
func ProvideKafkaConsumer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Consumer.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerLogger(l.With("consumer")),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.SetHook(pkgkafka.TraceIDHook())
	return consumer, nil
}

func ProvideKafkaObservationsHandler(cfg *config.Config, store *features.Store, m domrepo.Metrics) pkgkafka.MessageHandler {
	return usecase.NewKafkaObservationsHandler(cfg.Kafka.ObservationsTopic, store, m)
}

// ProvideSnapshotJob returns nil unless the scheduler is enabled.
func ProvideSnapshotJob(cfg *config.Config, svc *usecase.ForecastService, l *applogger.Logger) *usecase.SnapshotJob {
	if !cfg.Scheduler.Enabled {
		return nil
	}
	return usecase.NewSnapshotJob(svc, time.Minute, l.With("scheduler"))
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	h *api.ForecastEchoHandler,
	collector *usecase.ObservationCollector,
	consumer *pkgkafka.Consumer,
	kh pkgkafka.MessageHandler,
	job *usecase.SnapshotJob,
	proc *usecase.ObservationProcessor,
	series domrepo.SeriesStore,
	journal domrepo.ForecastJournal,
	c cache.BytesCache,
	ch *pkgch.Client,
) *server.App {
	return server.New(cfg, l, h, server.Components{
		Collector: collector,
		Consumer:  consumer,
		Handler:   kh,
		Job:       job,
		Processor: proc,
		Store:     series,
		Journal:   journal,
		Cache:     c,
		CH:        ch,
	})
}
