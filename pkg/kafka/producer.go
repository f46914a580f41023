package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
)

// Message is one outbound record. Value may be []byte, string, or anything JSON-encodable.
type Message struct {
	Topic   string
	Key     string
	Value   interface{}
	Headers map[string]string
}

// Producer publishes JSON records through a single kafka-go writer.
type Producer struct {
	writer *kafka.Writer
	comp   string
	now    func() time.Time
}

func NewProducer(opts ...ProducerOption) (*Producer, error) {
	cfg := ProducerConfig{
		RequiredAcks: -1,
		Compression:  "gzip",
		MaxAttempts:  3,
		WriteTimeout: 10 * time.Second,
		BatchSize:    100,
		BatchTimeout: 200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka producer: no brokers")
	}
	comp, err := parseCompression(cfg.Compression)
	if err != nil {
		return nil, err
	}

	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.LeastBytes{},
		RequiredAcks:           kafka.RequiredAcks(cfg.RequiredAcks),
		Compression:            comp,
		MaxAttempts:            cfg.MaxAttempts,
		WriteTimeout:           cfg.WriteTimeout,
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		AllowAutoTopicCreation: cfg.AutoCreateTopics,
	}
	if cfg.HashByKey {
		w.Balancer = &kafka.Hash{}
	}
	producerMetrics()
	return &Producer{writer: w, comp: cfg.Compression, now: time.Now}, nil
}

// Publish encodes and writes msgs in one batch; either all are accepted or an error is returned.
func (p *Producer) Publish(ctx context.Context, msgs ...Message) error {
	if len(msgs) == 0 {
		return nil
	}
	start := p.now()
	out := make([]kafka.Message, 0, len(msgs))
	for _, m := range msgs {
		km, err := toKafka(m, start)
		if err != nil {
			return err
		}
		out = append(out, km)
	}
	err := p.writer.WriteMessages(ctx, out...)
	observePublish(out, p.comp, time.Since(start), err)
	if err != nil {
		return fmt.Errorf("kafka publish %d message(s): %w", len(out), err)
	}
	return nil
}

func (p *Producer) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

func toKafka(m Message, at time.Time) (kafka.Message, error) {
	if m.Topic == "" {
		return kafka.Message{}, fmt.Errorf("kafka message without topic")
	}
	v, err := encode(m.Value)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode %s message: %w", m.Topic, err)
	}
	km := kafka.Message{Topic: m.Topic, Value: v, Time: at}
	if m.Key != "" {
		km.Key = []byte(m.Key)
	}
	keys := make([]string, 0, len(m.Headers))
	for k := range m.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		km.Headers = append(km.Headers, kafka.Header{Key: k, Value: []byte(m.Headers[k])})
	}
	return km, nil
}

func encode(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case nil:
		return nil, fmt.Errorf("nil value")
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	case json.RawMessage:
		return v, nil
	}
	return json.Marshal(value)
}

func parseCompression(s string) (kafka.Compression, error) {
	switch s {
	case "", "gzip":
		return kafka.Gzip, nil
	case "snappy":
		return kafka.Snappy, nil
	case "lz4":
		return kafka.Lz4, nil
	case "zstd":
		return kafka.Zstd, nil
	}
	return 0, fmt.Errorf("unknown kafka compression %q", s)
}

var (
	producerOnce    sync.Once
	publishedTotal  *prometheus.CounterVec
	publishedBytes  *prometheus.CounterVec
	publishDuration prometheus.Histogram
)

func producerMetrics() {
	producerOnce.Do(func() {
		publishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "iph",
			Subsystem: "kafka_producer",
			Name:      "messages_total",
			Help:      "Records handed to Kafka by topic and outcome.",
		}, []string{"topic", "result"})
		publishedBytes = promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "iph",
			Subsystem: "kafka_producer",
			Name:      "bytes_total",
			Help:      "Uncompressed payload bytes by topic and codec.",
		}, []string{"topic", "compression"})
		publishDuration = promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "iph",
			Subsystem: "kafka_producer",
			Name:      "publish_seconds",
			Help:      "Latency of one Publish call.",
			Buckets:   prometheus.DefBuckets,
		})
	})
}

func observePublish(msgs []kafka.Message, comp string, d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	for _, m := range msgs {
		publishedTotal.WithLabelValues(m.Topic, result).Inc()
		publishedBytes.WithLabelValues(m.Topic, comp).Add(float64(len(m.Value)))
	}
	publishDuration.Observe(d.Seconds())
}
