package kafka

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"IPHForecast/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
)

// MessageHandler handles messages from a specific topic.
type MessageHandler interface {
	Topic() string
	Handle(context.Context, []byte) error
}

// Consumer reads registered topics and dispatches to a worker pool.
// Messages of one partition are handled one at a time.
type Consumer struct {
	cfg      *ConsumerConfig
	l        *logger.Logger
	readers  map[string]*kafka.Reader
	handlers map[string]MessageHandler
	hook     ConsumerHook
	dlq      *kafka.Writer

	msgs     chan kafka.Message
	stop     chan struct{}
	stopOnce sync.Once
	readWG   sync.WaitGroup
	workWG   sync.WaitGroup

	lockMu    sync.Mutex
	partLocks map[string]*sync.Mutex
}

func NewConsumer(opts ...ConsumerOption) (*Consumer, error) {
	cfg := &ConsumerConfig{
		GroupID:     "default",
		WorkerCount: 1,
		BufferSize:  16,
		RetryMax:    3,
		BackoffMin:  50 * time.Millisecond,
		BackoffMax:  2 * time.Second,
		MinBytes:    1,
		MaxBytes:    10e6,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}
	l := cfg.Logger
	if l == nil {
		l = logger.NewNop()
	}

	c := &Consumer{
		cfg:       cfg,
		l:         l,
		readers:   make(map[string]*kafka.Reader),
		handlers:  make(map[string]MessageHandler),
		hook:      NoopHook{},
		msgs:      make(chan kafka.Message, cfg.BufferSize),
		stop:      make(chan struct{}),
		partLocks: make(map[string]*sync.Mutex),
	}
	if cfg.DLQTopic != "" {
		c.dlq = &kafka.Writer{Addr: kafka.TCP(cfg.Brokers...), Balancer: &kafka.LeastBytes{}}
	}
	initConsumerMetrics()
	return c, nil
}

// RegisterHandler must be called before Start.
func (c *Consumer) RegisterHandler(h MessageHandler) {
	if _, ok := c.handlers[h.Topic()]; ok {
		c.l.Warn("kafka handler already registered", logger.String("topic", h.Topic()))
		return
	}
	c.handlers[h.Topic()] = h
}

// SetHook replaces the lifecycle hook. Must be called before Start.
func (c *Consumer) SetHook(h ConsumerHook) {
	if h != nil {
		c.hook = h
	}
}

func (c *Consumer) Start() error {
	if len(c.handlers) == 0 {
		return fmt.Errorf("no handlers registered")
	}
	for topic := range c.handlers {
		c.readers[topic] = kafka.NewReader(kafka.ReaderConfig{
			Brokers:  c.cfg.Brokers,
			Topic:    topic,
			GroupID:  c.cfg.GroupID,
			MinBytes: c.cfg.MinBytes,
			MaxBytes: c.cfg.MaxBytes,
		})
	}
	for i := 0; i < c.cfg.WorkerCount; i++ {
		c.workWG.Add(1)
		go c.worker()
	}
	for topic, r := range c.readers {
		c.readWG.Add(1)
		go c.read(topic, r)
	}
	c.l.Info("kafka consumer started",
		logger.Int("workers", c.cfg.WorkerCount),
		logger.Int("topics", len(c.readers)),
		logger.String("group", c.cfg.GroupID),
	)
	return nil
}

// Stop drains in-flight messages and closes readers. Safe to call more than once.
func (c *Consumer) Stop(ctx context.Context) error {
	var err error
	c.stopOnce.Do(func() {
		close(c.stop)
		for _, r := range c.readers {
			_ = r.Close()
		}
		c.readWG.Wait()
		close(c.msgs)

		done := make(chan struct{})
		go func() {
			c.workWG.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			err = fmt.Errorf("timeout waiting for consumer to stop: %w", ctx.Err())
		}
		if c.dlq != nil {
			if cerr := c.dlq.Close(); cerr != nil {
				c.l.Warn("close dlq writer", logger.Error(cerr))
			}
		}
		c.l.Info("kafka consumer stopped")
	})
	return err
}

func (c *Consumer) read(topic string, r *kafka.Reader) {
	defer c.readWG.Done()
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		km, err := r.FetchMessage(ctx)
		cancel()
		select {
		case <-c.stop:
			return
		default:
		}
		if err != nil {
			if !errors.Is(err, context.DeadlineExceeded) {
				c.l.Warn("kafka fetch failed", logger.String("topic", topic), logger.Error(err))
			}
			continue
		}
		select {
		case c.msgs <- km:
			consumerQueueDepth.WithLabelValues(topic).Set(float64(len(c.msgs)))
		case <-c.stop:
			return
		}
	}
}

func (c *Consumer) worker() {
	defer c.workWG.Done()
	for km := range c.msgs {
		c.process(km)
	}
}

func (c *Consumer) process(km kafka.Message) {
	h, ok := c.handlers[km.Topic]
	if !ok {
		return
	}
	start := time.Now()
	pl := c.partitionLock(km.Topic, km.Partition)
	pl.Lock()
	defer pl.Unlock()

	err := c.handleWithRetry(h, km)
	result := "ok"
	if err != nil {
		result = "error"
		c.hook.OnError(context.Background(), km, err)
		c.l.Error("kafka message failed",
			logger.String("topic", km.Topic),
			logger.Int64("offset", km.Offset),
			logger.Error(err),
		)
		c.deadLetter(km, err)
	}
	// Commit after a DLQ write too, so one poison message cannot stall the partition.
	if err == nil || c.dlq != nil {
		c.commit(km)
	}
	consumerHandled.WithLabelValues(km.Topic, result).Inc()
	consumerHandleSeconds.WithLabelValues(km.Topic).Observe(time.Since(start).Seconds())
}

func (c *Consumer) handleWithRetry(h MessageHandler, km kafka.Message) (err error) {
	for attempt := 1; ; attempt++ {
		err = c.handleOnce(h, km)
		if err == nil || attempt > c.cfg.RetryMax {
			return err
		}
		select {
		case <-time.After(backoffWithJitter(c.cfg.BackoffMin, c.cfg.BackoffMax, attempt)):
		case <-c.stop:
			return err
		}
	}
}

func (c *Consumer) handleOnce(h MessageHandler, km kafka.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	ctx, data, err := c.hook.BeforeHandle(context.Background(), km, km.Value)
	if err != nil {
		return err
	}
	err = h.Handle(ctx, data)
	c.hook.AfterHandle(ctx, km, err)
	return err
}

func (c *Consumer) deadLetter(km kafka.Message, cause error) {
	if c.dlq == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := c.dlq.WriteMessages(ctx, kafka.Message{
		Topic: c.cfg.DLQTopic,
		Key:   km.Key,
		Value: km.Value,
		Time:  time.Now(),
		Headers: []kafka.Header{
			{Key: "source_topic", Value: []byte(km.Topic)},
			{Key: "error", Value: []byte(cause.Error())},
		},
	})
	if err != nil {
		c.l.Error("dlq write failed", logger.String("dlq", c.cfg.DLQTopic), logger.Error(err))
	}
}

func (c *Consumer) commit(km kafka.Message) {
	r := c.readers[km.Topic]
	if r == nil {
		return
	}
	var err error
	for attempt := 1; attempt <= 3; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err = r.CommitMessages(ctx, km)
		cancel()
		if err == nil {
			return
		}
		time.Sleep(backoffWithJitter(50*time.Millisecond, 500*time.Millisecond, attempt))
	}
	c.l.Error("kafka commit failed", logger.String("topic", km.Topic), logger.Error(err))
}

func (c *Consumer) partitionLock(topic string, partition int) *sync.Mutex {
	key := fmt.Sprintf("%s/%d", topic, partition)
	c.lockMu.Lock()
	defer c.lockMu.Unlock()
	l, ok := c.partLocks[key]
	if !ok {
		l = &sync.Mutex{}
		c.partLocks[key] = l
	}
	return l
}

// backoffWithJitter doubles from min up to max and removes up to half as jitter.
func backoffWithJitter(min, max time.Duration, attempt int) time.Duration {
	if min <= 0 {
		min = 50 * time.Millisecond
	}
	if max < min {
		max = min
	}
	d := min << uint(attempt-1)
	if d > max || d <= 0 {
		d = max
	}
	if half := int64(d) / 2; half > 0 {
		d -= time.Duration(rand.Int63n(half))
	}
	return d
}

var (
	consumerOnce          sync.Once
	consumerQueueDepth    *prometheus.GaugeVec
	consumerHandled       *prometheus.CounterVec
	consumerHandleSeconds *prometheus.HistogramVec
)

func initConsumerMetrics() {
	consumerOnce.Do(func() {
		consumerQueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "iph_kafka_consumer_queue_depth",
			Help: "Messages waiting for a worker",
		}, []string{"topic"})
		consumerHandled = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "iph_kafka_consumer_messages_total",
			Help: "Messages handled by result",
		}, []string{"topic", "result"})
		consumerHandleSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name: "iph_kafka_consumer_handle_seconds",
			Help: "Handling time per message",
		}, []string{"topic"})
	})
}
