package logger

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"
)

// Publisher ships a collected batch, typically to a Kafka topic.
type Publisher interface {
	PublishMessage(ctx context.Context, topic string, payload interface{}) error
}

type CollectionConfig struct {
	TimeInterval   time.Duration // flush interval, default 30s
	CountThreshold int           // distinct entries that force an early flush, default 100
	Topic          string
	Service        string // stamped on every batch
	IncludeWarn    bool   // ship warn entries as well as errors
	Publisher      Publisher
	PublishTimeout time.Duration // default 10s
}

// LogBatch is the payload shipped per flush.
type LogBatch struct {
	Service string               `json:"service"`
	SentAt  time.Time            `json:"sent_at"`
	Entries []AggregatedLogEntry `json:"entries"`
}

// AggregatedLogEntry folds repeats of one (level, caller, message). Fields are
// those of the most recent occurrence.
type AggregatedLogEntry struct {
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields"`
	Caller    string                 `json:"caller"`
	Count     int                    `json:"count"`
	FirstSeen time.Time              `json:"first_seen"`
	LastSeen  time.Time              `json:"last_seen"`
}

// LogCollector aggregates error logs and ships them in batches.
type LogCollector struct {
	config  *CollectionConfig
	mu      sync.Mutex
	entries map[string]*AggregatedLogEntry
	stop    chan struct{}
	wg      sync.WaitGroup
	now     func() time.Time
}

func NewLogCollector(config *CollectionConfig) *LogCollector {
	if config.TimeInterval <= 0 {
		config.TimeInterval = 30 * time.Second
	}
	if config.CountThreshold <= 0 {
		config.CountThreshold = 100
	}
	if config.PublishTimeout <= 0 {
		config.PublishTimeout = 10 * time.Second
	}
	c := &LogCollector{
		config:  config,
		entries: make(map[string]*AggregatedLogEntry),
		stop:    make(chan struct{}),
		now:     time.Now,
	}
	c.wg.Add(1)
	go c.loop()
	return c
}

func (c *LogCollector) AddLog(level, message string, fields map[string]interface{}, caller string) {
	now := c.now()
	key := level + "|" + caller + "|" + message

	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		e.Count++
		e.LastSeen = now
		e.Fields = fields
	} else {
		c.entries[key] = &AggregatedLogEntry{
			Level:     level,
			Message:   message,
			Fields:    fields,
			Caller:    caller,
			Count:     1,
			FirstSeen: now,
			LastSeen:  now,
		}
	}
	var batch []AggregatedLogEntry
	if len(c.entries) >= c.config.CountThreshold {
		batch = c.takeLocked()
	}
	c.mu.Unlock()

	if batch != nil {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.publish(batch)
		}()
	}
}

func (c *LogCollector) loop() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.config.TimeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.Flush()
		case <-c.stop:
			c.Flush()
			return
		}
	}
}

// Flush ships whatever is pending and waits for the publish to finish.
func (c *LogCollector) Flush() {
	c.mu.Lock()
	batch := c.takeLocked()
	c.mu.Unlock()
	if batch != nil {
		c.publish(batch)
	}
}

// takeLocked drains the pending entries, most frequent first.
func (c *LogCollector) takeLocked() []AggregatedLogEntry {
	if len(c.entries) == 0 {
		return nil
	}
	out := make([]AggregatedLogEntry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, *e)
	}
	c.entries = make(map[string]*AggregatedLogEntry)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].FirstSeen.Before(out[j].FirstSeen)
	})
	return out
}

func (c *LogCollector) publish(entries []AggregatedLogEntry) {
	if c.config.Publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.config.PublishTimeout)
	defer cancel()
	batch := LogBatch{Service: c.config.Service, SentAt: c.now().UTC(), Entries: entries}
	if err := c.config.Publisher.PublishMessage(ctx, c.config.Topic, batch); err != nil {
		// the logger itself feeds this collector, so report on stderr only
		fmt.Fprintf(os.Stderr, "log collector: publish %d entries: %v\n", len(entries), err)
	}
}

// Close stops the flush loop after a final flush.
func (c *LogCollector) Close() {
	close(c.stop)
	c.wg.Wait()
}
