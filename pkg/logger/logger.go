package logger

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog with typed fields and optional shipping of error logs.
type Logger struct {
	zl   zerolog.Logger
	sink *sink
}

// sink is shared by a logger and all its children, so a collector attached
// after With() still sees the children's errors.
type sink struct {
	mu        sync.RWMutex
	collector *LogCollector
}

func (s *sink) get() *LogCollector {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collector
}

// moduleRoot is stripped from caller paths shipped to the collector.
const moduleRoot = "IPHForecast"

type Config struct {
	Level      string // debug, info, warn, error
	Format     string // json or console
	Output     string // stdout, stderr, or file path
	TimeFormat string
}

func New(cfg *Config) (*Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	var output io.Writer
	switch cfg.Output {
	case "", "stdout":
		output = os.Stdout
	case "stderr":
		output = os.Stderr
	default:
		file, err := os.OpenFile(cfg.Output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("could not open log file: %w", err)
		}
		output = file
	}

	timeFormat := cfg.TimeFormat
	if timeFormat == "" {
		timeFormat = time.RFC3339
	}
	zerolog.TimeFieldFormat = timeFormat
	if cfg.Format == "console" {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: timeFormat}
	}

	zl := zerolog.New(output).Level(level).
		With().
		Timestamp().
		Str("service", "iph-forecast").
		CallerWithSkipFrameCount(4).
		Logger()
	return &Logger{zl: zl, sink: &sink{}}, nil
}

// NewNop returns a logger that discards everything. Used by tests and the CLI quiet mode.
func NewNop() *Logger {
	return &Logger{zl: zerolog.Nop(), sink: &sink{}}
}

// With returns a child logger carrying a fixed component field.
func (l *Logger) With(component string) *Logger {
	return &Logger{zl: l.zl.With().Str("component", component).Logger(), sink: l.sink}
}

func (l *Logger) Debug(msg string, fields ...Field) { l.log(zerolog.DebugLevel, msg, fields) }
func (l *Logger) Info(msg string, fields ...Field)  { l.log(zerolog.InfoLevel, msg, fields) }
func (l *Logger) Warn(msg string, fields ...Field)  { l.log(zerolog.WarnLevel, msg, fields) }
func (l *Logger) Error(msg string, fields ...Field) { l.log(zerolog.ErrorLevel, msg, fields) }

func (l *Logger) log(level zerolog.Level, msg string, fields []Field) {
	event := l.zl.WithLevel(level)
	for _, f := range fields {
		f.add(event)
	}
	event.Msg(msg)

	if level < zerolog.WarnLevel {
		return
	}
	c := l.sink.get()
	if c == nil || (level == zerolog.WarnLevel && !c.config.IncludeWarn) {
		return
	}
	c.AddLog(level.String(), msg, fieldMap(fields), caller(3))
}

// AddCollector starts shipping error (and optionally warn) logs. An existing collector is closed first.
func (l *Logger) AddCollector(config *CollectionConfig) {
	next := NewLogCollector(config)
	l.sink.mu.Lock()
	prev := l.sink.collector
	l.sink.collector = next
	l.sink.mu.Unlock()
	if prev != nil {
		prev.Close()
	}
}

// RemoveCollector flushes and detaches the collector.
func (l *Logger) RemoveCollector() {
	l.sink.mu.Lock()
	prev := l.sink.collector
	l.sink.collector = nil
	l.sink.mu.Unlock()
	if prev != nil {
		prev.Close()
	}
}

func caller(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return "unknown"
	}
	if i := strings.LastIndex(file, moduleRoot); i >= 0 {
		file = file[i+len(moduleRoot):]
	}
	return fmt.Sprintf("%s:%d", file, line)
}

func fieldMap(fields []Field) map[string]interface{} {
	m := make(map[string]interface{}, len(fields))
	for _, f := range fields {
		m[f.Key] = f.Value
	}
	return m
}

// Field is one structured key/value attached to a log line.
type Field struct {
	Key   string
	Value interface{}
	add   func(e *zerolog.Event)
}

func String(key, value string) Field {
	return Field{Key: key, Value: value, add: func(e *zerolog.Event) { e.Str(key, value) }}
}

func Int(key string, value int) Field {
	return Field{Key: key, Value: value, add: func(e *zerolog.Event) { e.Int(key, value) }}
}

func Int64(key string, value int64) Field {
	return Field{Key: key, Value: value, add: func(e *zerolog.Event) { e.Int64(key, value) }}
}

func Float64(key string, value float64) Field {
	return Field{Key: key, Value: value, add: func(e *zerolog.Event) { e.Float64(key, value) }}
}

func Error(err error) Field {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return Field{Key: "error", Value: msg, add: func(e *zerolog.Event) { e.Err(err) }}
}

// Date logs a calendar date as YYYY-MM-DD.
func Date(key string, value time.Time) Field {
	return String(key, value.Format("2006-01-02"))
}

// Duration logs whole milliseconds; name the key accordingly.
func Duration(key string, value time.Duration) Field {
	ms := value.Milliseconds()
	return Field{Key: key, Value: ms, add: func(e *zerolog.Event) { e.Int64(key, ms) }}
}

func Any(key string, value interface{}) Field {
	return Field{Key: key, Value: value, add: func(e *zerolog.Event) { e.Interface(key, value) }}
}
