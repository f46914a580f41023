package clickhouse

import (
	"time"

	"IPHForecast/pkg/config"
)

type ClientOption func(*ClientConfig)

// ClientConfig describes the pool; NewClient fills unset fields with defaults.
type ClientConfig struct {
	Host            string
	Port            int
	Database        string
	User            string
	Password        string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	DialTimeout     time.Duration
	ReadTimeout     time.Duration
	UseHTTP         bool
	MaxExecTime     time.Duration
}

// FromConfig maps the clickhouse section of the service config onto options.
func FromConfig(cfg *config.Config) []ClientOption {
	ch := cfg.ClickHouse
	return []ClientOption{
		WithHost(ch.Host),
		WithPort(ch.Port),
		WithDatabase(ch.Database),
		WithCredentials(ch.User, ch.Password),
		WithTimeouts(ch.DialTimeout, ch.ReadTimeout),
		WithHTTP(ch.UseHTTP),
		WithMaxExecutionTime(ch.MaxExecutionTime),
	}
}

func WithHost(host string) ClientOption {
	return func(c *ClientConfig) { c.Host = host }
}

func WithPort(port int) ClientOption {
	return func(c *ClientConfig) { c.Port = port }
}

// WithDatabase selects the database the session starts in.
func WithDatabase(db string) ClientOption {
	return func(c *ClientConfig) { c.Database = db }
}

func WithCredentials(user, password string) ClientOption {
	return func(c *ClientConfig) { c.User, c.Password = user, password }
}

// WithTimeouts sets dial and read timeouts; zero keeps the default.
func WithTimeouts(dial, read time.Duration) ClientOption {
	return func(c *ClientConfig) {
		if dial > 0 {
			c.DialTimeout = dial
		}
		if read > 0 {
			c.ReadTimeout = read
		}
	}
}

// WithHTTP switches from the native protocol to HTTP, e.g. behind a proxy that only forwards 8123.
func WithHTTP(on bool) ClientOption {
	return func(c *ClientConfig) { c.UseHTTP = on }
}

// WithMaxExecutionTime caps server-side query time; whole seconds are sent.
func WithMaxExecutionTime(d time.Duration) ClientOption {
	return func(c *ClientConfig) { c.MaxExecTime = d }
}
