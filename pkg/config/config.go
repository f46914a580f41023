package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"
)

// ModelSpec names one predictor artifact to load.
type ModelSpec struct {
	Name string `yaml:"name"`
	Path string `yaml:"path"` // relative to models.dir; empty means <name>.json
}

type Config struct {
	Environment string `yaml:"environment" default:"development"`
	Server      struct {
		Host            string        `yaml:"host" default:"0.0.0.0"`
		Port            int           `yaml:"port" default:"5001"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"30s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		SlowRequest     time.Duration `yaml:"slow_request" default:"2s"`
		BodyLimit       string        `yaml:"body_limit" default:"1M"`
		CORS            bool          `yaml:"cors" default:"true"`
	} `yaml:"server"`
	Logging struct {
		Level     string `yaml:"level" default:"info"`
		Format    string `yaml:"format" default:"console"`
		Output    string `yaml:"output" default:"stdout"`
		ShipTopic string `yaml:"ship_topic"`
	} `yaml:"logging"`
	Storage struct {
		Type    string `yaml:"type" default:"csv"` // csv | clickhouse
		CSVPath string `yaml:"csv_path" default:"data/IPH-Kota-Batu.csv"`
	} `yaml:"storage"`
	ClickHouse struct {
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"iph"`
		Table            string        `yaml:"table" default:"iph_observations"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"30s"`
	} `yaml:"clickhouse"`
	Kafka struct {
		Brokers           []string `yaml:"brokers"`
		ObservationsTopic string   `yaml:"observations_topic" default:"iph.observations"`
		ForecastsTopic    string   `yaml:"forecasts_topic" default:"iph.forecasts"`
		RequiredAcks      int      `yaml:"required_acks" default:"-1"`
		Compression       string   `yaml:"compression" default:"gzip"`
		AutoCreateTopics  bool     `yaml:"auto_create_topics"`
		Producer          struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"200ms"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
		} `yaml:"producer"`
		Consumer struct {
			Enabled    bool          `yaml:"enabled"`
			GroupID    string        `yaml:"group_id" default:"iph-forecast"`
			Workers    int           `yaml:"workers" default:"1"`
			BufferSize int           `yaml:"buffer_size" default:"64"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"100ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
			DLQTopic   string        `yaml:"dlq_topic"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	Redis struct {
		Addr        string        `yaml:"addr" default:"localhost:6379"`
		Password    string        `yaml:"password"`
		DB          int           `yaml:"db"`
		DialTimeout time.Duration `yaml:"dial_timeout" default:"2s"`
	} `yaml:"redis"`
	Cache struct {
		Type       string        `yaml:"type" default:"memory"` // memory | redis | none
		TTL        time.Duration `yaml:"ttl" default:"5m"`
		MaxEntries int           `yaml:"max_entries" default:"256"`
	} `yaml:"cache"`
	Models struct {
		Dir           string        `yaml:"dir" default:"models"`
		RegistryURL   string        `yaml:"registry_url"`
		RegistryToken string        `yaml:"registry_token"`
		FetchTimeout  time.Duration `yaml:"fetch_timeout" default:"10s"`
		List          []ModelSpec   `yaml:"list"`
		Tables        struct {
			Accuracy       map[string]float64 `yaml:"accuracy"`
			Margin         map[string]float64 `yaml:"margin"`
			DefaultAcc     float64            `yaml:"default_accuracy" default:"1.0"`
			DefaultMargin  float64            `yaml:"default_margin" default:"0.5"`
			MaxMembers     int                `yaml:"max_members" default:"50"`
			Z95            float64            `yaml:"z95" default:"1.96"`
			ZOther         float64            `yaml:"z_other" default:"2.58"`
			FallbackMargin float64            `yaml:"fallback_margin" default:"0.5"`
		} `yaml:"tables"`
	} `yaml:"models"`
	Forecast struct {
		Horizon         int     `yaml:"horizon" default:"4"`
		ConfidenceLevel float64 `yaml:"confidence_level" default:"0.95"`
	} `yaml:"forecast"`
	Ingestion struct {
		Backend       string        `yaml:"backend" default:"store"` // store | kafka
		FeedEnabled   bool          `yaml:"feed_enabled"`
		FeedURL       string        `yaml:"feed_url"`
		FeedToken     string        `yaml:"feed_token"`
		Reconnect     time.Duration `yaml:"reconnect_delay" default:"5s"`
		PingInterval  time.Duration `yaml:"ping_interval" default:"30s"`
		BufferSize    int           `yaml:"buffer_size" default:"256"`
		AppendTimeout time.Duration `yaml:"append_timeout" default:"10s"`
	} `yaml:"ingestion"`
	Journal struct {
		SQLitePath string `yaml:"sqlite_path" default:"data/forecast_journal.db"`
	} `yaml:"journal"`
	Scheduler struct {
		Enabled    bool   `yaml:"enabled"`
		WeeklyCron string `yaml:"weekly_cron" default:"0 0 8 * * 1"`
		RunOnStart bool   `yaml:"run_on_start"`
	} `yaml:"scheduler"`
	RateLimit struct {
		Capacity     float64 `yaml:"capacity" default:"10"`
		RefillPerSec float64 `yaml:"refill_per_sec" default:"1"`
	} `yaml:"rate_limit"`
}

// Load reads and parses a YAML configuration file. Unset fields take their struct defaults.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML bytes on top of the defaults and validates the result.
func Parse(b []byte) (*Config, error) {
	c, err := decode(b)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func decode(b []byte) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	c.fillModelDefaults()
	return &c, nil
}

// Default returns a validated configuration with every default applied.
func Default() *Config {
	c, err := Parse(nil)
	if err != nil {
		panic(err)
	}
	return c
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
// Validation runs after the overrides, so secrets may live only in the environment.
func LoadWithEnv(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	c, err := decode(b)
	if err != nil {
		return nil, err
	}
	c.applyEnv()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("IPH_ENV"); v != "" {
		c.Environment = v
	}
	if v := os.Getenv("IPH_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.Port = p
		}
	}
	if v := os.Getenv("IPH_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("IPH_STORAGE"); v != "" {
		c.Storage.Type = v
	}
	if v := os.Getenv("IPH_CSV_PATH"); v != "" {
		c.Storage.CSVPath = v
	}
	if v := os.Getenv("IPH_MODELS_DIR"); v != "" {
		c.Models.Dir = v
	}
	if v := os.Getenv("IPH_MODEL_REGISTRY_URL"); v != "" {
		c.Models.RegistryURL = v
	}
	if v := os.Getenv("IPH_MODEL_REGISTRY_TOKEN"); v != "" {
		c.Models.RegistryToken = v
	}
	if v := os.Getenv("IPH_INGESTION_BACKEND"); v != "" {
		c.Ingestion.Backend = v
	}
	if v := os.Getenv("IPH_FEED_TOKEN"); v != "" {
		c.Ingestion.FeedToken = v
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
}

// fillModelDefaults seeds the per-model accuracy and margin tables.
func (c *Config) fillModelDefaults() {
	if c.Models.Tables.Accuracy == nil {
		c.Models.Tables.Accuracy = map[string]float64{
			"Random_Forest":    0.85,
			"LightGBM":         0.92,
			"KNN":              1.15,
			"XGBoost_Advanced": 0.88,
		}
	}
	if c.Models.Tables.Margin == nil {
		c.Models.Tables.Margin = map[string]float64{
			"Random_Forest":    0.5,
			"LightGBM":         0.6,
			"KNN":              0.8,
			"XGBoost_Advanced": 0.5,
		}
	}
	if len(c.Models.List) == 0 {
		c.Models.List = []ModelSpec{
			{Name: "Random_Forest"},
			{Name: "LightGBM"},
			{Name: "KNN"},
			{Name: "XGBoost_Advanced"},
		}
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	switch c.Storage.Type {
	case "csv":
		if c.Storage.CSVPath == "" {
			return fmt.Errorf("storage.csv_path is required for csv storage")
		}
	case "clickhouse":
		if c.ClickHouse.Host == "" {
			return fmt.Errorf("clickhouse.host is required for clickhouse storage")
		}
	default:
		return fmt.Errorf("storage.type must be 'csv' or 'clickhouse', got '%s'", c.Storage.Type)
	}
	switch c.Ingestion.Backend {
	case "store":
	case "kafka":
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka.brokers is required for kafka ingestion")
		}
	default:
		return fmt.Errorf("ingestion.backend must be 'store' or 'kafka', got '%s'", c.Ingestion.Backend)
	}
	if c.Ingestion.FeedEnabled && c.Ingestion.FeedURL == "" {
		return fmt.Errorf("ingestion.feed_url is required when the feed is enabled")
	}
	switch c.Kafka.Compression {
	case "gzip", "snappy", "lz4", "zstd":
	default:
		return fmt.Errorf("kafka.compression must be gzip, snappy, lz4 or zstd, got '%s'", c.Kafka.Compression)
	}
	if c.Kafka.Consumer.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required when the consumer is enabled")
	}
	switch c.Cache.Type {
	case "memory", "redis", "none":
	default:
		return fmt.Errorf("cache.type must be 'memory', 'redis' or 'none', got '%s'", c.Cache.Type)
	}
	if c.Forecast.Horizon < 1 || c.Forecast.Horizon > 4 {
		return fmt.Errorf("forecast.horizon must be within 1..4, got %d", c.Forecast.Horizon)
	}
	if c.Forecast.ConfidenceLevel <= 0 || c.Forecast.ConfidenceLevel >= 1 {
		return fmt.Errorf("forecast.confidence_level must be within (0, 1)")
	}
	if c.Models.Tables.MaxMembers < 1 {
		return fmt.Errorf("models.tables.max_members must be positive")
	}
	if c.Models.Tables.Z95 <= 0 || c.Models.Tables.ZOther <= 0 {
		return fmt.Errorf("models.tables.z95 and models.tables.z_other must be positive")
	}
	seen := make(map[string]struct{}, len(c.Models.List))
	for _, m := range c.Models.List {
		if m.Name == "" {
			return fmt.Errorf("models.list entries need a name")
		}
		if _, dup := seen[m.Name]; dup {
			return fmt.Errorf("models.list has duplicate model %q", m.Name)
		}
		seen[m.Name] = struct{}{}
	}
	return nil
}
