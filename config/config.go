// api/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	log "github.com/sirupsen/logrus"
)

const (
	BackendClickHouse = "clickhouse"
	BackendMemory     = "memory"
)

// Config is decoded from the environment (after .env is loaded).
type Config struct {
	Port    string `envconfig:"PORT" default:"8080"`
	GinMode string `envconfig:"GIN_MODE" default:"debug"`

	StoreBackend string `envconfig:"STORE_BACKEND" default:"clickhouse"`
	DatabaseURL  string `envconfig:"DATABASE_URL"`

	ClickHouse ClickHouse

	RetentionHours        int           `envconfig:"RETENTION_HOURS" default:"72"`
	AbandonAfterHours     int           `envconfig:"ABANDON_AFTER_HOURS" default:"24"`
	CheckoutDropMinutes   int           `envconfig:"CHECKOUT_DROP_MINUTES" default:"30"`
	RealtimeWindowMinutes int           `envconfig:"REALTIME_WINDOW_MINUTES" default:"30"`
	RealtimeTopK          int           `envconfig:"REALTIME_TOP_K" default:"10"`
	SweepInterval         time.Duration `envconfig:"SWEEP_INTERVAL" default:"10m"`
	RollupCacheSize       int           `envconfig:"ROLLUP_CACHE_SIZE" default:"512"`
	RollupCacheTTL        time.Duration `envconfig:"ROLLUP_CACHE_TTL" default:"60s"`
	QueryTimeout          time.Duration `envconfig:"QUERY_TIMEOUT" default:"10s"`

	IngestRatePerSec float64 `envconfig:"INGEST_RATE_PER_SEC" default:"50"`
	IngestBurst      int     `envconfig:"INGEST_BURST" default:"200"`

	FrontendOrigin string `envconfig:"FE_ORIGIN" default:"http://localhost:3000"`
	GeoIPDBPath    string `envconfig:"GEOIP_DB_PATH"`

	OpenAI OpenAI

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`
}

type ClickHouse struct {
	Host       string `envconfig:"CLICKHOUSE_HOST"`
	NativePort int    `envconfig:"CLICKHOUSE_NATIVE_PORT" default:"9000"`
	DBName     string `envconfig:"CLICKHOUSE_DB_NAME" default:"default"`
	Username   string `envconfig:"CLICKHOUSE_USERNAME" default:"default"`
	Password   string `envconfig:"CLICKHOUSE_PASSWORD"`
}

type OpenAI struct {
	APIKey  string `envconfig:"OPENAI_API_KEY"`
	BaseURL string `envconfig:"OPENAI_BASE_URL"`
	Model   string `envconfig:"OPENAI_MODEL" default:"gpt-4o-mini"`
}

// Load reads .env (if present) and decodes the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debugf("No .env file found or error loading .env: %v", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to read configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case BackendClickHouse:
		if c.ClickHouse.Host == "" {
			return fmt.Errorf("CLICKHOUSE_HOST is required when STORE_BACKEND=%s", BackendClickHouse)
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unsupported STORE_BACKEND %q", c.StoreBackend)
	}
	if c.RetentionHours <= 0 {
		return fmt.Errorf("RETENTION_HOURS must be positive, got %d", c.RetentionHours)
	}
	if c.RealtimeWindowMinutes <= 0 {
		return fmt.Errorf("REALTIME_WINDOW_MINUTES must be positive, got %d", c.RealtimeWindowMinutes)
	}
	if c.RealtimeTopK <= 0 {
		c.RealtimeTopK = 10
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = 10 * time.Minute
	}
	return nil
}

func (c *Config) AbandonAfter() time.Duration {
	return time.Duration(c.AbandonAfterHours) * time.Hour
}

func (c *Config) CheckoutDrop() time.Duration {
	return time.Duration(c.CheckoutDropMinutes) * time.Minute
}
