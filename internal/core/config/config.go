// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type LookupEventsCfg struct {
	Enabled   bool     `env:"LOOKUP_EVENTS_ENABLED" envDefault:"false"`
	Brokers   []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	Topic     string   `env:"LOOKUP_EVENTS_TOPIC" envDefault:"coverage-lookups"`
	QueueSize int      `env:"LOOKUP_EVENTS_QUEUE" envDefault:"1024"`
}

type Config struct {
	Addr       string `env:"ADDR" envDefault:":8090"`
	LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`
	LogConsole bool   `env:"LOG_CONSOLE" envDefault:"false"`
	LogSampleN int    `env:"LOG_SAMPLE_N" envDefault:"0"`
	Scenario   string `env:"SCENARIO" envDefault:"cache"`

	DatabaseURL       string        `env:"DATABASE_URL" envDefault:"postgres://localhost:5432/coverage?sslmode=disable"`
	DBMaxConns        int32         `env:"DB_MAX_CONNS" envDefault:"16"`
	DBMinConns        int32         `env:"DB_MIN_CONNS" envDefault:"2"`
	StoreQueryTimeout time.Duration `env:"STORE_QUERY_TIMEOUT" envDefault:"3s"`
	CoverageTable     string        `env:"COVERAGE_TABLE" envDefault:"coverage_table"`
	ProductTable      string        `env:"PRODUCT_TABLE" envDefault:"product_table"`

	CacheDriver    string        `env:"CACHE_DRIVER" envDefault:"memory"`
	CacheTTL       time.Duration `env:"CACHE_TTL" envDefault:"600s"`
	CacheSize      int           `env:"CACHE_SIZE" envDefault:"10000"`
	CacheOpTimeout time.Duration `env:"CACHE_OP_TIMEOUT" envDefault:"250ms"`
	RedisAddr      string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`

	H3Res          int           `env:"H3_RES" envDefault:"8"`
	DemandHalfLife time.Duration `env:"DEMAND_HALF_LIFE" envDefault:"1h"`

	// DemandLogThreshold logs cells whose uncovered score reaches it; 0 disables.
	DemandLogThreshold float64 `env:"DEMAND_LOG_THRESHOLD" envDefault:"50"`
	DemandLogSample    float64 `env:"DEMAND_LOG_SAMPLE" envDefault:"0.1"`

	MetricsEnabled bool   `env:"METRICS_ENABLED" envDefault:"true"`
	MetricsPath    string `env:"METRICS_PATH" envDefault:"/metrics"`

	LookupEvents LookupEventsCfg

	Build BuildCfg
}

type BuildCfg struct {
	Version  string `env:"BUILD_VERSION" envDefault:"dev"`
	Revision string `env:"BUILD_REVISION"`
	Branch   string `env:"BUILD_BRANCH"`
	Date     string `env:"BUILD_DATE"`
}

const (
	CacheDriverMemory = "memory"
	CacheDriverRedis  = "redis"
)

// FromEnv parses the environment and clamps out-of-range values.
func FromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	cfg.Scenario = strings.ToLower(strings.TrimSpace(cfg.Scenario))
	cfg.CacheDriver = strings.ToLower(strings.TrimSpace(cfg.CacheDriver))

	if cfg.H3Res < 0 {
		cfg.H3Res = 0
	}
	if cfg.H3Res > 15 {
		cfg.H3Res = 15
	}
	if cfg.DemandLogThreshold < 0 {
		cfg.DemandLogThreshold = 0
	}
	if cfg.DemandLogSample < 0 {
		cfg.DemandLogSample = 0
	}
	if cfg.DemandLogSample > 1 {
		cfg.DemandLogSample = 1
	}
	if !strings.HasPrefix(cfg.MetricsPath, "/") {
		cfg.MetricsPath = "/" + cfg.MetricsPath
	}
	if cfg.StoreQueryTimeout <= 0 {
		cfg.StoreQueryTimeout = 3 * time.Second
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	switch c.CacheDriver {
	case CacheDriverMemory, CacheDriverRedis:
	default:
		return fmt.Errorf("CACHE_DRIVER must be memory|redis (got %q)", c.CacheDriver)
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("CACHE_TTL must be positive (got %s)", c.CacheTTL)
	}
	if c.LookupEvents.Enabled && len(c.LookupEvents.Brokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required when LOOKUP_EVENTS_ENABLED=true")
	}
	return nil
}
