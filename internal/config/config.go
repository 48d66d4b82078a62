package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the AdPulse analytics engine.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	ClickHouse ClickHouseConfig
	Auth       AuthConfig
	RateLimit  RateLimitConfig
	Log        LogConfig
	Metrics    MetricsConfig
	Analytics  AnalyticsConfig
}

type ServerConfig struct {
	Addr            string
	Env             string
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
	MinConns int
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	LockTTL  time.Duration
}

// ClickHouseConfig configures the ingestion audit log sink.
type ClickHouseConfig struct {
	Enabled  bool
	Addr     string
	Database string
	User     string
	Password string
}

type AuthConfig struct {
	Enabled   bool
	MasterKey string
	SkipPaths []string
}

type RateLimitConfig struct {
	Enabled bool
	RPS     float64
	Burst   int
}

type LogConfig struct {
	Level  string
	Format string
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled   bool
	Path      string
	Namespace string
}

// AnalyticsConfig holds tunables for aggregation and testing.
type AnalyticsConfig struct {
	// RevenuePerConversion is the assumed revenue per conversion used
	// for ROAS until real revenue attribution lands.
	RevenuePerConversion float64
	// MaxRecommendations caps the weekly report's advice list.
	MaxRecommendations int
	// DefaultMinSampleSize applies to tests created without one.
	DefaultMinSampleSize int64
	// DefaultConfidence applies to tests created without one, percent.
	DefaultConfidence float64
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Addr:            getEnv("ADPULSE_HTTP_ADDR", ":8080"),
			Env:             getEnv("ADPULSE_ENV", "development"),
			ShutdownTimeout: getDurationEnv("ADPULSE_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Enabled:  getBoolEnv("ADPULSE_DB_ENABLED", false),
			Host:     getEnv("ADPULSE_DB_HOST", "localhost"),
			Port:     getIntEnv("ADPULSE_DB_PORT", 5432),
			User:     getEnv("ADPULSE_DB_USER", "adpulse"),
			Password: getEnv("ADPULSE_DB_PASSWORD", "adpulse_secret"),
			DBName:   getEnv("ADPULSE_DB_NAME", "adpulse"),
			SSLMode:  getEnv("ADPULSE_DB_SSLMODE", "disable"),
			MaxConns: getIntEnv("ADPULSE_DB_MAX_CONNS", 25),
			MinConns: getIntEnv("ADPULSE_DB_MIN_CONNS", 5),
		},
		Redis: RedisConfig{
			Enabled:  getBoolEnv("ADPULSE_REDIS_ENABLED", false),
			Addr:     getEnv("ADPULSE_REDIS_ADDR", "localhost:6379"),
			Password: getEnv("ADPULSE_REDIS_PASSWORD", ""),
			DB:       getIntEnv("ADPULSE_REDIS_DB", 0),
			LockTTL:  getDurationEnv("ADPULSE_REDIS_LOCK_TTL", 10*time.Second),
		},
		ClickHouse: ClickHouseConfig{
			Enabled:  getBoolEnv("ADPULSE_CLICKHOUSE_ENABLED", false),
			Addr:     getEnv("ADPULSE_CLICKHOUSE_ADDR", "localhost:9000"),
			Database: getEnv("ADPULSE_CLICKHOUSE_DB", "adpulse"),
			User:     getEnv("ADPULSE_CLICKHOUSE_USER", "default"),
			Password: getEnv("ADPULSE_CLICKHOUSE_PASSWORD", ""),
		},
		Auth: AuthConfig{
			Enabled:   getBoolEnv("ADPULSE_AUTH_ENABLED", true),
			MasterKey: getEnv("ADPULSE_API_KEY_MASTER", ""),
			SkipPaths: getSliceEnv("ADPULSE_AUTH_SKIP_PATHS", []string{"/health", "/metrics"}),
		},
		RateLimit: RateLimitConfig{
			Enabled: getBoolEnv("ADPULSE_RATE_LIMIT_ENABLED", true),
			RPS:     getFloatEnv("ADPULSE_RATE_LIMIT_RPS", 100),
			Burst:   getIntEnv("ADPULSE_RATE_LIMIT_BURST", 50),
		},
		Log: LogConfig{
			Level:  getEnv("ADPULSE_LOG_LEVEL", "info"),
			Format: getEnv("ADPULSE_LOG_FORMAT", "json"),
		},
		Metrics: MetricsConfig{
			Enabled:   getBoolEnv("ADPULSE_METRICS_ENABLED", true),
			Path:      getEnv("ADPULSE_METRICS_PATH", "/metrics"),
			Namespace: getEnv("ADPULSE_METRICS_NAMESPACE", "adpulse"),
		},
		Analytics: AnalyticsConfig{
			RevenuePerConversion: getFloatEnv("ADPULSE_REVENUE_PER_CONVERSION", 50),
			MaxRecommendations:   getIntEnv("ADPULSE_MAX_RECOMMENDATIONS", 6),
			DefaultMinSampleSize: int64(getIntEnv("ADPULSE_AB_MIN_SAMPLE_SIZE", 1000)),
			DefaultConfidence:    getFloatEnv("ADPULSE_AB_CONFIDENCE", 95),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.Auth.Enabled && c.Auth.MasterKey == "" {
		return fmt.Errorf("ADPULSE_API_KEY_MASTER is required when auth is enabled")
	}
	if c.Analytics.RevenuePerConversion <= 0 {
		return fmt.Errorf("ADPULSE_REVENUE_PER_CONVERSION must be positive")
	}
	if c.Analytics.DefaultConfidence <= 0 || c.Analytics.DefaultConfidence >= 100 {
		return fmt.Errorf("ADPULSE_AB_CONFIDENCE must be between 0 and 100 exclusive")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// Helper functions for reading environment variables

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getIntEnv(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getFloatEnv(key string, def float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getBoolEnv(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getDurationEnv(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getSliceEnv(key string, def []string) []string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				result = append(result, p)
			}
		}
		return result
	}
	return def
}
