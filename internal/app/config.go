package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. ETERNAL_SERVER_PORT.
const EnvPrefix = "ETERNAL"

// Config represents the runtime configuration for the EternalMemory backend.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Images      ImageConfig       `mapstructure:"images"`
	LLM         LLMConfig         `mapstructure:"llm"`
	Monitoring  MonitoringConfig  `mapstructure:"monitoring"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	LogLevel        string        `mapstructure:"log_level"`
	LogFormat       string        `mapstructure:"log_format"`
	PublicURL       string        `mapstructure:"public_url"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// AdminEmail is promoted to SUPER_ADMIN at start-up once that account exists.
	AdminEmail string `mapstructure:"admin_email"`
}

// DatabaseConfig describes connection options for the supported databases.
type DatabaseConfig struct {
	Driver       string       `mapstructure:"driver"`
	Path         string       `mapstructure:"path"`
	DSN          string       `mapstructure:"dsn"`
	MaxOpenConns int          `mapstructure:"max_open_conns"`
	LogQueries   bool         `mapstructure:"log_queries"`
	Postgres     DBAuthConfig `mapstructure:"postgres"`
	MySQL        DBAuthConfig `mapstructure:"mysql"`
}

// DBAuthConfig represents host based database parameters.
type DBAuthConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// CacheConfig tunes the in-process memorial cache.
type CacheConfig struct {
	MemorialTTL     time.Duration `mapstructure:"memorial_ttl"`
	Capacity        int           `mapstructure:"capacity"`
	JanitorInterval time.Duration `mapstructure:"janitor_interval"`
	// TaskTimeout bounds detached work such as hit-path view increments.
	TaskTimeout time.Duration `mapstructure:"task_timeout"`
}

// AuthConfig captures all authentication-related settings.
type AuthConfig struct {
	JWT     JWTSettings     `mapstructure:"jwt"`
	Session SessionSettings `mapstructure:"session"`
	Google  GoogleSettings  `mapstructure:"google"`
}

// JWTSettings configures JWT access tokens.
type JWTSettings struct {
	Secret string        `mapstructure:"secret"`
	Issuer string        `mapstructure:"issuer"`
	TTL    time.Duration `mapstructure:"access_token_ttl"`
}

// SessionSettings configures refresh tokens and session lifetimes.
type SessionSettings struct {
	RefreshTTL    time.Duration `mapstructure:"refresh_token_ttl"`
	RefreshLength int           `mapstructure:"refresh_token_length"`
}

// GoogleSettings configures Google sign-in.
type GoogleSettings struct {
	Enabled      bool   `mapstructure:"enabled"`
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RedirectURL  string `mapstructure:"redirect_url"`
}

// StorageConfig selects where uploaded images live.
type StorageConfig struct {
	Driver   string   `mapstructure:"driver"`
	LocalDir string   `mapstructure:"local_dir"`
	BaseURL  string   `mapstructure:"base_url"`
	S3       S3Config `mapstructure:"s3"`
}

// S3Config holds S3 or MinIO settings.
type S3Config struct {
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UsePathStyle    bool   `mapstructure:"use_path_style"`
}

// ImageConfig bounds the upload pipeline.
type ImageConfig struct {
	MaxUploadBytes int64 `mapstructure:"max_upload_bytes"`
	MaxDimension   int   `mapstructure:"max_dimension"`
	ThumbnailSize  int   `mapstructure:"thumbnail_size"`
	JPEGQuality    int   `mapstructure:"jpeg_quality"`
}

// LLMConfig configures the language model used for obituaries and digital life chat.
type LLMConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Temperature float64       `mapstructure:"temperature"`
	Breaker     BreakerConfig `mapstructure:"breaker"`
}

// BreakerConfig tunes the circuit breaker around the LLM provider.
type BreakerConfig struct {
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
	MinRequests  uint32        `mapstructure:"min_requests"`
}

// MonitoringConfig enables health checks and metrics.
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Health     HealthConfig     `mapstructure:"health_check"`
}

// PrometheusConfig toggles metrics endpoints.
type PrometheusConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// HealthConfig toggles health endpoints.
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// MaintenanceConfig schedules cleanup jobs. Schedules use cron syntax with optional
// descriptors such as "@hourly".
type MaintenanceConfig struct {
	Enabled            bool   `mapstructure:"enabled"`
	SessionSchedule    string `mapstructure:"session_schedule"`
	CacheSchedule      string `mapstructure:"cache_schedule"`
	AuditSchedule      string `mapstructure:"audit_schedule"`
	AuditRetentionDays int    `mapstructure:"audit_retention_days"`
}

// RateLimitConfig bounds request rates per client IP.
type RateLimitConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Requests     int           `mapstructure:"requests"`
	Window       time.Duration `mapstructure:"window"`
	AuthRequests int           `mapstructure:"auth_requests"`
	AuthWindow   time.Duration `mapstructure:"auth_window"`
	AIRequests   int           `mapstructure:"ai_requests"`
	AIWindow     time.Duration `mapstructure:"ai_window"`
}

// LoadConfig initialises application configuration using Viper with sensible defaults.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgErr) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	return &config, nil
}

// setDefaults registers every key, including empty secrets, so AutomaticEnv can
// override keys that no config file mentions.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "json")
	v.SetDefault("server.public_url", "http://localhost:3000")
	v.SetDefault("server.cors_origins", []string{})
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("server.admin_email", "")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/eternal.sqlite")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 0)
	v.SetDefault("database.log_queries", false)
	for _, driver := range []string{"postgres", "mysql"} {
		v.SetDefault("database."+driver+".host", "")
		v.SetDefault("database."+driver+".port", 0)
		v.SetDefault("database."+driver+".database", "")
		v.SetDefault("database."+driver+".username", "")
		v.SetDefault("database."+driver+".password", "")
	}

	v.SetDefault("cache.memorial_ttl", "60s")
	v.SetDefault("cache.capacity", 10000)
	v.SetDefault("cache.janitor_interval", "5m")
	v.SetDefault("cache.task_timeout", "5s")

	v.SetDefault("auth.jwt.secret", "")
	v.SetDefault("auth.jwt.issuer", "eternal")
	v.SetDefault("auth.jwt.access_token_ttl", "15m")
	v.SetDefault("auth.session.refresh_token_ttl", "720h") // 30 days
	v.SetDefault("auth.session.refresh_token_length", 48)
	v.SetDefault("auth.google.enabled", false)
	v.SetDefault("auth.google.client_id", "")
	v.SetDefault("auth.google.client_secret", "")
	v.SetDefault("auth.google.redirect_url", "")

	v.SetDefault("storage.driver", "local")
	v.SetDefault("storage.local_dir", "./data/uploads")
	v.SetDefault("storage.base_url", "")
	v.SetDefault("storage.s3.bucket", "")
	v.SetDefault("storage.s3.region", "us-east-1")
	v.SetDefault("storage.s3.endpoint", "")
	v.SetDefault("storage.s3.access_key_id", "")
	v.SetDefault("storage.s3.secret_access_key", "")
	v.SetDefault("storage.s3.use_path_style", false)

	v.SetDefault("images.max_upload_bytes", 10<<20)
	v.SetDefault("images.max_dimension", 2048)
	v.SetDefault("images.thumbnail_size", 320)
	v.SetDefault("images.jpeg_quality", 85)

	v.SetDefault("llm.enabled", false)
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.timeout", "30s")
	v.SetDefault("llm.max_tokens", 1024)
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.breaker.max_requests", 2)
	v.SetDefault("llm.breaker.interval", "1m")
	v.SetDefault("llm.breaker.timeout", "30s")
	v.SetDefault("llm.breaker.failure_ratio", 0.6)
	v.SetDefault("llm.breaker.min_requests", 5)

	v.SetDefault("monitoring.prometheus.enabled", true)
	v.SetDefault("monitoring.prometheus.endpoint", "/metrics")
	v.SetDefault("monitoring.health_check.enabled", true)

	v.SetDefault("maintenance.enabled", true)
	v.SetDefault("maintenance.session_schedule", "@hourly")
	v.SetDefault("maintenance.cache_schedule", "@hourly")
	v.SetDefault("maintenance.audit_schedule", "@daily")
	v.SetDefault("maintenance.audit_retention_days", 90)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests", 300)
	v.SetDefault("rate_limit.window", "1m")
	v.SetDefault("rate_limit.auth_requests", 10)
	v.SetDefault("rate_limit.auth_window", "1m")
	v.SetDefault("rate_limit.ai_requests", 20)
	v.SetDefault("rate_limit.ai_window", "1h")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
