// Package config defines the configuration structures of the Molecule Search
// service. Only plain data types and validation live here; loading is in
// loader.go and defaults in defaults.go.
package config

import (
	"fmt"
	"time"
)

// Environments recognised by Server.Environment.
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
	EnvTest        = "test"
)

// Storage backends recognised by Storage.Backend.
const (
	StorageGCS   = "gcs"
	StorageMinIO = "minio"
)

// ─────────────────────────────────────────────────────────────────────────────
// Sub-configuration structs
// ─────────────────────────────────────────────────────────────────────────────

// ServerConfig holds HTTP server tunables.
type ServerConfig struct {
	Host            string          `mapstructure:"host"`
	Port            int             `mapstructure:"port"`
	Environment     string          `mapstructure:"environment"`
	AllowedOrigins  []string        `mapstructure:"allowed_origins"`
	ReadTimeout     time.Duration   `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration   `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration   `mapstructure:"shutdown_timeout"`
	MaxBodySize     int64           `mapstructure:"max_body_size"`
	RateLimit       RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig holds the per-client token bucket settings.
type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// VertexConfig locates the Discovery Engine serving config and tunes calls to it.
type VertexConfig struct {
	ProjectID     string        `mapstructure:"project_id"`
	Location      string        `mapstructure:"location"`
	Collection    string        `mapstructure:"collection"`
	EngineID      string        `mapstructure:"engine_id"`
	Endpoint      string        `mapstructure:"endpoint"`
	LanguageCode  string        `mapstructure:"language_code"`
	PageSize      int           `mapstructure:"page_size"`
	StreamTimeout time.Duration `mapstructure:"stream_timeout"`
	AnswerTimeout time.Duration `mapstructure:"answer_timeout"`

	// AccessToken short-circuits token acquisition (GOOGLE_ACCESS_TOKEN).
	AccessToken string `mapstructure:"access_token"`
	// UseADC forces Application Default Credentials even outside Cloud Run.
	UseADC        bool          `mapstructure:"use_adc"`
	GcloudPath    string        `mapstructure:"gcloud_path"`
	GcloudTimeout time.Duration `mapstructure:"gcloud_timeout"`
}

// Configured reports whether the identifiers needed to build a serving
// config URL are present.
func (v VertexConfig) Configured() bool {
	return v.ProjectID != "" && v.EngineID != "" && v.Location != "" && v.Collection != ""
}

// DatabaseConfig holds PostgreSQL connection parameters. Pool sizing follows
// a fixed pool plus overflow model.
type DatabaseConfig struct {
	DSN         string        `mapstructure:"dsn"`
	PoolSize    int           `mapstructure:"pool_size"`
	MaxOverflow int           `mapstructure:"max_overflow"`
	PoolTimeout time.Duration `mapstructure:"pool_timeout"`
	PoolRecycle time.Duration `mapstructure:"pool_recycle"`
	AutoMigrate bool          `mapstructure:"auto_migrate"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	DefaultTTL   time.Duration `mapstructure:"default_ttl"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
}

// StorageConfig selects and configures the document object store.
type StorageConfig struct {
	Backend    string        `mapstructure:"backend"`
	Bucket     string        `mapstructure:"bucket"`
	Prefix     string        `mapstructure:"prefix"`
	PresignTTL time.Duration `mapstructure:"presign_ttl"`
	GCS        GCSConfig     `mapstructure:"gcs"`
	MinIO      MinIOConfig   `mapstructure:"minio"`
}

// GCSConfig holds Google Cloud Storage parameters.
type GCSConfig struct {
	ProjectID       string `mapstructure:"project_id"`
	CredentialsFile string `mapstructure:"credentials_file"`
	// SigningAccount is the service account email used for V4 signed URLs
	// when the credentials do not embed a private key.
	SigningAccount string `mapstructure:"signing_account"`
}

// MinIOConfig holds MinIO / S3-compatible object-storage parameters.
type MinIOConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Region    string `mapstructure:"region"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// KafkaConfig holds the audit event producer parameters.
type KafkaConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	ClientID     string        `mapstructure:"client_id"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	RequiredAcks int           `mapstructure:"required_acks"`
}

// MetricsConfig holds Prometheus exposition parameters.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
	Path      string `mapstructure:"path"`
}

// LogConfig holds structured-logging parameters.
type LogConfig struct {
	Level       string   `mapstructure:"level"`  // "debug" | "info" | "warn" | "error"
	Format      string   `mapstructure:"format"` // "json" | "console"
	OutputPaths []string `mapstructure:"output_paths"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Root Config
// ─────────────────────────────────────────────────────────────────────────────

// Config is the root configuration structure.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Vertex   VertexConfig   `mapstructure:"vertex"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Log      LogConfig      `mapstructure:"log"`
}

// IsProduction reports whether the service runs with production semantics,
// where a database initialisation failure is fatal.
func (c *Config) IsProduction() bool {
	return c.Server.Environment == EnvProduction
}

// Addr returns the host:port the HTTP server listens on.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// ─────────────────────────────────────────────────────────────────────────────
// Validation
// ─────────────────────────────────────────────────────────────────────────────

// Validate checks a defaulted Config and returns the first problem found.
func (c *Config) Validate() error {
	// Server
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d is out of range [1, 65535]", c.Server.Port)
	}
	switch c.Server.Environment {
	case EnvDevelopment, EnvStaging, EnvProduction, EnvTest:
	default:
		return fmt.Errorf("config: server.environment %q is invalid; expected development|staging|production|test", c.Server.Environment)
	}
	if len(c.Server.AllowedOrigins) == 0 {
		return fmt.Errorf("config: server.allowed_origins must not be empty")
	}
	if c.Server.RateLimit.Enabled {
		if c.Server.RateLimit.RequestsPerSecond <= 0 {
			return fmt.Errorf("config: server.rate_limit.requests_per_second must be > 0")
		}
		if c.Server.RateLimit.Burst < 1 {
			return fmt.Errorf("config: server.rate_limit.burst must be ≥ 1, got %d", c.Server.RateLimit.Burst)
		}
	}

	// Vertex
	if c.Vertex.PageSize < 1 || c.Vertex.PageSize > 100 {
		return fmt.Errorf("config: vertex.page_size %d is out of range [1, 100]", c.Vertex.PageSize)
	}
	if c.Vertex.StreamTimeout <= 0 || c.Vertex.AnswerTimeout <= 0 {
		return fmt.Errorf("config: vertex timeouts must be positive")
	}

	// Database
	if c.Database.DSN == "" {
		return fmt.Errorf("config: database.dsn is required")
	}
	if c.Database.PoolSize < 1 {
		return fmt.Errorf("config: database.pool_size must be ≥ 1, got %d", c.Database.PoolSize)
	}
	if c.Database.MaxOverflow < 0 {
		return fmt.Errorf("config: database.max_overflow must be ≥ 0, got %d", c.Database.MaxOverflow)
	}

	// Redis
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("config: redis.addr is required when redis is enabled")
	}
	if c.Redis.DB < 0 {
		return fmt.Errorf("config: redis.db must be ≥ 0, got %d", c.Redis.DB)
	}

	// Storage
	switch c.Storage.Backend {
	case StorageGCS:
	case StorageMinIO:
		if c.Storage.MinIO.Endpoint == "" {
			return fmt.Errorf("config: storage.minio.endpoint is required for the minio backend")
		}
	default:
		return fmt.Errorf("config: storage.backend %q is invalid; expected gcs|minio", c.Storage.Backend)
	}

	// Kafka
	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("config: kafka.brokers must contain at least one broker address")
		}
		if c.Kafka.Topic == "" {
			return fmt.Errorf("config: kafka.topic is required")
		}
	}

	// Log
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: log.level %q is invalid; expected debug|info|warn|error", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("config: log.format %q is invalid; expected json|console", c.Log.Format)
	}

	return nil
}
