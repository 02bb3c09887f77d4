package config

import "time"

// ─────────────────────────────────────────────────────────────────────────────
// Default value constants
// ─────────────────────────────────────────────────────────────────────────────

const (
	DefaultServerHost      = "0.0.0.0"
	DefaultServerPort      = 8000
	DefaultEnvironment     = EnvDevelopment
	DefaultAllowedOrigin   = "http://localhost:3000"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 180 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultMaxBodySize     = 1 << 20
	DefaultRateLimitRPS    = 5.0
	DefaultRateLimitBurst  = 20

	DefaultVertexLocation      = "global"
	DefaultVertexCollection    = "default_collection"
	DefaultVertexEndpoint      = "https://discoveryengine.googleapis.com/v1alpha"
	DefaultVertexLanguageCode  = "en-GB"
	DefaultVertexPageSize      = 10
	DefaultVertexStreamTimeout = 120 * time.Second
	DefaultVertexAnswerTimeout = 60 * time.Second
	DefaultGcloudPath          = "gcloud"
	DefaultGcloudTimeout       = 10 * time.Second

	DefaultDatabaseDSN         = "postgres://localhost:5432/molecule_db?sslmode=disable"
	DefaultDatabasePoolSize    = 5
	DefaultDatabaseMaxOverflow = 10
	DefaultDatabasePoolTimeout = 30 * time.Second
	DefaultDatabasePoolRecycle = 1800 * time.Second

	DefaultRedisAddr      = "localhost:6379"
	DefaultRedisPoolSize  = 10
	DefaultRedisTTL       = 5 * time.Minute
	DefaultRedisKeyPrefix = "molsearch:"

	DefaultStorageBackend = StorageGCS
	DefaultPresignTTL     = 15 * time.Minute

	DefaultKafkaTopic        = "molsearch.chat.completed"
	DefaultKafkaClientID     = "molecule-search"
	DefaultKafkaBatchTimeout = 50 * time.Millisecond
	DefaultKafkaWriteTimeout = 10 * time.Second

	DefaultMetricsNamespace = "molsearch"
	DefaultMetricsPath      = "/metrics"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// ApplyDefaults fills zero-value fields in cfg. Explicit values always win.
// Booleans are defaulted at the viper layer (see setBoolDefaults) because a
// false zero value cannot be told apart from an explicit false here.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	// ── Server ────────────────────────────────────────────────────────────────
	if cfg.Server.Host == "" {
		cfg.Server.Host = DefaultServerHost
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultServerPort
	}
	if cfg.Server.Environment == "" {
		cfg.Server.Environment = DefaultEnvironment
	}
	if len(cfg.Server.AllowedOrigins) == 0 {
		cfg.Server.AllowedOrigins = []string{DefaultAllowedOrigin}
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Server.MaxBodySize == 0 {
		cfg.Server.MaxBodySize = DefaultMaxBodySize
	}
	if cfg.Server.RateLimit.RequestsPerSecond == 0 {
		cfg.Server.RateLimit.RequestsPerSecond = DefaultRateLimitRPS
	}
	if cfg.Server.RateLimit.Burst == 0 {
		cfg.Server.RateLimit.Burst = DefaultRateLimitBurst
	}

	// ── Vertex ────────────────────────────────────────────────────────────────
	if cfg.Vertex.Location == "" {
		cfg.Vertex.Location = DefaultVertexLocation
	}
	if cfg.Vertex.Collection == "" {
		cfg.Vertex.Collection = DefaultVertexCollection
	}
	if cfg.Vertex.Endpoint == "" {
		cfg.Vertex.Endpoint = DefaultVertexEndpoint
	}
	if cfg.Vertex.LanguageCode == "" {
		cfg.Vertex.LanguageCode = DefaultVertexLanguageCode
	}
	if cfg.Vertex.PageSize == 0 {
		cfg.Vertex.PageSize = DefaultVertexPageSize
	}
	if cfg.Vertex.StreamTimeout == 0 {
		cfg.Vertex.StreamTimeout = DefaultVertexStreamTimeout
	}
	if cfg.Vertex.AnswerTimeout == 0 {
		cfg.Vertex.AnswerTimeout = DefaultVertexAnswerTimeout
	}
	if cfg.Vertex.GcloudPath == "" {
		cfg.Vertex.GcloudPath = DefaultGcloudPath
	}
	if cfg.Vertex.GcloudTimeout == 0 {
		cfg.Vertex.GcloudTimeout = DefaultGcloudTimeout
	}

	// ── Database ──────────────────────────────────────────────────────────────
	if cfg.Database.DSN == "" {
		cfg.Database.DSN = DefaultDatabaseDSN
	}
	if cfg.Database.PoolSize == 0 {
		cfg.Database.PoolSize = DefaultDatabasePoolSize
	}
	if cfg.Database.MaxOverflow == 0 {
		cfg.Database.MaxOverflow = DefaultDatabaseMaxOverflow
	}
	if cfg.Database.PoolTimeout == 0 {
		cfg.Database.PoolTimeout = DefaultDatabasePoolTimeout
	}
	if cfg.Database.PoolRecycle == 0 {
		cfg.Database.PoolRecycle = DefaultDatabasePoolRecycle
	}

	// ── Redis ─────────────────────────────────────────────────────────────────
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = DefaultRedisAddr
	}
	if cfg.Redis.PoolSize == 0 {
		cfg.Redis.PoolSize = DefaultRedisPoolSize
	}
	if cfg.Redis.DefaultTTL == 0 {
		cfg.Redis.DefaultTTL = DefaultRedisTTL
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = DefaultRedisKeyPrefix
	}

	// ── Storage ───────────────────────────────────────────────────────────────
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = DefaultStorageBackend
	}
	if cfg.Storage.PresignTTL == 0 {
		cfg.Storage.PresignTTL = DefaultPresignTTL
	}
	if cfg.Storage.GCS.ProjectID == "" {
		cfg.Storage.GCS.ProjectID = cfg.Vertex.ProjectID
	}

	// ── Kafka ─────────────────────────────────────────────────────────────────
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = DefaultKafkaTopic
	}
	if cfg.Kafka.ClientID == "" {
		cfg.Kafka.ClientID = DefaultKafkaClientID
	}
	if cfg.Kafka.BatchTimeout == 0 {
		cfg.Kafka.BatchTimeout = DefaultKafkaBatchTimeout
	}
	if cfg.Kafka.WriteTimeout == 0 {
		cfg.Kafka.WriteTimeout = DefaultKafkaWriteTimeout
	}

	// ── Metrics ───────────────────────────────────────────────────────────────
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultMetricsPath
	}

	// ── Log ───────────────────────────────────────────────────────────────────
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}
}
