package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/isectech/hospital-threat-engine/domain/entity"
	"github.com/isectech/hospital-threat-engine/infrastructure/features"
	"github.com/isectech/hospital-threat-engine/pkg/circuitbreaker"
	"github.com/isectech/hospital-threat-engine/shared/common"
)

// EnvPrefix prefixes every environment override, e.g. ISECTECH_ENGINE_RETRAIN_INTERVAL
const EnvPrefix = "ISECTECH"

// Config represents the configuration for the threat classifier service
type Config struct {
	// Service configuration
	Service common.ServiceConfig `mapstructure:"service"`

	// Server configuration
	Server ServerConfig `mapstructure:"server"`

	// Classification engine configuration
	Engine EngineConfig `mapstructure:"engine"`

	// Model snapshot persistence
	Snapshot SnapshotConfig `mapstructure:"snapshot"`

	// Classification history
	History HistoryConfig `mapstructure:"history"`

	// Message queue configuration
	MessageQueue MessageQueueConfig `mapstructure:"messagequeue"`

	// Cache configuration
	Cache CacheConfig `mapstructure:"cache"`

	// Database configuration
	Database DatabaseConfig `mapstructure:"database"`

	// Logging configuration
	Logging common.LoggingConfig `mapstructure:"logging"`

	// Metrics configuration
	Metrics common.MetricsConfig `mapstructure:"metrics"`

	// Circuit breaker defaults for downstream adapters
	CircuitBreaker circuitbreaker.Config `mapstructure:"circuit_breaker"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	HTTP common.HTTPConfig `mapstructure:"http"`
}

// EngineConfig tunes the classifier and its model store
type EngineConfig struct {
	TreeCount             int                `mapstructure:"tree_count"`
	MaxDepth              int                `mapstructure:"max_depth"`
	MinLeafSamples        int                `mapstructure:"min_leaf_samples"`
	MinTrainingSamples    int                `mapstructure:"min_training_samples"`
	RetrainInterval       int                `mapstructure:"retrain_interval"`
	RetrainOnStartup      bool               `mapstructure:"retrain_on_startup"`
	MedicalDevicePrefixes []string           `mapstructure:"medical_device_prefixes"`
	TimeZone              string             `mapstructure:"time_zone"`
	SeedSamplesFile       string             `mapstructure:"seed_samples_file"`
	FeatureWeights        map[string]float64 `mapstructure:"feature_weights"`
	MaxBatchSize          int                `mapstructure:"max_batch_size"`
	BatchWorkers          int                `mapstructure:"batch_workers"`
}

// Location resolves TimeZone, defaulting to UTC
func (c EngineConfig) Location() (*time.Location, error) {
	if c.TimeZone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.TimeZone)
}

// Weights overlays the configured feature weights on the defaults, or
// returns nil when none are set. Keys arrive lower-cased from viper and are
// matched back to feature names.
func (c EngineConfig) Weights() entity.FeatureWeights {
	if len(c.FeatureWeights) == 0 {
		return nil
	}
	byLower := make(map[string]string, len(entity.FeatureNames()))
	for _, name := range entity.FeatureNames() {
		byLower[strings.ToLower(name)] = name
	}

	weights := entity.DefaultFeatureWeights()
	for key, w := range c.FeatureWeights {
		if name, ok := byLower[strings.ToLower(key)]; ok {
			key = name
		}
		weights[key] = w
	}
	return weights
}

// SnapshotConfig controls where model snapshots are persisted
type SnapshotConfig struct {
	Backend           string        `mapstructure:"backend"`
	Key               string        `mapstructure:"key"`
	RestoreOnStartup  bool          `mapstructure:"restore_on_startup"`
	PersistOnShutdown bool          `mapstructure:"persist_on_shutdown"`
	Timeout           time.Duration `mapstructure:"timeout"`
}

// HistoryConfig selects the classification history backend
type HistoryConfig struct {
	Backend  string        `mapstructure:"backend"`
	Capacity int           `mapstructure:"capacity"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// MessageQueueConfig contains message queue configuration
type MessageQueueConfig struct {
	Kafka KafkaConfig `mapstructure:"kafka"`
}

// KafkaConfig contains Kafka-specific configuration for the classifier
type KafkaConfig struct {
	common.KafkaConfig `mapstructure:",squash"`

	Enabled bool `mapstructure:"enabled"`

	// Consumer configuration
	InputTopic      string        `mapstructure:"input_topic"`
	Workers         int           `mapstructure:"workers"`
	RateLimit       float64       `mapstructure:"rate_limit"`
	RateBurst       int           `mapstructure:"rate_burst"`
	MinBytes        int           `mapstructure:"min_bytes"`
	MaxBytes        int           `mapstructure:"max_bytes"`
	CommitInterval  time.Duration `mapstructure:"commit_interval"`
	ProcessTimeout  time.Duration `mapstructure:"process_timeout"`

	// Producer configuration
	ResultsTopic string `mapstructure:"results_topic"`
	AlertsTopic  string `mapstructure:"alerts_topic"`
	Encoding     string `mapstructure:"encoding"`
	Compression  string `mapstructure:"compression"`
}

// CacheConfig contains cache configuration
type CacheConfig struct {
	Redis common.RedisConfig `mapstructure:"redis"`
}

// DatabaseConfig contains database configuration
type DatabaseConfig struct {
	MongoDB common.MongoDBConfig `mapstructure:"mongodb"`
}

// Snapshot and history backends
const (
	BackendNone    = "none"
	BackendRedis   = "redis"
	BackendMemory  = "memory"
	BackendMongoDB = "mongodb"
)

// Message encodings
const (
	EncodingJSON    = "json"
	EncodingMsgpack = "msgpack"
)

// Load reads configuration from config.yaml and ISECTECH_* environment variables
func Load(configPath string) (*Config, error) {
	v := common.NewViper(configPath, EnvPrefix)
	SetDefaults(v)

	if err := common.ReadInConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// SetDefaults registers the default value of every key so environment
// overrides resolve even without a config file
func SetDefaults(v *viper.Viper) {
	// Service defaults
	v.SetDefault("service.name", "threat-classifier")
	v.SetDefault("service.version", "1.0.0")
	v.SetDefault("service.environment", "development")
	v.SetDefault("service.instance_id", "")

	// Server defaults
	v.SetDefault("server.http.host", "0.0.0.0")
	v.SetDefault("server.http.port", 8080)
	v.SetDefault("server.http.read_timeout", 15*time.Second)
	v.SetDefault("server.http.write_timeout", 15*time.Second)
	v.SetDefault("server.http.idle_timeout", 60*time.Second)
	v.SetDefault("server.http.max_body_bytes", int64(8<<20))

	// Engine defaults
	v.SetDefault("engine.tree_count", entity.DefaultTreeCount)
	v.SetDefault("engine.max_depth", entity.DefaultMaxDepth)
	v.SetDefault("engine.min_leaf_samples", entity.DefaultMinLeafSamples)
	v.SetDefault("engine.min_training_samples", 10)
	v.SetDefault("engine.retrain_interval", 50)
	v.SetDefault("engine.retrain_on_startup", false)
	v.SetDefault("engine.medical_device_prefixes", features.DefaultMedicalDevicePrefixes())
	v.SetDefault("engine.time_zone", "UTC")
	v.SetDefault("engine.seed_samples_file", "")
	v.SetDefault("engine.max_batch_size", 1000)
	v.SetDefault("engine.batch_workers", 8)

	// Snapshot defaults
	v.SetDefault("snapshot.backend", BackendNone)
	v.SetDefault("snapshot.key", "threat-classifier:model-snapshot")
	v.SetDefault("snapshot.restore_on_startup", true)
	v.SetDefault("snapshot.persist_on_shutdown", true)
	v.SetDefault("snapshot.timeout", 10*time.Second)

	// History defaults
	v.SetDefault("history.backend", BackendMemory)
	v.SetDefault("history.capacity", 10000)
	v.SetDefault("history.timeout", 5*time.Second)

	// Kafka defaults
	v.SetDefault("messagequeue.kafka.enabled", false)
	v.SetDefault("messagequeue.kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("messagequeue.kafka.group_id", "threat-classifier-group")
	v.SetDefault("messagequeue.kafka.client_id", "threat-classifier")
	v.SetDefault("messagequeue.kafka.retry_max", 3)
	v.SetDefault("messagequeue.kafka.retry_backoff", 500*time.Millisecond)
	v.SetDefault("messagequeue.kafka.batch_size", 100)
	v.SetDefault("messagequeue.kafka.batch_timeout", 50*time.Millisecond)
	v.SetDefault("messagequeue.kafka.input_topic", "network-events")
	v.SetDefault("messagequeue.kafka.workers", 8)
	v.SetDefault("messagequeue.kafka.rate_limit", 5000.0)
	v.SetDefault("messagequeue.kafka.rate_burst", 500)
	v.SetDefault("messagequeue.kafka.min_bytes", 1)
	v.SetDefault("messagequeue.kafka.max_bytes", 10<<20)
	v.SetDefault("messagequeue.kafka.commit_interval", time.Second)
	v.SetDefault("messagequeue.kafka.process_timeout", 10*time.Second)
	v.SetDefault("messagequeue.kafka.results_topic", "threat-classifications")
	v.SetDefault("messagequeue.kafka.alerts_topic", "security-alerts")
	v.SetDefault("messagequeue.kafka.encoding", EncodingJSON)
	v.SetDefault("messagequeue.kafka.compression", "lz4")

	// Redis defaults
	v.SetDefault("cache.redis.host", "localhost")
	v.SetDefault("cache.redis.port", 6379)
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.database", 0)
	v.SetDefault("cache.redis.max_retries", 3)
	v.SetDefault("cache.redis.pool_size", 10)
	v.SetDefault("cache.redis.dial_timeout", 5*time.Second)
	v.SetDefault("cache.redis.read_timeout", 3*time.Second)
	v.SetDefault("cache.redis.write_timeout", 3*time.Second)

	// MongoDB defaults
	v.SetDefault("database.mongodb.uri", "mongodb://localhost:27017")
	v.SetDefault("database.mongodb.database", "isectech")
	v.SetDefault("database.mongodb.collection", "threat_classifications")
	v.SetDefault("database.mongodb.username", "")
	v.SetDefault("database.mongodb.password", "")
	v.SetDefault("database.mongodb.max_pool_size", uint64(50))
	v.SetDefault("database.mongodb.connect_timeout", 10*time.Second)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.development", false)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.host", "0.0.0.0")
	v.SetDefault("metrics.port", 9090)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.namespace", "threat_classifier")

	// Circuit breaker defaults
	v.SetDefault("circuit_breaker.name", "default")
	v.SetDefault("circuit_breaker.max_requests", 5)
	v.SetDefault("circuit_breaker.interval", 60*time.Second)
	v.SetDefault("circuit_breaker.timeout", 30*time.Second)
	v.SetDefault("circuit_breaker.failure_threshold", 5)
	v.SetDefault("circuit_breaker.failure_ratio", 0.6)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Service.Name == "" {
		return fmt.Errorf("service name is required")
	}

	if c.Server.HTTP.Port <= 0 || c.Server.HTTP.Port > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.Server.HTTP.Port)
	}

	if c.Metrics.Enabled && (c.Metrics.Port <= 0 || c.Metrics.Port > 65535) {
		return fmt.Errorf("invalid metrics port: %d", c.Metrics.Port)
	}

	if c.Engine.TreeCount < 1 || c.Engine.MaxDepth < 1 || c.Engine.MinLeafSamples < 1 {
		return fmt.Errorf("engine tree_count, max_depth and min_leaf_samples must be positive")
	}

	if c.Engine.MinTrainingSamples < 1 {
		return fmt.Errorf("engine min_training_samples must be positive")
	}

	if c.Engine.RetrainInterval < 0 {
		return fmt.Errorf("engine retrain_interval must not be negative")
	}

	if c.Engine.MaxBatchSize <= 0 {
		return fmt.Errorf("engine max_batch_size must be positive")
	}

	if c.Engine.BatchWorkers <= 0 {
		return fmt.Errorf("engine batch_workers must be positive")
	}

	if _, err := c.Engine.Location(); err != nil {
		return fmt.Errorf("invalid engine time_zone %q: %w", c.Engine.TimeZone, err)
	}

	if weights := c.Engine.Weights(); weights != nil {
		if err := weights.Validate(); err != nil {
			return fmt.Errorf("invalid engine feature_weights: %w", err)
		}
	}

	switch c.Snapshot.Backend {
	case BackendNone, BackendRedis:
	default:
		return fmt.Errorf("unknown snapshot backend %q", c.Snapshot.Backend)
	}

	switch c.History.Backend {
	case BackendMemory, BackendMongoDB:
	default:
		return fmt.Errorf("unknown history backend %q", c.History.Backend)
	}

	if c.History.Backend == BackendMemory && c.History.Capacity <= 0 {
		return fmt.Errorf("history capacity must be positive")
	}

	if c.MessageQueue.Kafka.Enabled {
		if len(c.MessageQueue.Kafka.Brokers) == 0 {
			return fmt.Errorf("at least one kafka broker is required")
		}
		if c.MessageQueue.Kafka.InputTopic == "" {
			return fmt.Errorf("kafka input topic is required")
		}
		if c.MessageQueue.Kafka.Workers <= 0 {
			return fmt.Errorf("kafka workers must be positive")
		}
		switch c.MessageQueue.Kafka.Encoding {
		case EncodingJSON, EncodingMsgpack:
		default:
			return fmt.Errorf("unknown kafka encoding %q", c.MessageQueue.Kafka.Encoding)
		}
	}

	return nil
}
