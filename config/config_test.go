package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isectech/hospital-threat-engine/domain/entity"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "threat-classifier", cfg.Service.Name)
	assert.Equal(t, 8080, cfg.Server.HTTP.Port)
	assert.Equal(t, entity.DefaultTreeCount, cfg.Engine.TreeCount)
	assert.Equal(t, 10, cfg.Engine.MinTrainingSamples)
	assert.Equal(t, 50, cfg.Engine.RetrainInterval)
	assert.Equal(t, BackendNone, cfg.Snapshot.Backend)
	assert.Equal(t, BackendMemory, cfg.History.Backend)
	assert.Equal(t, "network-events", cfg.MessageQueue.Kafka.InputTopic)
	assert.Equal(t, "threat-classifications", cfg.MessageQueue.Kafka.ResultsTopic)
	assert.Equal(t, "security-alerts", cfg.MessageQueue.Kafka.AlertsTopic)
	assert.Equal(t, []string{"localhost:9092"}, cfg.MessageQueue.Kafka.Brokers)
	assert.Equal(t, "threat_classifier", cfg.Metrics.Namespace)
	assert.Equal(t, uint32(5), cfg.CircuitBreaker.FailureThreshold)
	assert.Equal(t, 30*time.Second, cfg.CircuitBreaker.Timeout)
	assert.Nil(t, cfg.Engine.Weights())

	loc, err := cfg.Engine.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)
}

func TestLoad_FileAndEnvironment(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(`
engine:
  tree_count: 25
  time_zone: America/New_York
  medical_device_prefixes: ["10.50."]
  feature_weights:
    packetSize: 0.5
    isMedicalDevice: 0.9
snapshot:
  backend: redis
messagequeue:
  kafka:
    enabled: true
    brokers: ["kafka-1:9092", "kafka-2:9092"]
    encoding: msgpack
`), 0o600))
	t.Setenv("ISECTECH_ENGINE_RETRAIN_INTERVAL", "7")
	t.Setenv("ISECTECH_SERVER_HTTP_PORT", "9443")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 25, cfg.Engine.TreeCount)
	assert.Equal(t, 7, cfg.Engine.RetrainInterval)
	assert.Equal(t, 9443, cfg.Server.HTTP.Port)
	assert.Equal(t, []string{"10.50."}, cfg.Engine.MedicalDevicePrefixes)
	assert.Equal(t, BackendRedis, cfg.Snapshot.Backend)
	assert.True(t, cfg.MessageQueue.Kafka.Enabled)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.MessageQueue.Kafka.Brokers)
	assert.Equal(t, EncodingMsgpack, cfg.MessageQueue.Kafka.Encoding)

	weights := cfg.Engine.Weights()
	assert.Equal(t, 0.5, weights[entity.FeaturePacketSize])
	assert.Equal(t, 0.9, weights[entity.FeatureIsMedicalDevice])
	assert.Equal(t, entity.DefaultFeatureWeights()[entity.FeatureHIPAARelevant], weights[entity.FeatureHIPAARelevant])
	assert.NoError(t, weights.Validate())

	loc, err := cfg.Engine.Location()
	require.NoError(t, err)
	assert.Equal(t, "America/New_York", loc.String())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"http port", func(c *Config) { c.Server.HTTP.Port = 0 }},
		{"metrics port", func(c *Config) { c.Metrics.Port = 70000 }},
		{"tree count", func(c *Config) { c.Engine.TreeCount = 0 }},
		{"min training samples", func(c *Config) { c.Engine.MinTrainingSamples = 0 }},
		{"retrain interval", func(c *Config) { c.Engine.RetrainInterval = -1 }},
		{"batch size", func(c *Config) { c.Engine.MaxBatchSize = 0 }},
		{"time zone", func(c *Config) { c.Engine.TimeZone = "Mars/Olympus_Mons" }},
		{"negative weight", func(c *Config) { c.Engine.FeatureWeights = map[string]float64{"packetsize": -1} }},
		{"unknown weight", func(c *Config) { c.Engine.FeatureWeights = map[string]float64{"jitter": 0.1} }},
		{"snapshot backend", func(c *Config) { c.Snapshot.Backend = "s3" }},
		{"history backend", func(c *Config) { c.History.Backend = "postgres" }},
		{"history capacity", func(c *Config) { c.History.Capacity = 0 }},
		{"kafka brokers", func(c *Config) {
			c.MessageQueue.Kafka.Enabled = true
			c.MessageQueue.Kafka.Brokers = nil
		}},
		{"kafka encoding", func(c *Config) {
			c.MessageQueue.Kafka.Enabled = true
			c.MessageQueue.Kafka.Encoding = "avro"
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(t.TempDir())
			require.NoError(t, err)

			tt.mutate(cfg)

			assert.Error(t, cfg.Validate())
		})
	}
}
