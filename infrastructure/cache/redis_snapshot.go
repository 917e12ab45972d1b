package cache

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"

	"github.com/isectech/hospital-threat-engine/domain/entity"
	"github.com/isectech/hospital-threat-engine/infrastructure/snapshot"
	"github.com/isectech/hospital-threat-engine/pkg/circuitbreaker"
	"github.com/isectech/hospital-threat-engine/pkg/logging"
	"github.com/isectech/hospital-threat-engine/pkg/metrics"
	"github.com/isectech/hospital-threat-engine/shared/common"
)

const backendRedis = "redis"

// Client is the subset of redis.UniversalClient the snapshot repository uses
type Client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

// RedisSnapshotRepository stores the model snapshot under one key in the
// compact LZ4 format
type RedisSnapshotRepository struct {
	client  Client
	key     string
	codec   *snapshot.Codec
	breaker *circuitbreaker.CircuitBreaker
	logger  *logging.Logger
	metrics *metrics.Collector
}

// NewClient creates a go-redis client from cfg and pings it
func NewClient(ctx context.Context, cfg common.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.Database,
		MaxRetries:   cfg.MaxRetries,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, common.WrapError(errors.Wrapf(err, "ping %s", cfg.Addr()),
			common.ErrCodeDatabaseConnection, "failed to connect to Redis")
	}
	return client, nil
}

// NewRedisSnapshotRepository creates a snapshot repository. breaker and
// collector may be nil.
func NewRedisSnapshotRepository(
	client Client,
	key string,
	codec *snapshot.Codec,
	breaker *circuitbreaker.CircuitBreaker,
	logger *logging.Logger,
	collector *metrics.Collector,
) *RedisSnapshotRepository {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if breaker == nil {
		breaker = circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultConfig(), logger.Logger)
	}

	return &RedisSnapshotRepository{
		client:  client,
		key:     key,
		codec:   codec,
		breaker: breaker,
		logger:  logger.WithComponent("redis_snapshot"),
		metrics: collector,
	}
}

// Save writes s, replacing any previous snapshot
func (r *RedisSnapshotRepository) Save(ctx context.Context, s entity.ModelSnapshot) error {
	data, err := r.codec.EncodeCompact(s)
	if err != nil {
		return err
	}

	err = r.breaker.CallContext(ctx, func(ctx context.Context) error {
		return r.client.Set(ctx, r.key, data, 0).Err()
	})
	r.record("set", err)
	if err != nil {
		r.logger.Error("Failed to save model snapshot", logging.String("key", r.key), logging.Error(err))
		return common.ErrExternalService(backendRedis, errors.Wrapf(err, "set %s", r.key))
	}

	r.logger.Info("Model snapshot saved",
		logging.String("key", r.key),
		logging.Int("bytes", len(data)),
		logging.Bool("trained", s.IsModelTrained),
	)
	return nil
}

// Load reads and fully validates the stored snapshot
func (r *RedisSnapshotRepository) Load(ctx context.Context) (entity.ModelSnapshot, error) {
	var (
		data  []byte
		found bool
	)
	err := r.breaker.CallContext(ctx, func(ctx context.Context) error {
		var err error
		data, err = r.client.Get(ctx, r.key).Bytes()
		if err == redis.Nil {
			// A missing key is an answer, not a failure of Redis.
			return nil
		}
		found = err == nil
		return err
	})
	r.record("get", err)
	if err != nil {
		return entity.ModelSnapshot{}, common.ErrExternalService(backendRedis, errors.Wrapf(err, "get %s", r.key))
	}
	if !found {
		return entity.ModelSnapshot{}, common.ErrNotFound("model snapshot")
	}

	return r.codec.DecodeCompact(data)
}

// Ping checks Redis is reachable
func (r *RedisSnapshotRepository) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return common.ErrExternalService(backendRedis, err)
	}
	return nil
}

// Close closes the underlying client
func (r *RedisSnapshotRepository) Close() error {
	return r.client.Close()
}

func (r *RedisSnapshotRepository) record(operation string, err error) {
	if r.metrics == nil {
		return
	}
	r.metrics.RecordStorageOperation(backendRedis, operation, err == nil)
	if err != nil {
		r.metrics.RecordError("cache_"+operation+"_error", backendRedis)
	}
}
