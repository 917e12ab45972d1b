package database

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/isectech/hospital-threat-engine/domain/entity"
	"github.com/isectech/hospital-threat-engine/pkg/circuitbreaker"
	"github.com/isectech/hospital-threat-engine/pkg/logging"
	"github.com/isectech/hospital-threat-engine/pkg/metrics"
	"github.com/isectech/hospital-threat-engine/shared/common"
)

const backendMongoDB = "mongodb"

// MongoClassificationRepository implements repository.ClassificationRepository using MongoDB
type MongoClassificationRepository struct {
	client     *mongo.Client
	collection *mongo.Collection
	breaker    *circuitbreaker.CircuitBreaker
	logger     *logging.Logger
	metrics    *metrics.Collector
	timeout    time.Duration
}

// Connect dials MongoDB and verifies the connection with a ping
func Connect(ctx context.Context, cfg common.MongoDBConfig) (*mongo.Client, error) {
	clientOpts := options.Client().ApplyURI(cfg.URI)
	if cfg.MaxPoolSize > 0 {
		clientOpts.SetMaxPoolSize(cfg.MaxPoolSize)
	}
	if cfg.ConnectTimeout > 0 {
		clientOpts.SetConnectTimeout(cfg.ConnectTimeout)
	}
	if cfg.Username != "" {
		clientOpts.SetAuth(options.Credential{
			Username: cfg.Username,
			Password: cfg.Password,
		})
	}

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, common.WrapError(errors.Wrap(err, "mongo connect"),
			common.ErrCodeDatabaseConnection, "failed to connect to MongoDB")
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, common.WrapError(errors.Wrap(err, "mongo ping"),
			common.ErrCodeDatabaseConnection, "failed to ping MongoDB")
	}
	return client, nil
}

// NewMongoClassificationRepository creates a history over collection in cfg.Database.
// breaker and collector may be nil.
func NewMongoClassificationRepository(
	client *mongo.Client,
	cfg common.MongoDBConfig,
	timeout time.Duration,
	breaker *circuitbreaker.CircuitBreaker,
	logger *logging.Logger,
	collector *metrics.Collector,
) *MongoClassificationRepository {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if breaker == nil {
		breaker = circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultConfig(), logger.Logger)
	}

	repo := &MongoClassificationRepository{
		client:     client,
		collection: client.Database(cfg.Database).Collection(cfg.Collection),
		breaker:    breaker,
		logger:     logger.WithComponent("mongodb_history"),
		metrics:    collector,
		timeout:    timeout,
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := repo.createIndexes(ctx); err != nil {
		repo.logger.Warn("Failed to create indexes", logging.Error(err))
	}

	return repo
}

// createIndexes creates the index serving Recent
func (r *MongoClassificationRepository) createIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "classified_at", Value: -1}},
		},
		{
			Keys: bson.D{
				{Key: "severity", Value: 1},
				{Key: "classified_at", Value: -1},
			},
		},
	}
	_, err := r.collection.Indexes().CreateMany(ctx, indexes)
	return err
}

// Save inserts result
func (r *MongoClassificationRepository) Save(ctx context.Context, result *entity.ClassificationResult) error {
	if result == nil || result.ID == "" {
		return common.ErrInvalidInput("id")
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	err := r.breaker.CallContext(ctx, func(ctx context.Context) error {
		_, err := r.collection.InsertOne(ctx, result)
		return err
	})
	r.record("insert", err)
	if err != nil {
		r.logger.Error("Failed to insert classification",
			logging.String("classification_id", result.ID),
			logging.Error(err),
		)
		return common.ErrDatabaseQuery("insert classification", errors.Wrap(err, result.ID))
	}
	return nil
}

// Recent returns up to limit results ordered by classified_at, newest first
func (r *MongoClassificationRepository) Recent(ctx context.Context, limit int) ([]*entity.ClassificationResult, error) {
	results := []*entity.ClassificationResult{}
	if limit <= 0 {
		return results, nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	findOpts := options.Find().
		SetSort(bson.D{{Key: "classified_at", Value: -1}}).
		SetLimit(int64(limit))

	err := r.breaker.CallContext(ctx, func(ctx context.Context) error {
		cursor, err := r.collection.Find(ctx, bson.M{}, findOpts)
		if err != nil {
			return err
		}
		defer cursor.Close(ctx)
		return cursor.All(ctx, &results)
	})
	r.record("find", err)
	if err != nil {
		return nil, common.ErrDatabaseQuery("find recent classifications", errors.Wrap(err, "recent"))
	}
	return results, nil
}

// Ping checks the primary is reachable
func (r *MongoClassificationRepository) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx, readpref.Primary()); err != nil {
		return common.WrapError(err, common.ErrCodeDatabaseConnection, "mongodb unavailable")
	}
	return nil
}

// Close disconnects the client
func (r *MongoClassificationRepository) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	return r.client.Disconnect(ctx)
}

func (r *MongoClassificationRepository) record(operation string, err error) {
	if r.metrics == nil {
		return
	}
	r.metrics.RecordStorageOperation(backendMongoDB, operation, err == nil)
	if err != nil {
		r.metrics.RecordError("database_"+operation+"_error", backendMongoDB)
	}
}
