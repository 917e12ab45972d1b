package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/isectech/hospital-threat-engine/config"
	delivery "github.com/isectech/hospital-threat-engine/delivery/http"
	"github.com/isectech/hospital-threat-engine/domain/repository"
	"github.com/isectech/hospital-threat-engine/infrastructure/cache"
	"github.com/isectech/hospital-threat-engine/infrastructure/database"
	"github.com/isectech/hospital-threat-engine/infrastructure/messaging"
	classifier "github.com/isectech/hospital-threat-engine/infrastructure/service"
	"github.com/isectech/hospital-threat-engine/infrastructure/snapshot"
	"github.com/isectech/hospital-threat-engine/pkg/circuitbreaker"
	"github.com/isectech/hospital-threat-engine/pkg/logging"
	"github.com/isectech/hospital-threat-engine/pkg/metrics"
	"github.com/isectech/hospital-threat-engine/pkg/shutdown"
	"github.com/isectech/hospital-threat-engine/shared/common"
	"github.com/isectech/hospital-threat-engine/shared/types"
	"github.com/isectech/hospital-threat-engine/usecase"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the Kafka consumer and the metrics server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

// Dependencies holds every adapter the service owns
type Dependencies struct {
	History   repository.ClassificationRepository
	Snapshots repository.SnapshotRepository
	Publisher *messaging.KafkaResultPublisher
	Consumer  *messaging.KafkaEventConsumer

	Classify *usecase.ClassifyEventUseCase
	Models   *usecase.ModelManagementUseCase
	Codec    *snapshot.Codec
	Breakers *circuitbreaker.Manager
}

func runServe() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := logging.NewLogger(logging.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Output:      cfg.Logging.Output,
		ServiceName: cfg.Service.Name,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	logger.Info("Starting threat classifier",
		logging.String("version", cfg.Service.Version),
		logging.String("environment", cfg.Service.Environment),
	)

	collector := metrics.NewCollector(cfg.Metrics.Namespace)
	gs := shutdown.New(30*time.Second, logger.Logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deps, err := initializeDependencies(ctx, cfg, logger, collector, gs)
	if err != nil {
		gs.Shutdown()
		return err
	}

	startup(ctx, cfg, deps, logger)

	handlers := delivery.NewHandlers(deps.Classify, deps.Models, deps.Codec, readinessChecks(deps),
		types.ServiceInfo{
			Name:        cfg.Service.Name,
			Version:     cfg.Service.Version,
			Environment: cfg.Service.Environment,
			StartTime:   time.Now().UTC(),
		}, logger)
	middleware := delivery.NewMiddleware(types.ServiceID(cfg.Service.Name), cfg.Server.HTTP.MaxBodyBytes, logger, collector)
	httpServer := delivery.NewServer(cfg.Server.HTTP, handlers, middleware, logger)

	metricsServer := metrics.NewServer(metrics.Config{
		Enabled:   cfg.Metrics.Enabled,
		Namespace: cfg.Metrics.Namespace,
		Host:      cfg.Metrics.Host,
		Port:      cfg.Metrics.Port,
		Path:      cfg.Metrics.Path,
	}, collector)

	// Servers stop first, then the consumer drains, then the snapshot is
	// persisted, then connections close.
	gs.AddHook(shutdown.HTTPServerHook("http", httpServer))
	if deps.Consumer != nil {
		consumerCtx, stopConsumer := context.WithCancel(ctx)
		done := make(chan error, 1)
		go func() {
			done <- deps.Consumer.Run(consumerCtx)
		}()
		gs.AddHook(shutdown.BackgroundTaskHook("kafka_consumer", stopConsumer, func() error { return <-done }))
		gs.AddHook(shutdown.CloserHook("kafka_reader", deps.Consumer))
	}
	if cfg.Snapshot.PersistOnShutdown && deps.Snapshots != nil {
		gs.AddHook(shutdown.GenericHook("persist_snapshot", 15, cfg.Snapshot.Timeout, deps.Models.PersistSnapshot))
	}
	if deps.Publisher != nil {
		gs.AddHook(shutdown.CloserHook("kafka_publisher", deps.Publisher))
	}
	gs.AddHook(shutdown.GenericHook("metrics", 30, 5*time.Second, func(context.Context) error {
		return metricsServer.Stop()
	}))
	gs.AddHook(shutdown.LoggerHook(logger))

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Error("HTTP server stopped", logging.Error(err))
			gs.Shutdown()
		}
	}()
	go func() {
		if err := metricsServer.Start(); err != nil {
			logger.Error("Metrics server stopped", logging.Error(err))
		}
	}()

	gs.Listen()
	logger.Info("Threat classifier started", logging.String("http_address", httpServer.Addr()))
	gs.Wait()
	return nil
}

// initializeDependencies builds the adapters selected by cfg. Every adapter
// that holds a connection registers its own close hook.
func initializeDependencies(
	ctx context.Context,
	cfg *config.Config,
	logger *logging.Logger,
	collector *metrics.Collector,
	gs *shutdown.GracefulShutdown,
) (*Dependencies, error) {
	deps := &Dependencies{
		Breakers: circuitbreaker.NewManager(&cfg.CircuitBreaker, logger.Logger),
	}

	codec, err := snapshot.NewCodec()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize snapshot codec: %w", err)
	}
	deps.Codec = codec

	store, extractor, err := buildEngine(cfg.Engine, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize model store: %w", err)
	}

	// Classification history
	switch cfg.History.Backend {
	case config.BackendMongoDB:
		client, err := database.Connect(ctx, cfg.Database.MongoDB)
		if err != nil {
			return nil, err
		}
		deps.History = database.NewMongoClassificationRepository(client, cfg.Database.MongoDB, cfg.History.Timeout,
			deps.Breakers.GetOrCreate("mongodb"), logger, collector)
	case config.BackendMemory:
		history, err := database.NewMemoryClassificationRepository(cfg.History.Capacity)
		if err != nil {
			return nil, err
		}
		deps.History = history
	}
	if deps.History != nil {
		gs.AddHook(shutdown.CloserHook("history", deps.History))
	}

	// Model snapshots
	if cfg.Snapshot.Backend == config.BackendRedis {
		client, err := cache.NewClient(ctx, cfg.Cache.Redis)
		if err != nil {
			return nil, err
		}
		deps.Snapshots = cache.NewRedisSnapshotRepository(client, cfg.Snapshot.Key, codec,
			deps.Breakers.GetOrCreate("redis"), logger, collector)
		gs.AddHook(shutdown.CloserHook("snapshots", deps.Snapshots))
	}

	opts := []usecase.ClassifyOption{
		usecase.WithBatchLimits(cfg.Engine.MaxBatchSize, cfg.Engine.BatchWorkers),
	}
	if deps.History != nil {
		opts = append(opts, usecase.WithHistory(deps.History))
	}

	kafkaCfg := cfg.MessageQueue.Kafka
	if kafkaCfg.Enabled {
		publisher, err := messaging.NewKafkaResultPublisher(messaging.ProducerConfig{
			Brokers:      kafkaCfg.Brokers,
			ClientID:     kafkaCfg.ClientID,
			ResultsTopic: kafkaCfg.ResultsTopic,
			AlertsTopic:  kafkaCfg.AlertsTopic,
			Encoding:     kafkaCfg.Encoding,
			Compression:  kafkaCfg.Compression,
			BatchSize:    kafkaCfg.BatchSize,
			BatchTimeout: kafkaCfg.BatchTimeout,
			MaxAttempts:  kafkaCfg.RetryMax,
		}, deps.Breakers.GetOrCreate("kafka"), logger, collector)
		if err != nil {
			return nil, err
		}
		deps.Publisher = publisher
		opts = append(opts, usecase.WithPublisher(publisher))
	}

	threatClassifier := classifier.NewThreatClassifier(store, extractor, logger, collector)
	deps.Classify = usecase.NewClassifyEventUseCase(threatClassifier, logger, collector, opts...)
	deps.Models = usecase.NewModelManagementUseCase(store, deps.Snapshots, logger, collector)

	if kafkaCfg.Enabled && kafkaCfg.InputTopic != "" {
		deps.Consumer = messaging.NewKafkaEventConsumer(messaging.ConsumerConfig{
			Brokers:        kafkaCfg.Brokers,
			GroupID:        kafkaCfg.GroupID,
			Topic:          kafkaCfg.InputTopic,
			Workers:        kafkaCfg.Workers,
			RateLimit:      kafkaCfg.RateLimit,
			RateBurst:      kafkaCfg.RateBurst,
			MinBytes:       kafkaCfg.MinBytes,
			MaxBytes:       kafkaCfg.MaxBytes,
			CommitInterval: kafkaCfg.CommitInterval,
			ProcessTimeout: kafkaCfg.ProcessTimeout,
			RetryDelay:     kafkaCfg.RetryBackoff,
		}, deps.Classify, logger, collector)
	}

	return deps, nil
}

// startup restores the saved snapshot and optionally retrains. Failures are
// logged; the service still starts on the seed samples.
func startup(ctx context.Context, cfg *config.Config, deps *Dependencies, logger *logging.Logger) {
	if cfg.Snapshot.RestoreOnStartup && deps.Snapshots != nil {
		restoreCtx, cancel := context.WithTimeout(ctx, cfg.Snapshot.Timeout)
		_, err := deps.Models.RestoreSnapshot(restoreCtx)
		cancel()
		switch {
		case err == nil:
		case common.HasErrorCode(err, common.ErrCodeNotFound):
			logger.Info("No saved model snapshot, starting from seed samples")
		default:
			logger.Warn("Failed to restore model snapshot", logging.Error(err))
		}
	}

	if cfg.Engine.RetrainOnStartup && !deps.Models.Metrics().IsModelTrained {
		if _, err := deps.Models.Retrain(ctx); err != nil {
			logger.Warn("Startup retrain skipped", logging.Error(err))
		}
	}

	m := deps.Models.Metrics()
	logger.Info("Model store ready",
		logging.Bool("trained", m.IsModelTrained),
		logging.Int("training_samples", m.TrainingDataSize),
		logging.Int("trees", m.NumTrees),
	)
}

// readinessChecks probes every configured backend and every circuit breaker
func readinessChecks(deps *Dependencies) map[string]delivery.ReadinessCheck {
	checks := map[string]delivery.ReadinessCheck{
		"model_store": deps.Models.Ready,
		"circuit_breakers": func(context.Context) error {
			var open []string
			for name, stats := range deps.Breakers.Stats() {
				if stats.State == "open" {
					open = append(open, name)
				}
			}
			if len(open) > 0 {
				return fmt.Errorf("circuit open: %s", strings.Join(open, ", "))
			}
			return nil
		},
	}
	if deps.History != nil {
		checks["history"] = deps.History.Ping
	}
	return checks
}
