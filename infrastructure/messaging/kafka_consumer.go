package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/isectech/hospital-threat-engine/domain/entity"
	"github.com/isectech/hospital-threat-engine/pkg/logging"
	"github.com/isectech/hospital-threat-engine/pkg/metrics"
	"github.com/isectech/hospital-threat-engine/shared/types"
	"github.com/isectech/hospital-threat-engine/usecase"
)

// MessageReader is the part of *kafka.Reader the consumer uses
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// EventClassifier handles one decoded event
type EventClassifier interface {
	Execute(ctx context.Context, req *usecase.ClassifyEventRequest) (*usecase.ClassifyEventResponse, error)
}

// ConsumerConfig configures the network event consumer
type ConsumerConfig struct {
	Brokers        []string
	GroupID        string
	Topic          string
	Workers        int
	RateLimit      float64
	RateBurst      int
	MinBytes       int
	MaxBytes       int
	CommitInterval time.Duration
	ProcessTimeout time.Duration
	RetryDelay     time.Duration
}

// ConsumerStats is a point-in-time view of the consumer counters
type ConsumerStats struct {
	MessagesReceived  int64     `json:"messages_received"`
	MessagesProcessed int64     `json:"messages_processed"`
	MessagesInvalid   int64     `json:"messages_invalid"`
	MessagesFailed    int64     `json:"messages_failed"`
	LastMessageTime   time.Time `json:"last_message_time"`
}

// KafkaEventConsumer reads RawEvent JSON from a topic and classifies each
// message with a bounded pool of workers
type KafkaEventConsumer struct {
	reader     MessageReader
	classifier EventClassifier
	limiter    *rate.Limiter
	config     ConsumerConfig
	logger     *logging.Logger
	metrics    *metrics.Collector

	statsMu sync.Mutex
	stats   ConsumerStats
}

// NewKafkaEventConsumer creates a consumer group reader for cfg.Topic
func NewKafkaEventConsumer(
	cfg ConsumerConfig,
	classifier EventClassifier,
	logger *logging.Logger,
	collector *metrics.Collector,
) *KafkaEventConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		GroupID:        cfg.GroupID,
		Topic:          cfg.Topic,
		MinBytes:       cfg.MinBytes,
		MaxBytes:       cfg.MaxBytes,
		CommitInterval: cfg.CommitInterval,
		StartOffset:    kafka.LastOffset,
	})
	return newConsumer(cfg, reader, classifier, logger, collector)
}

func newConsumer(
	cfg ConsumerConfig,
	reader MessageReader,
	classifier EventClassifier,
	logger *logging.Logger,
	collector *metrics.Collector,
) *KafkaEventConsumer {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.ProcessTimeout <= 0 {
		cfg.ProcessTimeout = 10 * time.Second
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}

	return &KafkaEventConsumer{
		reader:     reader,
		classifier: classifier,
		limiter:    rate.NewLimiter(limit, burst),
		config:     cfg,
		logger:     logger.WithComponent("kafka_consumer"),
		metrics:    collector,
	}
}

// Run consumes until ctx is cancelled or the reader hits an unrecoverable
// error. A cancelled context is a clean stop.
//
// One goroutine fetches, Workers goroutines classify, and one goroutine
// commits. Offsets are committed per partition only up to the longest run of
// finished messages, so a crash never skips a message a slower worker still
// holds.
func (c *KafkaEventConsumer) Run(ctx context.Context) error {
	c.logger.Info("Kafka event consumer started",
		logging.String("topic", c.config.Topic),
		logging.String("group_id", c.config.GroupID),
		logging.Int("workers", c.config.Workers),
	)

	tracker := newOffsetTracker()
	jobs := make(chan kafka.Message, c.config.Workers)
	finished := make(chan kafka.Message, c.config.Workers)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(jobs)
		return c.fetch(gctx, tracker, jobs)
	})

	var workers sync.WaitGroup
	for i := 0; i < c.config.Workers; i++ {
		workers.Add(1)
		logger := c.logger.WithFields(logging.Int("worker", i))
		g.Go(func() error {
			defer workers.Done()
			for message := range jobs {
				c.handle(gctx, message, logger)
				finished <- message
			}
			return nil
		})
	}
	go func() {
		workers.Wait()
		close(finished)
	}()

	g.Go(func() error {
		for message := range finished {
			ready, ok := tracker.complete(message)
			if !ok {
				continue
			}
			if err := c.reader.CommitMessages(gctx, ready); err != nil && gctx.Err() == nil {
				c.logger.Error("Failed to commit message",
					logging.Int("partition", ready.Partition),
					logging.Int64("offset", ready.Offset),
					logging.Error(err),
				)
			}
		}
		return nil
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.EOF) {
		err = nil
	}
	c.logger.Info("Kafka event consumer stopped", logging.Any("stats", c.Stats()))
	return err
}

func (c *KafkaEventConsumer) fetch(ctx context.Context, tracker *offsetTracker, jobs chan<- kafka.Message) error {
	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return ctx.Err()
		}

		message, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				// Reader closed underneath us.
				return err
			}
			c.logger.Error("Failed to fetch message", logging.Error(err))
			if c.metrics != nil {
				c.metrics.RecordError("kafka_fetch_error", "kafka_consumer")
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.config.RetryDelay):
			}
			continue
		}

		tracker.fetched(message)
		select {
		case jobs <- message:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

type partitionKey struct {
	topic     string
	partition int
}

// offsetTracker remembers fetched messages per partition in fetch order and
// reports the newest message whose predecessors have all finished
type offsetTracker struct {
	mu       sync.Mutex
	pending  map[partitionKey][]kafka.Message
	finished map[partitionKey]map[int64]bool
}

func newOffsetTracker() *offsetTracker {
	return &offsetTracker{
		pending:  make(map[partitionKey][]kafka.Message),
		finished: make(map[partitionKey]map[int64]bool),
	}
}

func (t *offsetTracker) fetched(message kafka.Message) {
	key := partitionKey{topic: message.Topic, partition: message.Partition}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending[key] = append(t.pending[key], message)
}

// complete marks message finished. ok is false while an earlier message of
// the same partition is still in flight.
func (t *offsetTracker) complete(message kafka.Message) (ready kafka.Message, ok bool) {
	key := partitionKey{topic: message.Topic, partition: message.Partition}
	t.mu.Lock()
	defer t.mu.Unlock()

	done := t.finished[key]
	if done == nil {
		done = make(map[int64]bool)
		t.finished[key] = done
	}
	done[message.Offset] = true

	queue := t.pending[key]
	for len(queue) > 0 && done[queue[0].Offset] {
		ready, ok = queue[0], true
		delete(done, queue[0].Offset)
		queue = queue[1:]
	}
	t.pending[key] = queue
	return ready, ok
}

// handle decodes and classifies one message. Invalid messages are logged
// and committed so they do not block the partition.
func (c *KafkaEventConsumer) handle(ctx context.Context, message kafka.Message, logger *logging.Logger) {
	start := time.Now()
	c.updateStats(func(s *ConsumerStats) {
		s.MessagesReceived++
		s.LastMessageTime = start
	})

	var event entity.RawEvent
	if err := json.Unmarshal(message.Value, &event); err != nil {
		logger.Warn("Discarding undecodable network event",
			logging.Int("partition", message.Partition),
			logging.Int64("offset", message.Offset),
			logging.Error(err),
		)
		c.updateStats(func(s *ConsumerStats) { s.MessagesInvalid++ })
		c.recordReceived(message.Topic, "invalid")
		return
	}

	processCtx, cancel := context.WithTimeout(ctx, c.config.ProcessTimeout)
	defer cancel()

	resp, err := c.classifier.Execute(processCtx, &usecase.ClassifyEventRequest{
		Event:          &event,
		RequestContext: requestContext(message),
	})
	if c.metrics != nil {
		c.metrics.RecordMessageProcessing(message.Topic, time.Since(start))
	}
	if err != nil {
		logger.Error("Failed to classify network event",
			logging.Int64("offset", message.Offset),
			logging.Error(err),
		)
		c.updateStats(func(s *ConsumerStats) { s.MessagesFailed++ })
		c.recordReceived(message.Topic, "failed")
		return
	}

	c.updateStats(func(s *ConsumerStats) { s.MessagesProcessed++ })
	c.recordReceived(message.Topic, "success")
	logger.Debug("Network event classified",
		logging.String("classification_id", resp.Result.ID),
		logging.String("threat_type", string(resp.Result.ThreatType)),
		logging.Int("warnings", len(resp.Warnings)),
	)
}

// requestContext builds a request context from message headers
func requestContext(message kafka.Message) *types.RequestContext {
	reqCtx := types.NewRequestContext("threat-classifier", "kafka:"+message.Topic)
	for _, header := range message.Headers {
		switch header.Key {
		case "correlation_id":
			reqCtx.CorrelationID = types.ParseCorrelationID(string(header.Value))
		case "source":
			reqCtx.Source = string(header.Value)
		}
	}
	return reqCtx
}

func (c *KafkaEventConsumer) recordReceived(topic, status string) {
	if c.metrics != nil {
		c.metrics.RecordMessageReceived(topic, status)
	}
}

func (c *KafkaEventConsumer) updateStats(fn func(*ConsumerStats)) {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	fn(&c.stats)
}

// Stats returns a copy of the consumer counters
func (c *KafkaEventConsumer) Stats() ConsumerStats {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	return c.stats
}

// Close closes the reader
func (c *KafkaEventConsumer) Close() error {
	if err := c.reader.Close(); err != nil {
		return fmt.Errorf("failed to close kafka reader: %w", err)
	}
	return nil
}
