package messaging

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"github.com/isectech/hospital-threat-engine/domain/entity"
	"github.com/isectech/hospital-threat-engine/pkg/circuitbreaker"
	"github.com/isectech/hospital-threat-engine/pkg/logging"
	"github.com/isectech/hospital-threat-engine/pkg/metrics"
	"github.com/isectech/hospital-threat-engine/shared/common"
	"github.com/isectech/hospital-threat-engine/shared/types"
)

// MessageWriter is the part of *kafka.Writer the publisher uses
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ProducerConfig configures the result publisher
type ProducerConfig struct {
	Brokers       []string
	ClientID      string
	ResultsTopic  string
	AlertsTopic   string
	AlertSeverity types.Severity
	Encoding      string
	Compression   string
	BatchSize     int
	BatchTimeout  time.Duration
	MaxAttempts   int
	WriteTimeout  time.Duration
}

// KafkaResultPublisher publishes every result to the results topic and
// results at or above AlertSeverity to the alerts topic
type KafkaResultPublisher struct {
	results       MessageWriter
	alerts        MessageWriter
	resultsTopic  string
	alertsTopic   string
	alertSeverity types.Severity
	clientID      string
	encoder       Encoder
	breaker       *circuitbreaker.CircuitBreaker
	logger        *logging.Logger
	metrics       *metrics.Collector
}

// NewKafkaResultPublisher creates kafka writers for both topics
func NewKafkaResultPublisher(
	cfg ProducerConfig,
	breaker *circuitbreaker.CircuitBreaker,
	logger *logging.Logger,
	collector *metrics.Collector,
) (*KafkaResultPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, common.ErrValidationFailed("at least one kafka broker is required")
	}

	newWriter := func(topic string) *kafka.Writer {
		return &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			MaxAttempts:  cfg.MaxAttempts,
			BatchSize:    cfg.BatchSize,
			BatchTimeout: cfg.BatchTimeout,
			WriteTimeout: cfg.WriteTimeout,
			RequiredAcks: kafka.RequireAll,
			Compression:  compressionCodec(cfg.Compression),
		}
	}

	var alerts MessageWriter
	if cfg.AlertsTopic != "" {
		alerts = newWriter(cfg.AlertsTopic)
	}
	return newPublisher(cfg, newWriter(cfg.ResultsTopic), alerts, breaker, logger, collector)
}

// newPublisher wires a publisher over arbitrary writers. alerts may be nil.
func newPublisher(
	cfg ProducerConfig,
	results, alerts MessageWriter,
	breaker *circuitbreaker.CircuitBreaker,
	logger *logging.Logger,
	collector *metrics.Collector,
) (*KafkaResultPublisher, error) {
	encoder, err := NewEncoder(cfg.Encoding)
	if err != nil {
		return nil, common.ErrValidationFailed(err.Error())
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if breaker == nil {
		breaker = circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultConfig(), logger.Logger)
	}
	if cfg.AlertSeverity == "" {
		cfg.AlertSeverity = types.SeverityHigh
	}

	p := &KafkaResultPublisher{
		results:       results,
		alerts:        alerts,
		resultsTopic:  cfg.ResultsTopic,
		alertsTopic:   cfg.AlertsTopic,
		alertSeverity: cfg.AlertSeverity,
		clientID:      cfg.ClientID,
		encoder:       encoder,
		breaker:       breaker,
		logger:        logger.WithComponent("kafka_publisher"),
		metrics:       collector,
	}

	p.logger.Info("Kafka result publisher initialized",
		logging.String("results_topic", cfg.ResultsTopic),
		logging.String("alerts_topic", cfg.AlertsTopic),
		logging.String("encoding", encoder.ContentType()),
	)
	return p, nil
}

// Publish writes results in one batch per topic
func (p *KafkaResultPublisher) Publish(ctx context.Context, results ...*entity.ClassificationResult) error {
	if len(results) == 0 {
		return nil
	}

	messages := make([]kafka.Message, 0, len(results))
	var alertMessages []kafka.Message
	for _, result := range results {
		msg, err := p.message(result)
		if err != nil {
			return common.WrapError(err, common.ErrCodeInternal, "failed to encode classification result")
		}
		messages = append(messages, msg)
		if p.alerts != nil && result.IsAlert(p.alertSeverity) {
			alertMessages = append(alertMessages, msg)
		}
	}

	if err := p.write(ctx, p.results, p.resultsTopic, messages); err != nil {
		return err
	}
	if len(alertMessages) > 0 {
		if err := p.write(ctx, p.alerts, p.alertsTopic, alertMessages); err != nil {
			return err
		}
	}
	return nil
}

func (p *KafkaResultPublisher) write(ctx context.Context, writer MessageWriter, topic string, messages []kafka.Message) error {
	start := time.Now()
	err := p.breaker.CallContext(ctx, func(ctx context.Context) error {
		return writer.WriteMessages(ctx, messages...)
	})

	status := "success"
	if err != nil {
		status = "failed"
	}
	if p.metrics != nil {
		for range messages {
			p.metrics.RecordMessageSent(topic, status)
		}
	}

	if err != nil {
		p.logger.Error("Failed to publish classification results",
			logging.String("topic", topic),
			logging.Int("messages", len(messages)),
			logging.Error(err),
		)
		if p.metrics != nil {
			p.metrics.RecordError("kafka_publish_error", "kafka_publisher")
		}
		return common.ErrExternalService("kafka", errors.Wrapf(err, "write %d messages to %s", len(messages), topic))
	}

	p.logger.Debug("Classification results published",
		logging.String("topic", topic),
		logging.Int("messages", len(messages)),
		logging.Duration("duration", time.Since(start)),
	)
	return nil
}

func (p *KafkaResultPublisher) message(result *entity.ClassificationResult) (kafka.Message, error) {
	value, err := p.encoder.Encode(result)
	if err != nil {
		return kafka.Message{}, err
	}

	return kafka.Message{
		Key:   []byte(result.ID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "classification_id", Value: []byte(result.ID)},
			{Key: "content_type", Value: []byte(p.encoder.ContentType())},
			{Key: "threat_type", Value: []byte(result.ThreatType)},
			{Key: "severity", Value: []byte(result.Severity)},
			{Key: "risk_score", Value: []byte(strconv.Itoa(result.RiskScore))},
			{Key: "produced_at", Value: []byte(time.Now().UTC().Format(time.RFC3339))},
			{Key: "producer_id", Value: []byte(p.clientID)},
		},
	}, nil
}

// Close flushes and closes both writers
func (p *KafkaResultPublisher) Close() error {
	var firstErr error
	for _, w := range []MessageWriter{p.results, p.alerts} {
		if w == nil {
			continue
		}
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close kafka writer: %w", err)
		}
	}
	return firstErr
}

func compressionCodec(name string) kafka.Compression {
	switch name {
	case "gzip":
		return kafka.Gzip
	case "snappy":
		return kafka.Snappy
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	default:
		return 0
	}
}
