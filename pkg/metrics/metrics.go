package metrics

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config represents metrics configuration
type Config struct {
	Enabled   bool   `json:"enabled" yaml:"enabled"`
	Namespace string `json:"namespace" yaml:"namespace"`
	Host      string `json:"host" yaml:"host"`
	Port      int    `json:"port" yaml:"port"`
	Path      string `json:"path" yaml:"path"`
}

// Collector manages all metrics for a service
type Collector struct {
	namespace string
	registry  *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ErrorsTotal     *prometheus.CounterVec

	// System metrics
	StartTime prometheus.Gauge

	// Classification metrics
	Classifications        *prometheus.CounterVec
	ClassificationDuration *prometheus.HistogramVec
	RiskScores             prometheus.Histogram

	// Model store metrics
	Retrains        *prometheus.CounterVec
	SnapshotOps     *prometheus.CounterVec
	TrainingSamples prometheus.Gauge
	ModelTrained    prometheus.Gauge
	EnsembleSize    prometheus.Gauge

	// Storage metrics
	StorageOperations *prometheus.CounterVec

	// Message queue metrics
	MessagesSent      *prometheus.CounterVec
	MessagesReceived  *prometheus.CounterVec
	MessageProcessing *prometheus.HistogramVec
}

// NewCollector creates a new metrics collector
func NewCollector(namespace string) *Collector {
	c := &Collector{
		namespace: namespace,
		registry:  prometheus.NewRegistry(),
	}

	c.initializeMetrics()
	c.registerMetrics()

	return c
}

// initializeMetrics initializes all metrics
func (c *Collector) initializeMetrics() {
	c.RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: c.namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	c.RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: c.namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint", "status_code"},
	)

	c.ErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: c.namespace,
			Name:      "errors_total",
			Help:      "Total number of errors",
		},
		[]string{"error_type", "component"},
	)

	c.StartTime = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: c.namespace,
			Name:      "start_time_seconds",
			Help:      "Service start time in Unix seconds",
		},
	)

	c.Classifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: c.namespace,
			Name:      "classifications_total",
			Help:      "Total number of classified network events",
		},
		[]string{"threat_type", "severity", "method"},
	)

	c.ClassificationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: c.namespace,
			Name:      "classification_duration_seconds",
			Help:      "Time spent classifying a single event",
			Buckets:   []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		},
		[]string{"method"},
	)

	c.RiskScores = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: c.namespace,
			Name:      "risk_score",
			Help:      "Distribution of computed risk scores",
			Buckets:   prometheus.LinearBuckets(0, 10, 11),
		},
	)

	c.Retrains = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: c.namespace,
			Name:      "model_retrains_total",
			Help:      "Total number of retrain attempts",
		},
		[]string{"trigger", "status"},
	)

	c.SnapshotOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: c.namespace,
			Name:      "model_snapshot_operations_total",
			Help:      "Total number of snapshot export/import operations",
		},
		[]string{"operation", "status"},
	)

	c.TrainingSamples = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: c.namespace,
			Name:      "model_training_samples",
			Help:      "Number of accumulated training samples",
		},
	)

	c.ModelTrained = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: c.namespace,
			Name:      "model_trained",
			Help:      "1 when the ensemble has been trained, 0 otherwise",
		},
	)

	c.EnsembleSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: c.namespace,
			Name:      "model_ensemble_rules",
			Help:      "Number of decision rules in the active ensemble",
		},
	)

	c.StorageOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: c.namespace,
			Name:      "storage_operations_total",
			Help:      "Total number of storage operations",
		},
		[]string{"backend", "operation", "status"},
	)

	c.MessagesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: c.namespace,
			Name:      "messages_sent_total",
			Help:      "Total number of messages sent",
		},
		[]string{"topic", "status"},
	)

	c.MessagesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: c.namespace,
			Name:      "messages_received_total",
			Help:      "Total number of messages received",
		},
		[]string{"topic", "status"},
	)

	c.MessageProcessing = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: c.namespace,
			Name:      "message_processing_duration_seconds",
			Help:      "Message processing duration in seconds",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"topic"},
	)
}

// registerMetrics registers all metrics with the registry
func (c *Collector) registerMetrics() {
	c.registry.MustRegister(
		c.RequestsTotal,
		c.RequestDuration,
		c.ErrorsTotal,
		c.StartTime,
		c.Classifications,
		c.ClassificationDuration,
		c.RiskScores,
		c.Retrains,
		c.SnapshotOps,
		c.TrainingSamples,
		c.ModelTrained,
		c.EnsembleSize,
		c.StorageOperations,
		c.MessagesSent,
		c.MessagesReceived,
		c.MessageProcessing,
	)

	c.StartTime.SetToCurrentTime()
}

// RecordHTTPRequest records HTTP request metrics
func (c *Collector) RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
	statusStr := strconv.Itoa(statusCode)
	c.RequestsTotal.WithLabelValues(method, endpoint, statusStr).Inc()
	c.RequestDuration.WithLabelValues(method, endpoint, statusStr).Observe(duration.Seconds())
}

// RecordError records error metrics
func (c *Collector) RecordError(errorType, component string) {
	c.ErrorsTotal.WithLabelValues(errorType, component).Inc()
}

// RecordClassification records the outcome of one classification call
func (c *Collector) RecordClassification(threatType, severity, method string, riskScore int, duration time.Duration) {
	c.Classifications.WithLabelValues(threatType, severity, method).Inc()
	c.ClassificationDuration.WithLabelValues(method).Observe(duration.Seconds())
	c.RiskScores.Observe(float64(riskScore))
}

// RecordRetrain records a retrain attempt. trigger is "manual" or "automatic".
func (c *Collector) RecordRetrain(trigger string, success bool) {
	c.Retrains.WithLabelValues(trigger, statusLabel(success)).Inc()
}

// RecordSnapshotOperation records a snapshot export or import
func (c *Collector) RecordSnapshotOperation(operation string, success bool) {
	c.SnapshotOps.WithLabelValues(operation, statusLabel(success)).Inc()
}

// SetModelState publishes the current model store state
func (c *Collector) SetModelState(trained bool, trainingSamples, ensembleSize int) {
	if trained {
		c.ModelTrained.Set(1)
	} else {
		c.ModelTrained.Set(0)
	}
	c.TrainingSamples.Set(float64(trainingSamples))
	c.EnsembleSize.Set(float64(ensembleSize))
}

// RecordStorageOperation records a repository operation
func (c *Collector) RecordStorageOperation(backend, operation string, success bool) {
	c.StorageOperations.WithLabelValues(backend, operation, statusLabel(success)).Inc()
}

// RecordMessageSent records message sent metrics
func (c *Collector) RecordMessageSent(topic, status string) {
	c.MessagesSent.WithLabelValues(topic, status).Inc()
}

// RecordMessageReceived records message received metrics
func (c *Collector) RecordMessageReceived(topic, status string) {
	c.MessagesReceived.WithLabelValues(topic, status).Inc()
}

// RecordMessageProcessing records message processing metrics
func (c *Collector) RecordMessageProcessing(topic string, duration time.Duration) {
	c.MessageProcessing.WithLabelValues(topic).Observe(duration.Seconds())
}

// CreateHandler creates an HTTP handler for metrics
func (c *Collector) CreateHandler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// Server represents a metrics server
type Server struct {
	config Config
	server *http.Server
}

// NewServer creates a new metrics server
func NewServer(config Config, collector *Collector) *Server {
	if !config.Enabled {
		return &Server{config: config}
	}

	mux := http.NewServeMux()
	mux.Handle(config.Path, collector.CreateHandler())

	return &Server{
		config: config,
		server: &http.Server{
			Addr:              fmt.Sprintf("%s:%d", config.Host, config.Port),
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Start starts the metrics server. It blocks until the server stops.
func (s *Server) Start() error {
	if !s.config.Enabled || s.server == nil {
		return nil
	}
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop stops the metrics server
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}
	return s.server.Close()
}
