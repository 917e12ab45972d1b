package circuitbreaker

import (
	"context"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Config represents circuit breaker configuration
type Config struct {
	Name        string        `yaml:"name" json:"name" mapstructure:"name"`
	MaxRequests uint32        `yaml:"max_requests" json:"max_requests" mapstructure:"max_requests"`
	Interval    time.Duration `yaml:"interval" json:"interval" mapstructure:"interval"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout" mapstructure:"timeout"`

	FailureThreshold uint32  `yaml:"failure_threshold" json:"failure_threshold" mapstructure:"failure_threshold"`
	FailureRatio     float64 `yaml:"failure_ratio" json:"failure_ratio" mapstructure:"failure_ratio"`
}

// Manager hands out one named breaker per downstream dependency
// (kafka producer, redis snapshot store, mongo history).
type Manager struct {
	breakers map[string]*CircuitBreaker
	mutex    sync.RWMutex
	logger   *zap.Logger

	defaultConfig *Config
}

// CircuitBreaker wraps gobreaker.CircuitBreaker with logging and stats
type CircuitBreaker struct {
	*gobreaker.CircuitBreaker
	config *Config
	logger *zap.Logger

	mu              sync.Mutex
	lastStateChange time.Time
}

// Stats is a point-in-time view of a breaker, served by the readiness probe
type Stats struct {
	Name                 string    `json:"name"`
	State                string    `json:"state"`
	TotalRequests        uint64    `json:"total_requests"`
	SuccessfulRequests   uint64    `json:"successful_requests"`
	FailedRequests       uint64    `json:"failed_requests"`
	ConsecutiveFailures  uint32    `json:"consecutive_failures"`
	ConsecutiveSuccesses uint32    `json:"consecutive_successes"`
	LastStateChange      time.Time `json:"last_state_change"`
	FailureRate          float64   `json:"failure_rate"`
}

// NewManager creates a new circuit breaker manager
func NewManager(defaultConfig *Config, logger *zap.Logger) *Manager {
	if defaultConfig == nil {
		defaultConfig = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Manager{
		breakers:      make(map[string]*CircuitBreaker),
		logger:        logger,
		defaultConfig: defaultConfig,
	}
}

// GetOrCreate gets an existing circuit breaker or creates a new one
func (m *Manager) GetOrCreate(name string) *CircuitBreaker {
	m.mutex.RLock()
	if cb, exists := m.breakers[name]; exists {
		m.mutex.RUnlock()
		return cb
	}
	m.mutex.RUnlock()

	m.mutex.Lock()
	defer m.mutex.Unlock()

	// Double-check after acquiring write lock
	if cb, exists := m.breakers[name]; exists {
		return cb
	}

	config := *m.defaultConfig
	config.Name = name

	cb := NewCircuitBreaker(&config, m.logger)
	m.breakers[name] = cb

	m.logger.Info("Circuit breaker created",
		zap.String("name", name),
		zap.Uint32("failure_threshold", config.FailureThreshold),
		zap.Duration("timeout", config.Timeout),
	)

	return cb
}

// Stats returns stats for all circuit breakers
func (m *Manager) Stats() map[string]Stats {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	stats := make(map[string]Stats, len(m.breakers))
	for name, cb := range m.breakers {
		stats[name] = cb.Stats()
	}
	return stats
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(config *Config, logger *zap.Logger) *CircuitBreaker {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cb := &CircuitBreaker{
		config:          config,
		logger:          logger,
		lastStateChange: time.Now(),
	}

	cb.CircuitBreaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:          config.Name,
		MaxRequests:   config.MaxRequests,
		Interval:      config.Interval,
		Timeout:       config.Timeout,
		ReadyToTrip:   cb.readyToTrip,
		OnStateChange: cb.onStateChange,
	})

	return cb
}

// CallContext runs fn under breaker protection. A cancelled context is
// returned as-is without counting against the breaker.
func (cb *CircuitBreaker) CallContext(ctx context.Context, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := cb.CircuitBreaker.Execute(func() (interface{}, error) {
		return nil, fn(ctx)
	})
	if err != nil {
		cb.logger.Debug("Circuit breaker execution failed",
			zap.String("name", cb.config.Name),
			zap.String("state", cb.State().String()),
			zap.Error(err),
		)
	}
	return err
}

func (cb *CircuitBreaker) onStateChange(name string, from, to gobreaker.State) {
	cb.mu.Lock()
	cb.lastStateChange = time.Now()
	cb.mu.Unlock()

	cb.logger.Warn("Circuit breaker state changed",
		zap.String("name", name),
		zap.String("from", from.String()),
		zap.String("to", to.String()),
	)
}

func (cb *CircuitBreaker) readyToTrip(counts gobreaker.Counts) bool {
	if counts.ConsecutiveFailures >= cb.config.FailureThreshold {
		return true
	}

	if cb.config.FailureRatio > 0 && counts.Requests >= cb.config.MaxRequests {
		failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
		return failureRatio >= cb.config.FailureRatio
	}

	return false
}

// Stats returns current circuit breaker stats
func (cb *CircuitBreaker) Stats() Stats {
	counts := cb.Counts()

	cb.mu.Lock()
	lastChange := cb.lastStateChange
	cb.mu.Unlock()

	stats := Stats{
		Name:                 cb.config.Name,
		State:                cb.State().String(),
		TotalRequests:        uint64(counts.Requests),
		SuccessfulRequests:   uint64(counts.TotalSuccesses),
		FailedRequests:       uint64(counts.TotalFailures),
		ConsecutiveFailures:  counts.ConsecutiveFailures,
		ConsecutiveSuccesses: counts.ConsecutiveSuccesses,
		LastStateChange:      lastChange,
	}
	if stats.TotalRequests > 0 {
		stats.FailureRate = float64(stats.FailedRequests) / float64(stats.TotalRequests)
	}
	return stats
}

// IsAvailable returns true if the circuit breaker allows requests
func (cb *CircuitBreaker) IsAvailable() bool {
	state := cb.State()
	return state == gobreaker.StateClosed || state == gobreaker.StateHalfOpen
}

// DefaultConfig returns a default circuit breaker configuration
func DefaultConfig() *Config {
	return &Config{
		Name:             "default",
		MaxRequests:      5,
		Interval:         60 * time.Second,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		FailureRatio:     0.5,
	}
}
