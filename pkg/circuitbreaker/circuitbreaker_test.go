package circuitbreaker

import (
	"context"
	"errors"
	"testing"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var errDown = errors.New("backend down")

func TestCircuitBreaker_TripsOnConsecutiveFailures(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FailureThreshold = 3
	cfg.FailureRatio = 0
	cb := NewCircuitBreaker(cfg, zaptest.NewLogger(t))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, cb.CallContext(ctx, func(context.Context) error { return errDown }), errDown)
	}

	assert.False(t, cb.IsAvailable())
	err := cb.CallContext(ctx, func(context.Context) error { return nil })
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)

	stats := cb.Stats()
	assert.Equal(t, "open", stats.State)
}

func TestCircuitBreaker_CancelledContextIsNotCounted(t *testing.T) {
	cb := NewCircuitBreaker(nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := cb.CallContext(ctx, func(context.Context) error {
		called = true
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
	assert.Zero(t, cb.Stats().TotalRequests)
}

func TestCircuitBreaker_Stats(t *testing.T) {
	cb := NewCircuitBreaker(DefaultConfig(), nil)
	ctx := context.Background()

	require.NoError(t, cb.CallContext(ctx, func(context.Context) error { return nil }))
	require.Error(t, cb.CallContext(ctx, func(context.Context) error { return errDown }))

	stats := cb.Stats()
	assert.Equal(t, "closed", stats.State)
	assert.Equal(t, uint64(2), stats.TotalRequests)
	assert.Equal(t, uint64(1), stats.FailedRequests)
	assert.InDelta(t, 0.5, stats.FailureRate, 1e-9)
}

func TestManager_GetOrCreate(t *testing.T) {
	m := NewManager(nil, zaptest.NewLogger(t))

	redis := m.GetOrCreate("redis")
	assert.Same(t, redis, m.GetOrCreate("redis"))
	assert.NotSame(t, redis, m.GetOrCreate("kafka"))

	stats := m.Stats()
	require.Len(t, stats, 2)
	assert.Equal(t, "redis", stats["redis"].Name)
}
