package shutdown

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// GracefulShutdown runs registered hooks in priority order once a signal
// arrives or Shutdown is called.
type GracefulShutdown struct {
	timeout  time.Duration
	logger   *zap.Logger
	hooks    []Hook
	done     chan struct{}
	mu       sync.Mutex
	shutdown bool
}

// Hook represents a function to be called during shutdown
type Hook struct {
	Name     string
	Priority int // Lower numbers run first
	Timeout  time.Duration
	Fn       func(context.Context) error
}

// New creates a new graceful shutdown manager
func New(timeout time.Duration, logger *zap.Logger) *GracefulShutdown {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &GracefulShutdown{
		timeout: timeout,
		logger:  logger,
		done:    make(chan struct{}),
	}
}

// AddHook adds a shutdown hook. Hooks with equal priority run in the order
// they were added.
func (gs *GracefulShutdown) AddHook(hook Hook) {
	gs.mu.Lock()
	defer gs.mu.Unlock()

	if hook.Timeout == 0 {
		hook.Timeout = gs.timeout
	}
	gs.hooks = append(gs.hooks, hook)
	sort.SliceStable(gs.hooks, func(i, j int) bool {
		return gs.hooks[i].Priority < gs.hooks[j].Priority
	})

	gs.logger.Debug("Shutdown hook added",
		zap.String("name", hook.Name),
		zap.Int("priority", hook.Priority),
		zap.Duration("timeout", hook.Timeout),
	)
}

// Listen triggers shutdown on the first of the given signals
// (SIGTERM and SIGINT by default).
func (gs *GracefulShutdown) Listen(signals ...os.Signal) {
	if len(signals) == 0 {
		signals = []os.Signal{syscall.SIGTERM, syscall.SIGINT}
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, signals...)

	go func() {
		select {
		case sig := <-c:
			gs.logger.Info("Shutdown signal received", zap.String("signal", sig.String()))
			gs.Shutdown()
		case <-gs.done:
		}
		signal.Stop(c)
	}()
}

// Shutdown runs every hook once. Later calls are no-ops.
func (gs *GracefulShutdown) Shutdown() {
	gs.mu.Lock()
	if gs.shutdown {
		gs.mu.Unlock()
		return
	}
	gs.shutdown = true
	hooks := make([]Hook, len(gs.hooks))
	copy(hooks, gs.hooks)
	gs.mu.Unlock()

	defer close(gs.done)

	ctx, cancel := context.WithTimeout(context.Background(), gs.timeout)
	defer cancel()

	gs.logger.Info("Starting graceful shutdown",
		zap.Duration("timeout", gs.timeout),
		zap.Int("hooks", len(hooks)),
	)

	start := time.Now()
	for _, hook := range hooks {
		gs.executeHook(ctx, hook)
	}

	gs.logger.Info("Graceful shutdown completed",
		zap.Duration("duration", time.Since(start)),
	)
}

func (gs *GracefulShutdown) executeHook(ctx context.Context, hook Hook) {
	hookCtx, cancel := context.WithTimeout(ctx, hook.Timeout)
	defer cancel()

	start := time.Now()
	done := make(chan error, 1)
	go func() {
		done <- hook.Fn(hookCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			gs.logger.Error("Shutdown hook failed",
				zap.String("name", hook.Name),
				zap.Duration("duration", time.Since(start)),
				zap.Error(err),
			)
			return
		}
		gs.logger.Info("Shutdown hook completed",
			zap.String("name", hook.Name),
			zap.Duration("duration", time.Since(start)),
		)
	case <-hookCtx.Done():
		gs.logger.Warn("Shutdown hook timed out",
			zap.String("name", hook.Name),
			zap.Duration("timeout", hook.Timeout),
		)
	}
}

// Wait blocks until shutdown has completed
func (gs *GracefulShutdown) Wait() {
	<-gs.done
}

// Done returns a channel that closes when shutdown is complete
func (gs *GracefulShutdown) Done() <-chan struct{} {
	return gs.done
}

// IsShuttingDown returns true if shutdown is in progress
func (gs *GracefulShutdown) IsShuttingDown() bool {
	gs.mu.Lock()
	defer gs.mu.Unlock()
	return gs.shutdown
}

// HTTPServerHook stops an HTTP server first so no new work is accepted
func HTTPServerHook(name string, server interface{ Shutdown(context.Context) error }) Hook {
	return Hook{
		Name:     name,
		Priority: 10,
		Timeout:  15 * time.Second,
		Fn:       server.Shutdown,
	}
}

// BackgroundTaskHook cancels a worker context and waits for it to drain
func BackgroundTaskHook(name string, cancel context.CancelFunc, wait func() error) Hook {
	return Hook{
		Name:     name,
		Priority: 5,
		Timeout:  15 * time.Second,
		Fn: func(ctx context.Context) error {
			cancel()

			done := make(chan error, 1)
			go func() { done <- wait() }()

			select {
			case err := <-done:
				return err
			case <-ctx.Done():
				return fmt.Errorf("background task %s did not finish in time", name)
			}
		},
	}
}

// CloserHook closes a connection-holding adapter after the servers stop
func CloserHook(name string, closer interface{ Close() error }) Hook {
	return Hook{
		Name:     name,
		Priority: 20,
		Timeout:  10 * time.Second,
		Fn: func(ctx context.Context) error {
			return closer.Close()
		},
	}
}

// GenericHook creates a generic shutdown hook
func GenericHook(name string, priority int, timeout time.Duration, fn func(context.Context) error) Hook {
	return Hook{
		Name:     name,
		Priority: priority,
		Timeout:  timeout,
		Fn:       fn,
	}
}

// LoggerHook syncs the logger last
func LoggerHook(logger interface{ Sync() error }) Hook {
	return Hook{
		Name:     "logger",
		Priority: 40,
		Timeout:  2 * time.Second,
		Fn: func(ctx context.Context) error {
			// stdout/stderr sync returns EINVAL on some platforms
			_ = logger.Sync()
			return nil
		},
	}
}
