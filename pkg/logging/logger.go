package logging

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/isectech/hospital-threat-engine/shared/types"
)

// Logger wraps zap.Logger with additional functionality
type Logger struct {
	*zap.Logger
	serviceName string
}

// Config represents logger configuration
type Config struct {
	Level       string `json:"level" yaml:"level"`
	Format      string `json:"format" yaml:"format"`
	Output      string `json:"output" yaml:"output"`
	ServiceName string `json:"service_name" yaml:"service_name"`
	Development bool   `json:"development" yaml:"development"`
}

// Field represents a log field
type Field = zapcore.Field

type contextKey string

const requestContextKey contextKey = "request_context"

// NewLogger creates a new logger instance
func NewLogger(config Config) (*Logger, error) {
	level, err := zapcore.ParseLevel(config.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	var zapConfig zap.Config

	if config.Development {
		zapConfig = zap.NewDevelopmentConfig()
		zapConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		zapConfig = zap.NewProductionConfig()
		zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	zapConfig.Level = zap.NewAtomicLevelAt(level)

	// Configure output format
	switch strings.ToLower(config.Format) {
	case "console":
		zapConfig.Encoding = "console"
	default:
		zapConfig.Encoding = "json"
	}

	// Configure output destination
	switch strings.ToLower(config.Output) {
	case "stderr":
		zapConfig.OutputPaths = []string{"stderr"}
	case "", "stdout":
		zapConfig.OutputPaths = []string{"stdout"}
	default:
		zapConfig.OutputPaths = []string{config.Output}
	}

	zapConfig.InitialFields = map[string]interface{}{
		"service": config.ServiceName,
	}

	zapLogger, err := zapConfig.Build(
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return &Logger{
		Logger:      zapLogger,
		serviceName: config.ServiceName,
	}, nil
}

// FromZap wraps an existing zap logger, e.g. one built by zaptest
func FromZap(zapLogger *zap.Logger, serviceName string) *Logger {
	if zapLogger == nil {
		zapLogger = zap.NewNop()
	}
	return &Logger{
		Logger:      zapLogger,
		serviceName: serviceName,
	}
}

// NewNopLogger returns a logger that discards everything
func NewNopLogger() *Logger {
	return FromZap(zap.NewNop(), "")
}

// ContextWithRequest stores the request context in ctx for later log enrichment
func ContextWithRequest(ctx context.Context, reqCtx *types.RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey, reqCtx)
}

// RequestFromContext returns the request context stored in ctx, if any
func RequestFromContext(ctx context.Context) *types.RequestContext {
	reqCtx, _ := ctx.Value(requestContextKey).(*types.RequestContext)
	return reqCtx
}

// WithContext adds context information to logger
func (l *Logger) WithContext(ctx context.Context) *Logger {
	return l.WithRequestContext(RequestFromContext(ctx))
}

// WithRequestContext adds request context information to logger
func (l *Logger) WithRequestContext(reqCtx *types.RequestContext) *Logger {
	if reqCtx == nil {
		return l
	}

	fields := []Field{
		zap.String("correlation_id", reqCtx.CorrelationID.String()),
		zap.String("service_id", string(reqCtx.ServiceID)),
	}

	if reqCtx.Source != "" {
		fields = append(fields, zap.String("source", reqCtx.Source))
	}

	if reqCtx.IPAddress != "" {
		fields = append(fields, zap.String("ip_address", reqCtx.IPAddress))
	}

	return l.WithFields(fields...)
}

// WithComponent adds component information to logger
func (l *Logger) WithComponent(component string) *Logger {
	return l.WithFields(zap.String("component", component))
}

// WithFields adds multiple fields to logger
func (l *Logger) WithFields(fields ...Field) *Logger {
	return &Logger{
		Logger:      l.Logger.With(fields...),
		serviceName: l.serviceName,
	}
}

// Security logging methods

// LogThreatDetection logs threat detection events
func (l *Logger) LogThreatDetection(threatType, severity, description string, fields ...Field) {
	allFields := append([]Field{
		zap.String("event_type", "threat_detection"),
		zap.String("threat_type", threatType),
		zap.String("severity", severity),
		zap.String("description", description),
		zap.Time("event_timestamp", time.Now().UTC()),
	}, fields...)

	switch severity {
	case "critical", "high":
		l.Error("Threat detected", allFields...)
	case "medium":
		l.Warn("Threat detected", allFields...)
	default:
		l.Info("Threat detected", allFields...)
	}
}

// LogModelEvent logs lifecycle changes of the classification model
// (retrain, import, export). Failed operations are logged at warn level.
func (l *Logger) LogModelEvent(operation string, success bool, fields ...Field) {
	allFields := append([]Field{
		zap.String("event_type", "model_lifecycle"),
		zap.String("operation", operation),
		zap.Bool("success", success),
		zap.Time("event_timestamp", time.Now().UTC()),
	}, fields...)

	if success {
		l.Info("Model event", allFields...)
	} else {
		l.Warn("Model event", allFields...)
	}
}

// LogPerformance logs performance metrics
func (l *Logger) LogPerformance(operation string, duration time.Duration, fields ...Field) {
	allFields := append([]Field{
		zap.String("event_type", "performance"),
		zap.String("operation", operation),
		zap.Duration("duration", duration),
		zap.Float64("duration_ms", float64(duration.Nanoseconds())/1000000),
	}, fields...)

	l.Debug("Performance metric", allFields...)
}

// Field creation functions

// String creates a string field
func String(key, value string) Field {
	return zap.String(key, value)
}

// Int creates an int field
func Int(key string, value int) Field {
	return zap.Int(key, value)
}

// Int64 creates an int64 field
func Int64(key string, value int64) Field {
	return zap.Int64(key, value)
}

// Float64 creates a float64 field
func Float64(key string, value float64) Field {
	return zap.Float64(key, value)
}

// Bool creates a bool field
func Bool(key string, value bool) Field {
	return zap.Bool(key, value)
}

// Duration creates a duration field
func Duration(key string, value time.Duration) Field {
	return zap.Duration(key, value)
}

// Error creates an error field
func Error(err error) Field {
	return zap.Error(err)
}

// Any creates a field with any value
func Any(key string, value interface{}) Field {
	return zap.Any(key, value)
}
