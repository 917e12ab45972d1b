package logging

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/isectech/hospital-threat-engine/shared/types"
)

func observed(level zapcore.Level) (*Logger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return FromZap(zap.New(core), "threat-classifier"), logs
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(Config{Level: "debug", Format: "console", Output: "stderr", ServiceName: "svc"})
	require.NoError(t, err)
	assert.NotNil(t, logger)

	_, err = NewLogger(Config{Level: "loud"})
	assert.Error(t, err)
}

func TestLogThreatDetection_Levels(t *testing.T) {
	logger, logs := observed(zapcore.DebugLevel)

	logger.LogThreatDetection("ddos", "critical", "flood")
	logger.LogThreatDetection("intrusion", "medium", "scan")
	logger.LogThreatDetection("benign", "low", "noise")

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, zapcore.InfoLevel, entries[2].Level)
	assert.Equal(t, "ddos", entries[0].ContextMap()["threat_type"])
	assert.Equal(t, "threat_detection", entries[0].ContextMap()["event_type"])
}

func TestLogModelEvent(t *testing.T) {
	logger, logs := observed(zapcore.DebugLevel)

	logger.LogModelEvent("retrain", true, Int("trees", 100))
	logger.LogModelEvent("import", false)

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, int64(100), entries[0].ContextMap()["trees"])
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, false, entries[1].ContextMap()["success"])
}

func TestWithContext_AddsCorrelation(t *testing.T) {
	logger, logs := observed(zapcore.DebugLevel)

	reqCtx := types.NewRequestContext("threat-classifier", "http").WithClient("10.0.0.1", "curl")
	ctx := ContextWithRequest(context.Background(), reqCtx)

	logger.WithContext(ctx).WithComponent("api").Info("handled")
	logger.WithContext(context.Background()).Info("bare")

	entries := logs.All()
	require.Len(t, entries, 2)
	fields := entries[0].ContextMap()
	assert.Equal(t, reqCtx.CorrelationID.String(), fields["correlation_id"])
	assert.Equal(t, "http", fields["source"])
	assert.Equal(t, "10.0.0.1", fields["ip_address"])
	assert.Equal(t, "api", fields["component"])
	assert.NotContains(t, entries[1].ContextMap(), "correlation_id")
}

func TestLogPerformance_Debug(t *testing.T) {
	logger, logs := observed(zapcore.InfoLevel)
	logger.LogPerformance("classify", time.Millisecond)
	assert.Zero(t, logs.Len())
}
