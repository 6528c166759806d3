//go:build unit

package zap

import (
	"context"
	"errors"
	"testing"

	logpkg "github.com/hsharp/lib-dbprovider/provider/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newObservedLogger(level zapcore.Level) (*Logger, *observer.ObservedLogs) {
	core, observed := observer.New(level)

	return NewWithCore(core), observed
}

func TestNewValidatesEnvironment(t *testing.T) {
	_, err := New(Config{Environment: "moon"})
	require.Error(t, err)

	logger, err := New(Config{Environment: EnvironmentProduction})
	require.NoError(t, err)
	assert.Equal(t, zapcore.InfoLevel, logger.Level().Level())

	logger, err = New(Config{Environment: EnvironmentLocal})
	require.NoError(t, err)
	assert.Equal(t, zapcore.DebugLevel, logger.Level().Level())
}

func TestNewRejectsInvalidLevel(t *testing.T) {
	_, err := New(Config{Environment: EnvironmentProduction, Level: "loud"})
	require.Error(t, err)
}

func TestLogDispatchesLevels(t *testing.T) {
	logger, observed := newObservedLogger(zapcore.DebugLevel)
	ctx := context.Background()

	logger.Log(ctx, logpkg.LevelDebug, "d")
	logger.Log(ctx, logpkg.LevelInfo, "i")
	logger.Log(ctx, logpkg.LevelWarn, "w")
	logger.Log(ctx, logpkg.LevelError, "e", logpkg.Err(errors.New("boom")))

	entries := observed.All()
	require.Len(t, entries, 4)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, zapcore.InfoLevel, entries[1].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[2].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[3].Level)
	assert.Equal(t, "boom", entries[3].ContextMap()["error"])
}

func TestLogAddsTraceCorrelation(t *testing.T) {
	logger, observed := newObservedLogger(zapcore.InfoLevel)

	traceID, _ := trace.TraceIDFromHex("0102030405060708090a0b0c0d0e0f10")
	spanID, _ := trace.SpanIDFromHex("0102030405060708")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	logger.Log(ctx, logpkg.LevelInfo, "traced")

	fields := observed.All()[0].ContextMap()
	assert.Equal(t, traceID.String(), fields["trace_id"])
	assert.Equal(t, spanID.String(), fields["span_id"])
}

func TestWithAndEnabled(t *testing.T) {
	logger, observed := newObservedLogger(zapcore.WarnLevel)

	child := logger.With(logpkg.String("db", "orders"))
	child.Log(context.Background(), logpkg.LevelWarn, "slow")

	assert.Equal(t, "orders", observed.All()[0].ContextMap()["db"])
	assert.False(t, logger.Enabled(logpkg.LevelInfo))
	assert.True(t, logger.Enabled(logpkg.LevelError))
}

func TestNilLoggerFallsBackToNop(t *testing.T) {
	var logger *Logger

	assert.NotPanics(t, func() {
		logger.Log(context.Background(), logpkg.LevelError, "dropped")
		_ = logger.With(logpkg.String("k", "v"))
		_ = logger.WithGroup("g")
	})
}

func TestSyncHonorsCanceledContext(t *testing.T) {
	logger, _ := newObservedLogger(zapcore.InfoLevel)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, logger.Sync(ctx), context.Canceled)
}
