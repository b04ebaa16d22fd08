package logging

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/fyrsmithlabs/ragd/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLogger(t *testing.T) {
	cfg := NewDefaultConfig()

	logger, err := NewLogger(cfg, nil)
	require.NoError(t, err)
	require.NotNil(t, logger)
	assert.Equal(t, zapcore.InfoLevel, logger.Level())
}

func TestNewLogger_InvalidConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Format = "xml"

	_, err := NewLogger(cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestLogger_ContextAwareMethods(t *testing.T) {
	core, observed := observer.New(TraceLevel)
	logger := &Logger{zap: zap.New(core), level: zap.NewAtomicLevelAt(TraceLevel), config: NewDefaultConfig()}
	ctx := WithUserID(context.Background(), "user-1")

	tests := []struct {
		name  string
		log   func()
		level zapcore.Level
	}{
		{"trace", func() { logger.Trace(ctx, "msg trace") }, TraceLevel},
		{"debug", func() { logger.Debug(ctx, "msg debug") }, zapcore.DebugLevel},
		{"info", func() { logger.Info(ctx, "msg info") }, zapcore.InfoLevel},
		{"warn", func() { logger.Warn(ctx, "msg warn") }, zapcore.WarnLevel},
		{"error", func() { logger.Error(ctx, "msg error") }, zapcore.ErrorLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			observed.TakeAll()
			tt.log()

			entries := observed.All()
			require.Len(t, entries, 1)
			assert.Equal(t, tt.level, entries[0].Level)
			assert.Equal(t, "msg "+tt.name, entries[0].Message)
			assert.Equal(t, "user-1", entries[0].ContextMap()["user.id"])
		})
	}
}

func TestLogger_SetLevel(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Sampling.Enabled = false

	logger, err := NewLogger(cfg, nil)
	require.NoError(t, err)

	assert.False(t, logger.Enabled(zapcore.DebugLevel))
	logger.SetLevel(zapcore.DebugLevel)
	assert.True(t, logger.Enabled(zapcore.DebugLevel))

	child := logger.Named("ingest").With(zap.String("k", "v"))
	logger.SetLevel(zapcore.WarnLevel)
	assert.False(t, child.Enabled(zapcore.InfoLevel), "children share the atomic level")
	assert.Equal(t, zapcore.WarnLevel, child.Level())
}

func TestNewEncoder(t *testing.T) {
	entry := zapcore.Entry{Level: zapcore.InfoLevel, Message: "hello"}

	buf, err := newEncoder("json").EncodeEntry(entry, []zapcore.Field{zap.String("k", "v")})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"msg":"hello"`)
	assert.Contains(t, buf.String(), `"k":"v"`)

	buf, err = newEncoder("console").EncodeEntry(entry, nil)
	require.NoError(t, err)
	assert.False(t, bytes.HasPrefix(buf.Bytes(), []byte("{")))
}

func TestNewNop(t *testing.T) {
	logger := NewNop()
	assert.NotPanics(t, func() {
		logger.Info(context.Background(), "discarded")
		_ = logger.Sync()
	})
}

func TestFromAppConfig(t *testing.T) {
	cfg, err := FromAppConfig(configLogging("debug", "console"), true)
	require.NoError(t, err)
	assert.Equal(t, zapcore.DebugLevel, cfg.Level)
	assert.Equal(t, "console", cfg.Format)
	assert.True(t, cfg.Output.OTEL)

	_, err = FromAppConfig(configLogging("loud", "json"), false)
	require.Error(t, err)
}

func TestLogger_ClassifiedErrors(t *testing.T) {
	core, observed := observer.New(zapcore.DebugLevel)
	logger := &Logger{zap: zap.New(core), level: zap.NewAtomicLevelAt(zapcore.DebugLevel), config: NewDefaultConfig()}
	ctx := context.Background()

	cause := apperr.Storage("ingest.embed", "Error generating embeddings", errors.New("tei down"))
	logger.Warn(ctx, "classified", zap.Error(fmt.Errorf("wrapped: %w", cause)))
	logger.Warn(ctx, "plain", zap.Error(errors.New("boom")))
	logger.Trace(ctx, "below level", zap.Error(cause))

	entries := observed.All()
	require.Len(t, entries, 2)
	fields := entries[0].ContextMap()
	assert.Equal(t, "STORAGE", fields["error_kind"])
	assert.Equal(t, "ingest.embed", fields["error_op"])
	assert.NotContains(t, entries[1].ContextMap(), "error_kind")
}
