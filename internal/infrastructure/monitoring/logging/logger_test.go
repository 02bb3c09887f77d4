package logging

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newObservedLogger() (Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return NewLoggerFromCore(core), logs
}

func TestNewLogger_Formats(t *testing.T) {
	for _, format := range []string{"json", "console", ""} {
		l, err := NewLogger(LogConfig{Level: LevelInfo, Format: format})
		require.NoError(t, err, format)
		assert.NotNil(t, l)
	}
}

func TestNewLogger_EmptyOutputPaths(t *testing.T) {
	l, err := NewLogger(LogConfig{OutputPaths: []string{}})
	assert.Error(t, err)
	assert.Nil(t, l)
}

func TestNewDefaultLogger_NotNil(t *testing.T) {
	assert.NotNil(t, NewDefaultLogger())
}

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"DEBUG":   zapcore.DebugLevel,
		"warn":    zapcore.WarnLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"info":    zapcore.InfoLevel,
		"bogus":   zapcore.InfoLevel,
		"":        zapcore.InfoLevel,
	}
	for in, want := range cases {
		assert.Equal(t, want, parseLevel(in), in)
	}
}

func TestSetLevel_ChangesAtomicLevel(t *testing.T) {
	SetLevel(LevelError)
	assert.Equal(t, "error", CurrentLevel())
	SetLevel(LevelInfo)
	assert.Equal(t, "info", CurrentLevel())
}

func TestZapLogger_FieldsAreEncoded(t *testing.T) {
	l, logs := newObservedLogger()

	l.Info("chat stream finished",
		String("session_id", "s-1"),
		Int("chunks", 3),
		Int64("bytes", 1024),
		Float64("ratio", 0.5),
		Bool("replaced", true),
		Duration("elapsed", 2*time.Second),
		Err(errors.New("boom")),
		Any("questions", []string{"a", "b"}),
	)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "chat stream finished", entry.Message)
	ctx := entry.ContextMap()
	assert.Equal(t, "s-1", ctx["session_id"])
	assert.Equal(t, int64(3), ctx["chunks"])
	assert.Equal(t, int64(1024), ctx["bytes"])
	assert.Equal(t, 0.5, ctx["ratio"])
	assert.Equal(t, true, ctx["replaced"])
	assert.Equal(t, 2*time.Second, ctx["elapsed"])
	assert.Equal(t, "boom", ctx["error"])
}

func TestZapLogger_Levels(t *testing.T) {
	l, logs := newObservedLogger()

	l.Debug("d")
	l.Info("i")
	l.Warn("w")
	l.Error("e")

	require.Equal(t, 4, logs.Len())
	assert.Equal(t, zapcore.DebugLevel, logs.All()[0].Level)
	assert.Equal(t, zapcore.ErrorLevel, logs.All()[3].Level)
}

func TestZapLogger_WithAndNamed(t *testing.T) {
	l, logs := newObservedLogger()

	child := l.Named("http").With(String("request_id", "r-9"))
	child.Info("request")

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "http", entry.LoggerName)
	assert.Equal(t, "r-9", entry.ContextMap()["request_id"])
}

func TestErr_Nil(t *testing.T) {
	f := Err(nil)
	assert.Equal(t, "error", f.Key)
	assert.Equal(t, "<nil>", f.Value)
}

func TestNopLogger(t *testing.T) {
	l := NewNopLogger()
	assert.NotPanics(t, func() {
		l.Debug("x")
		l.Info("x")
		l.Warn("x")
		l.Error("x")
		l.With(String("a", "b")).Named("n").Info("x")
	})
}

func TestSetDefault(t *testing.T) {
	original := Default()
	t.Cleanup(func() { SetDefault(original) })

	l, _ := newObservedLogger()
	SetDefault(l)
	assert.Same(t, l.(*zapLogger), Default().(*zapLogger))

	SetDefault(nil)
	assert.Same(t, l.(*zapLogger), Default().(*zapLogger))
}

func TestContextLogger(t *testing.T) {
	fallback := NewNopLogger()
	assert.Equal(t, fallback, FromContext(context.Background(), fallback))

	l, logs := newObservedLogger()
	ctx := WithContext(context.Background(), l)
	FromContext(ctx, fallback).Info("scoped")
	assert.Equal(t, 1, logs.Len())
}
