package xlog

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildJSONLogger(t *testing.T) (LoggerWithLevel, *bytes.Buffer) {
	t.Helper()

	var buf bytes.Buffer
	logger, cleanup, err := New().
		SetOutput(&buf).
		SetFormat("json").
		Build()
	require.NoError(t, err)
	t.Cleanup(func() { _ = cleanup() })

	return logger, &buf
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"  warn  ", LevelWarn, false},
		{"warning", LevelWarn, false},
		{"Error", LevelError, false},
		{"verbose", LevelInfo, true},
		{"", LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLevel(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLevel_String(t *testing.T) {
	assert.Equal(t, "DEBUG", LevelDebug.String())
	assert.Equal(t, "INFO", LevelInfo.String())
	assert.Equal(t, "WARN", LevelWarn.String())
	assert.Equal(t, "ERROR", LevelError.String())
}

func TestLevel_TextMarshalling(t *testing.T) {
	data, err := LevelWarn.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "WARN", string(data))

	var level Level
	require.NoError(t, level.UnmarshalText([]byte("error")))
	assert.Equal(t, LevelError, level)

	assert.Error(t, level.UnmarshalText([]byte("bogus")))
}

func TestLogger_Output(t *testing.T) {
	logger, buf := buildJSONLogger(t)
	ctx := context.Background()

	logger.Info(ctx, "request admitted",
		slog.String("identity", "ip:203.0.113.9"),
		slog.Int("remaining", 42),
	)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "request admitted", entry["msg"])
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "ip:203.0.113.9", entry["identity"])
	assert.Equal(t, float64(42), entry["remaining"])
}

func TestLogger_LevelFiltering(t *testing.T) {
	logger, buf := buildJSONLogger(t)
	ctx := context.Background()

	// 默认 Info：Debug 被过滤
	logger.Debug(ctx, "hidden")
	assert.Empty(t, buf.String())

	// 动态降级后 Debug 可见
	logger.SetLevel(LevelDebug)
	assert.Equal(t, LevelDebug, logger.GetLevel())
	assert.True(t, logger.Enabled(ctx, LevelDebug))

	logger.Debug(ctx, "visible")
	assert.Contains(t, buf.String(), "visible")
}

func TestLogger_With(t *testing.T) {
	logger, buf := buildJSONLogger(t)
	ctx := context.Background()

	derived := logger.With(slog.String("component", "xadmit"))
	derived.Warn(ctx, "store outage")

	assert.Contains(t, buf.String(), `"component":"xadmit"`)

	t.Run("empty attrs returns same logger", func(t *testing.T) {
		assert.Same(t, logger, logger.With())
	})

	t.Run("derived shares level var", func(t *testing.T) {
		buf.Reset()
		logger.SetLevel(LevelError)
		derived.Warn(ctx, "suppressed")
		assert.Empty(t, buf.String())
	})
}

func TestLogger_WithGroup(t *testing.T) {
	logger, buf := buildJSONLogger(t)
	ctx := context.Background()

	grouped := logger.WithGroup("admission").With(slog.String("identity", "ip:1.2.3.4"))
	grouped.Info(ctx, "decided")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	group, ok := entry["admission"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ip:1.2.3.4", group["identity"])

	assert.Same(t, grouped, grouped.WithGroup(""))
}

func TestBuilder(t *testing.T) {
	t.Run("text format default", func(t *testing.T) {
		var buf bytes.Buffer
		logger, cleanup, err := New().SetOutput(&buf).Build()
		require.NoError(t, err)
		defer func() { _ = cleanup() }()

		logger.Info(context.Background(), "hello")
		assert.True(t, strings.Contains(buf.String(), "msg=hello"))
	})

	t.Run("level string", func(t *testing.T) {
		logger, cleanup, err := New().SetLevelString("debug").Build()
		require.NoError(t, err)
		defer func() { _ = cleanup() }()
		assert.Equal(t, LevelDebug, logger.GetLevel())
	})

	t.Run("invalid level string", func(t *testing.T) {
		_, _, err := New().SetLevelString("loud").Build()
		assert.Error(t, err)
	})

	t.Run("invalid format", func(t *testing.T) {
		_, _, err := New().SetFormat("xml").Build()
		assert.Error(t, err)
	})

	t.Run("empty format keeps default", func(t *testing.T) {
		_, cleanup, err := New().SetFormat("").Build()
		require.NoError(t, err)
		defer func() { _ = cleanup() }()
	})

	t.Run("rotation requires filename", func(t *testing.T) {
		_, _, err := New().SetRotation("", 10, 3, 7).Build()
		assert.Error(t, err)
	})
}
