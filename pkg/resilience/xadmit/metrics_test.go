package xadmit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestNewMetrics(t *testing.T) {
	t.Run("nil provider disables metrics", func(t *testing.T) {
		m, err := NewMetrics(nil)
		require.NoError(t, err)
		assert.Nil(t, m)
	})

	t.Run("creates instruments", func(t *testing.T) {
		provider := sdkmetric.NewMeterProvider()
		defer func() { _ = provider.Shutdown(context.Background()) }()

		m, err := NewMetrics(provider)
		require.NoError(t, err)
		require.NotNil(t, m)
	})
}

func TestMetrics_NilReceiver(t *testing.T) {
	var m *Metrics
	ctx := context.Background()

	// nil 收集器静默丢弃，不 panic
	assert.NotPanics(t, func() {
		m.RecordDecide(ctx, true, false, time.Millisecond)
		m.RecordFailOpen(ctx, "store_unreachable")
	})
}

func TestMetrics_Record(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = provider.Shutdown(context.Background()) }()

	m, err := NewMetrics(provider)
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordDecide(ctx, false, false, 2*time.Millisecond)
	m.RecordDecide(ctx, true, false, time.Millisecond)
	m.RecordFailOpen(ctx, "breaker_open")

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	require.NotEmpty(t, rm.ScopeMetrics)

	names := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, metrics := range sm.Metrics {
			names[metrics.Name] = true
		}
	}

	assert.True(t, names[metricNameDecisionsTotal])
	assert.True(t, names[metricNameBlockedTotal])
	assert.True(t, names[metricNameFailOpenTotal])
	assert.True(t, names[metricNameDecideDuration])
}

func TestMetrics_CancelledContext(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = provider.Shutdown(context.Background()) }()

	m, err := NewMetrics(provider)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// 请求 ctx 已取消不影响记录
	m.RecordDecide(ctx, false, true, time.Millisecond)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	assert.NotEmpty(t, rm.ScopeMetrics)
}
