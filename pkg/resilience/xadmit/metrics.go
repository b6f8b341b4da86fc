package xadmit

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// 指标名称常量
const (
	// metricNameDecisionsTotal 判定总数计数器
	metricNameDecisionsTotal = "xadmit.decisions.total"
	// metricNameBlockedTotal 被拒绝请求计数器
	metricNameBlockedTotal = "xadmit.blocked.total"
	// metricNameFailOpenTotal 降级放行次数计数器
	metricNameFailOpenTotal = "xadmit.failopen.total"
	// metricNameDecideDuration 判定耗时直方图
	metricNameDecideDuration = "xadmit.decide.duration"
)

// Metrics 准入指标收集器
type Metrics struct {
	meter          metric.Meter
	decisionsTotal metric.Int64Counter
	blockedTotal   metric.Int64Counter
	failOpenTotal  metric.Int64Counter
	decideDuration metric.Float64Histogram
}

// NewMetrics 创建指标收集器
// 如果 meterProvider 为 nil，返回 nil（不收集指标）
func NewMetrics(meterProvider metric.MeterProvider) (*Metrics, error) {
	if meterProvider == nil {
		return nil, nil
	}

	meter := meterProvider.Meter("xadmit",
		metric.WithInstrumentationVersion("1.0.0"),
	)

	decisionsTotal, err := meter.Int64Counter(
		metricNameDecisionsTotal,
		metric.WithDescription("准入判定总数"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		return nil, err
	}

	blockedTotal, err := meter.Int64Counter(
		metricNameBlockedTotal,
		metric.WithDescription("被拒绝的请求数"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	failOpenTotal, err := meter.Int64Counter(
		metricNameFailOpenTotal,
		metric.WithDescription("存储故障降级放行次数"),
		metric.WithUnit("{failopen}"),
	)
	if err != nil {
		return nil, err
	}

	decideDuration, err := meter.Float64Histogram(
		metricNameDecideDuration,
		metric.WithDescription("准入判定耗时"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(
			0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0,
		),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		meter:          meter,
		decisionsTotal: decisionsTotal,
		blockedTotal:   blockedTotal,
		failOpenTotal:  failOpenTotal,
		decideDuration: decideDuration,
	}, nil
}

// RecordDecide 记录一次判定结果
func (m *Metrics) RecordDecide(ctx context.Context, blocked, degraded bool, duration time.Duration) {
	if m == nil {
		return
	}

	// 即使请求 ctx 已取消，指标仍需记录
	metricsCtx := context.WithoutCancel(ctx)

	attrs := []attribute.KeyValue{
		attribute.Bool("blocked", blocked),
		attribute.Bool("degraded", degraded),
	}

	m.decisionsTotal.Add(metricsCtx, 1, metric.WithAttributes(attrs...))
	if blocked {
		m.blockedTotal.Add(metricsCtx, 1, metric.WithAttributes(attrs...))
	}
	m.decideDuration.Record(metricsCtx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordFailOpen 记录一次降级放行
// reason 为低基数标签（breaker_open / store_unreachable / bad_reply 等）
func (m *Metrics) RecordFailOpen(ctx context.Context, reason string) {
	if m == nil {
		return
	}

	metricsCtx := context.WithoutCancel(ctx)
	m.failOpenTotal.Add(metricsCtx, 1, metric.WithAttributes(
		attribute.String("reason", reason),
	))
}
