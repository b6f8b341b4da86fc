package xadmit

import (
	"fmt"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/botboard/guardkit/pkg/observability/xlog"
)

// BreakerSettings 存储熔断配置
//
// 连续 MaxFailures 次存储错误后熔断打开，打开期间判定直接
// fail-open，不再访问存储；OpenTimeout 后半开试探恢复。
type BreakerSettings struct {
	// MaxFailures 触发熔断的连续失败次数，默认 3
	MaxFailures uint32
	// OpenTimeout 熔断打开持续时长，默认 10s
	OpenTimeout time.Duration
}

// options 内部配置结构
type options struct {
	policy        Policy
	logger        xlog.Logger
	meterProvider metric.MeterProvider
	metrics       *Metrics
	clock         func() time.Time
	storeTimeout  time.Duration
	breaker       BreakerSettings
	onAllow       func(id Identity, d *Decision)
	onDeny        func(id Identity, d *Decision)
	onOutage      func(err error)
	initErr       error // 配置加载阶段的错误，延迟到 New 时返回
}

// validate 验证选项并返回初始化阶段收集的错误
// Option 函数签名不支持返回错误，配置加载错误暂存在 initErr 中，
// 在 New 构造时统一检查。
func (o *options) validate() error {
	if o.initErr != nil {
		return o.initErr
	}
	return o.policy.Validate()
}

// Option 配置选项函数
type Option func(*options)

// defaultOptions 返回默认配置
func defaultOptions() *options {
	return &options{
		policy:       DefaultPolicy(),
		clock:        time.Now,
		storeTimeout: 500 * time.Millisecond,
		breaker: BreakerSettings{
			MaxFailures: 3,
			OpenTimeout: 10 * time.Second,
		},
	}
}

// WithPolicy 使用完整策略覆盖默认值
func WithPolicy(policy Policy) Option {
	return func(o *options) {
		o.policy = policy.Clone()
	}
}

// WithMaxRequests 设置单窗口配额
func WithMaxRequests(n int) Option {
	return func(o *options) {
		o.policy.MaxRequests = n
	}
}

// WithWindow 设置固定窗口时长
func WithWindow(window time.Duration) Option {
	return func(o *options) {
		o.policy.Window = window
	}
}

// WithBlockDuration 设置超限封禁时长
func WithBlockDuration(d time.Duration) Option {
	return func(o *options) {
		o.policy.BlockDuration = d
	}
}

// WithKeyPrefix 设置 Redis 键前缀
func WithKeyPrefix(prefix string) Option {
	return func(o *options) {
		o.policy.KeyPrefix = prefix
	}
}

// WithSkipPatterns 追加免于限流的路径模式
//
// 追加语义：多次调用或与 WithPolicy 组合时在已有模式上叠加，
// 不覆盖。需要整体替换时通过 WithPolicy 传入完整策略。
func WithSkipPatterns(patterns ...string) Option {
	return func(o *options) {
		o.policy.SkipPatterns = append(o.policy.SkipPatterns, patterns...)
	}
}

// WithTrustProxyHeaders 设置是否信任代理转发的客户端 IP 头
func WithTrustProxyHeaders(trust bool) Option {
	return func(o *options) {
		o.policy.TrustProxyHeaders = trust
	}
}

// WithEnabled 设置全局开关
// 关闭时所有请求直接放行，不访问存储
func WithEnabled(enabled bool) Option {
	return func(o *options) {
		o.policy.Enabled = &enabled
	}
}

// WithLogger 设置日志记录器
func WithLogger(logger xlog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMeterProvider 设置 OpenTelemetry MeterProvider
// 如果不设置，不收集指标
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) {
		o.meterProvider = mp
	}
}

// WithStoreTimeout 设置单次存储往返的超时上限
// 超时按存储不可用处理，走 fail-open 路径
func WithStoreTimeout(timeout time.Duration) Option {
	return func(o *options) {
		if timeout > 0 {
			o.storeTimeout = timeout
		}
	}
}

// WithBreakerSettings 设置存储熔断参数
func WithBreakerSettings(settings BreakerSettings) Option {
	return func(o *options) {
		if settings.MaxFailures > 0 {
			o.breaker.MaxFailures = settings.MaxFailures
		}
		if settings.OpenTimeout > 0 {
			o.breaker.OpenTimeout = settings.OpenTimeout
		}
	}
}

// WithClock 注入时钟，用于测试窗口与封禁的时间推进
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithOnAllow 设置请求放行时的回调
func WithOnAllow(fn func(id Identity, d *Decision)) Option {
	return func(o *options) {
		o.onAllow = fn
	}
}

// WithOnDeny 设置请求被拒绝时的回调
func WithOnDeny(fn func(id Identity, d *Decision)) Option {
	return func(o *options) {
		o.onDeny = fn
	}
}

// WithOnOutage 设置存储故障降级时的回调
func WithOnOutage(fn func(err error)) Option {
	return func(o *options) {
		o.onOutage = fn
	}
}

// WithPolicyProvider 使用策略提供器加载初始策略
//
// 此选项会在创建引擎时立即加载。加载失败的错误将在 New 构造时
// 返回，避免在默认策略下静默运行。
func WithPolicyProvider(provider PolicyProvider) Option {
	return func(o *options) {
		if provider == nil {
			return
		}

		policy, err := provider.Load()
		if err != nil {
			o.initErr = fmt.Errorf("policy provider load failed: %w", err)
			return
		}

		o.policy = policy
	}
}
