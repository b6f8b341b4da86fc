package xadmit

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"
)

// Engine 准入判定引擎
//
// 进程内不持有任何请求间状态，全部状态存于共享存储，
// 判定正确性与处理请求的实例无关。并发安全。
type Engine struct {
	client  redis.UniversalClient
	opts    *options
	scripts *scripts
	breaker *gobreaker.CircuitBreaker[[]int64]
	policy  atomic.Pointer[Policy]
	closed  atomic.Bool
}

// New 创建判定引擎
//
// 策略在此处一次性校验，配置错误立即失败而非留到请求路径。
func New(client redis.UniversalClient, opts ...Option) (*Engine, error) {
	if client == nil {
		return nil, ErrNilClient
	}

	cfg := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if cfg.meterProvider != nil {
		metrics, err := NewMetrics(cfg.meterProvider)
		if err != nil {
			return nil, err
		}
		cfg.metrics = metrics
	}

	e := &Engine{
		client:  client,
		opts:    cfg,
		scripts: getScripts(),
	}

	policy := cfg.policy.Clone()
	e.policy.Store(&policy)
	e.breaker = newStoreBreaker(cfg, e)

	return e, nil
}

// newStoreBreaker 创建包裹存储调用的熔断器
//
// 熔断状态迁移时记录一次日志：整个故障期只产生一条告警，
// 而不是每个请求一条。
func newStoreBreaker(cfg *options, e *Engine) *gobreaker.CircuitBreaker[[]int64] {
	maxFailures := cfg.breaker.MaxFailures
	return gobreaker.NewCircuitBreaker[[]int64](gobreaker.Settings{
		Name:    "xadmit-store",
		Timeout: cfg.breaker.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			e.logBreakerTransition(from, to)
		},
	})
}

// Policy 返回当前生效的策略快照
func (e *Engine) Policy() Policy {
	return e.policy.Load().Clone()
}

// SetPolicy 原子替换生效策略，用于配置热更新
func (e *Engine) SetPolicy(policy Policy) error {
	if err := policy.Validate(); err != nil {
		return err
	}
	clone := policy.Clone()
	e.policy.Store(&clone)
	return nil
}

// Decide 对单个身份执行一次准入判定
//
// 整个"读封禁-查计数-递增"序列在存储侧以单个 Lua 脚本原子执行，
// 多实例并发对同一身份的判定由存储序列化：仅剩一个配额时两个
// 并发请求恰好一个放行一个拒绝，不会双双放行。
//
// 存储不可用（含熔断打开）、超时与脚本异常一律 fail-open：
// 返回满配额的放行结果且 err 为 nil，绝不把存储故障转嫁给请求方。
// 仅在引擎已关闭或身份为空时返回错误。
func (e *Engine) Decide(ctx context.Context, id Identity) (*Decision, error) {
	if e.closed.Load() {
		return nil, ErrEngineClosed
	}
	if id == "" {
		return nil, ErrInvalidIdentity
	}

	policy := e.policy.Load()
	now := e.opts.clock()

	if !policy.IsEnabled() {
		return e.allowAll(*policy, now, false), nil
	}

	start := time.Now()
	result := e.callStore(ctx, *policy, id, now)

	var decision *Decision
	if result.unavailable {
		// 唯一的 fail-open 映射点：所有降级路径都汇聚到这里
		decision = e.failOpen(ctx, *policy, now, result.err)
	} else {
		decision = result.decision
	}

	e.opts.metrics.RecordDecide(ctx, decision.Blocked, decision.Degraded, time.Since(start))

	if decision.Blocked {
		e.notifyDeny(ctx, id, decision)
	} else {
		e.notifyAllow(ctx, id, decision)
	}

	return decision, nil
}

// storeResult 存储判定的二态结果：成功拿到判定，或存储不可用
type storeResult struct {
	decision    *Decision
	unavailable bool
	err         error
}

// callStore 执行存储侧的原子判定脚本
//
// 往返带超时上限；熔断打开时 Execute 直接返回 ErrOpenState，
// 不产生网络调用。
func (e *Engine) callStore(ctx context.Context, policy Policy, id Identity, now time.Time) storeResult {
	blockKey := e.blockKey(policy, id)
	counterKey := e.counterKey(policy, id, now)

	raw, err := e.breaker.Execute(func() ([]int64, error) {
		callCtx, cancel := context.WithTimeout(ctx, e.opts.storeTimeout)
		defer cancel()

		val, runErr := e.scripts.decide.Run(callCtx, e.client,
			[]string{blockKey, counterKey},
			now.UnixMilli(),
			policy.Window.Milliseconds(),
			policy.MaxRequests,
			policy.BlockDuration.Milliseconds(),
		).Result()
		if runErr != nil {
			return nil, runErr
		}
		return convertScriptResult(val)
	})
	if err != nil {
		// 脚本异常与连接故障同路处理：两者都意味着无法可信判定
		return storeResult{unavailable: true, err: err}
	}

	if err := validateScriptResult(raw, scriptResultLen); err != nil {
		return storeResult{unavailable: true, err: err}
	}

	return storeResult{decision: &Decision{
		Blocked:    raw[scriptFieldBlocked] == 1,
		Limit:      int(raw[scriptFieldLimit]),
		Remaining:  int(raw[scriptFieldRemaining]),
		RetryAfter: time.Duration(raw[scriptFieldRetryAfterMs]) * time.Millisecond,
		ResetAt:    time.UnixMilli(raw[scriptFieldResetAtMs]),
	}}
}

// failOpen 存储故障时的降级放行
func (e *Engine) failOpen(ctx context.Context, policy Policy, now time.Time, cause error) *Decision {
	reason := classifyError(cause)
	e.opts.metrics.RecordFailOpen(ctx, reason)

	if e.opts.onOutage != nil {
		e.opts.onOutage(cause)
	}

	if e.opts.logger != nil {
		// 熔断打开属于既知故障期，状态迁移时已告警过，降噪为 Debug
		level := e.opts.logger.Warn
		if reason == "breaker_open" {
			level = e.opts.logger.Debug
		}
		level(ctx, "admission check degraded, failing open",
			slog.String("reason", reason),
			slog.String("error", cause.Error()),
		)
	}

	return e.allowAll(policy, now, true)
}

// allowAll 构造满配额的放行结果（禁用与降级共用）
func (e *Engine) allowAll(policy Policy, now time.Time, degraded bool) *Decision {
	return &Decision{
		Blocked:   false,
		Limit:     policy.MaxRequests,
		Remaining: policy.MaxRequests,
		ResetAt:   now.Add(policy.Window),
		Degraded:  degraded,
	}
}

// Query 查询身份的当前配额状态，不消耗配额
//
// 读路径无需原子性，普通读命令即可；与 Decide 不同，
// 存储故障原样上抛，由调用方（通常是运维工具）决定重试。
func (e *Engine) Query(ctx context.Context, id Identity) (*QuotaInfo, error) {
	if e.closed.Load() {
		return nil, ErrEngineClosed
	}
	if id == "" {
		return nil, ErrInvalidIdentity
	}

	policy := e.policy.Load()
	now := e.opts.clock()

	info := &QuotaInfo{
		Identity:  id,
		Limit:     policy.MaxRequests,
		Remaining: policy.MaxRequests,
		ResetAt:   now.Add(policy.Window),
	}

	blockedUntil, err := e.client.Get(ctx, e.blockKey(*policy, id)).Int64()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("query block key: %w", err)
	}
	if err == nil && now.UnixMilli() < blockedUntil {
		info.Blocked = true
		info.BlockedUntil = time.UnixMilli(blockedUntil)
		info.Remaining = 0
		info.ResetAt = info.BlockedUntil
		return info, nil
	}

	counterKey := e.counterKey(*policy, id, now)
	count, err := e.client.Get(ctx, counterKey).Int()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("query counter key: %w", err)
	}
	if err == redis.Nil {
		return info, nil
	}

	info.Remaining = max(0, policy.MaxRequests-count)
	if ttl, ttlErr := e.client.PTTL(ctx, counterKey).Result(); ttlErr == nil && ttl > 0 {
		info.ResetAt = now.Add(ttl)
	}
	return info, nil
}

// Reset 清除身份的封禁与当前窗口计数
//
// 运维兜底操作：误封或测试后复位。只影响当前窗口的计数键，
// 历史窗口的键由 TTL 自行过期。
func (e *Engine) Reset(ctx context.Context, id Identity) error {
	if e.closed.Load() {
		return ErrEngineClosed
	}
	if id == "" {
		return ErrInvalidIdentity
	}

	policy := e.policy.Load()
	now := e.opts.clock()

	return e.client.Del(ctx,
		e.blockKey(*policy, id),
		e.counterKey(*policy, id, now),
	).Err()
}

// Health 健康检查，探测共享存储可达性
func (e *Engine) Health(ctx context.Context) error {
	if e.closed.Load() {
		return ErrEngineClosed
	}
	return e.client.Ping(ctx).Err()
}

// Close 关闭引擎
// Redis 客户端由调用者管理，这里不关闭
func (e *Engine) Close() error {
	e.closed.Store(true)
	return nil
}

// notifyAllow 调用放行回调并记录日志
func (e *Engine) notifyAllow(ctx context.Context, id Identity, d *Decision) {
	if e.opts.onAllow != nil {
		e.opts.onAllow(id, d)
	}

	if e.opts.logger != nil {
		e.opts.logger.Debug(ctx, "request admitted",
			slog.String("identity", id.String()),
			slog.Int("remaining", d.Remaining),
			slog.Bool("degraded", d.Degraded),
		)
	}
}

// notifyDeny 调用拒绝回调并记录日志
func (e *Engine) notifyDeny(ctx context.Context, id Identity, d *Decision) {
	if e.opts.onDeny != nil {
		e.opts.onDeny(id, d)
	}

	if e.opts.logger != nil {
		e.opts.logger.Warn(ctx, "request rejected by rate limit",
			slog.String("identity", id.String()),
			slog.Int("limit", d.Limit),
			slog.Duration("retry_after", d.RetryAfter),
		)
	}
}

// logBreakerTransition 记录熔断状态迁移
func (e *Engine) logBreakerTransition(from, to gobreaker.State) {
	if e.opts.logger == nil {
		return
	}

	ctx := context.Background()
	switch to {
	case gobreaker.StateOpen:
		e.opts.logger.Warn(ctx, "admission store outage detected, breaker open",
			slog.String("from", from.String()),
		)
	case gobreaker.StateClosed:
		e.opts.logger.Info(ctx, "admission store recovered, breaker closed",
			slog.String("from", from.String()),
		)
	case gobreaker.StateHalfOpen:
		e.opts.logger.Debug(ctx, "admission store breaker half-open, probing")
	}
}

// blockKey 构建封禁键
// {identity} 作为 hash tag，保证 Cluster 下与计数键同槽
func (e *Engine) blockKey(policy Policy, id Identity) string {
	return policy.KeyPrefix + ":blocked:{" + id.String() + "}"
}

// counterKey 构建当前窗口的计数键
func (e *Engine) counterKey(policy Policy, id Identity, now time.Time) string {
	bucket := policy.windowBucket(now)
	return policy.KeyPrefix + ":limit:{" + id.String() + "}:" + strconv.FormatInt(bucket, 10)
}
