package xadmit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultOptions(t *testing.T) {
	o := defaultOptions()

	assert.Equal(t, DefaultPolicy(), o.policy)
	assert.Equal(t, 500*time.Millisecond, o.storeTimeout)
	assert.Equal(t, uint32(3), o.breaker.MaxFailures)
	assert.Equal(t, 10*time.Second, o.breaker.OpenTimeout)
	require.NoError(t, o.validate())
}

func TestPolicyOptions(t *testing.T) {
	o := defaultOptions()
	for _, opt := range []Option{
		WithMaxRequests(7),
		WithWindow(30 * time.Second),
		WithBlockDuration(time.Hour),
		WithKeyPrefix("guard"),
		WithSkipPatterns("/health"),
		WithSkipPatterns("*.css"),
		WithTrustProxyHeaders(true),
		WithEnabled(false),
	} {
		opt(o)
	}

	assert.Equal(t, 7, o.policy.MaxRequests)
	assert.Equal(t, 30*time.Second, o.policy.Window)
	assert.Equal(t, time.Hour, o.policy.BlockDuration)
	assert.Equal(t, "guard", o.policy.KeyPrefix)
	// 多次 WithSkipPatterns 叠加而非覆盖
	assert.Equal(t, []string{"/health", "*.css"}, o.policy.SkipPatterns)
	assert.True(t, o.policy.TrustProxyHeaders)
	assert.False(t, o.policy.IsEnabled())
}

func TestWithStoreTimeout(t *testing.T) {
	o := defaultOptions()
	WithStoreTimeout(0)(o)
	assert.Equal(t, 500*time.Millisecond, o.storeTimeout, "non-positive timeout ignored")

	WithStoreTimeout(2 * time.Second)(o)
	assert.Equal(t, 2*time.Second, o.storeTimeout)
}

func TestWithBreakerSettings(t *testing.T) {
	o := defaultOptions()
	WithBreakerSettings(BreakerSettings{MaxFailures: 5})(o)

	assert.Equal(t, uint32(5), o.breaker.MaxFailures)
	// 未设置的字段保留默认值
	assert.Equal(t, 10*time.Second, o.breaker.OpenTimeout)
}

// stubProvider 测试用策略提供器
type stubProvider struct {
	policy Policy
	err    error
	ch     chan PolicyChange
}

func (p *stubProvider) Load() (Policy, error) { return p.policy, p.err }

func (p *stubProvider) Watch(_ context.Context) (<-chan PolicyChange, error) {
	return p.ch, nil
}

func TestWithPolicyProvider(t *testing.T) {
	t.Run("loads policy at construction", func(t *testing.T) {
		p := DefaultPolicy()
		p.MaxRequests = 9

		o := defaultOptions()
		WithPolicyProvider(&stubProvider{policy: p})(o)

		require.NoError(t, o.validate())
		assert.Equal(t, 9, o.policy.MaxRequests)
	})

	t.Run("load failure surfaces in validate", func(t *testing.T) {
		o := defaultOptions()
		WithPolicyProvider(&stubProvider{err: errors.New("unreachable")})(o)

		assert.Error(t, o.validate())
	})

	t.Run("nil provider ignored", func(t *testing.T) {
		o := defaultOptions()
		WithPolicyProvider(nil)(o)
		require.NoError(t, o.validate())
	})
}

func TestFollowPolicy(t *testing.T) {
	_, client := setupMiniredis(t)

	engine, err := New(client, WithMaxRequests(10))
	require.NoError(t, err)
	defer func() { _ = engine.Close() }()

	ch := make(chan PolicyChange, 1)
	provider := &stubProvider{ch: ch}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- FollowPolicy(ctx, engine, provider)
	}()

	// 有效变更被应用
	updated := DefaultPolicy()
	updated.MaxRequests = 33
	ch <- PolicyChange{NewPolicy: updated}

	require.Eventually(t, func() bool {
		return engine.Policy().MaxRequests == 33
	}, 2*time.Second, 10*time.Millisecond)

	// 携带错误的变更被跳过，引擎保持上一份有效策略
	ch <- PolicyChange{Err: errors.New("parse failed")}
	invalid := DefaultPolicy()
	invalid.Window = 0
	ch <- PolicyChange{NewPolicy: invalid}

	assert.Never(t, func() bool {
		return engine.Policy().MaxRequests != 33
	}, 200*time.Millisecond, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("FollowPolicy did not stop on cancel")
	}
}
