package xadmit

import (
	"fmt"
	"time"
)

// Policy 准入策略配置
//
// 零值不可直接使用，请从 DefaultPolicy() 出发按需覆盖。
type Policy struct {
	// MaxRequests 单窗口允许的最大请求数
	MaxRequests int `json:"max_requests" yaml:"max_requests" koanf:"max_requests"`

	// Window 固定窗口时长
	Window time.Duration `json:"window" yaml:"window" koanf:"window"`

	// BlockDuration 超限后的惩罚性封禁时长
	BlockDuration time.Duration `json:"block_duration" yaml:"block_duration" koanf:"block_duration"`

	// SkipPatterns 免于限流的路径模式，按序匹配：
	//   - "*.css" / ".css"：扩展名匹配
	//   - "/health"：路径前缀匹配
	SkipPatterns []string `json:"skip_patterns" yaml:"skip_patterns" koanf:"skip_patterns"`

	// TrustProxyHeaders 是否信任代理转发的客户端 IP 头
	// 仅在部署于可信反向代理/CDN 之后时开启，否则头部可被伪造
	TrustProxyHeaders bool `json:"trust_proxy_headers" yaml:"trust_proxy_headers" koanf:"trust_proxy_headers"`

	// KeyPrefix Redis 键前缀，默认为 "xadmit"
	KeyPrefix string `json:"key_prefix" yaml:"key_prefix" koanf:"key_prefix"`

	// Enabled 全局开关，nil 或 true 表示启用
	// 关闭时所有请求直接放行，不访问存储
	Enabled *bool `json:"enabled,omitempty" yaml:"enabled,omitempty" koanf:"enabled"`
}

// DefaultPolicy 返回默认策略
func DefaultPolicy() Policy {
	return Policy{
		MaxRequests:   100,
		Window:        time.Minute,
		BlockDuration: 5 * time.Minute,
		KeyPrefix:     "xadmit",
	}
}

// Validate 验证策略是否有效
//
// 策略错误属于部署缺陷，在引擎构造时暴露，不做请求级处理。
func (p Policy) Validate() error {
	if p.MaxRequests <= 0 {
		return fmt.Errorf("%w: max_requests must be positive", ErrInvalidPolicy)
	}
	if p.Window <= 0 {
		return fmt.Errorf("%w: window must be positive", ErrInvalidPolicy)
	}
	if p.BlockDuration <= 0 {
		return fmt.Errorf("%w: block_duration must be positive", ErrInvalidPolicy)
	}
	if p.KeyPrefix == "" {
		return fmt.Errorf("%w: key_prefix is required", ErrInvalidPolicy)
	}
	return nil
}

// IsEnabled 检查策略是否启用
func (p Policy) IsEnabled() bool {
	if p.Enabled == nil {
		return true
	}
	return *p.Enabled
}

// Clone 创建策略的深拷贝
func (p Policy) Clone() Policy {
	clone := p
	if p.SkipPatterns != nil {
		clone.SkipPatterns = make([]string, len(p.SkipPatterns))
		copy(clone.SkipPatterns, p.SkipPatterns)
	}
	if p.Enabled != nil {
		enabled := *p.Enabled
		clone.Enabled = &enabled
	}
	return clone
}

// windowBucket 计算固定窗口编号
// bucket = floor(nowMs / windowMs)，键名随窗口滚动，旧键自然过期
func (p Policy) windowBucket(now time.Time) int64 {
	return now.UnixMilli() / p.Window.Milliseconds()
}
