package xadmit

import (
	"math"
	"net/http"
	"strconv"
	"time"
)

// Decision 准入判定结果
type Decision struct {
	// Blocked 请求是否被拒绝
	Blocked bool

	// Limit 当前策略的窗口配额
	Limit int

	// Remaining 当前窗口内剩余配额
	Remaining int

	// RetryAfter 建议重试等待时间（仅在 Blocked=true 时有意义）
	RetryAfter time.Duration

	// ResetAt 配额重置时间（封禁时为封禁截止时间）
	ResetAt time.Time

	// Degraded 是否为存储故障下的 fail-open 放行结果
	Degraded bool
}

// Headers 返回标准限流响应头
//   - X-RateLimit-Limit: 配额上限
//   - X-RateLimit-Remaining: 剩余配额
//   - X-RateLimit-Reset: 配额重置时间（epoch-ms）
//   - Retry-After: 重试等待秒数（仅在被拒绝时，向上取整确保最小值为 1）
func (d *Decision) Headers() map[string]string {
	headers := map[string]string{
		"X-RateLimit-Limit":     strconv.Itoa(d.Limit),
		"X-RateLimit-Remaining": strconv.Itoa(d.Remaining),
		"X-RateLimit-Reset":     strconv.FormatInt(d.ResetAt.UnixMilli(), 10),
	}

	if d.Blocked && d.RetryAfter > 0 {
		// 向上取整，避免亚秒级等待被截断为 0 导致客户端立即重试
		retrySec := int64(math.Ceil(d.RetryAfter.Seconds()))
		headers["Retry-After"] = strconv.FormatInt(retrySec, 10)
	}

	return headers
}

// SetHeaders 将限流响应头写入 http.ResponseWriter
func (d *Decision) SetHeaders(w http.ResponseWriter) {
	if d.Limit <= 0 {
		return
	}
	for key, value := range d.Headers() {
		w.Header().Set(key, value)
	}
}

// QuotaInfo 配额查询结果（只读，不消耗配额）
type QuotaInfo struct {
	// Identity 被查询的身份
	Identity Identity
	// Limit 窗口配额
	Limit int
	// Remaining 剩余配额
	Remaining int
	// Blocked 是否处于封禁中
	Blocked bool
	// BlockedUntil 封禁截止时间（仅 Blocked=true 时有效）
	BlockedUntil time.Time
	// ResetAt 当前窗口计数的过期时间
	ResetAt time.Time
}
