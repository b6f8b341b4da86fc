package xadmit

import (
	"errors"
	"io"
	"net"
	"syscall"

	"github.com/sony/gobreaker/v2"
)

// 预定义错误，使用 errors.Is 进行比较
var (
	// ErrNilClient 表示传入的 Redis 客户端为 nil
	ErrNilClient = errors.New("xadmit: nil redis client")

	// ErrInvalidPolicy 表示策略配置无效
	ErrInvalidPolicy = errors.New("xadmit: invalid policy")

	// ErrInvalidIdentity 表示身份字符串为空或格式非法
	ErrInvalidIdentity = errors.New("xadmit: invalid identity")

	// ErrEngineClosed 表示引擎已关闭
	ErrEngineClosed = errors.New("xadmit: engine closed")

	// ErrStoreUnavailable 表示共享存储不可用
	ErrStoreUnavailable = errors.New("xadmit: store unavailable")

	// errUnexpectedScriptResult 表示 Lua 脚本返回了非预期结构
	errUnexpectedScriptResult = errors.New("xadmit: unexpected script result")
)

// storeRelatedErrors 包含所有归类为"存储不可用"的已知错误
var storeRelatedErrors = []error{
	ErrStoreUnavailable,
	gobreaker.ErrOpenState,
	gobreaker.ErrTooManyRequests,
	syscall.ECONNREFUSED,
	syscall.ECONNRESET,
	syscall.EPIPE,
	syscall.ETIMEDOUT,
	io.EOF,
	io.ErrUnexpectedEOF,
}

// IsStoreError 检查是否为存储不可用类错误
//
// 使用错误链检查而非字符串匹配。熔断器打开视同存储不可用，
// 二者都走同一个 fail-open 路径。
func IsStoreError(err error) bool {
	if err == nil {
		return false
	}

	for _, target := range storeRelatedErrors {
		if errors.Is(err, target) {
			return true
		}
	}

	return isNetworkError(err)
}

// isNetworkError 检查是否是网络相关错误
func isNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}

// classifyError 将错误归类为低基数标签，用于指标记录
// 避免 err.Error() 原始字符串导致指标基数膨胀
func classifyError(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests):
		return "breaker_open"
	case errors.Is(err, errUnexpectedScriptResult):
		return "bad_reply"
	case isNetworkError(err) || IsStoreError(err):
		return "store_unreachable"
	default:
		return "unknown"
	}
}
