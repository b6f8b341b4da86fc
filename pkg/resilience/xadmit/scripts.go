package xadmit

import (
	"context"
	_ "embed"
	"fmt"
	"math"
	"sync"

	"github.com/redis/go-redis/v9"
)

// 判定脚本返回的 5 元组下标
const (
	scriptFieldBlocked = iota
	scriptFieldRetryAfterMs
	scriptFieldLimit
	scriptFieldRemaining
	scriptFieldResetAtMs
	scriptResultLen
)

//go:embed lua/decide.lua
var decideLuaSource string

// scripts 持有所有 Redis 脚本实例
type scripts struct {
	decide *redis.Script
}

var (
	globalScripts     *scripts
	globalScriptsOnce sync.Once
)

// getScripts 获取脚本实例（线程安全的单例）
func getScripts() *scripts {
	globalScriptsOnce.Do(func() {
		globalScripts = &scripts{
			decide: redis.NewScript(decideLuaSource),
		}
	})
	return globalScripts
}

// WarmupScripts 预热脚本，将脚本加载到 Redis 缓存中
//
// 建议在应用启动时调用，避免首次判定时的编译开销。
// 如果 Redis 不可用，返回错误但不影响后续使用（首次执行时会重试）。
func WarmupScripts(ctx context.Context, client redis.UniversalClient) error {
	if client == nil {
		return ErrNilClient
	}

	s := getScripts()
	if err := s.decide.Load(ctx, client).Err(); err != nil {
		return fmt.Errorf("load decide script: %w", err)
	}
	return nil
}

// validateScriptResult 校验 Lua 脚本返回值长度
func validateScriptResult(result []int64, wantLen int) error {
	if len(result) < wantLen {
		return fmt.Errorf("%w: got %d elements, want >= %d", errUnexpectedScriptResult, len(result), wantLen)
	}
	return nil
}

// convertScriptResult 将 Lua 脚本返回值安全转换为 []int64
// 提取为纯函数，便于直接测试各种输入类型
func convertScriptResult(val any) ([]int64, error) {
	// Redis Lua 脚本返回数组时，go-redis 会解析为 []any
	arr, ok := val.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: expected array, got %T", errUnexpectedScriptResult, val)
	}

	result := make([]int64, len(arr))
	for i, v := range arr {
		switch n := v.(type) {
		case int64:
			result[i] = n
		case int:
			result[i] = int64(n)
		case float64:
			if n != math.Trunc(n) {
				return nil, fmt.Errorf("%w: element %d is non-integer float64 %g", errUnexpectedScriptResult, i, n)
			}
			result[i] = int64(n)
		default:
			return nil, fmt.Errorf("%w: element %d is %T, expected number", errUnexpectedScriptResult, i, v)
		}
	}

	return result, nil
}
