package xadmit

import (
	"path"
	"strings"
)

// matchSkipPattern 检查请求路径是否命中单个免限模式
//
// 三种形态：
//   - "*.css"：扩展名匹配（basename 通配）
//   - ".css"：扩展名后缀匹配
//   - "/static"：路径前缀匹配
func matchSkipPattern(pattern, reqPath string) bool {
	if pattern == "" {
		return false
	}

	if strings.HasPrefix(pattern, "*.") {
		matched, err := path.Match(pattern, path.Base(reqPath))
		return err == nil && matched
	}

	if strings.HasPrefix(pattern, ".") {
		return strings.HasSuffix(reqPath, pattern)
	}

	return strings.HasPrefix(reqPath, pattern)
}

// shouldSkip 检查路径是否命中任一免限模式，按配置顺序短路
func shouldSkip(patterns []string, reqPath string) bool {
	for _, pattern := range patterns {
		if matchSkipPattern(pattern, reqPath) {
			return true
		}
	}
	return false
}
