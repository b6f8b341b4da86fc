package xadmit

import (
	"net/http"
	"strings"
)

// Identity 限流主体标识
//
// 两种形态："ip:<addr>"（已校验的公网地址）或
// "fingerprint:<hash>"（请求头指纹，无可信 IP 时的兜底身份）。
// 无请求级状态，每次请求独立推导。
type Identity string

// 身份前缀常量
const (
	identityPrefixIP          = "ip:"
	identityPrefixFingerprint = "fingerprint:"
)

// 客户端 IP 头，按可信度从高到低排列
// CDN 注入的头优先于反向代理，再到标准转发头
var clientIPHeaders = []string{
	"CF-Connecting-IP",
	"X-Real-IP",
	"X-Forwarded-For",
	"X-Client-IP",
}

// 回环/本地地址字面量，出现在转发头里说明链路不可信
var loopbackLiterals = map[string]struct{}{
	"127.0.0.1":        {},
	"::1":              {},
	"localhost":        {},
	"::ffff:127.0.0.1": {},
}

// IsIP 判断身份是否来自已校验的 IP 地址
func (id Identity) IsIP() bool {
	return strings.HasPrefix(string(id), identityPrefixIP)
}

// IsFingerprint 判断身份是否来自请求头指纹
func (id Identity) IsFingerprint() bool {
	return strings.HasPrefix(string(id), identityPrefixFingerprint)
}

// String 返回身份的字符串表示
func (id Identity) String() string {
	return string(id)
}

// ResolveIdentity 从请求头推导稳定的限流身份
//
// 永不失败：找不到可信 IP 时回退到请求头指纹。
// 仅在 TrustProxyHeaders 开启时检查转发头；X-Forwarded-For
// 按逗号分隔后从左到右（最接近客户端优先）取第一个通过校验的候选。
func ResolveIdentity(h http.Header, policy Policy) Identity {
	if policy.TrustProxyHeaders {
		for _, header := range clientIPHeaders {
			if header == "X-Forwarded-For" {
				// 代理链可能追加多行 XFF，逐行按逗号展开后
				// 从左到右（最接近客户端优先）取第一个合法候选
				for _, line := range h.Values(header) {
					for cand := range strings.SplitSeq(line, ",") {
						if addr, ok := validateAddr(strings.TrimSpace(cand)); ok {
							return Identity(identityPrefixIP + addr)
						}
					}
				}
				continue
			}

			value := h.Get(header)
			if value == "" {
				continue
			}
			if addr, ok := validateAddr(strings.TrimSpace(value)); ok {
				return Identity(identityPrefixIP + addr)
			}
		}
	}

	return Identity(identityPrefixFingerprint + fingerprint(h))
}

// validateAddr 校验单个候选地址
// 通过则返回规整后的地址（去端口）。拒绝回环/本地字面量，
// 其余必须是严格的 IPv4 点分十进制或 8 组冒分十六进制 IPv6。
func validateAddr(cand string) (string, bool) {
	if cand == "" {
		return "", false
	}

	addr := stripPort(cand)
	if _, isLoopback := loopbackLiterals[strings.ToLower(addr)]; isLoopback {
		return "", false
	}

	if isStrictIPv4(addr) || isStrictIPv6(addr) {
		return addr, true
	}
	return "", false
}

// stripPort 去除端口后缀
// 支持 "1.2.3.4:80" 与 "[::1]:80" 两种形态；裸 IPv6 原样返回
func stripPort(s string) string {
	if strings.HasPrefix(s, "[") {
		if end := strings.IndexByte(s, ']'); end > 0 {
			return s[1:end]
		}
		return s
	}
	// 只有单个冒号且含点号时才可能是 v4:port
	if strings.Count(s, ":") == 1 && strings.Contains(s, ".") {
		return s[:strings.IndexByte(s, ':')]
	}
	return s
}

// isStrictIPv4 校验严格的点分十进制 IPv4
// 4 段、每段 1-3 位十进制且数值不超过 255
func isStrictIPv4(s string) bool {
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return false
	}
	for _, part := range parts {
		if len(part) == 0 || len(part) > 3 {
			return false
		}
		n := 0
		for i := 0; i < len(part); i++ {
			c := part[i]
			if c < '0' || c > '9' {
				return false
			}
			n = n*10 + int(c-'0')
		}
		if n > 255 {
			return false
		}
	}
	return true
}

// isStrictIPv6 校验严格的 8 组冒分十六进制 IPv6
// 不接受 "::" 压缩形态，与指纹回退配合宁缺毋滥
func isStrictIPv6(s string) bool {
	groups := strings.Split(s, ":")
	if len(groups) != 8 {
		return false
	}
	for _, g := range groups {
		if len(g) == 0 || len(g) > 4 {
			return false
		}
		for i := 0; i < len(g); i++ {
			c := g[i]
			isHex := (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
			if !isHex {
				return false
			}
		}
	}
	return true
}
