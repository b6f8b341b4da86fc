package xadmit

import (
	"net/http"
	"strconv"
	"strings"
)

// 参与指纹的请求头，顺序固定，缺失项以占位符参与
var fingerprintHeaders = []string{
	"User-Agent",
	"Accept-Language",
	"Accept-Encoding",
	"Sec-CH-UA-Platform",
}

// fingerprintPlaceholder 缺失头的占位符
const fingerprintPlaceholder = "unknown"

// fingerprintLen 指纹编码后的截断长度
const fingerprintLen = 10

// fingerprint 计算请求头指纹
//
// 将指纹头的值以 "|" 拼接后做 32 位回绕哈希，取绝对值后
// base-36 编码并截断。相同头元组必然得到相同指纹——对于
// 无 IP / 匿名化的客户端，这是可得的最佳身份信号，碰撞是
// 有意接受的权衡而非缺陷。
func fingerprint(h http.Header) string {
	parts := make([]string, 0, len(fingerprintHeaders))
	for _, name := range fingerprintHeaders {
		value := h.Get(name)
		if value == "" {
			value = fingerprintPlaceholder
		}
		parts = append(parts, value)
	}

	hash := wrappingHash32(strings.Join(parts, "|"))

	// int32 最小值直接取反会溢出，先提升到 int64 再取绝对值
	v := int64(hash)
	if v < 0 {
		v = -v
	}

	encoded := strconv.FormatInt(v, 36)
	if len(encoded) > fingerprintLen {
		encoded = encoded[:fingerprintLen]
	}
	return encoded
}

// wrappingHash32 定宽 32 位回绕哈希
//
// h = h*31 + byte，每一步都按补码 int32 回绕（Go 的 int32
// 运算天然具备该语义）。回绕行为是指纹值的一部分，跨实现
// 必须逐比特一致，不可替换为更宽的整型。
func wrappingHash32(s string) int32 {
	var h int32
	for i := 0; i < len(s); i++ {
		h = h*31 + int32(s[i])
	}
	return h
}
