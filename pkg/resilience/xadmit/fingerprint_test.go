package xadmit

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrappingHash32(t *testing.T) {
	// 固定测试向量：回绕行为是指纹值的一部分，实现变更必须在此暴露
	tests := []struct {
		name  string
		input string
		want  int32
	}{
		{"empty", "", 0},
		{"single byte", "a", 97},
		{"two bytes", "ab", 3105},
		{"positive hash", "hello world", 1794106052},
		{"wrapped negative hash", "The quick brown fox jumps over the lazy dog", -609428141},
		{"placeholder tuple", "unknown|unknown|unknown|unknown", 1424071988},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, wrappingHash32(tt.input))
		})
	}
}

func TestFingerprint(t *testing.T) {
	t.Run("deterministic for same headers", func(t *testing.T) {
		h := http.Header{}
		h.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36")
		h.Set("Accept-Language", "en-US,en;q=0.9")
		h.Set("Accept-Encoding", "gzip, deflate, br")
		h.Set("Sec-CH-UA-Platform", `"Linux"`)

		first := fingerprint(h)
		for i := 0; i < 10; i++ {
			assert.Equal(t, first, fingerprint(h))
		}
	})

	t.Run("known tuple vector", func(t *testing.T) {
		h := http.Header{}
		h.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36")
		h.Set("Accept-Language", "en-US,en;q=0.9")
		h.Set("Accept-Encoding", "gzip, deflate, br")
		h.Set("Sec-CH-UA-Platform", `"Linux"`)

		// hash = -779114806，取绝对值后 base-36 编码
		assert.Equal(t, "cvv4ty", fingerprint(h))
	})

	t.Run("missing headers use placeholder", func(t *testing.T) {
		// 全缺失等价于 "unknown|unknown|unknown|unknown"
		assert.Equal(t, "njusz8", fingerprint(http.Header{}))
	})

	t.Run("different user agents differ", func(t *testing.T) {
		h1 := http.Header{}
		h1.Set("User-Agent", "curl/8.5.0")
		h2 := http.Header{}
		h2.Set("User-Agent", "wget/1.21")

		assert.NotEqual(t, fingerprint(h1), fingerprint(h2))
	})

	t.Run("length and charset", func(t *testing.T) {
		h := http.Header{}
		h.Set("User-Agent", strings.Repeat("x", 4096))

		fp := fingerprint(h)
		assert.LessOrEqual(t, len(fp), fingerprintLen)
		assert.NotEmpty(t, fp)
		for _, c := range fp {
			isBase36 := (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z')
			assert.True(t, isBase36, "unexpected fingerprint char %q", c)
		}
	})
}
