package xadmit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchSkipPattern(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		path    string
		want    bool
	}{
		{"glob extension match", "*.css", "/static/app.css", true},
		{"glob extension mismatch", "*.css", "/static/app.js", false},
		{"glob matches basename only", "*.css", "/app.css/data", false},
		{"dot extension suffix", ".ico", "/favicon.ico", true},
		{"dot extension mismatch", ".ico", "/favicon.png", false},
		{"path prefix", "/health", "/health", true},
		{"path prefix with suffix", "/health", "/health/live", true},
		{"path prefix mismatch", "/health", "/api/health", false},
		{"empty pattern never matches", "", "/anything", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, matchSkipPattern(tt.pattern, tt.path))
		})
	}
}

func TestShouldSkip(t *testing.T) {
	patterns := []string{"/health", "*.css", ".ico"}

	assert.True(t, shouldSkip(patterns, "/health/ready"))
	assert.True(t, shouldSkip(patterns, "/assets/site.css"))
	assert.True(t, shouldSkip(patterns, "/favicon.ico"))
	assert.False(t, shouldSkip(patterns, "/api/accounts"))
	assert.False(t, shouldSkip(nil, "/health"))
}
