package xadmit

import (
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"testing"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
)

func TestIsStoreError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"sentinel", ErrStoreUnavailable, true},
		{"wrapped sentinel", fmt.Errorf("decide: %w", ErrStoreUnavailable), true},
		{"breaker open", gobreaker.ErrOpenState, true},
		{"breaker half-open throttle", gobreaker.ErrTooManyRequests, true},
		{"connection refused", syscall.ECONNREFUSED, true},
		{"connection reset", syscall.ECONNRESET, true},
		{"eof", io.EOF, true},
		{"op error", &net.OpError{Op: "dial", Err: errors.New("down")}, true},
		{"dns error", &net.DNSError{Name: "store.local"}, true},
		{"policy error", ErrInvalidPolicy, false},
		{"plain error", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsStoreError(tt.err))
		})
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, "none"},
		{"breaker open", gobreaker.ErrOpenState, "breaker_open"},
		{"bad script reply", fmt.Errorf("%w: weird", errUnexpectedScriptResult), "bad_reply"},
		{"network failure", &net.OpError{Op: "read", Err: errors.New("reset")}, "store_unreachable"},
		{"connection refused", syscall.ECONNREFUSED, "store_unreachable"},
		{"unknown", errors.New("boom"), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classifyError(tt.err))
		})
	}
}
