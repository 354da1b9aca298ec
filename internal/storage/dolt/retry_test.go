package dolt

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"driver bad connection", errors.New("driver: bad connection"), true},
		{"case insensitive", errors.New("Driver: Bad Connection"), true},
		{"invalid connection", errors.New("invalid connection"), true},
		{"broken pipe", errors.New("write: broken pipe"), true},
		{"connection reset", errors.New("read: connection reset by peer"), true},
		{"connection refused", errors.New("dial tcp: connection refused"), true},
		{"syntax error is not retryable", errors.New("syntax error near 'SELEKT'"), false},
		{"duplicate key is not retryable", errors.New("duplicate key"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, isRetryableError(tt.err))
		})
	}
}
