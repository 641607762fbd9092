package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ahrav/go-soilcast/internal/ports"
)

func TestErrorClassifier_ClassifyHTTPError(t *testing.T) {
	ec := &ErrorClassifier{Provider: "openai"}

	tests := []struct {
		status    int
		wantType  ErrorType
		retryable bool
	}{
		{401, ErrorTypeAuthentication, false},
		{403, ErrorTypeAuthentication, false},
		{429, ErrorTypeRateLimit, true},
		{400, ErrorTypeBadRequest, false},
		{404, ErrorTypeNotFound, false},
		{408, ErrorTypeTimeout, true},
		{422, ErrorTypeBadRequest, false},
		{500, ErrorTypeServerError, true},
		{503, ErrorTypeServerError, true},
		{504, ErrorTypeTimeout, true},
		{200, ErrorTypeUnknown, false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			err := ec.ClassifyHTTPError(tt.status, "msg", errors.New("raw"))
			assert.Equal(t, tt.wantType, err.Type)
			assert.Equal(t, tt.retryable, err.IsRetryable())
			assert.Equal(t, tt.status, err.StatusCode)
		})
	}
}

func TestErrorClassifier_ClassifyContextError(t *testing.T) {
	ec := &ErrorClassifier{Provider: "google"}

	deadline := ec.ClassifyContextError(context.DeadlineExceeded)
	assert.Equal(t, ErrorTypeTimeout, deadline.Type)
	assert.ErrorIs(t, deadline, context.DeadlineExceeded)
	assert.ErrorIs(t, deadline, ports.ErrTimeout)

	canceled := ec.ClassifyContextError(context.Canceled)
	assert.ErrorIs(t, canceled, context.Canceled)
}

func TestProviderError_MapsToPortSentinels(t *testing.T) {
	rl := NewProviderError("anthropic", ErrorTypeRateLimit, 429, "slow down", nil)
	assert.ErrorIs(t, rl, ports.ErrRateLimited)
	assert.NotErrorIs(t, rl, ports.ErrServiceUnavailable)

	wrapped := ports.NewLLMError("claude", "correct", NewProviderError("anthropic", ErrorTypeServerError, 503, "", nil))
	assert.ErrorIs(t, wrapped, ports.ErrServiceUnavailable)
	assert.True(t, wrapped.IsRetryable())
}

func TestProviderError_Error(t *testing.T) {
	err := NewProviderError("openai", ErrorTypeRateLimit, 429, "openai rate limit exceeded", errors.New("upstream"))
	assert.Equal(t, "openai error (HTTP 429) [rate_limit]: openai rate limit exceeded: upstream", err.Error())

	bare := NewProviderError("google", ErrorTypeUnknown, 0, "", nil)
	assert.Equal(t, "google error", bare.Error())
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, isRetryable(errors.New("connection reset")))
	assert.True(t, isRetryable(NewProviderError("x", ErrorTypeServerError, 500, "", nil)))
	assert.False(t, isRetryable(NewProviderError("x", ErrorTypeAuthentication, 401, "", nil)))
	assert.False(t, isRetryable(context.Canceled))
	assert.False(t, isRetryable(NewProviderError("x", ErrorTypeNetwork, 0, "", context.Canceled)))
}
