package ports

import (
	"errors"
	"fmt"

	"github.com/ahrav/go-soilcast/internal/domain"
)

// Transport-level failures reported by correction clients. Provider adapters
// map their own status codes onto these so the retry and metrics middleware
// can classify failures without knowing the provider.
var (
	ErrRateLimited        = errors.New("rate limited")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timed out")

	// ErrNoCorrectionClient is returned by the no-op correction client.
	ErrNoCorrectionClient = errors.New("no correction client configured")
)

// LLMError records which model failed a correction call and why.
type LLMError struct {
	Model     string
	Operation string
	Err       error
}

func (e *LLMError) Error() string {
	return fmt.Sprintf("llm %s (model %s): %v", e.Operation, e.Model, e.Err)
}

func (e *LLMError) Unwrap() error { return e.Err }

// IsRetryable reports whether the failure is transient.
func (e *LLMError) IsRetryable() bool {
	return errors.Is(e.Err, ErrRateLimited) ||
		errors.Is(e.Err, ErrServiceUnavailable) ||
		errors.Is(e.Err, ErrTimeout)
}

// NewLLMError wraps err with the model and operation that produced it.
func NewLLMError(model, operation string, err error) *LLMError {
	return &LLMError{Model: model, Operation: operation, Err: err}
}

// ConfigError ties a configuration failure to the key that caused it. It
// matches domain.ErrInvalidConfiguration under errors.Is.
type ConfigError struct {
	Key string
	Err error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s: %v", domain.ErrInvalidConfiguration, e.Key, e.Err)
}

func (e *ConfigError) Unwrap() []error { return []error{domain.ErrInvalidConfiguration, e.Err} }

// NewConfigError wraps err with the offending configuration key.
func NewConfigError(key string, err error) *ConfigError {
	return &ConfigError{Key: key, Err: err}
}
