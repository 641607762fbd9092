package llm

import (
	"context"
	"errors"
	"sync"
	"time"
)

// MockCoreLLM is a configurable CoreLLM for middleware and invoker tests.
type MockCoreLLM struct {
	mu sync.Mutex

	Response      string
	TokensIn      int
	TokensOut     int
	Error         error
	Model         string
	ResponseDelay time.Duration

	// FailUntilAttempt makes the first N calls fail with Error, or a generic
	// transient error when Error is nil.
	FailUntilAttempt int

	CallCount      int
	LastPrompt     string
	LastOpts       map[string]any
	CallTimestamps []time.Time
}

// errSimulated is the transient failure returned when no Error is set.
var errSimulated = errors.New("simulated failure")

// NewMockCoreLLM returns a mock that answers a flat 72-hour series.
func NewMockCoreLLM() *MockCoreLLM {
	return &MockCoreLLM{
		Response:  `{"soil_moisture": [` + repeatValue("0.3", 72) + `]}`,
		TokensIn:  10,
		TokensOut: 20,
		Model:     "test-model",
	}
}

func repeatValue(v string, n int) string {
	out := make([]byte, 0, n*(len(v)+2))
	for i := range n {
		if i > 0 {
			out = append(out, ", "...)
		}
		out = append(out, v...)
	}
	return string(out)
}

// DoRequest implements CoreLLM.
func (m *MockCoreLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	m.mu.Lock()
	m.CallCount++
	call := m.CallCount
	m.LastPrompt = prompt
	m.LastOpts = opts
	m.CallTimestamps = append(m.CallTimestamps, time.Now())
	delay, failUntil, mockErr := m.ResponseDelay, m.FailUntilAttempt, m.Error
	response, in, out := m.Response, m.TokensIn, m.TokensOut
	m.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return "", 0, 0, ctx.Err()
		}
	}

	if failUntil > 0 && call <= failUntil {
		if mockErr != nil {
			return "", 0, 0, mockErr
		}
		return "", 0, 0, errSimulated
	}
	if mockErr != nil && failUntil == 0 {
		return "", 0, 0, mockErr
	}
	return response, in, out, nil
}

// GetModel implements CoreLLM.
func (m *MockCoreLLM) GetModel() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Model
}

// GetCallCount returns the number of DoRequest calls.
func (m *MockCoreLLM) GetCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CallCount
}

// LastOptions returns the options of the most recent call.
func (m *MockCoreLLM) LastOptions() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.LastOpts
}
