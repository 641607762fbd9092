package testutils

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ahrav/go-soilcast/internal/ports"
)

// MockLLMClient provides a deterministic implementation of ports.LLMClient
// for tests. Responses are selected by the longest registered pattern found
// in the prompt, case-insensitively; the empty pattern is the default.
type MockLLMClient struct {
	mu        sync.Mutex
	model     string
	responses map[string]string
	err       error

	lastPrompt  string
	lastOptions map[string]any
	calls       int
}

// MockResponse pairs a prompt pattern with the response it triggers.
type MockResponse struct {
	// Pattern is a case-insensitive substring of the prompt.
	Pattern string
	// Response is the completion text returned for matching prompts.
	Response string
}

// NewMockLLMClient creates a mock client whose default response is a valid
// flat series of horizon values.
func NewMockLLMClient(model string, horizon int) *MockLLMClient {
	m := &MockLLMClient{
		model:     model,
		responses: make(map[string]string),
	}
	m.AddResponse(MockResponse{Pattern: "", Response: SeriesJSON("soil_moisture", Uniform(horizon, 0.3))})
	return m
}

// AddResponse registers a response for prompts containing the pattern.
func (m *MockLLMClient) AddResponse(r MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[strings.ToLower(r.Pattern)] = r.Response
}

// SetError makes every subsequent Complete call fail with err.
func (m *MockLLMClient) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Complete implements ports.LLMClient.
func (m *MockLLMClient) Complete(ctx context.Context, prompt string, options map[string]any) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	m.lastPrompt = prompt
	m.lastOptions = options

	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	if m.err != nil {
		return "", m.err
	}
	if prompt == "" {
		return "", fmt.Errorf("prompt cannot be empty")
	}
	return m.findMatchingResponse(prompt), nil
}

func (m *MockLLMClient) findMatchingResponse(prompt string) string {
	promptLower := strings.ToLower(prompt)

	patterns := make([]string, 0, len(m.responses))
	for p := range m.responses {
		if p != "" {
			patterns = append(patterns, p)
		}
	}
	sort.Slice(patterns, func(i, j int) bool {
		if len(patterns[i]) != len(patterns[j]) {
			return len(patterns[i]) > len(patterns[j])
		}
		return patterns[i] < patterns[j]
	})

	for _, p := range patterns {
		if strings.Contains(promptLower, p) {
			return m.responses[p]
		}
	}
	return m.responses[""]
}

// EstimateTokens implements ports.LLMClient with a four-characters-per-token
// heuristic.
func (m *MockLLMClient) EstimateTokens(text string) (int, error) {
	if text == "" {
		return 0, nil
	}
	return max(len(text)/4, 1), nil
}

// GetModel implements ports.LLMClient.
func (m *MockLLMClient) GetModel() string { return m.model }

// LastPrompt returns the prompt of the most recent call.
func (m *MockLLMClient) LastPrompt() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastPrompt
}

// LastOptions returns the options of the most recent call.
func (m *MockLLMClient) LastOptions() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastOptions
}

// CallCount returns the number of Complete calls.
func (m *MockLLMClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

var _ ports.LLMClient = (*MockLLMClient)(nil)
