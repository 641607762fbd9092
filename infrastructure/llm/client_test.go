package llm

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingCollector captures metrics for assertions.
type recordingCollector struct {
	mu         sync.Mutex
	counters   map[string]float64
	histograms map[string]int
	labels     []map[string]string
}

func newRecordingCollector() *recordingCollector {
	return &recordingCollector{counters: map[string]float64{}, histograms: map[string]int{}}
}

func (r *recordingCollector) RecordLatency(string, time.Duration, map[string]string) {}
func (r *recordingCollector) RecordGauge(string, float64, map[string]string)        {}

func (r *recordingCollector) RecordCounter(metric string, value float64, labels map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := metric
	if tt, ok := labels["token_type"]; ok {
		key += "/" + tt
	}
	r.counters[key] += value
	r.labels = append(r.labels, labels)
}

func (r *recordingCollector) RecordHistogram(metric string, _ float64, labels map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.histograms[metric]++
	r.labels = append(r.labels, labels)
}

// orderMiddleware appends name to a shared trace on the way in.
func orderMiddleware(name string, trace *[]string) Middleware {
	return func(next CoreLLM) CoreLLM {
		return coreFunc{
			model: next.GetModel,
			do: func(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
				*trace = append(*trace, name)
				return next.DoRequest(ctx, prompt, opts)
			},
		}
	}
}

type coreFunc struct {
	model func() string
	do    func(context.Context, string, map[string]any) (string, int, int, error)
}

func (c coreFunc) DoRequest(ctx context.Context, p string, o map[string]any) (string, int, int, error) {
	return c.do(ctx, p, o)
}
func (c coreFunc) GetModel() string { return c.model() }

func TestNewClient_Validation(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		config   ClientConfig
		wantErr  string
	}{
		{"missing key", "openai", ClientConfig{Model: "gpt-4.1-mini"}, "API key"},
		{"missing model", "openai", ClientConfig{APIKey: "k"}, "model is required"},
		{"unknown provider", "mistral", ClientConfig{APIKey: "k", Model: "m"}, "unknown provider"},
		{"bad base url", "openai", ClientConfig{APIKey: "k", Model: "m", BaseURL: "ftp://x"}, "invalid BaseURL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewClient(tt.provider, tt.config)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewClient_BuiltinProviders(t *testing.T) {
	for _, provider := range []string{"openai", "anthropic", "google"} {
		t.Run(provider, func(t *testing.T) {
			c, err := NewClient(provider, ClientConfig{APIKey: "test-key", Model: "some-model", Timeout: 5 * time.Second})
			require.NoError(t, err)
			assert.Equal(t, "some-model", c.GetModel())
		})
	}
}

// TestNewClientFromCore_MiddlewareOrder checks the first middleware is the
// outermost.
func TestNewClientFromCore_MiddlewareOrder(t *testing.T) {
	var trace []string
	core := NewMockCoreLLM()
	c := NewClientFromCore(core, nil,
		orderMiddleware("first", &trace),
		orderMiddleware("second", &trace),
		orderMiddleware("third", &trace),
	)

	resp, in, out, err := c.CompleteWithUsage(context.Background(), "prompt", nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"first", "second", "third"}, trace)
	assert.True(t, strings.HasPrefix(resp, `{"soil_moisture": [0.3, 0.3`))
	assert.Equal(t, 10, in)
	assert.Equal(t, 20, out)
	assert.Equal(t, "test-model", c.GetModel())
}

func TestClient_EstimateTokens(t *testing.T) {
	c := NewClientFromCore(NewMockCoreLLM(), nil)

	for text, want := range map[string]int{"": 0, "a": 1, "abcd": 1, "abcde": 2} {
		got, err := c.EstimateTokens(text)
		require.NoError(t, err)
		assert.Equal(t, want, got, "text %q", text)
	}
}
