package testutils

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMockLLMClient_Complete verifies pattern selection, the default response
// and call recording.
func TestMockLLMClient_Complete(t *testing.T) {
	m := NewMockLLMClient("mock-model", 4)
	m.AddResponse(MockResponse{Pattern: "rain", Response: "rain"})
	m.AddResponse(MockResponse{Pattern: "heavy rain", Response: "heavy"})

	tests := []struct {
		name   string
		prompt string
		want   string
	}{
		{"default", "dry spell ahead", `{"soil_moisture": [0.3, 0.3, 0.3, 0.3]}`},
		{"single pattern", "Light RAIN expected", "rain"},
		{"longest pattern wins", "heavy rain expected", "heavy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := m.Complete(context.Background(), tt.prompt, map[string]any{"temperature": 0.0})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.prompt, m.LastPrompt())
			assert.Equal(t, 0.0, m.LastOptions()["temperature"])
		})
	}
	assert.Equal(t, 3, m.CallCount())
}

func TestMockLLMClient_Errors(t *testing.T) {
	m := NewMockLLMClient("mock-model", 4)

	_, err := m.Complete(context.Background(), "", nil)
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = m.Complete(ctx, "prompt", nil)
	assert.ErrorIs(t, err, context.Canceled)

	sentinel := errors.New("provider down")
	m.SetError(sentinel)
	_, err = m.Complete(context.Background(), "prompt", nil)
	assert.ErrorIs(t, err, sentinel)
}

func TestMockLLMClient_EstimateTokens(t *testing.T) {
	m := NewMockLLMClient("mock-model", 1)

	n, err := m.EstimateTokens("")
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = m.EstimateTokens("abc")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = m.EstimateTokens("abcdefghijkl")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, "mock-model", m.GetModel())
}
