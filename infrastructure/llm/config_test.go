package llm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRequestOptions(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		o := ParseRequestOptions(nil, "base-model")
		assert.Equal(t, DefaultMaxTokens, o.MaxTokens)
		assert.Equal(t, "base-model", o.Model)
		assert.Nil(t, o.Temperature)
		assert.Nil(t, o.TopP)
		assert.False(t, o.JSONResponse)
	})

	t.Run("explicit values", func(t *testing.T) {
		o := ParseRequestOptions(map[string]any{
			"max_tokens":      256,
			"model":           "override",
			"temperature":     0.0,
			"top_p":           0.9,
			"system":          "be terse",
			"response_format": "json",
		}, "base-model")

		assert.Equal(t, 256, o.MaxTokens)
		assert.Equal(t, "override", o.Model)
		require.NotNil(t, o.Temperature)
		assert.Equal(t, 0.0, *o.Temperature)
		require.NotNil(t, o.TopP)
		assert.Equal(t, 0.9, *o.TopP)
		assert.Equal(t, "be terse", o.System)
		assert.True(t, o.JSONResponse)
	})

	t.Run("invalid values fall back", func(t *testing.T) {
		o := ParseRequestOptions(map[string]any{
			"max_tokens":  -5,
			"model":       "",
			"temperature": 3.5,
			"top_p":       "high",
		}, "base-model")

		assert.Equal(t, DefaultMaxTokens, o.MaxTokens)
		assert.Equal(t, "base-model", o.Model)
		assert.Nil(t, o.Temperature)
		assert.Nil(t, o.TopP)
	})

	t.Run("numeric conversions", func(t *testing.T) {
		o := ParseRequestOptions(map[string]any{"max_tokens": 512.0, "temperature": 1}, "m")
		assert.Equal(t, 512, o.MaxTokens)
		require.NotNil(t, o.Temperature)
		assert.Equal(t, 1.0, *o.Temperature)

		o = ParseRequestOptions(map[string]any{"max_tokens": 1.5}, "m")
		assert.Equal(t, DefaultMaxTokens, o.MaxTokens)
	})
}

func TestValidateBaseURL(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"", "", false},
		{"https://api.example.com/v1", "https://api.example.com/v1", false},
		{"http://localhost:8080", "http://localhost:8080", false},
		{"api.example.com", "", true},
		{"ftp://example.com", "", true},
		{"https://", "", true},
	}

	for _, tt := range tests {
		got, err := ValidateBaseURL(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestValidateTimeout(t *testing.T) {
	assert.Equal(t, time.Duration(0), ValidateTimeout(0))
	assert.Equal(t, time.Duration(0), ValidateTimeout(-time.Second))
	assert.Equal(t, MinTimeout, ValidateTimeout(time.Millisecond))
	assert.Equal(t, 30*time.Second, ValidateTimeout(30*time.Second))
	assert.Equal(t, MaxTimeout, ValidateTimeout(time.Hour))
}
