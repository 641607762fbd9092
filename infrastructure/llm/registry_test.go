package llm

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envFrom(vars map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func TestRegistry_GetClient(t *testing.T) {
	reg := NewRegistry(RegistryConfig{
		LookupEnv: envFrom(map[string]string{"OPENAI_API_KEY": "sk-test", "GOOGLE_API_KEY": "g-test"}),
	})

	t.Run("provider only uses default model", func(t *testing.T) {
		c, err := reg.GetClient("openai")
		require.NoError(t, err)
		assert.Equal(t, OpenAIDefaultModel, c.GetModel())
	})

	t.Run("provider and model", func(t *testing.T) {
		c, err := reg.GetClient("google/gemini-2.5-pro")
		require.NoError(t, err)
		assert.Equal(t, "gemini-2.5-pro", c.GetModel())
	})

	t.Run("clients are cached", func(t *testing.T) {
		a, err := reg.GetClient("openai/gpt-4.1")
		require.NoError(t, err)
		b, err := reg.GetClient("openai/gpt-4.1")
		require.NoError(t, err)
		assert.Same(t, a, b)
	})
}

func TestRegistry_GetClientErrors(t *testing.T) {
	reg := NewRegistry(RegistryConfig{LookupEnv: envFrom(nil)})

	tests := []struct {
		spec    string
		wantErr string
	}{
		{"", "cannot be empty"},
		{"mistral", `unknown provider "mistral" (known: anthropic, google, openai)`},
		{"anthropic", `ANTHROPIC_API_KEY environment variable not set for provider "anthropic"`},
	}
	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			_, err := reg.GetClient(tt.spec)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRegistry_CustomProviderConfig(t *testing.T) {
	reg := NewRegistry(RegistryConfig{
		Providers: map[string]ProviderConfig{
			"local": {Type: "openai", EnvVar: "LOCAL_KEY", DefaultModel: "llama", BaseURL: "http://localhost:11434/v1"},
		},
		LookupEnv: envFrom(map[string]string{"LOCAL_KEY": "x"}),
	})

	assert.Equal(t, []string{"local"}, reg.Providers())
	c, err := reg.GetClient("local")
	require.NoError(t, err)
	assert.Equal(t, "llama", c.GetModel())
}

func TestRegistry_ConcurrentGetClient(t *testing.T) {
	reg := NewRegistry(RegistryConfig{LookupEnv: envFrom(map[string]string{"OPENAI_API_KEY": "k"})})

	const workers = 16
	clients := make([]*Client, workers)
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := reg.GetClient("openai")
			assert.NoError(t, err)
			clients[i] = c
		}()
	}
	wg.Wait()

	for _, c := range clients[1:] {
		assert.Same(t, clients[0], c)
	}
}
