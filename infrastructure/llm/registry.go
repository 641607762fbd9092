package llm

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// ProviderConfig describes how to reach one provider.
type ProviderConfig struct {
	// Type selects the registered ProviderFactory.
	Type string
	// EnvVar names the environment variable holding the API key.
	EnvVar string
	// DefaultModel is used when a spec names only the provider.
	DefaultModel string
	// BaseURL overrides the provider endpoint.
	BaseURL string
}

// DefaultProviders lists the built-in providers and their API key variables.
var DefaultProviders = map[string]ProviderConfig{
	"openai":    {Type: "openai", EnvVar: "OPENAI_API_KEY", DefaultModel: OpenAIDefaultModel},
	"anthropic": {Type: "anthropic", EnvVar: "ANTHROPIC_API_KEY", DefaultModel: AnthropicDefaultModel},
	"google":    {Type: "google", EnvVar: "GOOGLE_API_KEY", DefaultModel: GoogleDefaultModel},
}

// RegistryConfig configures a Registry.
type RegistryConfig struct {
	// Providers defaults to DefaultProviders.
	Providers map[string]ProviderConfig
	// DefaultTimeout is applied to every client's HTTP transport.
	DefaultTimeout time.Duration
	// DefaultMiddleware wraps every client the registry creates.
	DefaultMiddleware []Middleware
	// LookupEnv defaults to os.LookupEnv.
	LookupEnv func(string) (string, bool)
}

// Registry lazily creates and caches one client per provider/model pair,
// reading API keys from the environment.
type Registry struct {
	providers  map[string]ProviderConfig
	timeout    time.Duration
	middleware []Middleware
	lookupEnv  func(string) (string, bool)

	mu      sync.RWMutex
	clients map[string]*Client
}

// NewRegistry creates a Registry.
func NewRegistry(config RegistryConfig) *Registry {
	providers := config.Providers
	if providers == nil {
		providers = DefaultProviders
	}
	lookup := config.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}
	return &Registry{
		providers:  providers,
		timeout:    config.DefaultTimeout,
		middleware: append([]Middleware(nil), config.DefaultMiddleware...),
		lookupEnv:  lookup,
		clients:    make(map[string]*Client),
	}
}

// GetClient returns the client for spec, which is either "provider" or
// "provider/model".
func (r *Registry) GetClient(spec string) (*Client, error) {
	if spec == "" {
		return nil, fmt.Errorf("provider specification cannot be empty")
	}
	provider, model := r.parseSpec(spec)
	key := provider + "/" + model

	r.mu.RLock()
	client, ok := r.clients[key]
	r.mu.RUnlock()
	if ok {
		return client, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if client, ok := r.clients[key]; ok {
		return client, nil
	}
	client, err := r.createClient(provider, model)
	if err != nil {
		return nil, err
	}
	r.clients[key] = client
	return client, nil
}

// Providers returns the configured provider names in sorted order.
func (r *Registry) Providers() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) parseSpec(spec string) (provider, model string) {
	provider, model, _ = strings.Cut(spec, "/")
	if model == "" {
		model = r.providers[provider].DefaultModel
	}
	return provider, model
}

func (r *Registry) createClient(provider, model string) (*Client, error) {
	pc, ok := r.providers[provider]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q (known: %s)", provider, strings.Join(r.Providers(), ", "))
	}
	apiKey, _ := r.lookupEnv(pc.EnvVar)
	if apiKey == "" {
		return nil, fmt.Errorf("%s environment variable not set for provider %q", pc.EnvVar, provider)
	}
	return NewClient(pc.Type, ClientConfig{
		APIKey:     apiKey,
		Model:      model,
		BaseURL:    pc.BaseURL,
		Timeout:    r.timeout,
		Middleware: r.middleware,
	})
}
