// Package llm provides the network clients behind the soil-moisture correction
// pass. Provider SDKs (OpenAI, Anthropic, Google) sit behind the CoreLLM
// interface and are wrapped by a middleware chain that adds timeouts, retries,
// rate limiting, circuit breaking, logging, metrics and tracing.
//
// Basic usage:
//
//	client, err := llm.NewClient("openai", llm.ClientConfig{
//	    APIKey: os.Getenv("OPENAI_API_KEY"),
//	    Model:  "gpt-4.1-mini",
//	    Middleware: []llm.Middleware{
//	        llm.RetryMiddleware(2, 500*time.Millisecond, 5*time.Second),
//	        llm.CircuitBreakerMiddleware("openai", 5, 30*time.Second, logger),
//	    },
//	})
//	invoker := llm.NewCorrectionInvoker(client, llm.InvokerOptions{})
//
// The invoker satisfies ports.CorrectionClient and is what the forecast
// pipeline is wired with.
package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/ahrav/go-soilcast/internal/ports"
)

// CoreLLM is the minimal contract a provider implements. Middleware wraps a
// CoreLLM and returns another one.
type CoreLLM interface {
	// DoRequest sends prompt to the provider and returns the response text
	// with input and output token counts.
	DoRequest(ctx context.Context, prompt string, opts map[string]any) (response string, tokensIn, tokensOut int, err error)

	// GetModel returns the configured model name.
	GetModel() string
}

// TokenEstimator approximates token counts before a request is sent.
type TokenEstimator interface {
	EstimateTokens(text string) int
}

// ClientConfig holds everything needed to build a Client.
type ClientConfig struct {
	// APIKey authenticates requests to the provider.
	APIKey string

	// Model names the provider model to call.
	Model string

	// BaseURL overrides the provider endpoint. Empty selects the default.
	BaseURL string

	// Timeout bounds the provider's HTTP client. Zero leaves the SDK default.
	Timeout time.Duration

	// TokenEstimator defaults to SimpleTokenEstimator.
	TokenEstimator TokenEstimator

	// Middleware is applied so that the first element is the outermost.
	Middleware []Middleware
}

// Middleware wraps a CoreLLM with a cross-cutting concern.
type Middleware func(CoreLLM) CoreLLM

// Client implements ports.LLMClient on top of a middleware-wrapped CoreLLM.
type Client struct {
	core      CoreLLM
	estimator TokenEstimator
}

// NewClient creates a client for providerType ("openai", "anthropic" or
// "google", or any type added with RegisterProviderFactory).
func NewClient(providerType string, config ClientConfig) (*Client, error) {
	if config.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}
	if config.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	factory, ok := providerFactories[providerType]
	if !ok {
		return nil, fmt.Errorf("unknown provider: %s", providerType)
	}

	core, err := factory(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider: %w", err)
	}

	return NewClientFromCore(core, config.TokenEstimator, config.Middleware...), nil
}

// NewClientFromCore wraps an existing CoreLLM, which is how tests and custom
// transports plug into the middleware chain.
func NewClientFromCore(core CoreLLM, estimator TokenEstimator, middleware ...Middleware) *Client {
	for i := len(middleware) - 1; i >= 0; i-- {
		core = middleware[i](core)
	}
	if estimator == nil {
		estimator = SimpleTokenEstimator{}
	}
	return &Client{core: core, estimator: estimator}
}

// Complete sends prompt and returns the response text.
func (c *Client) Complete(ctx context.Context, prompt string, options map[string]any) (string, error) {
	response, _, _, err := c.CompleteWithUsage(ctx, prompt, options)
	return response, err
}

// CompleteWithUsage sends prompt and returns the response with token usage.
func (c *Client) CompleteWithUsage(ctx context.Context, prompt string, options map[string]any) (string, int, int, error) {
	return c.core.DoRequest(ctx, prompt, options)
}

// EstimateTokens returns an approximate token count for text.
func (c *Client) EstimateTokens(text string) (int, error) {
	return c.estimator.EstimateTokens(text), nil
}

// GetModel returns the model of the underlying provider.
func (c *Client) GetModel() string { return c.core.GetModel() }

// SimpleTokenEstimator assumes roughly four characters per token.
type SimpleTokenEstimator struct{}

// EstimateTokens implements TokenEstimator.
func (SimpleTokenEstimator) EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}

// ProviderFactory builds a CoreLLM from configuration.
type ProviderFactory func(ClientConfig) (CoreLLM, error)

var providerFactories = map[string]ProviderFactory{}

// RegisterProviderFactory makes a provider type available to NewClient.
// It is meant to be called from init functions.
func RegisterProviderFactory(providerType string, factory ProviderFactory) {
	providerFactories[providerType] = factory
}

var _ ports.LLMClient = (*Client)(nil)
