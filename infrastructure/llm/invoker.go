package llm

import (
	"context"

	"github.com/ahrav/go-soilcast/internal/ports"
)

// DefaultSystemPrompt frames the correction request for chat models.
const DefaultSystemPrompt = "You correct hourly soil moisture forecasts. Answer with JSON only."

// InvokerOptions tunes the requests a CorrectionInvoker sends.
type InvokerOptions struct {
	// Temperature defaults to 0 for reproducible answers.
	Temperature *float64
	// MaxTokens defaults to DefaultMaxTokens.
	MaxTokens int
	// System defaults to DefaultSystemPrompt.
	System string
}

// CorrectionInvoker adapts a ports.LLMClient to ports.CorrectionClient. It
// asks for a JSON answer and returns the completion text untouched; parsing
// happens downstream.
type CorrectionInvoker struct {
	client  ports.LLMClient
	options map[string]any
}

// NewCorrectionInvoker wraps client.
func NewCorrectionInvoker(client ports.LLMClient, opts InvokerOptions) *CorrectionInvoker {
	temp := 0.0
	if opts.Temperature != nil {
		temp = *opts.Temperature
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	system := opts.System
	if system == "" {
		system = DefaultSystemPrompt
	}
	return &CorrectionInvoker{
		client: client,
		options: map[string]any{
			"temperature":     temp,
			"max_tokens":      maxTokens,
			"system":          system,
			"response_format": "json",
		},
	}
}

// Invoke implements ports.CorrectionClient.
func (c *CorrectionInvoker) Invoke(ctx context.Context, prompt string) (any, error) {
	opts := make(map[string]any, len(c.options))
	for k, v := range c.options {
		opts[k] = v
	}
	text, err := c.client.Complete(ctx, prompt, opts)
	if err != nil {
		return nil, ports.NewLLMError(c.client.GetModel(), "correct", err)
	}
	return text, nil
}

// GetModel reports the wrapped client's model.
func (c *CorrectionInvoker) GetModel() string { return c.client.GetModel() }

var (
	_ ports.CorrectionClient = (*CorrectionInvoker)(nil)
	_ ports.ModelNamer       = (*CorrectionInvoker)(nil)
)
