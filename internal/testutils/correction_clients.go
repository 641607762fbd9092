package testutils

import (
	"context"
	"sync"
	"sync/atomic"
)

// ScriptedClient is a correction client that returns a fixed response or
// error and records every prompt it receives.
type ScriptedClient struct {
	Response any
	Err      error
	Model    string

	calls   atomic.Int32
	mu      sync.Mutex
	prompts []string
}

// Invoke implements ports.CorrectionClient.
func (c *ScriptedClient) Invoke(ctx context.Context, prompt string) (any, error) {
	c.calls.Add(1)
	c.mu.Lock()
	c.prompts = append(c.prompts, prompt)
	c.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.Response, c.Err
}

// GetModel reports the configured model name.
func (c *ScriptedClient) GetModel() string { return c.Model }

// Calls returns the number of invocations.
func (c *ScriptedClient) Calls() int { return int(c.calls.Load()) }

// Prompts returns a copy of the prompts received.
func (c *ScriptedClient) Prompts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.prompts...)
}

// BlockingClient waits until its context ends and returns the context error.
// Started is closed on the first invocation.
type BlockingClient struct {
	Started chan struct{}
	once    sync.Once
}

// NewBlockingClient returns a BlockingClient.
func NewBlockingClient() *BlockingClient {
	return &BlockingClient{Started: make(chan struct{})}
}

// Invoke implements ports.CorrectionClient.
func (c *BlockingClient) Invoke(ctx context.Context, _ string) (any, error) {
	c.once.Do(func() { close(c.Started) })
	<-ctx.Done()
	return nil, ctx.Err()
}

// PanickingClient panics with Value on every invocation.
type PanickingClient struct {
	Value any
}

// Invoke implements ports.CorrectionClient.
func (c PanickingClient) Invoke(context.Context, string) (any, error) {
	panic(c.Value)
}

// EchoClient answers every prompt with Values rendered under Key, the way a
// well-behaved model would.
type EchoClient struct {
	Key    string
	Values []float64
}

// Invoke implements ports.CorrectionClient.
func (c EchoClient) Invoke(ctx context.Context, _ string) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key := c.Key
	if key == "" {
		key = "soil_moisture"
	}
	return SeriesJSON(key, c.Values), nil
}
