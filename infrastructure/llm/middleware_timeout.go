package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ahrav/go-soilcast/internal/ports"
)

// timeoutLLM bounds a single attempt when placed inside RetryMiddleware, or
// the whole retry loop when placed outside it.
type timeoutLLM struct {
	next    CoreLLM
	timeout time.Duration
}

// TimeoutMiddleware cancels requests that run longer than timeout. An attempt
// that hits this deadline while the caller's context is still live reports
// ports.ErrTimeout, which the retry middleware treats as transient.
func TimeoutMiddleware(timeout time.Duration) Middleware {
	return func(next CoreLLM) CoreLLM {
		return &timeoutLLM{next: next, timeout: timeout}
	}
}

func (t *timeoutLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	response, tokensIn, tokensOut, err := t.next.DoRequest(attemptCtx, prompt, opts)
	if err != nil && ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("attempt exceeded %s: %w", t.timeout, errors.Join(ports.ErrTimeout, err))
	}
	return response, tokensIn, tokensOut, err
}

func (t *timeoutLLM) GetModel() string { return t.next.GetModel() }
