package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// ErrCircuitOpen is returned while the breaker rejects requests.
var ErrCircuitOpen = errors.New("circuit breaker is open")

type completion struct {
	text      string
	tokensIn  int
	tokensOut int
}

// breakerLLM fails fast after repeated provider failures so that a forecast
// falls back to the deterministic series instead of waiting on a dead
// endpoint.
type breakerLLM struct {
	next    CoreLLM
	breaker *gobreaker.CircuitBreaker[completion]
}

// CircuitBreakerMiddleware opens after maxFailures consecutive failures and
// lets a single probe through after cooldown. Caller cancellation does not
// count as a failure. State changes are logged when logger is non-nil.
func CircuitBreakerMiddleware(name string, maxFailures int, cooldown time.Duration, logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	threshold := uint32(max(maxFailures, 1))

	cb := gobreaker.NewCircuitBreaker[completion](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsExcluded: func(err error) bool {
			return errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("llm circuit breaker state changed",
				zap.String("breaker", name),
				zap.Stringer("from", from),
				zap.Stringer("to", to))
		},
	})

	return func(next CoreLLM) CoreLLM {
		return &breakerLLM{next: next, breaker: cb}
	}
}

// DoRequest implements CoreLLM.
func (b *breakerLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	res, err := b.breaker.Execute(func() (completion, error) {
		text, in, out, err := b.next.DoRequest(ctx, prompt, opts)
		return completion{text: text, tokensIn: in, tokensOut: out}, err
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "", 0, 0, fmt.Errorf("%w: %s", ErrCircuitOpen, b.breaker.Name())
	}
	if err != nil {
		return "", 0, 0, err
	}
	return res.text, res.tokensIn, res.tokensOut, nil
}

// GetModel implements CoreLLM.
func (b *breakerLLM) GetModel() string { return b.next.GetModel() }
