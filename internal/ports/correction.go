package ports

import "context"

// CorrectionClient is the capability the correction pass depends on: given a
// prompt, return a raw response of any shape. The response is untrusted and is
// validated by the caller.
//
// Implementations must honor ctx cancellation. A nil response with a nil error
// is treated as a malformed response, not as a client failure.
type CorrectionClient interface {
	Invoke(ctx context.Context, prompt string) (any, error)
}

// CorrectionClientFunc adapts an ordinary function to CorrectionClient.
type CorrectionClientFunc func(ctx context.Context, prompt string) (any, error)

// Invoke calls f(ctx, prompt).
func (f CorrectionClientFunc) Invoke(ctx context.Context, prompt string) (any, error) {
	return f(ctx, prompt)
}

// NoCorrection is the default client. Pipelines configured with it skip the
// correction stage and return the deterministic forecast.
var NoCorrection CorrectionClient = noCorrection{}

type noCorrection struct{}

func (noCorrection) Invoke(context.Context, string) (any, error) { return nil, ErrNoCorrectionClient }

// IsNoCorrection reports whether c is absent or the no-op client.
func IsNoCorrection(c CorrectionClient) bool {
	if c == nil {
		return true
	}
	_, ok := c.(noCorrection)
	return ok
}

// ModelNamer is implemented by correction clients that can report the model
// they call.
type ModelNamer interface {
	GetModel() string
}
