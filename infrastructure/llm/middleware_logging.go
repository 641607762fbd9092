package llm

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type loggedLLM struct {
	next   CoreLLM
	logger *zap.Logger
}

// LoggingMiddleware logs every request at debug and failures at warn. Prompts
// and responses are logged by size only.
func LoggingMiddleware(logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next CoreLLM) CoreLLM {
		return &loggedLLM{next: next, logger: logger}
	}
}

// DoRequest implements CoreLLM.
func (l *loggedLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	start := time.Now()
	response, tokensIn, tokensOut, err := l.next.DoRequest(ctx, prompt, opts)

	fields := []zap.Field{
		zap.String("model", l.next.GetModel()),
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("prompt_bytes", len(prompt)),
	}
	if err != nil {
		l.logger.Warn("llm request failed", append(fields, zap.Error(err))...)
		return response, tokensIn, tokensOut, err
	}
	l.logger.Debug("llm request completed", append(fields,
		zap.Int("response_bytes", len(response)),
		zap.Int("tokens_in", tokensIn),
		zap.Int("tokens_out", tokensOut))...)
	return response, tokensIn, tokensOut, nil
}

// GetModel implements CoreLLM.
func (l *loggedLLM) GetModel() string { return l.next.GetModel() }
