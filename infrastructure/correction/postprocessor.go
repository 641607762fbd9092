package correction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ahrav/go-soilcast/internal/domain"
	"github.com/ahrav/go-soilcast/internal/ports"
)

// DefaultTimeout bounds a single client invocation.
const DefaultTimeout = 30 * time.Second

// DefaultExcerptStride is the spacing of trajectory states shown in prompts.
const DefaultExcerptStride = 6

// Correction is the outcome of one correction pass.
type Correction struct {
	// Prompt is the rendered prompt, empty only if rendering failed.
	Prompt string
	// Raw is the client's response rendered as text for diagnostics.
	Raw string
	// Parsed is the validated series or the failure.
	Parsed domain.ParsedCorrection
}

// Option configures a PostProcessor.
type Option func(*PostProcessor)

// WithTimeout sets the bound on a single client invocation.
func WithTimeout(d time.Duration) Option {
	return func(p *PostProcessor) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithExcerptStride sets the spacing of trajectory states shown in the prompt.
func WithExcerptStride(stride int) Option {
	return func(p *PostProcessor) {
		if stride > 0 {
			p.stride = stride
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *PostProcessor) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithTracer sets the tracer used for the correction span.
func WithTracer(t trace.Tracer) Option {
	return func(p *PostProcessor) {
		if t != nil {
			p.tracer = t
		}
	}
}

// PostProcessor composes prompt building, a single client invocation and
// response parsing into one correction step.
type PostProcessor struct {
	builder *PromptBuilder
	parser  *Parser
	client  ports.CorrectionClient
	timeout time.Duration
	stride  int
	logger  *zap.Logger
	tracer  trace.Tracer
}

// NewPostProcessor wires the builder, parser and client together.
func NewPostProcessor(builder *PromptBuilder, parser *Parser, client ports.CorrectionClient, opts ...Option) (*PostProcessor, error) {
	if builder == nil {
		return nil, fmt.Errorf("%w: prompt builder is required", domain.ErrInvalidConfiguration)
	}
	if parser == nil {
		return nil, fmt.Errorf("%w: parser is required", domain.ErrInvalidConfiguration)
	}
	if client == nil {
		client = ports.NoCorrection
	}
	p := &PostProcessor{
		builder: builder,
		parser:  parser,
		client:  client,
		timeout: DefaultTimeout,
		stride:  DefaultExcerptStride,
		logger:  zap.NewNop(),
		tracer:  otel.Tracer("soilcast.correction"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Enabled reports whether a real correction client is configured.
func (p *PostProcessor) Enabled() bool { return !ports.IsNoCorrection(p.client) }

// Model returns the model name of the client when it exposes one.
func (p *PostProcessor) Model() string {
	if n, ok := p.client.(ports.ModelNamer); ok {
		return n.GetModel()
	}
	return ""
}

// Correct builds the prompt, invokes the client exactly once and parses the
// response. Every failure, including client errors, panics, timeouts and
// cancellation, is reported in Parsed.Failure; Correct itself never fails.
func (p *PostProcessor) Correct(ctx context.Context, initial domain.AtmosphericState, traj domain.Trajectory, summary domain.FeatureSummary) Correction {
	ctx, span := p.tracer.Start(ctx, "correction.correct",
		trace.WithAttributes(attribute.Int("horizon", len(traj))))
	defer span.End()

	horizon := len(traj)
	prompt, err := p.Prompt(initial, traj, summary)
	if err != nil {
		return p.finish(span, Correction{Parsed: domain.ParsedCorrection{Failure: domain.NewCorrectionError(
			domain.CorrectionStageInvoke, domain.ReasonPromptError, "", err)}})
	}

	raw, ierr := p.invoke(ctx, prompt)
	if ierr != nil {
		return p.finish(span, Correction{Prompt: prompt, Parsed: domain.ParsedCorrection{Failure: ierr}})
	}

	return p.finish(span, Correction{
		Prompt: prompt,
		Raw:    renderRaw(raw),
		Parsed: p.parser.Parse(raw, horizon),
	})
}

// Prompt renders the correction prompt for traj without invoking the client.
func (p *PostProcessor) Prompt(initial domain.AtmosphericState, traj domain.Trajectory, summary domain.FeatureSummary) (string, error) {
	return p.builder.Build(initial, summary, traj.Excerpt(p.stride), len(traj))
}

func (p *PostProcessor) finish(span trace.Span, c Correction) Correction {
	if f := c.Parsed.Failure; f != nil {
		span.SetStatus(codes.Error, f.Reason)
		span.SetAttributes(
			attribute.String("failure.stage", f.Stage),
			attribute.String("failure.reason", f.Reason),
		)
		p.logger.Debug("correction rejected",
			zap.String("stage", f.Stage),
			zap.String("reason", f.Reason),
			zap.Error(f))
		return c
	}
	span.SetAttributes(
		attribute.String("parse.strategy", c.Parsed.Strategy),
		attribute.Int("parse.clamped", c.Parsed.Clamped),
	)
	return c
}

type invokeResult struct {
	raw any
	err error
}

// invoke runs the client in its own goroutine so a client that ignores ctx
// cannot hold the caller past the timeout. The result channel is buffered so
// a late client never blocks on send.
func (p *PostProcessor) invoke(ctx context.Context, prompt string) (any, *domain.CorrectionError) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	done := make(chan invokeResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- invokeResult{err: &clientPanic{value: r}}
			}
		}()
		raw, err := p.client.Invoke(ctx, prompt)
		done <- invokeResult{raw: raw, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return nil, classifyInvokeError(res.err)
		}
		return res.raw, nil
	case <-ctx.Done():
		return nil, classifyInvokeError(ctx.Err())
	}
}

type clientPanic struct{ value any }

func (e *clientPanic) Error() string { return fmt.Sprintf("client panicked: %v", e.value) }

func classifyInvokeError(err error) *domain.CorrectionError {
	var cp *clientPanic
	switch {
	case errors.As(err, &cp):
		return domain.NewCorrectionError(domain.CorrectionStageInvoke, domain.ReasonClientPanic, "", err)
	case errors.Is(err, context.DeadlineExceeded):
		return domain.NewCorrectionError(domain.CorrectionStageInvoke, domain.ReasonTimeout, "", err)
	case errors.Is(err, context.Canceled):
		return domain.NewCorrectionError(domain.CorrectionStageInvoke, domain.ReasonCanceled, "", err)
	case errors.Is(err, ports.ErrNoCorrectionClient):
		return domain.NewCorrectionError(domain.CorrectionStageInvoke, domain.ReasonNoClient, "", err)
	default:
		return domain.NewCorrectionError(domain.CorrectionStageInvoke, domain.ReasonClientError, "", err)
	}
}

// renderRaw converts a response of any shape to text for diagnostics.
func renderRaw(raw any) (out string) {
	defer func() {
		if r := recover(); r != nil {
			out = fmt.Sprintf("<unrenderable %T>", raw)
		}
	}()
	switch v := raw.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case json.RawMessage:
		return string(v)
	}
	if b, err := json.Marshal(raw); err == nil {
		return string(b)
	}
	return fmt.Sprintf("<unrenderable %T>", raw)
}
