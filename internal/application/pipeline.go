// Package application orchestrates the forecast pipeline and loads its
// configuration.
package application

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ahrav/go-soilcast/infrastructure/correction"
	"github.com/ahrav/go-soilcast/infrastructure/llm"
	"github.com/ahrav/go-soilcast/internal/domain"
	"github.com/ahrav/go-soilcast/internal/features"
	"github.com/ahrav/go-soilcast/internal/ports"
	"github.com/ahrav/go-soilcast/internal/stepper"
)

// Forecast outcomes recorded in ports.MetricForecasts.
const (
	OutcomeCorrected = "corrected"
	OutcomeFallback  = "fallback"
	OutcomeFailed    = "failed"
)

// Pipeline turns an initial state and an hourly weather series into a
// Forecast: INIT, SIMULATE, SUMMARIZE, an optional CORRECT, MERGE and DONE.
// The deterministic stages are pure and the pipeline holds no mutable state,
// so Run is safe for concurrent use.
type Pipeline struct {
	model       *stepper.Model
	corrector   *correction.PostProcessor
	horizon     int
	hoursPerDay int

	logger  *zap.Logger
	metrics ports.MetricsCollector
	tracer  trace.Tracer
	now     func() time.Time
	newID   func() string
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithHorizon sets the number of hourly values produced.
func WithHorizon(hours int) PipelineOption {
	return func(p *Pipeline) {
		if hours > 0 {
			p.horizon = hours
		}
	}
}

// WithHoursPerDay sets the window used for daily averages.
func WithHoursPerDay(hours int) PipelineOption {
	return func(p *Pipeline) {
		if hours > 0 {
			p.hoursPerDay = hours
		}
	}
}

// WithPipelineLogger sets the logger.
func WithPipelineLogger(l *zap.Logger) PipelineOption {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m ports.MetricsCollector) PipelineOption {
	return func(p *Pipeline) {
		if m != nil {
			p.metrics = m
		}
	}
}

// WithPipelineTracer sets the tracer used for the run span.
func WithPipelineTracer(t trace.Tracer) PipelineOption {
	return func(p *Pipeline) {
		if t != nil {
			p.tracer = t
		}
	}
}

// WithClock sets the source of Forecast.GeneratedAt.
func WithClock(now func() time.Time) PipelineOption {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

// WithIDGenerator sets the source of Forecast.ID.
func WithIDGenerator(newID func() string) PipelineOption {
	return func(p *Pipeline) {
		if newID != nil {
			p.newID = newID
		}
	}
}

// NewPipeline creates a pipeline. A nil corrector is replaced by one wired to
// ports.NoCorrection, which renders the prompt for the metadata and always
// falls back.
func NewPipeline(model *stepper.Model, corrector *correction.PostProcessor, opts ...PipelineOption) (*Pipeline, error) {
	if model == nil {
		return nil, fmt.Errorf("%w: state model is required", domain.ErrInvalidConfiguration)
	}
	if corrector == nil {
		var err error
		corrector, err = correction.NewPostProcessor(correction.MustPromptBuilder(), correction.MustParser(), ports.NoCorrection)
		if err != nil {
			return nil, err
		}
	}

	p := &Pipeline{
		model:       model,
		corrector:   corrector,
		horizon:     domain.DefaultHorizonHours,
		hoursPerDay: 24,
		logger:      zap.NewNop(),
		metrics:     ports.NoopMetrics{},
		tracer:      otel.Tracer("soilcast.pipeline"),
		now:         time.Now,
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Observability groups the sinks shared by the pipeline and the LLM client.
type Observability struct {
	Logger  *zap.Logger
	Metrics ports.MetricsCollector
	Tracer  trace.Tracer
}

// NewPipelineFromConfig builds every component from cfg. When client is nil
// the client described by cfg.LLM is used, which is the no-op client unless
// a provider is configured.
func NewPipelineFromConfig(cfg Config, client ports.CorrectionClient, obs Observability) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if obs.Logger == nil {
		obs.Logger = zap.NewNop()
	}

	model, err := stepper.New(cfg.Stepper)
	if err != nil {
		return nil, err
	}
	parser, err := correction.NewParser(cfg.Parser)
	if err != nil {
		return nil, err
	}
	builder, err := correction.NewPromptBuilder(cfg.PromptTemplate)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidConfiguration, err)
	}

	if client == nil {
		client, err = cfg.LLM.NewInvoker(llm.Observability{
			Logger:  obs.Logger.Named("llm"),
			Metrics: obs.Metrics,
			Tracer:  obs.Tracer,
		})
		if err != nil {
			return nil, err
		}
	}

	corrector, err := correction.NewPostProcessor(builder, parser, client,
		correction.WithTimeout(cfg.CorrectionTimeout),
		correction.WithExcerptStride(cfg.ExcerptStride),
		correction.WithLogger(obs.Logger.Named("correction")),
		correction.WithTracer(obs.Tracer),
	)
	if err != nil {
		return nil, err
	}

	return NewPipeline(model, corrector,
		WithHorizon(cfg.HorizonHours),
		WithHoursPerDay(cfg.HoursPerDay),
		WithPipelineLogger(obs.Logger),
		WithMetrics(obs.Metrics),
		WithPipelineTracer(obs.Tracer),
	)
}

// Horizon returns the number of hourly values the pipeline produces.
func (p *Pipeline) Horizon() int { return p.horizon }

// run carries the per-request state of one pass through the stages.
type run struct {
	p      *Pipeline
	stages []domain.Stage
	logger *zap.Logger
	mark   time.Time
}

// enter records the transition into stage and the time spent in the
// previous one.
func (r *run) enter(stage domain.Stage) {
	now := time.Now()
	if n := len(r.stages); n > 0 {
		r.p.metrics.RecordLatency(ports.MetricStageLatency, now.Sub(r.mark),
			map[string]string{"stage": string(r.stages[n-1])})
	}
	r.mark = now
	r.stages = append(r.stages, stage)
	r.logger.Debug("entering stage", zap.String("stage", string(stage)))
}

// Run produces a forecast. Invalid input returns a *domain.InputValidationError
// and a failed simulation a *domain.SimulationError; both abort before the
// correction client is called. Every correction failure is recovered into a
// fallback forecast. Cancelling ctx aborts only a pending client call.
func (p *Pipeline) Run(ctx context.Context, initial domain.AtmosphericState, weather []domain.HourlyWeatherInput) (*domain.Forecast, error) {
	id := p.newID()
	ctx, span := p.tracer.Start(ctx, "forecast.run", trace.WithAttributes(
		attribute.String("forecast.id", id),
		attribute.Int("forecast.horizon", p.horizon),
		attribute.Int("weather.hours", len(weather)),
	))
	defer span.End()

	r := &run{p: p, logger: p.logger.With(zap.String("forecast_id", id))}

	r.enter(domain.StageInit)
	if err := p.validate(initial, weather); err != nil {
		return nil, p.fail(r, span, "invalid input", err)
	}

	r.enter(domain.StageSimulate)
	traj, err := p.model.Unroll(initial, weather, p.horizon)
	if err != nil {
		return nil, p.fail(r, span, "simulation failed", err)
	}
	deterministic := traj.SoilMoisture()

	r.enter(domain.StageSummarize)
	summary := features.Summarize(initial, traj, weather)

	meta := domain.ForecastMetadata{Features: summary, Model: p.corrector.Model()}

	var parsed domain.ParsedCorrection
	if p.corrector.Enabled() {
		r.enter(domain.StageCorrect)
		c := p.corrector.Correct(ctx, initial, traj, summary)
		meta.Prompt, meta.RawResponse, parsed = c.Prompt, c.Raw, c.Parsed
		if f := parsed.Failure; f != nil {
			p.metrics.RecordCounter(ports.MetricCorrectionFailures, 1,
				map[string]string{"stage": f.Stage, "reason": f.Reason})
		}
	} else {
		if meta.Prompt, err = p.corrector.Prompt(initial, traj, summary); err != nil {
			r.logger.Warn("failed to render prompt", zap.Error(err))
		}
		parsed.Failure = domain.NewCorrectionError(domain.CorrectionStageInvoke, domain.ReasonNoClient, "", ports.ErrNoCorrectionClient)
	}

	r.enter(domain.StageMerge)
	values := merge(&meta, deterministic, parsed)

	r.enter(domain.StageDone)
	meta.Stages = r.stages

	forecast := &domain.Forecast{
		ID:            id,
		IssuedAt:      initial.Timestamp,
		GeneratedAt:   p.now().UTC(),
		HorizonHours:  p.horizon,
		Values:        values,
		DailyAverages: domain.DailyAverages(values, p.hoursPerDay),
		Metadata:      meta,
	}
	p.record(r, span, forecast)
	return forecast, nil
}

// merge selects the corrected series when it is valid and the deterministic
// series otherwise, filling the fallback fields of meta.
func merge(meta *domain.ForecastMetadata, deterministic []float64, parsed domain.ParsedCorrection) []float64 {
	if parsed.Valid() && len(parsed.Values) == len(deterministic) {
		meta.ParseStrategy = parsed.Strategy
		meta.ClampedValues = parsed.Clamped
		return append([]float64(nil), parsed.Values...)
	}

	meta.Fallback = true
	if f := parsed.Failure; f != nil {
		meta.FailureReason = f.Reason
		meta.FailureStage = f.Stage
	} else {
		meta.FailureReason = domain.ReasonWrongLength
		meta.FailureStage = domain.CorrectionStageValidate
	}
	return append([]float64(nil), deterministic...)
}

func (p *Pipeline) validate(initial domain.AtmosphericState, weather []domain.HourlyWeatherInput) error {
	if err := domain.ValidateInitialState(initial); err != nil {
		return err
	}
	return domain.ValidateWeather(weather, p.horizon)
}

func (p *Pipeline) fail(r *run, span trace.Span, msg string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, msg)
	r.logger.Warn(msg, zap.Error(err), zap.Any("stages", r.stages))
	p.metrics.RecordCounter(ports.MetricForecasts, 1, map[string]string{
		"outcome": OutcomeFailed,
		"reason":  string(r.stages[len(r.stages)-1]),
	})
	return err
}

func (p *Pipeline) record(r *run, span trace.Span, f *domain.Forecast) {
	outcome, reason := OutcomeCorrected, f.Metadata.ParseStrategy
	if f.Metadata.Fallback {
		outcome, reason = OutcomeFallback, f.Metadata.FailureReason
	}
	p.metrics.RecordCounter(ports.MetricForecasts, 1, map[string]string{"outcome": outcome, "reason": reason})
	p.metrics.RecordGauge(ports.MetricForecastMeanMoisture, mean(f.Values), nil)

	span.SetAttributes(
		attribute.Bool("forecast.fallback", f.Metadata.Fallback),
		attribute.String("forecast.outcome", outcome),
	)
	if f.Metadata.Fallback {
		r.logger.Info("forecast fell back to deterministic series",
			zap.String("reason", f.Metadata.FailureReason),
			zap.String("stage", f.Metadata.FailureStage))
		return
	}
	r.logger.Debug("forecast corrected",
		zap.String("strategy", f.Metadata.ParseStrategy),
		zap.Int("clamped", f.Metadata.ClampedValues))
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// Request is one input of RunBatch.
type Request struct {
	InitialState domain.AtmosphericState    `json:"initial_state"`
	Weather      []domain.HourlyWeatherInput `json:"weather"`
}

// Result is one output of RunBatch. Exactly one field is set.
type Result struct {
	Forecast *domain.Forecast
	Err      error
}

// RunBatch runs every request with at most concurrency forecasts in flight
// and returns the results in request order. A failing request does not stop
// the others.
func (p *Pipeline) RunBatch(ctx context.Context, reqs []Request, concurrency int) []Result {
	results := make([]Result, len(reqs))

	var g errgroup.Group
	g.SetLimit(max(concurrency, 1))
	for i, req := range reqs {
		g.Go(func() error {
			f, err := p.Run(ctx, req.InitialState, req.Weather)
			results[i] = Result{Forecast: f, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}
