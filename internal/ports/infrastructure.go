package ports

import (
	"context"
	"time"
)

// LLMClient defines the interface for interacting with Large Language
// Model providers.
// Implementations handle provider-specific details like authentication,
// request formatting, and response decoding.
type LLMClient interface {
	// Complete sends a completion request to the LLM provider.
	// It returns the generated text and any error encountered.
	//
	// The options map allows flexibility for different providers without
	// changing the interface. Common options include:
	//   - "temperature": float64
	//   - "max_tokens": int
	//   - "model": string (specific model version)
	//   - "response_format": "json" to request a JSON-only answer
	Complete(ctx context.Context, prompt string, options map[string]any) (string, error)

	// EstimateTokens calculates the approximate token count for a given text.
	EstimateTokens(text string) (int, error)

	// GetModel returns the model identifier being used by this client.
	GetModel() string
}

// MetricsCollector defines the interface for collecting operational metrics.
// Implementations should integrate with observability platforms like
// Prometheus or OpenTelemetry.
type MetricsCollector interface {
	// RecordLatency records the execution time of an operation.
	// The labels map provides additional context for the metric.
	RecordLatency(operation string, duration time.Duration, labels map[string]string)

	// RecordCounter increments a counter metric.
	RecordCounter(metric string, value float64, labels map[string]string)

	// RecordGauge sets the current value of a gauge metric.
	RecordGauge(metric string, value float64, labels map[string]string)

	// RecordHistogram records a value in a histogram.
	RecordHistogram(metric string, value float64, labels map[string]string)
}

// NoopMetrics discards every measurement.
type NoopMetrics struct{}

func (NoopMetrics) RecordLatency(string, time.Duration, map[string]string) {}
func (NoopMetrics) RecordCounter(string, float64, map[string]string)       {}
func (NoopMetrics) RecordGauge(string, float64, map[string]string)         {}
func (NoopMetrics) RecordHistogram(string, float64, map[string]string)     {}

// Metric names emitted by the forecast pipeline.
const (
	// MetricForecasts counts finished runs, labelled with outcome
	// ("corrected", "fallback" or "failed") and reason.
	MetricForecasts = "forecasts_total"
	// MetricStageLatency is passed to RecordLatency with a "stage" label.
	MetricStageLatency = "forecast_stage_duration_seconds"
	// MetricCorrectionFailures counts recovered correction failures by stage
	// and reason.
	MetricCorrectionFailures = "correction_failures_total"
	// MetricForecastMeanMoisture is the mean of the last forecast's values.
	MetricForecastMeanMoisture = "forecast_mean_soil_moisture"
	// MetricHTTPLatency is passed to RecordLatency with "route", "method" and
	// "status" labels.
	MetricHTTPLatency = "http_request_duration_seconds"
)
