// Package middleware provides cross-cutting concerns for the forecast
// service.
package middleware

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ahrav/go-soilcast/infrastructure/llm"
	"github.com/ahrav/go-soilcast/internal/ports"
)

// PrometheusMetrics implements ports.MetricsCollector with Prometheus. It maps
// the metric names emitted by the pipeline and the LLM middleware onto typed
// vectors; anything else lands in a generic counter, gauge or histogram keyed
// by metric name.
type PrometheusMetrics struct {
	forecasts          *prometheus.CounterVec
	correctionFailures *prometheus.CounterVec
	stageLatency       *prometheus.HistogramVec
	meanMoisture       prometheus.Gauge
	httpLatency        *prometheus.HistogramVec

	llmRequests *prometheus.CounterVec
	llmTokens   *prometheus.CounterVec
	llmLatency  *prometheus.HistogramVec

	events *prometheus.CounterVec
	gauges *prometheus.GaugeVec
	values *prometheus.HistogramVec
}

// NewPrometheusMetrics registers the soilcast metrics with reg. A nil reg
// uses the default registerer.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &PrometheusMetrics{
		forecasts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "soilcast",
			Name:      ports.MetricForecasts,
			Help:      "Finished forecast runs by outcome and fallback reason.",
		}, []string{"outcome", "reason"}),
		correctionFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "soilcast",
			Name:      ports.MetricCorrectionFailures,
			Help:      "Recovered correction failures by stage and reason.",
		}, []string{"stage", "reason"}),
		stageLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "soilcast",
			Name:      ports.MetricStageLatency,
			Help:      "Time spent in each pipeline stage.",
			Buckets:   []float64{.0001, .001, .01, .1, .5, 1, 2.5, 5, 10, 30},
		}, []string{"stage"}),
		meanMoisture: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "soilcast",
			Name:      ports.MetricForecastMeanMoisture,
			Help:      "Mean volumetric soil moisture of the most recent forecast.",
		}),
		httpLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "soilcast",
			Name:      ports.MetricHTTPLatency,
			Help:      "HTTP request latency by route, method and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),

		llmRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "soilcast",
			Name:      llm.MetricLLMRequests,
			Help:      "LLM requests by provider, model and status.",
		}, []string{"provider", "model", "status"}),
		llmTokens: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "soilcast",
			Name:      llm.MetricLLMTokens,
			Help:      "Tokens reported by LLM providers.",
		}, []string{"provider", "model", "token_type"}),
		llmLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "soilcast",
			Name:      llm.MetricLLMLatency,
			Help:      "LLM request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider", "model", "status"}),

		events: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "soilcast",
			Name:      "events_total",
			Help:      "Counters without a dedicated metric.",
		}, []string{"metric"}),
		gauges: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "soilcast",
			Name:      "state",
			Help:      "Gauges without a dedicated metric.",
		}, []string{"metric"}),
		values: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "soilcast",
			Name:      "observations",
			Help:      "Histogram values without a dedicated metric.",
		}, []string{"metric"}),
	}
}

// RecordLatency records stage and HTTP timings; other operations go to the
// generic histogram.
func (pm *PrometheusMetrics) RecordLatency(operation string, duration time.Duration, labels map[string]string) {
	switch operation {
	case ports.MetricStageLatency:
		pm.stageLatency.WithLabelValues(label(labels, "stage")).Observe(duration.Seconds())
	case ports.MetricHTTPLatency:
		pm.httpLatency.WithLabelValues(label(labels, "route"), label(labels, "method"), label(labels, "status")).
			Observe(duration.Seconds())
	default:
		pm.values.WithLabelValues(operation).Observe(duration.Seconds())
	}
}

// RecordCounter implements ports.MetricsCollector.
func (pm *PrometheusMetrics) RecordCounter(metric string, value float64, labels map[string]string) {
	switch metric {
	case ports.MetricForecasts:
		pm.forecasts.WithLabelValues(label(labels, "outcome"), label(labels, "reason")).Add(value)
	case ports.MetricCorrectionFailures:
		pm.correctionFailures.WithLabelValues(label(labels, "stage"), label(labels, "reason")).Add(value)
	case llm.MetricLLMRequests:
		pm.llmRequests.WithLabelValues(label(labels, "provider"), label(labels, "model"), label(labels, "status")).Add(value)
	case llm.MetricLLMTokens:
		pm.llmTokens.WithLabelValues(label(labels, "provider"), label(labels, "model"), label(labels, "token_type")).Add(value)
	default:
		pm.events.WithLabelValues(metric).Add(value)
	}
}

// RecordGauge implements ports.MetricsCollector.
func (pm *PrometheusMetrics) RecordGauge(metric string, value float64, _ map[string]string) {
	if metric == ports.MetricForecastMeanMoisture {
		pm.meanMoisture.Set(value)
		return
	}
	pm.gauges.WithLabelValues(metric).Set(value)
}

// RecordHistogram implements ports.MetricsCollector.
func (pm *PrometheusMetrics) RecordHistogram(metric string, value float64, labels map[string]string) {
	if metric == llm.MetricLLMLatency {
		pm.llmLatency.WithLabelValues(label(labels, "provider"), label(labels, "model"), label(labels, "status")).Observe(value)
		return
	}
	pm.values.WithLabelValues(metric).Observe(value)
}

// label returns labels[key], or "unknown" when it is missing or empty.
func label(labels map[string]string, key string) string {
	if v := labels[key]; v != "" {
		return v
	}
	return "unknown"
}

var _ ports.MetricsCollector = (*PrometheusMetrics)(nil)
