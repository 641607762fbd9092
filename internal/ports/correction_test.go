package ports

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCorrectionClientFunc(t *testing.T) {
	var seen string
	client := CorrectionClientFunc(func(_ context.Context, prompt string) (any, error) {
		seen = prompt
		return []float64{0.1}, nil
	})

	got, err := client.Invoke(context.Background(), "hello")

	require.NoError(t, err)
	assert.Equal(t, []float64{0.1}, got)
	assert.Equal(t, "hello", seen)
	assert.False(t, IsNoCorrection(client))
}

func TestNoCorrection(t *testing.T) {
	assert.True(t, IsNoCorrection(nil), "nil client counts as no client")
	assert.True(t, IsNoCorrection(NoCorrection))

	got, err := NoCorrection.Invoke(context.Background(), "prompt")
	assert.Nil(t, got)
	assert.True(t, errors.Is(err, ErrNoCorrectionClient))
}

func TestNoopMetrics(t *testing.T) {
	var m MetricsCollector = NoopMetrics{}

	assert.NotPanics(t, func() {
		m.RecordCounter("forecasts_total", 1, nil)
		m.RecordLatency("simulate", 0, map[string]string{"stage": "SIMULATE"})
		m.RecordGauge("inflight", 1, nil)
		m.RecordHistogram("clamped", 2, nil)
	})
}
