package correction

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-soilcast/internal/domain"
	"github.com/ahrav/go-soilcast/internal/testutils"
)

func sampleTrajectory(n int) domain.Trajectory {
	traj := make(domain.Trajectory, n)
	for i := range traj {
		traj[i] = domain.AtmosphericState{
			Timestamp:        testutils.Epoch.Add(time.Duration(i+1) * time.Hour),
			TemperatureC:     18,
			RelativeHumidity: 60,
			SoilMoisture:     0.45 - float64(i)*0.001,
		}
	}
	return traj
}

func sampleInitial() domain.AtmosphericState {
	return domain.AtmosphericState{
		Timestamp:        testutils.Epoch,
		TemperatureC:     17.5,
		RelativeHumidity: 62.5,
		PrecipitationMM:  0.04,
		SoilMoisture:     0.45,
	}
}

func sampleSummary() domain.FeatureSummary {
	return domain.FeatureSummary{
		WeatherHours:         72,
		MeanTemperatureC:     18,
		MinTemperatureC:      18,
		MaxTemperatureC:      18,
		MeanHumidity:         60,
		TotalPrecipitationMM: 4.8,
		MaxPrecipitationMM:   0.4,
		WetHours:             12,
		InitialSoilMoisture:  0.45,
		FinalSoilMoisture:    0.379,
		MinSoilMoisture:      0.379,
		MaxSoilMoisture:      0.45,
		SoilMoistureTrend:    -0.001,
	}
}

// TestPromptBuilder_DefaultTemplate checks the rendered prompt carries the
// excerpt, every feature and the required response format.
func TestPromptBuilder_DefaultTemplate(t *testing.T) {
	traj := sampleTrajectory(horizon)
	excerpt := traj.Excerpt(DefaultExcerptStride)

	prompt, err := MustPromptBuilder().Build(sampleInitial(), sampleSummary(), excerpt, horizon)
	require.NoError(t, err)

	assert.Contains(t, prompt, "next 72 hours")
	assert.Contains(t, prompt, "Initial state: T=17.5C, RH=62.5%, P=0.04mm, SM=0.450.\n")
	assert.Less(t, strings.Index(prompt, "Initial state:"), strings.Index(prompt, "Projected states"))
	assert.Contains(t, prompt, "Projected states (12 of 72 hours shown):")
	assert.Contains(t, prompt, "2024-05-01T06:00:00 | T=18.0C | RH=60.0% | P=0.00mm | SM=0.445")
	assert.Contains(t, prompt, "2024-05-04T00:00:00 | T=18.0C | RH=60.0% | P=0.00mm | SM=0.379")
	assert.Contains(t, prompt, "Key summary features:")
	for _, f := range sampleSummary().Fields() {
		assert.Contains(t, prompt, "- "+f.Name+": ")
	}
	assert.Contains(t, prompt, "- total_precipitation: 4.800")
	assert.Contains(t, prompt, "- wet_hours: 12.000")
	assert.Contains(t, prompt, `{"soil_moisture": [v1, v2, ..., v72]}`)
	assert.Contains(t, prompt, "exactly 72 decimal numbers")
}

func TestPromptBuilder_FeaturesSortedByName(t *testing.T) {
	prompt, err := MustPromptBuilder().Build(sampleInitial(), sampleSummary(), nil, horizon)
	require.NoError(t, err)

	last := -1
	for _, f := range sampleSummary().Fields() {
		idx := strings.Index(prompt, "- "+f.Name+": ")
		require.NotEqual(t, -1, idx, f.Name)
		assert.Greater(t, idx, last, "%s out of order", f.Name)
		last = idx
	}
}

func TestPromptBuilder_InitialStateLine(t *testing.T) {
	tests := []struct {
		name    string
		initial domain.AtmosphericState
		want    string
	}{
		{
			name:    "dry start",
			initial: domain.AtmosphericState{Timestamp: testutils.Epoch, TemperatureC: 18, RelativeHumidity: 60, SoilMoisture: 0.45},
			want:    "Initial state: T=18.0C, RH=60.0%, P=0.00mm, SM=0.450.",
		},
		{
			name:    "light rain keeps two decimals",
			initial: domain.AtmosphericState{Timestamp: testutils.Epoch, TemperatureC: -3.26, RelativeHumidity: 99.96, PrecipitationMM: 0.004, SoilMoisture: 1},
			want:    "Initial state: T=-3.3C, RH=100.0%, P=0.00mm, SM=1.000.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prompt, err := MustPromptBuilder().Build(tt.initial, sampleSummary(), nil, horizon)
			require.NoError(t, err)
			assert.Contains(t, prompt, tt.want)
		})
	}
}

func TestPromptBuilder_Deterministic(t *testing.T) {
	b := MustPromptBuilder()
	excerpt := sampleTrajectory(horizon).Excerpt(DefaultExcerptStride)

	first, err := b.Build(sampleInitial(), sampleSummary(), excerpt, horizon)
	require.NoError(t, err)
	for range 10 {
		again, err := b.Build(sampleInitial(), sampleSummary(), excerpt, horizon)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestPromptBuilder_ShortHorizonPlaceholders(t *testing.T) {
	tests := []struct {
		horizon int
		want    string
	}{
		{1, `{"soil_moisture": [v1]}`},
		{3, `{"soil_moisture": [v1, v2, v3]}`},
		{4, `{"soil_moisture": [v1, v2, ..., v4]}`},
	}

	for _, tt := range tests {
		prompt, err := MustPromptBuilder().Build(sampleInitial(), sampleSummary(), nil, tt.horizon)
		require.NoError(t, err)
		assert.Contains(t, prompt, tt.want)
	}
}

func TestNewPromptBuilder_CustomTemplate(t *testing.T) {
	b, err := NewPromptBuilder("{{.Horizon}}h:{{range .Features}}{{if eq .Name \"wet_hours\"}}{{fixed .Value 0}}{{end}}{{end}}")
	require.NoError(t, err)

	prompt, err := b.Build(sampleInitial(), sampleSummary(), nil, 24)
	require.NoError(t, err)
	assert.Equal(t, "24h:12", prompt)
}

func TestNewPromptBuilder_Errors(t *testing.T) {
	t.Run("parse error", func(t *testing.T) {
		_, err := NewPromptBuilder("{{.Horizon")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to parse prompt template")
	})

	t.Run("render error", func(t *testing.T) {
		b, err := NewPromptBuilder("{{.Unknown}}")
		require.NoError(t, err)

		_, err = b.Build(sampleInitial(), sampleSummary(), nil, horizon)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to render prompt")
	})
}
