// Package domain contains the core value types of the soil-moisture forecasting
// pipeline: atmospheric states, hourly weather inputs, trajectories, feature
// summaries, parsed corrections and the final forecast. Types in this package
// carry no behavior that performs I/O; every transformation on them is
// deterministic.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// Soil moisture is expressed as a volumetric fraction.
const (
	MinSoilMoisture = 0.0
	MaxSoilMoisture = 1.0
)

// DefaultHorizonHours is the number of hourly steps in a forecast.
const DefaultHorizonHours = 72

// AtmosphericState is a snapshot of the near-surface atmosphere and the
// topsoil at a single instant. It is an immutable value: stepping the model
// always produces a new AtmosphericState.
type AtmosphericState struct {
	Timestamp        time.Time `json:"timestamp"         validate:"required"`
	TemperatureC     float64   `json:"temperature_c"     validate:"finite"`
	RelativeHumidity float64   `json:"relative_humidity" validate:"finite,gte=0,lte=100"`
	PrecipitationMM  float64   `json:"precipitation_mm"  validate:"finite,gte=0"`
	SoilMoisture     float64   `json:"soil_moisture"     validate:"finite,gte=0,lte=1"`
}

// String renders the state on a single line, the form used in prompts.
func (s AtmosphericState) String() string {
	return fmt.Sprintf("%s | T=%.1fC | RH=%.1f%% | P=%.2fmm | SM=%.3f",
		s.Timestamp.Format(TimestampLayout), s.TemperatureC, s.RelativeHumidity,
		s.PrecipitationMM, s.SoilMoisture)
}

// HourlyWeatherInput is one hour of forecast weather driving the stepper.
type HourlyWeatherInput struct {
	Timestamp        time.Time `json:"timestamp"         validate:"required"`
	TemperatureC     float64   `json:"temperature_c"     validate:"finite"`
	RelativeHumidity float64   `json:"relative_humidity" validate:"finite"`
	PrecipitationMM  float64   `json:"precipitation_mm"  validate:"finite,gte=0"`
}

// Trajectory is the ordered sequence of states produced by unrolling the
// stepper. Index i holds the state i+1 hours after the initial state.
type Trajectory []AtmosphericState

// SoilMoisture returns the soil-moisture series of the trajectory.
func (t Trajectory) SoilMoisture() []float64 {
	out := make([]float64, len(t))
	for i, s := range t {
		out[i] = s.SoilMoisture
	}
	return out
}

// Excerpt returns every stride-th state, always including the last one, so a
// prompt can show the shape of the trajectory without listing every hour.
func (t Trajectory) Excerpt(stride int) Trajectory {
	if stride <= 1 || len(t) == 0 {
		return append(Trajectory(nil), t...)
	}
	out := make(Trajectory, 0, len(t)/stride+1)
	for i := stride - 1; i < len(t); i += stride {
		out = append(out, t[i])
	}
	if (len(t))%stride != 0 {
		out = append(out, t[len(t)-1])
	}
	return out
}

// TimestampLayout is the ISO-8601 local datetime layout used in input files
// and prompts.
const TimestampLayout = "2006-01-02T15:04:05"

var timestampLayouts = []string{
	time.RFC3339Nano,
	TimestampLayout,
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// ParseTimestamp parses an ISO-8601 datetime with or without a UTC offset.
// Timestamps without an offset are interpreted as UTC.
func ParseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("%w: timestamp is empty", ErrEmptyValue)
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unrecognized timestamp %q", ErrInvalidInput, raw)
}
