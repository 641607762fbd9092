// Package testutils provides shared fixtures for soil-moisture forecast tests:
// weather series generators, scripted correction clients, a mock LLM client
// and a catalog of adversarial responses.
package testutils

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/ahrav/go-soilcast/internal/domain"
)

// Epoch is the default initial timestamp of fixtures.
var Epoch = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

// InitialState returns an initial state at Epoch with the given soil moisture.
func InitialState(soil float64) domain.AtmosphericState {
	return domain.AtmosphericState{
		Timestamp:        Epoch,
		TemperatureC:     18,
		RelativeHumidity: 60,
		PrecipitationMM:  0,
		SoilMoisture:     soil,
	}
}

// ConstantWeather returns n hourly entries starting one hour after Epoch.
func ConstantWeather(n int, tempC, rh, precip float64) []domain.HourlyWeatherInput {
	w := make([]domain.HourlyWeatherInput, n)
	for i := range w {
		w[i] = domain.HourlyWeatherInput{
			Timestamp:        Epoch.Add(time.Duration(i+1) * time.Hour),
			TemperatureC:     tempC,
			RelativeHumidity: rh,
			PrecipitationMM:  precip,
		}
	}
	return w
}

// DiurnalWeather returns n hourly entries with a daily temperature and
// humidity cycle and a rain shower every rainEvery hours (0 for none).
func DiurnalWeather(n, rainEvery int) []domain.HourlyWeatherInput {
	w := make([]domain.HourlyWeatherInput, n)
	for i := range w {
		hour := (i + 1) % 24
		swing := float64(12-abs(hour-14)) / 12
		entry := domain.HourlyWeatherInput{
			Timestamp:        Epoch.Add(time.Duration(i+1) * time.Hour),
			TemperatureC:     14 + 8*swing,
			RelativeHumidity: 80 - 30*swing,
		}
		if rainEvery > 0 && (i+1)%rainEvery == 0 {
			entry.PrecipitationMM = 2.5
		}
		w[i] = entry
	}
	return w
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// SeriesJSON renders values as {"soil_moisture": [...]} with shortest
// round-trip float formatting.
func SeriesJSON(key string, values []float64) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	k, _ := json.Marshal(key)
	return "{" + string(k) + ": [" + strings.Join(parts, ", ") + "]}"
}

// Uniform returns n copies of v.
func Uniform(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// InitialStateJSON is the documented example initial-state file.
const InitialStateJSON = `{
  "timestamp": "2024-05-01T00:00:00",
  "temperature_c": 18.0,
  "relative_humidity": 60.0,
  "precipitation_mm": 0.0,
  "soil_moisture": 0.45
}`

// WeatherJSON renders n hours of the documented example weather as a JSON
// array, with a light shower every sixth hour.
func WeatherJSON(n int) string {
	var sb strings.Builder
	sb.WriteString("[\n")
	for i := range n {
		ts := Epoch.Add(time.Duration(i+1) * time.Hour).Format(domain.TimestampLayout)
		precip := "0.0"
		if (i+1)%6 == 0 {
			precip = "0.4"
		}
		sb.WriteString(`  {"timestamp": "` + ts + `", "temperature_c": 18.0, "relative_humidity": 60.0, "precipitation_mm": ` + precip + `}`)
		if i < n-1 {
			sb.WriteString(",")
		}
		sb.WriteString("\n")
	}
	sb.WriteString("]\n")
	return sb.String()
}
