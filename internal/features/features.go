// Package features reduces a trajectory and its driving weather into a
// fixed-size FeatureSummary for prompting.
package features

import (
	"math"

	"github.com/ahrav/go-soilcast/internal/domain"
)

// Summarize computes aggregate statistics over the trajectory and the first
// len(traj) weather hours. InitialSoilMoisture comes from the state the
// trajectory was unrolled from, not from its first step. It is total: an
// empty trajectory yields a summary holding only the initial soil moisture
// and the number of weather hours supplied.
func Summarize(initial domain.AtmosphericState, traj domain.Trajectory, weather []domain.HourlyWeatherInput) domain.FeatureSummary {
	summary := domain.FeatureSummary{
		WeatherHours:        len(weather),
		InitialSoilMoisture: initial.SoilMoisture,
	}
	if len(traj) == 0 {
		return summary
	}

	n := min(len(traj), len(weather))
	if n > 0 {
		w := weather[:n]
		temps := make([]float64, n)
		humidity := make([]float64, n)
		for i, h := range w {
			temps[i] = h.TemperatureC
			humidity[i] = h.RelativeHumidity

			p := h.PrecipitationMM
			if p > 0 && !math.IsInf(p, 0) {
				summary.TotalPrecipitationMM += p
				summary.MaxPrecipitationMM = math.Max(summary.MaxPrecipitationMM, p)
				summary.WetHours++
			}
		}
		summary.MeanTemperatureC = mean(temps)
		summary.MinTemperatureC, summary.MaxTemperatureC = extent(temps)
		summary.MeanHumidity = mean(humidity)
		summary.HumidityTrend = slope(humidity)
	}

	soil := traj.SoilMoisture()
	summary.FinalSoilMoisture = soil[len(soil)-1]
	summary.MinSoilMoisture, summary.MaxSoilMoisture = extent(soil)
	summary.SoilMoistureTrend = slope(soil)

	return summary
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

func extent(xs []float64) (lo, hi float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	lo, hi = xs[0], xs[0]
	for _, x := range xs[1:] {
		lo = math.Min(lo, x)
		hi = math.Max(hi, x)
	}
	return lo, hi
}

// slope is the least-squares trend of xs per index step.
func slope(xs []float64) float64 {
	n := float64(len(xs))
	if n < 2 {
		return 0
	}
	xMean := (n - 1) / 2
	yMean := mean(xs)
	var num, den float64
	for i, y := range xs {
		dx := float64(i) - xMean
		num += dx * (y - yMean)
		den += dx * dx
	}
	return num / den
}
