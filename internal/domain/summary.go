package domain

import "sort"

// FeatureSummary is a fixed-size digest of a trajectory and the weather that
// drove it. Its size does not depend on the length of either input.
type FeatureSummary struct {
	WeatherHours int `json:"weather_hours"`

	MeanTemperatureC float64 `json:"mean_temperature"`
	MinTemperatureC  float64 `json:"min_temperature"`
	MaxTemperatureC  float64 `json:"max_temperature"`

	MeanHumidity  float64 `json:"mean_humidity"`
	HumidityTrend float64 `json:"humidity_trend_per_hour"`

	TotalPrecipitationMM float64 `json:"total_precipitation"`
	MaxPrecipitationMM   float64 `json:"max_hourly_precipitation"`
	WetHours             int     `json:"wet_hours"`

	InitialSoilMoisture float64 `json:"initial_soil_moisture"`
	FinalSoilMoisture   float64 `json:"final_soil_moisture"`
	MinSoilMoisture     float64 `json:"min_soil_moisture"`
	MaxSoilMoisture     float64 `json:"max_soil_moisture"`
	SoilMoistureTrend   float64 `json:"soil_moisture_trend_per_hour"`
}

// Feature is a single named statistic of a FeatureSummary.
type Feature struct {
	Name  string
	Value float64
}

// Fields returns the summary as name/value pairs sorted by name.
func (f FeatureSummary) Fields() []Feature {
	fields := []Feature{
		{"weather_hours", float64(f.WeatherHours)},
		{"mean_temperature", f.MeanTemperatureC},
		{"min_temperature", f.MinTemperatureC},
		{"max_temperature", f.MaxTemperatureC},
		{"mean_humidity", f.MeanHumidity},
		{"humidity_trend_per_hour", f.HumidityTrend},
		{"total_precipitation", f.TotalPrecipitationMM},
		{"max_hourly_precipitation", f.MaxPrecipitationMM},
		{"wet_hours", float64(f.WetHours)},
		{"initial_soil_moisture", f.InitialSoilMoisture},
		{"final_soil_moisture", f.FinalSoilMoisture},
		{"min_soil_moisture", f.MinSoilMoisture},
		{"max_soil_moisture", f.MaxSoilMoisture},
		{"soil_moisture_trend_per_hour", f.SoilMoistureTrend},
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i].Name < fields[j].Name })
	return fields
}
