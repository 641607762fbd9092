// Package fileio reads forecast inputs from JSON files and writes forecasts
// back to disk, optionally zstd-compressed.
package fileio

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ahrav/go-soilcast/internal/domain"
)

// stateRecord mirrors the initial-state file. Pointer fields tell a missing
// value apart from an explicit zero.
type stateRecord struct {
	Timestamp        *string  `json:"timestamp"`
	TemperatureC     *float64 `json:"temperature_c"`
	RelativeHumidity *float64 `json:"relative_humidity"`
	PrecipitationMM  *float64 `json:"precipitation_mm"`
	SoilMoisture     *float64 `json:"soil_moisture"`
}

type weatherRecord struct {
	Timestamp        *string  `json:"timestamp"`
	TemperatureC     *float64 `json:"temperature_c"`
	RelativeHumidity *float64 `json:"relative_humidity"`
	PrecipitationMM  *float64 `json:"precipitation_mm"`
}

type weatherEnvelope struct {
	Weather []weatherRecord `json:"weather"`
}

// LoadInitialState reads the initial-state file at path.
func LoadInitialState(path string) (domain.AtmosphericState, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return domain.AtmosphericState{}, fmt.Errorf("failed to read initial state: %w", err)
	}
	s, err := DecodeInitialState(data)
	if err != nil {
		return domain.AtmosphericState{}, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// LoadWeather reads the weather file at path.
func LoadWeather(path string) ([]domain.HourlyWeatherInput, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read weather data: %w", err)
	}
	w, err := DecodeWeather(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return w, nil
}

// DecodeInitialState decodes a JSON initial state. Every field except
// precipitation_mm is required; a missing precipitation is 0. Malformed JSON
// is returned as a decoding error, missing or unparseable fields as an
// *domain.InputValidationError.
func DecodeInitialState(data []byte) (domain.AtmosphericState, error) {
	var rec stateRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return domain.AtmosphericState{}, fmt.Errorf("failed to decode initial state: %w", err)
	}

	verr := domain.NewInputValidationError("initial state")
	s := domain.AtmosphericState{
		Timestamp:        timestamp(verr, "", rec.Timestamp),
		TemperatureC:     required(verr, "", "temperature_c", rec.TemperatureC),
		RelativeHumidity: required(verr, "", "relative_humidity", rec.RelativeHumidity),
		PrecipitationMM:  optional(rec.PrecipitationMM),
		SoilMoisture:     required(verr, "", "soil_moisture", rec.SoilMoisture),
	}
	if err := verr.ErrOrNil(); err != nil {
		return domain.AtmosphericState{}, err
	}
	return s, nil
}

// DecodeWeather decodes a JSON weather series given either as an array of
// hourly objects or as {"weather": [...]}. A missing precipitation_mm is 0.
func DecodeWeather(data []byte) ([]domain.HourlyWeatherInput, error) {
	records, err := decodeWeatherRecords(data)
	if err != nil {
		return nil, err
	}

	verr := domain.NewInputValidationError("weather")
	out := make([]domain.HourlyWeatherInput, len(records))
	for i, rec := range records {
		prefix := fmt.Sprintf("hour %d: ", i)
		out[i] = domain.HourlyWeatherInput{
			Timestamp:        timestamp(verr, prefix, rec.Timestamp),
			TemperatureC:     required(verr, prefix, "temperature_c", rec.TemperatureC),
			RelativeHumidity: required(verr, prefix, "relative_humidity", rec.RelativeHumidity),
			PrecipitationMM:  optional(rec.PrecipitationMM),
		}
	}
	if err := verr.ErrOrNil(); err != nil {
		return nil, err
	}
	return out, nil
}

func decodeWeatherRecords(data []byte) ([]weatherRecord, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var env weatherEnvelope
		if err := json.Unmarshal(trimmed, &env); err != nil {
			return nil, fmt.Errorf("failed to decode weather data: %w", err)
		}
		if env.Weather == nil {
			verr := domain.NewInputValidationError("weather")
			verr.AddError(`object has no "weather" array`)
			return nil, verr
		}
		return env.Weather, nil
	}

	var records []weatherRecord
	if err := json.Unmarshal(trimmed, &records); err != nil {
		return nil, fmt.Errorf("failed to decode weather data: %w", err)
	}
	return records, nil
}

func timestamp(verr *domain.InputValidationError, prefix string, raw *string) (ts time.Time) {
	if raw == nil {
		verr.AddErrorf("%stimestamp is required", prefix)
		return ts
	}
	parsed, err := domain.ParseTimestamp(*raw)
	if err != nil {
		verr.AddErrorf("%s%v", prefix, err)
		return ts
	}
	return parsed
}

func required(verr *domain.InputValidationError, prefix, field string, v *float64) float64 {
	if v == nil {
		verr.AddErrorf("%s%s is required", prefix, field)
		return 0
	}
	return *v
}

func optional(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
