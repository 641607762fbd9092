// Package stepper implements the deterministic hourly soil-moisture model.
//
// Each step adds a saturating infiltration term driven by precipitation and
// subtracts an evapotranspiration term that grows with temperature and falls
// with humidity. The net change is capped and the result clamped to [0,1], so
// no weather input, however extreme, can push soil moisture out of range.
//
//	infiltration(p)  = capacity * (1 - exp(-percolation_rate * p / capacity))
//	thermal(T)       = (clamp(T, Tmin, Tmax) - Tmin) / (Tmax - Tmin)
//	et(T, RH)        = evaporation_rate * (1 - clamp(RH, 0, 100)/100) * thermal(T)
//	soil'            = clamp(soil + clamp(infiltration - et, ±max_step_delta), 0, 1)
//
// Model is immutable after construction and safe for concurrent use.
package stepper

import (
	"fmt"
	"math"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ahrav/go-soilcast/internal/domain"
)

// Config holds the heuristic coefficients of the model.
type Config struct {
	// PercolationRate is the fraction of a millimetre of rain that reaches
	// the soil column, before saturation.
	PercolationRate float64 `yaml:"percolation_rate" json:"percolation_rate" envconfig:"SOILCAST_PERCOLATION_RATE" validate:"gt=0,lte=1"`
	// InfiltrationCapacity bounds the hourly moisture gain.
	InfiltrationCapacity float64 `yaml:"infiltration_capacity" json:"infiltration_capacity" envconfig:"SOILCAST_INFILTRATION_CAPACITY" validate:"gt=0,ltefield=MaxStepDelta"`
	// EvaporationRate is the hourly moisture loss in hot, bone-dry air.
	EvaporationRate float64 `yaml:"evaporation_rate" json:"evaporation_rate" envconfig:"SOILCAST_EVAPORATION_RATE" validate:"gte=0,ltefield=MaxStepDelta"`
	// TemperatureMinC and TemperatureMaxC bound the thermal factor.
	TemperatureMinC float64 `yaml:"temperature_min_c" json:"temperature_min_c" envconfig:"SOILCAST_TEMPERATURE_MIN_C"`
	TemperatureMaxC float64 `yaml:"temperature_max_c" json:"temperature_max_c" envconfig:"SOILCAST_TEMPERATURE_MAX_C" validate:"gtfield=TemperatureMinC"`
	// MaxStepDelta caps the absolute change of one step.
	MaxStepDelta float64 `yaml:"max_step_delta" json:"max_step_delta" envconfig:"SOILCAST_MAX_STEP_DELTA" validate:"gt=0,lte=1"`
}

// DefaultConfig returns the coefficients used when none are configured.
func DefaultConfig() Config {
	return Config{
		PercolationRate:      0.01,
		InfiltrationCapacity: 0.05,
		EvaporationRate:      0.015,
		TemperatureMinC:      -40,
		TemperatureMaxC:      50,
		MaxStepDelta:         0.1,
	}
}

var validate = validator.New()

// Validate checks the coefficients for internal consistency.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: stepper: %v", domain.ErrInvalidConfiguration, err)
	}
	return nil
}

// Model is the deterministic state-transition function.
type Model struct {
	cfg Config
}

// New validates cfg and returns a Model using it.
func New(cfg Config) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Model{cfg: cfg}, nil
}

// MustNew is like New but panics on an invalid configuration.
func MustNew(cfg Config) *Model {
	m, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return m
}

// Config returns the coefficients in use.
func (m *Model) Config() Config { return m.cfg }

// Step advances state by one hour under weather w. It is pure: identical
// inputs always give identical outputs.
func (m *Model) Step(state domain.AtmosphericState, w domain.HourlyWeatherInput) domain.AtmosphericState {
	precip := sanitizePrecipitation(w.PrecipitationMM)

	delta := m.Infiltration(precip) - m.Evapotranspiration(w.TemperatureC, w.RelativeHumidity)
	delta = clamp(delta, -m.cfg.MaxStepDelta, m.cfg.MaxStepDelta)

	soil := state.SoilMoisture
	if math.IsNaN(soil) {
		soil = domain.MinSoilMoisture
	}

	return domain.AtmosphericState{
		Timestamp:        state.Timestamp.Add(time.Hour),
		TemperatureC:     w.TemperatureC,
		RelativeHumidity: w.RelativeHumidity,
		PrecipitationMM:  precip,
		SoilMoisture:     clamp(soil+delta, domain.MinSoilMoisture, domain.MaxSoilMoisture),
	}
}

// Unroll applies Step horizon times, consuming weather in order.
// It fails with a *domain.SimulationError when horizon is not positive or the
// weather series is shorter than horizon.
func (m *Model) Unroll(initial domain.AtmosphericState, weather []domain.HourlyWeatherInput, horizon int) (domain.Trajectory, error) {
	if horizon <= 0 {
		return nil, domain.NewSimulationError(horizon, len(weather),
			fmt.Errorf("%w: horizon must be positive", domain.ErrInvalidInput))
	}
	if len(weather) < horizon {
		return nil, domain.NewSimulationError(horizon, len(weather), domain.ErrInsufficientWeather)
	}

	traj := make(domain.Trajectory, horizon)
	state := initial
	for i := range horizon {
		state = m.Step(state, weather[i])
		traj[i] = state
	}
	return traj, nil
}

// Infiltration returns the moisture gained from precip millimetres of rain in
// one hour. It increases monotonically and saturates at the configured
// capacity.
func (m *Model) Infiltration(precip float64) float64 {
	precip = sanitizePrecipitation(precip)
	if precip == 0 {
		return 0
	}
	capacity := m.cfg.InfiltrationCapacity
	return capacity * -math.Expm1(-m.cfg.PercolationRate*precip/capacity)
}

// Evapotranspiration returns the moisture lost in one hour. Non-finite
// inputs yield zero loss.
func (m *Model) Evapotranspiration(tempC, humidity float64) float64 {
	if !finite(tempC) || !finite(humidity) {
		return 0
	}
	tmin, tmax := m.cfg.TemperatureMinC, m.cfg.TemperatureMaxC
	thermal := (clamp(tempC, tmin, tmax) - tmin) / (tmax - tmin)
	dryness := 1 - clamp(humidity, 0, 100)/100
	return m.cfg.EvaporationRate * dryness * thermal
}

func sanitizePrecipitation(p float64) float64 {
	if !finite(p) || p < 0 {
		return 0
	}
	return p
}

func finite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }

func clamp(v, lo, hi float64) float64 {
	switch {
	case math.IsNaN(v):
		return lo
	case v < lo:
		return lo
	case v > hi:
		return hi
	default:
		return v
	}
}
