package domain

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"time"

	"github.com/go-playground/validator/v10"
)

// Package-level validator instance for input validation.
// The "finite" tag rejects NaN and infinite floats.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("finite", func(fl validator.FieldLevel) bool {
		switch fl.Field().Kind() {
		case reflect.Float32, reflect.Float64:
			f := fl.Field().Float()
			return !math.IsNaN(f) && !math.IsInf(f, 0)
		default:
			return true
		}
	})
	return v
}

// ValidateInitialState checks the physical bounds of an initial state.
func ValidateInitialState(s AtmosphericState) error {
	verr := NewInputValidationError("initial state")
	collectFieldErrors(verr, "", validate.Struct(s))
	return verr.ErrOrNil()
}

// ValidateWeather checks that the series covers horizon hours with finite
// values, non-negative precipitation and strictly increasing hourly
// timestamps. Only the first horizon entries are checked for spacing.
func ValidateWeather(weather []HourlyWeatherInput, horizon int) error {
	verr := NewInputValidationError("weather")
	if len(weather) < horizon {
		verr.AddErrorf("%d hours supplied, at least %d required", len(weather), horizon)
		return verr
	}
	for i := range weather {
		collectFieldErrors(verr, fmt.Sprintf("hour %d: ", i), validate.Struct(weather[i]))
		if i == 0 || i >= horizon {
			continue
		}
		if gap := weather[i].Timestamp.Sub(weather[i-1].Timestamp); gap != time.Hour {
			verr.AddErrorf("hour %d: timestamp %s is %s after the previous entry, want 1h",
				i, weather[i].Timestamp.Format(TimestampLayout), gap)
		}
	}
	return verr.ErrOrNil()
}

func collectFieldErrors(verr *InputValidationError, prefix string, err error) {
	if err == nil {
		return
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		verr.AddError(prefix + err.Error())
		return
	}
	for _, fe := range fieldErrs {
		switch fe.Tag() {
		case "required":
			verr.AddErrorf("%s%s is required", prefix, fe.Field())
		case "finite":
			verr.AddErrorf("%s%s must be a finite number", prefix, fe.Field())
		default:
			verr.AddErrorf("%s%s must satisfy %s=%s (got %v)", prefix, fe.Field(), fe.Tag(), fe.Param(), fe.Value())
		}
	}
}
