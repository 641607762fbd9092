package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Common domain errors that can occur while producing a forecast.
var (
	// ErrInvalidInput indicates that a caller-supplied value is malformed.
	ErrInvalidInput = errors.New("invalid input")

	// ErrEmptyValue indicates that a required value is empty or missing.
	ErrEmptyValue = errors.New("empty value")

	// ErrInsufficientWeather indicates that fewer weather hours were supplied
	// than the horizon requires.
	ErrInsufficientWeather = errors.New("insufficient weather data")

	// ErrInvalidConfiguration indicates that configuration is invalid or incomplete.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrLLMInvocation matches correction failures raised while calling the
	// correction client.
	ErrLLMInvocation = errors.New("llm invocation failed")

	// ErrResponseParse matches correction failures raised while parsing or
	// validating the client's response.
	ErrResponseParse = errors.New("response parse failed")
)

// InputValidationError reports that the initial state or weather series is
// unusable. It is fatal: the pipeline stops before simulating.
// It can contain multiple validation failures.
type InputValidationError struct {
	// Entity is the name of the input that failed validation.
	Entity string

	// Errors contains the list of validation error messages.
	Errors []string
}

// Error implements the error interface for InputValidationError.
func (e *InputValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("invalid %s: %s", e.Entity, e.Errors[0])
	}
	return fmt.Sprintf("invalid %s: %s", e.Entity, strings.Join(e.Errors, "; "))
}

// Unwrap lets errors.Is match ErrInvalidInput.
func (e *InputValidationError) Unwrap() error { return ErrInvalidInput }

// AddError adds a new error message to the validation error.
func (e *InputValidationError) AddError(msg string) { e.Errors = append(e.Errors, msg) }

// AddErrorf adds a formatted error message.
func (e *InputValidationError) AddErrorf(format string, args ...any) {
	e.AddError(fmt.Sprintf(format, args...))
}

// HasErrors returns true if there are any validation errors.
func (e *InputValidationError) HasErrors() bool { return len(e.Errors) > 0 }

// ErrOrNil returns the error when it carries messages, nil otherwise.
func (e *InputValidationError) ErrOrNil() error {
	if e.HasErrors() {
		return e
	}
	return nil
}

// NewInputValidationError creates a new InputValidationError for the given entity.
func NewInputValidationError(entity string) *InputValidationError {
	return &InputValidationError{
		Entity: entity,
		Errors: make([]string, 0),
	}
}

// SimulationError reports that the stepper could not produce a full
// trajectory. It is fatal.
type SimulationError struct {
	// Required is the number of weather hours the horizon needs.
	Required int
	// Available is the number of weather hours supplied.
	Available int
	// Err is the underlying cause.
	Err error
}

// Error implements the error interface for SimulationError.
func (e *SimulationError) Error() string {
	return fmt.Sprintf("simulation error: required=%d, available=%d, err=%v", e.Required, e.Available, e.Err)
}

// Unwrap returns the underlying error.
func (e *SimulationError) Unwrap() error { return e.Err }

// NewSimulationError creates a new SimulationError with the given details.
func NewSimulationError(required, available int, err error) *SimulationError {
	return &SimulationError{Required: required, Available: available, Err: err}
}

// Correction stages. StageInvoke belongs to the client call, every other stage
// to response parsing.
const (
	CorrectionStageInvoke   = "invoke"
	CorrectionStageShape    = "shape"
	CorrectionStageSequence = "sequence"
	CorrectionStageMapping  = "mapping"
	CorrectionStageText     = "text"
	CorrectionStageValidate = "validate"
)

// Correction failure reasons.
const (
	ReasonNoClient        = "no_client"
	ReasonClientError     = "client_error"
	ReasonClientPanic     = "client_panic"
	ReasonTimeout         = "timeout"
	ReasonCanceled        = "canceled"
	ReasonInvalidShape    = "invalid_shape"
	ReasonWrongLength     = "wrong_length"
	ReasonNonNumeric      = "non_numeric"
	ReasonOutOfRange      = "out_of_range"
	ReasonUnparseableText = "unparseable_text"
	ReasonPromptError     = "prompt_error"
)

// CorrectionError is the single failure shape for the optional correction
// pass. Both client failures and parse failures are recovered into a fallback
// forecast, so they share one type and are told apart by Stage.
type CorrectionError struct {
	// Stage is where the failure happened.
	Stage string
	// Reason is a stable machine-readable failure code.
	Reason string
	// Detail is a human-readable explanation.
	Detail string
	// Err is the underlying error, if any.
	Err error
}

// Error implements the error interface for CorrectionError.
func (e *CorrectionError) Error() string {
	msg := fmt.Sprintf("correction failed: stage=%s, reason=%s", e.Stage, e.Reason)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *CorrectionError) Unwrap() error { return e.Err }

// Is matches ErrLLMInvocation for client failures and ErrResponseParse for
// everything else.
func (e *CorrectionError) Is(target error) bool {
	switch target {
	case ErrLLMInvocation:
		return e.Stage == CorrectionStageInvoke
	case ErrResponseParse:
		return e.Stage != CorrectionStageInvoke
	}
	return false
}

// NewCorrectionError creates a new CorrectionError with the given details.
func NewCorrectionError(stage, reason, detail string, err error) *CorrectionError {
	return &CorrectionError{Stage: stage, Reason: reason, Detail: detail, Err: err}
}
