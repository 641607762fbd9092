package llm

import (
	"fmt"
	"math"
	"net/url"
	"time"
)

// Parameter ranges shared by every provider.
const (
	MinTemperature = 0.0
	// MaxTemperature accommodates Gemini and OpenAI, which accept up to 2.
	MaxTemperature = 2.0
	MinTopP        = 0.0
	MaxTopP        = 1.0

	// DefaultMaxTokens leaves room for 72 values with JSON punctuation.
	DefaultMaxTokens = 1024

	MinTimeout = 1 * time.Second
	MaxTimeout = 10 * time.Minute
)

// RequestOptions is the provider-neutral view of a request's option map.
type RequestOptions struct {
	MaxTokens int
	Model     string
	// Temperature and TopP are nil when the provider default applies.
	Temperature *float64
	TopP        *float64
	System      string
	// JSONResponse asks the provider for a JSON-only answer where supported.
	JSONResponse bool
}

// ParseRequestOptions reads the standard keys of opts, falling back to
// defaults for missing or invalid values.
func ParseRequestOptions(opts map[string]any, defaultModel string) RequestOptions {
	options := RequestOptions{
		MaxTokens:    ExtractOptionalInt(opts, "max_tokens", DefaultMaxTokens, IsPositiveInt),
		Model:        ExtractOptionalString(opts, "model", defaultModel, IsNonEmptyString),
		System:       ExtractOptionalString(opts, "system", "", nil),
		JSONResponse: ExtractOptionalString(opts, "response_format", "", nil) == "json",
	}
	if temp, ok := extractFloat(opts, "temperature"); ok && IsValidTemperature(temp) {
		options.Temperature = &temp
	}
	if topP, ok := extractFloat(opts, "top_p"); ok && IsValidTopP(topP) {
		options.TopP = &topP
	}
	return options
}

// ExtractOptionalInt returns opts[key] as an int, or defaultVal when the key
// is missing, not an integral number, or rejected by validator.
func ExtractOptionalInt(opts map[string]any, key string, defaultVal int, validator func(int) bool) int {
	v, ok := opts[key]
	if !ok {
		return defaultVal
	}
	var n int
	switch x := v.(type) {
	case int:
		n = x
	case int64:
		if int64(int(x)) != x {
			return defaultVal
		}
		n = int(x)
	case float64:
		if x != math.Trunc(x) || math.Abs(x) > math.MaxInt32 {
			return defaultVal
		}
		n = int(x)
	default:
		return defaultVal
	}
	if validator != nil && !validator(n) {
		return defaultVal
	}
	return n
}

// ExtractOptionalString returns opts[key] as a string, or defaultVal when the
// key is missing, not a string, or rejected by validator.
func ExtractOptionalString(opts map[string]any, key string, defaultVal string, validator func(string) bool) string {
	s, ok := opts[key].(string)
	if !ok {
		return defaultVal
	}
	if validator != nil && !validator(s) {
		return defaultVal
	}
	return s
}

func extractFloat(opts map[string]any, key string) (float64, bool) {
	switch x := opts[key].(type) {
	case float64:
		return x, !math.IsNaN(x)
	case float32:
		return float64(x), !math.IsNaN(float64(x))
	case int:
		return float64(x), true
	default:
		return 0, false
	}
}

func IsPositiveInt(val int) bool      { return val > 0 }
func IsNonEmptyString(val string) bool { return val != "" }

// IsValidTemperature reports whether val lies in [MinTemperature, MaxTemperature].
func IsValidTemperature(val float64) bool {
	return val >= MinTemperature && val <= MaxTemperature
}

// IsValidTopP reports whether val lies in [MinTopP, MaxTopP].
func IsValidTopP(val float64) bool { return val >= MinTopP && val <= MaxTopP }

// ValidateBaseURL normalizes a provider endpoint. An empty string is valid and
// selects the provider default.
func ValidateBaseURL(baseURL string) (string, error) {
	if baseURL == "" {
		return "", nil
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid URL format: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("URL scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("URL must include a host")
	}
	return u.String(), nil
}

// ValidateTimeout clamps a positive timeout to [MinTimeout, MaxTimeout].
// Zero or negative returns zero, meaning the SDK default.
func ValidateTimeout(timeout time.Duration) time.Duration {
	if timeout <= 0 {
		return 0
	}
	return min(max(timeout, MinTimeout), MaxTimeout)
}

func clamp(val, lo, hi float64) float64 { return min(max(val, lo), hi) }
