package llm

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ahrav/go-soilcast/internal/domain"
	"github.com/ahrav/go-soilcast/internal/ports"
)

// Settings is the user-facing configuration of the correction client. An
// empty Provider disables correction.
type Settings struct {
	Provider string `yaml:"provider" json:"provider" envconfig:"SOILCAST_LLM_PROVIDER" validate:"omitempty,oneof=openai anthropic google"`
	Model    string `yaml:"model" json:"model" envconfig:"SOILCAST_LLM_MODEL"`
	BaseURL  string `yaml:"base_url" json:"base_url" envconfig:"SOILCAST_LLM_BASE_URL" validate:"omitempty,url"`

	// RequestTimeout bounds a single provider attempt.
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout" envconfig:"SOILCAST_LLM_REQUEST_TIMEOUT" validate:"gte=0"`
	MaxTokens      int           `yaml:"max_tokens" json:"max_tokens" envconfig:"SOILCAST_LLM_MAX_TOKENS" validate:"gte=1,lte=32768"`
	Temperature    float64       `yaml:"temperature" json:"temperature" envconfig:"SOILCAST_LLM_TEMPERATURE" validate:"gte=0,lte=2"`

	MaxRetries     int           `yaml:"max_retries" json:"max_retries" envconfig:"SOILCAST_LLM_MAX_RETRIES" validate:"gte=0,lte=10"`
	RetryBaseDelay time.Duration `yaml:"retry_base_delay" json:"retry_base_delay" envconfig:"SOILCAST_LLM_RETRY_BASE_DELAY" validate:"gte=0"`
	RetryMaxDelay  time.Duration `yaml:"retry_max_delay" json:"retry_max_delay" envconfig:"SOILCAST_LLM_RETRY_MAX_DELAY" validate:"gtefield=RetryBaseDelay"`

	// RequestsPerSecond of zero disables rate limiting.
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second" envconfig:"SOILCAST_LLM_REQUESTS_PER_SECOND" validate:"gte=0"`
	Burst             int     `yaml:"burst" json:"burst" envconfig:"SOILCAST_LLM_BURST" validate:"gte=1"`

	BreakerFailures int           `yaml:"breaker_failures" json:"breaker_failures" envconfig:"SOILCAST_LLM_BREAKER_FAILURES" validate:"gte=1"`
	BreakerCooldown time.Duration `yaml:"breaker_cooldown" json:"breaker_cooldown" envconfig:"SOILCAST_LLM_BREAKER_COOLDOWN" validate:"gt=0"`
}

// DefaultSettings returns settings with correction disabled and conservative
// resilience defaults.
func DefaultSettings() Settings {
	return Settings{
		RequestTimeout:  20 * time.Second,
		MaxTokens:       DefaultMaxTokens,
		Temperature:     0,
		MaxRetries:      2,
		RetryBaseDelay:  500 * time.Millisecond,
		RetryMaxDelay:   5 * time.Second,
		Burst:           1,
		BreakerFailures: 5,
		BreakerCooldown: 30 * time.Second,
	}
}

var validate = validator.New()

// Validate checks the settings.
func (s Settings) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("%w: llm: %v", domain.ErrInvalidConfiguration, err)
	}
	return nil
}

// Enabled reports whether a provider is configured.
func (s Settings) Enabled() bool { return s.Provider != "" }

// Observability carries the sinks the middleware chain reports to. Zero
// values are replaced with no-op implementations.
type Observability struct {
	Logger  *zap.Logger
	Metrics ports.MetricsCollector
	Tracer  trace.Tracer
}

// Middleware returns the chain for these settings, outermost first: tracing,
// metrics, logging, rate limiting, retry, circuit breaker and the per-attempt
// timeout.
func (s Settings) Middleware(obs Observability) []Middleware {
	mw := []Middleware{
		TracingMiddleware(s.Provider, obs.Tracer),
		MetricsMiddleware(s.Provider, obs.Metrics),
		LoggingMiddleware(obs.Logger),
	}
	if s.RequestsPerSecond > 0 {
		mw = append(mw, RateLimitMiddleware(rate.Limit(s.RequestsPerSecond), s.Burst))
	}
	if s.MaxRetries > 0 {
		mw = append(mw, RetryMiddleware(s.MaxRetries, s.RetryBaseDelay, s.RetryMaxDelay))
	}
	mw = append(mw, CircuitBreakerMiddleware("llm-"+s.Provider, s.BreakerFailures, s.BreakerCooldown, obs.Logger))
	if s.RequestTimeout > 0 {
		mw = append(mw, TimeoutMiddleware(s.RequestTimeout))
	}
	return mw
}

// NewInvoker builds the configured client and wraps it as a correction
// client. It returns ports.NoCorrection when no provider is configured.
func (s Settings) NewInvoker(obs Observability) (ports.CorrectionClient, error) {
	if !s.Enabled() {
		return ports.NoCorrection, nil
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}

	providers := make(map[string]ProviderConfig, len(DefaultProviders))
	for name, pc := range DefaultProviders {
		providers[name] = pc
	}
	if s.BaseURL != "" {
		pc := providers[s.Provider]
		pc.BaseURL = s.BaseURL
		providers[s.Provider] = pc
	}

	reg := NewRegistry(RegistryConfig{
		Providers:         providers,
		DefaultTimeout:    s.RequestTimeout,
		DefaultMiddleware: s.Middleware(obs),
	})
	spec := s.Provider
	if s.Model != "" {
		spec += "/" + s.Model
	}
	client, err := reg.GetClient(spec)
	if err != nil {
		return nil, ports.NewConfigError("llm.provider", err)
	}

	temp := s.Temperature
	return NewCorrectionInvoker(client, InvokerOptions{
		Temperature: &temp,
		MaxTokens:   s.MaxTokens,
	}), nil
}
