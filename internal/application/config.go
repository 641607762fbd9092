package application

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-soilcast/infrastructure/correction"
	"github.com/ahrav/go-soilcast/infrastructure/llm"
	"github.com/ahrav/go-soilcast/internal/domain"
	"github.com/ahrav/go-soilcast/internal/stepper"
)

// Config is the complete runtime configuration of the forecaster. Every field
// can be set from YAML and overridden from SOILCAST_* environment variables.
type Config struct {
	// HorizonHours is the number of hourly values in a forecast.
	HorizonHours int `yaml:"horizon_hours" envconfig:"SOILCAST_HORIZON_HOURS" validate:"gte=1,lte=720"`
	// HoursPerDay sets the window of Forecast.DailyAverages.
	HoursPerDay int `yaml:"hours_per_day" envconfig:"SOILCAST_HOURS_PER_DAY" validate:"gte=1,lte=168"`

	// CorrectionTimeout bounds the whole correction call, retries included.
	CorrectionTimeout time.Duration `yaml:"correction_timeout" envconfig:"SOILCAST_CORRECTION_TIMEOUT" validate:"gt=0"`
	// ExcerptStride is the spacing of trajectory states listed in the prompt.
	ExcerptStride int `yaml:"excerpt_stride" envconfig:"SOILCAST_EXCERPT_STRIDE" validate:"gte=1"`
	// PromptTemplate replaces the built-in prompt template when non-empty.
	PromptTemplate string `yaml:"prompt_template" envconfig:"SOILCAST_PROMPT_TEMPLATE"`

	// BatchConcurrency bounds the forecasts RunBatch computes at once.
	BatchConcurrency int `yaml:"batch_concurrency" envconfig:"SOILCAST_BATCH_CONCURRENCY" validate:"gte=1,lte=256"`

	Stepper stepper.Config          `yaml:"stepper"`
	Parser  correction.ParserConfig `yaml:"parser"`
	LLM     llm.Settings            `yaml:"llm"`
	Log     LogConfig               `yaml:"log"`
	Server  ServerConfig            `yaml:"server"`
}

// LogConfig selects the logger built by the CLI.
type LogConfig struct {
	Level  string `yaml:"level" envconfig:"SOILCAST_LOG_LEVEL" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" envconfig:"SOILCAST_LOG_FORMAT" validate:"oneof=console json"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr              string        `yaml:"addr" envconfig:"SOILCAST_SERVER_ADDR" validate:"required"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" envconfig:"SOILCAST_SERVER_READ_HEADER_TIMEOUT" validate:"gt=0"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout" envconfig:"SOILCAST_SERVER_SHUTDOWN_TIMEOUT" validate:"gt=0"`
	// MaxBodyBytes caps request bodies.
	MaxBodyBytes int64 `yaml:"max_body_bytes" envconfig:"SOILCAST_SERVER_MAX_BODY_BYTES" validate:"gte=1024"`
}

// DefaultConfig returns the configuration used when nothing is overridden.
// Correction is disabled until an LLM provider is set.
func DefaultConfig() Config {
	return Config{
		HorizonHours:      domain.DefaultHorizonHours,
		HoursPerDay:       24,
		CorrectionTimeout: correction.DefaultTimeout,
		ExcerptStride:     correction.DefaultExcerptStride,
		BatchConcurrency:  4,
		Stepper:           stepper.DefaultConfig(),
		Parser:            correction.DefaultParserConfig(),
		LLM:               llm.DefaultSettings(),
		Log:               LogConfig{Level: "info", Format: "console"},
		Server: ServerConfig{
			Addr:              ":8080",
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   10 * time.Second,
			MaxBodyBytes:      4 << 20,
		},
	}
}

var configValidator = validator.New()

// Validate checks every section of the configuration.
func (c Config) Validate() error {
	if err := configValidator.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidConfiguration, err)
	}
	return nil
}

// LoadConfig builds the configuration in layers: defaults, then the YAML file
// at path (skipped when path is empty), then variables from envFiles (".env"
// when none are given; missing files are ignored), then the process
// environment. The result is validated.
func LoadConfig(path string, envFiles ...string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := decodeYAML(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// decodeYAML decodes data over cfg, rejecting unknown fields. An empty
// document leaves cfg untouched.
func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// NewLogger builds a zap logger for c. The console format is meant for
// terminals, json for log collectors.
func (c LogConfig) NewLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", c.Level, err)
	}

	var zc zap.Config
	if c.Format == "json" {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}
	return zc.Build()
}
