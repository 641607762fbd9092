package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/ahrav/go-soilcast/infrastructure/fileio"
	"github.com/ahrav/go-soilcast/infrastructure/httpapi"
	"github.com/ahrav/go-soilcast/infrastructure/middleware"
	"github.com/ahrav/go-soilcast/internal/application"
	"github.com/ahrav/go-soilcast/internal/ports"
)

// DefaultOutput is where the forecast is written when --output is not given.
const DefaultOutput = "soil_moisture_forecast.json"

// rootOptions holds the flags shared by every command.
type rootOptions struct {
	configPath string
	verbose    bool
	logLevel   string
	logFormat  string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	var output string

	cmd := &cobra.Command{
		Use:   "predict_soil_moisture <initial_state.json> <weather_data.json>",
		Short: "Forecast hourly soil moisture for the next 72 hours",
		Long: `predict_soil_moisture unrolls a deterministic soil-water model over an
hourly weather forecast and, when an LLM provider is configured, asks the
model to correct the projected series. Any correction failure falls back to
the deterministic forecast.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPredict(cmd, opts, args[0], args[1], output)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&opts.configPath, "config", "c", "", "YAML configuration file")
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")
	pf.StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn or error")
	pf.StringVar(&opts.logFormat, "log-format", "", "Log format: console or json")

	cmd.Flags().StringVarP(&output, "output", "o", DefaultOutput, "Forecast output path (.zst to compress)")

	cmd.AddCommand(newServeCmd(opts))
	return cmd
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve forecasts over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")
	return cmd
}

// setup loads the configuration, applies flag overrides and builds the
// logger.
func setup(cmd *cobra.Command, opts *rootOptions) (application.Config, *zap.Logger, error) {
	cfg, err := application.LoadConfig(opts.configPath)
	if err != nil {
		return application.Config{}, nil, err
	}

	if cmd.Flags().Changed("log-level") {
		cfg.Log.Level = opts.logLevel
	}
	if cmd.Flags().Changed("log-format") {
		cfg.Log.Format = opts.logFormat
	}
	if opts.verbose {
		cfg.Log.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return application.Config{}, nil, err
	}

	logger, err := cfg.Log.NewLogger()
	if err != nil {
		return application.Config{}, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, logger, nil
}

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}

func runPredict(cmd *cobra.Command, opts *rootOptions, statePath, weatherPath, output string) error {
	cfg, logger, err := setup(cmd, opts)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	pipeline, err := application.NewPipelineFromConfig(cfg, nil, application.Observability{
		Logger:  logger,
		Metrics: ports.NoopMetrics{},
		Tracer:  otel.Tracer("soilcast"),
	})
	if err != nil {
		return err
	}

	initial, err := fileio.LoadInitialState(statePath)
	if err != nil {
		return err
	}
	weather, err := fileio.LoadWeather(weatherPath)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	forecast, err := pipeline.Run(ctx, initial, weather)
	if err != nil {
		return err
	}
	if err := fileio.WriteForecast(output, forecast); err != nil {
		return err
	}

	logger.Debug("forecast written",
		zap.String("forecast_id", forecast.ID),
		zap.String("path", output),
		zap.Bool("fallback", forecast.Metadata.Fallback),
	)
	fmt.Fprintf(cmd.OutOrStdout(), "Forecast saved to %s\n", output)
	return nil
}

func runServe(cmd *cobra.Command, opts *rootOptions, addr string) error {
	cfg, logger, err := setup(cmd, opts)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	if addr != "" {
		cfg.Server.Addr = addr
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := middleware.NewPrometheusMetrics(reg)

	pipeline, err := application.NewPipelineFromConfig(cfg, nil, application.Observability{
		Logger:  logger,
		Metrics: metrics,
		Tracer:  otel.Tracer("soilcast"),
	})
	if err != nil {
		return err
	}

	srv, err := httpapi.NewServer(pipeline,
		httpapi.WithLogger(logger),
		httpapi.WithMetrics(metrics),
		httpapi.WithGatherer(reg),
		httpapi.WithMaxBodyBytes(cfg.Server.MaxBodyBytes),
		httpapi.WithBatchConcurrency(cfg.BatchConcurrency),
		httpapi.WithTimeouts(cfg.Server.ReadHeaderTimeout, cfg.Server.ShutdownTimeout),
	)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	logger.Info("starting forecast server",
		zap.String("addr", cfg.Server.Addr),
		zap.Bool("correction_enabled", cfg.LLM.Enabled()),
		zap.Int("horizon_hours", cfg.HorizonHours),
	)
	return srv.ListenAndServe(ctx, cfg.Server.Addr)
}
