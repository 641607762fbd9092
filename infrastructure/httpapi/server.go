// Package httpapi exposes the forecast pipeline over HTTP.
//
// Routes:
//   - POST /v1/forecasts        one forecast
//   - POST /v1/forecasts/batch  several forecasts, results in request order
//   - GET  /healthz             liveness
//   - GET  /metrics             Prometheus exposition
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/ahrav/go-soilcast/internal/application"
	"github.com/ahrav/go-soilcast/internal/domain"
	"github.com/ahrav/go-soilcast/internal/ports"
)

// Defaults applied when no option overrides them.
const (
	DefaultMaxBodyBytes      = 4 << 20
	DefaultBatchConcurrency  = 4
	DefaultMaxBatchSize      = 100
	DefaultReadHeaderTimeout = 5 * time.Second
	DefaultShutdownTimeout   = 10 * time.Second
)

// Forecaster is the part of the pipeline the HTTP layer needs.
type Forecaster interface {
	Run(ctx context.Context, initial domain.AtmosphericState, weather []domain.HourlyWeatherInput) (*domain.Forecast, error)
	RunBatch(ctx context.Context, reqs []application.Request, concurrency int) []application.Result
}

// Server routes HTTP requests to a Forecaster.
type Server struct {
	forecaster Forecaster
	logger     *zap.Logger
	metrics    ports.MetricsCollector
	gatherer   prometheus.Gatherer

	maxBodyBytes      int64
	batchConcurrency  int
	maxBatchSize      int
	readHeaderTimeout time.Duration
	shutdownTimeout   time.Duration

	// inflight collapses concurrent requests with identical bodies into one
	// pipeline run; flights tracks who is still waiting on each run.
	inflight singleflight.Group
	mu       sync.Mutex
	flights  map[string]*flight
	router   *chi.Mux
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics records request latency in m.
func WithMetrics(m ports.MetricsCollector) Option {
	return func(s *Server) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithGatherer serves g on /metrics instead of the default registry.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		if g != nil {
			s.gatherer = g
		}
	}
}

// WithMaxBodyBytes caps request bodies.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBodyBytes = n
		}
	}
}

// WithBatchConcurrency bounds the forecasts a batch request runs at once.
func WithBatchConcurrency(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.batchConcurrency = n
		}
	}
}

// WithMaxBatchSize bounds the requests accepted in one batch.
func WithMaxBatchSize(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBatchSize = n
		}
	}
}

// WithTimeouts sets the read-header timeout of the listener and the grace
// period given to in-flight requests on shutdown.
func WithTimeouts(readHeader, shutdown time.Duration) Option {
	return func(s *Server) {
		if readHeader > 0 {
			s.readHeaderTimeout = readHeader
		}
		if shutdown > 0 {
			s.shutdownTimeout = shutdown
		}
	}
}

// NewServer builds a Server with its routes mounted.
func NewServer(f Forecaster, opts ...Option) (*Server, error) {
	if f == nil {
		return nil, fmt.Errorf("%w: forecaster must not be nil", domain.ErrInvalidConfiguration)
	}
	s := &Server{
		forecaster:        f,
		logger:            zap.NewNop(),
		metrics:           ports.NoopMetrics{},
		gatherer:          prometheus.DefaultGatherer,
		maxBodyBytes:      DefaultMaxBodyBytes,
		batchConcurrency:  DefaultBatchConcurrency,
		maxBatchSize:      DefaultMaxBatchSize,
		readHeaderTimeout: DefaultReadHeaderTimeout,
		shutdownTimeout:   DefaultShutdownTimeout,
		router:            chi.NewRouter(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.mountRoutes()
	return s, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) mountRoutes() {
	s.router.Use(chimw.RequestID)
	s.router.Use(s.recoverer)
	s.router.Use(s.observe)

	s.router.Get("/healthz", s.handleHealth)
	s.router.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	s.router.Post("/v1/forecasts", s.handleForecast)
	s.router.Post("/v1/forecasts/batch", s.handleBatch)
}

// Serve accepts connections on ln until ctx is canceled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: s.readHeaderTimeout,
		ErrorLog:          zap.NewStdLog(s.logger),
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server stopped: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.shutdownTimeout)
	defer cancel()
	s.logger.Info("http server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server stopped: %w", err)
	}
	return nil
}

// ListenAndServe listens on addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// observe logs every request and records its latency.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)

		s.metrics.RecordLatency(ports.MetricHTTPLatency, elapsed, map[string]string{
			"route":  route,
			"method": r.Method,
			"status": strconv.Itoa(status),
		})
		s.logger.Debug("http request",
			zap.String("request_id", chimw.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("elapsed", elapsed),
		)
	})
}

func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				s.logger.Error("panic in http handler",
					zap.Any("panic", rec),
					zap.String("request_id", chimw.GetReqID(r.Context())),
					zap.Stack("stack"),
				)
				writeError(w, r, http.StatusInternalServerError, ErrorDetail{Code: codeInternal, Message: "an unexpected error occurred"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}
