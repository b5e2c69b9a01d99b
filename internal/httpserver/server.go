// Package httpserver exposes a small read-only JSON status API and the
// Prometheus metrics endpoint.
package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/reowatch/reowatch/internal/datastore"
	"github.com/reowatch/reowatch/internal/errors"
	"github.com/reowatch/reowatch/internal/logger"
	"github.com/reowatch/reowatch/internal/orchestrator"
)

// shutdownTimeout bounds a graceful server stop.
const shutdownTimeout = 5 * time.Second

// CameraLister reports per-camera status.
type CameraLister interface {
	Cameras() []orchestrator.CameraStatus
}

// ArtifactLister queries the artifact index.
type ArtifactLister interface {
	List(ctx context.Context, camera string, limit int) ([]datastore.Artifact, error)
}

// Server is the status API.
type Server struct {
	Echo      *echo.Echo
	listen    string
	version   string
	started   time.Time
	cameras   CameraLister
	artifacts ArtifactLister
	metrics   http.Handler
	log       logger.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithArtifacts enables /api/v1/artifacts.
func WithArtifacts(a ArtifactLister) Option {
	return func(s *Server) { s.artifacts = a }
}

// WithMetrics enables /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// WithVersion sets the version reported by /api/v1/health.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// New builds the server and registers its routes.
func New(listen string, cameras CameraLister, opts ...Option) *Server {
	s := &Server{
		Echo:    echo.New(),
		listen:  listen,
		started: time.Now(),
		cameras: cameras,
		log:     logger.Global().Module("httpserver"),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.Echo.HideBanner = true
	s.Echo.HidePort = true
	s.Echo.HTTPErrorHandler = s.errorHandler

	s.Echo.Use(middleware.Recover())
	s.setupRequestLogger()
	s.initRoutes()
	return s
}

// Run serves until ctx is cancelled and then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("status API listening", logger.String("address", s.listen))
		errCh <- s.Echo.Start(s.listen)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return serveError(err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := s.Echo.Shutdown(shutdownCtx); err != nil {
		s.log.Warn("status API shutdown failed", logger.Error(err))
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return serveError(err)
	}
	return nil
}

func serveError(err error) error {
	return errors.New(err).
		Component("httpserver").
		Category(errors.CategoryNetwork).
		Context("operation", "serve").
		Build()
}

// setupRequestLogger logs every request through the module logger
func (s *Server) setupRequestLogger() {
	reqLog := s.log.Module("request")

	s.Echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogMethod:   true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			fields := []logger.Field{
				logger.String("method", v.Method),
				logger.String("uri", v.URI),
				logger.Int("status", v.Status),
				logger.Duration("latency", v.Latency),
				logger.String("remote_ip", v.RemoteIP),
			}
			msg := fmt.Sprintf("%s %s %d", v.Method, v.URI, v.Status)

			switch {
			case v.Status >= 500:
				reqLog.Error(msg, append(fields, logger.Error(v.Error))...)
			case v.Status >= 400:
				reqLog.Warn(msg, fields...)
			default:
				reqLog.Debug(msg, fields...)
			}
			return nil
		},
	}))
}

// parseLimit reads ?limit=, returning def when absent
func parseLimit(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, errors.NewStd("limit must be a positive integer")
	}
	return n, nil
}
