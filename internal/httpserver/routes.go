package httpserver

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/reowatch/reowatch/internal/datastore"
	"github.com/reowatch/reowatch/internal/logger"
)

// HealthResponse is returned by /api/v1/health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Uptime  string `json:"uptime"`
	Cameras int    `json:"cameras"`
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

func (s *Server) initRoutes() {
	api := s.Echo.Group("/api/v1")
	api.GET("/health", s.handleHealth)
	api.GET("/cameras", s.handleCameras)
	api.GET("/artifacts", s.handleArtifacts)

	if s.metrics != nil {
		s.Echo.GET("/metrics", echo.WrapHandler(s.metrics))
	}
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: s.version,
		Uptime:  time.Since(s.started).Round(time.Second).String(),
		Cameras: len(s.cameras.Cameras()),
	})
}

func (s *Server) handleCameras(c echo.Context) error {
	return c.JSON(http.StatusOK, s.cameras.Cameras())
}

func (s *Server) handleArtifacts(c echo.Context) error {
	if s.artifacts == nil {
		return echo.NewHTTPError(http.StatusNotFound, "artifact index is disabled")
	}

	limit, err := parseLimit(c.QueryParam("limit"), datastore.DefaultLimit)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	rows, err := s.artifacts.List(c.Request().Context(), c.QueryParam("camera"), limit)
	if err != nil {
		s.log.Error("artifact query failed", logger.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "artifact query failed")
	}
	if rows == nil {
		rows = []datastore.Artifact{}
	}
	return c.JSON(http.StatusOK, rows)
}

// errorHandler renders errors as JSON
func (s *Server) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	msg := http.StatusText(code)
	if he, ok := err.(*echo.HTTPError); ok {
		code = he.Code
		if m, ok := he.Message.(string); ok {
			msg = m
		} else {
			msg = http.StatusText(code)
		}
	}

	if err := c.JSON(code, ErrorResponse{Error: msg}); err != nil {
		s.log.Debug("failed to write error response", logger.Error(err))
	}
}
