// Package http serves health, Prometheus metrics and read-only views of the
// per-group artifacts. Nothing here mutates pipeline state.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docmind/internal/logging"
	"github.com/fyrsmithlabs/docmind/internal/store"
)

const (
	defaultSummaryLimit = 50
	maxSummaryLimit     = 500
)

// Views is the read side of the metadata store.
type Views interface {
	MindMap(ctx context.Context, group string) (*store.MindMap, error)
	Summaries(ctx context.Context, group, fileName string, limit int) ([]store.Summary, error)
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// Server provides the HTTP endpoints of docmind.
type Server struct {
	echo     *echo.Echo
	views    Views
	checks   map[string]HealthCheck
	gatherer prometheus.Gatherer
	metrics  *HTTPMetrics
	logger   *logging.Logger
	config   *Config
}

// Option configures a Server.
type Option func(*Server)

// WithHealthCheck adds a named dependency check to GET /health.
func WithHealthCheck(name string, check HealthCheck) Option {
	return func(s *Server) { s.checks[name] = check }
}

// WithGatherer serves the given registry on GET /metrics instead of the
// default one.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithMetrics records request metrics.
func WithMetrics(m *HTTPMetrics) Option {
	return func(s *Server) { s.metrics = m }
}

// NewServer creates a new HTTP server.
func NewServer(cfg *Config, views Views, logger *logging.Logger, opts ...Option) (*Server, error) {
	if views == nil {
		return nil, fmt.Errorf("views cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{Host: "localhost", Port: 8080}
	}

	s := &Server{
		views:    views,
		checks:   map[string]HealthCheck{},
		gatherer: prometheus.DefaultGatherer,
		logger:   logger.Named("http"),
		config:   cfg,
	}
	for _, opt := range opts {
		opt(s)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	if s.metrics != nil {
		e.Use(s.metrics.MetricsMiddleware())
	}
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			s.logger.Debug(c.Request().Context(), "http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return nil
		}
	})

	s.echo = e
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))

	v1 := s.echo.Group("/api/v1")
	v1.GET("/groups/:group/mindmap", s.handleMindMap)
	v1.GET("/groups/:group/summaries", s.handleSummaries)
}

// Echo exposes the router for tests and extra routes.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

func (s *Server) handleHealth(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	resp := HealthResponse{Status: "ok", Checks: map[string]string{}}
	for _, name := range names {
		if err := s.checks[name](ctx); err != nil {
			resp.Status = "degraded"
			resp.Checks[name] = err.Error()
			continue
		}
		resp.Checks[name] = "ok"
	}

	code := http.StatusOK
	if resp.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, resp)
}

func (s *Server) handleMindMap(c echo.Context) error {
	group := c.Param("group")
	m, err := s.views.MindMap(c.Request().Context(), group)
	switch {
	case errors.Is(err, store.ErrGroupNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "group not found")
	case errors.Is(err, store.ErrMindMapNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "group has no mindmap yet")
	case err != nil:
		s.logger.Warn(c.Request().Context(), "failed to load mindmap", zap.String("group", group), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load mindmap")
	}

	return c.JSON(http.StatusOK, MindMapResponse{
		Group:     group,
		MindMap:   json.RawMessage(m.Data),
		UpdatedAt: m.UpdatedAt,
	})
}

func (s *Server) handleSummaries(c echo.Context) error {
	group := c.Param("group")
	limit := defaultSummaryLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxSummaryLimit {
			return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("limit must be between 1 and %d", maxSummaryLimit))
		}
		limit = n
	}

	rows, err := s.views.Summaries(c.Request().Context(), group, c.QueryParam("file"), limit)
	switch {
	case errors.Is(err, store.ErrGroupNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "group not found")
	case err != nil:
		s.logger.Warn(c.Request().Context(), "failed to list summaries", zap.String("group", group), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list summaries")
	}

	resp := SummariesResponse{Group: group, Summaries: make([]SummaryItem, len(rows))}
	for i, r := range rows {
		resp.Summaries[i] = SummaryItem{FileName: r.FileName, Summary: r.SummaryText, CreatedAt: r.CreatedAt}
	}
	return c.JSON(http.StatusOK, resp)
}

// Start starts the HTTP server. It returns http.ErrServerClosed after
// Shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}
