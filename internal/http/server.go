// Package http serves the ragd document and question-answering API.
package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/fyrsmithlabs/ragd/internal/config"
	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/services"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const userIDKey = "user_id"

// Server provides HTTP endpoints for ragd.
type Server struct {
	echo     *echo.Echo
	services services.Registry
	logger   *logging.Logger
	config   config.ServerConfig
	metrics  *HTTPMetrics
}

// NewServer creates a new HTTP server.
func NewServer(reg services.Registry, logger *logging.Logger, cfg config.ServerConfig) (*Server, error) {
	if reg == nil {
		return nil, errors.New("service registry cannot be nil")
	}
	if reg.Ingest() == nil || reg.QA() == nil || reg.Documents() == nil {
		return nil, errors.New("ingest, qa and documents services are required")
	}
	if logger == nil {
		return nil, errors.New("logger is required for request tracking and debugging")
	}
	if cfg.Host == "" && cfg.Port == 0 {
		cfg = config.Default().Server
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:     e,
		services: reg,
		logger:   logger.Named("http"),
		config:   cfg,
		metrics:  NewHTTPMetrics(logger),
	}
	e.HTTPErrorHandler = s.errorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(s.metrics.MetricsMiddleware())
	e.Use(s.requestLogger())
	if timeout := cfg.RequestTimeout.Duration(); timeout > 0 {
		e.Use(middleware.ContextTimeout(timeout))
	}

	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1", s.requireUser)
	v1.POST("/documents/upload", s.handleUpload)
	v1.GET("/documents", s.handleListDocuments)
	v1.POST("/documents/select", s.handleSelectDocuments)
	v1.GET("/documents/search", s.handleSearchDocuments)
	v1.POST("/query", s.handleQuery)
}

// requestLogger logs one line per request and puts the request id on the
// request context.
func (s *Server) requestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()
			ctx := logging.WithRequestID(req.Context(), c.Response().Header().Get(echo.HeaderXRequestID))
			c.SetRequest(req.WithContext(ctx))

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			s.logger.Info(c.Request().Context(), "http request",
				zap.String("method", req.Method),
				zap.String("uri", req.RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
			)
			return nil
		}
	}
}

// requireUser rejects requests without an X-User-ID header.
func (s *Server) requireUser(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID := strings.TrimSpace(c.Request().Header.Get(UserIDHeader))
		if userID == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "Missing "+UserIDHeader+" header")
		}
		c.Set(userIDKey, userID)
		c.SetRequest(c.Request().WithContext(logging.WithUserID(c.Request().Context(), userID)))
		return next(c)
	}
}

func userID(c echo.Context) string {
	id, _ := c.Get(userIDKey).(string)
	return id
}

// ServeHTTP lets the server be mounted or exercised with httptest.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Start starts the HTTP server. It returns http.ErrServerClosed after
// Shutdown.
func (s *Server) Start() error {
	addr := s.config.Addr()
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}
