// Package server exposes the pipeline registry over HTTP in the shape chat
// front ends expect from a pipelines host.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/neuromechanist/openwebui-piplines/internal/observe"
	"github.com/neuromechanist/openwebui-piplines/variants"
)

// Config holds the HTTP settings.
type Config struct {
	APIKey          string        // bearer key; empty disables auth
	RequestTimeout  time.Duration // per chat completion, 0 means none
	ShutdownTimeout time.Duration
}

// Server wraps an echo instance serving a registry.
type Server struct {
	echo     *echo.Echo
	registry *variants.Registry
	logger   *zap.Logger
	cfg      Config
}

// New builds the routes. metrics may be nil.
func New(cfg Config, registry *variants.Registry, metrics *observe.Metrics, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURIPath: true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			logger.Debug("http request",
				zap.String("method", v.Method),
				zap.String("path", v.URIPath),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
			)
			return nil
		},
	}))

	// Unified HTTP error handler with structured JSON and logging
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		if code >= http.StatusInternalServerError {
			req := c.Request()
			logger.Error("http error",
				zap.Int("status", code),
				zap.String("method", req.Method),
				zap.String("path", req.URL.Path),
				zap.Error(err),
			)
		}
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]any{"detail": msg})
		}
	}

	s := &Server{echo: e, registry: registry, logger: logger, cfg: cfg}

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	if metrics != nil {
		e.GET("/metrics", echo.WrapHandler(metrics.Handler()))
	}

	auth := s.authenticate
	e.GET("/models", s.listModels, auth)

	v1 := e.Group("/v1", auth)
	v1.GET("/models", s.listModels)
	v1.GET("/pipelines", s.listPipelines)
	v1.POST("/chat/completions", s.chatCompletions)
	v1.GET("/:id/valves", s.getValves)
	v1.GET("/:id/valves/spec", s.getValvesSpec)
	v1.POST("/:id/valves/update", s.updateValves)

	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// authenticate requires "Authorization: Bearer <key>" when a key is configured.
func (s *Server) authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if s.cfg.APIKey == "" {
			return next(c)
		}
		if c.Request().Header.Get(echo.HeaderAuthorization) != "Bearer "+s.cfg.APIKey {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid API key")
		}
		return next(c)
	}
}

// Run serves on addr until ctx is canceled, running the pipelines' startup
// and shutdown hooks around it.
func (s *Server) Run(ctx context.Context, addr string) error {
	if err := s.registry.Startup(ctx); err != nil {
		return fmt.Errorf("pipeline startup: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", addr))
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case serveErr = <-errCh:
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("http shutdown", zap.Error(err))
	}
	if err := s.registry.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("pipeline shutdown", zap.Error(err))
	}
	return serveErr
}
