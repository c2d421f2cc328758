// Package server exposes the pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/pathforge/pathforge/core"
	"github.com/pathforge/pathforge/orchestration"
	"github.com/pathforge/pathforge/telemetry"
)

// Runner executes pipeline requests.
type Runner interface {
	Run(ctx context.Context, req orchestration.Request) (*orchestration.Result, error)
}

// ToolLister lists registered tools.
type ToolLister interface {
	List() []core.ToolDescriptor
}

// BreakerReporter reports circuit breaker states by target.
type BreakerReporter interface {
	BreakerStates() map[string]string
}

// TraceStore returns recently exported trace summaries.
type TraceStore interface {
	Recent(ctx context.Context, n int64) ([]telemetry.Summary, error)
}

// Options configures the server. Traces is optional.
type Options struct {
	Runner   Runner
	Tools    ToolLister
	Breakers BreakerReporter
	Traces   TraceStore
	// Defaults supplies the stage toggles for requests that omit them.
	Defaults core.PipelineConfig
	Config   core.HTTPConfig
	Version  string
	Logger   core.Logger
}

// Server is the HTTP surface.
type Server struct {
	echo    *echo.Echo
	options Options
	logger  core.Logger
}

// New builds the server and registers its routes.
func New(opts Options) (*Server, error) {
	if opts.Runner == nil || opts.Tools == nil || opts.Breakers == nil {
		return nil, core.NewFrameworkError("server.New", "dependency",
			fmt.Errorf("runner, tool lister and breaker reporter are required: %w", core.ErrMissingConfiguration))
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	if opts.Config.ReadTimeout > 0 {
		e.Server.ReadTimeout = opts.Config.ReadTimeout
	}
	if opts.Config.WriteTimeout > 0 {
		e.Server.WriteTimeout = opts.Config.WriteTimeout
	}

	s := &Server{
		echo:    e,
		options: opts,
		logger:  core.ComponentLogger(opts.Logger, "pathforge/http"),
	}

	e.Use(middleware.RequestID())
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := map[string]interface{}{
				"operation":  "http_request",
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency_ms": v.Latency.Milliseconds(),
				"request_id": v.RequestID,
			}
			if v.Error != nil {
				fields["error"] = v.Error.Error()
				s.logger.Warn("Request failed", fields)
				return nil
			}
			s.logger.Debug("Request served", fields)
			return nil
		},
	}))

	s.RegisterRoutes(e)
	return s, nil
}

// RegisterRoutes registers routes with the echo server.
func (s *Server) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", s.Health)
	e.POST("/v1/paths", s.CreatePath)
	e.GET("/v1/tools", s.ListTools)
	e.GET("/v1/traces", s.ListTraces)
}

// Handler returns the HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler { return s.echo }

// Start listens on addr until Shutdown.
func (s *Server) Start(addr string) error {
	s.logger.Info("HTTP server listening", map[string]interface{}{
		"operation": "http_start",
		"addr":      addr,
	})
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Health reports liveness and the state of every circuit breaker. An open
// breaker degrades the status but the service stays up.
func (s *Server) Health(c echo.Context) error {
	states := s.options.Breakers.BreakerStates()
	status := "healthy"
	for _, state := range states {
		if state != "closed" {
			status = "degraded"
			break
		}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":   status,
		"version":  s.options.Version,
		"breakers": states,
	})
}

// PathRequest is the body of POST /v1/paths. Omitted toggles take the
// configured defaults.
type PathRequest struct {
	URL       string `json:"url"`
	Enrich    *bool  `json:"enrich,omitempty"`
	Summarize *bool  `json:"summarize,omitempty"`
	Format    string `json:"format,omitempty"`
}

// CreatePath runs the pipeline for one list.
func (s *Server) CreatePath(c echo.Context) error {
	var body PathRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if body.URL == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "url is required"})
	}

	req := orchestration.Request{
		RequestID: c.Response().Header().Get(echo.HeaderXRequestID),
		SourceURL: body.URL,
		Enrich:    s.options.Defaults.Enrich,
		Summarize: s.options.Defaults.Summarize,
		Format:    body.Format,
	}
	if body.Enrich != nil {
		req.Enrich = *body.Enrich
	}
	if body.Summarize != nil {
		req.Summarize = *body.Summarize
	}

	result, err := s.options.Runner.Run(c.Request().Context(), req)
	if err != nil {
		return c.JSON(statusFor(err), map[string]interface{}{
			"error":  err.Error(),
			"result": result,
		})
	}
	return c.JSON(http.StatusOK, result)
}

// statusFor maps a failed run onto an HTTP status. A list that could not
// be fetched is the upstream's fault; one that could not be understood is
// the caller's.
func statusFor(err error) int {
	var parseErr *core.ParseError
	switch {
	case errors.As(err, &parseErr) && core.IsRetryable(err):
		return http.StatusBadGateway
	case errors.As(err, &parseErr):
		return http.StatusUnprocessableEntity
	case core.IsInputError(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// ListTools returns every registered tool descriptor.
func (s *Server) ListTools(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"tools": s.options.Tools.List(),
	})
}

// ListTraces returns the newest trace summaries, ?limit=N (default 20).
func (s *Server) ListTraces(c echo.Context) error {
	if s.options.Traces == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "trace store not configured"})
	}
	limit := int64(20)
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 || n > 1000 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "limit must be between 1 and 1000"})
		}
		limit = n
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	traces, err := s.options.Traces.Recent(ctx, limit)
	if err != nil {
		s.logger.Error("Failed to read traces", map[string]interface{}{
			"operation": "list_traces",
			"error":     err.Error(),
		})
		return c.JSON(http.StatusBadGateway, map[string]string{"error": "trace store unavailable"})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"traces": traces,
	})
}
