package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/pipelined/internal/checkpoint"
	"github.com/fyrsmithlabs/pipelined/internal/coordinator"
	"github.com/fyrsmithlabs/pipelined/internal/resumer"
)

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// Server exposes workflow operations over HTTP.
type Server struct {
	echo        *echo.Echo
	coord       *coordinator.Coordinator
	resumer     *resumer.Resumer
	checkpoints *checkpoint.Manager
	logger      *zap.Logger
	config      *Config
}

// NewServer creates the HTTP server. The gatherer backs GET /metrics.
func NewServer(coord *coordinator.Coordinator, res *resumer.Resumer, checkpoints *checkpoint.Manager, gatherer prometheus.Gatherer, logger *zap.Logger, cfg *Config) (*Server, error) {
	if coord == nil {
		return nil, fmt.Errorf("coordinator is required")
	}
	if res == nil {
		return nil, fmt.Errorf("resumer is required")
	}
	if checkpoints == nil {
		return nil, fmt.Errorf("checkpoint manager is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{Host: "localhost", Port: 8080}
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return err
		}
	})

	s := &Server{
		echo:        e,
		coord:       coord,
		resumer:     res,
		checkpoints: checkpoints,
		logger:      logger,
		config:      cfg,
	}
	s.registerRoutes(gatherer)

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes(gatherer prometheus.Gatherer) {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	v1 := s.echo.Group("/api/v1")
	v1.GET("/workflows", s.handleListWorkflows)
	v1.POST("/workflows", s.handleStartWorkflow)
	v1.GET("/workflows/:id/status", s.handleWorkflowStatus)
	v1.POST("/workflows/:id/run", s.handleRunWorkflow)
	v1.POST("/workflows/:id/resume", s.handleResumeWorkflow)
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// StartRequest is the request body for POST /api/v1/workflows.
type StartRequest struct {
	Request string `json:"request"`
}

// StartResponse is the response body for POST /api/v1/workflows.
type StartResponse struct {
	WorkflowID string `json:"workflow_id"`
}

// RejectionResponse is returned when the alignment gate rejects.
type RejectionResponse struct {
	Rejected bool   `json:"rejected"`
	Reason   string `json:"reason"`
}

// ListResponse is the response body for GET /api/v1/workflows.
type ListResponse struct {
	Workflows []*checkpoint.Summary `json:"workflows"`
}

// RunResponse is the response body for POST /api/v1/workflows/:id/run.
// Outcomes is absent when the workflow had already completed.
type RunResponse struct {
	WorkflowID string                         `json:"workflow_id"`
	Completed  bool                           `json:"completed"`
	Outcomes   map[string]coordinator.Outcome `json:"outcomes,omitempty"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleListWorkflows(c echo.Context) error {
	summaries, err := s.checkpoints.ListResumable(c.Request().Context())
	if err != nil {
		s.logger.Error("failed to list workflows", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list workflows")
	}
	if summaries == nil {
		summaries = []*checkpoint.Summary{}
	}
	return c.JSON(http.StatusOK, ListResponse{Workflows: summaries})
}

func (s *Server) handleStartWorkflow(c echo.Context) error {
	var req StartRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid start request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Request == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "request field is required")
	}

	id, err := s.coord.StartWorkflow(c.Request().Context(), req.Request)
	if err != nil {
		var alignErr *coordinator.AlignmentError
		if errors.As(err, &alignErr) {
			return c.JSON(http.StatusUnprocessableEntity, RejectionResponse{
				Rejected: true,
				Reason:   alignErr.Reason,
			})
		}
		s.logger.Error("failed to start workflow", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to start workflow")
	}

	return c.JSON(http.StatusCreated, StartResponse{WorkflowID: id})
}

func (s *Server) handleWorkflowStatus(c echo.Context) error {
	state, err := s.coord.GetWorkflowStatus(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, coordinator.ErrWorkflowNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "workflow not found")
		}
		s.logger.Error("failed to read workflow status", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to read workflow status")
	}
	return c.JSON(http.StatusOK, state)
}

func (s *Server) handleRunWorkflow(c echo.Context) error {
	id := c.Param("id")
	outcomes, err := s.coord.Run(c.Request().Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, coordinator.ErrWorkflowNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "workflow not found")
		case errors.Is(err, coordinator.ErrStageFailed):
			// The collaborator behind the stage failed, not this server.
			return echo.NewHTTPError(http.StatusBadGateway, err.Error())
		default:
			s.logger.Error("failed to run workflow", zap.Error(err))
			return echo.NewHTTPError(http.StatusInternalServerError, "failed to run workflow")
		}
	}

	return c.JSON(http.StatusOK, RunResponse{
		WorkflowID: id,
		Completed:  !s.checkpoints.Exists(id),
		Outcomes:   outcomes,
	})
}

func (s *Server) handleResumeWorkflow(c echo.Context) error {
	rc, err := s.resumer.Resume(c.Request().Context(), c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, resumer.ErrWorkflowNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "workflow not found")
		case errors.Is(err, resumer.ErrCheckpointInvalid):
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		default:
			s.logger.Error("failed to resume workflow", zap.Error(err))
			return echo.NewHTTPError(http.StatusInternalServerError, "failed to resume workflow")
		}
	}
	return c.JSON(http.StatusOK, rc)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}
