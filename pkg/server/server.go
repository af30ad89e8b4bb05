// Package server provides the HTTP surface for supportd.
//
// The server is a thin boundary over the pipeline: it accepts inbound
// support messages for the queue, starts knowledge ingest workflows, and
// exposes health and metrics endpoints. All processing happens in the
// queue consumer and workflow worker, never in request handlers.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fyrsmithlabs/supportd/internal/channel"
	"github.com/fyrsmithlabs/supportd/internal/config"
	"github.com/fyrsmithlabs/supportd/internal/queue"
	"github.com/fyrsmithlabs/supportd/internal/workflows"
)

// Enqueuer accepts validated support messages for the queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, msg channel.Message) error
}

// Server represents the HTTP server.
type Server struct {
	config   config.ServerConfig
	echo     *echo.Echo
	producer Enqueuer
	ingest   workflows.Starter
}

// HealthResponse is the JSON response for /health endpoint.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// MessageRequest is the body for POST /api/messages/:channel.
type MessageRequest struct {
	BusinessID string            `json:"business_id"`
	PersonaID  string            `json:"persona_id,omitempty"`
	Content    string            `json:"content"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// MessageResponse acknowledges an accepted message.
type MessageResponse struct {
	ID string `json:"id"`
}

// KnowledgeRequest is the body for POST /api/knowledge.
type KnowledgeRequest struct {
	BusinessID string         `json:"business_id"`
	Content    string         `json:"content"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// KnowledgeResponse acknowledges a started ingest workflow.
type KnowledgeResponse struct {
	WorkflowID string `json:"workflow_id"`
}

// NewServer creates the HTTP server. Producer is required; ingest may be
// nil, in which case the knowledge endpoint reports unavailable.
func NewServer(cfg config.ServerConfig, producer Enqueuer, ingest workflows.Starter) (*Server, error) {
	if producer == nil {
		return nil, fmt.Errorf("producer is required")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())

	s := &Server{
		config:   cfg,
		echo:     e,
		producer: producer,
		ingest:   ingest,
	}
	s.registerRoutes()
	return s, nil
}

// registerRoutes registers all HTTP routes.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	s.echo.POST("/api/messages/:channel", s.handleMessage)
	s.echo.POST("/api/knowledge", s.handleKnowledge)
}

// handleHealth handles GET /health requests.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status:  "ok",
		Service: "supportd",
	})
}

// handleMessage accepts one inbound support message and enqueues it.
func (s *Server) handleMessage(c echo.Context) error {
	ch, err := channel.ParseChannel(c.Param("channel"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	var req MessageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	now := time.Now().UTC()
	msg := channel.Message{
		ID:         uuid.NewString(),
		BusinessID: req.BusinessID,
		PersonaID:  req.PersonaID,
		Channel:    ch,
		Content:    req.Content,
		Metadata:   req.Metadata,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.producer.Enqueue(c.Request().Context(), msg); err != nil {
		if errors.Is(err, queue.ErrValidationFailed) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		// Anything else is a transport failure, not a client error.
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}

	// Accepted means queued, not processed.
	return c.JSON(http.StatusAccepted, MessageResponse{ID: msg.ID})
}

// handleKnowledge starts a knowledge ingest workflow.
func (s *Server) handleKnowledge(c echo.Context) error {
	if s.ingest == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "knowledge ingest not configured")
	}

	var req KnowledgeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.BusinessID == "" || req.Content == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "business_id and content are required")
	}

	workflowID, err := s.ingest.StartIngest(c.Request().Context(), workflows.KnowledgeIngestInput{
		BusinessID: req.BusinessID,
		Content:    req.Content,
		Metadata:   req.Metadata,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}

	return c.JSON(http.StatusAccepted, KnowledgeResponse{WorkflowID: workflowID})
}

// Start starts the HTTP server and blocks until context is cancelled.
//
// Returns http.ErrServerClosed on graceful shutdown, or any other error
// encountered during startup or shutdown.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.config.Port)

	errCh := make(chan error, 1)
	go func() {
		if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("server start: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			s.config.ShutdownTimeout.Duration(),
		)
		defer cancel()

		if err := s.echo.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return http.ErrServerClosed
	}
}

// Echo returns the underlying Echo instance for registering additional
// routes.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}
