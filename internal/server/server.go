// Package server exposes workflow runs over HTTP: a JSON API to start and
// inspect runs, a websocket stream of lifecycle events in publish order, and
// a prometheus metrics endpoint.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"loom/internal/checkpoint"
	"loom/internal/engine"
	"loom/internal/graph"
	"loom/internal/logging"
	"loom/internal/utils/id"
)

// Server routes workflow runs to an engine.
type Server struct {
	engine      *engine.Engine
	workflows   map[string]*graph.CompiledGraph
	checkpoints checkpoint.Store
	hub         *Hub
	gatherer    prometheus.Gatherer
	logger      logging.Logger
	router      *gin.Engine
	httpServer  *http.Server

	// runCtx parents every run started over the API, so shutdown cancels
	// in-flight runs at their next attempt boundary.
	runCtx    context.Context
	runCancel context.CancelFunc
}

// Config collects the server's dependencies. Hub and Gatherer are optional;
// without them the event stream and metrics endpoints report unavailability.
type Config struct {
	Engine      *engine.Engine
	Workflows   map[string]*graph.CompiledGraph
	Checkpoints checkpoint.Store
	Hub         *Hub
	Gatherer    prometheus.Gatherer
	Logger      logging.Logger
	Debug       bool
}

// New assembles the HTTP surface.
func New(cfg Config) *Server {
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	runCtx, runCancel := context.WithCancel(context.Background())
	s := &Server{
		engine:      cfg.Engine,
		workflows:   cfg.Workflows,
		checkpoints: cfg.Checkpoints,
		hub:         cfg.Hub,
		gatherer:    cfg.Gatherer,
		logger:      logging.OrNop(cfg.Logger),
		router:      router,
		runCtx:      runCtx,
		runCancel:   runCancel,
	}

	api := router.Group("/api")
	api.POST("/runs", s.startRun)
	api.GET("/runs/:id/checkpoints", s.listCheckpoints)
	api.GET("/runs/:id/events", s.streamEvents)

	if s.gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	return s
}

// Handler returns the underlying HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// Start serves until the context is cancelled, then shuts down gracefully,
// cancelling any runs still in flight.
func (s *Server) Start(ctx context.Context, addr string) error {
	defer s.runCancel()
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // websocket connections stay open
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.ListenAndServe()
	}()
	s.logger.Info("HTTP server listening on %s", addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

type startRunRequest struct {
	Workflow string         `json:"workflow" binding:"required"`
	Input    map[string]any `json:"input"`
}

// startRun launches a run asynchronously and returns its identifier. Clients
// follow progress via the event stream and checkpoint endpoints.
func (s *Server) startRun(c *gin.Context) {
	var req startRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	g, ok := s.workflows[req.Workflow]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown workflow: " + req.Workflow})
		return
	}

	runID := id.NewRunID()
	go func() {
		if _, err := s.engine.RunWithID(s.runCtx, g, runID, req.Input); err != nil {
			s.logger.Error("Run %s failed: %v", runID, err)
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{"run_id": runID, "workflow": req.Workflow})
}

func (s *Server) listCheckpoints(c *gin.Context) {
	if s.checkpoints == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "checkpointing is not enabled"})
		return
	}
	records, err := s.checkpoints.List(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"run_id": c.Param("id"), "checkpoints": records})
}
