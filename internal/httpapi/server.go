// Package httpapi exposes the interview coordinator over HTTP: the control
// endpoints a front end drives (start/respond/reset), a WebSocket stream of
// bus activity, and health/metrics. Routing follows cmd/tarsy's gin setup;
// the WebSocket upgrade follows pkg/api's coder/websocket handler.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/bookinterview/coordinator/internal/metrics"
	"github.com/bookinterview/coordinator/internal/supervisor"
	"github.com/bookinterview/coordinator/internal/wsbridge"
)

// respondRequest is the JSON body for POST /interview/response.
type respondRequest struct {
	Text string `json:"text" binding:"required"`
}

// Server is the HTTP surface over one Supervisor-owned interview.
type Server struct {
	engine  *gin.Engine
	sup     *supervisor.Supervisor
	bridge  *wsbridge.Bridge
	metrics *metrics.Registry
	promReg *prometheus.Registry
	version string
}

// NewServer builds the gin router. promReg is the Prometheus registry
// backing metrics (tests should pass a fresh prometheus.NewRegistry()).
// version is reported from /health; callers with no build-info version to
// report may pass an empty string.
func NewServer(sup *supervisor.Supervisor, promReg *prometheus.Registry, version string) *Server {
	reg := metrics.NewRegistry(promReg)
	sup.SetMetrics(reg)

	s := &Server{
		engine:  gin.Default(),
		sup:     sup,
		bridge:  wsbridge.New(sup.Bus, wsbridge.DefaultWriteTimeout),
		metrics: reg,
		promReg: promReg,
		version: version,
	}
	s.routes()
	return s
}

// Handler returns the underlying http.Handler, for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() {
	s.engine.GET("/health", s.handleHealth)
	s.engine.GET("/metrics", gin.WrapH(metrics.Handler(s.promReg)))
	s.engine.GET("/ws", s.handleWebSocket)

	interview := s.engine.Group("/interview")
	interview.POST("/start", s.handleStart)
	interview.POST("/response", s.handleRespond)
	interview.POST("/reset", s.handleReset)
	interview.GET("/state", s.handleState)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"version": s.version,
	})
}

func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		return
	}
	s.bridge.HandleConnection(c.Request.Context(), conn)
}

func (s *Server) handleStart(c *gin.Context) {
	if err := s.sup.State.Start(); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, s.sup.State.Snapshot())
}

func (s *Server) handleRespond(c *gin.Context) {
	var req respondRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	snap := s.sup.State.Snapshot()
	if err := s.sup.State.RecordResponse(snap.CurrentTopic, req.Text); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

func (s *Server) handleReset(c *gin.Context) {
	s.sup.State.Reset()
	c.JSON(http.StatusOK, gin.H{"status": "reset"})
}

func (s *Server) handleState(c *gin.Context) {
	c.JSON(http.StatusOK, s.sup.State.Snapshot())
}

// Run starts the HTTP server on addr and blocks until ctx is cancelled,
// then shuts it down with a bounded grace period.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler()}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
