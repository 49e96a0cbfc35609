// Package adminserver runs the optional side HTTP server that exposes the
// dispatcher's live health and statistics, the way the teacher's
// internal/api server ran alongside the core relay engine.
package adminserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/blazeapi/blaze/internal/endpoint"
	"github.com/blazeapi/blaze/internal/stats"
)

// Server exposes /healthz, /stats, /endpoints, /metrics, and a best-effort
// progress websocket at /ws/progress.
type Server struct {
	addr   string
	logger *zap.Logger

	lb      *endpoint.LoadBalancer
	tracker *stats.Tracker

	httpServer *http.Server
	upgrader   websocket.Upgrader
}

// New builds an admin server bound to addr, observing lb and tracker. It
// adds no new dispatch semantics - it only reads state the dispatcher
// already maintains.
func New(addr string, lb *endpoint.LoadBalancer, tracker *stats.Tracker, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		addr:    addr,
		logger:  logger,
		lb:      lb,
		tracker: tracker,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}

	router.GET("/healthz", s.handleHealthz)
	router.GET("/stats", s.handleStats)
	router.GET("/endpoints", s.handleEndpoints)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(stats.DefaultRegistry().Gatherer(), promhttp.HandlerOpts{})))
	router.GET("/ws/progress", s.handleProgressWS)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: router,
	}
	return s
}

// Start begins serving in the background. It returns immediately; errors
// other than a clean shutdown are logged.
func (s *Server) Start() {
	go func() {
		s.logger.Info("admin server listening", zap.String("addr", s.addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("admin server stopped", zap.Error(err))
		}
	}()
}

// Shutdown gracefully stops the admin server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.tracker.Snapshot())
}

func (s *Server) handleEndpoints(c *gin.Context) {
	eps := s.lb.Endpoints()
	out := make([]endpoint.Stats, len(eps))
	for i, e := range eps {
		out[i] = e.Snapshot()
	}
	c.JSON(http.StatusOK, out)
}

// handleProgressWS pushes a stats snapshot once per second to a connected
// monitor, a single best-effort channel generalized from the teacher's
// tier-aware broadcaster fan-out.
func (s *Server) handleProgressWS(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case <-ticker.C:
			data, err := json.Marshal(s.tracker.Snapshot())
			if err != nil {
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.logger.Debug("websocket write failed", zap.Error(err))
				return
			}
		}
	}
}
