// Package api serves the local control API for a running session.
package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"

	"github.com/fakeyudi/respira/internal/ledger"
	"github.com/fakeyudi/respira/internal/logging"
	"github.com/fakeyudi/respira/internal/session"
)

// Controller is the part of the session controller the API drives.
type Controller interface {
	Snapshot() session.Snapshot
	Pause() error
	Resume() error
	Stop() (session.Result, error)
	ToggleAmbient(key string) (bool, error)
	SetAmbientVolume(key string, level float64) error
}

// StatsSource reads the ledger.
type StatsSource interface {
	Load(ctx context.Context) ledger.Stats
}

// Server is the control API server.
type Server struct {
	ctl    Controller
	stats  StatsSource
	log    *log.Logger
	router *gin.Engine
}

// NewServer creates the server and registers its routes.
func NewServer(ctl Controller, stats StatsSource, logger *log.Logger) *Server {
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		ctl:    ctl,
		stats:  stats,
		log:    logging.OrDiscard(logger),
		router: router,
	}
	router.Use(s.requestLog)

	api := router.Group("/api")
	{
		api.GET("/session", s.handleSession)
		api.POST("/session/pause", s.handlePause)
		api.POST("/session/resume", s.handleResume)
		api.POST("/session/stop", s.handleStop)
		api.POST("/ambient/:key/toggle", s.handleToggle)
		api.PUT("/ambient/:key/volume", s.handleVolume)
		api.GET("/stats", s.handleStats)
	}

	return s
}

// Handler exposes the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is done.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv := &http.Server{Handler: s.router, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	s.log.Info("control API listening", "addr", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) requestLog(c *gin.Context) {
	start := time.Now()
	c.Next()
	s.log.Debug("api request", "method", c.Request.Method, "path", c.FullPath(), "status", c.Writer.Status(), "took", time.Since(start))
}
