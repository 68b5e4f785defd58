package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fakeyudi/respira/internal/ambient"
	"github.com/fakeyudi/respira/internal/report"
	"github.com/fakeyudi/respira/internal/session"
)

func (s *Server) handleSession(c *gin.Context) {
	c.JSON(http.StatusOK, s.ctl.Snapshot())
}

func (s *Server) handlePause(c *gin.Context) {
	if err := s.ctl.Pause(); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s.ctl.Snapshot())
}

func (s *Server) handleResume(c *gin.Context) {
	if err := s.ctl.Resume(); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s.ctl.Snapshot())
}

func (s *Server) handleStop(c *gin.Context) {
	res, err := s.ctl.Stop()
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleToggle(c *gin.Context) {
	key := c.Param("key")
	on, err := s.ctl.ToggleAmbient(key)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key, "active": on})
}

type volumeRequest struct {
	Volume *float64 `json:"volume" binding:"required"`
}

func (s *Server) handleVolume(c *gin.Context) {
	var req volumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "body must be {\"volume\": 0..1}"})
		return
	}
	if *req.Volume < 0 || *req.Volume > 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "volume must be between 0 and 1"})
		return
	}
	key := c.Param("key")
	if err := s.ctl.SetAmbientVolume(key, *req.Volume); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key, "volume": *req.Volume})
}

func (s *Server) handleStats(c *gin.Context) {
	st := s.stats.Load(c.Request.Context())
	c.JSON(http.StatusOK, report.New(st, "", time.Now()))
}

func (s *Server) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, session.ErrNoSession), errors.Is(err, ambient.ErrExternalAudioActive):
		status = http.StatusConflict
	case errors.Is(err, ambient.ErrUnknownChannel):
		status = http.StatusNotFound
	}
	if status == http.StatusInternalServerError {
		s.log.Error("api request failed", "path", c.FullPath(), "err", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
