package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/medialens/analysis-service/internal/errs"
	"github.com/medialens/analysis-service/internal/model"
	"github.com/medialens/analysis-service/internal/stream"
)

// StreamHandler handles REST API for live streams.
type StreamHandler struct {
	mgr *stream.Manager
}

// NewStreamHandler creates a stream handler.
func NewStreamHandler(mgr *stream.Manager) *StreamHandler {
	return &StreamHandler{mgr: mgr}
}

// Start godoc
// POST /api/stream/start
func (h *StreamHandler) Start(c *gin.Context) {
	var req model.StartStreamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "message": err.Error()})
		return
	}
	resp, err := h.mgr.Start(req)
	if err != nil {
		if errors.Is(err, errs.ErrVisionNotConfigured) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "vision capability not configured"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start stream"})
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// Stop godoc
// POST /api/stream/stop/:stream_key
func (h *StreamHandler) Stop(c *gin.Context) {
	key := c.Param("stream_key")
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "stream_key required"})
		return
	}
	if err := h.mgr.Stop(key); err != nil {
		if errors.Is(err, errs.ErrStreamNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "stream not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to stop stream"})
		return
	}
	c.Status(http.StatusNoContent)
}

// Status godoc
// GET /api/stream/:stream_key
func (h *StreamHandler) Status(c *gin.Context) {
	key := c.Param("stream_key")
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "stream_key required"})
		return
	}
	resp, err := h.mgr.Status(key)
	if err != nil {
		if errors.Is(err, errs.ErrStreamNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "stream not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load stream"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ListActive godoc
// GET /api/stream/active
func (h *StreamHandler) ListActive(c *gin.Context) {
	streams, err := h.mgr.ListActive()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list streams"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": streams, "total": len(streams)})
}
