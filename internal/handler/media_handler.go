package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/medialens/analysis-service/internal/errs"
	"github.com/medialens/analysis-service/internal/media"
)

// maxUploadBytes caps a single upload at 500 MB.
const maxUploadBytes = 500 << 20

// MediaHandler handles REST API for media items.
type MediaHandler struct {
	svc *media.Service
}

// NewMediaHandler creates a media handler.
func NewMediaHandler(svc *media.Service) *MediaHandler {
	return &MediaHandler{svc: svc}
}

// Upload godoc
// POST /api/media/upload
func (h *MediaHandler) Upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)

	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file required", "message": err.Error()})
		return
	}
	src, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable file", "message": err.Error()})
		return
	}
	defer src.Close()

	result, err := h.svc.Upload(file.Filename, file.Size, src)
	if err != nil {
		if errors.Is(err, errs.ErrUnsupportedMedia) {
			c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "unsupported media type"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store upload"})
		return
	}
	c.JSON(http.StatusAccepted, result)
}

// Get godoc
// GET /api/media/:id
func (h *MediaHandler) Get(c *gin.Context) {
	id, ok := mediaID(c)
	if !ok {
		return
	}
	withStats := c.Query("statistics") == "true"
	result, err := h.svc.Get(id, withStats)
	if err != nil {
		if errors.Is(err, errs.ErrMediaNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "media not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load media"})
		return
	}
	c.JSON(http.StatusOK, result)
}

// List godoc
// GET /api/media
func (h *MediaHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	items, total, err := h.svc.List(c.Query("kind"), c.Query("status"), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list media"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "total": total})
}

// Delete godoc
// DELETE /api/media/:id
func (h *MediaHandler) Delete(c *gin.Context) {
	id, ok := mediaID(c)
	if !ok {
		return
	}
	if err := h.svc.Delete(id); err != nil {
		if errors.Is(err, errs.ErrMediaNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "media not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete media"})
		return
	}
	c.Status(http.StatusNoContent)
}

// Statistics godoc
// GET /api/media/:id/statistics
func (h *MediaHandler) Statistics(c *gin.Context) {
	id, ok := mediaID(c)
	if !ok {
		return
	}
	stats, err := h.svc.Statistics(id)
	if err != nil {
		if errors.Is(err, errs.ErrMediaNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "media not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build statistics"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func mediaID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid media id"})
		return 0, false
	}
	return uint(id), true
}
