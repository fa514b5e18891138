package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/medialens/analysis-service/internal/errs"
	"github.com/medialens/analysis-service/internal/model"
	"github.com/medialens/analysis-service/internal/query"
)

// QueryHandler handles REST API for free-text queries.
type QueryHandler struct {
	svc *query.Service
}

// NewQueryHandler creates a query handler.
func NewQueryHandler(svc *query.Service) *QueryHandler {
	return &QueryHandler{svc: svc}
}

// Process godoc
// POST /api/query
func (h *QueryHandler) Process(c *gin.Context) {
	var req model.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "message": err.Error()})
		return
	}
	resp, err := h.svc.Process(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, errs.ErrMediaNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "media not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process query"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// History godoc
// GET /api/query/history/:id
func (h *QueryHandler) History(c *gin.Context) {
	id, ok := mediaID(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	hist, err := h.svc.History(id, limit)
	if err != nil {
		if errors.Is(err, errs.ErrMediaNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "media not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load history"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": hist, "total": len(hist)})
}

// Suggestions godoc
// GET /api/query/suggestions/:id
func (h *QueryHandler) Suggestions(c *gin.Context) {
	id, ok := mediaID(c)
	if !ok {
		return
	}
	suggestions, err := h.svc.Suggestions(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, errs.ErrMediaNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "media not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load suggestions"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"suggestions": suggestions})
}
