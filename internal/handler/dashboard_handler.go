package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/medialens/analysis-service/internal/dashboard"
)

// DashboardHandler handles REST API for cross-media aggregates.
type DashboardHandler struct {
	svc *dashboard.Service
}

// NewDashboardHandler creates a dashboard handler.
func NewDashboardHandler(svc *dashboard.Service) *DashboardHandler {
	return &DashboardHandler{svc: svc}
}

// Stats godoc
// GET /api/dashboard/stats
func (h *DashboardHandler) Stats(c *gin.Context) {
	stats, err := h.svc.Stats()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load dashboard stats"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// Trends godoc
// GET /api/dashboard/trends
func (h *DashboardHandler) Trends(c *gin.Context) {
	report, err := h.svc.Trends(c.Query("period"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load trends"})
		return
	}
	c.JSON(http.StatusOK, report)
}
