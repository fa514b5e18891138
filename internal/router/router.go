package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/medialens/analysis-service/internal/handler"
	"github.com/medialens/analysis-service/pkg/constants"
)

// New builds the HTTP router.
func New(
	mediaHandler *handler.MediaHandler,
	streamHandler *handler.StreamHandler,
	queryHandler *handler.QueryHandler,
	dashboardHandler *handler.DashboardHandler,
	streamWS *handler.StreamWSHandler,
	health *handler.HealthHandler,
) http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET(constants.PathHealth, health.Health)
	r.GET(constants.PathReady, health.Ready)

	api := r.Group("/api")
	{
		media := api.Group("/media")
		{
			media.POST("/upload", mediaHandler.Upload)
			media.GET("", mediaHandler.List)
			media.GET("/:id", mediaHandler.Get)
			media.GET("/:id/statistics", mediaHandler.Statistics)
			media.DELETE("/:id", mediaHandler.Delete)
		}

		stream := api.Group("/stream")
		{
			stream.POST("/start", streamHandler.Start)
			stream.POST("/stop/:stream_key", streamHandler.Stop)
			stream.GET("/active", streamHandler.ListActive)
			stream.GET("/:stream_key", streamHandler.Status)
		}

		query := api.Group("/query")
		{
			query.POST("", queryHandler.Process)
			query.GET("/history/:id", queryHandler.History)
			query.GET("/suggestions/:id", queryHandler.Suggestions)
		}

		dash := api.Group("/dashboard")
		{
			dash.GET("/stats", dashboardHandler.Stats)
			dash.GET("/trends", dashboardHandler.Trends)
		}
	}

	// WebSocket transport for live streams.
	r.GET(constants.PathWSIngest, streamWS.ServeIngest)
	r.GET(constants.PathWSLive, streamWS.ServeLive)

	return r
}
