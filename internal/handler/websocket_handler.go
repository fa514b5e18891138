package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/medialens/analysis-service/internal/stream"
	"go.uber.org/zap"
)

// StreamWSHandler handles the WebSocket sides of a live stream:
// publishers push binary frames on /ws/ingest/:stream_key, viewers
// receive the relay on /ws/live/:stream_key.
type StreamWSHandler struct {
	hub    *stream.Hub
	logger *zap.Logger
}

// NewStreamWSHandler creates the WebSocket stream handler.
func NewStreamWSHandler(hub *stream.Hub, logger *zap.Logger) *StreamWSHandler {
	return &StreamWSHandler{hub: hub, logger: logger}
}

// ServeIngest upgrades the publisher connection and feeds its frames
// into the session buffer until the connection drops.
// Path: /ws/ingest/:stream_key
func (h *StreamWSHandler) ServeIngest(c *gin.Context) {
	key := c.Param("stream_key")
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "stream_key required"})
		return
	}
	if !h.hub.HasSession(key) {
		c.JSON(http.StatusNotFound, gin.H{"error": "stream not found"})
		return
	}

	conn, err := h.hub.Upgrader().Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	h.logger.Info("publisher connected", zap.String("stream_key", key))
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Debug("ingest read error", zap.Error(err))
			}
			break
		}
		if mt != websocket.BinaryMessage {
			continue
		}
		if !h.hub.Publish(key, data) {
			// Session closed under us; stop reading.
			break
		}
	}
	h.logger.Info("publisher disconnected", zap.String("stream_key", key))
}

// ServeLive upgrades a viewer connection and relays frames to it until
// the session ends or the viewer leaves.
// Path: /ws/live/:stream_key
func (h *StreamWSHandler) ServeLive(c *gin.Context) {
	key := c.Param("stream_key")
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "stream_key required"})
		return
	}

	viewer, cleanup, ok := h.hub.AddViewer(key)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "stream not found"})
		return
	}
	defer cleanup()

	conn, err := h.hub.Upgrader().Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	// Reader goroutine: viewers send nothing, but the read loop is what
	// notices the peer going away.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case data, open := <-viewer.Send:
			if !open {
				return
			}
			if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
