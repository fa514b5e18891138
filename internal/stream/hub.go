package stream

import (
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// frameBuffer is the per-session ingest buffer depth. The grab loop is
// the only consumer; when it falls behind, the oldest frame is dropped
// so live ingest never backs up into the publisher connection.
const frameBuffer = 16

// viewerBuffer is the per-viewer send buffer; a slow viewer drops frames.
const viewerBuffer = 64

// Viewer is one playback WebSocket connection on a session.
type Viewer struct {
	StreamKey string
	Send      chan []byte
}

type session struct {
	key     string
	frames  chan []byte
	viewers map[*Viewer]struct{}
	closed  bool
}

// Hub owns the live WebSocket transport: publishers push binary frames
// into a per-key buffer the Frame Processor grabs from, and viewers
// receive a relayed copy. Sessions are registered by the Lifecycle
// Manager before the publisher connects.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]*session
	upgrader websocket.Upgrader
	log      *zap.Logger

	// onViewers is invoked outside the hub lock whenever a session's
	// viewer count changes.
	onViewers func(streamKey string, count int)
}

// NewHub creates a hub with the given WebSocket buffer sizes.
func NewHub(readBuf, writeBuf int, log *zap.Logger) *Hub {
	return &Hub{
		sessions: make(map[string]*session),
		log:      log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  readBuf,
			WriteBufferSize: writeBuf,
			// Allow all origins for dev; in prod set CheckOrigin.
		},
	}
}

// SetViewerCallback registers the viewer-count observer.
func (h *Hub) SetViewerCallback(fn func(streamKey string, count int)) { h.onViewers = fn }

// Upgrader returns the WebSocket upgrader for HTTP handlers.
func (h *Hub) Upgrader() *websocket.Upgrader { return &h.upgrader }

// OpenSession registers a stream key so publish and grab can find it.
func (h *Hub) OpenSession(streamKey string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.sessions[streamKey]; ok {
		return
	}
	h.sessions[streamKey] = &session{
		key:     streamKey,
		frames:  make(chan []byte, frameBuffer),
		viewers: make(map[*Viewer]struct{}),
	}
}

// HasSession reports whether a stream key is registered.
func (h *Hub) HasSession(streamKey string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.sessions[streamKey]
	return ok
}

// Publish buffers one ingest frame and relays it to viewers. It never
// blocks: when the ingest buffer is full the oldest frame is discarded.
func (h *Hub) Publish(streamKey string, frame []byte) bool {
	h.mu.RLock()
	s, ok := h.sessions[streamKey]
	if !ok || s.closed {
		h.mu.RUnlock()
		return false
	}
	viewers := make([]*Viewer, 0, len(s.viewers))
	for v := range s.viewers {
		viewers = append(viewers, v)
	}
	select {
	case s.frames <- frame:
	default:
		select {
		case <-s.frames:
		default:
		}
		select {
		case s.frames <- frame:
		default:
		}
	}
	h.mu.RUnlock()

	for _, v := range viewers {
		select {
		case v.Send <- frame:
		default:
			// slow viewer, drop
		}
	}
	return true
}

// AddViewer attaches a playback connection and returns a cleanup func.
func (h *Hub) AddViewer(streamKey string) (*Viewer, func(), bool) {
	h.mu.Lock()
	s, ok := h.sessions[streamKey]
	if !ok || s.closed {
		h.mu.Unlock()
		return nil, nil, false
	}
	v := &Viewer{StreamKey: streamKey, Send: make(chan []byte, viewerBuffer)}
	s.viewers[v] = struct{}{}
	count := len(s.viewers)
	h.mu.Unlock()

	h.notifyViewers(streamKey, count)
	cleanup := func() { h.removeViewer(streamKey, v) }
	return v, cleanup, true
}

func (h *Hub) removeViewer(streamKey string, v *Viewer) {
	h.mu.Lock()
	s, ok := h.sessions[streamKey]
	if !ok {
		h.mu.Unlock()
		return
	}
	if _, present := s.viewers[v]; !present {
		h.mu.Unlock()
		return
	}
	delete(s.viewers, v)
	close(v.Send)
	count := len(s.viewers)
	h.mu.Unlock()

	h.notifyViewers(streamKey, count)
}

// ViewerCount returns the live viewer count for a session.
func (h *Hub) ViewerCount(streamKey string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if s, ok := h.sessions[streamKey]; ok {
		return len(s.viewers)
	}
	return 0
}

// CloseSession tears a session down: the frame channel is closed so the
// grab loop observes end-of-source, and viewer connections are released.
func (h *Hub) CloseSession(streamKey string) {
	h.mu.Lock()
	s, ok := h.sessions[streamKey]
	if !ok || s.closed {
		h.mu.Unlock()
		return
	}
	s.closed = true
	delete(h.sessions, streamKey)
	viewers := s.viewers
	s.viewers = map[*Viewer]struct{}{}
	close(s.frames)
	h.mu.Unlock()

	for v := range viewers {
		close(v.Send)
	}
	h.log.Info("ingest session closed", zap.String("stream_key", streamKey))
}

func (h *Hub) notifyViewers(streamKey string, count int) {
	if h.onViewers != nil {
		h.onViewers(streamKey, count)
	}
}

// frameChan hands the session's ingest buffer to a Source.
func (h *Hub) frameChan(streamKey string) (<-chan []byte, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.sessions[streamKey]
	if !ok {
		return nil, false
	}
	return s.frames, true
}
