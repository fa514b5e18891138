package stream

import (
	"context"
	"errors"
	"time"

	"github.com/medialens/analysis-service/internal/errs"
)

// ErrNoFrame signals that no frame arrived within the grab deadline.
// It is a retry condition, not a failure.
var ErrNoFrame = errors.New("no frame available")

// Source is one live ingest source. Grab carries a deadline so a stuck
// read can never delay a cooperative stop indefinitely.
type Source interface {
	Open(ctx context.Context) error
	Grab(timeout time.Duration) ([]byte, error)
	Close() error
}

// hubSource reads the hub's per-key ingest buffer.
type hubSource struct {
	hub    *Hub
	key    string
	frames <-chan []byte
}

// NewHubSource returns a Source over the hub session for streamKey.
func NewHubSource(hub *Hub, streamKey string) Source {
	return &hubSource{hub: hub, key: streamKey}
}

func (s *hubSource) Open(ctx context.Context) error {
	frames, ok := s.hub.frameChan(s.key)
	if !ok {
		return errs.ErrIngestNotConfigured
	}
	s.frames = frames
	return nil
}

func (s *hubSource) Grab(timeout time.Duration) ([]byte, error) {
	if s.frames == nil {
		return nil, errs.ErrSourceClosed
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case frame, ok := <-s.frames:
		if !ok {
			return nil, errs.ErrSourceClosed
		}
		return frame, nil
	case <-t.C:
		return nil, ErrNoFrame
	}
}

func (s *hubSource) Close() error {
	// Buffer ownership stays with the hub; nothing to release here.
	return nil
}
