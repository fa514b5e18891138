package stream

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/medialens/analysis-service/internal/ai"
	"github.com/medialens/analysis-service/internal/errs"
	"github.com/medialens/analysis-service/internal/model"
	"github.com/medialens/analysis-service/internal/vision"
	"go.uber.org/zap"
)

// Store is the persistence surface the Lifecycle Manager needs.
type Store interface {
	StatusSink
	CreateMedia(m *model.MediaFile) error
	MediaByID(id uint) (*model.MediaFile, error)
	UpdateMedia(id uint, fields map[string]any) error
	CreateStream(ls *model.LiveStream) error
	StreamByKey(key string) (*model.LiveStream, error)
	EndStream(key string, endedAt time.Time, duration int64) error
	SetViewerCount(key string, n int) error
	ActiveStreams() ([]model.LiveStream, error)
}

// URLBuilder computes ingest/playback URLs from a stream key.
type URLBuilder interface {
	IngestURL(streamKey string) string
	PlaybackURL(streamKey string) string
}

// ManagerConfig wires a Manager.
type ManagerConfig struct {
	Store            Store
	Hub              *Hub
	Annotator        vision.Annotator
	Generator        ai.Generator
	URLs             URLBuilder
	SamplingInterval int
	FrameRate        float64
	Prepare          Preparer
	VisionConfigured bool
	Log              *zap.Logger
}

// Manager creates, registers and stops Frame Processors, one per live
// stream key. Registry mutations are serialized; reads are concurrent.
type Manager struct {
	mu    sync.RWMutex
	procs map[string]*Processor

	store     Store
	hub       *Hub
	annotator vision.Annotator
	gen       ai.Generator
	urls      URLBuilder
	sink      AnalysisSink

	interval   int
	frameRate  float64
	prepare    Preparer
	visionUp   bool
	log        *zap.Logger
}

// NewManager creates the stream Lifecycle Manager.
func NewManager(cfg ManagerConfig, sink AnalysisSink) *Manager {
	m := &Manager{
		procs:     make(map[string]*Processor),
		store:     cfg.Store,
		hub:       cfg.Hub,
		annotator: cfg.Annotator,
		gen:       cfg.Generator,
		urls:      cfg.URLs,
		sink:      sink,
		interval:  cfg.SamplingInterval,
		frameRate: cfg.FrameRate,
		prepare:   cfg.Prepare,
		visionUp:  cfg.VisionConfigured,
		log:       cfg.Log,
	}
	if m.hub != nil {
		m.hub.SetViewerCallback(func(key string, count int) {
			if err := m.store.SetViewerCount(key, count); err != nil {
				m.log.Warn("viewer count update failed",
					zap.String("stream_key", key), zap.Error(err))
			}
		})
	}
	return m
}

// Start allocates a media item and stream session, registers a Frame
// Processor for the new key and launches it. It returns as soon as the
// processor is scheduled; the WAITING -> ACTIVE transition happens when
// the ingest source opens.
func (m *Manager) Start(req model.StartStreamRequest) (*model.StreamResponse, error) {
	if !m.visionUp {
		return nil, errs.ErrVisionNotConfigured
	}

	streamKey := uuid.New().String()
	ingestURL := m.urls.IngestURL(streamKey)
	playbackURL := m.urls.PlaybackURL(streamKey)

	frameRate := m.frameRate
	interval := m.interval
	if c := req.Config; c != nil {
		if c.FrameRate > 0 {
			frameRate = c.FrameRate
		}
		if c.SamplingInterval > 0 {
			interval = c.SamplingInterval
		}
	}

	media := &model.MediaFile{
		FileName:    req.StreamName,
		Kind:        string(model.MediaKindLiveStream),
		Status:      string(model.MediaStatusStreaming),
		IsLive:      true,
		FrameRate:   frameRate,
		IngestURL:   ingestURL,
		PlaybackURL: playbackURL,
	}
	if err := m.store.CreateMedia(media); err != nil {
		return nil, err
	}

	now := time.Now()
	ls := &model.LiveStream{
		MediaFileID: media.ID,
		StreamKey:   streamKey,
		IngestURL:   ingestURL,
		PlaybackURL: playbackURL,
		Status:      string(model.StreamStatusWaiting),
		StartTime:   now,
	}
	if err := m.store.CreateStream(ls); err != nil {
		return nil, err
	}

	m.hub.OpenSession(streamKey)
	proc := NewProcessor(ProcessorConfig{
		StreamKey: streamKey,
		MediaID:   media.ID,
		Interval:  interval,
		FrameRate: frameRate,
		Source:    NewHubSource(m.hub, streamKey),
		Annotator: m.annotator,
		Sink:      m.sink,
		Status:    m.store,
		Prepare:   m.prepare,
		Log:       m.log,
	})

	m.mu.Lock()
	m.procs[streamKey] = proc
	m.mu.Unlock()
	go proc.Run()
	go m.reap(streamKey, proc)

	m.log.Info("live stream started",
		zap.String("stream_key", streamKey),
		zap.Uint("media_id", media.ID),
		zap.String("stream_name", req.StreamName))

	return &model.StreamResponse{
		StreamID:    ls.ID,
		MediaID:     media.ID,
		StreamKey:   streamKey,
		IngestURL:   ingestURL,
		PlaybackURL: playbackURL,
		Status:      model.StreamStatusWaiting,
		StartTime:   now,
	}, nil
}

// Stop signals the stream's Frame Processor to terminate, removes it
// from the registry and marks the session ENDED with its duration. A
// concurrent ingest failure may win the terminal-state race (last
// writer wins); callers must tolerate either ENDED or ERROR afterwards.
func (m *Manager) Stop(streamKey string) error {
	ls, err := m.store.StreamByKey(streamKey)
	if err != nil {
		return err
	}

	m.mu.Lock()
	proc, registered := m.procs[streamKey]
	delete(m.procs, streamKey)
	m.mu.Unlock()

	if !registered && isTerminal(model.StreamStatus(ls.Status)) {
		// Already stopped; repeated stop is a no-op.
		return nil
	}

	if registered {
		proc.Stop()
	}
	m.hub.CloseSession(streamKey)

	endedAt := time.Now()
	duration := int64(endedAt.Sub(ls.StartTime).Seconds())
	if err := m.store.EndStream(streamKey, endedAt, duration); err != nil {
		return err
	}

	mediaFields := map[string]any{
		"status":   string(model.MediaStatusCompleted),
		"is_live":  false,
		"duration": int(duration),
	}
	if err := m.store.UpdateMedia(ls.MediaFileID, mediaFields); err != nil {
		m.log.Warn("media finalize failed",
			zap.String("stream_key", streamKey), zap.Error(err))
	}

	m.summarize(ls.MediaFileID, streamKey)

	m.log.Info("live stream stopped",
		zap.String("stream_key", streamKey),
		zap.Int64("duration_seconds", duration))
	return nil
}

// Status returns a read-only snapshot of one session.
func (m *Manager) Status(streamKey string) (*model.StreamResponse, error) {
	ls, err := m.store.StreamByKey(streamKey)
	if err != nil {
		return nil, err
	}
	resp := streamResponse(ls)
	resp.ViewerCount = m.hub.ViewerCount(streamKey)
	if resp.ViewerCount == 0 {
		resp.ViewerCount = ls.ViewerCount
	}
	return resp, nil
}

// ListActive returns snapshots of all ACTIVE sessions.
func (m *Manager) ListActive() ([]model.StreamResponse, error) {
	streams, err := m.store.ActiveStreams()
	if err != nil {
		return nil, err
	}
	out := make([]model.StreamResponse, 0, len(streams))
	for i := range streams {
		resp := streamResponse(&streams[i])
		resp.ViewerCount = m.hub.ViewerCount(streams[i].StreamKey)
		out = append(out, *resp)
	}
	return out, nil
}

// StopAll terminates every registered processor; used at shutdown.
func (m *Manager) StopAll(ctx context.Context) {
	m.mu.Lock()
	keys := make([]string, 0, len(m.procs))
	for k := range m.procs {
		keys = append(keys, k)
	}
	m.mu.Unlock()

	for _, k := range keys {
		if ctx.Err() != nil {
			return
		}
		if err := m.Stop(k); err != nil {
			m.log.Warn("shutdown stop failed", zap.String("stream_key", k), zap.Error(err))
		}
	}
}

// reap removes a processor from the registry once its loop exits, so
// errored streams do not accumulate entries over the process lifetime.
// An explicit Stop deregisters first and owns the teardown for
// cooperative exits; the reaper finalizes only ingest failures.
func (m *Manager) reap(streamKey string, proc *Processor) {
	<-proc.Done()
	m.mu.Lock()
	registered := m.procs[streamKey] == proc
	if registered {
		delete(m.procs, streamKey)
	}
	m.mu.Unlock()
	if !registered || !proc.Failed() {
		return
	}

	m.hub.CloseSession(streamKey)
	ls, err := m.store.StreamByKey(streamKey)
	if err != nil {
		m.log.Warn("failed stream lookup failed",
			zap.String("stream_key", streamKey), zap.Error(err))
		return
	}
	duration := int64(time.Since(ls.StartTime).Seconds())
	fields := map[string]any{
		"status":   string(model.MediaStatusFailed),
		"is_live":  false,
		"duration": int(duration),
	}
	if err := m.store.UpdateMedia(ls.MediaFileID, fields); err != nil {
		m.log.Warn("failed stream finalize failed",
			zap.String("stream_key", streamKey), zap.Error(err))
	}
	m.log.Info("live stream failed",
		zap.String("stream_key", streamKey),
		zap.Int64("duration_seconds", duration))
}

// summarize requests an external summary for the finished stream.
// Best effort: failure is logged, never propagated.
func (m *Manager) summarize(mediaID uint, streamKey string) {
	if m.gen == nil {
		return
	}
	media, err := m.store.MediaByID(mediaID)
	if err != nil {
		m.log.Warn("summary context load failed", zap.Uint("media_id", mediaID), zap.Error(err))
		return
	}
	mc := ai.MediaContext{
		FileName:    media.FileName,
		Kind:        model.MediaKind(media.Kind),
		PeopleCount: media.PeopleCount,
		ObjectCount: media.ObjectsCount,
		BookCount:   media.BooksCount,
	}
	if media.Duration != nil {
		mc.Duration = *media.Duration
	}
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	summary, err := m.gen.Summarize(ctx, mc)
	if err != nil {
		m.log.Warn("stream summary generation failed",
			zap.String("stream_key", streamKey), zap.Error(err))
		return
	}
	if err := m.store.UpdateMedia(mediaID, map[string]any{"summary": summary}); err != nil {
		m.log.Warn("stream summary save failed",
			zap.String("stream_key", streamKey), zap.Error(err))
	}
}

func isTerminal(st model.StreamStatus) bool {
	return st == model.StreamStatusEnded || st == model.StreamStatusError
}

func streamResponse(ls *model.LiveStream) *model.StreamResponse {
	return &model.StreamResponse{
		StreamID:    ls.ID,
		MediaID:     ls.MediaFileID,
		StreamKey:   ls.StreamKey,
		IngestURL:   ls.IngestURL,
		PlaybackURL: ls.PlaybackURL,
		Status:      model.StreamStatus(ls.Status),
		StartTime:   ls.StartTime,
		EndTime:     ls.EndTime,
		Duration:    ls.DurationSeconds,
		ViewerCount: ls.ViewerCount,
	}
}
