package stream

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/medialens/analysis-service/internal/ai"
	"github.com/medialens/analysis-service/internal/errs"
	"github.com/medialens/analysis-service/internal/model"
	"go.uber.org/zap"
)

type fakeStore struct {
	mu      sync.Mutex
	nextID  uint
	media   map[uint]*model.MediaFile
	streams map[string]*model.LiveStream
	viewers map[string]int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		media:   make(map[uint]*model.MediaFile),
		streams: make(map[string]*model.LiveStream),
		viewers: make(map[string]int),
	}
}

func (f *fakeStore) UpdateStreamStatus(key string, st model.StreamStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ls, ok := f.streams[key]
	if !ok {
		return errs.ErrStreamNotFound
	}
	ls.Status = string(st)
	return nil
}

func (f *fakeStore) CreateMedia(m *model.MediaFile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	m.ID = f.nextID
	cp := *m
	f.media[m.ID] = &cp
	return nil
}

func (f *fakeStore) MediaByID(id uint) (*model.MediaFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.media[id]
	if !ok {
		return nil, errs.ErrMediaNotFound
	}
	cp := *m
	return &cp, nil
}

func (f *fakeStore) UpdateMedia(id uint, fields map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.media[id]
	if !ok {
		return errs.ErrMediaNotFound
	}
	for k, v := range fields {
		switch k {
		case "status":
			m.Status = v.(string)
		case "is_live":
			m.IsLive = v.(bool)
		case "duration":
			d := v.(int)
			m.Duration = &d
		case "summary":
			m.Summary = v.(string)
		}
	}
	return nil
}

func (f *fakeStore) CreateStream(ls *model.LiveStream) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	ls.ID = f.nextID
	cp := *ls
	f.streams[ls.StreamKey] = &cp
	return nil
}

func (f *fakeStore) StreamByKey(key string) (*model.LiveStream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ls, ok := f.streams[key]
	if !ok {
		return nil, errs.ErrStreamNotFound
	}
	cp := *ls
	return &cp, nil
}

func (f *fakeStore) EndStream(key string, endedAt time.Time, duration int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ls, ok := f.streams[key]
	if !ok {
		return errs.ErrStreamNotFound
	}
	ls.Status = string(model.StreamStatusEnded)
	ls.EndTime = &endedAt
	ls.DurationSeconds = &duration
	return nil
}

func (f *fakeStore) SetViewerCount(key string, n int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.viewers[key] = n
	return nil
}

func (f *fakeStore) ActiveStreams() ([]model.LiveStream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.LiveStream
	for _, ls := range f.streams {
		if ls.Status == string(model.StreamStatusActive) {
			out = append(out, *ls)
		}
	}
	return out, nil
}

func (f *fakeStore) streamStatus(key string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ls, ok := f.streams[key]; ok {
		return ls.Status
	}
	return ""
}

func (f *fakeStore) viewerCount(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.viewers[key]
}

type fakeGenerator struct {
	summary string
	err     error
}

func (g fakeGenerator) Summarize(ctx context.Context, mc ai.MediaContext) (string, error) {
	return g.summary, g.err
}
func (g fakeGenerator) EnhanceAnswer(ctx context.Context, q string, m []model.QueryMatch, mc ai.MediaContext) (string, error) {
	return "", g.err
}
func (g fakeGenerator) Suggest(ctx context.Context, mc ai.MediaContext) ([]string, error) {
	return nil, g.err
}
func (g fakeGenerator) Classify(ctx context.Context, q string) (string, error) {
	return ai.FallbackQueryType, g.err
}

type testURLs struct{}

func (testURLs) IngestURL(key string) string   { return "ws://ingest.local/ws/ingest/" + key }
func (testURLs) PlaybackURL(key string) string { return "ws://ingest.local/ws/live/" + key }

type nopSink struct{}

func (nopSink) Submit(mediaID uint, fa model.FrameAnalysis) {}

func newTestManager(t *testing.T, store *fakeStore, gen ai.Generator) (*Manager, *Hub) {
	t.Helper()
	hub := NewHub(1024, 1024, zap.NewNop())
	m := NewManager(ManagerConfig{
		Store:            store,
		Hub:              hub,
		Annotator:        stubAnnotator{ann: nil},
		Generator:        gen,
		URLs:             testURLs{},
		SamplingInterval: 1,
		FrameRate:        30,
		VisionConfigured: true,
		Log:              zap.NewNop(),
	}, nopSink{})
	return m, hub
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestStartRequiresVisionCapability(t *testing.T) {
	hub := NewHub(1024, 1024, zap.NewNop())
	m := NewManager(ManagerConfig{
		Store:            newFakeStore(),
		Hub:              hub,
		Annotator:        stubAnnotator{},
		URLs:             testURLs{},
		SamplingInterval: 1,
		FrameRate:        30,
		VisionConfigured: false,
		Log:              zap.NewNop(),
	}, nopSink{})

	if _, err := m.Start(model.StartStreamRequest{StreamName: "demo"}); !errors.Is(err, errs.ErrVisionNotConfigured) {
		t.Fatalf("err = %v, want ErrVisionNotConfigured", err)
	}
}

func TestStartRegistersWaitingStream(t *testing.T) {
	store := newFakeStore()
	m, hub := newTestManager(t, store, nil)

	resp, err := m.Start(model.StartStreamRequest{StreamName: "reading room"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer m.Stop(resp.StreamKey)

	if resp.Status != model.StreamStatusWaiting {
		t.Errorf("status = %s, want WAITING", resp.Status)
	}
	if resp.IngestURL != "ws://ingest.local/ws/ingest/"+resp.StreamKey {
		t.Errorf("ingest url = %s", resp.IngestURL)
	}
	if !hub.HasSession(resp.StreamKey) {
		t.Error("hub session was not opened")
	}
	if got := store.streamStatus(resp.StreamKey); got != string(model.StreamStatusWaiting) {
		t.Errorf("stored status = %s, want WAITING", got)
	}
}

func TestStreamActivatesOnFirstFrame(t *testing.T) {
	store := newFakeStore()
	m, hub := newTestManager(t, store, nil)

	resp, err := m.Start(model.StartStreamRequest{StreamName: "live"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer m.Stop(resp.StreamKey)

	hub.Publish(resp.StreamKey, []byte{0xff, 0xd8})
	waitFor(t, "ACTIVE status", func() bool {
		return store.streamStatus(resp.StreamKey) == string(model.StreamStatusActive)
	})
}

func TestStopWhileWaitingEndsStream(t *testing.T) {
	store := newFakeStore()
	m, hub := newTestManager(t, store, fakeGenerator{summary: "a quiet reading session"})

	resp, err := m.Start(model.StartStreamRequest{StreamName: "quiet"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := m.Stop(resp.StreamKey); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if got := store.streamStatus(resp.StreamKey); got != string(model.StreamStatusEnded) {
		t.Fatalf("status = %s, want ENDED (never ACTIVE)", got)
	}
	if hub.HasSession(resp.StreamKey) {
		t.Error("hub session survived Stop")
	}
	media, err := store.MediaByID(resp.MediaID)
	if err != nil {
		t.Fatalf("MediaByID: %v", err)
	}
	if media.Status != string(model.MediaStatusCompleted) || media.IsLive {
		t.Errorf("media = %s/is_live=%v, want COMPLETED/false", media.Status, media.IsLive)
	}
	if media.Summary != "a quiet reading session" {
		t.Errorf("summary = %q", media.Summary)
	}
}

func TestStopIsNotFoundSafe(t *testing.T) {
	store := newFakeStore()
	m, _ := newTestManager(t, store, nil)

	if err := m.Stop("no-such-key"); !errors.Is(err, errs.ErrStreamNotFound) {
		t.Fatalf("err = %v, want ErrStreamNotFound", err)
	}

	resp, err := m.Start(model.StartStreamRequest{StreamName: "once"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := m.Stop(resp.StreamKey); err != nil {
		t.Fatalf("first Stop: %v", err)
	}
	if err := m.Stop(resp.StreamKey); err != nil {
		t.Fatalf("repeated Stop returned %v, want nil", err)
	}
}

func TestStopSummaryFailureIsBestEffort(t *testing.T) {
	store := newFakeStore()
	m, _ := newTestManager(t, store, fakeGenerator{err: errors.New("model unavailable")})

	resp, err := m.Start(model.StartStreamRequest{StreamName: "nosummary"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := m.Stop(resp.StreamKey); err != nil {
		t.Fatalf("Stop must succeed despite summary failure: %v", err)
	}
	media, _ := store.MediaByID(resp.MediaID)
	if media.Summary != "" {
		t.Errorf("summary = %q, want empty", media.Summary)
	}
}

func TestConcurrentStreamsAreIsolated(t *testing.T) {
	store := newFakeStore()
	m, hub := newTestManager(t, store, nil)

	a, err := m.Start(model.StartStreamRequest{StreamName: "a"})
	if err != nil {
		t.Fatalf("Start a: %v", err)
	}
	b, err := m.Start(model.StartStreamRequest{StreamName: "b"})
	if err != nil {
		t.Fatalf("Start b: %v", err)
	}
	if a.StreamKey == b.StreamKey {
		t.Fatalf("stream keys collide: %s", a.StreamKey)
	}

	hub.Publish(a.StreamKey, []byte{1})
	waitFor(t, "stream a ACTIVE", func() bool {
		return store.streamStatus(a.StreamKey) == string(model.StreamStatusActive)
	})
	if got := store.streamStatus(b.StreamKey); got != string(model.StreamStatusWaiting) {
		t.Errorf("stream b status = %s, want WAITING", got)
	}

	if err := m.Stop(a.StreamKey); err != nil {
		t.Fatalf("Stop a: %v", err)
	}
	if err := m.Stop(b.StreamKey); err != nil {
		t.Fatalf("Stop b: %v", err)
	}
	for _, key := range []string{a.StreamKey, b.StreamKey} {
		if got := store.streamStatus(key); got != string(model.StreamStatusEnded) {
			t.Errorf("stream %s status = %s, want ENDED", key, got)
		}
	}
}

func TestViewerCountPropagates(t *testing.T) {
	store := newFakeStore()
	m, hub := newTestManager(t, store, nil)

	resp, err := m.Start(model.StartStreamRequest{StreamName: "watched"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer m.Stop(resp.StreamKey)

	_, cleanup, ok := hub.AddViewer(resp.StreamKey)
	if !ok {
		t.Fatal("AddViewer refused")
	}
	if got := store.viewerCount(resp.StreamKey); got != 1 {
		t.Fatalf("viewer count = %d, want 1", got)
	}
	cleanup()
	if got := store.viewerCount(resp.StreamKey); got != 0 {
		t.Fatalf("viewer count after leave = %d, want 0", got)
	}

	st, err := m.Status(resp.StreamKey)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.ViewerCount != 0 {
		t.Errorf("status viewer count = %d, want 0", st.ViewerCount)
	}
}

func TestErroredStreamIsReaped(t *testing.T) {
	store := newFakeStore()
	m, hub := newTestManager(t, store, nil)

	resp, err := m.Start(model.StartStreamRequest{StreamName: "flaky feed"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Tear the ingest session down underneath the processor.
	hub.CloseSession(resp.StreamKey)

	waitFor(t, "registry reap", func() bool {
		m.mu.RLock()
		defer m.mu.RUnlock()
		_, ok := m.procs[resp.StreamKey]
		return !ok
	})
	waitFor(t, "media finalize", func() bool {
		mf, err := store.MediaByID(resp.MediaID)
		return err == nil && mf.Status == string(model.MediaStatusFailed) && !mf.IsLive
	})
	if got := store.streamStatus(resp.StreamKey); got != string(model.StreamStatusError) {
		t.Errorf("stream status = %s, want ERROR", got)
	}

	// A late explicit stop is a no-op that leaves ERROR in place.
	if err := m.Stop(resp.StreamKey); err != nil {
		t.Fatalf("Stop after error: %v", err)
	}
	if got := store.streamStatus(resp.StreamKey); got != string(model.StreamStatusError) {
		t.Errorf("stream status after stop = %s, want ERROR", got)
	}
}

func TestStoppedStreamIsNotFinalizedTwice(t *testing.T) {
	store := newFakeStore()
	m, _ := newTestManager(t, store, nil)

	resp, err := m.Start(model.StartStreamRequest{StreamName: "short session"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := m.Stop(resp.StreamKey); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	waitFor(t, "registry reap", func() bool {
		m.mu.RLock()
		defer m.mu.RUnlock()
		_, ok := m.procs[resp.StreamKey]
		return !ok
	})
	// Cooperative stops are finalized by Stop alone; the reaper must
	// not rewrite the terminal state afterwards.
	if got := store.streamStatus(resp.StreamKey); got != string(model.StreamStatusEnded) {
		t.Errorf("stream status = %s, want ENDED", got)
	}
	mf, err := store.MediaByID(resp.MediaID)
	if err != nil {
		t.Fatalf("MediaByID: %v", err)
	}
	if mf.Status != string(model.MediaStatusCompleted) {
		t.Errorf("media status = %s, want COMPLETED", mf.Status)
	}
}
