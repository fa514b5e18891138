package stream

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/medialens/analysis-service/internal/errs"
	"github.com/medialens/analysis-service/internal/model"
	"github.com/medialens/analysis-service/internal/vision"
	"go.uber.org/zap"
)

// queueSource hands out a fixed list of frames, then reports the source
// as closed.
type queueSource struct {
	mu     sync.Mutex
	frames [][]byte
	pos    int
}

func (s *queueSource) Open(ctx context.Context) error { return nil }
func (s *queueSource) Close() error                   { return nil }

func (s *queueSource) Grab(timeout time.Duration) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pos >= len(s.frames) {
		return nil, errs.ErrSourceClosed
	}
	f := s.frames[s.pos]
	s.pos++
	return f, nil
}

// silentSource never produces a frame; Grab times out forever.
type silentSource struct{}

func (silentSource) Open(ctx context.Context) error { return nil }
func (silentSource) Close() error                   { return nil }
func (silentSource) Grab(timeout time.Duration) ([]byte, error) {
	time.Sleep(timeout)
	return nil, ErrNoFrame
}

type stubAnnotator struct {
	ann *vision.Annotation
	err error
}

func (a stubAnnotator) Annotate(ctx context.Context, image []byte) (*vision.Annotation, error) {
	return a.ann, a.err
}

// chanSink delivers each submission on a channel so tests can wait for
// fire-and-forget analysis goroutines.
type chanSink struct {
	ch chan model.FrameAnalysis
}

func newChanSink() *chanSink {
	return &chanSink{ch: make(chan model.FrameAnalysis, 64)}
}

func (s *chanSink) Submit(mediaID uint, fa model.FrameAnalysis) { s.ch <- fa }

func (s *chanSink) next(t *testing.T) model.FrameAnalysis {
	t.Helper()
	select {
	case fa := <-s.ch:
		return fa
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for analysis submission")
		return model.FrameAnalysis{}
	}
}

type statusRecorder struct {
	mu       sync.Mutex
	statuses []model.StreamStatus
}

func (r *statusRecorder) UpdateStreamStatus(streamKey string, st model.StreamStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, st)
	return nil
}

func (r *statusRecorder) recorded() []model.StreamStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.StreamStatus, len(r.statuses))
	copy(out, r.statuses)
	return out
}

func frames(n int) [][]byte {
	out := make([][]byte, n)
	for i := range out {
		out[i] = []byte{byte(i)}
	}
	return out
}

func TestProcessorSamplesEveryNthFrame(t *testing.T) {
	sink := newChanSink()
	status := &statusRecorder{}
	proc := NewProcessor(ProcessorConfig{
		StreamKey: "k1",
		MediaID:   7,
		Interval:  3,
		FrameRate: 30,
		Source:    &queueSource{frames: frames(10)},
		Annotator: stubAnnotator{ann: &vision.Annotation{}},
		Sink:      sink,
		Status:    status,
		Log:       zap.NewNop(),
	})
	go proc.Run()
	<-proc.Done()

	// 10 frames at interval 3 sample exactly frames 3, 6 and 9.
	got := map[int]float64{}
	for i := 0; i < 3; i++ {
		fa := sink.next(t)
		got[fa.FrameNumber] = fa.Timestamp
	}
	for _, want := range []int{3, 6, 9} {
		ts, ok := got[want]
		if !ok {
			t.Fatalf("frame %d was not sampled; got %v", want, got)
		}
		if ts != float64(want)/30 {
			t.Errorf("frame %d timestamp = %v, want %v", want, ts, float64(want)/30)
		}
	}
	select {
	case fa := <-sink.ch:
		t.Fatalf("unexpected extra submission for frame %d", fa.FrameNumber)
	case <-time.After(100 * time.Millisecond):
	}

	sts := status.recorded()
	if len(sts) == 0 || sts[0] != model.StreamStatusActive {
		t.Fatalf("first transition = %v, want ACTIVE", sts)
	}
}

func TestProcessorStaysWaitingWithoutFrames(t *testing.T) {
	status := &statusRecorder{}
	proc := NewProcessor(ProcessorConfig{
		StreamKey: "k2",
		MediaID:   1,
		Interval:  1,
		FrameRate: 30,
		Source:    silentSource{},
		Annotator: stubAnnotator{ann: &vision.Annotation{}},
		Sink:      newChanSink(),
		Status:    status,
		Log:       zap.NewNop(),
	})
	go proc.Run()
	time.Sleep(250 * time.Millisecond)
	proc.Stop()

	if sts := status.recorded(); len(sts) != 0 {
		t.Fatalf("expected no transitions before first frame, got %v", sts)
	}
}

func TestProcessorSourceFailureSetsError(t *testing.T) {
	status := &statusRecorder{}
	proc := NewProcessor(ProcessorConfig{
		StreamKey: "k3",
		MediaID:   1,
		Interval:  1,
		FrameRate: 30,
		Source:    &queueSource{},
		Annotator: stubAnnotator{ann: &vision.Annotation{}},
		Sink:      newChanSink(),
		Status:    status,
		Log:       zap.NewNop(),
	})
	go proc.Run()
	<-proc.Done()

	sts := status.recorded()
	if len(sts) != 1 || sts[0] != model.StreamStatusError {
		t.Fatalf("transitions = %v, want [ERROR]", sts)
	}
}

func TestProcessorAnnotatorFailureYieldsEmptyFrame(t *testing.T) {
	sink := newChanSink()
	proc := NewProcessor(ProcessorConfig{
		StreamKey: "k4",
		MediaID:   9,
		Interval:  1,
		FrameRate: 25,
		Source:    &queueSource{frames: frames(1)},
		Annotator: stubAnnotator{err: errors.New("detector down")},
		Sink:      sink,
		Status:    &statusRecorder{},
		Log:       zap.NewNop(),
	})
	go proc.Run()
	<-proc.Done()

	fa := sink.next(t)
	if !fa.Empty() {
		t.Fatalf("expected empty analysis, got %+v", fa)
	}
	if fa.FrameNumber != 1 || fa.Timestamp != 1.0/25 {
		t.Fatalf("frame/timestamp = %d/%v, want 1/%v", fa.FrameNumber, fa.Timestamp, 1.0/25)
	}
}

func TestProcessorStopIsIdempotentWait(t *testing.T) {
	proc := NewProcessor(ProcessorConfig{
		StreamKey: "k5",
		MediaID:   1,
		Interval:  1,
		FrameRate: 30,
		Source:    silentSource{},
		Annotator: stubAnnotator{ann: &vision.Annotation{}},
		Sink:      newChanSink(),
		Status:    &statusRecorder{},
		Log:       zap.NewNop(),
	})
	go proc.Run()
	proc.Stop()
	proc.Stop() // second stop must not block or panic

	select {
	case <-proc.Done():
	default:
		t.Fatal("processor still running after Stop")
	}
}
