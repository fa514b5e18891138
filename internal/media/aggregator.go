package media

import (
	"sync"

	"github.com/medialens/analysis-service/internal/model"
	"go.uber.org/zap"
)

// aggregatorQueue bounds in-flight frame results. Detector goroutines
// block here when persistence falls behind; the grab loops never do.
const aggregatorQueue = 256

// AggregatorStore is the persistence surface the Aggregator writes to.
type AggregatorStore interface {
	SaveDetections(mediaID uint, fa model.FrameAnalysis) error
	IncrementCounts(mediaID uint, frames, people, objects, books int) error
}

type submission struct {
	mediaID uint
	fa      model.FrameAnalysis
}

// Aggregator is the single writer for live detection results. Frame
// analyses arrive concurrently and possibly out of capture order; the
// aggregator serializes them onto one worker so detection rows and
// counters never race. Per-frame data is independent, so arrival order
// does not affect the stored result.
type Aggregator struct {
	store AggregatorStore
	log   *zap.Logger

	mu     sync.RWMutex
	ch     chan submission
	closed bool
	done   chan struct{}
}

// NewAggregator creates and starts the aggregation worker.
func NewAggregator(store AggregatorStore, log *zap.Logger) *Aggregator {
	a := &Aggregator{
		store: store,
		ch:    make(chan submission, aggregatorQueue),
		log:   log,
		done:  make(chan struct{}),
	}
	go a.run()
	return a
}

// Submit queues one frame's normalized detections for persistence. It
// blocks only when the aggregation queue is full. Submissions after
// Close are dropped with a warning.
func (a *Aggregator) Submit(mediaID uint, fa model.FrameAnalysis) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		a.log.Warn("submission after aggregator shutdown",
			zap.Uint("media_id", mediaID), zap.Int("frame", fa.FrameNumber))
		return
	}
	a.ch <- submission{mediaID: mediaID, fa: fa}
}

// Close drains the queue and stops the worker. Safe to call more than once.
func (a *Aggregator) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	close(a.ch)
	a.mu.Unlock()
	<-a.done
}

func (a *Aggregator) run() {
	defer close(a.done)
	for s := range a.ch {
		a.persist(s.mediaID, s.fa)
	}
}

func (a *Aggregator) persist(mediaID uint, fa model.FrameAnalysis) {
	if !fa.Empty() {
		if err := a.store.SaveDetections(mediaID, fa); err != nil {
			a.log.Error("detection save failed",
				zap.Uint("media_id", mediaID),
				zap.Int("frame", fa.FrameNumber), zap.Error(err))
			return
		}
	}
	err := a.store.IncrementCounts(mediaID, 1,
		len(fa.People), len(fa.Objects), len(fa.Books))
	if err != nil {
		a.log.Error("counter update failed",
			zap.Uint("media_id", mediaID),
			zap.Int("frame", fa.FrameNumber), zap.Error(err))
	}
}
