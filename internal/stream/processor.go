package stream

import (
	"context"
	"errors"
	"time"

	"github.com/medialens/analysis-service/internal/errs"
	"github.com/medialens/analysis-service/internal/model"
	"github.com/medialens/analysis-service/internal/vision"
	"go.uber.org/zap"
)

// grabTimeout bounds a single ingest read so Stop stays responsive even
// when the publisher goes quiet.
const grabTimeout = 100 * time.Millisecond

// StatusSink records stream state transitions.
type StatusSink interface {
	UpdateStreamStatus(streamKey string, status model.StreamStatus) error
}

// AnalysisSink receives one frame's normalized detections. Completions
// may arrive out of capture order; the sink must tolerate that.
type AnalysisSink interface {
	Submit(mediaID uint, fa model.FrameAnalysis)
}

// Preparer re-encodes a raw ingest frame before detector dispatch
// (typically decode, downscale, JPEG re-encode).
type Preparer func(frame []byte) ([]byte, error)

// Processor owns one live ingest source: it pulls frames, samples every
// Nth one and dispatches sampled frames to the vision capability without
// blocking the grab loop. It is bound 1:1 to a stream key for its
// whole life.
type Processor struct {
	streamKey string
	mediaID   uint
	interval  int
	frameRate float64

	src       Source
	annotator vision.Annotator
	sink      AnalysisSink
	status    StatusSink
	prepare   Preparer
	log       *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	// Written only by Run before done closes; read after Done().
	failed bool
}

// ProcessorConfig carries everything a Processor needs.
type ProcessorConfig struct {
	StreamKey string
	MediaID   uint
	Interval  int
	FrameRate float64
	Source    Source
	Annotator vision.Annotator
	Sink      AnalysisSink
	Status    StatusSink
	Prepare   Preparer
	Log       *zap.Logger
}

// NewProcessor creates a Processor; call Run to start the grab loop.
func NewProcessor(cfg ProcessorConfig) *Processor {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Processor{
		streamKey: cfg.StreamKey,
		mediaID:   cfg.MediaID,
		interval:  cfg.Interval,
		frameRate: cfg.FrameRate,
		src:       cfg.Source,
		annotator: cfg.Annotator,
		sink:      cfg.Sink,
		status:    cfg.Status,
		prepare:   cfg.Prepare,
		log:       cfg.Log,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	if p.interval < 1 {
		p.interval = 1
	}
	if p.prepare == nil {
		p.prepare = func(b []byte) ([]byte, error) { return b, nil }
	}
	return p
}

// Run executes the grab loop until the source ends or Stop is called.
// It transitions the stream to ACTIVE on the first grabbed frame and to
// ERROR on ingest failure; it never sets ENDED itself (the Lifecycle
// Manager owns that transition on explicit stop).
func (p *Processor) Run() {
	defer close(p.done)
	defer p.src.Close()

	if err := p.src.Open(p.ctx); err != nil {
		p.log.Error("ingest open failed",
			zap.String("stream_key", p.streamKey), zap.Error(err))
		p.failed = true
		p.setStatus(model.StreamStatusError)
		return
	}
	// The stream stays WAITING until the publisher delivers its first
	// frame; ACTIVE is entered on the first successful grab.
	var activated bool
	var frameCount int
	for {
		select {
		case <-p.ctx.Done():
			return
		default:
		}

		frame, err := p.src.Grab(grabTimeout)
		if errors.Is(err, ErrNoFrame) {
			continue
		}
		if err != nil {
			if p.ctx.Err() != nil {
				// Stop raced the source teardown; the manager's
				// ENDED transition wins.
				return
			}
			if errors.Is(err, errs.ErrSourceClosed) {
				p.log.Warn("ingest source closed unexpectedly",
					zap.String("stream_key", p.streamKey))
			} else {
				p.log.Error("ingest read failed",
					zap.String("stream_key", p.streamKey), zap.Error(err))
			}
			p.failed = true
			p.setStatus(model.StreamStatusError)
			return
		}

		if !activated {
			activated = true
			p.setStatus(model.StreamStatusActive)
			p.log.Info("frame processor active",
				zap.String("stream_key", p.streamKey),
				zap.Int("sampling_interval", p.interval),
				zap.Float64("frame_rate", p.frameRate))
		}

		frameCount++
		if frameCount%p.interval != 0 {
			continue
		}

		buf, err := p.prepare(frame)
		if err != nil {
			p.log.Warn("frame prepare failed",
				zap.String("stream_key", p.streamKey),
				zap.Int("frame", frameCount), zap.Error(err))
			continue
		}
		timestamp := float64(frameCount) / p.frameRate
		// Fire and forget: the grab loop never waits on the detector.
		go p.analyze(buf, frameCount, timestamp)
	}
}

// Stop requests cooperative termination and waits for the loop to exit.
func (p *Processor) Stop() {
	p.cancel()
	<-p.done
}

// Done exposes loop completion for tests and the manager.
func (p *Processor) Done() <-chan struct{} { return p.done }

// Failed reports whether the loop exited on an ingest failure rather
// than a cooperative stop. Valid only after Done() is closed.
func (p *Processor) Failed() bool { return p.failed }

// analyze runs one sampled frame through the vision capability and
// hands the normalized result to the sink. Detector failure yields an
// empty result for this frame only; the run continues.
func (p *Processor) analyze(image []byte, frameNumber int, timestamp float64) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	ann, err := p.annotator.Annotate(ctx, image)
	if err != nil {
		p.log.Warn("frame analysis failed",
			zap.String("stream_key", p.streamKey),
			zap.Int("frame", frameNumber), zap.Error(err))
		ann = nil
	}
	fa := vision.Normalize(ann, frameNumber, timestamp)
	p.sink.Submit(p.mediaID, fa)
}

func (p *Processor) setStatus(st model.StreamStatus) {
	if err := p.status.UpdateStreamStatus(p.streamKey, st); err != nil {
		p.log.Warn("stream status update failed",
			zap.String("stream_key", p.streamKey),
			zap.String("status", string(st)), zap.Error(err))
	}
}
