package media

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/medialens/analysis-service/internal/ai"
	"github.com/medialens/analysis-service/internal/errs"
	"github.com/medialens/analysis-service/internal/model"
	"github.com/medialens/analysis-service/internal/vision"
	"go.uber.org/zap"
)

// processTimeout bounds one full upload analysis pass.
const processTimeout = 30 * time.Minute

var imageExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true}
var videoExts = map[string]bool{".mp4": true, ".avi": true, ".mov": true, ".mkv": true, ".webm": true}

// Store is the persistence surface the media service needs.
type Store interface {
	CreateMedia(m *model.MediaFile) error
	MediaByID(id uint) (*model.MediaFile, error)
	ListMedia(kind, status string, limit, offset int) ([]model.MediaFile, int64, error)
	UpdateMedia(id uint, fields map[string]any) error
	DeleteMedia(id uint) error
	SaveDetections(mediaID uint, fa model.FrameAnalysis) error
	UpdateCounts(mediaID uint, frames, people, objects, books int) error
	DetectionsByMedia(mediaID uint) ([]model.PersonInfo, []model.ObjectInfo, []model.BookInfo, error)
}

// Config carries the tunables for upload processing.
type Config struct {
	UploadDir        string
	SamplingInterval int
	MaxFrameEdge     int
	FrameRate        float64 // fallback when probing fails
}

// Service owns uploaded media: it persists the file, runs the frame
// analysis pass and serves analysis results back out.
type Service struct {
	store     Store
	annotator vision.Annotator
	gen       ai.Generator
	extractor *Extractor
	cfg       Config
	log       *zap.Logger
}

// NewService creates the media service.
func NewService(store Store, annotator vision.Annotator, gen ai.Generator, extractor *Extractor, cfg Config, log *zap.Logger) *Service {
	if cfg.SamplingInterval < 1 {
		cfg.SamplingInterval = 1
	}
	return &Service{
		store:     store,
		annotator: annotator,
		gen:       gen,
		extractor: extractor,
		cfg:       cfg,
		log:       log,
	}
}

// Upload stores the file, registers the media item and schedules the
// analysis pass. The returned result carries status PROCESSING; callers
// poll Get for completion.
func (s *Service) Upload(fileName string, size int64, r io.Reader) (*model.AnalysisResult, error) {
	kind, err := kindForFile(fileName)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(s.cfg.UploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	path := filepath.Join(s.cfg.UploadDir, uuid.New().String()+strings.ToLower(filepath.Ext(fileName)))
	dst, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create upload file: %w", err)
	}
	written, err := io.Copy(dst, r)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("write upload file: %w", err)
	}
	if size <= 0 {
		size = written
	}

	media := &model.MediaFile{
		FileName: fileName,
		FilePath: path,
		Kind:     string(kind),
		FileSize: size,
		Status:   string(model.MediaStatusProcessing),
	}
	if err := s.store.CreateMedia(media); err != nil {
		os.Remove(path)
		return nil, err
	}

	s.log.Info("media uploaded",
		zap.Uint("media_id", media.ID),
		zap.String("file_name", fileName),
		zap.String("kind", string(kind)),
		zap.Int64("size", size))

	go s.process(media.ID, path, kind)

	return resultFor(media, nil, nil, nil, nil), nil
}

// process runs the full analysis pass for one uploaded file.
func (s *Service) process(mediaID uint, path string, kind model.MediaKind) {
	ctx, cancel := context.WithTimeout(context.Background(), processTimeout)
	defer cancel()

	var err error
	switch kind {
	case model.MediaKindImage:
		err = s.processImage(ctx, mediaID, path)
	case model.MediaKindVideo:
		err = s.processVideo(ctx, mediaID, path)
	default:
		err = errs.ErrUnsupportedMedia
	}
	if err != nil {
		s.log.Error("media processing failed",
			zap.Uint("media_id", mediaID), zap.Error(err))
		s.fail(mediaID, err)
		return
	}

	s.summarize(ctx, mediaID)
	if err := s.store.UpdateMedia(mediaID, map[string]any{
		"status": string(model.MediaStatusCompleted),
	}); err != nil {
		s.log.Error("media completion update failed",
			zap.Uint("media_id", mediaID), zap.Error(err))
	}
	s.log.Info("media processing finished", zap.Uint("media_id", mediaID))
}

// processImage analyzes a still image as a single frame 0 at time 0.
func (s *Service) processImage(ctx context.Context, mediaID uint, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}
	fa := s.analyzeFrame(ctx, mediaID, data, 0, 0)
	if !fa.Empty() {
		if err := s.store.SaveDetections(mediaID, fa); err != nil {
			return err
		}
	}
	return s.store.UpdateCounts(mediaID, 1,
		len(fa.People), len(fa.Objects), len(fa.Books))
}

// processVideo samples the file and analyzes every sampled frame
// sequentially. Counters are written once at the end of the pass.
func (s *Service) processVideo(ctx context.Context, mediaID uint, path string) error {
	frameRate, duration, err := s.extractor.Probe(ctx, path)
	if err != nil || frameRate <= 0 {
		s.log.Warn("video probe failed, using default frame rate",
			zap.Uint("media_id", mediaID),
			zap.Float64("default", s.cfg.FrameRate), zap.Error(err))
		frameRate = s.cfg.FrameRate
	}
	fields := map[string]any{"frame_rate": frameRate}
	if duration > 0 {
		fields["duration"] = int(duration)
	}
	if err := s.store.UpdateMedia(mediaID, fields); err != nil {
		return err
	}

	var frames, people, objects, books int
	err = s.extractor.Frames(ctx, path, s.cfg.SamplingInterval, func(frameNumber int, data []byte) error {
		fa := s.analyzeFrame(ctx, mediaID, data, frameNumber, float64(frameNumber)/frameRate)
		if !fa.Empty() {
			if err := s.store.SaveDetections(mediaID, fa); err != nil {
				return err
			}
		}
		frames++
		people += len(fa.People)
		objects += len(fa.Objects)
		books += len(fa.Books)
		return nil
	})
	if err != nil {
		return err
	}
	return s.store.UpdateCounts(mediaID, frames, people, objects, books)
}

// analyzeFrame runs one frame through preparation and the vision
// capability. Failures degrade to an empty result for that frame.
func (s *Service) analyzeFrame(ctx context.Context, mediaID uint, data []byte, frameNumber int, timestamp float64) model.FrameAnalysis {
	buf, err := PrepareFrame(data, s.cfg.MaxFrameEdge)
	if err != nil {
		s.log.Warn("frame prepare failed",
			zap.Uint("media_id", mediaID),
			zap.Int("frame", frameNumber), zap.Error(err))
		buf = data
	}
	ann, err := s.annotator.Annotate(ctx, buf)
	if err != nil {
		s.log.Warn("frame analysis failed",
			zap.Uint("media_id", mediaID),
			zap.Int("frame", frameNumber), zap.Error(err))
		ann = nil
	}
	return vision.Normalize(ann, frameNumber, timestamp)
}

func (s *Service) fail(mediaID uint, cause error) {
	err := s.store.UpdateMedia(mediaID, map[string]any{
		"status":        string(model.MediaStatusFailed),
		"error_message": cause.Error(),
	})
	if err != nil {
		s.log.Error("media failure update failed",
			zap.Uint("media_id", mediaID), zap.Error(err))
	}
}

// summarize asks the text-generation capability for a prose summary.
// Best effort: failure is logged, never propagated.
func (s *Service) summarize(ctx context.Context, mediaID uint) {
	if s.gen == nil {
		return
	}
	media, err := s.store.MediaByID(mediaID)
	if err != nil {
		return
	}
	summary, err := s.gen.Summarize(ctx, ContextFor(media))
	if err != nil {
		s.log.Warn("summary generation failed",
			zap.Uint("media_id", mediaID), zap.Error(err))
		return
	}
	if err := s.store.UpdateMedia(mediaID, map[string]any{"summary": summary}); err != nil {
		s.log.Warn("summary save failed",
			zap.Uint("media_id", mediaID), zap.Error(err))
	}
}

// Get returns the full analysis result for one media item.
func (s *Service) Get(id uint, withStats bool) (*model.AnalysisResult, error) {
	media, err := s.store.MediaByID(id)
	if err != nil {
		return nil, err
	}
	people, objects, books, err := s.store.DetectionsByMedia(id)
	if err != nil {
		return nil, err
	}
	var stats *model.StatisticsInfo
	if withStats {
		stats = BuildStatistics(people, objects, books)
	}
	return resultFor(media, people, objects, books, stats), nil
}

// List returns media items filtered by kind and/or status, newest first.
func (s *Service) List(kind, status string, limit, offset int) ([]model.AnalysisResult, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	items, total, err := s.store.ListMedia(kind, status, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	out := make([]model.AnalysisResult, 0, len(items))
	for i := range items {
		out = append(out, *resultFor(&items[i], nil, nil, nil, nil))
	}
	return out, total, nil
}

// Delete removes a media item, its detections and its stored file.
func (s *Service) Delete(id uint) error {
	media, err := s.store.MediaByID(id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteMedia(id); err != nil {
		return err
	}
	if media.FilePath != "" {
		if err := os.Remove(media.FilePath); err != nil && !os.IsNotExist(err) {
			s.log.Warn("upload file removal failed",
				zap.Uint("media_id", id), zap.Error(err))
		}
	}
	return nil
}

// Statistics returns aggregate detection statistics for one media item.
func (s *Service) Statistics(id uint) (*model.StatisticsInfo, error) {
	if _, err := s.store.MediaByID(id); err != nil {
		return nil, err
	}
	people, objects, books, err := s.store.DetectionsByMedia(id)
	if err != nil {
		return nil, err
	}
	return BuildStatistics(people, objects, books), nil
}

// BuildStatistics aggregates detections into per-bracket counts and an
// overall confidence average.
func BuildStatistics(people []model.PersonInfo, objects []model.ObjectInfo, books []model.BookInfo) *model.StatisticsInfo {
	stats := &model.StatisticsInfo{
		TotalPeople:       len(people),
		TotalObjects:      len(objects),
		TotalBooks:        len(books),
		PeopleByAge:       map[string]int{},
		PeopleByEmotion:   map[string]int{},
		ObjectsByCategory: map[string]int{},
	}

	var confSum float64
	var confN int
	unique := map[string]struct{}{}
	for _, p := range people {
		stats.PeopleByAge[string(p.AgeBracket)]++
		stats.PeopleByEmotion[string(p.Emotion)]++
		confSum += p.Confidence
		confN++
		if p.UniqueID != "" {
			unique[p.UniqueID] = struct{}{}
		}
	}
	for _, o := range objects {
		stats.ObjectsByCategory[o.Category]++
		confSum += o.Confidence
		confN++
	}
	for _, b := range books {
		confSum += b.Confidence
		confN++
	}
	if confN > 0 {
		stats.AverageConfidence = confSum / float64(confN)
	}
	stats.UniquePeople = len(unique)
	return stats
}

// ContextFor builds the prompt context for a media item.
func ContextFor(m *model.MediaFile) ai.MediaContext {
	mc := ai.MediaContext{
		FileName:    m.FileName,
		Kind:        model.MediaKind(m.Kind),
		PeopleCount: m.PeopleCount,
		ObjectCount: m.ObjectsCount,
		BookCount:   m.BooksCount,
	}
	if m.Duration != nil {
		mc.Duration = *m.Duration
	}
	return mc
}

func resultFor(m *model.MediaFile, people []model.PersonInfo, objects []model.ObjectInfo, books []model.BookInfo, stats *model.StatisticsInfo) *model.AnalysisResult {
	if people == nil {
		people = []model.PersonInfo{}
	}
	if objects == nil {
		objects = []model.ObjectInfo{}
	}
	if books == nil {
		books = []model.BookInfo{}
	}
	return &model.AnalysisResult{
		MediaID:         m.ID,
		FileName:        m.FileName,
		Kind:            model.MediaKind(m.Kind),
		Status:          model.MediaStatus(m.Status),
		IsLive:          m.IsLive,
		IngestURL:       m.IngestURL,
		PlaybackURL:     m.PlaybackURL,
		Duration:        m.Duration,
		FrameRate:       m.FrameRate,
		FramesProcessed: m.FramesProcessed,
		PeopleCount:     m.PeopleCount,
		ObjectsCount:    m.ObjectsCount,
		BooksCount:      m.BooksCount,
		Summary:         m.Summary,
		ErrorMessage:    m.ErrorMessage,
		UploadedAt:      m.CreatedAt,
		People:          people,
		Objects:         objects,
		Books:           books,
		Statistics:      stats,
	}
}

// kindForFile classifies an upload by extension.
func kindForFile(fileName string) (model.MediaKind, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	switch {
	case imageExts[ext]:
		return model.MediaKindImage, nil
	case videoExts[ext]:
		return model.MediaKindVideo, nil
	default:
		return "", errs.ErrUnsupportedMedia
	}
}
