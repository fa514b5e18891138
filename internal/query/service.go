package query

import (
	"context"
	"time"

	"github.com/medialens/analysis-service/internal/ai"
	"github.com/medialens/analysis-service/internal/media"
	"github.com/medialens/analysis-service/internal/model"
	"go.uber.org/zap"
)

// historyLimit caps how many audit rows History returns by default.
const historyLimit = 20

// Store is the persistence surface the query service needs.
type Store interface {
	MediaByID(id uint) (*model.MediaFile, error)
	DetectionsByMedia(mediaID uint) ([]model.PersonInfo, []model.ObjectInfo, []model.BookInfo, error)
	SaveQueryRecord(rec *model.QueryRecord) error
	QueryHistory(mediaID uint, limit int) ([]model.QueryRecord, error)
}

// Service processes free-text queries: deterministic matching first,
// best-effort AI enrichment on top, one audit row per query.
type Service struct {
	store   Store
	matcher *Matcher
	gen     ai.Generator
	log     *zap.Logger
}

// NewService creates the query service. gen may be nil, in which case
// every response carries only deterministic text.
func NewService(store Store, gen ai.Generator, log *zap.Logger) *Service {
	return &Service{store: store, matcher: NewMatcher(), gen: gen, log: log}
}

// Process answers one query against a media item's detections.
func (s *Service) Process(ctx context.Context, req model.QueryRequest) (*model.QueryResponse, error) {
	started := time.Now()

	mediaFile, err := s.store.MediaByID(req.MediaID)
	if err != nil {
		return nil, err
	}
	people, objects, books, err := s.store.DetectionsByMedia(req.MediaID)
	if err != nil {
		return nil, err
	}

	matches := s.matcher.Match(req.Query, req.TimeRange, people, objects, books)
	answer := s.matcher.Answer(matches)
	mc := media.ContextFor(mediaFile)
	queryType := s.classify(ctx, req)

	var aiAnswer string
	var suggestions []string
	if s.gen != nil {
		aiAnswer, err = s.gen.EnhanceAnswer(ctx, req.Query, matches, mc)
		if err != nil {
			s.log.Warn("answer enhancement failed",
				zap.Uint("media_id", req.MediaID), zap.Error(err))
			aiAnswer = ""
		}
		suggestions, err = s.gen.Suggest(ctx, mc)
		if err != nil {
			s.log.Warn("suggestion generation failed",
				zap.Uint("media_id", req.MediaID), zap.Error(err))
			suggestions = ai.FallbackSuggestions
		}
	} else {
		suggestions = ai.FallbackSuggestions
	}

	resp := &model.QueryResponse{
		Query:       req.Query,
		QueryType:   queryType,
		Found:       len(matches) > 0,
		Answer:      answer,
		AIAnswer:    aiAnswer,
		Matches:     matches,
		Total:       len(matches),
		Confidence:  AverageConfidence(matches),
		RespSeconds: time.Since(started).Seconds(),
		Timestamp:   time.Now(),
		Suggestions: suggestions,
	}

	rec := &model.QueryRecord{
		MediaFileID: req.MediaID,
		Query:       req.Query,
		Answer:      answer,
		AIAnswer:    aiAnswer,
		MatchCount:  resp.Total,
		RespSeconds: resp.RespSeconds,
	}
	if err := s.store.SaveQueryRecord(rec); err != nil {
		// The answer is still valid; only the audit trail is degraded.
		s.log.Warn("query record save failed",
			zap.Uint("media_id", req.MediaID), zap.Error(err))
	}

	s.log.Info("query processed",
		zap.Uint("media_id", req.MediaID),
		zap.String("query", req.Query),
		zap.Int("matches", resp.Total))
	return resp, nil
}

// classify resolves the query type: the caller-supplied type wins,
// otherwise the text-generation capability classifies the query,
// degrading to the fallback type when unavailable.
func (s *Service) classify(ctx context.Context, req model.QueryRequest) string {
	if req.QueryType != "" {
		return req.QueryType
	}
	if s.gen == nil {
		return ai.FallbackQueryType
	}
	kind, err := s.gen.Classify(ctx, req.Query)
	if err != nil {
		s.log.Warn("query classification failed",
			zap.Uint("media_id", req.MediaID), zap.Error(err))
		return ai.FallbackQueryType
	}
	return kind
}

// History returns the most recent queries asked about a media item.
func (s *Service) History(mediaID uint, limit int) ([]model.QueryResponse, error) {
	if _, err := s.store.MediaByID(mediaID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = historyLimit
	}
	records, err := s.store.QueryHistory(mediaID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]model.QueryResponse, 0, len(records))
	for _, r := range records {
		out = append(out, model.QueryResponse{
			Query:       r.Query,
			Found:       r.MatchCount > 0,
			Answer:      r.Answer,
			AIAnswer:    r.AIAnswer,
			Total:       r.MatchCount,
			RespSeconds: r.RespSeconds,
			Timestamp:   r.CreatedAt,
		})
	}
	return out, nil
}

// Suggestions proposes queries for a media item, falling back to a
// static set when the text-generation capability is unavailable.
func (s *Service) Suggestions(ctx context.Context, mediaID uint) ([]string, error) {
	mediaFile, err := s.store.MediaByID(mediaID)
	if err != nil {
		return nil, err
	}
	if s.gen == nil {
		return ai.FallbackSuggestions, nil
	}
	suggestions, err := s.gen.Suggest(ctx, media.ContextFor(mediaFile))
	if err != nil || len(suggestions) == 0 {
		return ai.FallbackSuggestions, nil
	}
	return suggestions, nil
}
