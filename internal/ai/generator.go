// Package ai consumes the external text-generation capability. Every
// operation is a best-effort enrichment: callers fall back to
// deterministic text when a call fails.
package ai

import (
	"context"

	"github.com/medialens/analysis-service/internal/model"
)

// MediaContext is the detection summary handed to prompt builders.
type MediaContext struct {
	FileName    string
	Kind        model.MediaKind
	PeopleCount int
	ObjectCount int
	BookCount   int
	Duration    int // seconds, 0 when unknown
}

// Generator is the external text-generation capability.
type Generator interface {
	// Summarize produces a prose summary of an analyzed media item.
	Summarize(ctx context.Context, mc MediaContext) (string, error)
	// EnhanceAnswer rewrites the deterministic query answer conversationally.
	EnhanceAnswer(ctx context.Context, query string, matches []model.QueryMatch, mc MediaContext) (string, error)
	// Suggest proposes follow-up queries for a media item.
	Suggest(ctx context.Context, mc MediaContext) ([]string, error)
	// Classify buckets a query into GENERAL, COUNT, SEARCH, TEMPORAL or CONTEXTUAL.
	Classify(ctx context.Context, query string) (string, error)
}

// FallbackSuggestions is returned whenever suggestion generation fails.
var FallbackSuggestions = []string{
	"How many people are in the video?",
	"What books are visible?",
	"Are there any children present?",
}

// FallbackQueryType is used whenever classification fails.
const FallbackQueryType = "GENERAL"
