// Package query answers free-text questions against the persisted
// detections of a single media item. Matching is deterministic: the
// same detections and query always produce the same ranked matches and
// answer text.
package query

import (
	"fmt"
	"sort"
	"strings"

	"github.com/medialens/analysis-service/internal/model"
)

// NoMatchAnswer is returned when nothing in the media satisfies a query.
const NoMatchAnswer = "No matches found for your query."

var stopWords = map[string]bool{
	"is": true, "are": true, "the": true, "a": true, "an": true,
	"in": true, "on": true, "at": true, "any": true, "anyone": true,
	"there": true, "what": true, "when": true, "where": true,
	"how": true, "many": true,
}

// ageKeywords maps query words to the age bracket they ask about.
var ageKeywords = map[string]model.AgeBracket{
	"child":  model.AgeChild,
	"kid":    model.AgeChild,
	"adult":  model.AgeAdult,
	"senior": model.AgeSenior,
}

// emotionKeywords maps query words to the emotion they ask about.
var emotionKeywords = map[string]model.Emotion{
	"happy":   model.EmotionHappy,
	"smiling": model.EmotionHappy,
	"sad":     model.EmotionSad,
	"angry":   model.EmotionAngry,
}

var beverageQueryWords = []string{"drinking", "coffee", "cup", "beverage"}
var beverageObjectWords = []string{"cup", "coffee", "mug", "bottle"}

// Matcher evaluates queries against detections. Stateless and safe for
// concurrent use.
type Matcher struct{}

// NewMatcher creates a Matcher.
func NewMatcher() *Matcher { return &Matcher{} }

// Match classifies the query, scans the detections and returns ranked,
// deduplicated matches. A nil time range means the whole media.
func (m *Matcher) Match(query string, tr *model.TimeRange,
	people []model.PersonInfo, objects []model.ObjectInfo, books []model.BookInfo) []model.QueryMatch {

	q := strings.ToLower(query)
	var matches []model.QueryMatch
	matches = append(matches, matchPeople(q, tr, people)...)
	matches = append(matches, matchObjects(q, tr, objects)...)
	matches = append(matches, matchBooks(q, tr, books)...)

	matches = dedup(matches)
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Confidence != matches[j].Confidence {
			return matches[i].Confidence > matches[j].Confidence
		}
		return matches[i].FrameNumber < matches[j].FrameNumber
	})
	return matches
}

// Answer renders the deterministic answer text for a set of matches.
func (m *Matcher) Answer(matches []model.QueryMatch) string {
	if len(matches) == 0 {
		return NoMatchAnswer
	}

	counts := map[model.MatchType]int{}
	first := matches[0].Timestamp
	for _, match := range matches {
		counts[match.Type]++
		if match.Timestamp < first {
			first = match.Timestamp
		}
	}

	var parts []string
	if n := counts[model.MatchPerson]; n > 0 {
		parts = append(parts, fmt.Sprintf("%d person(s)", n))
	}
	if n := counts[model.MatchObject]; n > 0 {
		parts = append(parts, fmt.Sprintf("%d object(s)", n))
	}
	if n := counts[model.MatchBook]; n > 0 {
		parts = append(parts, fmt.Sprintf("%d book(s)", n))
	}

	return fmt.Sprintf("Found %d match(es). %s. First occurrence at %.2f seconds.",
		len(matches), strings.Join(parts, ", "), first)
}

// AverageConfidence is the mean confidence across matches, 0 when empty.
func AverageConfidence(matches []model.QueryMatch) float64 {
	if len(matches) == 0 {
		return 0
	}
	var sum float64
	for _, m := range matches {
		sum += m.Confidence
	}
	return sum / float64(len(matches))
}

func matchPeople(q string, tr *model.TimeRange, people []model.PersonInfo) []model.QueryMatch {
	wantsAll := strings.Contains(q, "person") || strings.Contains(q, "people") ||
		strings.Contains(q, "how many")

	var out []model.QueryMatch
	for _, p := range people {
		if !inRange(tr, p.Timestamp) {
			continue
		}

		matched := false
		description := ""
		for word, bracket := range ageKeywords {
			if strings.Contains(q, word) && p.AgeBracket == bracket {
				matched = true
				description = titleCase(string(bracket)) + " detected"
			}
		}
		for word, emotion := range emotionKeywords {
			if strings.Contains(q, word) && p.Emotion == emotion {
				matched = true
				description = titleCase(string(emotion)) + " person detected"
			}
		}
		if wantsAll {
			matched = true
			description = fmt.Sprintf("%s %s person", p.Emotion, p.AgeBracket)
		}

		if matched {
			out = append(out, model.QueryMatch{
				Type:        model.MatchPerson,
				Description: description,
				FrameNumber: p.FrameNumber,
				Timestamp:   p.Timestamp,
				Confidence:  p.Confidence,
			})
		}
	}
	return out
}

func matchObjects(q string, tr *model.TimeRange, objects []model.ObjectInfo) []model.QueryMatch {
	keywords := residualKeywords(q)
	wantsBeverage := containsAny(q, beverageQueryWords)

	var out []model.QueryMatch
	for _, o := range objects {
		if !inRange(tr, o.Timestamp) {
			continue
		}
		name := strings.ToLower(o.Name)
		category := strings.ToLower(o.Category)

		if strings.Contains(q, name) || (category != "" && strings.Contains(q, category)) ||
			matchesKeyword(name, category, keywords) {
			out = append(out, model.QueryMatch{
				Type:        model.MatchObject,
				Description: "Found " + o.Name,
				FrameNumber: o.FrameNumber,
				Timestamp:   o.Timestamp,
				Confidence:  o.Confidence,
			})
		}

		if wantsBeverage && containsAny(name, beverageObjectWords) {
			out = append(out, model.QueryMatch{
				Type:        model.MatchObject,
				Description: "Person may be drinking - " + o.Name + " detected",
				FrameNumber: o.FrameNumber,
				Timestamp:   o.Timestamp,
				Confidence:  o.Confidence,
			})
		}
	}
	return out
}

func matchBooks(q string, tr *model.TimeRange, books []model.BookInfo) []model.QueryMatch {
	wantsBooks := strings.Contains(q, "book") || strings.Contains(q, "reading")

	var out []model.QueryMatch
	for _, b := range books {
		if !inRange(tr, b.Timestamp) {
			continue
		}
		title := strings.ToLower(b.Title)
		author := strings.ToLower(b.Author)

		matched := wantsBooks
		if !matched && title != "" && strings.Contains(q, title) {
			matched = true
		}
		if !matched && author != "" && strings.Contains(q, author) {
			matched = true
		}
		if !matched {
			continue
		}

		description := "Book: " + b.Title
		if b.Author != "" {
			description += " by " + b.Author
		}
		out = append(out, model.QueryMatch{
			Type:        model.MatchBook,
			Description: description,
			FrameNumber: b.FrameNumber,
			Timestamp:   b.Timestamp,
			Confidence:  b.Confidence,
		})
	}
	return out
}

// residualKeywords extracts the free search terms of a query: stop
// words and words already consumed by a keyword table are removed, as
// are tokens too short to be meaningful.
func residualKeywords(q string) []string {
	var out []string
	for _, tok := range strings.Fields(q) {
		tok = strings.Trim(tok, "?!.,;:'\"")
		if len(tok) <= 2 || stopWords[tok] {
			continue
		}
		if _, ok := ageKeywords[tok]; ok {
			continue
		}
		if _, ok := emotionKeywords[tok]; ok {
			continue
		}
		switch tok {
		case "person", "people", "book", "books", "reading",
			"drinking", "coffee", "cup", "beverage":
			continue
		}
		out = append(out, tok)
	}
	return out
}

func matchesKeyword(name, category string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(name, kw) || (category != "" && strings.Contains(category, kw)) {
			return true
		}
	}
	return false
}

// dedup removes repeated hits for the same detection: identical type,
// description and frame collapse to the first occurrence.
func dedup(matches []model.QueryMatch) []model.QueryMatch {
	type key struct {
		t     model.MatchType
		desc  string
		frame int
	}
	seen := map[key]bool{}
	out := matches[:0]
	for _, m := range matches {
		k := key{m.Type, m.Description, m.FrameNumber}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, m)
	}
	return out
}

func inRange(tr *model.TimeRange, ts float64) bool {
	if tr == nil {
		return true
	}
	return ts >= tr.Start && ts <= tr.End
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}
