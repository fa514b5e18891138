package vision

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/medialens/analysis-service/internal/model"
)

// labelScoreThreshold keeps only confident whole-image labels.
const labelScoreThreshold = 0.75

// bookTextConfidence is the fixed confidence assigned to OCR-derived books.
const bookTextConfidence = 0.80

// categoryKeywords maps object-name substrings to a category.
// Checked in order; first hit wins.
var categoryKeywords = []struct {
	category string
	words    []string
}{
	{"BOOK", []string{"book", "magazine", "journal"}},
	{"FURNITURE", []string{"chair", "table", "desk", "shelf"}},
	{"BEVERAGE", []string{"cup", "coffee", "mug", "bottle"}},
	{"ELECTRONICS", []string{"laptop", "computer", "phone", "tablet"}},
}

// bookKeywords gate book extraction: OCR text without any of these is
// not treated as a book cover or title page.
var bookKeywords = []string{"isbn", "author", "publisher", "edition", "copyright"}

var yearPattern = regexp.MustCompile(`^(19|20)\d\d$`)

// Normalize maps one raw vision response for a single frame into typed
// detections. It is a pure mapping; a nil or empty annotation yields an
// empty result, never an error.
//
// Age bracket and emotion are derived heuristically from the detector's
// likelihood signals (a strong joy signal biases toward CHILD/HAPPY).
// This is a deliberately approximate classifier, not a model.
func Normalize(ann *Annotation, frameNumber int, timestamp float64) model.FrameAnalysis {
	fa := model.FrameAnalysis{FrameNumber: frameNumber, Timestamp: timestamp}
	if ann == nil {
		return fa
	}
	fa.People = normalizePeople(ann, frameNumber, timestamp)
	fa.Objects = normalizeObjects(ann, frameNumber, timestamp)
	fa.Books = normalizeBooks(ann, frameNumber, timestamp)
	return fa
}

func normalizePeople(ann *Annotation, frameNumber int, timestamp float64) []model.PersonInfo {
	var people []model.PersonInfo
	for _, face := range ann.Faces {
		bracket := estimateAgeBracket(face)
		people = append(people, model.PersonInfo{
			UniqueID:     uuid.New().String(),
			AgeBracket:   bracket,
			EstimatedAge: estimatedAgeFor(bracket),
			Emotion:      detectEmotion(face),
			Confidence:   face.DetectionConfidence,
			FrameNumber:  frameNumber,
			Timestamp:    timestamp,
			BoundingBox:  polyToBox(face.BoundingPoly),
		})
	}
	return people
}

func normalizeObjects(ann *Annotation, frameNumber int, timestamp float64) []model.ObjectInfo {
	var objects []model.ObjectInfo
	for _, obj := range ann.Objects {
		objects = append(objects, model.ObjectInfo{
			Name:        obj.Name,
			Category:    categorize(obj.Name),
			Confidence:  obj.Score,
			FrameNumber: frameNumber,
			Timestamp:   timestamp,
			BoundingBox: polyToBox(obj.BoundingPoly),
		})
	}
	for _, label := range ann.Labels {
		if label.Score > labelScoreThreshold {
			objects = append(objects, model.ObjectInfo{
				Name:        label.Description,
				Category:    "LABEL",
				Confidence:  label.Score,
				FrameNumber: frameNumber,
				Timestamp:   timestamp,
			})
		}
	}
	return objects
}

func normalizeBooks(ann *Annotation, frameNumber int, timestamp float64) []model.BookInfo {
	text := ann.FullText()
	if text == "" || !containsBookKeyword(text) {
		return nil
	}
	return []model.BookInfo{{
		UniqueID:      uuid.New().String(),
		Title:         extractTitle(text),
		Author:        extractAuthor(text),
		ISBN:          extractISBN(text),
		Publisher:     extractPublisher(text),
		Year:          extractYear(text),
		ExtractedText: text,
		Confidence:    bookTextConfidence,
		FrameNumber:   frameNumber,
		Timestamp:     timestamp,
	}}
}

// estimateAgeBracket uses joy likelihood as a proxy for age (children
// smile more in the detector's training distribution). Approximate by
// construction; do not refine without a real age model.
func estimateAgeBracket(face FaceAnnotation) model.AgeBracket {
	if likely(face.JoyLikelihood) {
		return model.AgeChild
	}
	return model.AgeAdult
}

func estimatedAgeFor(bracket model.AgeBracket) int {
	switch bracket {
	case model.AgeChild:
		return 10
	case model.AgeTeen:
		return 16
	case model.AgeAdult:
		return 35
	case model.AgeSenior:
		return 65
	default:
		return 30
	}
}

// detectEmotion picks the first likely emotion signal in a fixed order.
func detectEmotion(face FaceAnnotation) model.Emotion {
	switch {
	case likely(face.JoyLikelihood):
		return model.EmotionHappy
	case likely(face.SorrowLikelihood):
		return model.EmotionSad
	case likely(face.AngerLikelihood):
		return model.EmotionAngry
	case likely(face.SurpriseLikelihood):
		return model.EmotionSurprised
	default:
		return model.EmotionNeutral
	}
}

func likely(l Likelihood) bool {
	return l == LikelihoodLikely || l == LikelihoodVeryLikely
}

func categorize(name string) string {
	lower := strings.ToLower(name)
	for _, ck := range categoryKeywords {
		for _, w := range ck.words {
			if strings.Contains(lower, w) {
				return ck.category
			}
		}
	}
	return "GENERAL"
}

func containsBookKeyword(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range bookKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// extractTitle returns the first non-empty OCR line longer than 3 characters.
func extractTitle(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if len(line) > 3 {
			return line
		}
	}
	return ""
}

// extractAuthor returns the text after the first "by " up to the next line break.
func extractAuthor(text string) string {
	lower := strings.ToLower(text)
	idx := strings.Index(lower, "by ")
	if idx < 0 {
		return ""
	}
	after := text[idx+3:]
	if nl := strings.IndexByte(after, '\n'); nl >= 0 {
		after = after[:nl]
	}
	return strings.TrimSpace(after)
}

// extractISBN returns the first whitespace-delimited token whose
// digits-only form is 10 or 13 digits long.
func extractISBN(text string) string {
	for _, word := range strings.Fields(text) {
		var digits strings.Builder
		for _, r := range word {
			if r >= '0' && r <= '9' {
				digits.WriteRune(r)
			}
		}
		if n := digits.Len(); n == 10 || n == 13 {
			return digits.String()
		}
	}
	return ""
}

// extractPublisher returns the first line naming a press or publisher.
func extractPublisher(text string) string {
	for _, line := range strings.Split(text, "\n") {
		lower := strings.ToLower(line)
		if strings.Contains(lower, "press") ||
			strings.Contains(lower, "publishing") ||
			strings.Contains(lower, "publisher") {
			return strings.TrimSpace(line)
		}
	}
	return ""
}

// extractYear returns the first 4-digit token in 1900-2099.
func extractYear(text string) string {
	for _, word := range strings.Fields(text) {
		if yearPattern.MatchString(word) {
			return word
		}
	}
	return ""
}

// polyToBox collapses a bounding polygon to an axis-aligned box.
// Normalized vertices are preferred when both are present.
func polyToBox(poly BoundingPoly) *model.BoundingBox {
	verts := poly.Vertices
	if len(poly.NormalizedVertices) > 0 {
		verts = poly.NormalizedVertices
	}
	if len(verts) == 0 {
		return nil
	}
	minX, minY := verts[0].X, verts[0].Y
	maxX, maxY := minX, minY
	for _, v := range verts[1:] {
		if v.X < minX {
			minX = v.X
		}
		if v.Y < minY {
			minY = v.Y
		}
		if v.X > maxX {
			maxX = v.X
		}
		if v.Y > maxY {
			maxY = v.Y
		}
	}
	return &model.BoundingBox{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}
