// Package vision consumes the external vision capability and normalizes
// its raw per-frame annotations into typed detections.
package vision

import "context"

// Likelihood mirrors the detector's bucketed likelihood signal.
type Likelihood string

const (
	LikelihoodUnknown    Likelihood = "UNKNOWN"
	LikelihoodVeryUnlike Likelihood = "VERY_UNLIKELY"
	LikelihoodUnlikely   Likelihood = "UNLIKELY"
	LikelihoodPossible   Likelihood = "POSSIBLE"
	LikelihoodLikely     Likelihood = "LIKELY"
	LikelihoodVeryLikely Likelihood = "VERY_LIKELY"
)

// Vertex is one corner of a bounding polygon, pixel coordinates.
type Vertex struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// BoundingPoly is a detection's polygon. Localized objects carry
// normalized vertices in [0,1], faces carry pixel vertices.
type BoundingPoly struct {
	Vertices           []Vertex `json:"vertices,omitempty"`
	NormalizedVertices []Vertex `json:"normalizedVertices,omitempty"`
}

// FaceAnnotation is one raw face detection.
type FaceAnnotation struct {
	DetectionConfidence float64      `json:"detectionConfidence"`
	JoyLikelihood       Likelihood   `json:"joyLikelihood"`
	SorrowLikelihood    Likelihood   `json:"sorrowLikelihood"`
	AngerLikelihood     Likelihood   `json:"angerLikelihood"`
	SurpriseLikelihood  Likelihood   `json:"surpriseLikelihood"`
	BoundingPoly        BoundingPoly `json:"boundingPoly"`
}

// ObjectAnnotation is one raw localized object detection.
type ObjectAnnotation struct {
	Name         string       `json:"name"`
	Score        float64      `json:"score"`
	BoundingPoly BoundingPoly `json:"boundingPoly"`
}

// LabelAnnotation is one raw whole-image label.
type LabelAnnotation struct {
	Description string  `json:"description"`
	Score       float64 `json:"score"`
}

// TextAnnotation carries OCR output; the first entry is the full text.
type TextAnnotation struct {
	Description string `json:"description"`
}

// Annotation is the raw per-frame response from the vision capability.
type Annotation struct {
	Faces   []FaceAnnotation   `json:"faceAnnotations"`
	Objects []ObjectAnnotation `json:"localizedObjectAnnotations"`
	Labels  []LabelAnnotation  `json:"labelAnnotations"`
	Texts   []TextAnnotation   `json:"textAnnotations"`
}

// FullText returns the whole-image OCR text, if any.
func (a *Annotation) FullText() string {
	if a == nil || len(a.Texts) == 0 {
		return ""
	}
	return a.Texts[0].Description
}

// Annotator is the external vision capability. A failed call affects
// only the frame it was made for, never the whole run.
type Annotator interface {
	Annotate(ctx context.Context, image []byte) (*Annotation, error)
}
