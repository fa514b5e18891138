package model

import "time"

// MediaKind classifies how a media item entered the system.
type MediaKind string

const (
	MediaKindImage      MediaKind = "IMAGE"
	MediaKindVideo      MediaKind = "VIDEO"
	MediaKindLiveStream MediaKind = "LIVE_STREAM"
)

// MediaStatus is the processing state of a media item.
type MediaStatus string

const (
	MediaStatusPending    MediaStatus = "PENDING"
	MediaStatusProcessing MediaStatus = "PROCESSING"
	MediaStatusStreaming  MediaStatus = "STREAMING"
	MediaStatusCompleted  MediaStatus = "COMPLETED"
	MediaStatusFailed     MediaStatus = "FAILED"
)

// StreamStatus is the live-stream state machine:
// WAITING -> ACTIVE -> {ENDED | ERROR}. PAUSED sits between ACTIVE and
// ACTIVE on explicit request only. ENDED and ERROR are terminal.
type StreamStatus string

const (
	StreamStatusWaiting StreamStatus = "WAITING"
	StreamStatusActive  StreamStatus = "ACTIVE"
	StreamStatusPaused  StreamStatus = "PAUSED"
	StreamStatusEnded   StreamStatus = "ENDED"
	StreamStatusError   StreamStatus = "ERROR"
)

// AgeBracket is the heuristic age classification for a detected person.
type AgeBracket string

const (
	AgeChild  AgeBracket = "CHILD"
	AgeTeen   AgeBracket = "TEEN"
	AgeAdult  AgeBracket = "ADULT"
	AgeSenior AgeBracket = "SENIOR"
)

// Emotion is the heuristic emotional state for a detected person.
type Emotion string

const (
	EmotionHappy     Emotion = "HAPPY"
	EmotionSad       Emotion = "SAD"
	EmotionAngry     Emotion = "ANGRY"
	EmotionSurprised Emotion = "SURPRISED"
	EmotionNeutral   Emotion = "NEUTRAL"
)

// BoundingBox is a detection's position within a frame.
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// PersonInfo is one normalized face detection for a single frame.
type PersonInfo struct {
	UniqueID     string       `json:"unique_id"`
	AgeBracket   AgeBracket   `json:"age_bracket"`
	EstimatedAge int          `json:"estimated_age"`
	Emotion      Emotion      `json:"emotion"`
	Confidence   float64      `json:"confidence"`
	FrameNumber  int          `json:"frame_number"`
	Timestamp    float64      `json:"timestamp"`
	BoundingBox  *BoundingBox `json:"bounding_box,omitempty"`
}

// ObjectInfo is one normalized object or label detection for a single frame.
type ObjectInfo struct {
	Name        string       `json:"name"`
	Category    string       `json:"category"`
	Confidence  float64      `json:"confidence"`
	FrameNumber int          `json:"frame_number"`
	Timestamp   float64      `json:"timestamp"`
	BoundingBox *BoundingBox `json:"bounding_box,omitempty"`
}

// BookInfo is one normalized book detection extracted from OCR text.
// Fields that could not be extracted are left empty.
type BookInfo struct {
	UniqueID      string  `json:"unique_id"`
	Title         string  `json:"title"`
	Author        string  `json:"author"`
	ISBN          string  `json:"isbn"`
	Publisher     string  `json:"publisher"`
	Year          string  `json:"year"`
	ExtractedText string  `json:"extracted_text"`
	Confidence    float64 `json:"confidence"`
	FrameNumber   int     `json:"frame_number"`
	Timestamp     float64 `json:"timestamp"`
}

// FrameAnalysis is the normalized result for one analyzed frame.
type FrameAnalysis struct {
	FrameNumber int          `json:"frame_number"`
	Timestamp   float64      `json:"timestamp"`
	People      []PersonInfo `json:"people"`
	Objects     []ObjectInfo `json:"objects"`
	Books       []BookInfo   `json:"books"`
}

// Empty reports whether the frame produced no detections at all.
func (fa FrameAnalysis) Empty() bool {
	return len(fa.People) == 0 && len(fa.Objects) == 0 && len(fa.Books) == 0
}

// StreamConfig carries optional per-stream overrides.
type StreamConfig struct {
	FrameRate        float64 `json:"frame_rate,omitempty"`
	SamplingInterval int     `json:"sampling_interval,omitempty"`
}

// StartStreamRequest is the request body for POST /api/stream/start.
type StartStreamRequest struct {
	StreamName  string        `json:"stream_name" binding:"required"`
	Description string        `json:"description"`
	Config      *StreamConfig `json:"config,omitempty"`
}

// StreamResponse is the API view of a live stream session.
type StreamResponse struct {
	StreamID    uint         `json:"stream_id"`
	MediaID     uint         `json:"media_id"`
	StreamKey   string       `json:"stream_key"`
	IngestURL   string       `json:"ingest_url"`
	PlaybackURL string       `json:"playback_url"`
	Status      StreamStatus `json:"status"`
	StartTime   time.Time    `json:"start_time"`
	EndTime     *time.Time   `json:"end_time,omitempty"`
	Duration    *int64       `json:"duration_seconds,omitempty"`
	ViewerCount int          `json:"viewer_count"`
}

// TimeRange restricts a query to detections within [Start, End] seconds.
type TimeRange struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// QueryRequest is the request body for POST /api/query. QueryType is
// optional; when empty it is classified by the text-generation
// capability.
type QueryRequest struct {
	MediaID   uint       `json:"media_id" binding:"required"`
	Query     string     `json:"query" binding:"required"`
	QueryType string     `json:"query_type,omitempty"`
	TimeRange *TimeRange `json:"time_range,omitempty"`
}

// MatchType identifies which detection table a query match came from.
type MatchType string

const (
	MatchPerson MatchType = "PERSON"
	MatchObject MatchType = "OBJECT"
	MatchBook   MatchType = "BOOK"
)

// QueryMatch is one ranked hit for a free-text query.
type QueryMatch struct {
	Type        MatchType `json:"type"`
	Description string    `json:"description"`
	FrameNumber int       `json:"frame_number"`
	Timestamp   float64   `json:"timestamp"`
	Confidence  float64   `json:"confidence"`
}

// QueryResponse is the answer to a free-text query.
type QueryResponse struct {
	Query       string       `json:"query"`
	QueryType   string       `json:"query_type,omitempty"`
	Found       bool         `json:"found"`
	Answer      string       `json:"answer"`
	AIAnswer    string       `json:"ai_answer,omitempty"`
	Matches     []QueryMatch `json:"matches"`
	Total       int          `json:"total_matches"`
	Confidence  float64      `json:"confidence"`
	RespSeconds float64      `json:"response_time"`
	Timestamp   time.Time    `json:"timestamp"`
	Suggestions []string     `json:"suggestions,omitempty"`
}

// StatisticsInfo aggregates detection counts for one media item.
type StatisticsInfo struct {
	TotalPeople       int            `json:"total_people"`
	TotalObjects      int            `json:"total_objects"`
	TotalBooks        int            `json:"total_books"`
	PeopleByAge       map[string]int `json:"people_by_age"`
	PeopleByEmotion   map[string]int `json:"people_by_emotion"`
	ObjectsByCategory map[string]int `json:"objects_by_category"`
	AverageConfidence float64        `json:"average_confidence"`
	UniquePeople      int            `json:"unique_people"`
}

// AnalysisResult is the full API view of a media item and its detections.
type AnalysisResult struct {
	MediaID         uint            `json:"media_id"`
	FileName        string          `json:"file_name"`
	Kind            MediaKind       `json:"kind"`
	Status          MediaStatus     `json:"status"`
	IsLive          bool            `json:"is_live"`
	IngestURL       string          `json:"ingest_url,omitempty"`
	PlaybackURL     string          `json:"playback_url,omitempty"`
	Duration        *int            `json:"duration_seconds,omitempty"`
	FrameRate       float64         `json:"frame_rate,omitempty"`
	FramesProcessed int             `json:"frames_processed"`
	PeopleCount     int             `json:"people_count"`
	ObjectsCount    int             `json:"objects_count"`
	BooksCount      int             `json:"books_count"`
	Summary         string          `json:"summary,omitempty"`
	ErrorMessage    string          `json:"error_message,omitempty"`
	UploadedAt      time.Time       `json:"uploaded_at"`
	People          []PersonInfo    `json:"people"`
	Objects         []ObjectInfo    `json:"objects"`
	Books           []BookInfo      `json:"books"`
	Statistics      *StatisticsInfo `json:"statistics,omitempty"`
}
