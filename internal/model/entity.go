package model

import "time"

// MediaFile is the media item row (GORM).
type MediaFile struct {
	ID       uint   `gorm:"primaryKey"`
	FileName string `gorm:"size:255;not null"`
	FilePath string `gorm:"size:512"`
	Kind     string `gorm:"size:20;not null;index"` // IMAGE, VIDEO, LIVE_STREAM
	FileSize int64
	Duration *int // seconds, videos and finished streams

	// PENDING, PROCESSING, STREAMING, COMPLETED, FAILED
	Status string `gorm:"size:20;not null;default:PENDING;index"`

	FrameRate   float64
	IsLive      bool
	IngestURL   string `gorm:"size:512"`
	PlaybackURL string `gorm:"size:512"`

	Summary      string `gorm:"type:text"`
	ErrorMessage string `gorm:"type:text"`

	FramesProcessed int `gorm:"not null;default:0"`
	PeopleCount     int `gorm:"not null;default:0"`
	ObjectsCount    int `gorm:"not null;default:0"`
	BooksCount      int `gorm:"not null;default:0"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`

	People  []DetectedPerson `gorm:"foreignKey:MediaFileID;constraint:OnDelete:CASCADE"`
	Objects []DetectedObject `gorm:"foreignKey:MediaFileID;constraint:OnDelete:CASCADE"`
	Books   []DetectedBook   `gorm:"foreignKey:MediaFileID;constraint:OnDelete:CASCADE"`
	Queries []QueryRecord    `gorm:"foreignKey:MediaFileID;constraint:OnDelete:CASCADE"`
}

func (MediaFile) TableName() string { return "media_files" }

// LiveStream is one live session, one-to-one with a LIVE_STREAM MediaFile (GORM).
type LiveStream struct {
	ID          uint   `gorm:"primaryKey"`
	MediaFileID uint   `gorm:"not null;index"`
	StreamKey   string `gorm:"size:64;not null;uniqueIndex"`
	IngestURL   string `gorm:"size:512"`
	PlaybackURL string `gorm:"size:512"`

	// WAITING, ACTIVE, PAUSED, ENDED, ERROR
	Status string `gorm:"size:20;not null;default:WAITING;index"`

	ViewerCount     int `gorm:"not null;default:0"`
	StartTime       time.Time
	EndTime         *time.Time
	DurationSeconds *int64

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (LiveStream) TableName() string { return "live_streams" }

// DetectedPerson is one face detection row (GORM). Immutable once written.
type DetectedPerson struct {
	ID          uint   `gorm:"primaryKey"`
	MediaFileID uint   `gorm:"not null;index"`
	UniqueID    string `gorm:"size:64;index"`

	AgeBracket   string `gorm:"size:10"` // CHILD, TEEN, ADULT, SENIOR
	EstimatedAge int
	Emotion      string `gorm:"size:12"` // HAPPY, SAD, ANGRY, SURPRISED, NEUTRAL
	Confidence   float64
	FrameNumber  int
	Timestamp    float64 `gorm:"index"`

	BoxX      *float64
	BoxY      *float64
	BoxWidth  *float64
	BoxHeight *float64

	DetectedAt time.Time `gorm:"autoCreateTime"`
}

func (DetectedPerson) TableName() string { return "detected_persons" }

// DetectedObject is one object/label detection row (GORM). Immutable once written.
type DetectedObject struct {
	ID          uint   `gorm:"primaryKey"`
	MediaFileID uint   `gorm:"not null;index"`
	Name        string `gorm:"size:255;index"`
	Category    string `gorm:"size:40;index"`
	Confidence  float64
	FrameNumber int
	Timestamp   float64

	BoxX      *float64
	BoxY      *float64
	BoxWidth  *float64
	BoxHeight *float64

	DetectedAt time.Time `gorm:"autoCreateTime"`
}

func (DetectedObject) TableName() string { return "detected_objects" }

// DetectedBook is one book detection row (GORM). Immutable once written.
type DetectedBook struct {
	ID          uint   `gorm:"primaryKey"`
	MediaFileID uint   `gorm:"not null;index"`
	UniqueID    string `gorm:"size:64"`

	Title     string `gorm:"size:255;index"`
	Author    string `gorm:"size:255"`
	ISBN      string `gorm:"size:20;index"`
	Publisher string `gorm:"size:255"`
	Year      string `gorm:"size:8"`

	ExtractedText string `gorm:"type:text"`
	Confidence    float64
	FrameNumber   int
	Timestamp     float64

	DetectedAt time.Time `gorm:"autoCreateTime"`
}

func (DetectedBook) TableName() string { return "detected_books" }

// QueryRecord is one append-only query audit row (GORM). Never updated.
type QueryRecord struct {
	ID          uint   `gorm:"primaryKey"`
	MediaFileID uint   `gorm:"not null;index"`
	Query       string `gorm:"type:text;not null"`
	Answer      string `gorm:"type:text"`
	AIAnswer    string `gorm:"type:text"`
	MatchCount  int
	RespSeconds float64
	CreatedAt   time.Time `gorm:"autoCreateTime;index"`
}

func (QueryRecord) TableName() string { return "query_records" }
