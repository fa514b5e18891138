package model

import "time"

// OverallStats is the cross-media counter block of the dashboard.
type OverallStats struct {
	TotalMedia    int64 `json:"total_media_files"`
	TotalPeople   int64 `json:"total_people_detected"`
	TotalObjects  int64 `json:"total_objects_detected"`
	TotalBooks    int64 `json:"total_books_detected"`
	TotalQueries  int64 `json:"total_queries"`
	ActiveStreams int64 `json:"active_live_streams"`
}

// RecentActivity is one recent upload or query on the dashboard feed.
type RecentActivity struct {
	Type        string    `json:"type"`
	Description string    `json:"description"`
	Timestamp   time.Time `json:"timestamp"`
	MediaID     uint      `json:"media_file_id"`
}

// StreamOverview aggregates live-stream activity across all sessions.
type StreamOverview struct {
	ActiveStreams int64   `json:"active_streams"`
	TotalViewers  int64   `json:"total_viewers"`
	TotalDuration int64   `json:"total_duration_seconds"`
	AvgViewers    float64 `json:"avg_viewers_per_stream"`
}

// DashboardStats is the response body for GET /api/dashboard/stats.
type DashboardStats struct {
	Overall         OverallStats     `json:"overall"`
	RecentActivity  []RecentActivity `json:"recent_activities"`
	DetectionTrends map[string]int   `json:"detection_trends"`
	Streams         StreamOverview   `json:"live_stream_stats"`
}

// TrendReport buckets uploads and detections per day for one period.
type TrendReport struct {
	Period          string         `json:"period"`
	DailyUploads    map[string]int `json:"daily_uploads"`
	DailyDetections map[string]int `json:"daily_detections"`
	TotalFiles      int            `json:"total_files"`
}
