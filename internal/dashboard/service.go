// Package dashboard aggregates cross-media activity for the dashboard
// endpoints: overall counters, a recent-activity feed, detection
// trends and live-stream totals.
package dashboard

import (
	"fmt"
	"sort"
	"time"

	"github.com/medialens/analysis-service/internal/model"
	"go.uber.org/zap"
)

const (
	recentItems   = 10
	activityLimit = 20
)

// Store is the persistence surface the dashboard needs.
type Store interface {
	OverallCounts() (model.OverallStats, error)
	RecentMedia(limit int) ([]model.MediaFile, error)
	RecentQueries(since time.Time, limit int) ([]model.QueryRecord, error)
	ObjectCategoryCounts() (map[string]int, error)
	StreamAggregates() (model.StreamOverview, error)
	MediaCreatedBetween(start, end time.Time) ([]model.MediaFile, error)
}

// Service computes dashboard aggregates over persisted state.
type Service struct {
	store Store
	log   *zap.Logger
}

// NewService creates the dashboard service.
func NewService(store Store, log *zap.Logger) *Service {
	return &Service{store: store, log: log}
}

// Stats assembles the full dashboard snapshot.
func (s *Service) Stats() (*model.DashboardStats, error) {
	overall, err := s.store.OverallCounts()
	if err != nil {
		return nil, err
	}
	activity, err := s.recentActivity()
	if err != nil {
		return nil, err
	}
	trends, err := s.store.ObjectCategoryCounts()
	if err != nil {
		return nil, err
	}
	streams, err := s.store.StreamAggregates()
	if err != nil {
		return nil, err
	}
	return &model.DashboardStats{
		Overall:         overall,
		RecentActivity:  activity,
		DetectionTrends: trends,
		Streams:         streams,
	}, nil
}

// recentActivity merges the newest uploads with the last day's queries
// into one feed, newest first.
func (s *Service) recentActivity() ([]model.RecentActivity, error) {
	mediaItems, err := s.store.RecentMedia(recentItems)
	if err != nil {
		return nil, err
	}
	queries, err := s.store.RecentQueries(time.Now().Add(-24*time.Hour), recentItems)
	if err != nil {
		return nil, err
	}

	out := make([]model.RecentActivity, 0, len(mediaItems)+len(queries))
	for _, m := range mediaItems {
		out = append(out, model.RecentActivity{
			Type:        m.Kind,
			Description: fmt.Sprintf("Uploaded: %s", m.FileName),
			Timestamp:   m.CreatedAt,
			MediaID:     m.ID,
		})
	}
	for _, q := range queries {
		out = append(out, model.RecentActivity{
			Type:        "QUERY",
			Description: fmt.Sprintf("Query: %s", q.Query),
			Timestamp:   q.CreatedAt,
			MediaID:     q.MediaFileID,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if len(out) > activityLimit {
		out = out[:activityLimit]
	}
	return out, nil
}

// Trends buckets uploads and their detection totals per day over the
// requested period: "day" (default), "week", "month" or "year".
func (s *Service) Trends(period string) (*model.TrendReport, error) {
	end := time.Now()
	var start time.Time
	switch period {
	case "week":
		start = end.AddDate(0, 0, -7)
	case "month":
		start = end.AddDate(0, -1, 0)
	case "year":
		start = end.AddDate(-1, 0, 0)
	default:
		period = "day"
		start = end.AddDate(0, 0, -1)
	}

	files, err := s.store.MediaCreatedBetween(start, end)
	if err != nil {
		return nil, err
	}
	uploads := make(map[string]int)
	detections := make(map[string]int)
	for _, m := range files {
		day := m.CreatedAt.Format("2006-01-02")
		uploads[day]++
		detections[day] += m.PeopleCount + m.ObjectsCount + m.BooksCount
	}
	return &model.TrendReport{
		Period:          period,
		DailyUploads:    uploads,
		DailyDetections: detections,
		TotalFiles:      len(files),
	}, nil
}
