package dashboard

import (
	"testing"
	"time"

	"github.com/medialens/analysis-service/internal/model"
	"go.uber.org/zap"
)

type fakeDashStore struct {
	overall    model.OverallStats
	media      []model.MediaFile
	queries    []model.QueryRecord
	categories map[string]int
	streams    model.StreamOverview
	between    []model.MediaFile
}

func (f *fakeDashStore) OverallCounts() (model.OverallStats, error) { return f.overall, nil }

func (f *fakeDashStore) RecentMedia(limit int) ([]model.MediaFile, error) {
	if limit > len(f.media) {
		limit = len(f.media)
	}
	return f.media[:limit], nil
}

func (f *fakeDashStore) RecentQueries(since time.Time, limit int) ([]model.QueryRecord, error) {
	var out []model.QueryRecord
	for _, q := range f.queries {
		if q.CreatedAt.After(since) {
			out = append(out, q)
		}
	}
	if limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeDashStore) ObjectCategoryCounts() (map[string]int, error) { return f.categories, nil }

func (f *fakeDashStore) StreamAggregates() (model.StreamOverview, error) { return f.streams, nil }

func (f *fakeDashStore) MediaCreatedBetween(start, end time.Time) ([]model.MediaFile, error) {
	var out []model.MediaFile
	for _, m := range f.between {
		if !m.CreatedAt.Before(start) && !m.CreatedAt.After(end) {
			out = append(out, m)
		}
	}
	return out, nil
}

func TestStatsAssemblesSnapshot(t *testing.T) {
	now := time.Now()
	store := &fakeDashStore{
		overall: model.OverallStats{
			TotalMedia: 3, TotalPeople: 7, TotalObjects: 12, TotalBooks: 2,
			TotalQueries: 5, ActiveStreams: 1,
		},
		media: []model.MediaFile{
			{ID: 2, FileName: "reading.mp4", Kind: string(model.MediaKindVideo), CreatedAt: now.Add(-time.Minute)},
		},
		queries: []model.QueryRecord{
			{MediaFileID: 2, Query: "happy child", CreatedAt: now},
		},
		categories: map[string]int{"BEVERAGE": 3, "LABEL": 9},
		streams:    model.StreamOverview{ActiveStreams: 1, TotalViewers: 4, AvgViewers: 4},
	}
	svc := NewService(store, zap.NewNop())

	stats, err := svc.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Overall.TotalMedia != 3 || stats.Overall.ActiveStreams != 1 {
		t.Errorf("overall = %+v", stats.Overall)
	}
	if stats.DetectionTrends["BEVERAGE"] != 3 {
		t.Errorf("trends = %v", stats.DetectionTrends)
	}
	if stats.Streams.TotalViewers != 4 {
		t.Errorf("streams = %+v", stats.Streams)
	}
	if len(stats.RecentActivity) != 2 {
		t.Fatalf("activity = %d entries, want 2", len(stats.RecentActivity))
	}
}

func TestRecentActivityIsMergedNewestFirst(t *testing.T) {
	now := time.Now()
	store := &fakeDashStore{
		media: []model.MediaFile{
			{ID: 1, FileName: "older.jpg", Kind: string(model.MediaKindImage), CreatedAt: now.Add(-2 * time.Hour)},
		},
		queries: []model.QueryRecord{
			{MediaFileID: 1, Query: "any books", CreatedAt: now.Add(-time.Hour)},
		},
	}
	svc := NewService(store, zap.NewNop())

	stats, err := svc.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	acts := stats.RecentActivity
	if len(acts) != 2 {
		t.Fatalf("activity = %d entries, want 2", len(acts))
	}
	if acts[0].Type != "QUERY" || acts[1].Type != string(model.MediaKindImage) {
		t.Errorf("order = %s, %s; want query first", acts[0].Type, acts[1].Type)
	}
	if acts[0].Description != "Query: any books" {
		t.Errorf("description = %q", acts[0].Description)
	}
	if acts[1].Description != "Uploaded: older.jpg" {
		t.Errorf("description = %q", acts[1].Description)
	}
}

func TestRecentActivityIsCapped(t *testing.T) {
	now := time.Now()
	store := &fakeDashStore{}
	for i := 0; i < 15; i++ {
		store.media = append(store.media, model.MediaFile{
			ID: uint(i + 1), FileName: "clip.mp4", CreatedAt: now.Add(-time.Duration(i) * time.Minute),
		})
		store.queries = append(store.queries, model.QueryRecord{
			MediaFileID: 1, Query: "anything", CreatedAt: now.Add(-time.Duration(i) * time.Minute),
		})
	}
	svc := NewService(store, zap.NewNop())

	stats, err := svc.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if len(stats.RecentActivity) != activityLimit {
		t.Errorf("activity = %d entries, want %d", len(stats.RecentActivity), activityLimit)
	}
}

func TestTrendsBucketsPerDay(t *testing.T) {
	now := time.Now()
	yesterday := now.Add(-24 * time.Hour)
	store := &fakeDashStore{
		between: []model.MediaFile{
			{ID: 1, CreatedAt: now, PeopleCount: 2, ObjectsCount: 1},
			{ID: 2, CreatedAt: now, BooksCount: 1},
			{ID: 3, CreatedAt: yesterday, PeopleCount: 5},
		},
	}
	svc := NewService(store, zap.NewNop())

	report, err := svc.Trends("week")
	if err != nil {
		t.Fatalf("Trends: %v", err)
	}
	if report.Period != "week" {
		t.Errorf("period = %q, want week", report.Period)
	}
	if report.TotalFiles != 3 {
		t.Errorf("total files = %d, want 3", report.TotalFiles)
	}
	today := now.Format("2006-01-02")
	if report.DailyUploads[today] != 2 {
		t.Errorf("uploads today = %d, want 2", report.DailyUploads[today])
	}
	if report.DailyDetections[today] != 4 {
		t.Errorf("detections today = %d, want 4", report.DailyDetections[today])
	}
	if report.DailyUploads[yesterday.Format("2006-01-02")] != 1 {
		t.Errorf("uploads yesterday = %v", report.DailyUploads)
	}
}

func TestTrendsDefaultsToDay(t *testing.T) {
	svc := NewService(&fakeDashStore{}, zap.NewNop())
	report, err := svc.Trends("fortnight")
	if err != nil {
		t.Fatalf("Trends: %v", err)
	}
	if report.Period != "day" {
		t.Errorf("period = %q, want day", report.Period)
	}
}
