// Package store is the persistence collaborator: the rest of the core
// never issues storage queries directly, it calls this narrow surface.
package store

import (
	"errors"
	"time"

	"github.com/medialens/analysis-service/internal/errs"
	"github.com/medialens/analysis-service/internal/model"
	"gorm.io/gorm"
)

// Store persists media items, live streams, detections and query records.
type Store struct {
	db *gorm.DB
}

// New creates a Store.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// CreateMedia inserts a media item and returns it with its ID set.
func (s *Store) CreateMedia(m *model.MediaFile) error {
	return s.db.Create(m).Error
}

// MediaByID returns one media item.
func (s *Store) MediaByID(id uint) (*model.MediaFile, error) {
	var ent model.MediaFile
	if err := s.db.First(&ent, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrMediaNotFound
		}
		return nil, err
	}
	return &ent, nil
}

// ListMedia returns media items filtered by kind and/or status, newest first.
func (s *Store) ListMedia(kind, status string, limit, offset int) ([]model.MediaFile, int64, error) {
	q := s.db.Model(&model.MediaFile{})
	if kind != "" {
		q = q.Where("kind = ?", kind)
	}
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var items []model.MediaFile
	if err := q.Order("created_at DESC").Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// UpdateMedia applies a partial update to a media item.
func (s *Store) UpdateMedia(id uint, fields map[string]any) error {
	res := s.db.Model(&model.MediaFile{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errs.ErrMediaNotFound
	}
	return nil
}

// DeleteMedia removes a media item; detections and query records cascade.
func (s *Store) DeleteMedia(id uint) error {
	res := s.db.Delete(&model.MediaFile{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errs.ErrMediaNotFound
	}
	return nil
}

// CreateStream inserts a live stream row.
func (s *Store) CreateStream(ls *model.LiveStream) error {
	return s.db.Create(ls).Error
}

// StreamByKey returns one live stream by stream key.
func (s *Store) StreamByKey(key string) (*model.LiveStream, error) {
	var ent model.LiveStream
	if err := s.db.Where("stream_key = ?", key).First(&ent).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrStreamNotFound
		}
		return nil, err
	}
	return &ent, nil
}

// UpdateStreamStatus sets the stream status for a key.
func (s *Store) UpdateStreamStatus(key string, status model.StreamStatus) error {
	res := s.db.Model(&model.LiveStream{}).Where("stream_key = ?", key).
		Update("status", string(status))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errs.ErrStreamNotFound
	}
	return nil
}

// EndStream marks a stream ENDED with end time and computed duration.
func (s *Store) EndStream(key string, endedAt time.Time, duration int64) error {
	res := s.db.Model(&model.LiveStream{}).Where("stream_key = ?", key).Updates(map[string]any{
		"status":           string(model.StreamStatusEnded),
		"end_time":         endedAt,
		"duration_seconds": duration,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errs.ErrStreamNotFound
	}
	return nil
}

// SetViewerCount records the current viewer count for a stream.
func (s *Store) SetViewerCount(key string, n int) error {
	return s.db.Model(&model.LiveStream{}).Where("stream_key = ?", key).
		Update("viewer_count", n).Error
}

// ActiveStreams returns all streams currently ACTIVE.
func (s *Store) ActiveStreams() ([]model.LiveStream, error) {
	var streams []model.LiveStream
	err := s.db.Where("status = ?", string(model.StreamStatusActive)).
		Order("start_time DESC").Find(&streams).Error
	return streams, err
}

// SaveDetections writes one frame's normalized detections for a media item.
// Rows are immutable; the set only grows during processing.
func (s *Store) SaveDetections(mediaID uint, fa model.FrameAnalysis) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		for _, p := range fa.People {
			if err := tx.Create(personEntity(mediaID, p)).Error; err != nil {
				return err
			}
		}
		for _, o := range fa.Objects {
			if err := tx.Create(objectEntity(mediaID, o)).Error; err != nil {
				return err
			}
		}
		for _, b := range fa.Books {
			if err := tx.Create(bookEntity(mediaID, b)).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// UpdateCounts sets the accumulated frame and detection counters for a media item.
func (s *Store) UpdateCounts(mediaID uint, frames, people, objects, books int) error {
	return s.UpdateMedia(mediaID, map[string]any{
		"frames_processed": frames,
		"people_count":     people,
		"objects_count":    objects,
		"books_count":      books,
	})
}

// IncrementCounts adds to the accumulated counters for a media item.
// Used by the live aggregation path, where totals grow frame by frame.
func (s *Store) IncrementCounts(mediaID uint, frames, people, objects, books int) error {
	res := s.db.Model(&model.MediaFile{}).Where("id = ?", mediaID).Updates(map[string]any{
		"frames_processed": gorm.Expr("frames_processed + ?", frames),
		"people_count":     gorm.Expr("people_count + ?", people),
		"objects_count":    gorm.Expr("objects_count + ?", objects),
		"books_count":      gorm.Expr("books_count + ?", books),
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errs.ErrMediaNotFound
	}
	return nil
}

// DetectionsByMedia loads all persisted detections for a media item.
func (s *Store) DetectionsByMedia(mediaID uint) ([]model.PersonInfo, []model.ObjectInfo, []model.BookInfo, error) {
	var persons []model.DetectedPerson
	if err := s.db.Where("media_file_id = ?", mediaID).Order("frame_number").Find(&persons).Error; err != nil {
		return nil, nil, nil, err
	}
	var objects []model.DetectedObject
	if err := s.db.Where("media_file_id = ?", mediaID).Order("frame_number").Find(&objects).Error; err != nil {
		return nil, nil, nil, err
	}
	var books []model.DetectedBook
	if err := s.db.Where("media_file_id = ?", mediaID).Order("frame_number").Find(&books).Error; err != nil {
		return nil, nil, nil, err
	}

	people := make([]model.PersonInfo, 0, len(persons))
	for i := range persons {
		people = append(people, personInfo(&persons[i]))
	}
	objs := make([]model.ObjectInfo, 0, len(objects))
	for i := range objects {
		objs = append(objs, objectInfo(&objects[i]))
	}
	bks := make([]model.BookInfo, 0, len(books))
	for i := range books {
		bks = append(bks, bookInfo(&books[i]))
	}
	return people, objs, bks, nil
}

// SaveQueryRecord appends one query audit row.
func (s *Store) SaveQueryRecord(rec *model.QueryRecord) error {
	return s.db.Create(rec).Error
}

// QueryHistory returns the most recent query records for a media item.
func (s *Store) QueryHistory(mediaID uint, limit int) ([]model.QueryRecord, error) {
	var recs []model.QueryRecord
	err := s.db.Where("media_file_id = ?", mediaID).
		Order("created_at DESC").Limit(limit).Find(&recs).Error
	return recs, err
}

// OverallCounts aggregates table-wide totals for the dashboard.
func (s *Store) OverallCounts() (model.OverallStats, error) {
	var out model.OverallStats
	counts := []struct {
		dst    *int64
		entity any
	}{
		{&out.TotalMedia, &model.MediaFile{}},
		{&out.TotalPeople, &model.DetectedPerson{}},
		{&out.TotalObjects, &model.DetectedObject{}},
		{&out.TotalBooks, &model.DetectedBook{}},
		{&out.TotalQueries, &model.QueryRecord{}},
	}
	for _, c := range counts {
		if err := s.db.Model(c.entity).Count(c.dst).Error; err != nil {
			return model.OverallStats{}, err
		}
	}
	err := s.db.Model(&model.LiveStream{}).
		Where("status = ?", string(model.StreamStatusActive)).
		Count(&out.ActiveStreams).Error
	if err != nil {
		return model.OverallStats{}, err
	}
	return out, nil
}

// RecentMedia returns the newest media items, newest first.
func (s *Store) RecentMedia(limit int) ([]model.MediaFile, error) {
	var out []model.MediaFile
	err := s.db.Order("created_at DESC").Limit(limit).Find(&out).Error
	return out, err
}

// RecentQueries returns query audit rows created after since, newest first.
func (s *Store) RecentQueries(since time.Time, limit int) ([]model.QueryRecord, error) {
	var out []model.QueryRecord
	err := s.db.Where("created_at >= ?", since).
		Order("created_at DESC").Limit(limit).Find(&out).Error
	return out, err
}

// ObjectCategoryCounts groups all detected objects by category.
func (s *Store) ObjectCategoryCounts() (map[string]int, error) {
	var rows []struct {
		Category string
		N        int
	}
	err := s.db.Model(&model.DetectedObject{}).
		Select("category, count(*) as n").
		Group("category").Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int, len(rows))
	for _, r := range rows {
		out[r.Category] = r.N
	}
	return out, nil
}

// StreamAggregates summarizes live-stream activity: viewers are summed
// over ACTIVE sessions only, duration over all finished sessions.
func (s *Store) StreamAggregates() (model.StreamOverview, error) {
	var out model.StreamOverview
	err := s.db.Model(&model.LiveStream{}).
		Where("status = ?", string(model.StreamStatusActive)).
		Count(&out.ActiveStreams).Error
	if err != nil {
		return model.StreamOverview{}, err
	}
	err = s.db.Model(&model.LiveStream{}).
		Where("status = ?", string(model.StreamStatusActive)).
		Select("coalesce(sum(viewer_count), 0)").
		Scan(&out.TotalViewers).Error
	if err != nil {
		return model.StreamOverview{}, err
	}
	err = s.db.Model(&model.LiveStream{}).
		Select("coalesce(sum(duration_seconds), 0)").
		Scan(&out.TotalDuration).Error
	if err != nil {
		return model.StreamOverview{}, err
	}
	if out.ActiveStreams > 0 {
		out.AvgViewers = float64(out.TotalViewers) / float64(out.ActiveStreams)
	}
	return out, nil
}

// MediaCreatedBetween returns media items uploaded within [start, end].
func (s *Store) MediaCreatedBetween(start, end time.Time) ([]model.MediaFile, error) {
	var out []model.MediaFile
	err := s.db.Where("created_at BETWEEN ? AND ?", start, end).Find(&out).Error
	return out, err
}
