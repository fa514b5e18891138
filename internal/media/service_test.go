package media

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/medialens/analysis-service/internal/errs"
	"github.com/medialens/analysis-service/internal/model"
	"github.com/medialens/analysis-service/internal/vision"
	"go.uber.org/zap"
)

type fakeMediaStore struct {
	mu     sync.Mutex
	nextID uint
	media  map[uint]*model.MediaFile
	saved  map[uint][]model.FrameAnalysis
}

func newFakeMediaStore() *fakeMediaStore {
	return &fakeMediaStore{
		media: map[uint]*model.MediaFile{},
		saved: map[uint][]model.FrameAnalysis{},
	}
}

func (f *fakeMediaStore) CreateMedia(m *model.MediaFile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	m.ID = f.nextID
	cp := *m
	f.media[m.ID] = &cp
	return nil
}

func (f *fakeMediaStore) MediaByID(id uint) (*model.MediaFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.media[id]
	if !ok {
		return nil, errs.ErrMediaNotFound
	}
	cp := *m
	return &cp, nil
}

func (f *fakeMediaStore) ListMedia(kind, status string, limit, offset int) ([]model.MediaFile, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.MediaFile
	for _, m := range f.media {
		if kind != "" && m.Kind != kind {
			continue
		}
		if status != "" && m.Status != status {
			continue
		}
		out = append(out, *m)
	}
	return out, int64(len(out)), nil
}

func (f *fakeMediaStore) UpdateMedia(id uint, fields map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.media[id]
	if !ok {
		return errs.ErrMediaNotFound
	}
	for k, v := range fields {
		switch k {
		case "status":
			m.Status = v.(string)
		case "error_message":
			m.ErrorMessage = v.(string)
		case "summary":
			m.Summary = v.(string)
		case "frame_rate":
			m.FrameRate = v.(float64)
		case "duration":
			d := v.(int)
			m.Duration = &d
		}
	}
	return nil
}

func (f *fakeMediaStore) DeleteMedia(id uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.media[id]; !ok {
		return errs.ErrMediaNotFound
	}
	delete(f.media, id)
	delete(f.saved, id)
	return nil
}

func (f *fakeMediaStore) SaveDetections(mediaID uint, fa model.FrameAnalysis) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved[mediaID] = append(f.saved[mediaID], fa)
	return nil
}

func (f *fakeMediaStore) UpdateCounts(mediaID uint, frames, people, objects, books int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.media[mediaID]
	if !ok {
		return errs.ErrMediaNotFound
	}
	m.FramesProcessed = frames
	m.PeopleCount = people
	m.ObjectsCount = objects
	m.BooksCount = books
	return nil
}

func (f *fakeMediaStore) DetectionsByMedia(mediaID uint) ([]model.PersonInfo, []model.ObjectInfo, []model.BookInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var people []model.PersonInfo
	var objects []model.ObjectInfo
	var books []model.BookInfo
	for _, fa := range f.saved[mediaID] {
		people = append(people, fa.People...)
		objects = append(objects, fa.Objects...)
		books = append(books, fa.Books...)
	}
	return people, objects, books, nil
}

type stubAnnotator struct {
	ann *vision.Annotation
	err error
}

func (a stubAnnotator) Annotate(ctx context.Context, image []byte) (*vision.Annotation, error) {
	return a.ann, a.err
}

func testJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h)), nil); err != nil {
		t.Fatalf("encode test image: %v", err)
	}
	return buf.Bytes()
}

func newTestService(t *testing.T, store *fakeMediaStore, annotator vision.Annotator) *Service {
	t.Helper()
	return NewService(store, annotator, nil, NewExtractor(zap.NewNop()), Config{
		UploadDir:        t.TempDir(),
		SamplingInterval: 5,
		MaxFrameEdge:     1024,
		FrameRate:        30,
	}, zap.NewNop())
}

func TestProcessImageSingleFrameZero(t *testing.T) {
	store := newFakeMediaStore()
	ann := &vision.Annotation{
		Faces: []vision.FaceAnnotation{{
			DetectionConfidence: 0.9,
			JoyLikelihood:       vision.LikelihoodVeryLikely,
		}},
	}
	svc := newTestService(t, store, stubAnnotator{ann: ann})

	media := &model.MediaFile{FileName: "shelf.jpg", Kind: string(model.MediaKindImage)}
	if err := store.CreateMedia(media); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "shelf.jpg")
	if err := os.WriteFile(path, testJPEG(t, 64, 48), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := svc.processImage(context.Background(), media.ID, path); err != nil {
		t.Fatalf("processImage: %v", err)
	}

	saved := store.saved[media.ID]
	if len(saved) != 1 {
		t.Fatalf("saved %d batches, want 1", len(saved))
	}
	p := saved[0].People[0]
	if p.FrameNumber != 0 || p.Timestamp != 0 {
		t.Errorf("frame/timestamp = %d/%v, want 0/0", p.FrameNumber, p.Timestamp)
	}
	got, _ := store.MediaByID(media.ID)
	if got.FramesProcessed != 1 || got.PeopleCount != 1 {
		t.Errorf("counters = %d frames / %d people, want 1/1", got.FramesProcessed, got.PeopleCount)
	}
}

func TestProcessImageDetectorFailureStillCountsFrame(t *testing.T) {
	store := newFakeMediaStore()
	svc := newTestService(t, store, stubAnnotator{err: errors.New("quota exceeded")})

	media := &model.MediaFile{FileName: "a.png", Kind: string(model.MediaKindImage)}
	store.CreateMedia(media)
	path := filepath.Join(t.TempDir(), "a.jpg")
	os.WriteFile(path, testJPEG(t, 8, 8), 0o644)

	if err := svc.processImage(context.Background(), media.ID, path); err != nil {
		t.Fatalf("processImage: %v", err)
	}
	if len(store.saved[media.ID]) != 0 {
		t.Error("empty analysis was persisted")
	}
	got, _ := store.MediaByID(media.ID)
	if got.FramesProcessed != 1 {
		t.Errorf("frames processed = %d, want 1", got.FramesProcessed)
	}
}

func TestUploadRejectsUnsupportedExtension(t *testing.T) {
	svc := newTestService(t, newFakeMediaStore(), stubAnnotator{})
	_, err := svc.Upload("notes.txt", 4, bytes.NewReader([]byte("text")))
	if !errors.Is(err, errs.ErrUnsupportedMedia) {
		t.Fatalf("err = %v, want ErrUnsupportedMedia", err)
	}
}

func TestDeleteRemovesStoredFile(t *testing.T) {
	store := newFakeMediaStore()
	svc := newTestService(t, store, stubAnnotator{})

	dir := t.TempDir()
	path := filepath.Join(dir, "clip.bin")
	os.WriteFile(path, []byte{1, 2, 3}, 0o644)
	media := &model.MediaFile{FileName: "clip.mp4", FilePath: path, Kind: string(model.MediaKindVideo)}
	store.CreateMedia(media)

	if err := svc.Delete(media.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("stored file survived delete")
	}
	if _, err := store.MediaByID(media.ID); !errors.Is(err, errs.ErrMediaNotFound) {
		t.Errorf("media row survived delete: %v", err)
	}
}

func TestBuildStatistics(t *testing.T) {
	people := []model.PersonInfo{
		{UniqueID: "u1", AgeBracket: model.AgeChild, Emotion: model.EmotionHappy, Confidence: 0.9},
		{UniqueID: "u2", AgeBracket: model.AgeAdult, Emotion: model.EmotionNeutral, Confidence: 0.7},
		{UniqueID: "u1", AgeBracket: model.AgeChild, Emotion: model.EmotionHappy, Confidence: 0.8},
	}
	objects := []model.ObjectInfo{
		{Name: "Cup", Category: "BEVERAGE", Confidence: 0.6},
	}
	books := []model.BookInfo{
		{Title: "Go Basics", Confidence: 0.8},
	}

	stats := BuildStatistics(people, objects, books)
	if stats.TotalPeople != 3 || stats.TotalObjects != 1 || stats.TotalBooks != 1 {
		t.Fatalf("totals = %d/%d/%d", stats.TotalPeople, stats.TotalObjects, stats.TotalBooks)
	}
	if stats.PeopleByAge["CHILD"] != 2 || stats.PeopleByAge["ADULT"] != 1 {
		t.Errorf("people by age = %v", stats.PeopleByAge)
	}
	if stats.PeopleByEmotion["HAPPY"] != 2 {
		t.Errorf("people by emotion = %v", stats.PeopleByEmotion)
	}
	if stats.ObjectsByCategory["BEVERAGE"] != 1 {
		t.Errorf("objects by category = %v", stats.ObjectsByCategory)
	}
	if stats.UniquePeople != 2 {
		t.Errorf("unique people = %d, want 2", stats.UniquePeople)
	}
	want := (0.9 + 0.7 + 0.8 + 0.6 + 0.8) / 5
	if diff := stats.AverageConfidence - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("average confidence = %v, want %v", stats.AverageConfidence, want)
	}
}

func TestBuildStatisticsEmpty(t *testing.T) {
	stats := BuildStatistics(nil, nil, nil)
	if stats.AverageConfidence != 0 || stats.UniquePeople != 0 {
		t.Fatalf("empty stats = %+v", stats)
	}
}

func TestPrepareFrameDownscalesLongEdge(t *testing.T) {
	src := testJPEG(t, 200, 100)
	out, err := PrepareFrame(src, 50)
	if err != nil {
		t.Fatalf("PrepareFrame: %v", err)
	}
	img, _, err := image.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if w := img.Bounds().Dx(); w != 50 {
		t.Errorf("width = %d, want 50", w)
	}
	if h := img.Bounds().Dy(); h != 25 {
		t.Errorf("height = %d, want 25", h)
	}
}

func TestPrepareFrameKeepsSmallFrames(t *testing.T) {
	src := testJPEG(t, 16, 16)
	out, err := PrepareFrame(src, 1024)
	if err != nil {
		t.Fatalf("PrepareFrame: %v", err)
	}
	img, _, err := image.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if img.Bounds().Dx() != 16 || img.Bounds().Dy() != 16 {
		t.Errorf("bounds = %v, want 16x16", img.Bounds())
	}
}

func TestKindForFile(t *testing.T) {
	cases := []struct {
		name string
		kind model.MediaKind
		err  bool
	}{
		{"photo.JPG", model.MediaKindImage, false},
		{"scan.png", model.MediaKindImage, false},
		{"clip.mp4", model.MediaKindVideo, false},
		{"talk.webm", model.MediaKindVideo, false},
		{"notes.pdf", "", true},
		{"noext", "", true},
	}
	for _, tc := range cases {
		kind, err := kindForFile(tc.name)
		if tc.err {
			if !errors.Is(err, errs.ErrUnsupportedMedia) {
				t.Errorf("%s: err = %v, want ErrUnsupportedMedia", tc.name, err)
			}
			continue
		}
		if err != nil || kind != tc.kind {
			t.Errorf("%s: kind/err = %v/%v, want %v", tc.name, kind, err, tc.kind)
		}
	}
}
