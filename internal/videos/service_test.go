package videos

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"io"
	"strings"
	"testing"
	"time"

	"gorm.io/gorm"

	"vidpipe/internal/models"
	"vidpipe/internal/processing"
	"vidpipe/internal/storage"
	"vidpipe/internal/testutil"
	"vidpipe/internal/thumbnails"
	"vidpipe/internal/utils"
)

const mp4Header = "\x00\x00\x00\x18ftypmp42\x00\x00\x00\x00mp42isom"

type fakeQueue struct {
	enqueued []uint
	err      error
}

func (q *fakeQueue) EnqueueProcessing(ctx context.Context, video *models.Video) error {
	if q.err != nil {
		return q.err
	}
	q.enqueued = append(q.enqueued, video.ID)
	return nil
}

// failingStorage rejects writes under one prefix.
type failingStorage struct {
	*storage.MemoryStorage
	prefix string
}

func (s *failingStorage) Writer(key string) (io.WriteCloser, error) {
	if strings.HasPrefix(key, s.prefix) {
		return nil, errors.New("bucket unavailable")
	}
	return s.MemoryStorage.Writer(key)
}

type fixture struct {
	db    *gorm.DB
	store *storage.MemoryStorage
	queue *fakeQueue
	svc   *Service
	owner models.Caller
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithStorage(t, storage.NewMemoryStorage(), nil)
}

func newFixtureWithStorage(t *testing.T, mem *storage.MemoryStorage, store storage.Storage) *fixture {
	t.Helper()
	if store == nil {
		store = mem
	}
	db := testutil.NewDB(t)
	user := testutil.CreateUser(t, db, "alice")
	f := &fixture{db: db, store: mem, queue: &fakeQueue{}, owner: models.Caller{UserID: user.ID}}
	proc := processing.NewProcessor(db, store, nil, nil, processing.Config{TempDir: t.TempDir()})
	f.svc = NewService(db, store, thumbnails.NewGenerator(db, store), f.queue, proc, 5*time.Minute)
	return f
}

func videoFile() *File {
	return &File{Name: "clip.MP4", Content: strings.NewReader(mp4Header + "payload")}
}

func pngFile(t *testing.T, w, h int) *File {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatal(err)
	}
	return &File{Name: "image.png", Content: bytes.NewReader(buf.Bytes())}
}

func countRows(t *testing.T, db *gorm.DB, model interface{}) int64 {
	t.Helper()
	var n int64
	if err := db.Model(model).Count(&n).Error; err != nil {
		t.Fatal(err)
	}
	return n
}

func TestUploadCreatesProcessingVideo(t *testing.T) {
	f := newFixture(t)

	video, err := f.svc.Upload(context.Background(), f.owner, UploadInput{
		Title:         "Trip",
		Video:         videoFile(),
		WatermarkType: "text",
		WatermarkText: "@alice",
		Thumbnail:     pngFile(t, 1920, 1080),
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(video.VideoCode) != utils.VideoCodeLength {
		t.Errorf("unexpected code %q", video.VideoCode)
	}
	if video.Status != models.StatusProcessing || video.ProcessedBlobKey != nil {
		t.Errorf("expected processing without processed key, got %s %v", video.Status, video.ProcessedBlobKey)
	}
	if !strings.HasPrefix(video.OriginalBlobKey, storage.PrefixOriginal+"/") || !strings.HasSuffix(video.OriginalBlobKey, ".mp4") {
		t.Errorf("unexpected original key %s", video.OriginalBlobKey)
	}
	if ok, _ := f.store.Exists(video.OriginalBlobKey); !ok {
		t.Error("original not stored")
	}
	wm, ok := video.Watermark().(models.TextWatermark)
	if !ok || wm.Text != "@alice" || wm.Position != models.DefaultWatermarkPosition {
		t.Errorf("unexpected watermark %#v", video.Watermark())
	}
	if len(video.Thumbnails) != 3 {
		t.Errorf("expected 3 thumbnails, got %d", len(video.Thumbnails))
	}
	if len(f.queue.enqueued) != 1 || f.queue.enqueued[0] != video.ID {
		t.Errorf("expected video to be enqueued, got %v", f.queue.enqueued)
	}
}

func TestUploadImageWatermark(t *testing.T) {
	f := newFixture(t)

	video, err := f.svc.Upload(context.Background(), f.owner, UploadInput{
		Title:             "Trip",
		Video:             videoFile(),
		WatermarkType:     "image",
		WatermarkImage:    pngFile(t, 100, 50),
		WatermarkPosition: "top-left",
	})
	if err != nil {
		t.Fatal(err)
	}

	wm, ok := video.Watermark().(models.ImageWatermark)
	if !ok || wm.Position != models.TopLeft || !strings.HasPrefix(wm.BlobKey, storage.PrefixWatermarks+"/") {
		t.Fatalf("unexpected watermark %#v", video.Watermark())
	}
	if ok, _ := f.store.Exists(wm.BlobKey); !ok {
		t.Error("watermark image not stored")
	}
}

func TestUploadValidationHasNoSideEffects(t *testing.T) {
	tests := []struct {
		name  string
		input func(t *testing.T) UploadInput
		field string
	}{
		{
			name: "not a video",
			input: func(t *testing.T) UploadInput {
				return UploadInput{Title: "x", Video: &File{Name: "a.mp4", Content: strings.NewReader("plain text")}}
			},
			field: "video_file",
		},
		{
			name:  "missing video",
			input: func(t *testing.T) UploadInput { return UploadInput{Title: "x"} },
			field: "video_file",
		},
		{
			name: "text watermark without text",
			input: func(t *testing.T) UploadInput {
				return UploadInput{Title: "x", Video: videoFile(), WatermarkType: "text"}
			},
			field: "watermark_text",
		},
		{
			name: "image watermark without image",
			input: func(t *testing.T) UploadInput {
				return UploadInput{Title: "x", Video: videoFile(), WatermarkType: "image"}
			},
			field: "watermark_image",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			_, err := f.svc.Upload(context.Background(), f.owner, tt.input(t))
			var verr *utils.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if _, ok := verr.Fields[tt.field]; !ok {
				t.Errorf("expected field %s, got %v", tt.field, verr.Fields)
			}
			if n := countRows(t, f.db, &models.Video{}); n != 0 {
				t.Errorf("expected no video rows, got %d", n)
			}
			if keys := f.store.Keys(); len(keys) != 0 {
				t.Errorf("expected no blobs, got %v", keys)
			}
		})
	}
}

func TestUploadStorageFailureCreatesNoRow(t *testing.T) {
	mem := storage.NewMemoryStorage()
	f := newFixtureWithStorage(t, mem, &failingStorage{MemoryStorage: mem, prefix: storage.PrefixOriginal})

	_, err := f.svc.Upload(context.Background(), f.owner, UploadInput{Title: "x", Video: videoFile()})
	var serr *utils.StorageError
	if !errors.As(err, &serr) {
		t.Fatalf("expected StorageError, got %v", err)
	}
	if n := countRows(t, f.db, &models.Video{}); n != 0 {
		t.Errorf("expected no video rows, got %d", n)
	}
	if len(f.queue.enqueued) != 0 {
		t.Error("nothing should be enqueued")
	}
}

func TestUploadThumbnailFailureIsNotFatal(t *testing.T) {
	mem := storage.NewMemoryStorage()
	f := newFixtureWithStorage(t, mem, &failingStorage{MemoryStorage: mem, prefix: storage.PrefixThumbnails})

	video, err := f.svc.Upload(context.Background(), f.owner, UploadInput{Title: "x", Video: videoFile(), Thumbnail: pngFile(t, 640, 360)})
	if err != nil {
		t.Fatal(err)
	}
	if video.Status != models.StatusProcessing || len(video.Thumbnails) != 0 {
		t.Errorf("unexpected video %s with %d thumbnails", video.Status, len(video.Thumbnails))
	}
	if n := countRows(t, f.db, &models.VideoThumbnail{}); n != 0 {
		t.Errorf("expected no thumbnail rows, got %d", n)
	}
	if len(f.queue.enqueued) != 1 {
		t.Error("video should still be enqueued")
	}
}

func TestUploadEnqueueFailureMarksFailed(t *testing.T) {
	f := newFixture(t)
	f.queue.err = errors.New("queue down")

	if _, err := f.svc.Upload(context.Background(), f.owner, UploadInput{Title: "x", Video: videoFile()}); err == nil {
		t.Fatal("expected error")
	}

	var video models.Video
	if err := f.db.First(&video).Error; err != nil {
		t.Fatal(err)
	}
	if video.Status != models.StatusFailed {
		t.Errorf("expected failed, got %s", video.Status)
	}
}

func uploaded(t *testing.T, f *fixture) *models.Video {
	t.Helper()
	v, err := f.svc.Upload(context.Background(), f.owner, UploadInput{Title: "Trip", Description: "d", Video: videoFile(), Thumbnail: pngFile(t, 1920, 1080)})
	if err != nil {
		t.Fatal(err)
	}
	return v
}

func TestGetAndPresent(t *testing.T) {
	f := newFixture(t)
	v := uploaded(t, f)

	got, err := f.svc.Get(context.Background(), v.VideoCode)
	if err != nil {
		t.Fatal(err)
	}
	obj, err := f.svc.Present(got)
	if err != nil {
		t.Fatal(err)
	}
	if obj.URL != nil {
		t.Error("processing video must not expose a URL")
	}
	if obj.User.Username != "alice" || len(obj.Thumbnails) != 3 || obj.Thumbnails[0].Width != 1280 {
		t.Errorf("unexpected object %+v", obj)
	}

	key := "videos/processed/x.mp4"
	f.db.Model(&models.Video{}).Where("id = ?", v.ID).Updates(map[string]interface{}{"status": models.StatusProcessed, "processed_blob_key": key})
	got, _ = f.svc.Get(context.Background(), v.VideoCode)
	obj, _ = f.svc.Present(got)
	if obj.URL == nil || !strings.HasPrefix(*obj.URL, "memory://"+key) {
		t.Errorf("expected signed URL, got %v", obj.URL)
	}

	var nf *utils.NotFoundError
	if _, err := f.svc.Get(context.Background(), "nope"); !errors.As(err, &nf) {
		t.Errorf("expected NotFoundError, got %v", err)
	}
}

func TestUpdate(t *testing.T) {
	f := newFixture(t)
	v := uploaded(t, f)
	ctx := context.Background()

	other := testutil.CreateUser(t, f.db, "mallory")
	if _, err := f.svc.Update(ctx, models.Caller{UserID: other.ID}, v.VideoCode, UpdateInput{Title: "hacked"}); !errors.Is(err, utils.ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}

	oldKeys := map[string]bool{}
	for _, th := range v.Thumbnails {
		oldKeys[th.BlobKey] = true
	}

	updated, err := f.svc.Update(ctx, f.owner, v.VideoCode, UpdateInput{Title: "New", Description: "nd", Thumbnail: pngFile(t, 800, 800)})
	if err != nil {
		t.Fatal(err)
	}
	if len(updated.Thumbnails) != 3 {
		t.Fatalf("expected 3 thumbnails, got %d", len(updated.Thumbnails))
	}
	for _, th := range updated.Thumbnails {
		if oldKeys[th.BlobKey] {
			t.Errorf("thumbnail %s was not replaced", th.BlobKey)
		}
	}

	got, _ := f.svc.Get(ctx, v.VideoCode)
	if got.Title != "New" || got.Description != "nd" || got.Status != models.StatusProcessing {
		t.Errorf("unexpected video after update: %+v", got)
	}
	if n := countRows(t, f.db, &models.VideoThumbnail{}); n != 3 {
		t.Errorf("expected 3 thumbnail rows, got %d", n)
	}
}

func TestReprocess(t *testing.T) {
	f := newFixture(t)
	v := uploaded(t, f)
	ctx := context.Background()

	if _, err := f.svc.Reprocess(ctx, f.owner, v.VideoCode); !errors.Is(err, processing.ErrNotTerminal) {
		t.Errorf("expected ErrNotTerminal while processing, got %v", err)
	}

	key := "videos/processed/first.mp4"
	f.db.Model(&models.Video{}).Where("id = ?", v.ID).Updates(map[string]interface{}{"status": models.StatusProcessed, "processed_blob_key": key})

	got, err := f.svc.Reprocess(ctx, f.owner, v.VideoCode)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.StatusProcessing || got.ProcessedBlobKey != nil {
		t.Errorf("expected processing without key, got %s %v", got.Status, got.ProcessedBlobKey)
	}
	if got.PreviousProcessedBlobKey == nil || *got.PreviousProcessedBlobKey != key {
		t.Errorf("expected previous key %s", key)
	}
	if len(f.queue.enqueued) != 2 {
		t.Errorf("expected two enqueues, got %v", f.queue.enqueued)
	}
}

func TestReprocessEnqueueFailureMarksFailed(t *testing.T) {
	f := newFixture(t)
	v := uploaded(t, f)
	ctx := context.Background()

	key := "videos/processed/first.mp4"
	f.db.Model(&models.Video{}).Where("id = ?", v.ID).Updates(map[string]interface{}{"status": models.StatusProcessed, "processed_blob_key": key})
	f.queue.err = errors.New("queue down")

	if _, err := f.svc.Reprocess(ctx, f.owner, v.VideoCode); err == nil {
		t.Fatal("expected error")
	}

	var video models.Video
	if err := f.db.First(&video, v.ID).Error; err != nil {
		t.Fatal(err)
	}
	if video.Status != models.StatusFailed || video.ProcessedBlobKey != nil {
		t.Errorf("expected failed without key, got %s %v", video.Status, video.ProcessedBlobKey)
	}
	if video.PreviousProcessedBlobKey == nil || *video.PreviousProcessedBlobKey != key {
		t.Errorf("superseded key should stay recorded for cleanup, got %v", video.PreviousProcessedBlobKey)
	}
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	v := uploaded(t, f)
	ctx := context.Background()

	if err := f.svc.Delete(ctx, f.owner, v.VideoCode); err != nil {
		t.Fatal(err)
	}
	var nf *utils.NotFoundError
	if _, err := f.svc.Get(ctx, v.VideoCode); !errors.As(err, &nf) {
		t.Errorf("deleted video should not be found, got %v", err)
	}
	if n := countRows(t, f.db, &models.VideoThumbnail{}); n != 0 {
		t.Errorf("expected thumbnails removed, got %d", n)
	}
	var n int64
	f.db.Unscoped().Model(&models.Video{}).Count(&n)
	if n != 1 {
		t.Error("video row should be soft-deleted")
	}
}

func TestFeed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		uploaded(t, f)
	}
	other := testutil.CreateUser(t, f.db, "bob")
	testutil.CreateVideo(t, f.db, models.Video{Title: "Cooking show", UserID: other.ID, Status: models.StatusProcessed})

	page, err := f.svc.Feed(ctx, FeedQuery{Page: 2, PerPage: 4})
	if err != nil {
		t.Fatal(err)
	}
	want := Paginator{Total: 6, Count: 2, PerPage: 4, CurrentPage: 2, LastPage: 2}
	if page.Paginator != want {
		t.Errorf("expected %+v, got %+v", want, page.Paginator)
	}

	mine, err := f.svc.Feed(ctx, FeedQuery{UserID: other.ID})
	if err != nil {
		t.Fatal(err)
	}
	if mine.Paginator.Total != 1 || mine.Videos[0].Title != "Cooking show" {
		t.Errorf("unexpected owner feed %+v", mine.Paginator)
	}

	found, err := f.svc.Feed(ctx, FeedQuery{Search: "COOKING"})
	if err != nil {
		t.Fatal(err)
	}
	if found.Paginator.Total != 1 || found.Videos[0].User.Username != "bob" {
		t.Errorf("unexpected search result %+v", found.Paginator)
	}

	// Trip videos are still processing and not searchable.
	none, _ := f.svc.Feed(ctx, FeedQuery{Search: "trip"})
	if none.Paginator.Total != 0 || none.Paginator.LastPage != 1 {
		t.Errorf("expected empty search, got %+v", none.Paginator)
	}
}
