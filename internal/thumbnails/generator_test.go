package thumbnails

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"io"
	"testing"

	"vidpipe/internal/models"
	"vidpipe/internal/storage"
	"vidpipe/internal/testutil"
)

func sourceImage(t *testing.T, w, h int) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatal(err)
	}
	return &buf
}

// flakyStorage fails every write after the first okWrites.
type flakyStorage struct {
	*storage.MemoryStorage
	okWrites int
}

func (s *flakyStorage) Writer(key string) (io.WriteCloser, error) {
	if s.okWrites == 0 {
		return nil, errors.New("disk full")
	}
	s.okWrites--
	return s.MemoryStorage.Writer(key)
}

func TestGenerateBatch(t *testing.T) {
	db := testutil.NewDB(t)
	store := storage.NewMemoryStorage()
	video := testutil.CreateVideo(t, db, models.Video{Title: "a"})

	thumbs, err := NewGenerator(db, store).Generate(context.Background(), video.ID, sourceImage(t, 1920, 1080))
	if err != nil {
		t.Fatal(err)
	}

	want := map[models.ThumbnailSize][2]int{
		models.ThumbnailSmall:  {1280, 720},
		models.ThumbnailMedium: {640, 360},
		models.ThumbnailLarge:  {320, 180},
	}
	if len(thumbs) != 3 {
		t.Fatalf("expected 3 thumbnails, got %d", len(thumbs))
	}

	keys := map[string]bool{}
	for _, th := range thumbs {
		dims := want[th.Size]
		if th.Width != dims[0] || th.Height != dims[1] {
			t.Errorf("%s: expected %dx%d, got %dx%d", th.Size, dims[0], dims[1], th.Width, th.Height)
		}
		keys[th.BlobKey] = true
		if ok, _ := store.Exists(th.BlobKey); !ok {
			t.Errorf("blob %s not stored", th.BlobKey)
		}
	}
	if len(keys) != 3 {
		t.Error("blob keys should be distinct")
	}

	var count int64
	db.Model(&models.VideoThumbnail{}).Where("video_id = ?", video.ID).Count(&count)
	if count != 3 {
		t.Errorf("expected 3 rows, got %d", count)
	}
}

func TestGenerateFailsAsAUnit(t *testing.T) {
	db := testutil.NewDB(t)
	store := &flakyStorage{MemoryStorage: storage.NewMemoryStorage(), okWrites: 2}
	video := testutil.CreateVideo(t, db, models.Video{Title: "a"})

	if _, err := NewGenerator(db, store).Generate(context.Background(), video.ID, sourceImage(t, 640, 480)); err == nil {
		t.Fatal("expected error")
	}

	var count int64
	db.Model(&models.VideoThumbnail{}).Count(&count)
	if count != 0 {
		t.Errorf("expected no rows, got %d", count)
	}
	if keys := store.Keys(); len(keys) != 0 {
		t.Errorf("expected uploaded blobs to be removed, got %v", keys)
	}
}

func TestGenerateRejectsNonImage(t *testing.T) {
	db := testutil.NewDB(t)
	video := testutil.CreateVideo(t, db, models.Video{Title: "a"})

	if _, err := NewGenerator(db, storage.NewMemoryStorage()).Generate(context.Background(), video.ID, bytes.NewBufferString("nope")); err == nil {
		t.Error("expected error")
	}
}

func TestRegenerateReplacesSet(t *testing.T) {
	db := testutil.NewDB(t)
	store := storage.NewMemoryStorage()
	gen := NewGenerator(db, store)
	video := testutil.CreateVideo(t, db, models.Video{Title: "a"})
	ctx := context.Background()

	first, err := gen.Generate(ctx, video.ID, sourceImage(t, 1920, 1080))
	if err != nil {
		t.Fatal(err)
	}
	// A missing old blob must not stop regeneration.
	store.Delete(first[0].BlobKey)

	second, err := gen.Regenerate(ctx, video.ID, sourceImage(t, 1000, 1000))
	if err != nil {
		t.Fatal(err)
	}

	for _, th := range first {
		if ok, _ := store.Exists(th.BlobKey); ok {
			t.Errorf("old blob %s still present", th.BlobKey)
		}
	}
	var rows []models.VideoThumbnail
	db.Where("video_id = ?", video.ID).Find(&rows)
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	for _, r := range rows {
		if r.Width != r.Height {
			t.Errorf("expected square thumbnail, got %dx%d", r.Width, r.Height)
		}
	}
	if len(store.Keys()) != len(second) {
		t.Errorf("expected only the new blobs, got %v", store.Keys())
	}
}

func TestRegenerateFailureKeepsOldSet(t *testing.T) {
	db := testutil.NewDB(t)
	mem := storage.NewMemoryStorage()
	video := testutil.CreateVideo(t, db, models.Video{Title: "a"})
	ctx := context.Background()

	first, err := NewGenerator(db, mem).Generate(ctx, video.ID, sourceImage(t, 800, 600))
	if err != nil {
		t.Fatal(err)
	}

	flaky := &flakyStorage{MemoryStorage: mem, okWrites: 1}
	if _, err := NewGenerator(db, flaky).Regenerate(ctx, video.ID, sourceImage(t, 800, 600)); err == nil {
		t.Fatal("expected error")
	}

	var rows []models.VideoThumbnail
	db.Where("video_id = ?", video.ID).Order("id").Find(&rows)
	if len(rows) != 3 || rows[0].BlobKey != first[0].BlobKey {
		t.Errorf("old set should be untouched, got %+v", rows)
	}
	if len(mem.Keys()) != 3 {
		t.Errorf("expected only the old blobs, got %v", mem.Keys())
	}
}

func TestPurge(t *testing.T) {
	db := testutil.NewDB(t)
	store := storage.NewMemoryStorage()
	gen := NewGenerator(db, store)
	video := testutil.CreateVideo(t, db, models.Video{Title: "a"})
	ctx := context.Background()

	if _, err := gen.Generate(ctx, video.ID, sourceImage(t, 320, 240)); err != nil {
		t.Fatal(err)
	}
	if err := gen.Purge(ctx, video.ID); err != nil {
		t.Fatal(err)
	}

	var count int64
	db.Model(&models.VideoThumbnail{}).Count(&count)
	if count != 0 || len(store.Keys()) != 0 {
		t.Errorf("expected everything removed, rows=%d blobs=%v", count, store.Keys())
	}
}
