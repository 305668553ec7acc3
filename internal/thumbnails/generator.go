// Package thumbnails renders the fixed set of JPEG thumbnails for a video.
package thumbnails

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"log/slog"

	"gorm.io/gorm"

	"vidpipe/internal/imaging"
	"vidpipe/internal/models"
	"vidpipe/internal/storage"
)

// Spec is one entry of the thumbnail set
type Spec struct {
	Size    models.ThumbnailSize
	Width   int
	Quality int
}

// Specs is the set every generation produces, in order.
var Specs = []Spec{
	{Size: models.ThumbnailSmall, Width: 1280, Quality: 80},
	{Size: models.ThumbnailMedium, Width: 640, Quality: 60},
	{Size: models.ThumbnailLarge, Width: 320, Quality: 40},
}

// Generator creates and replaces thumbnail sets. It never touches the
// video's status.
type Generator struct {
	db      *gorm.DB
	storage storage.Storage
}

func NewGenerator(db *gorm.DB, store storage.Storage) *Generator {
	return &Generator{db: db, storage: store}
}

type rendered struct {
	thumb models.VideoThumbnail
	data  []byte
}

// Generate stores a new set for videoID from src. Either all rows are
// created or none; blobs uploaded before a failure are removed.
func (g *Generator) Generate(ctx context.Context, videoID uint, src io.Reader) ([]models.VideoThumbnail, error) {
	batch, err := g.prepare(videoID, src)
	if err != nil {
		return nil, err
	}

	thumbs := rowsOf(batch)
	if err := g.db.WithContext(ctx).Create(&thumbs).Error; err != nil {
		g.discard(batch)
		return nil, fmt.Errorf("save thumbnails: %w", err)
	}
	return thumbs, nil
}

// Regenerate replaces the set for videoID. The new blobs are stored first,
// then the rows are swapped in one transaction, then the old blobs are
// removed. A failure before the swap leaves the old set in place.
func (g *Generator) Regenerate(ctx context.Context, videoID uint, src io.Reader) ([]models.VideoThumbnail, error) {
	batch, err := g.prepare(videoID, src)
	if err != nil {
		return nil, err
	}

	thumbs := rowsOf(batch)
	var old []models.VideoThumbnail
	err = g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("video_id = ?", videoID).Find(&old).Error; err != nil {
			return err
		}
		if len(old) > 0 {
			if err := tx.Delete(&old).Error; err != nil {
				return err
			}
		}
		return tx.Create(&thumbs).Error
	})
	if err != nil {
		g.discard(batch)
		return nil, fmt.Errorf("replace thumbnails: %w", err)
	}

	g.deleteBlobs(videoID, old)
	return thumbs, nil
}

// Purge removes every thumbnail of videoID, blobs and rows.
func (g *Generator) Purge(ctx context.Context, videoID uint) error {
	var old []models.VideoThumbnail
	if err := g.db.WithContext(ctx).Where("video_id = ?", videoID).Find(&old).Error; err != nil {
		return err
	}
	if len(old) == 0 {
		return nil
	}
	if err := g.db.WithContext(ctx).Delete(&old).Error; err != nil {
		return fmt.Errorf("delete thumbnails: %w", err)
	}
	g.deleteBlobs(videoID, old)
	return nil
}

// prepare renders and uploads the whole set.
func (g *Generator) prepare(videoID uint, src io.Reader) ([]rendered, error) {
	img, err := imaging.Decode(src)
	if err != nil {
		return nil, fmt.Errorf("thumbnail source: %w", err)
	}

	batch, err := render(videoID, img)
	if err != nil {
		return nil, err
	}

	for i, r := range batch {
		if _, err := storage.Put(g.storage, r.thumb.BlobKey, bytes.NewReader(r.data)); err != nil {
			g.discard(batch[:i])
			return nil, err
		}
	}
	return batch, nil
}

func render(videoID uint, img image.Image) ([]rendered, error) {
	b := img.Bounds()
	batch := make([]rendered, 0, len(Specs))
	for _, spec := range Specs {
		h := imaging.ScaledHeight(spec.Width, b.Dx(), b.Dy())

		var buf bytes.Buffer
		if err := imaging.EncodeJPEG(&buf, imaging.Resize(img, spec.Width, h), spec.Quality); err != nil {
			return nil, fmt.Errorf("encode %s thumbnail: %w", spec.Size, err)
		}

		batch = append(batch, rendered{
			thumb: models.VideoThumbnail{
				VideoID: videoID,
				BlobKey: storage.NewKey(storage.PrefixThumbnails, "_"+string(spec.Size)+".jpg"),
				Size:    spec.Size,
				Width:   spec.Width,
				Height:  h,
			},
			data: buf.Bytes(),
		})
	}
	return batch, nil
}

func rowsOf(batch []rendered) []models.VideoThumbnail {
	rows := make([]models.VideoThumbnail, len(batch))
	for i, r := range batch {
		rows[i] = r.thumb
	}
	return rows
}

func (g *Generator) discard(batch []rendered) {
	for _, r := range batch {
		if err := g.storage.Delete(r.thumb.BlobKey); err != nil {
			slog.Warn("Failed to remove orphaned thumbnail", "key", r.thumb.BlobKey, "error", err)
		}
	}
}

func (g *Generator) deleteBlobs(videoID uint, thumbs []models.VideoThumbnail) {
	for _, t := range thumbs {
		if err := storage.DeleteIfExists(g.storage, t.BlobKey); err != nil {
			slog.Warn("Failed to delete thumbnail blob", "video_id", videoID, "key", t.BlobKey, "error", err)
		}
	}
}
