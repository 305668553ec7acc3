// Package videos implements the video operations exposed over the API.
package videos

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"gorm.io/gorm"

	"vidpipe/internal/models"
	"vidpipe/internal/storage"
	"vidpipe/internal/thumbnails"
	"vidpipe/internal/utils"
)

// Enqueuer hands a video to the processing queue.
type Enqueuer interface {
	EnqueueProcessing(ctx context.Context, video *models.Video) error
}

// Resubmitter moves a terminal video back to processing.
type Resubmitter interface {
	Resubmit(ctx context.Context, videoID uint) error
}

// File is an uploaded file. Content must be rewindable for type sniffing.
type File struct {
	Name    string
	Size    int64
	Content io.ReadSeeker
}

type UploadInput struct {
	Title             string
	Description       string
	Video             *File
	WatermarkType     string
	WatermarkText     string
	WatermarkImage    *File
	WatermarkPosition string
	Thumbnail         *File
}

type UpdateInput struct {
	Title       string
	Description string
	Thumbnail   *File
}

type Service struct {
	db          *gorm.DB
	storage     storage.Storage
	thumbnails  *thumbnails.Generator
	queue       Enqueuer
	resubmitter Resubmitter
	urlTTL      time.Duration
}

func NewService(db *gorm.DB, store storage.Storage, gen *thumbnails.Generator, queue Enqueuer, resubmitter Resubmitter, urlTTL time.Duration) *Service {
	return &Service{
		db:          db,
		storage:     store,
		thumbnails:  gen,
		queue:       queue,
		resubmitter: resubmitter,
		urlTTL:      urlTTL,
	}
}

// Upload validates the form, stores the original and creates the video in
// processing. Thumbnail failures are logged; the upload still succeeds.
func (s *Service) Upload(ctx context.Context, caller models.Caller, in UploadInput) (*models.Video, error) {
	rules, err := uploadRules(in)
	if err != nil {
		return nil, err
	}
	if err := utils.ValidateStruct(rules); err != nil {
		return nil, err
	}

	code, err := utils.GenerateVideoCode(s.db.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("generate video code: %w", err)
	}

	video := &models.Video{
		VideoCode:   code,
		UserID:      caller.UserID,
		Title:       in.Title,
		Description: in.Description,
		Status:      models.StatusProcessing,
	}

	originalKey := storage.NewKey(storage.PrefixOriginal, extension(in.Video.Name, rules.VideoMIME))
	size, err := storage.Put(s.storage, originalKey, in.Video.Content)
	if err != nil {
		return nil, err
	}
	video.OriginalBlobKey = originalKey
	video.OriginalSize = size

	wm, err := s.storeWatermark(in, rules)
	if err != nil {
		s.storage.Delete(originalKey)
		return nil, err
	}
	video.SetWatermark(wm)

	if err := s.db.WithContext(ctx).Create(video).Error; err != nil {
		s.storage.Delete(originalKey)
		if img, ok := wm.(models.ImageWatermark); ok {
			s.storage.Delete(img.BlobKey)
		}
		return nil, fmt.Errorf("create video: %w", err)
	}

	logger := slog.With("video_id", video.ID, "video_code", video.VideoCode)
	if in.Thumbnail != nil {
		thumbs, err := s.thumbnails.Generate(ctx, video.ID, in.Thumbnail.Content)
		if err != nil {
			logger.Warn("Thumbnail generation failed", "error", err)
		} else {
			video.Thumbnails = thumbs
		}
	}

	if err := s.enqueue(ctx, video); err != nil {
		return nil, err
	}

	logger.Info("Video uploaded", "original_key", originalKey, "size", size)
	return video, nil
}

func uploadRules(in UploadInput) (utils.UploadRules, error) {
	rules := utils.UploadRules{
		Title:             in.Title,
		Description:       in.Description,
		WatermarkType:     in.WatermarkType,
		WatermarkText:     in.WatermarkText,
		WatermarkPosition: in.WatermarkPosition,
	}

	var err error
	if rules.VideoMIME, err = sniff(in.Video); err != nil {
		return rules, err
	}
	if rules.WatermarkImageMIME, err = sniff(in.WatermarkImage); err != nil {
		return rules, err
	}
	if rules.ThumbnailMIME, err = sniff(in.Thumbnail); err != nil {
		return rules, err
	}
	return rules, nil
}

func sniff(f *File) (string, error) {
	if f == nil || f.Content == nil {
		return "", nil
	}
	return utils.DetectMIME(f.Content)
}

func (s *Service) storeWatermark(in UploadInput, rules utils.UploadRules) (models.Watermark, error) {
	pos := models.WatermarkPosition(in.WatermarkPosition)
	if pos == "" {
		pos = models.DefaultWatermarkPosition
	}

	switch models.WatermarkType(in.WatermarkType) {
	case models.WatermarkTypeText:
		return models.TextWatermark{Text: in.WatermarkText, Position: pos}, nil
	case models.WatermarkTypeImage:
		key := storage.NewKey(storage.PrefixWatermarks, extension(in.WatermarkImage.Name, rules.WatermarkImageMIME))
		if _, err := storage.Put(s.storage, key, in.WatermarkImage.Content); err != nil {
			return nil, err
		}
		return models.ImageWatermark{BlobKey: key, Position: pos}, nil
	default:
		return models.NoWatermark{}, nil
	}
}

// extension prefers the client's file extension and falls back to the
// sniffed type.
func extension(name, mime string) string {
	if ext := strings.ToLower(filepath.Ext(name)); ext != "" && len(ext) <= 6 {
		return ext
	}
	if m := mimetype.Lookup(mime); m != nil {
		return m.Extension()
	}
	return ""
}

// Get loads a video with its owner and thumbnails.
func (s *Service) Get(ctx context.Context, code string) (*models.Video, error) {
	var video models.Video
	err := s.db.WithContext(ctx).
		Preload("User").
		Preload("Thumbnails", func(db *gorm.DB) *gorm.DB { return db.Order("width DESC") }).
		Where("video_code = ?", code).
		First(&video).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &utils.NotFoundError{Resource: "video", Key: code}
	}
	if err != nil {
		return nil, err
	}
	return &video, nil
}

// owned loads a video the caller owns.
func (s *Service) owned(ctx context.Context, caller models.Caller, code string) (*models.Video, error) {
	video, err := s.Get(ctx, code)
	if err != nil {
		return nil, err
	}
	if video.UserID != caller.UserID {
		return nil, utils.ErrForbidden
	}
	return video, nil
}

// Update edits title and description. A new thumbnail source replaces the
// thumbnail set; a failed regeneration keeps the old set and is returned.
func (s *Service) Update(ctx context.Context, caller models.Caller, code string, in UpdateInput) (*models.Video, error) {
	rules := utils.EditRules{Title: in.Title, Description: in.Description}
	var err error
	if rules.ThumbnailMIME, err = sniff(in.Thumbnail); err != nil {
		return nil, err
	}
	if err := utils.ValidateStruct(rules); err != nil {
		return nil, err
	}

	video, err := s.owned(ctx, caller, code)
	if err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Model(&models.Video{}).Where("id = ?", video.ID).Updates(map[string]interface{}{
		"title":       in.Title,
		"description": in.Description,
	}).Error; err != nil {
		return nil, fmt.Errorf("update video: %w", err)
	}
	video.Title = in.Title
	video.Description = in.Description

	if in.Thumbnail != nil {
		thumbs, err := s.thumbnails.Regenerate(ctx, video.ID, in.Thumbnail.Content)
		if err != nil {
			return video, fmt.Errorf("regenerate thumbnails: %w", err)
		}
		video.Thumbnails = thumbs
	}
	return video, nil
}

// Reprocess resubmits a terminal video and enqueues a new job.
func (s *Service) Reprocess(ctx context.Context, caller models.Caller, code string) (*models.Video, error) {
	video, err := s.owned(ctx, caller, code)
	if err != nil {
		return nil, err
	}
	if err := s.resubmitter.Resubmit(ctx, video.ID); err != nil {
		return nil, err
	}
	if err := s.enqueue(ctx, video); err != nil {
		return nil, err
	}
	return s.Get(ctx, code)
}

// enqueue hands the video to the queue. When that fails the video is marked
// failed so it never waits in processing without a job.
func (s *Service) enqueue(ctx context.Context, video *models.Video) error {
	err := s.queue.EnqueueProcessing(ctx, video)
	if err == nil {
		return nil
	}
	slog.Error("Failed to enqueue processing job", "video_id", video.ID, "video_code", video.VideoCode, "error", err)
	s.db.WithContext(context.WithoutCancel(ctx)).Model(&models.Video{}).
		Where("id = ? AND status = ?", video.ID, models.StatusProcessing).
		Update("status", models.StatusFailed)
	return fmt.Errorf("enqueue processing: %w", err)
}

// Delete soft-deletes the video and removes its thumbnails. Original and
// processed blobs are kept with the soft-deleted row.
func (s *Service) Delete(ctx context.Context, caller models.Caller, code string) error {
	video, err := s.owned(ctx, caller, code)
	if err != nil {
		return err
	}
	if err := s.thumbnails.Purge(ctx, video.ID); err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Delete(video).Error; err != nil {
		return fmt.Errorf("delete video: %w", err)
	}
	slog.Info("Video deleted", "video_id", video.ID, "video_code", code)
	return nil
}
