// Package processing runs the probe, watermark and export job for one video.
package processing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gorm.io/gorm"

	"vidpipe/internal/media"
	"vidpipe/internal/models"
	"vidpipe/internal/storage"
	"vidpipe/internal/utils"
	"vidpipe/internal/watermark"
)

// ErrNotProcessing is returned when the video is not in the processing
// state, either before the job starts or when it tries to finish.
var ErrNotProcessing = errors.New("video is not processing")

// ErrNotTerminal is returned when resubmitting a video that is still processing.
var ErrNotTerminal = errors.New("video is still processing")

type Prober interface {
	Probe(ctx context.Context, path string) (*media.ProbeResult, error)
}

type Transcoder interface {
	Transcode(ctx context.Context, req media.TranscodeRequest) error
}

type Config struct {
	FontFile string
	TempDir  string
}

type Processor struct {
	db         *gorm.DB
	storage    storage.Storage
	prober     Prober
	transcoder Transcoder
	cfg        Config
}

func NewProcessor(db *gorm.DB, store storage.Storage, prober Prober, transcoder Transcoder, cfg Config) *Processor {
	return &Processor{
		db:         db,
		storage:    store,
		prober:     prober,
		transcoder: transcoder,
		cfg:        cfg,
	}
}

// Process takes a video from processing to processed or failed. Every error
// after the status check leaves the video failed with no processed key.
func (p *Processor) Process(ctx context.Context, videoID uint) error {
	var video models.Video
	if err := p.db.WithContext(ctx).First(&video, videoID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &utils.NotFoundError{Resource: "video", Key: fmt.Sprint(videoID)}
		}
		return err
	}
	if video.Status != models.StatusProcessing {
		return ErrNotProcessing
	}

	logger := slog.With("video_id", video.ID, "video_code", video.VideoCode)
	logWriter := utils.NewDBLogWriter(p.db, video.ID)

	logger.Info("Processing video")
	if err := p.run(ctx, &video, logWriter, logger); err != nil {
		logger.Error("Video processing failed", "error", err)
		p.markFailed(ctx, &video, err, logWriter)
		p.purgePrevious(ctx, &video, logger)
		return err
	}

	logger.Info("Video processed", "processed_key", *video.ProcessedBlobKey)
	p.purgePrevious(ctx, &video, logger)
	return nil
}

func (p *Processor) run(ctx context.Context, video *models.Video, logWriter io.Writer, logger *slog.Logger) error {
	workDir, err := os.MkdirTemp(p.cfg.TempDir, "vidpipe-job-*")
	if err != nil {
		return fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	inputPath := filepath.Join(workDir, "original"+filepath.Ext(video.OriginalBlobKey))
	if err := p.download(video.OriginalBlobKey, inputPath); err != nil {
		return err
	}

	probe, err := p.prober.Probe(ctx, inputPath)
	if err != nil {
		var perr *utils.ProbeError
		if !errors.As(err, &perr) {
			err = &utils.ProbeError{Err: err}
		}
		return err
	}
	if probe.Video == nil {
		return &utils.ProbeError{Err: media.ErrNoVideoStream}
	}

	video.Metadata = metadataFrom(probe)
	if err := p.db.WithContext(ctx).Model(video).UpdateColumn("metadata", video.Metadata).Error; err != nil {
		return fmt.Errorf("save metadata: %w", err)
	}
	fmt.Fprintf(logWriter, "probe: %dx%d %s, %.2fs\n", probe.Video.Width, probe.Video.Height, probe.Video.CodecName, probe.DurationSec)

	filters, cleanup, err := p.filters(video, probe.Video.Width, probe.Video.Height)
	if err != nil {
		return err
	}
	defer cleanup()

	outputPath := filepath.Join(workDir, "processed.mp4")
	if err := p.transcoder.Transcode(ctx, media.TranscodeRequest{
		InputPath:  inputPath,
		OutputPath: outputPath,
		Filters:    filters,
		Target:     media.H264MP4,
		Log:        logWriter,
	}); err != nil {
		var terr *utils.TranscodeError
		if !errors.As(err, &terr) {
			err = &utils.TranscodeError{Err: err}
		}
		return err
	}

	processedKey := storage.NewKey(storage.PrefixProcessed, ".mp4")
	if err := p.upload(outputPath, processedKey); err != nil {
		return err
	}

	if err := p.markProcessed(ctx, video, processedKey); err != nil {
		if derr := p.storage.Delete(processedKey); derr != nil {
			logger.Warn("Failed to remove unreferenced processed blob", "key", processedKey, "error", derr)
		}
		return err
	}
	return nil
}

// filters builds the watermark filter for the frame size. The returned
// cleanup removes any derived blob once the export is done.
func (p *Processor) filters(video *models.Video, w, h int) ([]media.Filter, func(), error) {
	noop := func() {}
	switch wm := video.Watermark().(type) {
	case models.TextWatermark:
		return []media.Filter{watermark.TextFilter(wm, w, h, p.cfg.FontFile)}, noop, nil
	case models.ImageWatermark:
		key := watermark.ResizedKey(video.VideoCode)
		overlay, err := watermark.PrepareImage(p.storage, wm, w, h, key)
		if err != nil {
			return nil, noop, err
		}
		cleanup := func() {
			if err := p.storage.Delete(key); err != nil {
				slog.Warn("Failed to remove resized watermark", "video_id", video.ID, "key", key, "error", err)
			}
		}
		return []media.Filter{overlay}, cleanup, nil
	default:
		return nil, noop, nil
	}
}

func (p *Processor) markProcessed(ctx context.Context, video *models.Video, key string) error {
	res := p.db.WithContext(ctx).Model(&models.Video{}).
		Where("id = ? AND status = ?", video.ID, models.StatusProcessing).
		Updates(map[string]interface{}{
			"status":             models.StatusProcessed,
			"processed_blob_key": key,
		})
	if res.Error != nil {
		return fmt.Errorf("mark processed: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotProcessing
	}
	video.Status = models.StatusProcessed
	video.ProcessedBlobKey = &key
	return nil
}

// markFailed runs even when ctx is already cancelled so a timed out job
// never stays in processing.
func (p *Processor) markFailed(ctx context.Context, video *models.Video, cause error, logWriter io.Writer) {
	ctx = context.WithoutCancel(ctx)
	fmt.Fprintf(logWriter, "failed: %v\n", cause)
	var terr *utils.TranscodeError
	if errors.As(cause, &terr) && terr.Output != "" {
		slog.Debug("Encoder output", "video_id", video.ID, "output", terr.Output)
	}

	err := p.db.WithContext(ctx).Model(&models.Video{}).
		Where("id = ? AND status = ?", video.ID, models.StatusProcessing).
		Updates(map[string]interface{}{
			"status":             models.StatusFailed,
			"processed_blob_key": nil,
		}).Error
	if err != nil {
		slog.Error("Failed to mark video failed", "video_id", video.ID, "error", err)
		return
	}
	video.Status = models.StatusFailed
	video.ProcessedBlobKey = nil
}

// purgePrevious deletes the output of the run this one superseded. On error
// the key stays recorded for the maintenance job.
func (p *Processor) purgePrevious(ctx context.Context, video *models.Video, logger *slog.Logger) {
	if video.PreviousProcessedBlobKey == nil {
		return
	}
	key := *video.PreviousProcessedBlobKey
	if err := PurgeSuperseded(context.WithoutCancel(ctx), p.db, p.storage, video.ID, key); err != nil {
		logger.Warn("Failed to purge superseded processed blob", "key", key, "error", err)
		return
	}
	video.PreviousProcessedBlobKey = nil
}

// PurgeSuperseded deletes a superseded processed blob and clears its reference.
func PurgeSuperseded(ctx context.Context, db *gorm.DB, store storage.Storage, videoID uint, key string) error {
	if err := storage.DeleteIfExists(store, key); err != nil {
		return err
	}
	return db.WithContext(ctx).Unscoped().Model(&models.Video{}).
		Where("id = ? AND previous_processed_blob_key = ?", videoID, key).
		UpdateColumn("previous_processed_blob_key", nil).Error
}

// Resubmit moves a terminal video back to processing. Its current processed
// blob becomes the superseded one, deleted when the next run finishes.
// Metadata is cleared so a failed probe on the new run leaves none behind.
func (p *Processor) Resubmit(ctx context.Context, videoID uint) error {
	var stale *string
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var video models.Video
		if err := tx.First(&video, videoID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &utils.NotFoundError{Resource: "video", Key: fmt.Sprint(videoID)}
			}
			return err
		}
		if !video.Status.CanTransitionTo(models.StatusProcessing) {
			return ErrNotTerminal
		}

		updates := map[string]interface{}{
			"status":             models.StatusProcessing,
			"processed_blob_key": nil,
			"metadata":           nil,
		}
		if video.ProcessedBlobKey != nil {
			// A still pending previous blob is dropped now rather than lost.
			stale = video.PreviousProcessedBlobKey
			updates["previous_processed_blob_key"] = *video.ProcessedBlobKey
		}

		res := tx.Model(&models.Video{}).
			Where("id = ? AND status = ?", video.ID, video.Status).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotTerminal
		}
		return nil
	})
	if err != nil {
		return err
	}

	if stale != nil {
		if err := storage.DeleteIfExists(p.storage, *stale); err != nil {
			slog.Warn("Failed to delete stale processed blob", "video_id", videoID, "key", *stale, "error", err)
		}
	}
	return nil
}

func (p *Processor) download(key, path string) error {
	r, err := storage.Get(p.storage, key)
	if err != nil {
		return err
	}
	defer r.Close()

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create input file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		return &utils.StorageError{Op: "get", Key: key, Err: err}
	}
	return nil
}

func (p *Processor) upload(path, key string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open export: %w", err)
	}
	defer f.Close()

	_, err = storage.Put(p.storage, key, f)
	return err
}

func metadataFrom(probe *media.ProbeResult) *models.VideoMetadata {
	m := &models.VideoMetadata{
		Duration:   probe.DurationSec,
		BitRate:    probe.BitRate,
		FormatName: probe.FormatName,
	}
	if v := probe.Video; v != nil {
		m.Width = v.Width
		m.Height = v.Height
		m.CodecName = v.CodecName
		m.FrameRate = media.ParseFrameRate(v.FrameRate)
	}
	if a := probe.Audio; a != nil {
		m.AudioCodec = a.CodecName
		m.AudioChannels = a.Channels
		m.AudioSampleRate = a.SampleRate
	}
	return m
}
