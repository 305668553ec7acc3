package workers

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"vidpipe/internal/models"
	"vidpipe/internal/processing"
	"vidpipe/internal/storage"
	"vidpipe/internal/views"
)

// Maintenance repairs state the processing jobs could not
type Maintenance struct {
	db               *gorm.DB
	storage          storage.Storage
	views            *views.Counter
	viewLogRetention time.Duration
	stuckAfter       time.Duration
	now              func() time.Time
}

func NewMaintenance(db *gorm.DB, store storage.Storage, counter *views.Counter, viewLogRetention, stuckAfter time.Duration) *Maintenance {
	return &Maintenance{
		db:               db,
		storage:          store,
		views:            counter,
		viewLogRetention: viewLogRetention,
		stuckAfter:       stuckAfter,
		now:              time.Now,
	}
}

// Run performs every maintenance step. A failing step does not stop the others.
func (m *Maintenance) Run(ctx context.Context) error {
	slog.Info("Starting periodic maintenance")

	var errs []error
	if _, err := m.FailOrphanedVideos(ctx); err != nil {
		slog.Error("Failed to clean up orphaned videos", "error", err)
		errs = append(errs, err)
	}
	if _, err := m.PruneViewLogs(ctx); err != nil {
		slog.Error("Failed to prune view logs", "error", err)
		errs = append(errs, err)
	}
	if _, err := m.PurgeSupersededBlobs(ctx); err != nil {
		slog.Error("Failed to purge superseded blobs", "error", err)
		errs = append(errs, err)
	}

	slog.Info("Periodic maintenance completed")
	return errors.Join(errs...)
}

// FailOrphanedVideos marks failed the videos left in processing with no live
// River job. Requires the river_job table, so Postgres only.
func (m *Maintenance) FailOrphanedVideos(ctx context.Context) (int64, error) {
	result := m.db.WithContext(ctx).Exec(`
		UPDATE videos
		SET status = 'failed',
			processed_blob_key = NULL,
			updated_at = NOW(),
			processing_log = COALESCE(processing_log, '') || E'\n' || 'Marked as failed during maintenance - no live processing job found (' || NOW()::timestamptz || ')'
		WHERE videos.status = 'processing'
		  AND videos.deleted_at IS NULL
		  AND videos.updated_at < NOW() - (? * INTERVAL '1 second')
		  AND NOT EXISTS (
			  SELECT 1 FROM river_job rj
			  WHERE rj.kind = 'process_video'
				AND (rj.args::json->>'video_id')::bigint = videos.id
				AND rj.state IN ('available', 'pending', 'running', 'retryable', 'scheduled')
		  )
	`, m.stuckAfter.Seconds())
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected > 0 {
		slog.Info("Marked orphaned videos as failed", "count", result.RowsAffected)
	}
	return result.RowsAffected, nil
}

// PruneViewLogs drops view logs past the retention. The retention never
// drops below the dedup window.
func (m *Maintenance) PruneViewLogs(ctx context.Context) (int64, error) {
	retention := max(m.viewLogRetention, m.views.Window())
	n, err := m.views.Prune(ctx, m.now().Add(-retention))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		slog.Info("Pruned view logs", "count", n)
	}
	return n, nil
}

// PurgeSupersededBlobs retries deletion of processed blobs replaced by a
// reprocess whose job already finished.
func (m *Maintenance) PurgeSupersededBlobs(ctx context.Context) (int, error) {
	var videos []models.Video
	if err := m.db.WithContext(ctx).Unscoped().
		Select("id", "previous_processed_blob_key").
		Where("previous_processed_blob_key IS NOT NULL AND status <> ?", models.StatusProcessing).
		Find(&videos).Error; err != nil {
		return 0, err
	}

	purged := 0
	for _, v := range videos {
		key := *v.PreviousProcessedBlobKey
		if err := processing.PurgeSuperseded(ctx, m.db, m.storage, v.ID, key); err != nil {
			slog.Warn("Failed to purge superseded blob", "video_id", v.ID, "key", key, "error", err)
			continue
		}
		purged++
	}
	if purged > 0 {
		slog.Info("Purged superseded processed blobs", "count", purged)
	}
	return purged, nil
}
