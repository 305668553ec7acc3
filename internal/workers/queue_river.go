package workers

import (
	"context"
	"log/slog"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"gorm.io/gorm"

	"vidpipe/internal/models"
)

// JobInserter is the part of the River client used for enqueueing
type JobInserter interface {
	Insert(ctx context.Context, args river.JobArgs, opts *river.InsertOpts) (*rivertype.JobInsertResult, error)
}

// RiverQueueManager handles River-based job queueing
type RiverQueueManager struct {
	inserter JobInserter
	db       *gorm.DB
}

// NewRiverQueueManager creates a new River queue manager
func NewRiverQueueManager(inserter JobInserter, db *gorm.DB) *RiverQueueManager {
	return &RiverQueueManager{
		inserter: inserter,
		db:       db,
	}
}

// liveStates are the job states in which a second job for the same video is
// refused.
var liveStates = []rivertype.JobState{
	rivertype.JobStateAvailable,
	rivertype.JobStatePending,
	rivertype.JobStateRunning,
	rivertype.JobStateRetryable,
	rivertype.JobStateScheduled,
}

func processOpts() *river.InsertOpts {
	return &river.InsertOpts{
		MaxAttempts: 3,
		Tags:        []string{"process_video"},
		UniqueOpts: river.UniqueOpts{
			ByArgs:  true,
			ByState: liveStates,
		},
	}
}

// EnqueueProcessing queues a processing job for video. While a job for the
// same video is live, the insert is skipped as a duplicate.
func (rqm *RiverQueueManager) EnqueueProcessing(ctx context.Context, video *models.Video) error {
	args := ProcessVideoArgs{VideoID: video.ID, SourceBytes: video.OriginalSize}

	res, err := rqm.inserter.Insert(ctx, args, processOpts())
	if err != nil {
		slog.Error("Failed to enqueue processing job",
			"video_id", video.ID,
			"error", err)
		return err
	}

	if res.UniqueSkippedAsDuplicate {
		slog.Info("Processing job already queued", "video_id", video.ID, "job_id", res.Job.ID)
		return nil
	}
	slog.Info("Queued processing job", "video_id", video.ID, "job_id", res.Job.ID)
	return nil
}

// RequeueProcessing enqueues every video still in processing. Videos with a
// live job are skipped by the unique options.
func (rqm *RiverQueueManager) RequeueProcessing(ctx context.Context) (int, error) {
	var videos []models.Video
	if err := rqm.db.WithContext(ctx).
		Select("id", "original_size").
		Where("status = ?", models.StatusProcessing).
		Find(&videos).Error; err != nil {
		return 0, err
	}

	queued := 0
	for i := range videos {
		if err := rqm.EnqueueProcessing(ctx, &videos[i]); err != nil {
			return queued, err
		}
		queued++
	}
	return queued, nil
}
