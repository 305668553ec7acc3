package workers

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/riverqueue/river"

	"vidpipe/internal/processing"
	"vidpipe/internal/utils"
)

// ProcessVideoArgs is the payload of a processing job. Only VideoID takes
// part in uniqueness.
type ProcessVideoArgs struct {
	VideoID     uint  `json:"video_id" river:"unique"`
	SourceBytes int64 `json:"source_bytes"`
}

// Kind returns the job kind for River
func (ProcessVideoArgs) Kind() string { return "process_video" }

// VideoProcessor is the part of processing.Processor the worker drives
type VideoProcessor interface {
	Process(ctx context.Context, videoID uint) error
}

// ProcessVideoWorker runs processing jobs using River
type ProcessVideoWorker struct {
	river.WorkerDefaults[ProcessVideoArgs]
	processor VideoProcessor
	timeouts  utils.TimeoutConfig
}

// NewProcessVideoWorker creates a new processing worker
func NewProcessVideoWorker(processor VideoProcessor, timeouts utils.TimeoutConfig) *ProcessVideoWorker {
	return &ProcessVideoWorker{
		processor: processor,
		timeouts:  timeouts,
	}
}

// Timeout scales with the size of the original upload
func (w *ProcessVideoWorker) Timeout(job *river.Job[ProcessVideoArgs]) time.Duration {
	return w.timeouts.JobTimeout(job.Args.SourceBytes)
}

// Work processes one video. Failures are recorded on the video itself, so
// the job is cancelled rather than retried.
func (w *ProcessVideoWorker) Work(ctx context.Context, job *river.Job[ProcessVideoArgs]) error {
	logger := slog.With(
		"worker", "process_video",
		"job_id", job.ID,
		"attempt", job.Attempt,
		"video_id", job.Args.VideoID,
	)

	logger.Info("Processing video job")

	err := w.processor.Process(ctx, job.Args.VideoID)
	switch {
	case err == nil:
		logger.Info("Video job completed successfully")
		return nil
	case errors.Is(err, processing.ErrNotProcessing):
		logger.Info("Video is no longer processing, skipping")
		return nil
	default:
		logger.Error("Video job failed", "error", err)
		return river.JobCancel(err)
	}
}

// MaintenanceArgs is the payload of the periodic maintenance job
type MaintenanceArgs struct{}

// Kind returns the job kind for River
func (MaintenanceArgs) Kind() string { return "maintenance" }

// MaintenanceWorker runs Maintenance on a schedule
type MaintenanceWorker struct {
	river.WorkerDefaults[MaintenanceArgs]
	maintenance *Maintenance
}

func NewMaintenanceWorker(m *Maintenance) *MaintenanceWorker {
	return &MaintenanceWorker{maintenance: m}
}

func (w *MaintenanceWorker) Work(ctx context.Context, job *river.Job[MaintenanceArgs]) error {
	return w.maintenance.Run(ctx)
}

// PeriodicMaintenance schedules the maintenance job every interval
func PeriodicMaintenance(interval time.Duration) *river.PeriodicJob {
	return river.NewPeriodicJob(
		river.PeriodicInterval(interval),
		func() (river.JobArgs, *river.InsertOpts) {
			return MaintenanceArgs{}, &river.InsertOpts{
				MaxAttempts: 1,
				Tags:        []string{"maintenance"},
				UniqueOpts:  river.UniqueOpts{ByPeriod: interval},
			}
		},
		&river.PeriodicJobOpts{RunOnStart: true},
	)
}
