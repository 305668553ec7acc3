package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/klauspost/compress/gzhttp"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"vidpipe/internal/config"
	"vidpipe/internal/handlers"
	"vidpipe/internal/media"
	"vidpipe/internal/models"
	"vidpipe/internal/processing"
	"vidpipe/internal/storage"
	"vidpipe/internal/thumbnails"
	"vidpipe/internal/utils"
	"vidpipe/internal/videos"
	"vidpipe/internal/views"
	"vidpipe/internal/workers"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if err := run(); err != nil {
		slog.Error("Server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Shared pgx pool for both River and GORM
	pgxConfig, err := pgxpool.ParseConfig(cfg.DBURL)
	if err != nil {
		return err
	}
	dbPool, err := pgxpool.NewWithConfig(ctx, pgxConfig)
	if err != nil {
		return err
	}
	defer dbPool.Close()

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: stdlib.OpenDBFromPool(dbPool)}), &gorm.Config{})
	if err != nil {
		return err
	}
	if err := models.AutoMigrate(db); err != nil {
		return err
	}

	migrator, err := rivermigrate.New(riverpgxv5.New(dbPool), nil)
	if err != nil {
		return err
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		return err
	}

	slog.Info("Performing startup health checks")
	if err := utils.RunHealthChecks(utils.HealthCheckConfig{
		FFmpegPath:  cfg.FFmpegPath,
		FFprobePath: cfg.FFprobePath,
		Timeout:     10 * time.Second,
	}); err != nil {
		// uploads still work; jobs fail until the tools are installed
		slog.Warn("Health check warning", "error", err)
	} else {
		slog.Info("All health checks passed")
	}

	store, blobs, err := openStorage(ctx, cfg)
	if err != nil {
		return err
	}

	counter := views.NewCounter(db, cfg.ViewDedupWindow)
	processor := processing.NewProcessor(db, store,
		media.NewFFprobe(cfg.FFprobePath, cfg.ProbeTimeout),
		media.NewFFmpeg(cfg.FFmpegPath, store, cfg.TempDir),
		processing.Config{FontFile: cfg.FontFile, TempDir: cfg.TempDir},
	)
	maintenance := workers.NewMaintenance(db, store, counter, cfg.ViewLogRetention, cfg.StuckAfter)

	riverWorkers := river.NewWorkers()
	river.AddWorker(riverWorkers, workers.NewProcessVideoWorker(processor, cfg.Timeouts()))
	river.AddWorker(riverWorkers, workers.NewMaintenanceWorker(maintenance))

	riverClient, err := river.NewClient(riverpgxv5.New(dbPool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: cfg.MaxWorkers},
		},
		Workers:      riverWorkers,
		PeriodicJobs: []*river.PeriodicJob{workers.PeriodicMaintenance(cfg.MaintenanceInterval)},
		Logger:       slog.Default(),
	})
	if err != nil {
		return err
	}
	if err := riverClient.Start(ctx); err != nil {
		return err
	}

	svc := videos.NewService(db, store,
		thumbnails.NewGenerator(db, store),
		workers.NewRiverQueueManager(riverClient, db),
		processor,
		cfg.SignedURLTTL,
	)

	r := gin.Default()
	handlers.Routes{
		DB:     db,
		Videos: handlers.NewVideoHandlers(svc, counter, cfg.MaxUploadBytes),
		Blobs:  blobs,
	}.Register(r)

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: gzhttp.GzipHandler(r),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting server", "addr", cfg.ListenAddr, "storage", cfg.StorageBackend)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	slog.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP shutdown failed", "error", err)
	}
	if err := riverClient.Stop(shutdownCtx); err != nil {
		slog.Error("River shutdown failed", "error", err)
	}
	return nil
}

// openStorage returns the configured backend. blobs is non-nil only for the
// filesystem backend, whose signed URLs point back at this server.
func openStorage(ctx context.Context, cfg *config.Config) (storage.Storage, *storage.FSStorage, error) {
	switch cfg.StorageBackend {
	case "s3":
		s3Store, err := storage.NewS3Storage(ctx, storage.S3Config{
			Endpoint:        cfg.S3.Endpoint,
			Region:          cfg.S3.Region,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			Bucket:          cfg.S3.Bucket,
			Prefix:          cfg.S3.Prefix,
			ForcePathStyle:  cfg.S3.ForcePathStyle,
			TempDir:         cfg.TempDir,
		})
		if err != nil {
			return nil, nil, err
		}
		return s3Store, nil, nil
	case "memory":
		slog.Warn("Using in-memory storage; blobs are lost on restart")
		return storage.NewMemoryStorage(), nil, nil
	default:
		if err := os.MkdirAll(cfg.StoragePath, 0755); err != nil {
			return nil, nil, err
		}
		fs := storage.NewFSStorage(cfg.StoragePath, cfg.PublicURL, []byte(cfg.SigningKey))
		return fs, fs, nil
	}
}

var _ workers.JobInserter = (*river.Client[pgx.Tx])(nil)
