// Package config loads service settings from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"

	"vidpipe/internal/utils"
)

type Config struct {
	ListenAddr string `envconfig:"LISTEN_ADDR" default:":8080"`
	DBURL      string `envconfig:"DB_URL" default:"host=localhost user=user password=pass dbname=vidpipe port=5432 sslmode=disable"`

	// fs, s3 or memory
	StorageBackend string `envconfig:"STORAGE_BACKEND" default:"fs"`
	StoragePath    string `envconfig:"STORAGE_PATH" default:"./storage"`
	PublicURL      string `envconfig:"PUBLIC_URL" default:"http://localhost:8080"`
	// required for fs: signs /blobs URLs
	SigningKey string `envconfig:"BLOB_SIGNING_KEY"`
	S3         S3Config

	FFmpegPath  string `envconfig:"FFMPEG_PATH" default:"ffmpeg"`
	FFprobePath string `envconfig:"FFPROBE_PATH" default:"ffprobe"`
	FontFile    string `envconfig:"WATERMARK_FONT" default:"./fonts/arial.ttf"`
	TempDir     string `envconfig:"TEMP_DIR"`

	MaxWorkers     int   `envconfig:"MAX_WORKERS" default:"2"`
	MaxUploadBytes int64 `envconfig:"MAX_UPLOAD_BYTES" default:"2147483648"`

	ViewDedupWindow     time.Duration `envconfig:"VIEW_DEDUP_WINDOW" default:"10m"`
	ViewLogRetention    time.Duration `envconfig:"VIEW_LOG_RETENTION" default:"24h"`
	SignedURLTTL        time.Duration `envconfig:"SIGNED_URL_TTL" default:"5m"`
	MaintenanceInterval time.Duration `envconfig:"MAINTENANCE_INTERVAL" default:"15m"`
	StuckAfter          time.Duration `envconfig:"STUCK_AFTER" default:"1h"`

	JobBaseTimeout   time.Duration `envconfig:"JOB_BASE_TIMEOUT" default:"10m"`
	JobTimeoutPerGiB time.Duration `envconfig:"JOB_TIMEOUT_PER_GIB" default:"30m"`
	JobMaxTimeout    time.Duration `envconfig:"JOB_MAX_TIMEOUT" default:"4h"`
	ProbeTimeout     time.Duration `envconfig:"PROBE_TIMEOUT" default:"2m"`
}

// MinSigningKeyBytes is the shortest accepted HMAC key for signed blob URLs.
const MinSigningKeyBytes = 32

type S3Config struct {
	Endpoint        string `envconfig:"S3_ENDPOINT"`
	Region          string `envconfig:"S3_REGION" default:"us-east-1"`
	AccessKeyID     string `envconfig:"S3_ACCESS_KEY_ID"`
	SecretAccessKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	Bucket          string `envconfig:"S3_BUCKET"`
	Prefix          string `envconfig:"S3_PREFIX"`
	ForcePathStyle  bool   `envconfig:"S3_FORCE_PATH_STYLE"`
}

// Load reads the environment and checks the combinations envconfig cannot.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.StorageBackend {
	case "memory":
	case "fs":
		if len(c.SigningKey) < MinSigningKeyBytes {
			return fmt.Errorf("BLOB_SIGNING_KEY must be at least %d bytes for the fs storage backend", MinSigningKeyBytes)
		}
	case "s3":
		if c.S3.Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required for the s3 storage backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.StorageBackend)
	}
	if c.MaxWorkers < 1 {
		return fmt.Errorf("MAX_WORKERS must be at least 1")
	}
	if c.ViewDedupWindow <= 0 {
		return fmt.Errorf("VIEW_DEDUP_WINDOW must be positive")
	}
	return nil
}

// Timeouts returns the job timeout settings
func (c *Config) Timeouts() utils.TimeoutConfig {
	return utils.TimeoutConfig{
		JobBaseTimeout:   c.JobBaseTimeout,
		JobTimeoutPerGiB: c.JobTimeoutPerGiB,
		JobMaxTimeout:    c.JobMaxTimeout,
		ProbeTimeout:     c.ProbeTimeout,
	}
}
