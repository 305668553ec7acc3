package utils

import (
	"context"
	"fmt"
	"os/exec"
	"time"
)

// HealthCheckConfig holds configuration for startup health checks
type HealthCheckConfig struct {
	FFmpegPath  string
	FFprobePath string
	Timeout     time.Duration
}

// DefaultHealthCheckConfig returns a sensible default health check configuration
func DefaultHealthCheckConfig() HealthCheckConfig {
	return HealthCheckConfig{
		FFmpegPath:  "ffmpeg",
		FFprobePath: "ffprobe",
		Timeout:     10 * time.Second,
	}
}

// RunHealthChecks verifies the media tools the processing job shells out to
func RunHealthChecks(config HealthCheckConfig) error {
	if err := checkBinary(config.FFmpegPath, config.Timeout); err != nil {
		return fmt.Errorf("ffmpeg health check failed: %w", err)
	}
	if err := checkBinary(config.FFprobePath, config.Timeout); err != nil {
		return fmt.Errorf("ffprobe health check failed: %w", err)
	}
	return nil
}

func checkBinary(path string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := exec.CommandContext(ctx, path, "-version").Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%s timed out after %v", path, timeout)
		}
		return fmt.Errorf("%s not available or not working: %w", path, err)
	}
	return nil
}
