package utils

import (
	"context"
	"time"
)

// TimeoutConfig holds timeout configuration for processing jobs
type TimeoutConfig struct {
	JobBaseTimeout   time.Duration // Floor for every processing job
	JobTimeoutPerGiB time.Duration // Added per GiB of source video
	JobMaxTimeout    time.Duration // Cap regardless of source size
	ProbeTimeout     time.Duration // Max time for a single ffprobe run
}

// DefaultTimeoutConfig returns sensible default timeouts
func DefaultTimeoutConfig() TimeoutConfig {
	return TimeoutConfig{
		JobBaseTimeout:   10 * time.Minute,
		JobTimeoutPerGiB: 30 * time.Minute,
		JobMaxTimeout:    4 * time.Hour,
		ProbeTimeout:     2 * time.Minute,
	}
}

// JobTimeout scales the job wall clock with the size of the source file.
func (c TimeoutConfig) JobTimeout(sourceBytes int64) time.Duration {
	const gib = 1 << 30
	timeout := c.JobBaseTimeout
	if sourceBytes > 0 {
		timeout += time.Duration(float64(c.JobTimeoutPerGiB) * float64(sourceBytes) / gib)
	}
	if c.JobMaxTimeout > 0 && timeout > c.JobMaxTimeout {
		return c.JobMaxTimeout
	}
	return timeout
}

// WithTimeout wraps a function with a timeout context
func WithTimeout(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- fn(ctx)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
