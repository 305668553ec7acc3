// Package views counts video views, suppressing repeats from the same IP
// address within a time window.
package views

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"vidpipe/internal/models"
	"vidpipe/internal/utils"
)

// DefaultWindow is the dedup window when none is configured
const DefaultWindow = 10 * time.Minute

// Viewer identifies where a view came from. Only IP takes part in dedup.
type Viewer struct {
	IP        string
	UserAgent string
}

type Result struct {
	Incremented bool  `json:"incremented"`
	ViewCount   int64 `json:"view_count"`
}

type Counter struct {
	db     *gorm.DB
	window time.Duration
	now    func() time.Time
}

func NewCounter(db *gorm.DB, window time.Duration) *Counter {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Counter{db: db, window: window, now: time.Now}
}

// Window returns the configured dedup window.
func (c *Counter) Window() time.Duration { return c.window }

// Record counts a view of videoCode unless viewer's IP already viewed it
// within the window. Suppressed views write nothing.
func (c *Counter) Record(ctx context.Context, videoCode string, viewer Viewer) (Result, error) {
	var result Result
	now := c.now().UTC()

	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var video models.Video
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id", "view_count").
			Where("video_code = ?", videoCode).
			First(&video).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &utils.NotFoundError{Resource: "video", Key: videoCode}
		}
		if err != nil {
			return err
		}

		var recent int64
		if err := tx.Model(&models.ViewLog{}).
			Where("video_id = ? AND ip_address = ? AND created_at > ?", video.ID, viewer.IP, now.Add(-c.window)).
			Count(&recent).Error; err != nil {
			return err
		}
		if recent > 0 {
			result = Result{Incremented: false, ViewCount: video.ViewCount}
			return nil
		}

		if err := tx.Model(&models.Video{}).
			Where("id = ?", video.ID).
			UpdateColumn("view_count", gorm.Expr("view_count + 1")).Error; err != nil {
			return err
		}
		if err := tx.Create(&models.ViewLog{
			VideoID:   video.ID,
			IPAddress: viewer.IP,
			UserAgent: viewer.UserAgent,
			CreatedAt: now,
		}).Error; err != nil {
			return err
		}

		var count int64
		if err := tx.Model(&models.Video{}).Select("view_count").Where("id = ?", video.ID).Scan(&count).Error; err != nil {
			return err
		}
		result = Result{Incremented: true, ViewCount: count}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return result, nil
}

// Prune deletes view logs older than cutoff. They only matter inside the
// dedup window.
func (c *Counter) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res := c.db.WithContext(ctx).Where("created_at < ?", cutoff.UTC()).Delete(&models.ViewLog{})
	if res.Error != nil {
		return 0, fmt.Errorf("prune view logs: %w", res.Error)
	}
	return res.RowsAffected, nil
}
