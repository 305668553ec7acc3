package videos

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"vidpipe/internal/models"
)

const (
	DefaultPerPage = 15
	MaxPerPage     = 100
)

// FeedQuery selects a page of videos, newest first.
type FeedQuery struct {
	Page    int
	PerPage int
	UserID  uint   // only this owner's videos when set
	Search  string // case-insensitive match on title or description, processed only
}

type Paginator struct {
	Total       int64 `json:"total"`
	Count       int   `json:"count"`
	PerPage     int   `json:"perPage"`
	CurrentPage int   `json:"currentPage"`
	LastPage    int   `json:"lastPage"`
}

type Page struct {
	Videos    []models.Video
	Paginator Paginator
}

func (q FeedQuery) normalize() FeedQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PerPage < 1 {
		q.PerPage = DefaultPerPage
	}
	if q.PerPage > MaxPerPage {
		q.PerPage = MaxPerPage
	}
	q.Search = strings.TrimSpace(q.Search)
	return q
}

// Feed returns one page of videos with owners and thumbnails loaded.
func (s *Service) Feed(ctx context.Context, q FeedQuery) (*Page, error) {
	q = q.normalize()

	base := s.db.WithContext(ctx).Model(&models.Video{})
	if q.UserID != 0 {
		base = base.Where("user_id = ?", q.UserID)
	}
	if q.Search != "" {
		like := "%" + strings.ToLower(q.Search) + "%"
		base = base.Where("status = ?", models.StatusProcessed).
			Where("LOWER(title) LIKE ? OR LOWER(description) LIKE ?", like, like)
	}

	var total int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, fmt.Errorf("count videos: %w", err)
	}

	var videos []models.Video
	err := base.Session(&gorm.Session{}).
		Preload("User").
		Preload("Thumbnails", func(db *gorm.DB) *gorm.DB { return db.Order("width DESC") }).
		Order("created_at DESC").Order("id DESC").
		Limit(q.PerPage).
		Offset((q.Page - 1) * q.PerPage).
		Find(&videos).Error
	if err != nil {
		return nil, fmt.Errorf("list videos: %w", err)
	}

	lastPage := int((total + int64(q.PerPage) - 1) / int64(q.PerPage))
	if lastPage < 1 {
		lastPage = 1
	}
	return &Page{
		Videos: videos,
		Paginator: Paginator{
			Total:       total,
			Count:       len(videos),
			PerPage:     q.PerPage,
			CurrentPage: q.Page,
			LastPage:    lastPage,
		},
	}, nil
}
