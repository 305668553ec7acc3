package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// User represents an uploader
type User struct {
	gorm.Model
	Username     string `gorm:"unique"`
	PasswordHash string
}

// APIKey maps a bearer token to the user it acts for. Keys have the form
// <username>_<app>_<environment>_<secret>; the first three parts are the prefix.
type APIKey struct {
	gorm.Model
	UserID      uint `gorm:"index"`
	User        User
	AppName     string
	Environment string
	KeyPrefix   string `gorm:"unique"`
	KeyHash     string
	IsActive    bool
	LastUsedAt  *time.Time
}

// Caller is the identity an operation runs on behalf of.
type Caller struct {
	UserID uint
}

// VideoStatus is the processing state of a video
type VideoStatus string

const (
	StatusProcessing VideoStatus = "processing"
	StatusProcessed  VideoStatus = "processed"
	StatusFailed     VideoStatus = "failed"
)

// IsTerminal reports whether no further automatic transition happens from s.
func (s VideoStatus) IsTerminal() bool {
	return s == StatusProcessed || s == StatusFailed
}

// CanTransitionTo reports whether s -> next is a legal move. Terminal states
// only go back to processing through an explicit resubmission.
func (s VideoStatus) CanTransitionTo(next VideoStatus) bool {
	switch s {
	case StatusProcessing:
		return next == StatusProcessed || next == StatusFailed
	case StatusProcessed, StatusFailed:
		return next == StatusProcessing
	}
	return false
}

// Video represents an uploaded video and the outputs of its processing job
type Video struct {
	gorm.Model
	VideoCode                string `gorm:"uniqueIndex;size:11"`
	UserID                   uint   `gorm:"index"`
	User                     User
	Title                    string
	Description              string `gorm:"type:text"`
	OriginalBlobKey          string `gorm:"uniqueIndex"`
	OriginalSize             int64
	ProcessedBlobKey         *string `gorm:"uniqueIndex"`
	PreviousProcessedBlobKey *string
	WatermarkType            WatermarkType `gorm:"size:16"`
	WatermarkContent         string
	WatermarkPosition        WatermarkPosition `gorm:"size:16"`
	Status                   VideoStatus       `gorm:"size:16;index"`
	Metadata                 *VideoMetadata    `gorm:"type:jsonb"`
	ViewCount                int64             `gorm:"not null;default:0"`
	ProcessingLog            string            `gorm:"type:text"`
	Thumbnails               []VideoThumbnail  `gorm:"constraint:OnDelete:CASCADE"`
}

// Watermark returns the typed watermark stored on the row.
func (v *Video) Watermark() Watermark {
	switch v.WatermarkType {
	case WatermarkTypeText:
		return TextWatermark{Text: v.WatermarkContent, Position: v.WatermarkPosition}
	case WatermarkTypeImage:
		return ImageWatermark{BlobKey: v.WatermarkContent, Position: v.WatermarkPosition}
	default:
		return NoWatermark{}
	}
}

// SetWatermark flattens w into the row's watermark columns.
func (v *Video) SetWatermark(w Watermark) {
	switch wm := w.(type) {
	case TextWatermark:
		v.WatermarkType = WatermarkTypeText
		v.WatermarkContent = wm.Text
		v.WatermarkPosition = wm.Position
	case ImageWatermark:
		v.WatermarkType = WatermarkTypeImage
		v.WatermarkContent = wm.BlobKey
		v.WatermarkPosition = wm.Position
	default:
		v.WatermarkType = WatermarkTypeNone
		v.WatermarkContent = ""
		v.WatermarkPosition = ""
	}
}

// VideoMetadata is what the probe learned about the original stream
type VideoMetadata struct {
	Duration        float64  `json:"duration"`
	BitRate         int64    `json:"bit_rate"`
	FormatName      string   `json:"format_name"`
	Width           int      `json:"width"`
	Height          int      `json:"height"`
	CodecName       string   `json:"codec_name"`
	FrameRate       *float64 `json:"frame_rate"`
	AudioCodec      string   `json:"audio_codec,omitempty"`
	AudioChannels   int      `json:"audio_channels,omitempty"`
	AudioSampleRate int      `json:"audio_sample_rate,omitempty"`
}

func (m VideoMetadata) Value() (driver.Value, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (m *VideoMetadata) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return fmt.Errorf("unsupported metadata type %T", value)
	}
}

// ThumbnailSize labels one of the three generated thumbnails
type ThumbnailSize string

const (
	ThumbnailSmall  ThumbnailSize = "small"
	ThumbnailMedium ThumbnailSize = "medium"
	ThumbnailLarge  ThumbnailSize = "large"
)

// VideoThumbnail is one derived JPEG for a video. Deletes are hard.
type VideoThumbnail struct {
	ID        uint `gorm:"primarykey"`
	CreatedAt time.Time
	UpdatedAt time.Time
	VideoID   uint          `gorm:"index"`
	BlobKey   string        `gorm:"uniqueIndex"`
	Size      ThumbnailSize `gorm:"size:16"`
	Width     int
	Height    int
}

// ViewLog marks a counted view for deduplication. Rows are pruned, not kept
// as analytics.
type ViewLog struct {
	ID        uint   `gorm:"primarykey"`
	VideoID   uint   `gorm:"index:idx_view_logs_lookup,priority:1"`
	IPAddress string `gorm:"index:idx_view_logs_lookup,priority:2"`
	UserAgent string
	CreatedAt time.Time `gorm:"index:idx_view_logs_lookup,priority:3"`
}

// AutoMigrate creates or updates every table the service owns.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&User{}, &APIKey{}, &Video{}, &VideoThumbnail{}, &ViewLog{})
}
