package videos

import (
	"vidpipe/internal/models"
)

const timeLayout = "2006-01-02 15:04:05"

type UserObject struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
}

type ThumbnailObject struct {
	URL    string               `json:"thumbnail_url"`
	Width  int                  `json:"width"`
	Height int                  `json:"height"`
	Size   models.ThumbnailSize `json:"size"`
}

// APIObject is the public representation of a video
type APIObject struct {
	VideoCode   string                `json:"video_code"`
	URL         *string               `json:"url"`
	Title       string                `json:"title"`
	Description string                `json:"description"`
	Status      models.VideoStatus    `json:"status"`
	Metadata    *models.VideoMetadata `json:"metadata"`
	Views       int64                 `json:"views"`
	User        UserObject            `json:"user"`
	Thumbnails  []ThumbnailObject     `json:"thumbnails"`
	CreatedAt   string                `json:"created_at"`
	UpdatedAt   string                `json:"updated_at"`
}

// Present builds the API object with short-lived signed URLs. The video URL
// is only set once the video is processed.
func (s *Service) Present(v *models.Video) (APIObject, error) {
	obj := APIObject{
		VideoCode:   v.VideoCode,
		Title:       v.Title,
		Description: v.Description,
		Status:      v.Status,
		Metadata:    v.Metadata,
		Views:       v.ViewCount,
		User:        UserObject{ID: v.User.ID, Username: v.User.Username},
		Thumbnails:  make([]ThumbnailObject, 0, len(v.Thumbnails)),
		CreatedAt:   v.CreatedAt.UTC().Format(timeLayout),
		UpdatedAt:   v.UpdatedAt.UTC().Format(timeLayout),
	}

	if v.Status == models.StatusProcessed && v.ProcessedBlobKey != nil {
		url, err := s.storage.SignedURL(*v.ProcessedBlobKey, s.urlTTL)
		if err != nil {
			return APIObject{}, err
		}
		obj.URL = &url
	}

	for _, t := range v.Thumbnails {
		url, err := s.storage.SignedURL(t.BlobKey, s.urlTTL)
		if err != nil {
			return APIObject{}, err
		}
		obj.Thumbnails = append(obj.Thumbnails, ThumbnailObject{
			URL:    url,
			Width:  t.Width,
			Height: t.Height,
			Size:   t.Size,
		})
	}
	return obj, nil
}

// PresentAll presents every video of a page.
func (s *Service) PresentAll(videos []models.Video) ([]APIObject, error) {
	out := make([]APIObject, 0, len(videos))
	for i := range videos {
		obj, err := s.Present(&videos[i])
		if err != nil {
			return nil, err
		}
		out = append(out, obj)
	}
	return out, nil
}
