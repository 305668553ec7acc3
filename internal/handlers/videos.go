package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"vidpipe/internal/models"
	"vidpipe/internal/utils"
	"vidpipe/internal/videos"
	"vidpipe/internal/views"
)

type VideoHandlers struct {
	videos         *videos.Service
	views          *views.Counter
	maxUploadBytes int64
}

func NewVideoHandlers(svc *videos.Service, counter *views.Counter, maxUploadBytes int64) *VideoHandlers {
	return &VideoHandlers{videos: svc, views: counter, maxUploadBytes: maxUploadBytes}
}

// Upload accepts the multipart upload form and queues the video for processing.
func (h *VideoHandlers) Upload(c *gin.Context) {
	caller, ok := CallerFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	form, files, ok := h.parseForm(c)
	if !ok {
		return
	}
	defer files.close()

	in := videos.UploadInput{
		Title:             formValue(form, "title"),
		Description:       formValue(form, "description"),
		WatermarkType:     formValue(form, "watermark_type"),
		WatermarkText:     formValue(form, "watermark_text"),
		WatermarkPosition: formValue(form, "watermark_position"),
	}
	var err error
	if in.Video, err = files.open("video_file"); err != nil {
		respondError(c, err)
		return
	}
	if in.WatermarkImage, err = files.open("watermark_image"); err != nil {
		respondError(c, err)
		return
	}
	if in.Thumbnail, err = files.open("thumbnail_image"); err != nil {
		respondError(c, err)
		return
	}

	video, err := h.videos.Upload(c.Request.Context(), caller, in)
	if err != nil {
		respondError(c, err)
		return
	}

	// reload for the owner
	loaded, err := h.videos.Get(c.Request.Context(), video.VideoCode)
	if err != nil {
		respondError(c, err)
		return
	}
	obj, err := h.videos.Present(loaded)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success":    true,
		"message":    "Video uploaded successfully and is being processed.",
		"video_code": video.VideoCode,
		"url":        utils.VideoURL(c, video.VideoCode),
		"data":       obj,
	})
}

// Fetch returns one video by code.
func (h *VideoHandlers) Fetch(c *gin.Context) {
	video, err := h.videos.Get(c.Request.Context(), c.Param("code"))
	if err != nil {
		var notFound *utils.NotFoundError
		if errors.As(err, &notFound) {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": notFound.Error()})
			return
		}
		respondError(c, err)
		return
	}
	h.respondVideo(c, http.StatusOK, video)
}

// List returns a page of the public feed. q searches processed videos.
func (h *VideoHandlers) List(c *gin.Context) {
	h.list(c, videos.FeedQuery{Search: c.Query("q")})
}

// ListMine returns the caller's own videos in every state.
func (h *VideoHandlers) ListMine(c *gin.Context) {
	caller, ok := CallerFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}
	h.list(c, videos.FeedQuery{UserID: caller.UserID, Search: c.Query("q")})
}

func (h *VideoHandlers) list(c *gin.Context, q videos.FeedQuery) {
	q.Page, _ = strconv.Atoi(c.Query("page"))
	q.PerPage, _ = strconv.Atoi(c.Query("per_page"))

	page, err := h.videos.Feed(c.Request.Context(), q)
	if err != nil {
		respondError(c, err)
		return
	}
	objs, err := h.videos.PresentAll(page.Videos)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"data":      objs,
		"paginator": page.Paginator,
	})
}

// Update edits title and description and optionally replaces the thumbnails.
func (h *VideoHandlers) Update(c *gin.Context) {
	caller, ok := CallerFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	form, files, ok := h.parseForm(c)
	if !ok {
		return
	}
	defer files.close()

	in := videos.UpdateInput{
		Title:       formValue(form, "title"),
		Description: formValue(form, "description"),
	}
	var err error
	if in.Thumbnail, err = files.open("thumbnail_image"); err != nil {
		respondError(c, err)
		return
	}

	video, err := h.videos.Update(c.Request.Context(), caller, c.Param("code"), in)
	if err != nil {
		respondError(c, err)
		return
	}
	h.respondVideo(c, http.StatusOK, video)
}

// Reprocess runs the processing job again for a processed or failed video.
func (h *VideoHandlers) Reprocess(c *gin.Context) {
	caller, ok := CallerFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}
	video, err := h.videos.Reprocess(c.Request.Context(), caller, c.Param("code"))
	if err != nil {
		respondError(c, err)
		return
	}
	h.respondVideo(c, http.StatusAccepted, video)
}

func (h *VideoHandlers) Delete(c *gin.Context) {
	caller, ok := CallerFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}
	if err := h.videos.Delete(c.Request.Context(), caller, c.Param("code")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// RecordView counts a view from the client IP, at most once per window.
func (h *VideoHandlers) RecordView(c *gin.Context) {
	res, err := h.views.Record(c.Request.Context(), c.Param("code"), views.Viewer{
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	message := "View count incremented successfully."
	if !res.Incremented {
		message = fmt.Sprintf("View already counted within the last %s.", describeWindow(h.views.Window()))
	}
	c.JSON(http.StatusOK, gin.H{
		"success":     res.Incremented,
		"message":     message,
		"views_count": res.ViewCount,
	})
}

func (h *VideoHandlers) respondVideo(c *gin.Context, status int, video *models.Video) {
	obj, err := h.videos.Present(video)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(status, gin.H{"success": true, "data": obj})
}

func describeWindow(d time.Duration) string {
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		return plural(int64(d/time.Hour), "hour")
	case d >= time.Minute && d%time.Minute == 0:
		return plural(int64(d/time.Minute), "minute")
	default:
		return d.String()
	}
}

func plural(n int64, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

// parseForm reads the multipart body under the upload limit. It writes the
// error response itself and reports ok=false on failure.
func (h *VideoHandlers) parseForm(c *gin.Context) (*multipart.Form, *openFiles, bool) {
	if h.maxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	}
	form, err := c.MultipartForm()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": fmt.Sprintf("Upload exceeds %d bytes", tooLarge.Limit)})
			return nil, nil, false
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "Expected a multipart form"})
		return nil, nil, false
	}
	return form, &openFiles{form: form}, true
}

func formValue(form *multipart.Form, field string) string {
	if v := form.Value[field]; len(v) > 0 {
		return v[0]
	}
	return ""
}

// openFiles tracks the form files opened for a request.
type openFiles struct {
	form    *multipart.Form
	closers []io.Closer
}

// open returns nil when the field has no file.
func (o *openFiles) open(field string) (*videos.File, error) {
	headers := o.form.File[field]
	if len(headers) == 0 {
		return nil, nil
	}
	fh := headers[0]
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open form file %s: %w", field, err)
	}
	o.closers = append(o.closers, f)
	return &videos.File{Name: fh.Filename, Size: fh.Size, Content: f}, nil
}

func (o *openFiles) close() {
	for _, c := range o.closers {
		c.Close()
	}
	o.form.RemoveAll()
}
