package handlers

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"vidpipe/internal/storage"
)

type Routes struct {
	DB     *gorm.DB
	Videos *VideoHandlers
	// Blobs is set when local storage serves signed URLs.
	Blobs *storage.FSStorage
}

// Register mounts the API on r.
func (rt Routes) Register(r *gin.Engine) {
	r.GET("/healthz", HealthCheckHandler(rt.DB))
	r.GET("/status", ProcessingStatusHandler(rt.DB))

	if rt.Blobs != nil {
		r.GET("/blobs/*key", BlobGet(rt.Blobs))
		r.HEAD("/blobs/*key", BlobGet(rt.Blobs))
	}

	api := r.Group("/api/v1")
	api.GET("/videos", rt.Videos.List)
	api.GET("/videos/:code", rt.Videos.Fetch)
	api.POST("/videos/:code/views", rt.Videos.RecordView)

	authed := api.Group("", RequireAPIKey(rt.DB))
	authed.GET("/me/videos", rt.Videos.ListMine)
	authed.POST("/videos", rt.Videos.Upload)
	authed.PUT("/videos/:code", rt.Videos.Update)
	authed.POST("/videos/:code/reprocess", rt.Videos.Reprocess)
	authed.DELETE("/videos/:code", rt.Videos.Delete)
}
