package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"vidpipe/internal/models"
)

// HealthCheckHandler checks the health of the application.
func HealthCheckHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": "database connection failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	}
}

// ProcessingStatusHandler reports how many videos are in each state.
func ProcessingStatusHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var rows []struct {
			Status models.VideoStatus
			Count  int64
		}
		err := db.WithContext(c.Request.Context()).Model(&models.Video{}).
			Select("status, COUNT(*) AS count").
			Group("status").
			Scan(&rows).Error
		if err != nil {
			respondError(c, err)
			return
		}

		counts := gin.H{
			string(models.StatusProcessing): int64(0),
			string(models.StatusProcessed):  int64(0),
			string(models.StatusFailed):     int64(0),
		}
		for _, r := range rows {
			counts[string(r.Status)] = r.Count
		}

		status := "healthy"
		if counts[string(models.StatusFailed)].(int64) > 0 {
			status = "degraded"
		}
		c.JSON(http.StatusOK, gin.H{"status": status, "videos": counts})
	}
}
