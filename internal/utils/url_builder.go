package utils

import (
	"github.com/gin-gonic/gin"
)

// BuildFullURL constructs a full URL from the request context and a path
func BuildFullURL(c *gin.Context, path string) string {
	scheme := "https"
	if c.Request.TLS == nil {
		if proto := c.GetHeader("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		} else {
			scheme = "http"
		}
	}
	return scheme + "://" + c.Request.Host + "/" + path
}

// VideoURL is the API location clients poll for a video's status
func VideoURL(c *gin.Context, videoCode string) string {
	return BuildFullURL(c, "api/v1/videos/"+videoCode)
}
