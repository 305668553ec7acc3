package handlers

import (
	"errors"
	"net/http"
	"os"
	"path"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"vidpipe/internal/storage"
)

// BlobGet serves a file from local storage when the signed URL checks out.
func BlobGet(store *storage.FSStorage) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := strings.TrimPrefix(c.Param("key"), "/")
		if key == "" {
			c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
			return
		}

		err := store.VerifySignature(key, c.Query("expires"), c.Query("signature"), time.Now())
		if errors.Is(err, storage.ErrURLExpired) {
			c.JSON(http.StatusForbidden, gin.H{"error": "URL expired"})
			return
		}
		if err != nil {
			c.JSON(http.StatusForbidden, gin.H{"error": "Invalid signature"})
			return
		}

		f, err := store.Open(key)
		if errors.Is(err, os.ErrNotExist) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
			return
		}
		if err != nil {
			respondError(c, err)
			return
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			respondError(c, err)
			return
		}

		c.Header("Cache-Control", "private, no-store")
		http.ServeContent(c.Writer, c.Request, path.Base(key), info.ModTime(), f)
	}
}
