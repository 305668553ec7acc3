package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"vidpipe/internal/processing"
	"vidpipe/internal/utils"
)

// respondError maps service errors onto HTTP responses.
func respondError(c *gin.Context, err error) {
	var validationErr *utils.ValidationError
	var notFound *utils.NotFoundError
	var storageErr *utils.StorageError

	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "errors": validationErr.Fields})
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"error": notFound.Error()})
	case errors.Is(err, utils.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "You do not own this video"})
	case errors.Is(err, processing.ErrNotTerminal):
		c.JSON(http.StatusConflict, gin.H{"error": "Video is still processing"})
	case errors.As(err, &storageErr):
		slog.Error("Storage failure", "op", storageErr.Op, "key", storageErr.Key, "error", storageErr.Err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Storage unavailable"})
	default:
		slog.Error("Request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
