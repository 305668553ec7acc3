package handlers

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"vidpipe/internal/models"
)

const callerKey = "caller"

// RequireAPIKey authenticates the bearer token and stores the caller in the context.
func RequireAPIKey(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			return
		}

		if !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization format. Use 'Bearer <api_key>'"})
			return
		}

		apiKey := strings.TrimPrefix(authHeader, "Bearer ")
		parts := strings.Split(apiKey, "_")
		if len(apiKey) < 10 || len(parts) < 4 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid API key format"})
			return
		}
		keyPrefix := strings.Join(parts[:3], "_") // username_appname_environment

		var dbAPIKey models.APIKey
		if err := db.Where("key_prefix = ? AND is_active = ?", keyPrefix, true).First(&dbAPIKey).Error; err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid API key"})
			return
		}

		if err := bcrypt.CompareHashAndPassword([]byte(dbAPIKey.KeyHash), []byte(apiKey)); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid API key"})
			return
		}

		now := time.Now()
		db.Model(&dbAPIKey).Update("last_used_at", &now)

		c.Set(callerKey, models.Caller{UserID: dbAPIKey.UserID})
		c.Next()
	}
}

// CallerFrom returns the authenticated caller set by RequireAPIKey.
func CallerFrom(c *gin.Context) (models.Caller, bool) {
	v, ok := c.Get(callerKey)
	if !ok {
		return models.Caller{}, false
	}
	caller, ok := v.(models.Caller)
	return caller, ok
}

// GenerateAPIKey creates a new API key with the specified parameters
func GenerateAPIKey(username, appName, environment string) (string, string, error) {
	randomBytes := make([]byte, 16)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", "", err
	}
	randomSuffix := hex.EncodeToString(randomBytes)

	keyPrefix := fmt.Sprintf("%s_%s_%s", username, appName, environment)
	fullKey := fmt.Sprintf("%s_%s", keyPrefix, randomSuffix)

	keyHash, err := bcrypt.GenerateFromPassword([]byte(fullKey), bcrypt.DefaultCost)
	if err != nil {
		return "", "", err
	}

	return fullKey, string(keyHash), nil
}
