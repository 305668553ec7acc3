package handlers

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"vidpipe/internal/models"
)

var ErrAPIKeyExists = errors.New("API key with this combination already exists")

func sanitizeKeyPart(s string) string {
	s = strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), " ", "-"))
	// underscores separate the key parts
	return strings.ReplaceAll(s, "_", "-")
}

// IssueAPIKey creates an active key for the user and returns the full key.
// The full key is only available here; the database keeps a bcrypt hash.
func IssueAPIKey(db *gorm.DB, user models.User, appName, environment string) (string, *models.APIKey, error) {
	username := sanitizeKeyPart(user.Username)
	appName = sanitizeKeyPart(appName)
	environment = sanitizeKeyPart(environment)
	if username == "" || appName == "" || environment == "" {
		return "", nil, fmt.Errorf("username, app name and environment are required")
	}

	keyPrefix := username + "_" + appName + "_" + environment

	var existingKey models.APIKey
	if err := db.Unscoped().Where("key_prefix = ?", keyPrefix).First(&existingKey).Error; err == nil {
		return "", nil, ErrAPIKeyExists
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil, fmt.Errorf("database error checking existing keys: %w", err)
	}

	fullKey, keyHash, err := GenerateAPIKey(username, appName, environment)
	if err != nil {
		return "", nil, fmt.Errorf("failed to generate API key: %w", err)
	}

	apiKey := models.APIKey{
		UserID:      user.ID,
		AppName:     appName,
		Environment: environment,
		KeyPrefix:   keyPrefix,
		KeyHash:     keyHash,
		IsActive:    true,
	}
	if err := db.Create(&apiKey).Error; err != nil {
		return "", nil, fmt.Errorf("failed to create API key: %w", err)
	}
	return fullKey, &apiKey, nil
}

// RevokeAPIKey deactivates a key by prefix.
func RevokeAPIKey(db *gorm.DB, keyPrefix string) error {
	res := db.Model(&models.APIKey{}).Where("key_prefix = ?", keyPrefix).Update("is_active", false)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
