package utils

import (
	"crypto/rand"
	"math/big"
	"strings"

	"gorm.io/gorm"

	"vidpipe/internal/models"
)

// VideoCodeLength is the length of the public video token
const VideoCodeLength = 11

const codeAlphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// RandomCode returns n characters drawn from a 62-symbol alphabet
func RandomCode(n int) string {
	var sb strings.Builder
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := 0; i < n; i++ {
		idx, _ := rand.Int(rand.Reader, max)
		sb.WriteByte(codeAlphabet[idx.Int64()])
	}
	return sb.String()
}

// GenerateVideoCode returns a video code not yet used by any row, deleted ones included
func GenerateVideoCode(db *gorm.DB) (string, error) {
	for {
		code := RandomCode(VideoCodeLength)
		var count int64
		if err := db.Unscoped().Model(&models.Video{}).Where("video_code = ?", code).Count(&count).Error; err != nil {
			return "", err
		}
		if count == 0 {
			return code, nil
		}
	}
}
