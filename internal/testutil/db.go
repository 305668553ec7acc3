// Package testutil opens throwaway databases for package tests.
package testutil

import (
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"

	"vidpipe/internal/models"
)

// NewDB returns a migrated in-memory SQLite database. A single connection
// keeps every query on the same memory database.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.New(sqlite.Config{
		DriverName: "sqlite",
		DSN:        "file::memory:",
	}), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatal(err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := models.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// CreateUser inserts a user with the given name.
func CreateUser(t *testing.T, db *gorm.DB, username string) models.User {
	t.Helper()
	u := models.User{Username: username}
	if err := db.Create(&u).Error; err != nil {
		t.Fatal(err)
	}
	return u
}

// CreateVideo inserts v, filling the fields a row needs.
func CreateVideo(t *testing.T, db *gorm.DB, v models.Video) models.Video {
	t.Helper()
	if v.VideoCode == "" {
		v.VideoCode = "vid" + v.Title
	}
	if v.OriginalBlobKey == "" {
		v.OriginalBlobKey = "videos/original/" + v.VideoCode + ".mp4"
	}
	if v.Status == "" {
		v.Status = models.StatusProcessing
	}
	if v.WatermarkType == "" {
		v.WatermarkType = models.WatermarkTypeNone
	}
	if err := db.Create(&v).Error; err != nil {
		t.Fatal(err)
	}
	return v
}
