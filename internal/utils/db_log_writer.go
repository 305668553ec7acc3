package utils

import (
	"sync"

	"gorm.io/gorm"

	"vidpipe/internal/models"
)

// MaxProcessingLogBytes caps the log kept on a video row; older output is dropped.
const MaxProcessingLogBytes = 64 << 10

// DBLogWriter mirrors a video's processing log into its row as it is written.
// Only the last limit bytes are kept.
type DBLogWriter struct {
	db      *gorm.DB
	videoID uint
	limit   int
	buffer  []byte
	mutex   sync.Mutex
}

func NewDBLogWriter(db *gorm.DB, videoID uint) *DBLogWriter {
	return &DBLogWriter{
		db:      db,
		videoID: videoID,
		limit:   MaxProcessingLogBytes,
	}
}

func (w *DBLogWriter) Write(p []byte) (n int, err error) {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	w.buffer = append(w.buffer, p...)
	if over := len(w.buffer) - w.limit; over > 0 {
		w.buffer = append(w.buffer[:0], w.buffer[over:]...)
	}

	// Best effort: a log write must never fail the job.
	w.db.Model(&models.Video{}).Where("id = ?", w.videoID).UpdateColumn("processing_log", string(w.buffer))

	return len(p), nil
}

func (w *DBLogWriter) String() string {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return string(w.buffer)
}
