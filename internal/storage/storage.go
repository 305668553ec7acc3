package storage

import (
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"vidpipe/internal/utils"
)

// Storage is the blob store every backend implements
type Storage interface {
	Writer(key string) (io.WriteCloser, error)
	Reader(key string) (io.ReadCloser, error)
	Exists(key string) (bool, error)
	Delete(key string) error
	SignedURL(key string, ttl time.Duration) (string, error)
}

// Key prefixes for the blob namespaces
const (
	PrefixOriginal   = "videos/original"
	PrefixProcessed  = "videos/processed"
	PrefixThumbnails = "thumbnails"
	PrefixWatermarks = "watermarks"
)

// NewKey returns a fresh key of the form prefix/<uuid>_<unix><suffix>
func NewKey(prefix, suffix string) string {
	return fmt.Sprintf("%s/%s_%d%s", prefix, uuid.NewString(), time.Now().Unix(), suffix)
}

// Put streams r into key and returns the number of bytes written.
func Put(s Storage, key string, r io.Reader) (int64, error) {
	w, err := s.Writer(key)
	if err != nil {
		return 0, &utils.StorageError{Op: "put", Key: key, Err: err}
	}
	n, err := io.Copy(w, r)
	if err != nil {
		w.Close()
		s.Delete(key)
		return n, &utils.StorageError{Op: "put", Key: key, Err: err}
	}
	if err := w.Close(); err != nil {
		return n, &utils.StorageError{Op: "put", Key: key, Err: err}
	}
	return n, nil
}

// Get opens key for reading.
func Get(s Storage, key string) (io.ReadCloser, error) {
	r, err := s.Reader(key)
	if err != nil {
		return nil, &utils.StorageError{Op: "get", Key: key, Err: err}
	}
	return r, nil
}

// DeleteIfExists removes key when present. Missing keys are not an error.
func DeleteIfExists(s Storage, key string) error {
	exists, err := s.Exists(key)
	if err != nil {
		return &utils.StorageError{Op: "exists", Key: key, Err: err}
	}
	if !exists {
		return nil
	}
	if err := s.Delete(key); err != nil {
		return &utils.StorageError{Op: "delete", Key: key, Err: err}
	}
	return nil
}
