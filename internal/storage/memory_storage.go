package storage

import (
	"bytes"
	"fmt"
	"io"
	"net/url"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"
)

// MemoryStorage keeps blobs in a map. Used by tests and the memory backend.
type MemoryStorage struct {
	data map[string][]byte
	mu   sync.RWMutex
}

// NewMemoryStorage creates a new in-memory storage instance
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		data: make(map[string][]byte),
	}
}

// Writer returns a writer for the given key
func (ms *MemoryStorage) Writer(key string) (io.WriteCloser, error) {
	return &memoryWriter{
		storage: ms,
		key:     key,
		buffer:  &bytes.Buffer{},
	}, nil
}

// Reader returns a reader for the given key
func (ms *MemoryStorage) Reader(key string) (io.ReadCloser, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	data, exists := ms.data[key]
	if !exists {
		return nil, fmt.Errorf("key not found: %s: %w", key, os.ErrNotExist)
	}

	return io.NopCloser(bytes.NewReader(data)), nil
}

// Delete removes the data for the given key
func (ms *MemoryStorage) Delete(key string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	delete(ms.data, key)
	return nil
}

// Exists checks if a key exists in storage
func (ms *MemoryStorage) Exists(key string) (bool, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	_, exists := ms.data[key]
	return exists, nil
}

// SignedURL returns a memory:// locator; there is nothing to serve it.
func (ms *MemoryStorage) SignedURL(key string, ttl time.Duration) (string, error) {
	q := url.Values{}
	q.Set("expires", strconv.FormatInt(time.Now().Add(ttl).Unix(), 10))
	return "memory://" + key + "?" + q.Encode(), nil
}

// Keys lists the stored keys in order
func (ms *MemoryStorage) Keys() []string {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	keys := make([]string, 0, len(ms.data))
	for k := range ms.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// memoryWriter implements io.WriteCloser for in-memory storage
type memoryWriter struct {
	storage *MemoryStorage
	key     string
	buffer  *bytes.Buffer
	closed  bool
}

// Write writes data to the buffer
func (mw *memoryWriter) Write(p []byte) (n int, err error) {
	if mw.closed {
		return 0, fmt.Errorf("writer is closed")
	}
	return mw.buffer.Write(p)
}

// Close finalizes the write operation and stores the data
func (mw *memoryWriter) Close() error {
	if mw.closed {
		return nil
	}

	mw.storage.mu.Lock()
	defer mw.storage.mu.Unlock()

	mw.storage.data[mw.key] = mw.buffer.Bytes()
	mw.closed = true

	return nil
}
