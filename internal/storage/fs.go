package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInvalidSignature = errors.New("invalid signature")
	ErrURLExpired       = errors.New("url expired")
)

// FSStorage keeps blobs under a base directory and serves them through
// HMAC-signed URLs handled by the /blobs route.
type FSStorage struct {
	baseDir    string
	baseURL    string
	signingKey []byte
}

func NewFSStorage(baseDir, baseURL string, signingKey []byte) *FSStorage {
	return &FSStorage{
		baseDir:    baseDir,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		signingKey: signingKey,
	}
}

// path maps a key inside baseDir. Keys cannot climb out of it.
func (s *FSStorage) path(key string) string {
	return filepath.Join(s.baseDir, filepath.Clean("/"+key))
}

func (s *FSStorage) Writer(key string) (io.WriteCloser, error) {
	path := s.path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	return os.Create(path)
}

func (s *FSStorage) Reader(key string) (io.ReadCloser, error) {
	return os.Open(s.path(key))
}

func (s *FSStorage) Exists(key string) (bool, error) {
	_, err := os.Stat(s.path(key))
	if os.IsNotExist(err) {
		return false, nil
	}
	return err == nil, err
}

func (s *FSStorage) Delete(key string) error {
	err := os.Remove(s.path(key))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// Open returns the file behind key for range-aware serving.
func (s *FSStorage) Open(key string) (*os.File, error) {
	return os.Open(s.path(key))
}

func (s *FSStorage) SignedURL(key string, ttl time.Duration) (string, error) {
	expires := time.Now().Add(ttl).Unix()
	q := url.Values{}
	q.Set("expires", strconv.FormatInt(expires, 10))
	q.Set("signature", s.sign(key, expires))
	return fmt.Sprintf("%s/blobs/%s?%s", s.baseURL, key, q.Encode()), nil
}

// VerifySignature checks a URL produced by SignedURL.
func (s *FSStorage) VerifySignature(key, expires, signature string, now time.Time) error {
	exp, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		return ErrInvalidSignature
	}
	if !hmac.Equal([]byte(s.sign(key, exp)), []byte(signature)) {
		return ErrInvalidSignature
	}
	if now.Unix() > exp {
		return ErrURLExpired
	}
	return nil
}

func (s *FSStorage) sign(key string, expires int64) string {
	mac := hmac.New(sha256.New, s.signingKey)
	fmt.Fprintf(mac, "%s\n%d", key, expires)
	return hex.EncodeToString(mac.Sum(nil))
}
