package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Config points the blob store at a bucket on AWS or an S3-compatible
// service such as MinIO.
type S3Config struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	Prefix          string
	ForcePathStyle  bool
	// uploads are spooled here before PutObject
	TempDir string
}

// S3Storage keeps originals, renditions, thumbnails and watermark images
// in one bucket. Playback and download URLs are presigned GETs.
type S3Storage struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
	prefix  string
	tempDir string
}

func NewS3Storage(ctx context.Context, cfg S3Config) (*S3Storage, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})
	return newS3Storage(client, cfg.Bucket, cfg.Prefix, cfg.TempDir), nil
}

func newS3Storage(client *s3.Client, bucket, prefix, tempDir string) *S3Storage {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &S3Storage{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  bucket,
		prefix:  prefix,
		tempDir: tempDir,
	}
}

func (s *S3Storage) buildKey(key string) string {
	return s.prefix + key
}

func (s *S3Storage) object(key string) (*string, *string) {
	return aws.String(s.bucket), aws.String(s.buildKey(key))
}

var contentTypes = map[string]string{
	".mp4":  "video/mp4",
	".m4v":  "video/mp4",
	".mov":  "video/quicktime",
	".avi":  "video/x-msvideo",
	".mkv":  "video/x-matroska",
	".webm": "video/webm",
	".mpeg": "video/mpeg",
	".mpg":  "video/mpeg",
	".flv":  "video/x-flv",
	".3gp":  "video/3gpp",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// contentType picks the Content-Type stored with an object so presigned
// URLs play inline in browsers.
func contentType(key string) string {
	if ct, ok := contentTypes[strings.ToLower(path.Ext(key))]; ok {
		return ct
	}
	return "application/octet-stream"
}

// Writer spools to a temp file and uploads on Close. PutObject needs a
// seekable body to sign the payload.
func (s *S3Storage) Writer(key string) (io.WriteCloser, error) {
	f, err := os.CreateTemp(s.tempDir, "vidpipe-s3-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create spool file: %w", err)
	}
	return &s3Writer{storage: s, key: key, file: f}, nil
}

func (s *S3Storage) Reader(key string) (io.ReadCloser, error) {
	bucket, k := s.object(key)
	out, err := s.client.GetObject(context.Background(), &s3.GetObjectInput{Bucket: bucket, Key: k})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, fmt.Errorf("key not found: %s: %w", key, os.ErrNotExist)
		}
		return nil, fmt.Errorf("failed to get object from S3: %w", err)
	}
	return out.Body, nil
}

func (s *S3Storage) Exists(key string) (bool, error) {
	bucket, k := s.object(key)
	_, err := s.client.HeadObject(context.Background(), &s3.HeadObjectInput{Bucket: bucket, Key: k})
	if err == nil {
		return true, nil
	}
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return false, nil
	}
	return false, fmt.Errorf("failed to check object in S3: %w", err)
}

// Delete removes an object. S3 treats a missing key as success.
func (s *S3Storage) Delete(key string) error {
	bucket, k := s.object(key)
	if _, err := s.client.DeleteObject(context.Background(), &s3.DeleteObjectInput{Bucket: bucket, Key: k}); err != nil {
		return fmt.Errorf("failed to delete object from S3: %w", err)
	}
	return nil
}

func (s *S3Storage) SignedURL(key string, ttl time.Duration) (string, error) {
	bucket, k := s.object(key)
	req, err := s.presign.PresignGetObject(context.Background(), &s3.GetObjectInput{Bucket: bucket, Key: k},
		s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("failed to presign object: %w", err)
	}
	return req.URL, nil
}

type s3Writer struct {
	storage *S3Storage
	key     string
	file    *os.File

	mu     sync.Mutex
	closed bool
}

func (w *s3Writer) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return 0, fmt.Errorf("writer is closed")
	}
	return w.file.Write(p)
}

func (w *s3Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	defer os.Remove(w.file.Name())
	defer w.file.Close()

	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to rewind spool file: %w", err)
	}
	bucket, k := w.storage.object(w.key)
	_, err := w.storage.client.PutObject(context.Background(), &s3.PutObjectInput{
		Bucket:      bucket,
		Key:         k,
		Body:        w.file,
		ContentType: aws.String(contentType(w.key)),
	})
	if err != nil {
		return fmt.Errorf("failed to upload object to S3: %w", err)
	}
	return nil
}
