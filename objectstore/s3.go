// Package objectstore uploads images to an S3 bucket and hands back a public
// URL for them.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"newsblog/config"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

var (
	ValidationError = errors.New("invalid upload")
	UploadError     = errors.New("upload failed")
)

var allowedExtensions = map[string]bool{
	"png":  true,
	"jpg":  true,
	"jpeg": true,
	"gif":  true,
	"webp": true,
}

// Uploader stores a single object and returns the URL it can be fetched from.
type Uploader interface {
	Upload(ctx context.Context, filename, contentType string, size int64, body io.Reader) (string, error)
}

// Extension returns the lowercased extension of filename without the dot.
func Extension(filename string) string {
	return strings.ToLower(strings.TrimPrefix(path.Ext(filename), "."))
}

// ValidateImage rejects files whose extension is not an allowed image type or
// whose size exceeds maxSize.
func ValidateImage(filename string, size, maxSize int64) error {
	if strings.TrimSpace(filename) == "" {
		return fmt.Errorf("no file selected: %w", ValidationError)
	}
	if !allowedExtensions[Extension(filename)] {
		return fmt.Errorf("file type of %q is not allowed: %w", filename, ValidationError)
	}
	if size > maxSize {
		return fmt.Errorf("file is %d bytes, limit is %d: %w", size, maxSize, ValidationError)
	}
	return nil
}

// ObjectKey generates a collision free key that keeps the original extension.
func ObjectKey(filename string, now time.Time) string {
	return fmt.Sprintf("images/%s_%s.%s", now.UTC().Format("20060102_150405"), uuid.New().String(), Extension(filename))
}

type S3 struct {
	bucket    string
	region    string
	publicUrl string
	maxSize   int64
	uploader  *s3manager.Uploader
}

func NewS3(cfg config.S3Config, maxSize int64) (*S3, error) {
	// A failed upload is reported to the caller, never retried.
	awsConfig := &aws.Config{
		Region:     aws.String(cfg.Region),
		MaxRetries: aws.Int(0),
	}
	if cfg.AccessKeyId != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(cfg.AccessKeyId, cfg.SecretAccessKey, "")
	}
	if cfg.Endpoint != "" {
		awsConfig.Endpoint = aws.String(cfg.Endpoint)
		awsConfig.S3ForcePathStyle = aws.Bool(true)
	}
	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("create aws session: %w", err)
	}
	return &S3{
		bucket:    cfg.Bucket,
		region:    cfg.Region,
		publicUrl: cfg.PublicUrl,
		maxSize:   maxSize,
		uploader:  s3manager.NewUploader(sess),
	}, nil
}

func (s *S3) Upload(ctx context.Context, filename, contentType string, size int64, body io.Reader) (string, error) {
	if err := ValidateImage(filename, size, s.maxSize); err != nil {
		return "", err
	}
	if contentType == "" || contentType == "application/octet-stream" {
		if byExt := mime.TypeByExtension("." + Extension(filename)); byExt != "" {
			contentType = byExt
		}
	}
	key := ObjectKey(filename, time.Now())
	logger := log.WithFields(log.Fields{
		"op":     "upload",
		"bucket": s.bucket,
		"key":    key,
		"size":   size,
	})
	_, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		logger.WithField("err", err).Error("Upload failed")
		return "", fmt.Errorf("%s: %v: %w", key, err, UploadError)
	}
	logger.Debug("Success")
	return s.URL(key), nil
}

// URL returns the public address of key.
func (s *S3) URL(key string) string {
	if s.publicUrl != "" {
		return s.publicUrl + "/" + key
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key)
}
