package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/tbourn/go-market-backend/internal/config"
)

// MinIOStore keeps images in an S3-compatible bucket. Images are fitted in
// memory before upload.
type MinIOStore struct {
	client    *minio.Client
	bucket    string
	publicURL string
}

// NewMinIOStore builds the client. It performs no network calls; use
// EnsureBucket at startup.
func NewMinIOStore(cfg config.MinIOConfig) (*MinIOStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	base := strings.TrimRight(cfg.PublicURL, "/")
	if base == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		base = scheme + "://" + cfg.Endpoint
	}
	return &MinIOStore{client: client, bucket: cfg.Bucket, publicURL: base}, nil
}

// EnsureBucket creates the bucket when it does not exist yet.
func (m *MinIOStore) EnsureBucket(ctx context.Context) error {
	ok, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return fmt.Errorf("minio bucket check: %w", err)
	}
	if ok {
		return nil
	}
	if err := m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("minio make bucket: %w", err)
	}
	return nil
}

// Save fits the image and uploads it with PutObject.
func (m *MinIOStore) Save(ctx context.Context, listingID uint64, filename string, r io.Reader) (*Stored, error) {
	data, err := readUpload(r)
	if err != nil {
		return nil, err
	}
	fit, err := FitWithin(data, MaxDimension)
	if err != nil {
		return nil, err
	}

	name := objectName(listingID, fit.Ext)
	_, err = m.client.PutObject(ctx, m.bucket, name, bytes.NewReader(fit.Data), int64(len(fit.Data)),
		minio.PutObjectOptions{
			ContentType: fit.ContentType,
			UserMetadata: map[string]string{
				"original-filename": filename,
				"listing-id":        strconv.FormatUint(listingID, 10),
				"uploaded-at":       time.Now().UTC().Format(time.RFC3339),
			},
		})
	if err != nil {
		return nil, fmt.Errorf("minio upload: %w", err)
	}
	return &Stored{Path: name, ContentType: fit.ContentType, Width: fit.Width, Height: fit.Height}, nil
}

// Delete removes the object.
func (m *MinIOStore) Delete(ctx context.Context, path string) error {
	if err := m.client.RemoveObject(ctx, m.bucket, path, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("minio delete: %w", err)
	}
	return nil
}

// URL returns <public base>/<bucket>/<path>.
func (m *MinIOStore) URL(path string) string {
	if path == "" {
		return ""
	}
	return fmt.Sprintf("%s/%s/%s", m.publicURL, m.bucket, strings.TrimLeft(path, "/"))
}
