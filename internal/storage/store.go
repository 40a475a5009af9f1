// Package storage persists listing image bytes outside the database. Every
// backend fits images into a MaxDimension box on save, so callers only ever
// see stored references, dimensions and public URLs.
package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/tbourn/go-market-backend/internal/config"
)

// maxReadBytes caps how much of an upload is buffered for resizing.
const maxReadBytes = 32 << 20

// Stored describes a persisted image.
type Stored struct {
	Path        string // backend-relative reference, stored on ListingImage.Path
	ContentType string
	Width       int
	Height      int
}

// Store is the binary storage used by the listing write workflow.
type Store interface {
	// Save persists the image read from r under a fresh name scoped to
	// listingID and returns its reference.
	Save(ctx context.Context, listingID uint64, filename string, r io.Reader) (*Stored, error)
	// Delete removes a previously saved image. Missing objects are not an error.
	Delete(ctx context.Context, path string) error
	// URL returns the public URL of path.
	URL(path string) string
}

// New builds the Store selected by cfg.Driver.
func New(cfg config.StorageConfig) (Store, error) {
	switch cfg.Driver {
	case "", "local":
		return NewLocalStore(cfg.MediaRoot, cfg.MediaURL)
	case "minio":
		return NewMinIOStore(cfg.MinIO)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}
}

func readUpload(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxReadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if len(data) > maxReadBytes {
		return nil, fmt.Errorf("upload exceeds %d bytes", maxReadBytes)
	}
	return data, nil
}
