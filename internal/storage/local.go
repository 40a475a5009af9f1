package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// imageDir is the top-level folder of listing images inside the media root.
const imageDir = "listing_images"

// LocalStore keeps images on the local filesystem under Root and serves them
// under BaseURL (see the /media static route).
type LocalStore struct {
	Root    string
	BaseURL string
}

// NewLocalStore creates root if needed.
func NewLocalStore(root, baseURL string) (*LocalStore, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("storage: empty media root")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create media root: %w", err)
	}
	return &LocalStore{Root: root, BaseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Save writes the upload to disk as received, then refits it in place when
// it exceeds the bounding box.
func (s *LocalStore) Save(ctx context.Context, listingID uint64, filename string, r io.Reader) (*Stored, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := readUpload(r)
	if err != nil {
		return nil, err
	}
	format, _, _, err := Inspect(data)
	if err != nil {
		return nil, err
	}

	rel := objectName(listingID, extFor(format))
	full := filepath.Join(s.Root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return nil, fmt.Errorf("storage: mkdir: %w", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return nil, fmt.Errorf("storage: write %s: %w", rel, err)
	}

	fit, err := FitWithin(data, MaxDimension)
	if err != nil {
		_ = os.Remove(full)
		return nil, err
	}
	if fit.Resized {
		target := rel
		if ext := fit.Ext; ext != path.Ext(rel) {
			target = strings.TrimSuffix(rel, path.Ext(rel)) + ext
		}
		tfull := filepath.Join(s.Root, filepath.FromSlash(target))
		if err := os.WriteFile(tfull, fit.Data, 0o644); err != nil {
			_ = os.Remove(full)
			return nil, fmt.Errorf("storage: rewrite %s: %w", target, err)
		}
		if target != rel {
			_ = os.Remove(full)
		}
		rel = target
	}

	return &Stored{Path: rel, ContentType: fit.ContentType, Width: fit.Width, Height: fit.Height}, nil
}

// Delete removes the file behind p. Paths escaping Root are rejected.
func (s *LocalStore) Delete(_ context.Context, p string) error {
	full, err := s.resolve(p)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("storage: delete %s: %w", p, err)
	}
	return nil
}

// URL joins BaseURL and p.
func (s *LocalStore) URL(p string) string {
	if p == "" {
		return ""
	}
	return s.BaseURL + "/" + strings.TrimLeft(p, "/")
}

func (s *LocalStore) resolve(p string) (string, error) {
	clean := path.Clean("/" + filepath.ToSlash(p))
	if clean == "/" {
		return "", fmt.Errorf("storage: invalid path %q", p)
	}
	return filepath.Join(s.Root, filepath.FromSlash(strings.TrimPrefix(clean, "/"))), nil
}

// objectName builds "listing_images/<listingID>/<uuid><ext>".
func objectName(listingID uint64, ext string) string {
	return fmt.Sprintf("%s/%d/%s%s", imageDir, listingID, uuid.NewString(), ext)
}
