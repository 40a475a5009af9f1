package services

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"io"
	"sync"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-market-backend/internal/domain"
	"github.com/tbourn/go-market-backend/internal/repo"
	"github.com/tbourn/go-market-backend/internal/storage"
)

// ---------- test helpers ----------

func newSvcDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:svc_" + uuid.NewString() + "?mode=memory&cache=shared&_pragma=foreign_keys(1)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB(): %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	if err := repo.SeedDefaultCategory(db); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return db
}

func mustUser(t *testing.T, db *gorm.DB, id uint64, name string) *domain.User {
	t.Helper()
	u, err := repo.EnsureUser(context.Background(), db, id, name)
	if err != nil {
		t.Fatalf("EnsureUser(%d): %v", id, err)
	}
	return u
}

func mustCategory(t *testing.T, db *gorm.DB, name string) *domain.Category {
	t.Helper()
	c, err := repo.CreateCategory(context.Background(), db, name)
	if err != nil {
		t.Fatalf("CreateCategory(%q): %v", name, err)
	}
	return c
}

func pngData(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{G: 200, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png encode: %v", err)
	}
	return buf.Bytes()
}

// headerOnlyPNG returns a PNG signature and IHDR chunk declaring a w x h RGBA
// canvas with no pixel data behind it.
func headerOnlyPNG(w, h uint32) []byte {
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:], w)
	binary.BigEndian.PutUint32(ihdr[4:], h)
	ihdr[8], ihdr[9] = 8, 6 // 8-bit RGBA
	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	_ = binary.Write(&buf, binary.BigEndian, uint32(len(ihdr)))
	chunk := append([]byte("IHDR"), ihdr...)
	buf.Write(chunk)
	_ = binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(chunk))
	return buf.Bytes()
}

func pngUpload(t *testing.T, name string) *Upload {
	t.Helper()
	data := pngData(t, 4, 3)
	return &Upload{Filename: name, ContentType: "image/png", Size: int64(len(data)), Data: data}
}

func addImages(t *testing.T, n int) []ImageEdit {
	t.Helper()
	out := make([]ImageEdit, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, ImageEdit{Op: ImageAdd, Upload: pngUpload(t, fmt.Sprintf("pic%d.png", i))})
	}
	return out
}

func validInput(catID uint64) ListingInput {
	return ListingInput{
		Title:      "Old Atlas",
		Content:    "A 1962 world atlas, some foxing.",
		CategoryID: catID,
		Price:      decimal.RequireFromString("12.50"),
	}
}

func countRows(t *testing.T, db *gorm.DB, model any) int64 {
	t.Helper()
	var n int64
	if err := db.Model(model).Count(&n).Error; err != nil {
		t.Fatalf("count %T: %v", model, err)
	}
	return n
}

// memStore is an in-memory storage.Store. failAt makes the n-th Save (1-based)
// fail.
type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	deleted []string
	saves   int
	failAt  int
}

var errStoreDown = errors.New("store unavailable")

func newMemStore() *memStore { return &memStore{objects: map[string][]byte{}} }

func (m *memStore) Save(_ context.Context, listingID uint64, _ string, r io.Reader) (*storage.Stored, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.failAt > 0 && m.saves == m.failAt {
		return nil, errStoreDown
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	p := fmt.Sprintf("listing_images/%d/%d.png", listingID, m.saves)
	m.objects[p] = data
	return &storage.Stored{Path: p, ContentType: "image/png", Width: 4, Height: 3}, nil
}

func (m *memStore) Delete(_ context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, path)
	m.deleted = append(m.deleted, path)
	return nil
}

func (m *memStore) URL(path string) string { return "/media/" + path }

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

// repoShim adapts the package-level repo functions to FeedRepo.
type repoShim struct{}

func (repoShim) CountListings(ctx context.Context, db *gorm.DB, f repo.ListingFilter) (int64, error) {
	return repo.CountListings(ctx, db, f)
}
func (repoShim) ListListingsPage(ctx context.Context, db *gorm.DB, f repo.ListingFilter, offset, limit int) ([]domain.Listing, error) {
	return repo.ListListingsPage(ctx, db, f, offset, limit)
}
func (repoShim) GetListingDetail(ctx context.Context, db *gorm.DB, id uint64) (*domain.Listing, error) {
	return repo.GetListingDetail(ctx, db, id)
}
func (repoShim) GetUserByUsername(ctx context.Context, db *gorm.DB, username string) (*domain.User, error) {
	return repo.GetUserByUsername(ctx, db, username)
}
func (repoShim) ListCategories(ctx context.Context, db *gorm.DB) ([]domain.Category, error) {
	return repo.ListCategories(ctx, db)
}

var (
	_ storage.Store = (*memStore)(nil)
	_ FeedRepo      = repoShim{}
)
