package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strconv"
	"strings"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-market-backend/internal/domain"
	"github.com/tbourn/go-market-backend/internal/http/middleware"
	"github.com/tbourn/go-market-backend/internal/repo"
	"github.com/tbourn/go-market-backend/internal/services"
	"github.com/tbourn/go-market-backend/internal/storage"
)

// ---------- test DB + repo shim ----------

func newHandlerDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:handlers_" + uuid.NewString() + "?mode=memory&cache=shared&_pragma=foreign_keys(1)"
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
		t.Fatalf("migrate: %v", err)
	}
	if err := repo.SeedDefaultCategory(db); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return db
}

type testFeedRepo struct{}

func (testFeedRepo) CountListings(ctx context.Context, db *gorm.DB, f repo.ListingFilter) (int64, error) {
	return repo.CountListings(ctx, db, f)
}

func (testFeedRepo) ListListingsPage(ctx context.Context, db *gorm.DB, f repo.ListingFilter, offset, limit int) ([]domain.Listing, error) {
	return repo.ListListingsPage(ctx, db, f, offset, limit)
}

func (testFeedRepo) GetListingDetail(ctx context.Context, db *gorm.DB, id uint64) (*domain.Listing, error) {
	return repo.GetListingDetail(ctx, db, id)
}

func (testFeedRepo) GetUserByUsername(ctx context.Context, db *gorm.DB, username string) (*domain.User, error) {
	return repo.GetUserByUsername(ctx, db, username)
}

func (testFeedRepo) ListCategories(ctx context.Context, db *gorm.DB) ([]domain.Category, error) {
	return repo.ListCategories(ctx, db)
}

// ---------- router under test ----------

type testEnv struct {
	t  *testing.T
	db *gorm.DB
	r  *gin.Engine
}

// newEnv wires real services over sqlite and a temp-dir store, mounted the
// way the production router mounts them.
func newEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := newHandlerDB(t)
	store, err := storage.NewLocalStore(t.TempDir(), "/media")
	if err != nil {
		t.Fatalf("store: %v", err)
	}

	h := New(
		services.NewListingService(db, store),
		services.NewFeedService(db, testFeedRepo{}, store),
		services.NewConversationService(db),
		services.NewCategoryService(db),
		Options{IsAdmin: func(u string) bool { return u == "admin" }},
	)
	return &testEnv{t: t, db: db, r: mount(db, h)}
}

func mount(db *gorm.DB, h *Handlers) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestID())
	r.Use(middleware.Authenticate(middleware.AuthOptions{
		Mirror: func(ctx context.Context, id uint64, name string) error {
			_, err := repo.EnsureUser(ctx, db, id, name)
			return err
		},
	}))
	r.Use(middleware.IdempotencyValidator(middleware.IdempotencyOptions{},
		func(ctx context.Context, uid uint64, scope, key string, now time.Time) (bool, error) {
			rec, err := repo.GetIdempotency(ctx, db, uid, scope, key, now)
			if errors.Is(err, repo.ErrNotFound) {
				return false, nil
			}
			return rec != nil, err
		}))

	api := r.Group("/api/v1")
	api.GET("/listings", h.ListListings)
	api.GET("/listings/:id", h.GetListing)
	api.GET("/users/:username/listings", h.ListUserListings)
	api.GET("/categories", h.ListCategories)

	auth := api.Group("", middleware.RequireUser())
	auth.POST("/listings", h.CreateListing)
	auth.PUT("/listings/:id", h.UpdateListing)
	auth.DELETE("/listings/:id", h.DeleteListing)
	auth.POST("/categories", h.CreateCategory)
	auth.GET("/listings/:id/conversation", h.GetListingConversation)
	auth.POST("/listings/:id/conversation", h.StartConversation)
	auth.GET("/conversations", h.ListInbox)
	auth.GET("/conversations/:id", h.GetConversation)
	auth.POST("/conversations/:id/messages", h.PostMessage)
	return r
}

// user identifies the caller through the development headers.
type user struct {
	id   uint64
	name string
}

var (
	seller = user{1, "alice"}
	buyer  = user{2, "bob"}
	admin  = user{9, "admin"}
	nobody = user{}
)

func (e *testEnv) do(method, path string, body io.Reader, contentType string, as user, hdr ...string) *httptest.ResponseRecorder {
	e.t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if as.id != 0 {
		req.Header.Set(middleware.HeaderUserID, strconv.FormatUint(as.id, 10))
		req.Header.Set(middleware.HeaderUsername, as.name)
	}
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	w := httptest.NewRecorder()
	e.r.ServeHTTP(w, req)
	return w
}

func (e *testEnv) doJSON(method, path string, payload any, as user) *httptest.ResponseRecorder {
	e.t.Helper()
	b, err := json.Marshal(payload)
	if err != nil {
		e.t.Fatalf("marshal: %v", err)
	}
	return e.do(method, path, bytes.NewReader(b), "application/json", as)
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

// ---------- multipart forms ----------

type formFile struct {
	name        string
	contentType string
	data        []byte
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 6, 4))
	img.Set(1, 1, color.RGBA{R: 200, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png: %v", err)
	}
	return buf.Bytes()
}

func pngFiles(t *testing.T, n int) []formFile {
	out := make([]formFile, n)
	for i := range out {
		out[i] = formFile{name: fmt.Sprintf("p%d.png", i), contentType: "image/png", data: pngBytes(t)}
	}
	return out
}

func listingFields(catID uint64) map[string][]string {
	return map[string][]string{
		"title":       {"Old Atlas"},
		"content":     {"A 1920s world atlas"},
		"category_id": {strconv.FormatUint(catID, 10)},
		"price":       {"12.50"},
	}
}

func multipartBody(t *testing.T, fields map[string][]string, files []formFile) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, vs := range fields {
		for _, v := range vs {
			if err := mw.WriteField(k, v); err != nil {
				t.Fatalf("field: %v", err)
			}
		}
	}
	for _, f := range files {
		h := textproto.MIMEHeader{}
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="images"; filename=%q`, f.name))
		h.Set("Content-Type", f.contentType)
		part, err := mw.CreatePart(h)
		if err != nil {
			t.Fatalf("part: %v", err)
		}
		_, _ = part.Write(f.data)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func (e *testEnv) submitListing(method, path string, fields map[string][]string, files []formFile, as user, hdr ...string) *httptest.ResponseRecorder {
	e.t.Helper()
	body, ct := multipartBody(e.t, fields, files)
	return e.do(method, path, body, ct, as, hdr...)
}

// createListing posts a valid listing and returns its id.
func (e *testEnv) createListing(as user, title string, images int) uint64 {
	e.t.Helper()
	fields := listingFields(domain.DefaultCategoryID)
	fields["title"] = []string{title}
	w := e.submitListing(http.MethodPost, "/api/v1/listings", fields, pngFiles(e.t, images), as)
	if w.Code != http.StatusCreated {
		e.t.Fatalf("create %q: %d %s", title, w.Code, w.Body.String())
	}
	return decode[ListingWriteResponse](e.t, w).ListingID
}

func (e *testEnv) count(model any) int64 {
	e.t.Helper()
	var n int64
	if err := e.db.Model(model).Count(&n).Error; err != nil {
		e.t.Fatalf("count: %v", err)
	}
	return n
}

func fieldSet(fields []services.FieldError) string {
	names := make([]string, 0, len(fields))
	for _, f := range fields {
		names = append(names, f.Field)
	}
	return strings.Join(names, ",")
}
