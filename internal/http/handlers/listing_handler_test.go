package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"testing"

	"github.com/tbourn/go-market-backend/internal/domain"
	"github.com/tbourn/go-market-backend/internal/http/middleware"
	"github.com/tbourn/go-market-backend/internal/services"
)

func TestCreateListing_WithImages(t *testing.T) {
	e := newEnv(t)

	w := e.submitListing(http.MethodPost, "/api/v1/listings", listingFields(domain.DefaultCategoryID), pngFiles(t, 2), seller)
	if w.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	res := decode[ListingWriteResponse](t, w)
	if res.ImagesSaved != 2 || res.ImageCount != 2 || res.Message != "Listing created with 2 image(s)" {
		t.Fatalf("unexpected result: %+v", res.WriteResult)
	}
	if loc := w.Header().Get("Location"); loc != "/api/v1/listings/"+strconv.FormatUint(res.ListingID, 10) {
		t.Fatalf("Location = %q", loc)
	}
	if res.Listing == nil || len(res.Listing.Images) != 2 || res.Listing.Author != "alice" {
		t.Fatalf("listing detail missing or incomplete: %+v", res.Listing)
	}
	for _, img := range res.Listing.Images {
		if !strings.HasPrefix(img.URL, "/media/") {
			t.Fatalf("image url = %q", img.URL)
		}
	}
}

func TestCreateListing_RequiresUser(t *testing.T) {
	e := newEnv(t)
	w := e.submitListing(http.MethodPost, "/api/v1/listings", listingFields(domain.DefaultCategoryID), nil, nobody)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous create -> %d", w.Code)
	}
}

func TestCreateListing_SixImagesRejectedNothingStored(t *testing.T) {
	e := newEnv(t)

	w := e.submitListing(http.MethodPost, "/api/v1/listings", listingFields(domain.DefaultCategoryID), pngFiles(t, 6), seller)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	body := decode[ValidationErrorResponse](t, w)
	if body.Code != ErrCodeValidation || !strings.Contains(fieldSet(body.Fields), "images") {
		t.Fatalf("unexpected envelope: %+v", body)
	}
	if n := e.count(&domain.Listing{}); n != 0 {
		t.Fatalf("listings stored: %d", n)
	}
	if n := e.count(&domain.ListingImage{}); n != 0 {
		t.Fatalf("images stored: %d", n)
	}
}

func TestCreateListing_CollectsAllErrors(t *testing.T) {
	e := newEnv(t)

	fields := listingFields(domain.DefaultCategoryID)
	fields["title"] = []string{""}
	files := []formFile{
		{name: "notes.bmp", contentType: "image/bmp", data: []byte("BM")},
		{name: "fake.jpg", contentType: "text/plain", data: []byte("hello")},
	}
	w := e.submitListing(http.MethodPost, "/api/v1/listings", fields, files, seller)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status=%d", w.Code)
	}
	got := fieldSet(decode[ValidationErrorResponse](t, w).Fields)
	for _, want := range []string{"title", "images[0]", "images[1]"} {
		if !strings.Contains(got, want) {
			t.Fatalf("missing %s in %s", want, got)
		}
	}
}

func TestCreateListing_MalformedScalars(t *testing.T) {
	e := newEnv(t)

	fields := listingFields(domain.DefaultCategoryID)
	fields["price"] = []string{"cheap"}
	fields["category_id"] = []string{"books"}
	fields["title"] = []string{""}
	files := []formFile{{name: "notes.bmp", contentType: "image/bmp", data: []byte("BM")}}
	w := e.submitListing(http.MethodPost, "/api/v1/listings", fields, files, seller)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status=%d", w.Code)
	}
	// Decoding failures are reported alongside the remaining field and file
	// checks, once per field.
	if got := fieldSet(decode[ValidationErrorResponse](t, w).Fields); got != "category_id,price,title,images[0]" {
		t.Fatalf("fields = %s", got)
	}
	if n := e.count(&domain.Listing{}); n != 0 {
		t.Fatalf("listings stored: %d", n)
	}
}

func TestUpdateListing_MalformedScalarsWithOtherErrors(t *testing.T) {
	e := newEnv(t)
	id := e.createListing(seller, "Lamp", 0)

	fields := listingFields(domain.DefaultCategoryID)
	fields["price"] = []string{"1,5"}
	fields["content"] = []string{"  "}
	files := []formFile{{name: "fake.jpg", contentType: "text/plain", data: []byte("hello")}}
	w := e.submitListing(http.MethodPut, fmt.Sprintf("/api/v1/listings/%d", id), fields, files, seller)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status=%d", w.Code)
	}
	if got := fieldSet(decode[ValidationErrorResponse](t, w).Fields); got != "price,content,images[0]" {
		t.Fatalf("fields = %s", got)
	}
}

func TestCreateListing_IdempotentReplay(t *testing.T) {
	e := newEnv(t)
	fields := listingFields(domain.DefaultCategoryID)

	first := e.submitListing(http.MethodPost, "/api/v1/listings", fields, pngFiles(t, 1), seller,
		middleware.HeaderIdempotencyKey, "create-1")
	if first.Code != http.StatusCreated {
		t.Fatalf("first: %d %s", first.Code, first.Body.String())
	}
	second := e.submitListing(http.MethodPost, "/api/v1/listings", fields, pngFiles(t, 1), seller,
		middleware.HeaderIdempotencyKey, "create-1")
	if second.Code != http.StatusCreated || second.Header().Get("Idempotency-Replayed") != "true" {
		t.Fatalf("second: %d replayed=%q", second.Code, second.Header().Get("Idempotency-Replayed"))
	}
	a, b := decode[ListingWriteResponse](t, first), decode[ListingWriteResponse](t, second)
	if a.ListingID != b.ListingID || b.ImageCount != 1 {
		t.Fatalf("replay mismatch: %d vs %d (images %d)", a.ListingID, b.ListingID, b.ImageCount)
	}
	if n := e.count(&domain.Listing{}); n != 1 {
		t.Fatalf("listings = %d; want 1", n)
	}

	// the same key from another user is a different request
	other := e.submitListing(http.MethodPost, "/api/v1/listings", fields, nil, buyer,
		middleware.HeaderIdempotencyKey, "create-1")
	if other.Code != http.StatusCreated || other.Header().Get("Idempotency-Replayed") != "" {
		t.Fatalf("other user: %d", other.Code)
	}
}

func TestUpdateListing_AuthorOnlyAndImageEdits(t *testing.T) {
	e := newEnv(t)
	id := e.createListing(seller, "Old Atlas", 2)
	path := fmt.Sprintf("/api/v1/listings/%d", id)

	detail := decode[services.ListingDetail](t, e.do(http.MethodGet, path, nil, "", nobody))
	if len(detail.Images) != 2 {
		t.Fatalf("images = %d", len(detail.Images))
	}

	fields := listingFields(domain.DefaultCategoryID)
	fields["title"] = []string{"Old Atlas (revised)"}
	fields["is_sold"] = []string{"on"}
	fields["keep_images"] = []string{strconv.FormatUint(detail.Images[0].ID, 10)}
	fields["delete_images"] = []string{strconv.FormatUint(detail.Images[1].ID, 10)}

	if w := e.submitListing(http.MethodPut, path, fields, nil, buyer); w.Code != http.StatusForbidden {
		t.Fatalf("non-author update -> %d", w.Code)
	}

	w := e.submitListing(http.MethodPut, path, fields, pngFiles(t, 1), seller)
	if w.Code != http.StatusOK {
		t.Fatalf("update: %d %s", w.Code, w.Body.String())
	}
	res := decode[ListingWriteResponse](t, w)
	if res.ImagesSaved != 1 || res.ImagesDeleted != 1 || res.ImageCount != 2 || res.Message != "Listing updated with 1 image(s)" {
		t.Fatalf("unexpected result: %+v", res.WriteResult)
	}
	if res.Listing.Title != "Old Atlas (revised)" || !res.Listing.IsSold {
		t.Fatalf("fields not applied: %+v", res.Listing.FeedItem)
	}
}

func TestUpdateListing_BadImageIDs(t *testing.T) {
	e := newEnv(t)
	id := e.createListing(seller, "Lamp", 0)

	fields := listingFields(domain.DefaultCategoryID)
	fields["delete_images"] = []string{"1,x"}
	w := e.submitListing(http.MethodPut, fmt.Sprintf("/api/v1/listings/%d", id), fields, nil, seller)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status=%d", w.Code)
	}
	if got := fieldSet(decode[ValidationErrorResponse](t, w).Fields); got != "delete_images" {
		t.Fatalf("fields = %s", got)
	}
}

func TestDeleteListing(t *testing.T) {
	e := newEnv(t)
	id := e.createListing(seller, "Chair", 1)
	path := fmt.Sprintf("/api/v1/listings/%d", id)

	if w := e.do(http.MethodDelete, path, nil, "", buyer); w.Code != http.StatusForbidden {
		t.Fatalf("non-author delete -> %d", w.Code)
	}
	if w := e.do(http.MethodDelete, path, nil, "", seller); w.Code != http.StatusNoContent {
		t.Fatalf("delete -> %d %s", w.Code, w.Body.String())
	}
	if w := e.do(http.MethodGet, path, nil, "", nobody); w.Code != http.StatusNotFound {
		t.Fatalf("get after delete -> %d", w.Code)
	}
	if w := e.do(http.MethodDelete, path, nil, "", seller); w.Code != http.StatusNotFound {
		t.Fatalf("second delete -> %d", w.Code)
	}
}

func TestGetListing_BadID(t *testing.T) {
	e := newEnv(t)
	for _, p := range []string{"/api/v1/listings/abc", "/api/v1/listings/0"} {
		w := e.do(http.MethodGet, p, nil, "", nobody)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("%s -> %d", p, w.Code)
		}
	}
}

func TestListListings_FeedPagingAndETag(t *testing.T) {
	e := newEnv(t)
	for i := 0; i < 6; i++ {
		e.createListing(seller, fmt.Sprintf("Item %d", i), 0)
	}

	w := e.do(http.MethodGet, "/api/v1/listings?category=abc", nil, "", nobody)
	if w.Code != http.StatusOK {
		t.Fatalf("feed: %d", w.Code)
	}
	page := decode[services.FeedPage](t, w)
	if len(page.Items) != services.FeedPageSize || page.Pagination.Total != 6 || !page.Pagination.HasNext {
		t.Fatalf("page 1: %d items, %+v", len(page.Items), page.Pagination)
	}
	if page.Items[0].Title != "Item 5" {
		t.Fatalf("newest first expected, got %q", page.Items[0].Title)
	}

	etag := w.Header().Get("ETag")
	if etag == "" {
		t.Fatal("missing ETag")
	}
	cached := e.do(http.MethodGet, "/api/v1/listings?category=abc", nil, "", nobody, "If-None-Match", etag)
	if cached.Code != http.StatusNotModified {
		t.Fatalf("If-None-Match -> %d", cached.Code)
	}
	if other := e.do(http.MethodGet, "/api/v1/listings?page=2", nil, "", nobody, "If-None-Match", etag); other.Code != http.StatusOK {
		t.Fatalf("page 2 must not share the ETag, got %d", other.Code)
	}

	// A new category changes the embedded category list.
	if w := e.doJSON(http.MethodPost, "/api/v1/categories", CreateCategoryRequest{Name: "Maps"}, admin); w.Code != http.StatusCreated {
		t.Fatalf("create category: %d %s", w.Code, w.Body.String())
	}
	fresh := e.do(http.MethodGet, "/api/v1/listings?category=abc", nil, "", nobody, "If-None-Match", etag)
	if fresh.Code != http.StatusOK || fresh.Header().Get("ETag") == etag {
		t.Fatalf("stale ETag after category change: %d", fresh.Code)
	}
	if cats := decode[services.FeedPage](t, fresh).Categories; len(cats) != 2 {
		t.Fatalf("categories: %+v", cats)
	}

	w = e.do(http.MethodGet, "/api/v1/listings?page=3", nil, "", nobody)
	if w.Code != http.StatusNotFound || decode[ErrorResponse](t, w).Code != ErrCodePageOutOfRange {
		t.Fatalf("page 3 -> %d %s", w.Code, w.Body.String())
	}
}

func TestListUserListings(t *testing.T) {
	e := newEnv(t)
	e.createListing(seller, "Desk", 0)

	w := e.do(http.MethodGet, "/api/v1/users/alice/listings", nil, "", nobody)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if p := decode[services.FeedPage](t, w); p.Author != "alice" || len(p.Items) != 1 {
		t.Fatalf("unexpected page: %+v", p)
	}
	if w := e.do(http.MethodGet, "/api/v1/users/ghost/listings", nil, "", nobody); w.Code != http.StatusNotFound {
		t.Fatalf("unknown user -> %d", w.Code)
	}
}
