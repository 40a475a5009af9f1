// Listing HTTP handlers.
//
// This file exposes REST endpoints for listings:
//   - GET    /listings                    (public feed, weak ETag)
//   - GET    /listings/{id}               (detail)
//   - POST   /listings                    (create, multipart, idempotent)
//   - PUT    /listings/{id}               (update, multipart)
//   - DELETE /listings/{id}               (delete)
//   - GET    /users/{username}/listings   (author page)
//
// Write endpoints take a multipart form: title, content, category_id, price,
// is_sold, up to five "images" files, and on update keep_images and
// delete_images (ids, repeated or comma-separated).
package handlers

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/tbourn/go-market-backend/internal/http/middleware"
	"github.com/tbourn/go-market-backend/internal/repo"
	"github.com/tbourn/go-market-backend/internal/services"
	"github.com/tbourn/go-market-backend/internal/sysutil"
	"github.com/tbourn/go-market-backend/internal/utils"
)

//
// DTOs
//

// ListingWriteResponse is returned by create and update.
type ListingWriteResponse struct {
	*services.WriteResult
	Listing *services.ListingDetail `json:"listing,omitempty"`
}

//
// Form parsing
//

const (
	formImages       = "images"
	formKeepImages   = "keep_images"
	formDeleteImages = "delete_images"
)

// readListingForm decodes the listing form. Malformed scalar values are
// carried on the input as FormErrors so the service reports them together
// with its own checks; err is reserved for transport failures (unreadable
// body or file parts).
func readListingForm(c *gin.Context) (services.ListingInput, error) {
	in, ve, err := decodeListingForm(c)
	in.FormErrors = ve.Fields
	return in, err
}

func decodeListingForm(c *gin.Context) (services.ListingInput, *services.ValidationError, error) {
	ve := &services.ValidationError{}
	in := services.ListingInput{
		Title:   c.PostForm("title"),
		Content: c.PostForm("content"),
		IsSold:  sysutil.IsTruthy(c.PostForm("is_sold")),
	}

	if raw := strings.TrimSpace(c.PostForm("category_id")); raw != "" {
		id, valid := utils.ParseID(raw)
		if !valid {
			ve.Add("category_id", "invalid", "category_id must be a positive integer", services.ErrInvalidField)
		}
		in.CategoryID = id
	}

	if raw := strings.TrimSpace(c.PostForm("price")); raw != "" {
		p, err := decimal.NewFromString(raw)
		if err != nil {
			ve.Add("price", "invalid", "price must be a number", services.ErrInvalidField)
		}
		in.Price = p
	}

	form, err := c.MultipartForm()
	if err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return in, ve, err
	}
	if form == nil {
		return in, ve, nil
	}

	for _, fh := range form.File[formImages] {
		up, err := readUpload(fh)
		if err != nil {
			return in, ve, err
		}
		in.Images = append(in.Images, services.ImageEdit{Op: services.ImageAdd, Upload: up})
	}
	for _, ref := range []struct {
		field string
		op    services.ImageOp
	}{
		{formKeepImages, services.ImageKeep},
		{formDeleteImages, services.ImageDelete},
	} {
		ids, bad, valid := utils.ParseIDList(form.Value[ref.field])
		if !valid {
			ve.Add(ref.field, "invalid", "invalid image id "+strconv.Quote(bad), services.ErrInvalidImageEdit)
			continue
		}
		for _, id := range ids {
			in.Images = append(in.Images, services.ImageEdit{Op: ref.op, ImageID: id})
		}
	}
	return in, ve, nil
}

// readUpload buffers one file part. Oversized parts are not read; the
// declared size is enough for the service to reject them.
func readUpload(fh *multipart.FileHeader) (*services.Upload, error) {
	up := &services.Upload{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Size:        fh.Size,
	}
	if fh.Size > services.MaxImageBytes {
		return up, nil
	}
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	up.Data, err = io.ReadAll(io.LimitReader(f, services.MaxImageBytes+1))
	if err != nil {
		return nil, err
	}
	return up, nil
}

func writeOutcome(err error) string {
	var ve *services.ValidationError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &ve):
		return "invalid"
	case errors.Is(err, services.ErrForbidden):
		return "forbidden"
	case errors.Is(err, services.ErrListingNotFound):
		return "not_found"
	}
	return "error"
}

// listingDB returns the database behind the listing service when it is the
// concrete implementation; idempotency records are skipped otherwise.
func (h *Handlers) listingDB() *gorm.DB {
	if svc, ok := h.listings.(*services.ListingService); ok {
		return svc.DB
	}
	return nil
}

//
// Handlers
//

// ListListings godoc
// @ID          listListings
// @Summary     Browse the feed
// @Description Returns unsold listings, newest first, five per page. `query` matches title or description; a non-numeric `category` is ignored. Supports weak ETag via If-None-Match.
// @Tags        Listings
// @Produce     json
//
// @Param       query          query   string  false "Text filter"                  example(atlas)
// @Param       category       query   string  false "Category id"                  example(2)
// @Param       page           query   int     false "Page number"                  minimum(1) default(1)
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
//
// @Success     200  {object}  services.FeedPage
// @Header      200  {string}  ETag  "Weak ETag for current result"
// @Success     304  "Not Modified"
// @Failure     404  {object}  handlers.ErrorResponse  "Page out of range"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /listings [get]
func (h *Handlers) ListListings(c *gin.Context) {
	ctx := c.Request.Context()
	filters := services.FeedFilters{Query: c.Query("query"), Category: c.Query("category")}
	page := pageParam(c)

	// ETag pre-check (best effort).
	if svc, ok := h.feed.(*services.FeedService); ok && svc.DB != nil {
		f := filters.Filter()
		count, maxTS, err := repo.ListingsStats(ctx, svc.DB, f)
		if err == nil {
			// The page embeds the category list, so it is part of the tag.
			var catCount int64
			var catTS *time.Time
			catCount, catTS, err = repo.CategoriesStats(ctx, svc.DB)
			if err == nil {
				scope := "listings:" + url.QueryEscape(f.Query) + ":" +
					strconv.FormatUint(f.CategoryID, 10) + ":" + strconv.Itoa(page) +
					":c" + strconv.FormatInt(catCount, 10) + "." + strconv.FormatInt(unixNano(catTS), 10)
				if notModified(c, scope, count, maxTS) {
					return
				}
			}
		}
	}

	res, err := h.feed.List(ctx, filters, page)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, res)
}

// ListUserListings godoc
// @ID          listUserListings
// @Summary     Listings by author
// @Description Returns every listing of one author, sold ones included, five per page.
// @Tags        Listings
// @Produce     json
//
// @Param       username  path   string  true  "Author username"  example(alice)
// @Param       page      query  int     false "Page number"      minimum(1) default(1)
//
// @Success     200  {object}  services.FeedPage
// @Failure     404  {object}  handlers.ErrorResponse  "Unknown user or page out of range"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /users/{username}/listings [get]
func (h *Handlers) ListUserListings(c *gin.Context) {
	res, err := h.feed.ListByAuthor(c.Request.Context(), c.Param("username"), pageParam(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, res)
}

// GetListing godoc
// @ID          getListing
// @Summary     Listing detail
// @Tags        Listings
// @Produce     json
//
// @Param       id  path  int  true  "Listing ID"  minimum(1)
//
// @Success     200  {object}  services.ListingDetail
// @Failure     400  {object}  handlers.ErrorResponse  "Bad id"
// @Failure     404  {object}  handlers.ErrorResponse  "Listing not found"
// @Router      /listings/{id} [get]
func (h *Handlers) GetListing(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	d, err := h.feed.GetDetail(c.Request.Context(), id)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, d)
}

// CreateListing godoc
// @ID          createListing
// @Summary     Create a listing
// @Description Creates a listing with up to five images. All field errors are reported together and nothing is stored when any check fails. Supports the Idempotency-Key header (same key replays the first result).
// @Tags        Listings
// @Accept      multipart/form-data
// @Produce     json
// @Security    BearerAuth
//
// @Param       title            formData  string  true   "Title (max 100)"
// @Param       content          formData  string  true   "Description"
// @Param       category_id      formData  int     true   "Category id"
// @Param       price            formData  string  false  "Price, two decimals"  example(12.50)
// @Param       is_sold          formData  bool    false  "Sold flag"
// @Param       images           formData  file    false  "Up to five images (jpg, png, gif, webp; 5 MB each)"
// @Param       Idempotency-Key  header    string  false  "Idempotency key for safe retries"
//
// @Success     201  {object}  handlers.ListingWriteResponse
// @Failure     400  {object}  handlers.ErrorResponse            "Malformed form"
// @Failure     401  {object}  handlers.ErrorResponse            "Unauthenticated"
// @Failure     422  {object}  handlers.ValidationErrorResponse  "Validation failed"
// @Failure     500  {object}  handlers.ErrorResponse            "Internal error"
// @Router      /listings [post]
func (h *Handlers) CreateListing(c *gin.Context) {
	ctx := c.Request.Context()
	uid, found := currentUser(c)
	if !found {
		return
	}

	// Idempotency (replay path).
	idemKey, _ := middleware.GetIdempotencyKey(c)
	scope := middleware.IdempotencyScope(c)
	db := h.listingDB()
	if idemKey != "" && db != nil {
		if rec, err := repo.GetIdempotency(ctx, db, uid, scope, idemKey, time.Now().UTC()); err == nil && rec != nil {
			if prev, err := h.feed.GetDetail(ctx, rec.ResourceID); err == nil {
				c.Header("Idempotency-Replayed", "true")
				ok(c, rec.Status, ListingWriteResponse{
					WriteResult: &services.WriteResult{
						ListingID:  prev.ID,
						ImageCount: prev.ImageCount,
						Message:    "Listing already created",
					},
					Listing: prev,
				})
				return
			}
		}
	}

	in, err := readListingForm(c)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadUpload, "could not read form: "+err.Error())
		return
	}

	res, err := h.listings.Create(ctx, uid, in)
	middleware.ObserveListingWrite("create", writeOutcome(err))
	if err != nil {
		failErr(c, err)
		return
	}
	middleware.ObserveImagesStored(res.ImagesSaved)

	// Idempotency (store path), best effort.
	if idemKey != "" && db != nil {
		if _, err := repo.CreateIdempotency(ctx, db, uid, scope, idemKey, res.ListingID, http.StatusCreated, h.opts.IdempotencyTTL); err != nil {
			middleware.LoggerFrom(c).Warn().Err(err).Msg("store idempotency record")
		}
	}

	detail, _ := h.feed.GetDetail(ctx, res.ListingID)
	c.Header("Location", strings.TrimSuffix(c.Request.URL.Path, "/")+"/"+strconv.FormatUint(res.ListingID, 10))
	ok(c, http.StatusCreated, ListingWriteResponse{WriteResult: res, Listing: detail})
}

// UpdateListing godoc
// @ID          updateListing
// @Summary     Update a listing
// @Description Replaces the listing fields. Existing images listed in delete_images are removed; images not mentioned are kept. New files are appended. Only the author may update.
// @Tags        Listings
// @Accept      multipart/form-data
// @Produce     json
// @Security    BearerAuth
//
// @Param       id             path      int     true   "Listing ID"  minimum(1)
// @Param       title          formData  string  true   "Title (max 100)"
// @Param       content        formData  string  true   "Description"
// @Param       category_id    formData  int     true   "Category id"
// @Param       price          formData  string  false  "Price, two decimals"
// @Param       is_sold        formData  bool    false  "Sold flag"
// @Param       images         formData  file    false  "New images"
// @Param       keep_images    formData  string  false  "Ids of images to keep"    example(3,4)
// @Param       delete_images  formData  string  false  "Ids of images to delete"  example(5)
//
// @Success     200  {object}  handlers.ListingWriteResponse
// @Failure     400  {object}  handlers.ErrorResponse            "Malformed request"
// @Failure     403  {object}  handlers.ErrorResponse            "Not the author"
// @Failure     404  {object}  handlers.ErrorResponse            "Listing not found"
// @Failure     422  {object}  handlers.ValidationErrorResponse  "Validation failed"
// @Failure     500  {object}  handlers.ErrorResponse            "Internal error"
// @Router      /listings/{id} [put]
func (h *Handlers) UpdateListing(c *gin.Context) {
	ctx := c.Request.Context()
	uid, found := currentUser(c)
	if !found {
		return
	}
	id, valid := pathID(c, "id")
	if !valid {
		return
	}

	in, err := readListingForm(c)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadUpload, "could not read form: "+err.Error())
		return
	}

	res, err := h.listings.Update(ctx, uid, id, in)
	middleware.ObserveListingWrite("update", writeOutcome(err))
	if err != nil {
		failErr(c, err)
		return
	}
	middleware.ObserveImagesStored(res.ImagesSaved)

	detail, _ := h.feed.GetDetail(ctx, id)
	ok(c, http.StatusOK, ListingWriteResponse{WriteResult: res, Listing: detail})
}

// DeleteListing godoc
// @ID          deleteListing
// @Summary     Delete a listing
// @Description Deletes a listing with its images and conversations. Only the author may delete.
// @Tags        Listings
// @Security    BearerAuth
//
// @Param       id  path  int  true  "Listing ID"  minimum(1)
//
// @Success     204  "No Content"
// @Failure     403  {object}  handlers.ErrorResponse  "Not the author"
// @Failure     404  {object}  handlers.ErrorResponse  "Listing not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /listings/{id} [delete]
func (h *Handlers) DeleteListing(c *gin.Context) {
	uid, found := currentUser(c)
	if !found {
		return
	}
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	err := h.listings.Delete(c.Request.Context(), uid, id)
	middleware.ObserveListingWrite("delete", writeOutcome(err))
	if err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}
