// Package services – ListingService
//
// This file implements the listing write workflow: create, update and delete
// of a listing together with its bounded image set. Input is validated as a
// whole before anything is written; the listing row and its image rows are
// then persisted inside one transaction. Image bytes go to the configured
// storage.Store, and blobs written by a transaction that rolls back are
// removed again.
package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-market-backend/internal/domain"
	"github.com/tbourn/go-market-backend/internal/repo"
	"github.com/tbourn/go-market-backend/internal/storage"
)

// ImageOp is the action of one slot of the image editor.
type ImageOp string

const (
	ImageAdd    ImageOp = "add"
	ImageKeep   ImageOp = "keep"
	ImageDelete ImageOp = "delete"
)

// Upload is a newly submitted image file.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Data        []byte
}

// ImageEdit is one slot of the bounded image editor. Add slots carry an
// Upload (a nil Upload is an empty slot and is ignored); keep and delete
// slots reference an existing image of the listing by id.
type ImageEdit struct {
	Op      ImageOp
	ImageID uint64
	Upload  *Upload
}

// ListingInput is the submitted listing form.
type ListingInput struct {
	Title      string
	Content    string
	CategoryID uint64
	Price      decimal.Decimal
	IsSold     bool
	Images     []ImageEdit

	// FormErrors are decoding failures found before the input reached the
	// service, e.g. a price that is not a number. They are reported along
	// with every other failure and suppress further checks on their field.
	FormErrors []FieldError
}

// WriteResult reports the outcome of a successful write.
type WriteResult struct {
	ListingID     uint64 `json:"listing_id"`
	ImagesSaved   int    `json:"images_saved"`
	ImagesDeleted int    `json:"images_deleted"`
	ImageCount    int    `json:"image_count"`
	Message       string `json:"message"`
}

// ListingService owns listing mutations.
type ListingService struct {
	DB    *gorm.DB
	Store storage.Store
}

// NewListingService wires a ListingService.
func NewListingService(db *gorm.DB, store storage.Store) *ListingService {
	return &ListingService{DB: db, Store: store}
}

// Create validates in and, on success, stores the listing authored by userID
// with its images in one transaction.
func (s *ListingService) Create(ctx context.Context, userID uint64, in ListingInput) (*WriteResult, error) {
	ctx, span := otel.Tracer("services/ListingService").Start(ctx, "Create",
		trace.WithAttributes(attribute.Int64("user.id", int64(userID))))
	defer span.End()

	in = normalizeInput(in)
	ve := &ValidationError{Fields: append([]FieldError(nil), in.FormErrors...)}
	s.validateListing(ctx, in, ve)

	var adds []*Upload
	for i, e := range in.Images {
		if e.Op != ImageAdd {
			ve.Add(imageFieldName(i), "invalid_op", "only new images can be added to a new listing", ErrInvalidImageEdit)
			continue
		}
		if e.Upload == nil {
			continue
		}
		if msg, err := ValidateUpload(e.Upload); err != nil {
			ve.Add(imageFieldName(i), imageCode(err), msg, err)
			continue
		}
		adds = append(adds, e.Upload)
	}
	checkImageCount(in.Images, 0, 0, ve)
	if err := ve.OrNil(); err != nil {
		return nil, err
	}

	var (
		listing = &domain.Listing{
			Title:      in.Title,
			Content:    in.Content,
			CategoryID: in.CategoryID,
			Price:      in.Price,
			IsSold:     in.IsSold,
			AuthorID:   userID,
		}
		written []string
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.CreateListing(ctx, tx, listing); err != nil {
			return err
		}
		paths, err := s.storeImages(ctx, tx, listing.ID, adds)
		written = paths
		return err
	})
	if err != nil {
		s.discard(ctx, written)
		return nil, err
	}

	return &WriteResult{
		ListingID:   listing.ID,
		ImagesSaved: len(adds),
		ImageCount:  len(adds),
		Message:     countMessage("Listing created", len(adds)),
	}, nil
}

// Update applies in to listingID. Only the author may update. Deletions run
// before additions inside the same transaction; deleted blobs are removed
// from storage once the transaction commits.
func (s *ListingService) Update(ctx context.Context, userID, listingID uint64, in ListingInput) (*WriteResult, error) {
	ctx, span := otel.Tracer("services/ListingService").Start(ctx, "Update",
		trace.WithAttributes(
			attribute.Int64("user.id", int64(userID)),
			attribute.Int64("listing.id", int64(listingID)),
		))
	defer span.End()

	listing, err := s.loadOwned(ctx, userID, listingID)
	if err != nil {
		return nil, err
	}
	existing, err := repo.ListListingImages(ctx, s.DB, listingID)
	if err != nil {
		return nil, err
	}
	byID := make(map[uint64]domain.ListingImage, len(existing))
	for _, img := range existing {
		byID[img.ID] = img
	}

	in = normalizeInput(in)
	ve := &ValidationError{Fields: append([]FieldError(nil), in.FormErrors...)}
	s.validateListing(ctx, in, ve)

	var (
		adds      []*Upload
		deleteIDs []uint64
		deleted   []domain.ListingImage
		seen      = map[uint64]bool{}
	)
	for i, e := range in.Images {
		switch e.Op {
		case ImageAdd:
			if e.Upload == nil {
				continue
			}
			if msg, err := ValidateUpload(e.Upload); err != nil {
				ve.Add(imageFieldName(i), imageCode(err), msg, err)
				continue
			}
			adds = append(adds, e.Upload)
		case ImageKeep, ImageDelete:
			img, ok := byID[e.ImageID]
			if !ok {
				ve.Add(imageFieldName(i), "unknown_image", fmt.Sprintf("image %d does not belong to this listing", e.ImageID), ErrInvalidImageEdit)
				continue
			}
			if seen[e.ImageID] {
				ve.Add(imageFieldName(i), "duplicate_image", fmt.Sprintf("image %d is referenced more than once", e.ImageID), ErrInvalidImageEdit)
				continue
			}
			seen[e.ImageID] = true
			if e.Op == ImageDelete {
				deleteIDs = append(deleteIDs, e.ImageID)
				deleted = append(deleted, img)
			}
		default:
			ve.Add(imageFieldName(i), "invalid_op", fmt.Sprintf("unknown image operation %q", e.Op), ErrInvalidImageEdit)
		}
	}
	checkImageCount(in.Images, len(existing), len(deleteIDs), ve)
	if err := ve.OrNil(); err != nil {
		return nil, err
	}

	listing.Title = in.Title
	listing.Content = in.Content
	listing.CategoryID = in.CategoryID
	listing.Price = in.Price
	listing.IsSold = in.IsSold

	var (
		written []string
		total   int
	)
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Writing the listing row first serializes concurrent updates of the
		// same listing, so the count below sees every committed image.
		if err := repo.UpdateListingFields(ctx, tx, listing); err != nil {
			return err
		}
		if _, err := repo.DeleteListingImages(ctx, tx, listingID, deleteIDs); err != nil {
			return err
		}
		remaining, err := repo.CountListingImages(ctx, tx, listingID)
		if err != nil {
			return err
		}
		total = int(remaining) + len(adds)
		if total > MaxImages {
			ve := &ValidationError{}
			ve.Add(imagesField, imageCode(ErrTooManyImages),
				fmt.Sprintf("a listing can have at most %d images", MaxImages), ErrTooManyImages)
			return ve
		}
		paths, err := s.storeImages(ctx, tx, listingID, adds)
		written = paths
		return err
	})
	if err != nil {
		s.discard(ctx, written)
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrListingNotFound
		}
		return nil, err
	}

	old := make([]string, 0, len(deleted))
	for _, img := range deleted {
		old = append(old, img.Path)
	}
	s.discard(ctx, old)

	return &WriteResult{
		ListingID:     listingID,
		ImagesSaved:   len(adds),
		ImagesDeleted: len(deleted),
		ImageCount:    total,
		Message:       countMessage("Listing updated", len(adds)),
	}, nil
}

// Delete removes a listing authored by userID together with its images and
// conversations. Stored blobs are removed after the transaction commits.
func (s *ListingService) Delete(ctx context.Context, userID, listingID uint64) error {
	ctx, span := otel.Tracer("services/ListingService").Start(ctx, "Delete",
		trace.WithAttributes(
			attribute.Int64("user.id", int64(userID)),
			attribute.Int64("listing.id", int64(listingID)),
		))
	defer span.End()

	if _, err := s.loadOwned(ctx, userID, listingID); err != nil {
		return err
	}
	images, err := repo.ListListingImages(ctx, s.DB, listingID)
	if err != nil {
		return err
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.DeleteConversationsForListing(ctx, tx, listingID); err != nil {
			return err
		}
		if err := repo.DeleteAllListingImages(ctx, tx, listingID); err != nil {
			return err
		}
		return repo.DeleteListing(ctx, tx, listingID)
	})
	if errors.Is(err, repo.ErrNotFound) {
		return ErrListingNotFound
	}
	if err != nil {
		return err
	}

	paths := make([]string, 0, len(images))
	for _, img := range images {
		paths = append(paths, img.Path)
	}
	s.discard(ctx, paths)
	return nil
}

// loadOwned fetches the listing and checks that userID authored it. The
// check runs on every call.
func (s *ListingService) loadOwned(ctx context.Context, userID, listingID uint64) (*domain.Listing, error) {
	l, err := repo.GetListing(ctx, s.DB, listingID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrListingNotFound
		}
		return nil, err
	}
	if err := requireAuthor(l, userID); err != nil {
		return nil, err
	}
	return l, nil
}

// requireAuthor fails closed unless userID is the listing's author.
func requireAuthor(l *domain.Listing, userID uint64) error {
	if l == nil || userID == 0 || l.AuthorID != userID {
		return ErrForbidden
	}
	return nil
}

// validateListing adds scalar field failures and checks that the category
// exists.
func (s *ListingService) validateListing(ctx context.Context, in ListingInput, ve *ValidationError) {
	validateFields(in, ve)
	if in.CategoryID == 0 || ve.Has(categoryIDField) {
		return
	}
	if _, err := repo.GetCategory(ctx, s.DB, in.CategoryID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			ve.Add(categoryIDField, "exists", "select a valid category", ErrInvalidCategory)
			return
		}
		ve.Add(categoryIDField, "lookup_failed", "category could not be verified", err)
	}
}

// checkImageCount enforces the editor bound: at most MaxImages slots with a
// file, and at most MaxImages images once the edit is applied.
func checkImageCount(edits []ImageEdit, existing, deleting int, ve *ValidationError) {
	adds := 0
	for _, e := range edits {
		if e.Op == ImageAdd && e.Upload != nil {
			adds++
		}
	}
	if adds > MaxImages || existing-deleting+adds > MaxImages {
		ve.Add(imagesField, imageCode(ErrTooManyImages),
			fmt.Sprintf("a listing can have at most %d images", MaxImages), ErrTooManyImages)
	}
}

// storeImages saves each upload and inserts its row. It returns every path
// written so far, also on failure, so the caller can compensate.
func (s *ListingService) storeImages(ctx context.Context, tx *gorm.DB, listingID uint64, adds []*Upload) ([]string, error) {
	var written []string
	for _, u := range adds {
		st, err := s.Store.Save(ctx, listingID, u.Filename, bytes.NewReader(u.Data))
		if err != nil {
			return written, fmt.Errorf("store image %q: %w", u.Filename, err)
		}
		written = append(written, st.Path)
		img := &domain.ListingImage{
			ListingID:   listingID,
			Path:        st.Path,
			ContentType: st.ContentType,
			Width:       st.Width,
			Height:      st.Height,
		}
		if err := repo.CreateListingImage(ctx, tx, img); err != nil {
			return written, err
		}
	}
	return written, nil
}

// discard removes blobs best effort. Failures are logged, the database stays
// the source of truth.
func (s *ListingService) discard(ctx context.Context, paths []string) {
	for _, p := range paths {
		if err := s.Store.Delete(context.WithoutCancel(ctx), p); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Str("path", p).Msg("image cleanup failed")
		}
	}
}

func normalizeInput(in ListingInput) ListingInput {
	in.Title = strings.TrimSpace(in.Title)
	in.Content = strings.TrimSpace(in.Content)
	return in
}

// countMessage renders "<base> with N image(s)" or just base.
func countMessage(base string, n int) string {
	if n > 0 {
		return fmt.Sprintf("%s with %d image(s)", base, n)
	}
	return base
}
