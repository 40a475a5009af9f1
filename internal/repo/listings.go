// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for listings: the
// public feed and author queries, the detail lookup, and the row-level writes
// used by the listing write workflow.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions. They follow the "thin repository"
// approach: no business logic, only persistence and query composition.
package repo

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-market-backend/internal/domain"
)

// ListingFilter narrows listing queries. Zero values disable a clause.
type ListingFilter struct {
	// Query is matched case-insensitively as a substring of title or content.
	Query string
	// CategoryID restricts to one category when > 0.
	CategoryID uint64
	// AuthorID restricts to one author when > 0.
	AuthorID uint64
	// IncludeSold keeps sold listings in the result.
	IncludeSold bool
}

// likeEscape is the LIKE escape character. '!' behaves the same on SQLite,
// MySQL and PostgreSQL, unlike backslash.
const likeEscape = "!"

// containsPattern lowercases q and escapes LIKE wildcards so the user text is
// matched literally.
func containsPattern(q string) string {
	r := strings.NewReplacer(likeEscape, likeEscape+likeEscape, "%", likeEscape+"%", "_", likeEscape+"_")
	return "%" + r.Replace(strings.ToLower(q)) + "%"
}

func applyListingFilter(q *gorm.DB, f ListingFilter) *gorm.DB {
	if !f.IncludeSold {
		q = q.Where("listings.is_sold = ?", false)
	}
	if f.AuthorID > 0 {
		q = q.Where("listings.author_id = ?", f.AuthorID)
	}
	if f.CategoryID > 0 {
		q = q.Where("listings.category_id = ?", f.CategoryID)
	}
	if s := strings.TrimSpace(f.Query); s != "" {
		p := containsPattern(s)
		q = q.Where(
			"(LOWER(listings.title) LIKE ? ESCAPE '"+likeEscape+"' OR LOWER(listings.content) LIKE ? ESCAPE '"+likeEscape+"')",
			p, p,
		)
	}
	return q
}

// CountListings returns the number of listings matching f.
func CountListings(ctx context.Context, db *gorm.DB, f ListingFilter) (int64, error) {
	var total int64
	err := applyListingFilter(db.WithContext(ctx).Model(&domain.Listing{}), f).Count(&total).Error
	return total, err
}

// ListListingsPage returns one page of listings matching f, newest first
// (date_posted DESC, id DESC). Author, category and ordered images are
// preloaded so callers can render cards without further queries.
func ListListingsPage(ctx context.Context, db *gorm.DB, f ListingFilter, offset, limit int) ([]domain.Listing, error) {
	var out []domain.Listing
	err := applyListingFilter(db.WithContext(ctx).Model(&domain.Listing{}), f).
		Preload("Author").
		Preload("Category").
		Preload("Images", orderedImages).
		Order("listings.date_posted desc").
		Order("listings.id desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// GetListing fetches the bare listing row.
func GetListing(ctx context.Context, db *gorm.DB, id uint64) (*domain.Listing, error) {
	var l domain.Listing
	if err := db.WithContext(ctx).First(&l, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &l, nil
}

// GetListingDetail fetches a listing with author, category and its images in
// upload order.
func GetListingDetail(ctx context.Context, db *gorm.DB, id uint64) (*domain.Listing, error) {
	var l domain.Listing
	err := db.WithContext(ctx).
		Preload("Author").
		Preload("Category").
		Preload("Images", orderedImages).
		First(&l, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// CreateListing inserts l. DatePosted defaults to now (UTC) when unset.
func CreateListing(ctx context.Context, db *gorm.DB, l *domain.Listing) error {
	if l.DatePosted.IsZero() {
		l.DatePosted = time.Now().UTC()
	}
	return db.WithContext(ctx).Omit("Author", "Category", "Images").Create(l).Error
}

// UpdateListingFields persists the editable columns of l. Returns ErrNotFound
// when no row matched.
func UpdateListingFields(ctx context.Context, db *gorm.DB, l *domain.Listing) error {
	res := db.WithContext(ctx).
		Model(&domain.Listing{ID: l.ID}).
		Updates(map[string]any{
			"title":       l.Title,
			"content":     l.Content,
			"category_id": l.CategoryID,
			"price":       l.Price,
			"is_sold":     l.IsSold,
			"updated_at":  time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteListing removes the listing row itself. Dependent rows are expected to
// be gone already (see DeleteConversationsForListing, DeleteAllListingImages).
func DeleteListing(ctx context.Context, db *gorm.DB, id uint64) error {
	res := db.WithContext(ctx).Delete(&domain.Listing{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func orderedImages(db *gorm.DB) *gorm.DB {
	return db.Order("uploaded_at asc").Order("id asc")
}
