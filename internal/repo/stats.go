// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate/statistics queries used
// for conditional responses (ETag generation) in the HTTP layer.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-market-backend/internal/domain"
)

// ListingsStats returns the number of listings matching f and the greatest
// UpdatedAt among them. When nothing matches, count is 0 and maxUpdatedAt is
// nil.
func ListingsStats(ctx context.Context, db *gorm.DB, f ListingFilter) (count int64, maxUpdatedAt *time.Time, err error) {
	q := applyListingFilter(db.WithContext(ctx).Model(&domain.Listing{}), f)

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest updated_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		UpdatedAt time.Time
	}
	q = applyListingFilter(db.WithContext(ctx).Model(&domain.Listing{}), f)
	if err = q.Select("listings.updated_at").Order("listings.updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.UpdatedAt, nil
}

// CategoriesStats returns the number of categories and the greatest
// UpdatedAt among them.
func CategoriesStats(ctx context.Context, db *gorm.DB) (count int64, maxUpdatedAt *time.Time, err error) {
	if err = db.WithContext(ctx).Model(&domain.Category{}).Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}
	var row struct {
		UpdatedAt time.Time
	}
	if err = db.WithContext(ctx).Model(&domain.Category{}).
		Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.UpdatedAt, nil
}

// InboxStats returns how many conversations userID belongs to and the latest
// conversation activity among them.
func InboxStats(ctx context.Context, db *gorm.DB, userID uint64) (count int64, maxUpdatedAt *time.Time, err error) {
	base := func() *gorm.DB {
		return db.WithContext(ctx).
			Model(&domain.Conversation{}).
			Joins("JOIN "+membersTable+" cm ON cm.conversation_id = conversations.id AND cm.user_id = ?", userID)
	}

	if err = base().Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	var row struct {
		UpdatedAt time.Time
	}
	if err = base().Select("conversations.updated_at").Order("conversations.updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.UpdatedAt, nil
}
