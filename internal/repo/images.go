package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-market-backend/internal/domain"
)

// CreateListingImage inserts img. UploadedAt is set once here when unset.
func CreateListingImage(ctx context.Context, db *gorm.DB, img *domain.ListingImage) error {
	if img.UploadedAt.IsZero() {
		img.UploadedAt = time.Now().UTC()
	}
	return db.WithContext(ctx).Create(img).Error
}

// ListListingImages returns the images of a listing in upload order.
func ListListingImages(ctx context.Context, db *gorm.DB, listingID uint64) ([]domain.ListingImage, error) {
	var out []domain.ListingImage
	err := orderedImages(db.WithContext(ctx).Where("listing_id = ?", listingID)).Find(&out).Error
	return out, err
}

// CountListingImages returns how many images a listing currently has.
func CountListingImages(ctx context.Context, db *gorm.DB, listingID uint64) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.ListingImage{}).Where("listing_id = ?", listingID).Count(&n).Error
	return n, err
}

// DeleteListingImages removes the given image ids of one listing and returns
// the number of rows removed. Ids that belong to other listings are ignored.
func DeleteListingImages(ctx context.Context, db *gorm.DB, listingID uint64, ids []uint64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := db.WithContext(ctx).
		Where("listing_id = ? AND id IN ?", listingID, ids).
		Delete(&domain.ListingImage{})
	return res.RowsAffected, res.Error
}

// DeleteAllListingImages removes every image row of a listing.
func DeleteAllListingImages(ctx context.Context, db *gorm.DB, listingID uint64) error {
	return db.WithContext(ctx).Where("listing_id = ?", listingID).Delete(&domain.ListingImage{}).Error
}
