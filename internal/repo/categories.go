package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/go-market-backend/internal/domain"
)

// ListCategories returns all categories ordered by name.
func ListCategories(ctx context.Context, db *gorm.DB) ([]domain.Category, error) {
	var out []domain.Category
	err := db.WithContext(ctx).Order("name asc").Order("id asc").Find(&out).Error
	return out, err
}

// GetCategory fetches a category by id or returns ErrNotFound.
func GetCategory(ctx context.Context, db *gorm.DB, id uint64) (*domain.Category, error) {
	var c domain.Category
	if err := db.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateCategory inserts a category and returns ErrDuplicate when the name is
// already taken.
func CreateCategory(ctx context.Context, db *gorm.DB, name string) (*domain.Category, error) {
	c := &domain.Category{Name: name}
	if err := db.WithContext(ctx).Create(c).Error; err != nil {
		if isDuplicate(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return c, nil
}
