package services

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/gorm"

	"github.com/tbourn/go-market-backend/internal/domain"
	"github.com/tbourn/go-market-backend/internal/repo"
)

// maxCategoryName matches the categories.name column width.
const maxCategoryName = 120

var spaceRun = regexp.MustCompile(`\s+`)

// CategoryService lists and creates categories.
type CategoryService struct {
	DB *gorm.DB

	// Locale drives title casing of new names.
	Locale language.Tag
}

// NewCategoryService wires a CategoryService.
func NewCategoryService(db *gorm.DB) *CategoryService {
	return &CategoryService{DB: db, Locale: language.Und}
}

// List returns every category ordered by name.
func (s *CategoryService) List(ctx context.Context) ([]domain.Category, error) {
	ctx, span := otel.Tracer("services/CategoryService").Start(ctx, "List")
	defer span.End()
	return repo.ListCategories(ctx, s.DB)
}

// Create normalizes name ("  old   books " → "Old Books") and inserts it.
func (s *CategoryService) Create(ctx context.Context, name string) (*domain.Category, error) {
	ctx, span := otel.Tracer("services/CategoryService").Start(ctx, "Create")
	defer span.End()

	name = s.normalize(name)
	ve := &ValidationError{}
	switch {
	case name == "":
		ve.Add("name", "required", "name is required", ErrInvalidField)
	case utf8.RuneCountInString(name) > maxCategoryName:
		ve.Add("name", "max", "name must be at most 120 characters", ErrInvalidField)
	}
	if err := ve.OrNil(); err != nil {
		return nil, err
	}

	c, err := repo.CreateCategory(ctx, s.DB, name)
	if errors.Is(err, repo.ErrDuplicate) {
		ve.Add("name", "unique", "a category with this name already exists", ErrCategoryExists)
		return nil, ve
	}
	return c, err
}

func (s *CategoryService) normalize(name string) string {
	name = spaceRun.ReplaceAllString(strings.TrimSpace(name), " ")
	if name == "" {
		return ""
	}
	return cases.Title(s.Locale).String(name)
}
