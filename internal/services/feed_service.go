// Package services – FeedService
//
// FeedService serves the read side of listings: the public feed with search
// and category filters, an author's page (sold listings included) and the
// listing detail. Feed pages hold five listings, newest first.
package services

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/tbourn/go-market-backend/internal/domain"
	"github.com/tbourn/go-market-backend/internal/repo"
)

// FeedPageSize is the number of listings per feed page.
const FeedPageSize = 5

// FeedRepo is the read contract FeedService needs.
type FeedRepo interface {
	CountListings(ctx context.Context, db *gorm.DB, f repo.ListingFilter) (int64, error)
	ListListingsPage(ctx context.Context, db *gorm.DB, f repo.ListingFilter, offset, limit int) ([]domain.Listing, error)
	GetListingDetail(ctx context.Context, db *gorm.DB, id uint64) (*domain.Listing, error)
	GetUserByUsername(ctx context.Context, db *gorm.DB, username string) (*domain.User, error)
	ListCategories(ctx context.Context, db *gorm.DB) ([]domain.Category, error)
}

// URLResolver turns a storage path into a public URL.
type URLResolver interface {
	URL(path string) string
}

// FeedFilters are the raw query inputs of the feed. Category is kept as text
// so that non-numeric values can be ignored rather than rejected.
type FeedFilters struct {
	Query    string
	Category string
}

// Pagination describes the page that was served.
type Pagination struct {
	Page       int   `json:"page"        example:"1"`
	PageSize   int   `json:"page_size"   example:"5"`
	Total      int64 `json:"total"       example:"12"`
	TotalPages int   `json:"total_pages" example:"3"`
	HasNext    bool  `json:"has_next"    example:"true"`
	HasPrev    bool  `json:"has_prev"    example:"false"`
}

// FeedItem is one listing card.
type FeedItem struct {
	ID           uint64          `json:"id"`
	Title        string          `json:"title"`
	Content      string          `json:"content"`
	Price        decimal.Decimal `json:"price"`
	IsSold       bool            `json:"is_sold"`
	DatePosted   time.Time       `json:"date_posted"`
	AuthorID     uint64          `json:"author_id"`
	Author       string          `json:"author"`
	CategoryID   uint64          `json:"category_id"`
	Category     string          `json:"category"`
	ThumbnailURL string          `json:"thumbnail_url,omitempty"`
}

// FeedPage is one page of the feed along with the data a listing page renders
// next to it.
type FeedPage struct {
	Items      []FeedItem        `json:"items"`
	Categories []domain.Category `json:"categories"`
	Query      string            `json:"query,omitempty"`
	CategoryID uint64            `json:"category_id,omitempty"`
	Author     string            `json:"author,omitempty"`
	Pagination Pagination        `json:"pagination"`
}

// ImageView is a listing image as served to clients.
type ImageView struct {
	ID          uint64    `json:"id"`
	URL         string    `json:"url"`
	ContentType string    `json:"content_type"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

// ListingDetail is the full view of one listing.
type ListingDetail struct {
	FeedItem
	UpdatedAt  time.Time   `json:"updated_at"`
	Images     []ImageView `json:"images"`
	ImageCount int         `json:"image_count"`
}

// FeedService reads listings.
type FeedService struct {
	DB    *gorm.DB
	Repo  FeedRepo
	Media URLResolver
}

// NewFeedService wires a FeedService.
func NewFeedService(db *gorm.DB, r FeedRepo, media URLResolver) *FeedService {
	return &FeedService{DB: db, Repo: r, Media: media}
}

// ParseCategory returns the category id encoded in raw, or 0 when raw is not
// a positive decimal integer. Such values are ignored by the feed.
func ParseCategory(raw string) uint64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	for _, r := range raw {
		if r < '0' || r > '9' {
			return 0
		}
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// Filter converts raw feed inputs into a repository filter.
func (f FeedFilters) Filter() repo.ListingFilter {
	return repo.ListingFilter{
		Query:      strings.TrimSpace(f.Query),
		CategoryID: ParseCategory(f.Category),
	}
}

// List returns one page of unsold listings matching filters.
func (s *FeedService) List(ctx context.Context, filters FeedFilters, page int) (*FeedPage, error) {
	ctx, span := otel.Tracer("services/FeedService").Start(ctx, "List")
	defer span.End()

	f := filters.Filter()
	span.SetAttributes(
		attribute.String("feed.query", f.Query),
		attribute.Int64("feed.category_id", int64(f.CategoryID)),
		attribute.Int("feed.page", page),
	)

	out, err := s.page(ctx, f, page)
	if err != nil {
		return nil, err
	}
	out.Query = f.Query
	out.CategoryID = f.CategoryID
	return out, nil
}

// ListByAuthor returns one page of every listing by username, sold ones
// included.
func (s *FeedService) ListByAuthor(ctx context.Context, username string, page int) (*FeedPage, error) {
	ctx, span := otel.Tracer("services/FeedService").Start(ctx, "ListByAuthor")
	defer span.End()

	u, err := s.Repo.GetUserByUsername(ctx, s.DB, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	out, err := s.page(ctx, repo.ListingFilter{AuthorID: u.ID, IncludeSold: true}, page)
	if err != nil {
		return nil, err
	}
	out.Author = u.Username
	return out, nil
}

// GetDetail returns a listing with its ordered images.
func (s *FeedService) GetDetail(ctx context.Context, id uint64) (*ListingDetail, error) {
	ctx, span := otel.Tracer("services/FeedService").Start(ctx, "GetDetail")
	defer span.End()
	span.SetAttributes(attribute.Int64("listing.id", int64(id)))

	l, err := s.Repo.GetListingDetail(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrListingNotFound
		}
		return nil, err
	}

	d := &ListingDetail{
		FeedItem:   s.item(l),
		UpdatedAt:  l.UpdatedAt,
		Images:     make([]ImageView, 0, len(l.Images)),
		ImageCount: len(l.Images),
	}
	for _, img := range l.Images {
		d.Images = append(d.Images, ImageView{
			ID:          img.ID,
			URL:         s.url(img.Path),
			ContentType: img.ContentType,
			Width:       img.Width,
			Height:      img.Height,
			UploadedAt:  img.UploadedAt,
		})
	}
	return d, nil
}

func (s *FeedService) page(ctx context.Context, f repo.ListingFilter, page int) (*FeedPage, error) {
	if page < 1 {
		page = 1
	}

	total, err := s.Repo.CountListings(ctx, s.DB, f)
	if err != nil {
		return nil, err
	}
	pages := int((total + FeedPageSize - 1) / FeedPageSize)
	if page > 1 && page > pages {
		return nil, ErrPageOutOfRange
	}

	cats, err := s.Repo.ListCategories(ctx, s.DB)
	if err != nil {
		return nil, err
	}

	out := &FeedPage{
		Items:      []FeedItem{},
		Categories: cats,
		Pagination: Pagination{
			Page:       page,
			PageSize:   FeedPageSize,
			Total:      total,
			TotalPages: pages,
			HasNext:    page < pages,
			HasPrev:    page > 1,
		},
	}
	if total == 0 {
		return out, nil
	}

	rows, err := s.Repo.ListListingsPage(ctx, s.DB, f, (page-1)*FeedPageSize, FeedPageSize)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		out.Items = append(out.Items, s.item(&rows[i]))
	}
	return out, nil
}

// item renders a listing card. The thumbnail is the earliest uploaded image.
func (s *FeedService) item(l *domain.Listing) FeedItem {
	it := FeedItem{
		ID:         l.ID,
		Title:      l.Title,
		Content:    l.Content,
		Price:      l.Price,
		IsSold:     l.IsSold,
		DatePosted: l.DatePosted,
		AuthorID:   l.AuthorID,
		Author:     l.Author.Username,
		CategoryID: l.CategoryID,
		Category:   l.Category.Name,
	}
	if len(l.Images) > 0 {
		it.ThumbnailURL = s.url(l.Images[0].Path)
	}
	return it
}

func (s *FeedService) url(path string) string {
	if s.Media == nil {
		return path
	}
	return s.Media.URL(path)
}
