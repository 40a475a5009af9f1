// Package handlers exposes the marketplace over HTTP.
//
// Handlers are transport-thin: they parse input, call application services,
// and translate results into HTTP responses (including conditional and
// replayed responses). Service contracts are declared here so tests can
// substitute fakes.
package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-market-backend/internal/domain"
	"github.com/tbourn/go-market-backend/internal/http/middleware"
	"github.com/tbourn/go-market-backend/internal/services"
	"github.com/tbourn/go-market-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// ListingService mutates listings.
type ListingService interface {
	Create(ctx context.Context, userID uint64, in services.ListingInput) (*services.WriteResult, error)
	Update(ctx context.Context, userID, listingID uint64, in services.ListingInput) (*services.WriteResult, error)
	Delete(ctx context.Context, userID, listingID uint64) error
}

// FeedService reads listings.
type FeedService interface {
	List(ctx context.Context, filters services.FeedFilters, page int) (*services.FeedPage, error)
	ListByAuthor(ctx context.Context, username string, page int) (*services.FeedPage, error)
	GetDetail(ctx context.Context, id uint64) (*services.ListingDetail, error)
}

// ConversationService runs buyer/seller messaging.
type ConversationService interface {
	Find(ctx context.Context, listingID, userID uint64) (*domain.Conversation, error)
	StartOrResume(ctx context.Context, listingID, userID uint64, content string) (*services.StartResult, error)
	PostMessage(ctx context.Context, conversationID, userID uint64, content string) (*domain.ConversationMessage, error)
	ListInbox(ctx context.Context, userID uint64) ([]services.InboxEntry, error)
	GetThread(ctx context.Context, conversationID, userID uint64) (*services.Thread, error)
}

// CategoryService lists and creates categories.
type CategoryService interface {
	List(ctx context.Context) ([]domain.Category, error)
	Create(ctx context.Context, name string) (*domain.Category, error)
}

//
// Handler wiring
//

// Options tunes handler behaviour.
type Options struct {
	// IdempotencyTTL is how long a stored create result can be replayed.
	IdempotencyTTL time.Duration
	// IsAdmin decides who may manage categories. Nil denies everyone.
	IsAdmin func(username string) bool
}

// Handlers groups the HTTP endpoints.
type Handlers struct {
	listings ListingService
	feed     FeedService
	convs    ConversationService
	cats     CategoryService
	opts     Options
}

// New constructs Handlers bound to the given services.
func New(listings ListingService, feed FeedService, convs ConversationService, cats CategoryService, opts Options) *Handlers {
	if opts.IdempotencyTTL <= 0 {
		opts.IdempotencyTTL = 24 * time.Hour
	}
	return &Handlers{listings: listings, feed: feed, convs: convs, cats: cats, opts: opts}
}

//
// Helpers
//

// pathID reads a positive numeric path parameter, answering 400 otherwise.
func pathID(c *gin.Context, name string) (uint64, bool) {
	id, valid := utils.ParseID(c.Param(name))
	if !valid {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, name+" must be a positive integer")
		return 0, false
	}
	return id, true
}

// currentUser returns the authenticated id. Routes using it sit behind
// middleware.RequireUser; a miss still answers 401.
func currentUser(c *gin.Context) (uint64, bool) {
	uid, found := middleware.UserID(c)
	if !found {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "authentication required")
	}
	return uid, found
}

// notModified sets a weak ETag built from a row count and the newest
// timestamp and reports whether If-None-Match already matches it.
func notModified(c *gin.Context, scope string, count int64, maxTS *time.Time) bool {
	etag := fmt.Sprintf(`W/"%s:%d:%d"`, scope, count, unixNano(maxTS))
	c.Header("ETag", etag)
	if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
		c.Status(http.StatusNotModified)
		return true
	}
	return false
}

func unixNano(ts *time.Time) int64 {
	if ts == nil {
		return 0
	}
	return ts.UnixNano()
}

// pageParam reads ?page=, treating missing or malformed values as 1.
func pageParam(c *gin.Context) int {
	page := utils.AtoiDefault(c.Query("page"), 1)
	if page < 1 {
		page = 1
	}
	return page
}
