// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// compression, identity, idempotency, rate limiting, CORS and security
// headers.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-market-backend/docs"
	"github.com/tbourn/go-market-backend/internal/config"
	"github.com/tbourn/go-market-backend/internal/domain"
	"github.com/tbourn/go-market-backend/internal/http/handlers"
	"github.com/tbourn/go-market-backend/internal/http/middleware"
	"github.com/tbourn/go-market-backend/internal/repo"
	"github.com/tbourn/go-market-backend/internal/services"
	"github.com/tbourn/go-market-backend/internal/storage"
)

// feedRepoShim adapts the repository free functions to services.FeedRepo.
type feedRepoShim struct{}

func (feedRepoShim) CountListings(ctx context.Context, db *gorm.DB, f repo.ListingFilter) (int64, error) {
	return repo.CountListings(ctx, db, f)
}

func (feedRepoShim) ListListingsPage(ctx context.Context, db *gorm.DB, f repo.ListingFilter, offset, limit int) ([]domain.Listing, error) {
	return repo.ListListingsPage(ctx, db, f, offset, limit)
}

func (feedRepoShim) GetListingDetail(ctx context.Context, db *gorm.DB, id uint64) (*domain.Listing, error) {
	return repo.GetListingDetail(ctx, db, id)
}

func (feedRepoShim) GetUserByUsername(ctx context.Context, db *gorm.DB, username string) (*domain.User, error) {
	return repo.GetUserByUsername(ctx, db, username)
}

func (feedRepoShim) ListCategories(ctx context.Context, db *gorm.DB) ([]domain.Category, error) {
	return repo.ListCategories(ctx, db)
}

var corsAllowHeaders = []string{
	"Origin", "Content-Type", "Accept", "Authorization", "If-None-Match",
	middleware.HeaderUserID, middleware.HeaderUsername, middleware.HeaderIdempotencyKey,
}

var corsExposeHeaders = []string{"X-Request-ID", "Content-Length", "ETag", "Location", "Idempotency-Replayed"}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine and mounts the public API under cfg.APIBasePath.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter (listing forms carry images)
//  6. Gzip for JSON responses
//  7. Metrics
//  8. Authenticate (identity is needed by 9 and 10)
//  9. Idempotency validator (before rate limiter to allow bypass on replay)
//  10. Rate limiter (per user/IP, bypass on replay)
//  11. CORS and Security headers
func RegisterRoutes(r *gin.Engine, db *gorm.DB, store storage.Store, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{"X-API-Key"},
	}))
	r.Use(middleware.Recovery())
	r.Use(limitBody(cfg.MaxBodyBytes))
	r.Use(gzip.Gzip(gzip.DefaultCompression,
		gzip.WithExcludedPaths([]string{"/metrics", cfg.Storage.MediaURL})))

	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.Use(middleware.Authenticate(middleware.AuthOptions{
		JWTSecret: cfg.Auth.JWTSecret,
		Mirror: func(ctx context.Context, id uint64, username string) error {
			_, err := repo.EnsureUser(ctx, db, id, username)
			if errors.Is(err, repo.ErrUsernameTaken) {
				return fmt.Errorf("%w: %w", middleware.ErrIdentityConflict, err)
			}
			return err
		},
	}))

	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{MaxLen: 200},
		func(ctx context.Context, userID uint64, scope, key string, now time.Time) (bool, error) {
			rec, err := repo.GetIdempotency(ctx, db, userID, scope, key, now)
			if errors.Is(err, repo.ErrNotFound) {
				return false, nil
			}
			return rec != nil, err
		},
	))

	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())
	r.Use(rl.Handler())

	r.Use(corsMiddleware(cfg.CORS)...)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = cfg.APIBasePath
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}
	if ls, ok := store.(*storage.LocalStore); ok && cfg.Storage.MediaURL != "/" {
		r.Static(cfg.Storage.MediaURL, ls.Root)
	}

	// Dependency injection: services ← repo/db/store
	h := handlers.New(
		services.NewListingService(db, store),
		services.NewFeedService(db, feedRepoShim{}, store),
		services.NewConversationService(db),
		services.NewCategoryService(db),
		handlers.Options{
			IdempotencyTTL: cfg.IdempotencyTTL,
			IsAdmin:        cfg.Auth.IsAdmin,
		},
	)

	api := groupWithPrefix(r, cfg.APIBasePath)
	{
		// Public reads
		api.GET("/listings", h.ListListings)
		api.GET("/listings/:id", h.GetListing)
		api.GET("/users/:username/listings", h.ListUserListings)
		api.GET("/categories", h.ListCategories)
	}

	authed := api.Group("", middleware.RequireUser())
	{
		authed.POST("/listings", h.CreateListing)
		authed.PUT("/listings/:id", h.UpdateListing)
		authed.DELETE("/listings/:id", h.DeleteListing)
		authed.POST("/categories", h.CreateCategory)
	}

	// Conversations are private to their members; keep them out of shared caches.
	private := authed.Group("", middleware.SecurityHeaders(middleware.SecurityOptions{NoStore: true}))
	{
		private.GET("/listings/:id/conversation", h.GetListingConversation)
		private.POST("/listings/:id/conversation", h.StartConversation)
		private.GET("/conversations", h.ListInbox)
		private.GET("/conversations/:id", h.GetConversation)
		private.POST("/conversations/:id/messages", h.PostMessage)
	}
}

// corsMiddleware allows every origin when none are configured and otherwise
// echoes allowlisted origins.
func corsMiddleware(cfg config.CORSConfig) []gin.HandlerFunc {
	base := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     corsAllowHeaders,
		ExposeHeaders:    corsExposeHeaders,
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}

	if len(cfg.AllowedOrigins) == 0 {
		base.AllowAllOrigins = true
		return []gin.HandlerFunc{
			// ACAO: * even for requests without an Origin header.
			func(c *gin.Context) {
				c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
				c.Next()
			},
			cors.New(base),
		}
	}

	allowed := make(map[string]struct{}, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		allowed[o] = struct{}{}
	}
	base.AllowOrigins = cfg.AllowedOrigins
	return []gin.HandlerFunc{
		func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		},
		cors.New(base),
	}
}

// limitBody caps the request body at maxBytes using http.MaxBytesReader.
// Values <= 0 disable the cap.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if maxBytes > 0 {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
