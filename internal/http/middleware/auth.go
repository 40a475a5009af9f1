// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file resolves the caller identity. The marketplace does not manage
// credentials; an upstream identity provider issues HS256 bearer tokens with
// the claims "uid" and "username". When no signing secret is configured the
// development headers X-User-ID and X-Username are trusted instead.
//
// Authenticate() never rejects anonymous requests on its own; public routes
// (feed, listing detail) stay reachable. RequireUser() guards the routes that
// need an identity.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	ctxKeyUserID   = "userID"
	ctxKeyUsername = "username"

	// HeaderUserID and HeaderUsername carry the development identity.
	HeaderUserID   = "X-User-ID"
	HeaderUsername = "X-Username"
)

// Claims is the bearer token payload.
type Claims struct {
	UserID   uint64 `json:"uid"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// UserMirror persists an authenticated identity locally (e.g. an upsert into
// the users table).
type UserMirror func(ctx context.Context, id uint64, username string) error

// AuthOptions configures Authenticate.
type AuthOptions struct {
	// JWTSecret verifies HS256 tokens. Empty enables the development headers.
	JWTSecret string
	// Mirror is called once per authenticated request. Optional.
	Mirror UserMirror
}

var (
	errMissingIdentity = errors.New("missing identity")
	errBadIdentity     = errors.New("invalid identity")
)

// ErrIdentityConflict is returned by a UserMirror when the identity cannot be
// stored because it clashes with another local user (e.g. a username held by
// a different id). Authenticate answers 409 instead of 500.
var ErrIdentityConflict = errors.New("identity conflicts with an existing user")

// Authenticate resolves the caller and stores "userID" (uint64) and
// "username" in the Gin context. A present but invalid credential yields 401.
func Authenticate(opts AuthOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		var (
			uid  uint64
			name string
			err  error
		)
		if opts.JWTSecret != "" {
			uid, name, err = fromBearer(c.GetHeader("Authorization"), opts.JWTSecret)
		} else {
			uid, name, err = fromDevHeaders(c.GetHeader(HeaderUserID), c.GetHeader(HeaderUsername))
		}
		if errors.Is(err, errMissingIdentity) {
			c.Next()
			return
		}
		if err != nil {
			unauthorized(c, "invalid credentials")
			return
		}

		if opts.Mirror != nil {
			if err := opts.Mirror(c.Request.Context(), uid, name); err != nil {
				if errors.Is(err, ErrIdentityConflict) {
					LoggerFrom(c).Warn().Err(err).Uint64("uid", uid).Str("username", name).Msg("identity conflict")
					c.AbortWithStatusJSON(http.StatusConflict, gin.H{
						"request_id": c.Writer.Header().Get(requestIDHeader),
						"code":       "identity_conflict",
						"message":    "username is already used by another account",
					})
					return
				}
				LoggerFrom(c).Error().Err(err).Uint64("uid", uid).Msg("mirror user failed")
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"request_id": c.Writer.Header().Get(requestIDHeader),
					"code":       "internal_error",
					"message":    "internal server error",
				})
				return
			}
		}

		c.Set(ctxKeyUserID, uid)
		c.Set(ctxKeyUsername, name)
		c.Next()
	}
}

// RequireUser rejects requests without an identity with 401.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := UserID(c); !ok {
			unauthorized(c, "authentication required")
			return
		}
		c.Next()
	}
}

// UserID returns the authenticated user id.
func UserID(c *gin.Context) (uint64, bool) {
	v, ok := c.Get(ctxKeyUserID)
	if !ok {
		return 0, false
	}
	id, _ := v.(uint64)
	return id, id != 0
}

// Username returns the authenticated username, or "".
func Username(c *gin.Context) string {
	v, _ := c.Get(ctxKeyUsername)
	s, _ := v.(string)
	return s
}

// SignToken issues a token Authenticate accepts. Used by tests and local tools.
func SignToken(secret string, uid uint64, username string) (string, error) {
	claims := Claims{
		UserID:   uid,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: strconv.FormatUint(uid, 10),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func fromBearer(authz, secret string) (uint64, string, error) {
	authz = strings.TrimSpace(authz)
	if authz == "" {
		return 0, "", errMissingIdentity
	}
	const prefix = "bearer "
	if len(authz) <= len(prefix) || !strings.EqualFold(authz[:len(prefix)], prefix) {
		return 0, "", errBadIdentity
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(strings.TrimSpace(authz[len(prefix):]), claims,
		func(*jwt.Token) (any, error) { return []byte(secret), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		return 0, "", errBadIdentity
	}
	name := strings.TrimSpace(claims.Username)
	if claims.UserID == 0 || name == "" {
		return 0, "", errBadIdentity
	}
	return claims.UserID, name, nil
}

func fromDevHeaders(rawID, rawName string) (uint64, string, error) {
	rawID = strings.TrimSpace(rawID)
	if rawID == "" {
		return 0, "", errMissingIdentity
	}
	id, err := strconv.ParseUint(rawID, 10, 64)
	if err != nil || id == 0 {
		return 0, "", errBadIdentity
	}
	name := strings.TrimSpace(rawName)
	if name == "" {
		name = "user" + rawID
	}
	return id, name, nil
}

func unauthorized(c *gin.Context, msg string) {
	c.Header("WWW-Authenticate", `Bearer realm="market"`)
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"request_id": c.Writer.Header().Get(requestIDHeader),
		"code":       "unauthorized",
		"message":    msg,
	})
}
