// Package services defines the business logic for listings, the public feed,
// categories and buyer/seller conversations. This file centralizes
// service-level error values so that they can be consistently returned by
// service methods and checked by callers.
//
// Translation into user-facing messages or HTTP status codes is performed at
// the handler layer.
package services

import (
	"errors"
	"strings"
)

// Lookup errors.
var (
	// ErrListingNotFound indicates that the requested listing does not exist.
	ErrListingNotFound = errors.New("listing not found")

	// ErrUserNotFound indicates that no user has the requested username.
	ErrUserNotFound = errors.New("user not found")

	// ErrConversationNotFound indicates that the requested conversation does
	// not exist.
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrPageOutOfRange is returned for a page number past the last page.
	ErrPageOutOfRange = errors.New("page out of range")
)

// Authorization errors.
var (
	// ErrForbidden is returned when the actor is not the listing's author.
	ErrForbidden = errors.New("not the author of this listing")

	// ErrNotAMember is returned when the actor is not one of the two members
	// of a conversation.
	ErrNotAMember = errors.New("not a member of this conversation")

	// ErrSelfConversation is returned when an author tries to contact
	// themselves about their own listing.
	ErrSelfConversation = errors.New("cannot start a conversation on your own listing")
)

// Validation errors. They are reported wrapped in a *ValidationError.
var (
	ErrTooManyImages     = errors.New("too many images")
	ErrFileTooLarge      = errors.New("file too large")
	ErrUnsupportedFormat = errors.New("unsupported image format")
	ErrInvalidImageType  = errors.New("invalid image type")
	ErrImageDimensions   = errors.New("image dimensions too large")
	ErrInvalidField      = errors.New("invalid field")
	ErrInvalidCategory   = errors.New("category does not exist")
	ErrEmptyMessage      = errors.New("message is empty")
	ErrCategoryExists    = errors.New("category already exists")
	ErrInvalidImageEdit  = errors.New("invalid image edit")
)

// FieldError is one field-level validation failure.
type FieldError struct {
	Field   string `json:"field" example:"title"`
	Code    string `json:"code" example:"required"`
	Message string `json:"message" example:"title is required"`
	Err     error  `json:"-"`
}

// ValidationError collects every field-level failure of one request.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Fields) == 0 {
		return "validation failed"
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Unwrap exposes the sentinel behind each field so errors.Is works on the
// aggregate.
func (e *ValidationError) Unwrap() []error {
	out := make([]error, 0, len(e.Fields))
	for _, f := range e.Fields {
		if f.Err != nil {
			out = append(out, f.Err)
		}
	}
	return out
}

// Add appends a failure.
func (e *ValidationError) Add(field, code, msg string, err error) {
	e.Fields = append(e.Fields, FieldError{Field: field, Code: code, Message: msg, Err: err})
}

// Has reports whether field has at least one failure.
func (e *ValidationError) Has(field string) bool {
	for _, f := range e.Fields {
		if f.Field == field {
			return true
		}
	}
	return false
}

// OrNil returns e when it holds failures and nil otherwise.
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}
