package services

import (
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/tbourn/go-market-backend/internal/storage"
)

// Listing and image limits.
const (
	MaxImages       = 5
	MaxImageBytes   = 5 * 1024 * 1024
	maxPriceDigits  = 10 // integer digits allowed by decimal(12,2)
	priceDecimals   = 2
	imagesField     = "images"
	priceField      = "price"
	categoryIDField = "category_id"
)

var (
	allowedExtensions = map[string]struct{}{"jpg": {}, "jpeg": {}, "png": {}, "gif": {}, "webp": {}}
	allowedMIMETypes  = map[string]struct{}{"image/jpeg": {}, "image/png": {}, "image/gif": {}, "image/webp": {}}
	maxPrice          = decimal.New(1, maxPriceDigits)
)

// listingFields is the validator view of the scalar listing input.
type listingFields struct {
	Title      string `json:"title" validate:"required,max=100"`
	Content    string `json:"content" validate:"required"`
	CategoryID uint64 `json:"category_id" validate:"required"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateFields runs the struct rules and the price rule, adding every
// failure to ve. Fields that already failed are not checked again.
func validateFields(in ListingInput, ve *ValidationError) {
	err := validate.Struct(listingFields{Title: in.Title, Content: in.Content, CategoryID: in.CategoryID})
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			if ve.Has(fe.Field()) {
				continue
			}
			ve.Add(fe.Field(), fe.Tag(), fieldMessage(fe), ErrInvalidField)
		}
	}

	switch {
	case ve.Has(priceField):
	case in.Price.IsNegative():
		ve.Add(priceField, "min", "price must be greater than or equal to 0", ErrInvalidField)
	case !in.Price.Equal(in.Price.Round(priceDecimals)):
		ve.Add(priceField, "decimals", fmt.Sprintf("price must have at most %d decimal places", priceDecimals), ErrInvalidField)
	case in.Price.GreaterThanOrEqual(maxPrice):
		ve.Add(priceField, "max", fmt.Sprintf("price must have at most %d digits before the decimal point", maxPriceDigits), ErrInvalidField)
	}
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		if fe.Field() == categoryIDField {
			return "category is required"
		}
		return fe.Field() + " is required"
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	}
	return fe.Field() + " is invalid"
}

// ValidateUpload applies the per-file rules to a new upload, in order: size,
// extension, declared content type, that the header decodes as an image, and
// finally the pixel area the header declares. It returns a message naming the file and the first failing sentinel.
func ValidateUpload(u *Upload) (string, error) {
	if u.Size > MaxImageBytes || int64(len(u.Data)) > MaxImageBytes {
		return fmt.Sprintf("file %q is too large (max 5 MB)", u.Filename), ErrFileTooLarge
	}

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(u.Filename), "."))
	if _, ok := allowedExtensions[ext]; !ok {
		if ext == "" {
			return fmt.Sprintf("file %q has no extension; use JPG, PNG, GIF or WebP", u.Filename), ErrUnsupportedFormat
		}
		return fmt.Sprintf("format .%s is not supported; use JPG, PNG, GIF or WebP", strings.ToUpper(ext)), ErrUnsupportedFormat
	}

	mt, _, err := mime.ParseMediaType(u.ContentType)
	if err != nil {
		mt = ""
	}
	if _, ok := allowedMIMETypes[strings.ToLower(mt)]; !ok {
		return fmt.Sprintf("file %q is not a valid image", u.Filename), ErrInvalidImageType
	}

	_, w, h, err := storage.Inspect(u.Data)
	if err != nil {
		return fmt.Sprintf("file %q is not a valid image", u.Filename), ErrInvalidImageType
	}
	if !storage.WithinPixelLimit(w, h) {
		return fmt.Sprintf("image %q is %dx%d pixels; at most %d pixels are allowed", u.Filename, w, h, storage.MaxPixels), ErrImageDimensions
	}
	return "", nil
}

// imageFieldName names the slot of the i-th image edit.
func imageFieldName(i int) string { return fmt.Sprintf("%s[%d]", imagesField, i) }

func imageCode(err error) string {
	switch {
	case errors.Is(err, ErrFileTooLarge):
		return "file_too_large"
	case errors.Is(err, ErrUnsupportedFormat):
		return "unsupported_format"
	case errors.Is(err, ErrInvalidImageType):
		return "invalid_image_type"
	case errors.Is(err, ErrImageDimensions):
		return "image_too_large"
	case errors.Is(err, ErrTooManyImages):
		return "too_many_images"
	}
	return "invalid"
}
