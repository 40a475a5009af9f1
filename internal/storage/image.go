package storage

import (
	"bytes"
	"errors"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"math"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // registers the webp decoder
)

// MaxDimension is the bounding box edge stored images are fitted into.
const MaxDimension = 800

// MaxPixels caps the width*height an image header may declare before its
// pixels are decoded. A small compressed file can declare a huge canvas.
const MaxPixels = 89478485

var (
	// ErrNotAnImage is returned when the bytes cannot be decoded by any of
	// the registered image codecs.
	ErrNotAnImage = errors.New("not a decodable image")

	// ErrTooManyPixels is returned by FitWithin for images over MaxPixels.
	ErrTooManyPixels = errors.New("image exceeds pixel limit")
)

// WithinPixelLimit reports whether a w x h image may be decoded.
func WithinPixelLimit(w, h int) bool {
	return w > 0 && h > 0 && int64(w)*int64(h) <= MaxPixels
}

// Fitted is the outcome of FitWithin.
type Fitted struct {
	Data        []byte
	ContentType string
	Ext         string // including the leading dot
	Width       int
	Height      int
	Resized     bool
}

// Inspect decodes only the header of data and reports its dimensions and
// detected format.
func Inspect(data []byte) (format string, width, height int, err error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", 0, 0, ErrNotAnImage
	}
	return format, cfg.Width, cfg.Height, nil
}

// FitWithin returns data unchanged when both sides are within box pixels.
// Otherwise the image is scaled down, preserving aspect ratio, so its larger
// side equals box, and re-encoded in its original format. WebP has no encoder
// here and is re-encoded as PNG.
func FitWithin(data []byte, box int) (*Fitted, error) {
	format, w, h, err := Inspect(data)
	if err != nil {
		return nil, err
	}
	out := &Fitted{
		Data:        data,
		ContentType: contentTypeFor(format),
		Ext:         extFor(format),
		Width:       w,
		Height:      h,
	}
	if w <= box && h <= box {
		return out, nil
	}
	if !WithinPixelLimit(w, h) {
		return nil, ErrTooManyPixels
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, ErrNotAnImage
	}
	nw, nh := fitDims(w, h, box)
	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)

	var buf bytes.Buffer
	switch format {
	case "jpeg":
		err = jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 90})
	case "gif":
		err = gif.Encode(&buf, dst, nil)
	default:
		err = png.Encode(&buf, dst)
		format = "png"
	}
	if err != nil {
		return nil, err
	}

	out.Data = buf.Bytes()
	out.ContentType = contentTypeFor(format)
	out.Ext = extFor(format)
	out.Width, out.Height = nw, nh
	out.Resized = true
	return out, nil
}

// fitDims scales (w, h) so the larger side equals box.
func fitDims(w, h, box int) (int, int) {
	if w >= h {
		return box, max(1, int(math.Round(float64(h)*float64(box)/float64(w))))
	}
	return max(1, int(math.Round(float64(w)*float64(box)/float64(h)))), box
}

func contentTypeFor(format string) string {
	switch format {
	case "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	case "webp":
		return "image/webp"
	}
	return "application/octet-stream"
}

func extFor(format string) string {
	switch format {
	case "jpeg":
		return ".jpg"
	case "png", "gif", "webp":
		return "." + format
	}
	return ""
}
