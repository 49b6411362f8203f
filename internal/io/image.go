package ioutils

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	_ "image/png" // PNG decoder registration
	"net/http"

	"golang.org/x/image/draw"
)

// CoverOptions controls how cover art is prepared for a destination
// (embedded tag or folder file).
type CoverOptions struct {
	// Resize scales the image down to fit within MaxSize x MaxSize.
	Resize  bool
	MaxSize int

	// JPEG re-encodes the image as JPEG even when no resize happens.
	JPEG bool
}

// ImageService provides image processing operations for cover art.
//
// Example usage:
//
//	svc := NewImageService()
//	cover, err := svc.Prepare(ctx, raw, CoverOptions{Resize: true, MaxSize: 1000, JPEG: true})
type ImageService struct {
	quality int
}

// NewImageService creates a new ImageService that encodes JPEG at quality 90.
func NewImageService() *ImageService {
	return &ImageService{quality: 90}
}

// Prepare applies opts to data in one decode/encode pass.
//
// When neither a resize nor a conversion is needed the input is returned
// unchanged.
func (s *ImageService) Prepare(ctx context.Context, data []byte, opts CoverOptions) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !opts.Resize && (!opts.JPEG || MimeType(data) == "image/jpeg") {
		return data, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	if opts.Resize && opts.MaxSize > 0 {
		width, height := fitWithin(bounds.Dx(), bounds.Dy(), opts.MaxSize, opts.MaxSize)
		if width != bounds.Dx() || height != bounds.Dy() {
			dst := image.NewRGBA(image.Rect(0, 0, width, height))
			draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
			img = dst
		} else if !opts.JPEG || MimeType(data) == "image/jpeg" {
			return data, nil
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: s.quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MimeType sniffs the image type of data, e.g. "image/jpeg" or "image/png".
func MimeType(data []byte) string {
	return http.DetectContentType(data)
}

// fitWithin scales width x height down to fit maxWidth x maxHeight,
// keeping the aspect ratio.
func fitWithin(width, height, maxWidth, maxHeight int) (int, int) {
	if width <= maxWidth && height <= maxHeight {
		return width, height
	}
	ratio := float64(width) / float64(height)
	if float64(maxWidth)/float64(maxHeight) > ratio {
		// Height is the limiting factor
		return max(1, int(float64(maxHeight)*ratio)), maxHeight
	}
	// Width is the limiting factor
	return maxWidth, max(1, int(float64(maxWidth)/ratio))
}
