//go:build govips && cgo

package transform

import (
	"context"
	"fmt"

	"github.com/davidbyttow/govips/v2/vips"
	"github.com/dunamismax/shrinkit/internal/domain"
)

type govipsEngine struct {
	maxPixels int
}

func (e govipsEngine) ResizeAndCompress(ctx context.Context, req Request) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	width := clampDimension(req.Width)
	height := clampDimension(req.Height)
	if int64(width)*int64(height) > int64(e.maxPixels) {
		return nil, domain.Errorf(
			domain.KindSurfaceUnavailable,
			"Cannot allocate a %dx%d drawing surface (limit %d pixels).",
			width, height, e.maxPixels,
		)
	}

	img, err := vips.NewImageFromBuffer(req.Data)
	if err != nil {
		return nil, domain.NewError(domain.KindDecodeFailure, "Failed to load image for processing.", err)
	}
	defer img.Close()

	if img.HasAlpha() {
		if err := img.Flatten(&vips.Color{R: 255, G: 255, B: 255}); err != nil {
			return nil, domain.NewError(domain.KindSurfaceUnavailable, "Failed to flatten transparent image.", err)
		}
	}

	// SizeForce ignores the source aspect so the output matches the target
	// exactly; scale factors alone can round an axis off by one.
	if err := img.ThumbnailWithSize(width, height, vips.InterestingNone, vips.SizeForce); err != nil {
		return nil, domain.NewError(domain.KindSurfaceUnavailable, fmt.Sprintf("Failed to scale image to %dx%d.", width, height), err)
	}
	if img.Width() != width || img.Height() != height {
		return nil, domain.Errorf(
			domain.KindSurfaceUnavailable,
			"Failed to scale image to %dx%d (got %dx%d).",
			width, height, img.Width(), img.Height(),
		)
	}

	params := vips.NewJpegExportParams()
	params.Quality = jpegQuality(req.Quality)
	data, _, err := img.ExportJpeg(params)
	if err != nil {
		return nil, domain.NewError(domain.KindEncodeFailure, fmt.Sprintf("Failed to encode %dx%d image.", width, height), err)
	}
	return data, nil
}
