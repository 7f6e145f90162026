package transform

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"

	_ "image/gif"
	_ "image/png"

	"github.com/dunamismax/shrinkit/internal/domain"
	"github.com/nfnt/resize"
	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

type stdlibEngine struct {
	resampler string
	maxPixels int
}

func newStdlibEngine(opts Options) stdlibEngine {
	maxPixels := opts.MaxPixels
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	return stdlibEngine{
		resampler: normalizeResampler(opts.Resampler),
		maxPixels: maxPixels,
	}
}

func (e stdlibEngine) ResizeAndCompress(ctx context.Context, req Request) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	width := clampDimension(req.Width)
	height := clampDimension(req.Height)

	src, srcFormat, err := image.Decode(bytes.NewReader(req.Data))
	if err != nil {
		return nil, domain.NewError(domain.KindDecodeFailure, "Failed to load image for processing.", err)
	}

	dst, err := e.surface(width, height)
	if err != nil {
		return nil, err
	}

	op := draw.Src
	if mayCarryAlpha(req.MIMEType, srcFormat) {
		draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
		op = draw.Over
	}
	e.scale(dst, src, op)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: jpegQuality(req.Quality)}); err != nil {
		return nil, domain.NewError(domain.KindEncodeFailure, fmt.Sprintf("Failed to encode %dx%d image.", width, height), err)
	}
	return buf.Bytes(), nil
}

func (e stdlibEngine) surface(width, height int) (*image.RGBA, error) {
	if int64(width)*int64(height) > int64(e.maxPixels) {
		return nil, domain.Errorf(
			domain.KindSurfaceUnavailable,
			"Cannot allocate a %dx%d drawing surface (limit %d pixels).",
			width, height, e.maxPixels,
		)
	}
	return image.NewRGBA(image.Rect(0, 0, width, height)), nil
}

func (e stdlibEngine) scale(dst *image.RGBA, src image.Image, op draw.Op) {
	bounds := dst.Bounds()
	if e.resampler == ResamplerLanczos {
		scaled := resize.Resize(uint(bounds.Dx()), uint(bounds.Dy()), src, resize.Lanczos3)
		draw.Draw(dst, bounds, scaled, scaled.Bounds().Min, op)
		return
	}
	interpolator(e.resampler).Scale(dst, bounds, src, src.Bounds(), op, nil)
}

func interpolator(name string) draw.Interpolator {
	switch name {
	case ResamplerNearest:
		return draw.NearestNeighbor
	case ResamplerApproxBiLinear:
		return draw.ApproxBiLinear
	case ResamplerCatmullRom:
		return draw.CatmullRom
	default:
		return draw.BiLinear
	}
}
