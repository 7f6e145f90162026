package transform

import (
	"context"
	"math"
	"strings"
)

// OutputMIMEType is the only format the engine emits.
const OutputMIMEType = "image/jpeg"

const (
	ResamplerNearest        = "nearest"
	ResamplerApproxBiLinear = "approxbilinear"
	ResamplerBiLinear       = "bilinear"
	ResamplerCatmullRom     = "catmullrom"
	ResamplerLanczos        = "lanczos"

	DefaultMaxPixels = 100_000_000
)

type Request struct {
	Data     []byte
	MIMEType string
	Width    int
	Height   int
	Quality  int
}

type Engine interface {
	ResizeAndCompress(ctx context.Context, req Request) ([]byte, error)
}

type Options struct {
	Resampler string
	MaxPixels int
}

// EncoderQuality maps a 0-100 quality onto the encoder's (0, 1] scale.
func EncoderQuality(quality int) float64 {
	return math.Max(0.01, math.Min(1, float64(quality)/100))
}

func jpegQuality(quality int) int {
	return max(1, int(math.Round(EncoderQuality(quality)*100)))
}

func clampDimension(v int) int {
	return max(1, v)
}

var alphaFormats = map[string]bool{
	"png":  true,
	"gif":  true,
	"webp": true,
	"tiff": true,
	"bmp":  true,
}

// mayCarryAlpha reports whether either the declared MIME type or the decoded
// format name belongs to a transparency-capable encoding.
func mayCarryAlpha(mimeType, decodedFormat string) bool {
	subtype := strings.ToLower(strings.TrimSpace(mimeType))
	subtype = strings.TrimPrefix(subtype, "image/")
	if i := strings.IndexByte(subtype, ';'); i >= 0 {
		subtype = subtype[:i]
	}
	return alphaFormats[subtype] || alphaFormats[strings.ToLower(decodedFormat)]
}

func normalizeResampler(name string) string {
	switch name = strings.ToLower(strings.TrimSpace(name)); name {
	case ResamplerNearest, ResamplerApproxBiLinear, ResamplerBiLinear, ResamplerCatmullRom, ResamplerLanczos:
		return name
	default:
		return ResamplerBiLinear
	}
}
