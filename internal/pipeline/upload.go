package pipeline

import (
	"bytes"
	"image"
	"path/filepath"
	"strings"

	"github.com/dunamismax/shrinkit/internal/domain"
	"github.com/gabriel-vasile/mimetype"
)

const (
	ReasonReadFailure     = "Failed to read file."
	ReasonInvalidFileType = "Invalid file type. Please upload an image."
	ReasonNoDimensions    = "Could not load image dimensions."
)

// DecodeSource validates an upload and reads its natural dimensions. A
// missing or generic declared type is replaced by the sniffed one.
func DecodeSource(filename, declaredType string, data []byte) (domain.SourceImage, error) {
	if len(data) == 0 {
		return domain.SourceImage{}, domain.Errorf(domain.KindReadFailure, ReasonReadFailure)
	}

	mimeType := normalizeMIMEType(declaredType)
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = normalizeMIMEType(mimetype.Detect(data).String())
	}
	if !strings.HasPrefix(mimeType, "image/") {
		return domain.SourceImage{}, domain.Errorf(domain.KindInvalidInput, ReasonInvalidFileType)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return domain.SourceImage{}, domain.NewError(domain.KindDecodeFailure, ReasonNoDimensions, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return domain.SourceImage{}, domain.Errorf(domain.KindDecodeFailure, ReasonNoDimensions)
	}

	return domain.SourceImage{
		Filename: filepath.Base(strings.TrimSpace(filename)),
		MIMEType: mimeType,
		Width:    cfg.Width,
		Height:   cfg.Height,
		Bytes:    len(data),
		Data:     data,
	}, nil
}

func normalizeMIMEType(in string) string {
	in = strings.ToLower(strings.TrimSpace(in))
	if i := strings.IndexByte(in, ';'); i >= 0 {
		in = strings.TrimSpace(in[:i])
	}
	return in
}
