package pipeline

import (
	"path/filepath"
	"strings"
)

func FileExtension(mimeType string) string {
	if normalizeMIMEType(mimeType) == "image/png" {
		return "png"
	}
	return "jpg"
}

// DownloadFilename names a processed image after its upload,
// e.g. "holiday.png" -> "holiday_shrinkit.jpg".
func DownloadFilename(original, mimeType string) string {
	base := filepath.Base(strings.TrimSpace(original))
	if i := strings.LastIndexByte(base, '.'); i >= 0 {
		base = base[:i]
	}
	if base == "" || base == "." || base == string(filepath.Separator) {
		base = "image"
	}
	return base + "_shrinkit." + FileExtension(mimeType)
}
