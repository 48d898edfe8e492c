package constants

import "strings"

const (
	PDF   = "PDF"
	IMAGE = "IMAGE"
)

// FileTypes holds the source formats the rasterizer understands.
var FileTypes = []string{PDF, IMAGE}

// AllowedExtensions holds the default allowed file extensions for invoice ingestion.
var AllowedExtensions = map[string]struct{}{
	"pdf":  {},
	"jpg":  {},
	"jpeg": {},
	"png":  {},
	"heic": {},
	"heif": {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
}

// MapExtToFormat returns PDF, IMAGE or "" for an unsupported extension.
func MapExtToFormat(ext string) string {
	switch NormalizeExt(ext) {
	case "pdf":
		return PDF
	case "jpg", "jpeg", "png", "heic", "heif":
		return IMAGE
	default:
		return ""
	}
}

func IsHEICExt(ext string) bool {
	switch NormalizeExt(ext) {
	case "heic", "heif":
		return true
	}
	return false
}
