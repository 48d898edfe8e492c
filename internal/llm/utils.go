package llm

import (
	"encoding/base64"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
)

// Image is a page image loaded for an inline model request.
type Image struct {
	Path     string
	MIMEType string
	Data     []byte
}

// LoadImage reads path and resolves its MIME type from the extension.
func LoadImage(path string) (Image, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Image{}, fmt.Errorf("read image %s: %w", path, err)
	}
	return Image{Path: path, MIMEType: mimeFor(path), Data: b}, nil
}

// LoadImages loads every path in order.
func LoadImages(paths []string) ([]Image, error) {
	out := make([]Image, 0, len(paths))
	for _, p := range paths {
		im, err := LoadImage(p)
		if err != nil {
			return nil, err
		}
		out = append(out, im)
	}
	return out, nil
}

// Base64 returns the standard base64 encoding of the image bytes.
func (im Image) Base64() string {
	return base64.StdEncoding.EncodeToString(im.Data)
}

// DataURL returns the image as a data: URL.
func (im Image) DataURL() string {
	return "data:" + im.MIMEType + ";base64," + im.Base64()
}

// Format returns the short image format ("jpeg", "png").
func (im Image) Format() string {
	return strings.TrimPrefix(im.MIMEType, "image/")
}

func mimeFor(path string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	switch ext {
	case "jpg", "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	}
	if mt := mime.TypeByExtension("." + ext); mt != "" {
		return mt
	}
	return "application/octet-stream"
}
