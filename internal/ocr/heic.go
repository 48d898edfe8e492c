package ocr

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// convertHEIC renders a HEIC/HEIF file to PNG at out using the chosen converter.
// converter: "heif-convert" | "magick" | "sips"
func convertHEIC(ctx context.Context, r Runner, converter, in, out string) error {
	var errb []byte
	var err error
	switch converter {
	case "heif-convert":
		_, errb, err = r.Run(ctx, "heif-convert", in, out)
	case "magick":
		_, errb, err = r.Run(ctx, "magick", in, out)
	case "sips":
		_, errb, err = r.Run(ctx, "sips", "-s", "format", "png", in, "--out", out)
	default:
		return fmt.Errorf("HEIC not supported: set raster.heic_converter to one of: heif-convert | magick | sips")
	}
	if err != nil {
		return fmt.Errorf("%s convert failed: %w (%s)", converter, err, strings.TrimSpace(truncate(string(errb), 512)))
	}
	if _, statErr := os.Stat(out); statErr != nil {
		return fmt.Errorf("HEIC conversion produced no output: %v", statErr)
	}
	return nil
}
