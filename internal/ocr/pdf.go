package ocr

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/invoice-extractor/internal/common"
	"github.com/joseph-ayodele/invoice-extractor/internal/entity"
)

func (z *Rasterizer) imageExt() string {
	if z.cfg.Format == "png" {
		return ".png"
	}
	return ".jpg"
}

func (z *Rasterizer) renderPDF(ctx context.Context, path, docID, outDir string) ([]entity.PageImage, error) {
	n, err := z.pageCount(path)
	if err != nil {
		return nil, common.NewAppError("PDF_CORRUPT", path, err)
	}
	if n <= 0 {
		return nil, common.NewAppError("PDF_EMPTY", path, common.ErrInvalidInput)
	}
	last := n
	if z.cfg.MaxPages > 0 && last > z.cfg.MaxPages {
		last = z.cfg.MaxPages
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, err
	}
	prefix := filepath.Join(outDir, docID+"_page")
	ext := z.imageExt()
	// drop renders from an earlier run so page counts cannot mix
	stale, err := renderedPages(outDir, docID, ext)
	if err != nil {
		return nil, err
	}
	for _, s := range stale {
		_ = os.Remove(s.path)
	}

	// pdftoppm -r 300 -jpeg -f 1 -l N <in.pdf> <out/stem_page>
	args := []string{
		"-r", strconv.Itoa(z.cfg.DPI),
		"-" + z.cfg.Format,
		"-f", "1",
		"-l", strconv.Itoa(last),
		path, prefix,
	}
	_, errb, err := z.runner.Run(ctx, z.cfg.Pdftoppm, args...)
	if err != nil {
		return nil, fmt.Errorf("pdftoppm failed: %w (%s)", err, strings.TrimSpace(truncate(string(errb), 512)))
	}

	rendered, err := renderedPages(outDir, docID, ext)
	if err != nil {
		return nil, err
	}
	if len(rendered) == 0 {
		return nil, fmt.Errorf("pdftoppm produced no images for %s", path)
	}
	if len(rendered) > last {
		rendered = rendered[:last]
	}

	pages := make([]entity.PageImage, len(rendered))
	for i, r := range rendered {
		pages[i] = entity.PageImage{DocumentID: docID, PageIndex: i, ImagePath: r.path}
	}
	z.logger.Debug("raster.pdf.ok", "path", path, "document_id", docID, "pages", len(pages), "page_count", n)
	return pages, nil
}

type pageFile struct {
	num  int
	path string
}

// renderedPages lists "<docID>_page-N<ext>" files in outDir ordered by N.
func renderedPages(outDir, docID, ext string) ([]pageFile, error) {
	entries, err := os.ReadDir(outDir)
	if err != nil {
		return nil, err
	}
	prefix := docID + "_page"
	var out []pageFile
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		num, ok := pageNumber(e.Name(), prefix, ext)
		if !ok {
			continue
		}
		out = append(out, pageFile{num: num, path: filepath.Join(outDir, e.Name())})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].num < out[j].num })
	return out, nil
}

// pageNumber parses N out of "<prefix>-N<ext>". pdftoppm zero-pads N to the
// width of the page count.
func pageNumber(file, prefix, ext string) (int, bool) {
	if !strings.HasPrefix(file, prefix+"-") || !strings.HasSuffix(file, ext) {
		return 0, false
	}
	s := strings.TrimSuffix(strings.TrimPrefix(file, prefix+"-"), ext)
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}
