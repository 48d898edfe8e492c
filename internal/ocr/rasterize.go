// Package ocr turns source documents into page images for the vision model.
// PDFs are rendered with pdftoppm, images pass through as single pages and
// HEIC photos are converted to PNG first.
package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/invoice-extractor/constants"
	"github.com/joseph-ayodele/invoice-extractor/internal/common"
	"github.com/joseph-ayodele/invoice-extractor/internal/entity"
)

type Config struct {
	Pdftoppm      string // binary name or absolute path; if empty -> "pdftoppm"
	HeicConverter string // heif-convert | magick | sips
	DPI           int    // default 300
	Format        string // jpeg | png, default jpeg
	MaxPages      int    // 0 = no limit
	OutputDir     string // per-document directories are created below it
	Workers       int    // concurrent source files, default 4
}

// ConfigFrom maps the application config onto the rasterizer settings.
func ConfigFrom(c common.RasterConfig) Config {
	return Config{
		Pdftoppm:      c.Pdftoppm,
		HeicConverter: c.HeicConverter,
		DPI:           c.DPI,
		Format:        c.Format,
		MaxPages:      c.MaxPages,
		OutputDir:     c.OutputDir,
		Workers:       c.Workers,
	}
}

// Rasterizer renders source files into ordered page images.
type Rasterizer struct {
	cfg       Config
	runner    Runner
	pageCount func(path string) (int, error)
	logger    *slog.Logger
}

// Option customises a Rasterizer.
type Option func(*Rasterizer)

// WithRunner replaces the external command runner.
func WithRunner(r Runner) Option {
	return func(z *Rasterizer) { z.runner = r }
}

// WithPageCounter replaces the PDF pre-flight page counter.
func WithPageCounter(fn func(path string) (int, error)) Option {
	return func(z *Rasterizer) { z.pageCount = fn }
}

func NewRasterizer(cfg Config, logger *slog.Logger, opts ...Option) *Rasterizer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.HeicConverter == "" {
		cfg.HeicConverter = "magick"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	if cfg.Format != "png" {
		cfg.Format = "jpeg"
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = "./tmp/pages"
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	z := &Rasterizer{
		cfg:       cfg,
		runner:    execRunner{logger: logger},
		pageCount: api.PageCountFile,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(z)
	}
	return z
}

// DocumentID derives the document identifier from a source path: its file
// name without extension.
func DocumentID(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

type sourceJob struct {
	path   string
	docID  string
	outDir string
	pages  []entity.PageImage
}

// Rasterize renders every source concurrently and returns the pages keyed by
// document ID. Sources sharing a stem are merged in input order and their
// pages renumbered. A source that fails yields no pages but its document ID
// is still present with an empty list.
func (z *Rasterizer) Rasterize(ctx context.Context, paths []string) map[string][]entity.PageImage {
	rid := uuid.NewString()
	start := time.Now()

	jobs := make([]*sourceJob, len(paths))
	seen := make(map[string]int)
	for i, p := range paths {
		id := DocumentID(p)
		seen[id]++
		dir := id
		if n := seen[id]; n > 1 {
			dir = fmt.Sprintf("%s-%d", id, n)
		}
		jobs[i] = &sourceJob{path: p, docID: id, outDir: filepath.Join(z.cfg.OutputDir, dir)}
	}

	var g errgroup.Group
	g.SetLimit(z.cfg.Workers)
	for _, j := range jobs {
		j := j
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					z.logger.Error("raster.source.panic", "req_id", rid, "path", j.path, "panic", r)
					j.pages = nil
				}
			}()
			pages, err := z.rasterizeSource(ctx, j.path, j.docID, j.outDir)
			if err != nil {
				z.logger.Warn("raster.source.failed", "req_id", rid, "path", j.path, "document_id", j.docID, "error", err)
				return nil
			}
			j.pages = pages
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string][]entity.PageImage, len(jobs))
	total := 0
	for _, j := range jobs {
		group := out[j.docID]
		if group == nil {
			group = []entity.PageImage{}
		}
		for _, p := range j.pages {
			p.PageIndex = len(group)
			group = append(group, p)
		}
		out[j.docID] = group
		total += len(j.pages)
	}
	z.logger.Info("raster.done",
		"req_id", rid,
		"sources", len(paths),
		"documents", len(out),
		"pages", total,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out
}

// RasterizeFile renders a single source into its pages.
func (z *Rasterizer) RasterizeFile(ctx context.Context, path string) ([]entity.PageImage, error) {
	id := DocumentID(path)
	return z.rasterizeSource(ctx, path, id, filepath.Join(z.cfg.OutputDir, id))
}

func (z *Rasterizer) rasterizeSource(ctx context.Context, path, docID, outDir string) ([]entity.PageImage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	st, err := os.Stat(path)
	if err != nil {
		return nil, common.NewAppError("SOURCE_UNREADABLE", path, err)
	}
	if st.IsDir() {
		return nil, common.NewAppError("SOURCE_IS_DIR", path, common.ErrInvalidInput)
	}

	ext := constants.NormalizeExt(filepath.Ext(path))
	switch constants.MapExtToFormat(ext) {
	case constants.PDF:
		return z.renderPDF(ctx, path, docID, outDir)
	case constants.IMAGE:
		if constants.IsHEICExt(ext) {
			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return nil, err
			}
			png := filepath.Join(outDir, docID+".png")
			if err := convertHEIC(ctx, z.runner, z.cfg.HeicConverter, path, png); err != nil {
				return nil, err
			}
			path = png
		}
		return []entity.PageImage{{DocumentID: docID, PageIndex: 0, ImagePath: path}}, nil
	default:
		return nil, common.NewAppError("UNSUPPORTED_EXTENSION", fmt.Sprintf("%q", ext), common.ErrUnsupportedFormat)
	}
}
