// Package ingest resolves user inputs (files, directories and gs:// URLs)
// into the local source paths the pipeline rasterizes.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joseph-ayodele/invoice-extractor/internal/common"
)

// Stats summarizes one Resolve call.
type Stats struct {
	Inputs     uint32
	Scanned    uint32
	Matched    uint32
	Downloaded uint32
	Duplicates uint32
	Failed     uint32
}

// Fetcher downloads every supported object under bucket/prefix into dir
// and returns the local paths in object-name order.
type Fetcher interface {
	Fetch(ctx context.Context, bucket, prefix, dir string) ([]string, error)
}

// Resolver expands inputs into source paths.
type Resolver struct {
	Fetcher     Fetcher // nil rejects gs:// inputs
	DownloadDir string
	SkipHidden  bool
	Logger      *slog.Logger
}

func NewResolver(fetcher Fetcher, downloadDir string, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	if downloadDir == "" {
		downloadDir = "./tmp/inputs"
	}
	return &Resolver{Fetcher: fetcher, DownloadDir: downloadDir, SkipHidden: true, Logger: logger}
}

// Resolve returns the source paths for inputs in input order. Explicit files
// pass through, directories contribute their supported files in lexical
// order and gs:// URLs are downloaded. A failing input is logged and
// counted; only context cancellation is returned as an error.
func (r *Resolver) Resolve(ctx context.Context, inputs []string) ([]string, Stats, error) {
	var stats Stats
	var out []string
	seen := make(map[string]struct{})
	add := func(p string) {
		key := p
		if abs, err := filepath.Abs(p); err == nil {
			key = abs
		}
		if _, dup := seen[key]; dup {
			stats.Duplicates++
			return
		}
		seen[key] = struct{}{}
		out = append(out, p)
	}

	for _, in := range inputs {
		if err := ctx.Err(); err != nil {
			return out, stats, err
		}
		in = strings.TrimSpace(in)
		if in == "" {
			continue
		}
		stats.Inputs++

		if bucket, prefix, ok := ParseGCSURL(in); ok {
			paths, err := r.fetch(ctx, bucket, prefix)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return out, stats, err
				}
				r.Logger.Warn("ingest.gcs.failed", "input", in, "error", err)
				stats.Failed++
				continue
			}
			stats.Downloaded += uint32(len(paths))
			stats.Matched += uint32(len(paths))
			for _, p := range paths {
				add(p)
			}
			continue
		}

		st, err := os.Stat(in)
		if err != nil {
			r.Logger.Warn("ingest.input.unreadable", "input", in, "error", err)
			stats.Failed++
			continue
		}
		if !st.IsDir() {
			stats.Scanned++
			stats.Matched++
			add(in)
			continue
		}
		paths, err := r.walk(in, &stats)
		if err != nil {
			r.Logger.Warn("ingest.walk.failed", "root", in, "error", err)
		}
		for _, p := range paths {
			add(p)
		}
	}

	r.Logger.Info("ingest.resolve.done",
		"inputs", stats.Inputs,
		"sources", len(out),
		"downloaded", stats.Downloaded,
		"failed", stats.Failed,
	)
	return out, stats, nil
}

// walk collects supported files under root, skipping hidden entries if
// requested.
func (r *Resolver) walk(root string, stats *Stats) ([]string, error) {
	var found []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			stats.Failed++
			return nil
		}
		if path != root && r.SkipHidden && IsHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		stats.Scanned++
		if !AllowedExt(filepath.Ext(path)) {
			return nil
		}
		stats.Matched++
		found = append(found, path)
		return nil
	})
	sort.Strings(found)
	if err != nil {
		return found, fmt.Errorf("walk: %w", err)
	}
	return found, nil
}

func (r *Resolver) fetch(ctx context.Context, bucket, prefix string) ([]string, error) {
	if r.Fetcher == nil {
		return nil, common.NewAppError("GCS_DISABLED", "no storage fetcher configured", common.ErrInvalidInput)
	}
	dir := filepath.Join(r.DownloadDir, bucket)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return r.Fetcher.Fetch(ctx, bucket, prefix, dir)
}

// ParseGCSURL splits gs://bucket/prefix. The prefix may be empty.
func ParseGCSURL(s string) (bucket, prefix string, ok bool) {
	rest, found := strings.CutPrefix(s, "gs://")
	if !found {
		return "", "", false
	}
	bucket, prefix, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", false
	}
	return bucket, prefix, true
}
