package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/joseph-ayodele/invoice-extractor/internal/app"
	"github.com/joseph-ayodele/invoice-extractor/internal/ocr"
)

func main() {
	var (
		configPath = flag.String("config", "", "optional TOML config file")
		outDir     = flag.String("out", "", "override the page output directory")
		dpi        = flag.Int("dpi", 0, "override rendering DPI")
	)
	flag.Parse()
	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: rasterize [flags] <file|dir>...")
		os.Exit(2)
	}

	cfg, logger, err := app.Setup(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *outDir != "" {
		cfg.Raster.OutputDir = *outDir
	}
	if *dpi > 0 {
		cfg.Raster.DPI = *dpi
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	resolver, closeResolver := app.Resolver(ctx, cfg, app.HasRemote(flag.Args()), logger)
	defer closeResolver()
	paths, _, err := resolver.Resolve(ctx, flag.Args())
	if err != nil {
		logger.Error("rasterize.ingest.failed", "error", err)
		os.Exit(1)
	}

	pages := ocr.NewRasterizer(ocr.ConfigFrom(cfg.Raster), logger).Rasterize(ctx, paths)
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(pages); err != nil {
		logger.Error("rasterize.encode.failed", "error", err)
		os.Exit(1)
	}
}
