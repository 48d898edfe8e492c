package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joseph-ayodele/invoice-extractor/internal/app"
	"github.com/joseph-ayodele/invoice-extractor/internal/export"
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	var (
		configPath = flag.String("config", "", "optional TOML config file")
		preset     = flag.String("preset", "", "field preset name")
		fieldList  = flag.String("fields", "", "comma-separated field names")
		out        = flag.String("out", "", "output file (.json or .xlsx); stdout JSON when empty")
		collapse   = flag.String("collapse", "", "collapse policy: first | most_complete")
	)
	flag.Usage = func() {
		printError("usage: invoice-batch [flags] <file|dir|gs://bucket/prefix>...\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	inputs := flag.Args()
	if len(inputs) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, logger, err := app.Setup(*configPath)
	if err != nil {
		printError("Error: %v\n", err)
		os.Exit(1)
	}
	if *collapse != "" {
		cfg.Pipeline.Collapse = *collapse
	}
	if *preset != "" {
		cfg.Fields.Preset = *preset
	}
	if *fieldList != "" {
		cfg.Fields.Select = strings.Split(*fieldList, ",")
	}
	if err := cfg.Validate(); err != nil {
		printError("Error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	start := time.Now()

	schema, err := app.Schema(ctx, cfg, logger)
	if err != nil {
		logger.Error("batch.fields.failed", "error", err)
		os.Exit(1)
	}
	selection, err := schema.ResolveSelection(cfg.Fields.Preset, trimAll(cfg.Fields.Select))
	if err != nil {
		logger.Error("batch.selection.failed", "error", err)
		os.Exit(1)
	}

	model, enrich, closeModels, err := app.Models(ctx, cfg, logger)
	if err != nil {
		logger.Error("batch.llm.failed", "error", err)
		os.Exit(1)
	}
	defer closeModels()

	proc, err := app.Processor(cfg, model, enrich, schema, logger)
	if err != nil {
		logger.Error("batch.processor.failed", "error", err)
		os.Exit(1)
	}

	resolver, closeResolver := app.Resolver(ctx, cfg, app.HasRemote(inputs), logger)
	defer closeResolver()
	paths, stats, err := resolver.Resolve(ctx, inputs)
	if err != nil {
		logger.Error("batch.ingest.failed", "error", err)
		os.Exit(1)
	}
	logger.Info("batch.ingest.ok", "sources", len(paths), "matched", stats.Matched, "downloaded", stats.Downloaded, "failed", stats.Failed)

	res, err := proc.Process(ctx, paths, selection)
	if err != nil {
		logger.Error("batch.process.failed", "error", err)
		os.Exit(1)
	}

	exp := export.NewService(logger)
	switch {
	case *out == "":
		err = exp.JSON(os.Stdout, res.Records)
	case strings.EqualFold(filepath.Ext(*out), ".xlsx"):
		var data []byte
		data, err = exp.XLSX(res.Records, schema.ActiveFields(selection))
		if err == nil {
			err = os.WriteFile(*out, data, 0o644)
		}
	default:
		var f *os.File
		f, err = os.Create(*out)
		if err == nil {
			err = exp.JSON(f, res.Records)
			if cerr := f.Close(); err == nil {
				err = cerr
			}
		}
	}
	if err != nil {
		logger.Error("batch.export.failed", "out", *out, "error", err)
		os.Exit(1)
	}

	logger.Info("batch.done",
		"run_id", res.RunID,
		"documents", len(res.Documents),
		"records", len(res.Records),
		"out", *out,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
