// Package app wires configuration into the pipeline components shared by
// the command binaries.
package app

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/joseph-ayodele/invoice-extractor/internal/common"
	"github.com/joseph-ayodele/invoice-extractor/internal/fields"
	"github.com/joseph-ayodele/invoice-extractor/internal/ingest"
	"github.com/joseph-ayodele/invoice-extractor/internal/llm"
	"github.com/joseph-ayodele/invoice-extractor/internal/llm/factory"
	"github.com/joseph-ayodele/invoice-extractor/internal/ocr"
	"github.com/joseph-ayodele/invoice-extractor/internal/pipeline"
	"github.com/joseph-ayodele/invoice-extractor/internal/repository"
)

// Setup loads .env (if present) and the configuration file, and installs a
// JSON slog handler at the configured level as the default logger.
func Setup(configPath string) (*common.Config, *slog.Logger, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("app.dotenv.failed", "error", err)
	}
	cfg, err := common.LoadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: common.ParseLogLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)
	return cfg, logger, nil
}

// FieldStore opens the store named by cfg.Fields: a file when Path is set,
// else the database when DSN is set, else nil (built-in defaults). The
// returned close func is never nil.
func FieldStore(ctx context.Context, cfg *common.Config, logger *slog.Logger) (fields.Store, func(), error) {
	switch {
	case cfg.Fields.Path != "":
		return fields.NewFileStore(cfg.Fields.Path), func() {}, nil
	case cfg.Fields.DSN != "":
		db, err := repository.Open(ctx, repository.ConfigFrom(cfg.Fields.DSN, cfg.Database), logger)
		if err != nil {
			return nil, func() {}, err
		}
		repo := repository.NewFieldRepository(db, logger)
		if err := repo.Migrate(ctx); err != nil {
			db.Close()
			return nil, func() {}, err
		}
		return repo, db.Close, nil
	default:
		return nil, func() {}, nil
	}
}

// Schema loads the field schema through FieldStore.
func Schema(ctx context.Context, cfg *common.Config, logger *slog.Logger) (*fields.Schema, error) {
	store, closeStore, err := FieldStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	defer closeStore()
	return fields.LoadSchema(ctx, store, logger)
}

// Models builds the extraction model and, when enabled and credentialed,
// the enrichment model. Both are rate limited and retried. The returned
// close func releases every client.
func Models(ctx context.Context, cfg *common.Config, logger *slog.Logger) (model, enrich llm.Model, closeFn func(), err error) {
	var clients []llm.Client
	closeFn = func() {
		for _, c := range clients {
			if cerr := c.Close(); cerr != nil {
				logger.Warn("app.llm.close_failed", "error", cerr)
			}
		}
	}

	primary, err := factory.New(ctx, cfg.LLM, logger)
	if err != nil {
		return nil, nil, closeFn, err
	}
	clients = append(clients, primary)
	model = factory.Decorate(primary, cfg.LLM, logger)

	ecfg := cfg.EnrichLLM()
	switch {
	case !cfg.Enrich.Enabled:
		logger.Info("app.enrich.disabled", "reason", "config")
	case !factory.Credentialed(ecfg):
		logger.Warn("app.enrich.disabled", "reason", "missing credentials", "provider", ecfg.Provider)
	default:
		ec, err := factory.New(ctx, ecfg, logger)
		if err != nil {
			return nil, nil, closeFn, err
		}
		clients = append(clients, ec)
		enrich = factory.Decorate(ec, ecfg, logger)
	}
	return model, enrich, closeFn, nil
}

// Processor assembles a pipeline.Processor from cfg.
func Processor(cfg *common.Config, model, enrich llm.Model, schema *fields.Schema, logger *slog.Logger) (*pipeline.Processor, error) {
	policy, err := pipeline.ParseCollapsePolicy(cfg.Pipeline.Collapse)
	if err != nil {
		return nil, err
	}
	return pipeline.NewProcessor(model, schema, logger,
		pipeline.WithEnrichModel(enrich),
		pipeline.WithRasterizer(ocr.NewRasterizer(ocr.ConfigFrom(cfg.Raster), logger)),
		pipeline.WithCollapse(policy),
		pipeline.WithWorkers(cfg.Pipeline.DocumentWorkers, cfg.Pipeline.PageWorkers),
		pipeline.WithRecordChecks(common.ParseLogLevel(cfg.LogLevel) <= slog.LevelDebug),
	), nil
}

// Resolver builds an ingest.Resolver. A GCS client is created only when
// wantGCS is set; failing to create one leaves gs:// inputs unsupported.
func Resolver(ctx context.Context, cfg *common.Config, wantGCS bool, logger *slog.Logger) (*ingest.Resolver, func()) {
	closeFn := func() {}
	var fetcher ingest.Fetcher
	if wantGCS {
		f, err := ingest.NewGCSFetcher(ctx, logger)
		if err != nil {
			logger.Warn("app.gcs.unavailable", "error", err)
		} else {
			fetcher = f
			closeFn = func() { _ = f.Close() }
		}
	}
	return ingest.NewResolver(fetcher, cfg.Storage.DownloadDir, logger), closeFn
}

// HasRemote reports whether any input is a gs:// URL.
func HasRemote(inputs []string) bool {
	for _, in := range inputs {
		if strings.HasPrefix(in, "gs://") {
			return true
		}
	}
	return false
}
