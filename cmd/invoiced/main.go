package main

import (
	"context"
	"flag"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/joseph-ayodele/invoice-extractor/internal/app"
	"github.com/joseph-ayodele/invoice-extractor/internal/async"
	"github.com/joseph-ayodele/invoice-extractor/internal/server"
)

func main() {
	configPath := flag.String("config", "", "optional TOML config file")
	flag.Parse()

	cfg, logger, err := app.Setup(*configPath)
	if err != nil {
		slog.Error("invoiced.config.failed", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invoiced.config.invalid", "error", err)
		os.Exit(1)
	}
	if err := cfg.ValidateServer(); err != nil {
		logger.Error("invoiced.config.invalid", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	schema, err := app.Schema(ctx, cfg, logger)
	if err != nil {
		logger.Error("invoiced.fields.failed", "error", err)
		os.Exit(1)
	}
	model, enrich, closeModels, err := app.Models(ctx, cfg, logger)
	if err != nil {
		logger.Error("invoiced.llm.failed", "error", err)
		os.Exit(1)
	}
	defer closeModels()
	proc, err := app.Processor(cfg, model, enrich, schema, logger)
	if err != nil {
		logger.Error("invoiced.processor.failed", "error", err)
		os.Exit(1)
	}
	resolver, closeResolver := app.Resolver(ctx, cfg, true, logger)
	defer closeResolver()

	queue := async.NewBatchQueue(proc, logger,
		async.WithWorkers(cfg.Server.BatchWorkers),
		async.WithQueueSize(cfg.Server.BatchQueue),
		async.WithBatchTimeout(cfg.Server.BatchTimeout),
		async.WithInterval(cfg.Server.BatchInterval),
	)

	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		logger.Error("invoiced.listen.failed", "addr", cfg.Server.GRPCAddr, "error", err)
		os.Exit(1)
	}
	svc := server.NewExtractionService(queue, schema, resolver, logger)
	grpcServer, hs := server.NewGRPCServer(svc, logger)

	logger.Info("invoiced.listening", "addr", cfg.Server.GRPCAddr, "fields", schema.Len())
	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("invoiced.serve.failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("invoiced.shutdown.start")
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := queue.Shutdown(shutdownCtx); err != nil {
		logger.Warn("invoiced.shutdown.queue", "error", err)
	}
	grpcServer.GracefulStop()
	logger.Info("invoiced.shutdown.done")
}
