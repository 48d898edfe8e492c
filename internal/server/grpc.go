package server

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
)

// NewGRPCServer builds a grpc.Server with the extraction, health and
// reflection services registered. The returned health server starts in
// SERVING for both the overall status and ServiceName.
func NewGRPCServer(svc InvoiceExtractionServer, logger *slog.Logger, opts ...grpc.ServerOption) (*grpc.Server, *health.Server) {
	if logger == nil {
		logger = slog.Default()
	}
	opts = append([]grpc.ServerOption{grpc.ChainUnaryInterceptor(loggingInterceptor(logger))}, opts...)
	s := grpc.NewServer(opts...)
	RegisterInvoiceExtractionServer(s, svc)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)

	reflection.Register(s)
	return s, hs
}

func loggingInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		attrs := []any{
			"method", info.FullMethod,
			"code", status.Code(err).String(),
			"elapsed_ms", time.Since(start).Milliseconds(),
		}
		if err != nil {
			logger.Warn("grpc.call.failed", append(attrs, "error", err)...)
		} else {
			logger.Debug("grpc.call.ok", attrs...)
		}
		return resp, err
	}
}
