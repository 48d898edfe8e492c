package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/invoice-extractor/internal/async"
	"github.com/joseph-ayodele/invoice-extractor/internal/common"
	"github.com/joseph-ayodele/invoice-extractor/internal/fields"
	"github.com/joseph-ayodele/invoice-extractor/internal/ingest"
)

// ExtractionService serves InvoiceExtraction on top of a batch queue.
type ExtractionService struct {
	queue    async.Queue
	schema   *fields.Schema
	resolver *ingest.Resolver
	logger   *slog.Logger
}

var _ InvoiceExtractionServer = (*ExtractionService)(nil)

// NewExtractionService wires the service. A nil resolver passes request
// paths straight to the queue.
func NewExtractionService(queue async.Queue, schema *fields.Schema, resolver *ingest.Resolver, logger *slog.Logger) *ExtractionService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExtractionService{queue: queue, schema: schema, resolver: resolver, logger: logger}
}

type processRequest struct {
	Paths  []string `json:"paths"`
	Fields []string `json:"fields"`
	Preset string   `json:"preset"`
}

// ProcessInvoices runs one batch and waits for its records.
// Request: {"paths": [...], "fields": [...], "preset": "..."}.
func (s *ExtractionService) ProcessInvoices(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	start := time.Now()
	var req processRequest
	if err := decodeStruct(in, &req); err != nil {
		return nil, common.InvalidArgumentErrorf("decode request: %v", err)
	}

	v := common.NewValidator()
	v.Check(len(req.Paths) > 0, "paths", req.Paths, "at least one path is required")
	for _, p := range req.Paths {
		v.Field("paths[]", p, common.Required, common.MaxLength(4096))
	}
	for _, f := range req.Fields {
		v.Field("fields[]", f, common.Identifier)
	}
	if err := common.ValidateAndReturnError(v); err != nil {
		s.logger.Warn("server.process.invalid", "error", err)
		return nil, err
	}

	schema := s.schema.Snapshot()
	selection, err := schema.ResolveSelection(strings.TrimSpace(req.Preset), req.Fields)
	if err != nil {
		return nil, common.StatusFromError(err)
	}

	paths := req.Paths
	if s.resolver != nil {
		paths, _, err = s.resolver.Resolve(ctx, req.Paths)
		if err != nil {
			return nil, status.FromContextError(err).Err()
		}
	}
	if len(paths) == 0 {
		return nil, common.StatusFromError(common.NewAppError("NO_SOURCES", "no readable invoice sources", common.ErrNoInput))
	}

	ch, err := s.queue.Submit(ctx, async.Batch{Paths: paths, Selection: selection})
	if err != nil {
		if errors.Is(err, async.ErrQueueClosed) {
			return nil, status.Error(codes.Unavailable, err.Error())
		}
		return nil, status.FromContextError(err).Err()
	}

	select {
	case <-ctx.Done():
		s.logger.Warn("server.process.abandoned", "error", ctx.Err())
		return nil, status.FromContextError(ctx.Err()).Err()
	case res := <-ch:
		if res.Err != nil {
			s.logger.Error("server.process.failed", "batch_id", res.BatchID, "error", res.Err)
			return nil, common.StatusFromError(res.Err)
		}
		out, err := encodeStruct(res.Result)
		if err != nil {
			return nil, common.InternalErrorf("encode result: %v", err)
		}
		s.logger.Info("server.process.ok",
			"batch_id", res.BatchID,
			"sources", len(paths),
			"records", len(res.Result.Records),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return out, nil
	}
}

// ListFields returns {"fields": [...]} for the whole schema, or for the
// selection named by an optional "preset".
func (s *ExtractionService) ListFields(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req processRequest
	if err := decodeStruct(in, &req); err != nil {
		return nil, common.InvalidArgumentErrorf("decode request: %v", err)
	}
	schema := s.schema.Snapshot()
	defs := schema.Fields()
	if req.Preset != "" || len(req.Fields) > 0 {
		sel, err := schema.ResolveSelection(req.Preset, req.Fields)
		if err != nil {
			return nil, common.StatusFromError(err)
		}
		defs = schema.ActiveFields(sel)
	}
	out, err := encodeStruct(map[string]any{"fields": defs})
	if err != nil {
		return nil, common.InternalErrorf("encode fields: %v", err)
	}
	return out, nil
}

// ListPresets returns {"presets": {"name": [...]}}.
func (s *ExtractionService) ListPresets(_ context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	doc := s.schema.Document()
	out, err := encodeStruct(map[string]any{"presets": doc.Presets})
	if err != nil {
		return nil, common.InternalErrorf("encode presets: %v", err)
	}
	return out, nil
}

func decodeStruct(in *structpb.Struct, v any) error {
	if in == nil {
		return nil
	}
	b, err := in.MarshalJSON()
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

func encodeStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}
