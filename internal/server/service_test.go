package server

import (
	"context"
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/invoice-extractor/internal/async"
	"github.com/joseph-ayodele/invoice-extractor/internal/common"
	"github.com/joseph-ayodele/invoice-extractor/internal/entity"
	"github.com/joseph-ayodele/invoice-extractor/internal/fields"
	"github.com/joseph-ayodele/invoice-extractor/internal/pipeline"
)

type fakeQueue struct {
	mu      sync.Mutex
	batches []async.Batch
	result  pipeline.Result
	err     error
	closed  bool
}

func (q *fakeQueue) Submit(_ context.Context, b async.Batch) (<-chan async.BatchResult, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, async.ErrQueueClosed
	}
	q.batches = append(q.batches, b)
	ch := make(chan async.BatchResult, 1)
	ch <- async.BatchResult{BatchID: "b1", Result: q.result, Err: q.err}
	close(ch)
	return ch, nil
}

func (q *fakeQueue) Shutdown(context.Context) error { return nil }

func dial(t *testing.T, q async.Queue) (*Client, *grpc.ClientConn) {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	svc := NewExtractionService(q, fields.DefaultSchema(), nil, nil)
	s, _ := NewGRPCServer(svc, nil)
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return NewClient(conn), conn
}

func request(t *testing.T, m map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(m)
	require.NoError(t, err)
	return s
}

func TestProcessInvoices(t *testing.T) {
	q := &fakeQueue{result: pipeline.Result{
		RunID: "run-1",
		Records: []entity.FinalRecord{{
			Record: entity.Record{DocumentID: "invoice_A", Fields: entity.Fields{"invoice_number": entity.ValueOf("A-100")}},
		}},
	}}
	c, _ := dial(t, q)

	out, err := c.ProcessInvoices(context.Background(), request(t, map[string]any{
		"paths":  []any{"/in/invoice_A.pdf"},
		"preset": fields.PresetCommercial,
		"fields": []any{"hs_code"},
	}))
	require.NoError(t, err)

	assert.Equal(t, "run-1", out.Fields["run_id"].GetStringValue())
	recs := out.Fields["records"].GetListValue().GetValues()
	require.Len(t, recs, 1)
	rec := recs[0].GetStructValue().AsMap()
	assert.Equal(t, "invoice_A", rec["document_id"])
	assert.Equal(t, map[string]any{"invoice_number": "A-100"}, rec["fields"])

	require.Len(t, q.batches, 1)
	assert.Equal(t, []string{"/in/invoice_A.pdf"}, q.batches[0].Paths)
	preset, _ := fields.DefaultSchema().Preset(fields.PresetCommercial)
	assert.Equal(t, append(preset, "hs_code"), q.batches[0].Selection)
}

func TestProcessInvoicesErrors(t *testing.T) {
	q := &fakeQueue{}
	c, _ := dial(t, q)
	ctx := context.Background()

	_, err := c.ProcessInvoices(ctx, request(t, map[string]any{}))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = c.ProcessInvoices(ctx, request(t, map[string]any{"paths": []any{"a.pdf"}, "fields": []any{"Bad Name"}}))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = c.ProcessInvoices(ctx, request(t, map[string]any{"paths": []any{"a.pdf"}, "preset": "Nope"}))
	assert.Equal(t, codes.NotFound, status.Code(err))
	assert.Empty(t, q.batches)

	q.err = common.NewAppError("BOOM", "pipeline failed", common.ErrInternal)
	_, err = c.ProcessInvoices(ctx, request(t, map[string]any{"paths": []any{"a.pdf"}}))
	assert.Equal(t, codes.Internal, status.Code(err))

	q.closed = true
	_, err = c.ProcessInvoices(ctx, request(t, map[string]any{"paths": []any{"a.pdf"}}))
	assert.Equal(t, codes.Unavailable, status.Code(err))
}

func TestListFieldsAndPresets(t *testing.T) {
	c, conn := dial(t, &fakeQueue{})
	ctx := context.Background()

	all, err := c.ListFields(ctx, request(t, map[string]any{}))
	require.NoError(t, err)
	assert.Len(t, all.Fields["fields"].GetListValue().GetValues(), 12)

	sub, err := c.ListFields(ctx, request(t, map[string]any{"fields": []any{"currency", "invoice_number"}}))
	require.NoError(t, err)
	vals := sub.Fields["fields"].GetListValue().GetValues()
	require.Len(t, vals, 2)
	assert.Equal(t, "currency", vals[0].GetStructValue().Fields["name"].GetStringValue())

	presets, err := c.ListPresets(ctx, &structpb.Struct{})
	require.NoError(t, err)
	p := presets.Fields["presets"].GetStructValue().AsMap()
	assert.Contains(t, p, fields.PresetFull)
	assert.Contains(t, p, fields.PresetSalesTax)

	hc, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, hc.GetStatus())
}
