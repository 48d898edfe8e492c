package async

import (
	"context"
	"errors"
	"time"

	"github.com/joseph-ayodele/invoice-extractor/internal/pipeline"
)

// ErrQueueClosed is returned by Submit after Shutdown has begun.
var ErrQueueClosed = errors.New("batch queue is shutting down")

// Batch is one set of invoice sources processed by a single pipeline run.
type Batch struct {
	ID          string
	Paths       []string
	Selection   []string
	SubmittedAt time.Time
}

// BatchResult is delivered once per submitted batch.
type BatchResult struct {
	BatchID string
	Result  pipeline.Result
	Err     error
	Waited  time.Duration // time spent queued and throttled
	Elapsed time.Duration // time spent processing
}

// Runner processes one batch. *pipeline.Processor implements it.
type Runner interface {
	Process(ctx context.Context, paths, selection []string) (pipeline.Result, error)
}

type Queue interface {
	Submit(ctx context.Context, b Batch) (<-chan BatchResult, error)
	Shutdown(ctx context.Context) error
}
