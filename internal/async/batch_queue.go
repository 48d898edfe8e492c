package async

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/joseph-ayodele/invoice-extractor/internal/common"
)

type job struct {
	batch Batch
	out   chan BatchResult
}

// BatchQueue runs batches on a fixed worker pool. Batch starts are spaced by
// at least the configured interval across all workers.
type BatchQueue struct {
	runner   Runner
	logger   *slog.Logger
	workers  int
	timeout  time.Duration
	interval time.Duration
	limiter  *rate.Limiter

	ch   chan job
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.RWMutex
	closed bool
}

var _ Queue = (*BatchQueue)(nil)

type Option func(*BatchQueue)

func WithWorkers(n int) Option {
	return func(q *BatchQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(q *BatchQueue) {
		if n > 0 {
			q.ch = make(chan job, n)
		}
	}
}

func WithBatchTimeout(d time.Duration) Option {
	return func(q *BatchQueue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

// WithInterval sets the minimum gap between two batch starts. Zero disables it.
func WithInterval(d time.Duration) Option {
	return func(q *BatchQueue) {
		if d >= 0 {
			q.interval = d
		}
	}
}

func NewBatchQueue(runner Runner, logger *slog.Logger, opts ...Option) *BatchQueue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &BatchQueue{
		runner:  runner,
		logger:  logger,
		workers: 1,
		timeout: 15 * time.Minute,
		ch:      make(chan job, 64),
	}
	for _, o := range opts {
		o(q)
	}
	if q.interval > 0 {
		q.limiter = rate.NewLimiter(rate.Every(q.interval), 1)
	}
	q.start()
	return q
}

func (q *BatchQueue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Debug("batch.worker.started", "worker_id", workerID)
				for j := range q.ch {
					j.out <- q.run(workerID, j.batch)
					close(j.out)
				}
				q.logger.Debug("batch.worker.stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

func (q *BatchQueue) run(workerID int, b Batch) (res BatchResult) {
	res.BatchID = b.ID
	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()
	ctx = common.WithRunID(ctx, b.ID)

	if q.limiter != nil {
		if err := q.limiter.Wait(ctx); err != nil {
			res.Err = fmt.Errorf("throttle: %w", err)
			return res
		}
	}
	res.Waited = time.Since(b.SubmittedAt)

	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("batch.panic", "worker_id", workerID, "batch_id", b.ID, "panic", r)
			res.Err = common.NewAppError("BATCH_PANIC", fmt.Sprint(r), common.ErrInternal)
		}
	}()

	start := time.Now()
	res.Result, res.Err = q.runner.Process(ctx, b.Paths, b.Selection)
	res.Elapsed = time.Since(start)

	if res.Err != nil {
		q.logger.Error("batch.failed", "worker_id", workerID, "batch_id", b.ID, "error", res.Err)
	} else {
		q.logger.Info("batch.ok",
			"worker_id", workerID,
			"batch_id", b.ID,
			"sources", len(b.Paths),
			"records", len(res.Result.Records),
			"waited_ms", res.Waited.Milliseconds(),
			"elapsed_ms", res.Elapsed.Milliseconds(),
		)
	}
	return res
}

// Submit enqueues b and returns a channel that receives exactly one result.
// It blocks while the queue is full until ctx is done.
func (q *BatchQueue) Submit(ctx context.Context, b Batch) (<-chan BatchResult, error) {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.SubmittedAt.IsZero() {
		b.SubmittedAt = time.Now()
	}
	j := job{batch: b, out: make(chan BatchResult, 1)}

	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		q.logger.Warn("batch.rejected", "batch_id", b.ID, "reason", "shutting down")
		return nil, ErrQueueClosed
	}
	select {
	case q.ch <- j:
		q.logger.Info("batch.queued", "batch_id", b.ID, "sources", len(b.Paths), "depth", len(q.ch))
		return j.out, nil
	case <-ctx.Done():
		q.logger.Warn("batch.rejected", "batch_id", b.ID, "reason", "queue full")
		return nil, ctx.Err()
	}
}

// Shutdown stops accepting batches and waits for queued ones to finish.
func (q *BatchQueue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("batch.shutdown.interrupted")
		return ctx.Err()
	case <-done:
		q.logger.Info("batch.shutdown.drained")
		return nil
	}
}
