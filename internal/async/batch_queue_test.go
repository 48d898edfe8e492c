package async

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/invoice-extractor/internal/common"
	"github.com/joseph-ayodele/invoice-extractor/internal/entity"
	"github.com/joseph-ayodele/invoice-extractor/internal/pipeline"
)

type runnerFunc func(ctx context.Context, paths, selection []string) (pipeline.Result, error)

func (f runnerFunc) Process(ctx context.Context, paths, selection []string) (pipeline.Result, error) {
	return f(ctx, paths, selection)
}

func recordsFor(paths []string) pipeline.Result {
	var res pipeline.Result
	for _, p := range paths {
		res.Records = append(res.Records, entity.FinalRecord{Record: entity.Record{DocumentID: p}})
	}
	return res
}

func TestBatchQueue_ProcessesAndDelivers(t *testing.T) {
	runner := runnerFunc(func(_ context.Context, paths, selection []string) (pipeline.Result, error) {
		assert.Equal(t, []string{"invoice_number"}, selection)
		return recordsFor(paths), nil
	})
	q := NewBatchQueue(runner, nil, WithWorkers(2))

	ch, err := q.Submit(context.Background(), Batch{Paths: []string{"a.pdf", "b.jpg"}, Selection: []string{"invoice_number"}})
	require.NoError(t, err)
	res := <-ch
	require.NoError(t, res.Err)
	assert.NotEmpty(t, res.BatchID)
	assert.Len(t, res.Result.Records, 2)

	_, open := <-ch
	assert.False(t, open)
	require.NoError(t, q.Shutdown(context.Background()))
}

func TestBatchQueue_IntervalSpacesBatchStarts(t *testing.T) {
	var mu sync.Mutex
	var starts []time.Time
	runner := runnerFunc(func(context.Context, []string, []string) (pipeline.Result, error) {
		mu.Lock()
		starts = append(starts, time.Now())
		mu.Unlock()
		return pipeline.Result{}, nil
	})
	q := NewBatchQueue(runner, nil, WithWorkers(3), WithInterval(40*time.Millisecond))

	var chans []<-chan BatchResult
	for i := 0; i < 3; i++ {
		ch, err := q.Submit(context.Background(), Batch{Paths: []string{"x.pdf"}})
		require.NoError(t, err)
		chans = append(chans, ch)
	}
	for _, ch := range chans {
		require.NoError(t, (<-ch).Err)
	}
	require.NoError(t, q.Shutdown(context.Background()))

	require.Len(t, starts, 3)
	first, last := starts[0], starts[0]
	for _, s := range starts {
		if s.Before(first) {
			first = s
		}
		if s.After(last) {
			last = s
		}
	}
	assert.GreaterOrEqual(t, last.Sub(first), 70*time.Millisecond)
}

func TestBatchQueue_ErrorsAndPanics(t *testing.T) {
	runner := runnerFunc(func(_ context.Context, paths, _ []string) (pipeline.Result, error) {
		switch paths[0] {
		case "boom":
			panic("bad batch")
		case "empty":
			return pipeline.Result{}, common.ErrNoInput
		}
		return recordsFor(paths), nil
	})
	q := NewBatchQueue(runner, nil)
	defer func() { _ = q.Shutdown(context.Background()) }()

	ch, err := q.Submit(context.Background(), Batch{Paths: []string{"boom"}})
	require.NoError(t, err)
	assert.ErrorIs(t, (<-ch).Err, common.ErrInternal)

	ch, err = q.Submit(context.Background(), Batch{Paths: []string{"empty"}})
	require.NoError(t, err)
	assert.ErrorIs(t, (<-ch).Err, common.ErrNoInput)

	ch, err = q.Submit(context.Background(), Batch{ID: "after-panic", Paths: []string{"ok.pdf"}})
	require.NoError(t, err)
	res := <-ch
	assert.NoError(t, res.Err)
	assert.Equal(t, "after-panic", res.BatchID)
}

func TestBatchQueue_BatchTimeout(t *testing.T) {
	runner := runnerFunc(func(ctx context.Context, _, _ []string) (pipeline.Result, error) {
		<-ctx.Done()
		return pipeline.Result{}, ctx.Err()
	})
	q := NewBatchQueue(runner, nil, WithBatchTimeout(20*time.Millisecond))
	defer func() { _ = q.Shutdown(context.Background()) }()

	ch, err := q.Submit(context.Background(), Batch{Paths: []string{"slow.pdf"}})
	require.NoError(t, err)
	assert.ErrorIs(t, (<-ch).Err, context.DeadlineExceeded)
}

func TestBatchQueue_ShutdownDrainsAndRejects(t *testing.T) {
	release := make(chan struct{})
	runner := runnerFunc(func(_ context.Context, paths, _ []string) (pipeline.Result, error) {
		<-release
		return recordsFor(paths), nil
	})
	q := NewBatchQueue(runner, nil, WithWorkers(1), WithQueueSize(4))

	var chans []<-chan BatchResult
	for i := 0; i < 3; i++ {
		ch, err := q.Submit(context.Background(), Batch{Paths: []string{"p.pdf"}})
		require.NoError(t, err)
		chans = append(chans, ch)
	}

	done := make(chan error, 1)
	go func() { done <- q.Shutdown(context.Background()) }()

	require.Eventually(t, func() bool {
		_, err := q.Submit(context.Background(), Batch{Paths: []string{"late.pdf"}})
		return errors.Is(err, ErrQueueClosed)
	}, time.Second, 5*time.Millisecond)

	close(release)
	require.NoError(t, <-done)
	for _, ch := range chans {
		assert.NoError(t, (<-ch).Err)
	}
}

func TestBatchQueue_SubmitRespectsContextWhenFull(t *testing.T) {
	block := make(chan struct{})
	runner := runnerFunc(func(context.Context, []string, []string) (pipeline.Result, error) {
		<-block
		return pipeline.Result{}, nil
	})
	q := NewBatchQueue(runner, nil, WithWorkers(1), WithQueueSize(1))
	defer func() {
		close(block)
		_ = q.Shutdown(context.Background())
	}()

	_, err := q.Submit(context.Background(), Batch{Paths: []string{"1"}})
	require.NoError(t, err)
	// wait until the worker has taken the first batch so the buffer is free
	time.Sleep(20 * time.Millisecond)
	_, err = q.Submit(context.Background(), Batch{Paths: []string{"2"}})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = q.Submit(ctx, Batch{Paths: []string{"3"}})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
