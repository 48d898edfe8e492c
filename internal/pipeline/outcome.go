package pipeline

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/invoice-extractor/constants"
)

// Outcome records what happened to one unit of work inside a stage.
type Outcome struct {
	Stage      constants.Stage         `json:"stage"`
	DocumentID string                  `json:"document_id"`
	PageIndex  int                     `json:"page_index"`
	Status     constants.OutcomeStatus `json:"status"`
	Records    int                     `json:"records"`
	Err        error                   `json:"-"`
}

// Error returns the failure message, or "" when the unit succeeded.
func (o Outcome) Error() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}

// PanicError wraps a value recovered from a panicking task.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("task panicked: %v", e.Value)
}

// fanOut calls fn for every index in [0, n) with at most limit calls in
// flight. Each call must write only to its own slot. A panic inside fn is
// recovered and handed to onPanic for that index; siblings keep running.
func fanOut(ctx context.Context, n, limit int, fn func(ctx context.Context, i int), onPanic func(i int, err error)) {
	if n == 0 {
		return
	}
	if limit <= 0 {
		limit = 1
	}
	var g errgroup.Group
	g.SetLimit(limit)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					onPanic(i, &PanicError{Value: r})
				}
			}()
			fn(ctx, i)
			return nil
		})
	}
	_ = g.Wait()
}
