// Package syncworkflow provides a synchronous, in-process
// [domain.WorkflowEngine]. Activities execute inline with no persistence
// or replay; per-stage fan-out is bounded with an errgroup.
package syncworkflow

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/stagegate/stagegate-server/internal/domain"
)

var runCounter atomic.Int64

// Engine implements [domain.WorkflowEngine] with synchronous, in-process
// execution. The workflow runs on its own goroutine per Run call; no
// durable state is kept.
type Engine struct{}

func (e *Engine) RolloutRunner(wf *domain.RolloutWorkflow) (domain.RolloutRunner, error) {
	return &runner{wf: wf}, nil
}

type runner struct {
	wf *domain.RolloutWorkflow
}

func (r *runner) Run(ctx context.Context, rolloutID domain.RolloutID) (domain.WorkflowHandle[struct{}], error) {
	id := runCounter.Add(1)
	h := &handle{id: id, done: make(chan struct{})}

	// Cancelling ctx wakes sleeps so the workflow can take its rollback
	// checkpoint, but activities (including the reverts that follow a
	// cancellation) keep a live context.
	dr := &syncRunner{
		id:          id,
		activityCtx: context.WithoutCancel(ctx),
		cancelCtx:   ctx,
	}

	go func() {
		defer close(h.done)
		h.result, h.err = r.wf.Run(dr, rolloutID)
	}()
	return h, nil
}

type syncRunner struct {
	id          int64
	activityCtx context.Context
	cancelCtx   context.Context
}

func (r *syncRunner) ID() string               { return fmt.Sprintf("sync-%d", r.id) }
func (r *syncRunner) Context() context.Context { return r.activityCtx }

func (r *syncRunner) Run(activity domain.Activity[any, any], in any) (any, error) {
	return activity.Run(r.activityCtx, in)
}

func (r *syncRunner) RunAll(activity domain.Activity[any, any], ins []any, limit int) []domain.ActivityResult {
	results := make([]domain.ActivityResult, len(ins))
	if len(ins) == 0 {
		return results
	}

	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, in := range ins {
		g.Go(func() error {
			out, err := activity.Run(r.activityCtx, in)
			results[i] = domain.ActivityResult{Out: out, Err: err}
			return nil
		})
	}
	g.Wait()
	return results
}

func (r *syncRunner) Sleep(d time.Duration) error {
	if d <= 0 {
		return r.cancelCtx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-r.cancelCtx.Done():
		return r.cancelCtx.Err()
	}
}

type handle struct {
	id     int64
	done   chan struct{}
	result struct{}
	err    error
}

func (h *handle) WorkflowID() string { return fmt.Sprintf("sync-%d", h.id) }

func (h *handle) AwaitResult(ctx context.Context) (struct{}, error) {
	select {
	case <-h.done:
		return h.result, h.err
	case <-ctx.Done():
		return struct{}{}, ctx.Err()
	}
}
