// Package goworkflows implements [domain.WorkflowEngine] using
// cschleiden/go-workflows for durable workflow execution.
package goworkflows

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/cschleiden/go-workflows/client"
	"github.com/cschleiden/go-workflows/registry"
	"github.com/cschleiden/go-workflows/worker"
	"github.com/cschleiden/go-workflows/workflow"
	"github.com/google/uuid"

	"github.com/stagegate/stagegate-server/internal/domain"
)

// activityStarter schedules an activity from the workflow context with the
// correct generic types and returns an awaiter for its future. Created at
// construction time when concrete types are known; splitting start from
// await lets RunAll fan activities out before collecting results.
type activityStarter func(wfCtx workflow.Context, in any) activityAwait

type activityAwait func(wfCtx workflow.Context) (any, error)

// Engine implements [domain.WorkflowEngine] backed by go-workflows.
type Engine struct {
	Worker *worker.Worker
	Client *client.Client

	// Timeout caps how long AwaitResult waits when the caller's context
	// carries no deadline. Zero means wait as long as the rollout runs;
	// evaluation windows routinely span hours.
	Timeout time.Duration
}

func (e *Engine) RolloutRunner(wf *domain.RolloutWorkflow) (domain.RolloutRunner, error) {
	starters := make(map[string]activityStarter)

	if err := registerActivity(e.Worker, starters, wf.LoadRollout()); err != nil {
		return nil, err
	}
	if err := registerActivity(e.Worker, starters, wf.SaveRollout()); err != nil {
		return nil, err
	}
	if err := registerActivity(e.Worker, starters, wf.DeployTarget()); err != nil {
		return nil, err
	}
	if err := registerActivity(e.Worker, starters, wf.SnapshotHealth()); err != nil {
		return nil, err
	}
	if err := registerActivity(e.Worker, starters, wf.RevertTarget()); err != nil {
		return nil, err
	}

	wfFunc := func(ctx workflow.Context, rolloutID domain.RolloutID) (struct{}, error) {
		runner := &durableRunner{wfCtx: ctx, starters: starters}
		return wf.Run(runner, rolloutID)
	}

	if err := e.Worker.RegisterWorkflow(wfFunc, registry.WithName(wf.Name())); err != nil {
		return nil, fmt.Errorf("register workflow %q: %w", wf.Name(), err)
	}

	return &rolloutRunner{
		client:  e.Client,
		wfName:  wf.Name(),
		timeout: e.Timeout,
	}, nil
}

// registerActivity registers a typed activity with go-workflows and
// creates the corresponding typed starter.
func registerActivity[I, O any](
	w *worker.Worker,
	starters map[string]activityStarter,
	activity domain.Activity[I, O],
) error {
	activityFn := func(ctx context.Context, in I) (O, error) {
		return activity.Run(ctx, in)
	}

	if err := w.RegisterActivity(activityFn, registry.WithName(activity.Name())); err != nil {
		return fmt.Errorf("register activity %q: %w", activity.Name(), err)
	}

	starters[activity.Name()] = func(wfCtx workflow.Context, in any) activityAwait {
		future := workflow.ExecuteActivity[O](
			wfCtx, workflow.DefaultActivityOptions, activity.Name(), in,
		)
		return func(wfCtx workflow.Context) (any, error) {
			return future.Get(wfCtx)
		}
	}

	return nil
}

type durableRunner struct {
	wfCtx    workflow.Context
	starters map[string]activityStarter
}

func (r *durableRunner) ID() string {
	return workflow.WorkflowInstance(r.wfCtx).InstanceID
}

func (r *durableRunner) Context() context.Context {
	return context.Background()
}

func (r *durableRunner) Run(activity domain.Activity[any, any], in any) (any, error) {
	start, ok := r.starters[activity.Name()]
	if !ok {
		return nil, fmt.Errorf("activity %q not registered", activity.Name())
	}
	return start(r.wfCtx, in)(r.wfCtx)
}

// RunAll schedules the activity for up to limit inputs at a time and
// awaits each batch before starting the next.
func (r *durableRunner) RunAll(activity domain.Activity[any, any], ins []any, limit int) []domain.ActivityResult {
	results := make([]domain.ActivityResult, len(ins))
	start, ok := r.starters[activity.Name()]
	if !ok {
		err := fmt.Errorf("activity %q not registered", activity.Name())
		for i := range results {
			results[i] = domain.ActivityResult{Err: err}
		}
		return results
	}

	if limit <= 0 || limit > len(ins) {
		limit = len(ins)
	}
	for batchStart := 0; batchStart < len(ins); batchStart += limit {
		batchEnd := batchStart + limit
		if batchEnd > len(ins) {
			batchEnd = len(ins)
		}
		awaits := make([]activityAwait, 0, batchEnd-batchStart)
		for _, in := range ins[batchStart:batchEnd] {
			awaits = append(awaits, start(r.wfCtx, in))
		}
		for i, await := range awaits {
			out, err := await(r.wfCtx)
			results[batchStart+i] = domain.ActivityResult{Out: out, Err: err}
		}
	}
	return results
}

func (r *durableRunner) Sleep(d time.Duration) error {
	if d <= 0 {
		return nil
	}
	return workflow.Sleep(r.wfCtx, d)
}

type rolloutRunner struct {
	client  *client.Client
	wfName  string
	timeout time.Duration
}

func (r *rolloutRunner) Run(ctx context.Context, rolloutID domain.RolloutID) (domain.WorkflowHandle[struct{}], error) {
	instance, err := r.client.CreateWorkflowInstance(ctx, client.WorkflowInstanceOptions{
		InstanceID: uuid.NewString(),
	}, r.wfName, rolloutID)
	if err != nil {
		return nil, fmt.Errorf("create workflow instance: %w", err)
	}

	return &workflowHandle{
		client:   r.client,
		instance: instance,
		timeout:  r.timeout,
	}, nil
}

type workflowHandle struct {
	client   *client.Client
	instance *workflow.Instance
	timeout  time.Duration
}

func (h *workflowHandle) WorkflowID() string {
	return h.instance.InstanceID
}

// AwaitResult waits for the workflow to finish. The wait is bounded by the
// caller's context deadline when one is set, otherwise by the engine's
// configured cap; with neither it waits for as long as the rollout takes.
func (h *workflowHandle) AwaitResult(ctx context.Context) (struct{}, error) {
	timeout := h.timeout
	if timeout <= 0 {
		timeout = time.Duration(math.MaxInt64)
	}
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	return client.GetWorkflowResult[struct{}](ctx, h.client, h.instance, timeout)
}
