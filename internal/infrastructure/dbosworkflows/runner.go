// Package dbosworkflows implements [domain.WorkflowEngine] using
// the DBOS Transact Go SDK.
package dbosworkflows

import (
	"context"
	"fmt"
	"time"

	"github.com/dbos-inc/dbos-transact-golang/dbos"

	"github.com/stagegate/stagegate-server/internal/domain"
)

// activityInvoker calls RunAsStep with the correct concrete output type.
// Created at construction time when concrete types are known.
type activityInvoker func(ctx dbos.DBOSContext, in any) (any, error)

// Engine implements [domain.WorkflowEngine] backed by DBOS.
//
// The caller must call [dbos.Launch] after creating runners and before
// invoking them.
type Engine struct {
	DBOSCtx dbos.DBOSContext
}

func (e *Engine) RolloutRunner(wf *domain.RolloutWorkflow) (domain.RolloutRunner, error) {
	invokers := make(map[string]activityInvoker)

	registerActivity(invokers, wf.LoadRollout())
	registerActivity(invokers, wf.SaveRollout())
	registerActivity(invokers, wf.DeployTarget())
	registerActivity(invokers, wf.SnapshotHealth())
	registerActivity(invokers, wf.RevertTarget())

	wfFunc := func(ctx dbos.DBOSContext, rolloutID domain.RolloutID) (struct{}, error) {
		runner := &durableRunner{ctx: ctx, invokers: invokers}
		return wf.Run(runner, rolloutID)
	}

	dbos.RegisterWorkflow(e.DBOSCtx, wfFunc, dbos.WithWorkflowName(wf.Name()))

	return &rolloutRunner{
		dbosCtx: e.DBOSCtx,
		wfFunc:  wfFunc,
	}, nil
}

// registerActivity creates a typed invoker that calls [dbos.RunAsStep]
// with the concrete output type O, ensuring correct JSON deserialization
// during workflow replay.
func registerActivity[I, O any](invokers map[string]activityInvoker, activity domain.Activity[I, O]) {
	invokers[activity.Name()] = func(ctx dbos.DBOSContext, in any) (any, error) {
		return dbos.RunAsStep(ctx, func(stepCtx context.Context) (O, error) {
			return activity.Run(stepCtx, in.(I))
		}, dbos.WithStepName(activity.Name()))
	}
}

type durableRunner struct {
	ctx      dbos.DBOSContext
	invokers map[string]activityInvoker
}

func (r *durableRunner) ID() string {
	id, _ := dbos.GetWorkflowID(r.ctx)
	return id
}

func (r *durableRunner) Context() context.Context {
	return r.ctx
}

func (r *durableRunner) Run(activity domain.Activity[any, any], in any) (any, error) {
	invoke, ok := r.invokers[activity.Name()]
	if !ok {
		return nil, fmt.Errorf("activity %q not registered", activity.Name())
	}
	return invoke(r.ctx, in)
}

// RunAll runs the activity once per input. DBOS steps execute sequentially
// within a workflow so replay stays deterministic; the limit only applies
// to engines that fan out.
func (r *durableRunner) RunAll(activity domain.Activity[any, any], ins []any, limit int) []domain.ActivityResult {
	results := make([]domain.ActivityResult, len(ins))
	for i, in := range ins {
		out, err := r.Run(activity, in)
		results[i] = domain.ActivityResult{Out: out, Err: err}
	}
	return results
}

func (r *durableRunner) Sleep(d time.Duration) error {
	if d <= 0 {
		return nil
	}
	_, err := dbos.Sleep(r.ctx, d)
	return err
}

type rolloutRunner struct {
	dbosCtx dbos.DBOSContext
	wfFunc  dbos.Workflow[domain.RolloutID, struct{}]
}

func (r *rolloutRunner) Run(ctx context.Context, rolloutID domain.RolloutID) (domain.WorkflowHandle[struct{}], error) {
	handle, err := dbos.RunWorkflow(r.dbosCtx, r.wfFunc, rolloutID)
	if err != nil {
		return nil, fmt.Errorf("run DBOS workflow: %w", err)
	}
	return &workflowHandle{handle: handle}, nil
}

type workflowHandle struct {
	handle dbos.WorkflowHandle[struct{}]
}

func (h *workflowHandle) WorkflowID() string {
	return h.handle.GetWorkflowID()
}

func (h *workflowHandle) AwaitResult(_ context.Context) (struct{}, error) {
	return h.handle.GetResult()
}
