package domain

import (
	"context"
	"time"
)

// Activity is a named, typed, idempotent operation. Implementations must
// be safe for at-least-once invocation.
type Activity[I any, O any] interface {
	Name() string
	Run(ctx context.Context, in I) (O, error)
}

// DurableRunner is the capability object provided to a running workflow.
// It durably runs activities, provides cancellable timer sleeps for
// evaluation windows, and bounded-parallel execution for per-stage fan-out.
type DurableRunner interface {
	ID() string

	// Context returns the workflow execution context. In a durable engine
	// this is the deterministic replay context; in the synchronous backend
	// it is the caller's context.
	Context() context.Context

	// Run durably runs one activity. Callers should use [RunActivity] for
	// type safety.
	Run(activity Activity[any, any], in any) (any, error)

	// RunAll runs the activity once per input, at most limit at a time
	// (limit <= 0 means all at once). Results are positional; a failed
	// input does not stop its siblings. Callers should use [RunActivities].
	RunAll(activity Activity[any, any], ins []any, limit int) []ActivityResult

	// Sleep waits for d without blocking a worker the engine needs
	// elsewhere. It returns early with an error when the workflow is
	// cancelled.
	Sleep(d time.Duration) error
}

// ActivityResult is one positional outcome of [DurableRunner.RunAll].
type ActivityResult struct {
	Out any
	Err error
}

// ActivityOutcome is the typed counterpart of [ActivityResult].
type ActivityOutcome[O any] struct {
	Out O
	Err error
}

// RunActivity provides type-safe durable activity execution from within a
// workflow body.
func RunActivity[I any, O any](runner DurableRunner, activity Activity[I, O], in I) (O, error) {
	result, err := runner.Run(&activityAdapter[I, O]{activity: activity}, in)
	if err != nil {
		var zero O
		return zero, err
	}
	return result.(O), nil
}

// RunActivities fans the activity out over ins with bounded parallelism,
// returning one typed outcome per input.
func RunActivities[I any, O any](runner DurableRunner, activity Activity[I, O], ins []I, limit int) []ActivityOutcome[O] {
	anyIns := make([]any, len(ins))
	for i, in := range ins {
		anyIns[i] = in
	}
	results := runner.RunAll(&activityAdapter[I, O]{activity: activity}, anyIns, limit)
	outcomes := make([]ActivityOutcome[O], len(results))
	for i, r := range results {
		if r.Err != nil {
			outcomes[i] = ActivityOutcome[O]{Err: r.Err}
			continue
		}
		outcomes[i] = ActivityOutcome[O]{Out: r.Out.(O)}
	}
	return outcomes
}

// WorkflowHandle is a handle to a running or completed workflow execution.
type WorkflowHandle[O any] interface {
	WorkflowID() string
	AwaitResult(ctx context.Context) (O, error)
}

// RolloutRunner starts and awaits rollout workflows.
type RolloutRunner interface {
	Run(ctx context.Context, rolloutID RolloutID) (WorkflowHandle[struct{}], error)
}

// WorkflowEngine creates runners for the workflow types known to the
// domain. Infrastructure packages provide engine-specific implementations.
type WorkflowEngine interface {
	RolloutRunner(wf *RolloutWorkflow) (RolloutRunner, error)
}

// NewActivity creates an [Activity] from a stable name and a function.
// Workflow types use this to define their activities as methods.
func NewActivity[I, O any](name string, fn func(context.Context, I) (O, error)) Activity[I, O] {
	return &activityFunc[I, O]{name: name, fn: fn}
}

type activityFunc[I, O any] struct {
	name string
	fn   func(context.Context, I) (O, error)
}

func (a *activityFunc[I, O]) Name() string                             { return a.name }
func (a *activityFunc[I, O]) Run(ctx context.Context, in I) (O, error) { return a.fn(ctx, in) }

// activityAdapter bridges a typed [Activity] to the any-typed runner
// interface.
type activityAdapter[I any, O any] struct{ activity Activity[I, O] }

func (a *activityAdapter[I, O]) Name() string { return a.activity.Name() }
func (a *activityAdapter[I, O]) Run(ctx context.Context, in any) (any, error) {
	return a.activity.Run(ctx, in.(I))
}
