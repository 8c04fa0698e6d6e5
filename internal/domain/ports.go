package domain

import "context"

// Deployer applies a version (or value) to a single target. Implementations
// must be idempotent for a given (target, version) pair: the coordinator may
// call Apply again after a timeout. Rollback uses the same port with the
// previous version.
type Deployer interface {
	Apply(ctx context.Context, subject SubjectID, target Target, version string) error
}

// HealthEvaluator produces a health snapshot for the currently active
// targets. It may call out to a metrics backend; an error is treated as a
// failed health check (fail-closed).
type HealthEvaluator interface {
	Snapshot(ctx context.Context, subject SubjectID, targets []Target) (HealthSnapshot, error)
}

// RolloutRepository persists and retrieves rollout aggregates.
type RolloutRepository interface {
	Create(ctx context.Context, r Rollout) error
	Get(ctx context.Context, id RolloutID) (Rollout, error)
	List(ctx context.Context) ([]Rollout, error)
	Update(ctx context.Context, r Rollout) error

	// ActiveBySubject returns the subject's active rollout, or ErrNotFound
	// when there is none. Backed by a subject index so the single-flight
	// invariant holds across process restarts.
	ActiveBySubject(ctx context.Context, subject SubjectID) (Rollout, error)

	// RequestCancel atomically sets the cancel flag, and the rollback
	// reason when non-empty, on an active rollout. It must write nothing
	// else: the coordinator owns the rest of the aggregate while the
	// rollout is active, and a full-row write here could race a terminal
	// save. Terminal rollouts return ErrInvalidArgument, unknown IDs
	// ErrNotFound.
	RequestCancel(ctx context.Context, id RolloutID, reason string) error
}

// TargetRepository persists and retrieves the registered target pool.
type TargetRepository interface {
	Create(ctx context.Context, target Target) error
	Get(ctx context.Context, id TargetID) (Target, error)
	List(ctx context.Context) ([]Target, error)
	Delete(ctx context.Context, id TargetID) error
}
