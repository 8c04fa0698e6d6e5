package domain

import (
	"fmt"
	"time"
)

// RolloutID identifies a rollout.
type RolloutID string

// SubjectID identifies the thing being rolled out: an operator name, a
// service, or a feature flag. At most one rollout per subject may be
// active at a time.
type SubjectID string

// RolloutStatus is the rollout's position in its lifecycle state machine:
//
//	planning -> deploying -> completed
//	                      -> rolling-back -> rolled-back
//	                                      -> failed
//
// Failed is reached only when rollback itself cannot complete. Completed,
// rolled-back, and failed are final.
type RolloutStatus string

const (
	RolloutPlanning    RolloutStatus = "planning"
	RolloutDeploying   RolloutStatus = "deploying"
	RolloutCompleted   RolloutStatus = "completed"
	RolloutRollingBack RolloutStatus = "rolling-back"
	RolloutRolledBack  RolloutStatus = "rolled-back"
	RolloutFailed      RolloutStatus = "failed"
)

// Terminal reports whether the status is final.
func (s RolloutStatus) Terminal() bool {
	switch s {
	case RolloutCompleted, RolloutRolledBack, RolloutFailed:
		return true
	default:
		return false
	}
}

// ActiveStatuses are the statuses that count toward the single-flight
// invariant.
var ActiveStatuses = []RolloutStatus{RolloutPlanning, RolloutDeploying, RolloutRollingBack}

var rolloutTransitions = map[RolloutStatus][]RolloutStatus{
	RolloutPlanning:    {RolloutDeploying, RolloutFailed},
	RolloutDeploying:   {RolloutCompleted, RolloutRollingBack, RolloutFailed},
	RolloutRollingBack: {RolloutRolledBack, RolloutFailed},
}

// Rollout is the aggregate the coordinator owns for a rollout's whole
// active lifetime. Mutable fields are written only by the coordinator
// while it holds the subject's single-flight lock; once the status is
// terminal the aggregate is read-only.
type Rollout struct {
	ID              RolloutID
	Subject         SubjectID
	TargetVersion   string
	PreviousVersion string
	Strategy        Strategy
	Targets         []Target

	Status            RolloutStatus
	CurrentStageIndex int
	TargetStatuses    map[TargetID]TargetStatus

	AutoRollback    bool
	CancelRequested bool
	RollbackReason  string
	ErrorMessage    string

	StartedAt    time.Time
	CompletedAt  time.Time
	RolledBackAt time.Time
}

// Transition moves the rollout to a new status, enforcing the state
// machine. Terminal states admit no further transitions.
func (r *Rollout) Transition(to RolloutStatus) error {
	for _, allowed := range rolloutTransitions[r.Status] {
		if allowed == to {
			r.Status = to
			return nil
		}
	}
	return fmt.Errorf("%w: cannot transition rollout %q from %s to %s",
		ErrInvalidArgument, r.ID, r.Status, to)
}

// SetTargetStatus records a target's status, initializing the map if needed.
func (r *Rollout) SetTargetStatus(id TargetID, status TargetStatus) {
	if r.TargetStatuses == nil {
		r.TargetStatuses = make(map[TargetID]TargetStatus, len(r.Targets))
	}
	r.TargetStatuses[id] = status
}

// TargetStatus returns the recorded status for a target, defaulting to
// pending.
func (r *Rollout) TargetStatus(id TargetID) TargetStatus {
	if s, ok := r.TargetStatuses[id]; ok {
		return s
	}
	return TargetPending
}

// TargetsWithStatus returns the targets currently in any of the given
// statuses, preserving target-set order.
func (r *Rollout) TargetsWithStatus(statuses ...TargetStatus) []Target {
	var out []Target
	for _, t := range r.Targets {
		current := r.TargetStatus(t.ID)
		for _, s := range statuses {
			if current == s {
				out = append(out, t)
				break
			}
		}
	}
	return out
}

// TouchedTargets returns every target the rollout has applied to, i.e. the
// set rollback must revert.
func (r *Rollout) TouchedTargets() []Target {
	return r.TargetsWithStatus(TargetActive, TargetHealthy, TargetFailed)
}

// Target returns the rollout's target with the given ID.
func (r *Rollout) Target(id TargetID) (Target, bool) {
	for _, t := range r.Targets {
		if t.ID == id {
			return t, true
		}
	}
	return Target{}, false
}
