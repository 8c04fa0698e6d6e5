package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// CancelledReason is the fixed rollback reason recorded for user-initiated
// cancellation.
const CancelledReason = "Cancelled"

// RolloutWorkflowConfig bounds the coordinator's calls to external systems.
// Zero values fall back to defaults.
type RolloutWorkflowConfig struct {
	// MaxConcurrency caps how many per-target applies run at once within a
	// stage. Zero means one slot per stage target.
	MaxConcurrency int

	// DeployTimeout and SnapshotTimeout bound a single call to the deployer
	// and the health evaluator. External calls must not hang the
	// coordinator; a timed-out call counts as a failure.
	DeployTimeout   time.Duration
	SnapshotTimeout time.Duration

	// DeployRetries and RevertRetries are per-target retry budgets on top
	// of the first attempt.
	DeployRetries int
	RevertRetries int
}

func (c RolloutWorkflowConfig) deployTimeout() time.Duration {
	if c.DeployTimeout > 0 {
		return c.DeployTimeout
	}
	return 2 * time.Minute
}

func (c RolloutWorkflowConfig) snapshotTimeout() time.Duration {
	if c.SnapshotTimeout > 0 {
		return c.SnapshotTimeout
	}
	return 30 * time.Second
}

func (c RolloutWorkflowConfig) deployAttempts() int {
	if c.DeployRetries > 0 {
		return c.DeployRetries + 1
	}
	return 3
}

func (c RolloutWorkflowConfig) revertAttempts() int {
	if c.RevertRetries > 0 {
		return c.RevertRetries + 1
	}
	return 4
}

// RolloutWorkflow drives a rollout stage by stage: apply the stage's
// targets with bounded concurrency, wait the evaluation window, gate on
// health, then advance or roll back. The workflow owns the aggregate for
// its whole active lifetime; nothing else writes it.
type RolloutWorkflow struct {
	Rollouts RolloutRepository
	Deployer Deployer
	Health   HealthEvaluator
	Config   RolloutWorkflowConfig
	Logger   *zap.Logger
}

func (w *RolloutWorkflow) Name() string { return "rollout" }

func (w *RolloutWorkflow) logger() *zap.Logger {
	if w.Logger != nil {
		return w.Logger
	}
	return zap.NewNop()
}

// ApplyInput is the per-target input for deploy and revert activities.
type ApplyInput struct {
	Subject SubjectID
	Target  Target
	Version string
}

// ApplyResult is the per-target outcome of a deploy or revert. Failures
// are data, not activity errors, so one target's failure never aborts its
// siblings mid-flight.
type ApplyResult struct {
	TargetID TargetID
	OK       bool
	Reason   string
}

// SnapshotInput asks the health evaluator for a snapshot of the subject's
// active targets.
type SnapshotInput struct {
	Subject SubjectID
	Targets []Target
}

// SnapshotResult carries the snapshot, or the fail-closed reason when the
// evaluator itself failed.
type SnapshotResult struct {
	Snapshot HealthSnapshot
	OK       bool
	Reason   string
}

// LoadRollout loads the aggregate. Also used as the cancellation
// checkpoint: the body re-reads CancelRequested through it.
func (w *RolloutWorkflow) LoadRollout() Activity[RolloutID, Rollout] {
	return NewActivity("load-rollout", func(ctx context.Context, id RolloutID) (Rollout, error) {
		return w.Rollouts.Get(ctx, id)
	})
}

// SaveRollout persists the aggregate, stamping terminal timestamps. It
// returns the stamped aggregate so the workflow body stays deterministic
// (clock reads happen only inside activities).
func (w *RolloutWorkflow) SaveRollout() Activity[Rollout, Rollout] {
	return NewActivity("save-rollout", func(ctx context.Context, ro Rollout) (Rollout, error) {
		now := time.Now().UTC()
		if ro.Status.Terminal() && ro.CompletedAt.IsZero() {
			ro.CompletedAt = now
		}
		if ro.Status == RolloutRolledBack && ro.RolledBackAt.IsZero() {
			ro.RolledBackAt = now
		}
		if err := w.Rollouts.Update(ctx, ro); err != nil {
			return Rollout{}, err
		}
		return ro, nil
	})
}

// DeployTarget applies the target version to one target, retrying within
// the budget. A timed-out or exhausted apply is reported as a failed
// result, never as an activity error.
func (w *RolloutWorkflow) DeployTarget() Activity[ApplyInput, ApplyResult] {
	return NewActivity("deploy-target", func(ctx context.Context, in ApplyInput) (ApplyResult, error) {
		return w.apply(ctx, in, w.Config.deployAttempts()), nil
	})
}

// RevertTarget applies the previous version to one target with the revert
// retry budget.
func (w *RolloutWorkflow) RevertTarget() Activity[ApplyInput, ApplyResult] {
	return NewActivity("revert-target", func(ctx context.Context, in ApplyInput) (ApplyResult, error) {
		return w.apply(ctx, in, w.Config.revertAttempts()), nil
	})
}

func (w *RolloutWorkflow) apply(ctx context.Context, in ApplyInput, attempts int) ApplyResult {
	var lastErr error
	for i := 0; i < attempts; i++ {
		callCtx, cancel := context.WithTimeout(ctx, w.Config.deployTimeout())
		err := w.Deployer.Apply(callCtx, in.Subject, in.Target, in.Version)
		cancel()
		if err == nil {
			return ApplyResult{TargetID: in.Target.ID, OK: true}
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return ApplyResult{TargetID: in.Target.ID, Reason: lastErr.Error()}
}

// SnapshotHealth fetches a health snapshot for the active targets. An
// evaluator error or timeout becomes a failed result (fail-closed).
func (w *RolloutWorkflow) SnapshotHealth() Activity[SnapshotInput, SnapshotResult] {
	return NewActivity("snapshot-health", func(ctx context.Context, in SnapshotInput) (SnapshotResult, error) {
		callCtx, cancel := context.WithTimeout(ctx, w.Config.snapshotTimeout())
		defer cancel()
		snap, err := w.Health.Snapshot(callCtx, in.Subject, in.Targets)
		if err != nil {
			return SnapshotResult{Reason: fmt.Sprintf("health snapshot failed: %v", err)}, nil
		}
		return SnapshotResult{Snapshot: snap, OK: true}, nil
	})
}

// Run executes the rollout to a terminal status. The returned error is nil
// for every self-handled outcome (completed, rolled back, failed health);
// it is non-nil only for infrastructure failures and for rollback failure,
// the one condition that must escalate.
func (w *RolloutWorkflow) Run(runner DurableRunner, id RolloutID) (struct{}, error) {
	log := w.logger().With(
		zap.String("rollout", string(id)),
		zap.String("execution", runner.ID()),
	)

	ro, err := RunActivity(runner, w.LoadRollout(), id)
	if err != nil {
		return struct{}{}, fmt.Errorf("load rollout: %w", err)
	}
	log = log.With(zap.String("subject", string(ro.Subject)))

	switch ro.Status {
	case RolloutPlanning:
		if err := ro.Transition(RolloutDeploying); err != nil {
			return struct{}{}, err
		}
		if ro, err = RunActivity(runner, w.SaveRollout(), ro); err != nil {
			return struct{}{}, fmt.Errorf("save rollout: %w", err)
		}
	case RolloutDeploying:
		// Resuming after a restart; continue from the persisted stage index.
	case RolloutRollingBack:
		return w.rollback(runner, ro, log, w.rollbackReason(ro))
	default:
		// Terminal; nothing to do. Keeps re-delivery of the workflow
		// harmless.
		return struct{}{}, nil
	}

	stages, err := PlanStages(ro.Strategy, ro.Targets)
	if err != nil {
		return w.fail(runner, ro, log, fmt.Sprintf("plan stages: %v", err))
	}
	log.Info("rollout deploying",
		zap.String("strategy", string(ro.Strategy.Type)),
		zap.Int("stages", len(stages)),
		zap.Int("targets", len(ro.Targets)),
	)

	thresholds := ro.Strategy.Thresholds()

	for i := ro.CurrentStageIndex; i < len(stages); i++ {
		stage := stages[i]

		cancelled, reason, err := w.checkCancelled(runner, &ro)
		if err != nil {
			return struct{}{}, err
		}
		if cancelled {
			return w.rollback(runner, ro, log, reason)
		}

		if gateReason, err := w.deployStage(runner, &ro, log, stage); err != nil {
			return struct{}{}, err
		} else if gateReason != "" {
			return w.gateFailed(runner, ro, log, gateReason)
		}

		if stage.RequiresHealthCheck {
			if err := runner.Sleep(stage.EvaluationWindow); err != nil {
				return w.rollback(runner, ro, log, w.sleepReason(runner, &ro, err))
			}
			cancelled, reason, err := w.checkCancelled(runner, &ro)
			if err != nil {
				return struct{}{}, err
			}
			if cancelled {
				return w.rollback(runner, ro, log, reason)
			}

			verdict, err := w.evaluateGate(runner, ro, thresholds)
			if err != nil {
				return struct{}{}, err
			}
			log.Info("health gate evaluated",
				zap.Int("stage", stage.Index),
				zap.Bool("passed", verdict.Passed),
				zap.String("reason", verdict.Reason),
			)
			if !verdict.Passed {
				return w.gateFailed(runner, ro, log, verdict.Reason)
			}
		}

		for _, t := range ro.TargetsWithStatus(TargetActive) {
			ro.SetTargetStatus(t.ID, TargetHealthy)
		}
		ro.CurrentStageIndex = i + 1
		if ro, err = RunActivity(runner, w.SaveRollout(), ro); err != nil {
			return struct{}{}, fmt.Errorf("save rollout: %w", err)
		}
		log.Info("stage complete", zap.Int("stage", stage.Index), zap.Int("percentage", stage.Percentage))

		if stage.PauseAfter > 0 {
			if err := runner.Sleep(stage.PauseAfter); err != nil {
				return w.rollback(runner, ro, log, w.sleepReason(runner, &ro, err))
			}
		}
	}

	if err := ro.Transition(RolloutCompleted); err != nil {
		return struct{}{}, err
	}
	if ro, err = RunActivity(runner, w.SaveRollout(), ro); err != nil {
		return struct{}{}, fmt.Errorf("save rollout: %w", err)
	}
	log.Info("rollout completed", zap.String("version", ro.TargetVersion))
	return struct{}{}, nil
}

// deployStage applies the stage's targets concurrently and applies the
// strategy's abort policy. It returns a non-empty gate reason when the
// stage failed and the rollout must roll back.
func (w *RolloutWorkflow) deployStage(runner DurableRunner, ro *Rollout, log *zap.Logger, stage Stage) (string, error) {
	var toApply []Target
	for _, id := range stage.Targets {
		t, ok := ro.Target(id)
		if !ok {
			continue
		}
		status := ro.TargetStatus(id)
		if stage.Reapply {
			if status != TargetFailed {
				toApply = append(toApply, t)
			}
			continue
		}
		if status == TargetPending {
			toApply = append(toApply, t)
		}
	}
	if len(toApply) == 0 {
		return "", nil
	}

	inputs := make([]ApplyInput, len(toApply))
	for i, t := range toApply {
		inputs[i] = ApplyInput{Subject: ro.Subject, Target: t, Version: ro.TargetVersion}
	}

	limit := w.Config.MaxConcurrency
	if limit <= 0 || limit > len(inputs) {
		limit = len(inputs)
	}
	log.Info("deploying stage",
		zap.Int("stage", stage.Index),
		zap.Int("targets", len(inputs)),
		zap.Int("concurrency", limit),
	)

	outcomes := RunActivities(runner, w.DeployTarget(), inputs, limit)

	succeeded := 0
	firstFailure := ""
	for i, outcome := range outcomes {
		target := toApply[i]
		result := outcome.Out
		if outcome.Err != nil {
			result = ApplyResult{TargetID: target.ID, Reason: outcome.Err.Error()}
		}
		if result.OK {
			ro.SetTargetStatus(target.ID, TargetActive)
			succeeded++
			continue
		}
		ro.SetTargetStatus(target.ID, TargetFailed)
		log.Warn("target deploy failed",
			zap.String("target", string(target.ID)),
			zap.String("reason", result.Reason),
		)
		if firstFailure == "" {
			firstFailure = fmt.Sprintf("deploy failed for target %q: %s", target.ID, result.Reason)
		}
	}

	saved, err := RunActivity(runner, w.SaveRollout(), *ro)
	if err != nil {
		return "", fmt.Errorf("save rollout: %w", err)
	}
	*ro = saved

	if firstFailure == "" {
		return "", nil
	}
	if ro.Strategy.AbortOnTargetFailure() {
		return firstFailure, nil
	}
	ratio := float64(succeeded) / float64(len(toApply))
	if ratio < ro.Strategy.Thresholds().SuccessRateMin {
		return fmt.Sprintf("stage %d deploy success rate %.3f below minimum %.3f",
			stage.Index, ratio, ro.Strategy.Thresholds().SuccessRateMin), nil
	}
	return "", nil
}

func (w *RolloutWorkflow) evaluateGate(runner DurableRunner, ro Rollout, thresholds HealthThresholds) (HealthVerdict, error) {
	active := ro.TargetsWithStatus(TargetActive, TargetHealthy)
	snap, err := RunActivity(runner, w.SnapshotHealth(), SnapshotInput{Subject: ro.Subject, Targets: active})
	if err != nil {
		return HealthVerdict{}, fmt.Errorf("snapshot health: %w", err)
	}
	if !snap.OK {
		return HealthVerdict{Reason: snap.Reason}, nil
	}
	return EvaluateHealth(snap.Snapshot, thresholds), nil
}

// checkCancelled re-reads the aggregate and reports whether cancellation
// was requested. The fresh copy replaces the body's copy so manual
// rollback reasons set by the service are picked up.
func (w *RolloutWorkflow) checkCancelled(runner DurableRunner, ro *Rollout) (bool, string, error) {
	fresh, err := RunActivity(runner, w.LoadRollout(), ro.ID)
	if err != nil {
		return false, "", fmt.Errorf("load rollout: %w", err)
	}
	ro.CancelRequested = fresh.CancelRequested
	if fresh.RollbackReason != "" {
		ro.RollbackReason = fresh.RollbackReason
	}
	if !ro.CancelRequested {
		return false, "", nil
	}
	return true, w.rollbackReason(*ro), nil
}

func (w *RolloutWorkflow) rollbackReason(ro Rollout) string {
	if ro.RollbackReason != "" {
		return ro.RollbackReason
	}
	return CancelledReason
}

// sleepReason resolves the rollback reason after a woken or failed wait.
// A cancellation request, confirmed against the store, uses the requested
// reason; anything else is an engine failure and the reason records it
// rather than claiming cancellation.
func (w *RolloutWorkflow) sleepReason(runner DurableRunner, ro *Rollout, sleepErr error) string {
	cancelled, reason, err := w.checkCancelled(runner, ro)
	if err == nil && cancelled {
		return reason
	}
	if errors.Is(sleepErr, context.Canceled) {
		return w.rollbackReason(*ro)
	}
	return fmt.Sprintf("evaluation wait failed: %v", sleepErr)
}

// gateFailed routes a failed health gate (or aborted stage) to automatic
// rollback, or to the failed state when automatic rollback is disabled.
func (w *RolloutWorkflow) gateFailed(runner DurableRunner, ro Rollout, log *zap.Logger, reason string) (struct{}, error) {
	if !ro.AutoRollback {
		log.Warn("automatic rollback disabled, marking rollout failed", zap.String("reason", reason))
		return w.fail(runner, ro, log, reason)
	}
	return w.rollback(runner, ro, log, reason)
}

// rollback reverts every touched target to the previous version with the
// same bounded concurrency as forward deployment. A target that cannot be
// reverted within its retry budget moves the rollout to failed instead of
// rolled back; that unreverted set is the one condition surfaced for
// manual operator action.
func (w *RolloutWorkflow) rollback(runner DurableRunner, ro Rollout, log *zap.Logger, reason string) (struct{}, error) {
	log.Warn("rolling back", zap.String("reason", reason))

	ro.RollbackReason = reason
	if ro.Status != RolloutRollingBack {
		if err := ro.Transition(RolloutRollingBack); err != nil {
			return struct{}{}, err
		}
	}
	var err error
	if ro, err = RunActivity(runner, w.SaveRollout(), ro); err != nil {
		return struct{}{}, fmt.Errorf("save rollout: %w", err)
	}

	touched := ro.TouchedTargets()
	inputs := make([]ApplyInput, len(touched))
	for i, t := range touched {
		inputs[i] = ApplyInput{Subject: ro.Subject, Target: t, Version: ro.PreviousVersion}
	}
	limit := w.Config.MaxConcurrency
	if limit <= 0 || limit > len(inputs) {
		limit = len(inputs)
	}

	var unreverted []TargetID
	if len(inputs) > 0 {
		outcomes := RunActivities(runner, w.RevertTarget(), inputs, limit)
		for i, outcome := range outcomes {
			target := touched[i]
			if outcome.Err == nil && outcome.Out.OK {
				ro.SetTargetStatus(target.ID, TargetRolledBack)
				continue
			}
			unreverted = append(unreverted, target.ID)
		}
	}

	if len(unreverted) > 0 {
		msg := fmt.Sprintf("rollback incomplete: %d target(s) not reverted: %v", len(unreverted), unreverted)
		if _, err := w.fail(runner, ro, log, msg); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, fmt.Errorf("%w: targets %v not reverted", ErrRollbackFailed, unreverted)
	}

	ro.CurrentStageIndex = 0
	if err := ro.Transition(RolloutRolledBack); err != nil {
		return struct{}{}, err
	}
	if ro, err = RunActivity(runner, w.SaveRollout(), ro); err != nil {
		return struct{}{}, fmt.Errorf("save rollout: %w", err)
	}
	log.Info("rollback complete", zap.String("reason", reason), zap.Int("reverted", len(touched)))
	return struct{}{}, nil
}

func (w *RolloutWorkflow) fail(runner DurableRunner, ro Rollout, log *zap.Logger, msg string) (struct{}, error) {
	ro.ErrorMessage = msg
	if err := ro.Transition(RolloutFailed); err != nil {
		return struct{}{}, err
	}
	if _, err := RunActivity(runner, w.SaveRollout(), ro); err != nil {
		return struct{}{}, fmt.Errorf("save rollout: %w", err)
	}
	log.Error("rollout failed", zap.String("error", msg))
	return struct{}{}, nil
}
