package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stagegate/stagegate-server/internal/domain"
)

// StartRolloutInput is the caller-provided specification for a new rollout.
type StartRolloutInput struct {
	Subject         domain.SubjectID
	TargetVersion   string
	PreviousVersion string
	Strategy        domain.Strategy
	Targets         []domain.Target

	// DisableAutoRollback leaves a failed rollout for manual handling
	// instead of reverting automatically.
	DisableAutoRollback bool
}

// RolloutService exposes the coordinator: start, cancel, inspect, and
// manually roll back rollouts. It enforces the single-flight invariant and
// owns the per-rollout cancellation contexts.
type RolloutService struct {
	Rollouts domain.RolloutRepository
	Locks    *domain.SubjectLocks
	Runner   domain.RolloutRunner
	Logger   *zap.Logger

	mu      sync.Mutex
	cancels map[domain.RolloutID]context.CancelFunc
	handles map[domain.RolloutID]domain.WorkflowHandle[struct{}]
}

func NewRolloutService(rollouts domain.RolloutRepository, locks *domain.SubjectLocks, runner domain.RolloutRunner, logger *zap.Logger) *RolloutService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RolloutService{
		Rollouts: rollouts,
		Locks:    locks,
		Runner:   runner,
		Logger:   logger,
		cancels:  make(map[domain.RolloutID]context.CancelFunc),
		handles:  make(map[domain.RolloutID]domain.WorkflowHandle[struct{}]),
	}
}

// Start validates the input, takes the subject's single-flight lock, creates
// the aggregate, and launches the rollout workflow. The lock is held for
// the rollout's whole active lifetime and released on every exit path.
func (s *RolloutService) Start(ctx context.Context, in StartRolloutInput) (domain.RolloutID, error) {
	if err := validateStartInput(in); err != nil {
		return "", err
	}

	id := domain.RolloutID(uuid.NewString())
	if err := s.Locks.TryAcquire(in.Subject, id); err != nil {
		return "", err
	}

	// A restart may have dropped in-process locks while an aggregate is
	// still active in the store; the subject index is authoritative then.
	if _, err := s.Rollouts.ActiveBySubject(ctx, in.Subject); err == nil {
		s.Locks.Release(in.Subject, id)
		return "", fmt.Errorf("%w: subject %q has a persisted active rollout", domain.ErrAlreadyInProgress, in.Subject)
	} else if !errors.Is(err, domain.ErrNotFound) {
		s.Locks.Release(in.Subject, id)
		return "", fmt.Errorf("check active rollout: %w", err)
	}

	ro := domain.Rollout{
		ID:              id,
		Subject:         in.Subject,
		TargetVersion:   in.TargetVersion,
		PreviousVersion: in.PreviousVersion,
		Strategy:        in.Strategy,
		Targets:         in.Targets,
		Status:          domain.RolloutPlanning,
		AutoRollback:    !in.DisableAutoRollback,
		StartedAt:       time.Now().UTC(),
	}
	for _, t := range in.Targets {
		ro.SetTargetStatus(t.ID, domain.TargetPending)
	}

	if err := s.Rollouts.Create(ctx, ro); err != nil {
		s.Locks.Release(in.Subject, id)
		return "", fmt.Errorf("create rollout: %w", err)
	}

	// The workflow outlives the Start call; its context is tied to the
	// rollout, not the request.
	runCtx, cancel := context.WithCancel(context.Background())
	handle, err := s.Runner.Run(runCtx, id)
	if err != nil {
		cancel()
		s.Locks.Release(in.Subject, id)
		return "", fmt.Errorf("start rollout workflow: %w", err)
	}

	s.mu.Lock()
	s.cancels[id] = cancel
	s.handles[id] = handle
	s.mu.Unlock()

	s.Logger.Info("rollout started",
		zap.String("rollout", string(id)),
		zap.String("subject", string(in.Subject)),
		zap.String("strategy", string(in.Strategy.Type)),
		zap.Int("targets", len(in.Targets)),
	)

	go s.awaitCompletion(id, in.Subject, handle, cancel)

	return id, nil
}

func (s *RolloutService) awaitCompletion(id domain.RolloutID, subject domain.SubjectID, handle domain.WorkflowHandle[struct{}], cancel context.CancelFunc) {
	_, err := handle.AwaitResult(context.Background())

	s.Locks.Release(subject, id)
	cancel()
	s.mu.Lock()
	delete(s.cancels, id)
	delete(s.handles, id)
	s.mu.Unlock()

	switch {
	case errors.Is(err, domain.ErrRollbackFailed):
		// The one condition that must reach a human.
		s.Logger.Error("rollout rollback failed, manual intervention required",
			zap.String("rollout", string(id)),
			zap.String("subject", string(subject)),
			zap.Error(err),
		)
	case err != nil:
		s.Logger.Error("rollout workflow error",
			zap.String("rollout", string(id)),
			zap.String("subject", string(subject)),
			zap.Error(err),
		)
	default:
		s.Logger.Info("rollout workflow finished",
			zap.String("rollout", string(id)),
			zap.String("subject", string(subject)),
		)
	}
}

// Await blocks until the rollout's workflow execution finishes. Rollouts
// unknown to this process return immediately.
func (s *RolloutService) Await(ctx context.Context, id domain.RolloutID) error {
	s.mu.Lock()
	handle, ok := s.handles[id]
	s.mu.Unlock()
	if !ok {
		return nil
	}
	_, err := handle.AwaitResult(ctx)
	return err
}

// Cancel requests cancellation of an active rollout. The workflow rolls
// back at its next safe checkpoint; waits in progress are woken.
func (s *RolloutService) Cancel(ctx context.Context, id domain.RolloutID) error {
	return s.requestRollback(ctx, id, "")
}

// Rollback manually triggers the rollback path with a caller-supplied
// reason. Same code path as automatic rollback.
func (s *RolloutService) Rollback(ctx context.Context, id domain.RolloutID, reason string) error {
	if reason == "" {
		return fmt.Errorf("%w: rollback reason is required", domain.ErrInvalidArgument)
	}
	return s.requestRollback(ctx, id, reason)
}

func (s *RolloutService) requestRollback(ctx context.Context, id domain.RolloutID, reason string) error {
	// A conditional single-flag write: the coordinator owns the aggregate
	// while the rollout is active, so the service must not write a full
	// copy that could race the workflow's terminal save.
	if err := s.Rollouts.RequestCancel(ctx, id, reason); err != nil {
		return err
	}

	s.mu.Lock()
	cancel, ok := s.cancels[id]
	s.mu.Unlock()
	if ok {
		cancel()
	}

	s.Logger.Info("rollout cancellation requested",
		zap.String("rollout", string(id)),
		zap.String("reason", reason),
	)
	return nil
}

// Status returns a read-only snapshot of the rollout.
func (s *RolloutService) Status(ctx context.Context, id domain.RolloutID) (domain.Rollout, error) {
	return s.Rollouts.Get(ctx, id)
}

// List returns all rollouts.
func (s *RolloutService) List(ctx context.Context) ([]domain.Rollout, error) {
	return s.Rollouts.List(ctx)
}

func validateStartInput(in StartRolloutInput) error {
	if in.Subject == "" {
		return fmt.Errorf("%w: subject is required", domain.ErrInvalidArgument)
	}
	if in.TargetVersion == "" {
		return fmt.Errorf("%w: target version is required", domain.ErrInvalidArgument)
	}
	if err := in.Strategy.Validate(); err != nil {
		return err
	}
	if len(in.Targets) == 0 {
		return fmt.Errorf("%w: at least one target is required", domain.ErrInvalidArgument)
	}
	seen := make(map[domain.TargetID]bool, len(in.Targets))
	for _, t := range in.Targets {
		if t.ID == "" {
			return fmt.Errorf("%w: target ID is required", domain.ErrInvalidArgument)
		}
		if t.Key == "" {
			return fmt.Errorf("%w: target %q requires a bucketing key", domain.ErrInvalidArgument, t.ID)
		}
		if seen[t.ID] {
			return fmt.Errorf("%w: target %q listed twice", domain.ErrInvalidArgument, t.ID)
		}
		seen[t.ID] = true
	}
	return nil
}
