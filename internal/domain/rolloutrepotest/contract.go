// Package rolloutrepotest provides contract tests for
// [domain.RolloutRepository] implementations.
package rolloutrepotest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stagegate/stagegate-server/internal/domain"
)

// Factory creates a fresh [domain.RolloutRepository] for each test.
type Factory func(t *testing.T) domain.RolloutRepository

// Run exercises the [domain.RolloutRepository] contract.
func Run(t *testing.T, factory Factory) {
	sampleRollout := func() domain.Rollout {
		return domain.Rollout{
			ID:              "r1",
			Subject:         "payments-operator",
			TargetVersion:   "v2",
			PreviousVersion: "v1",
			Strategy: domain.Strategy{
				Type: domain.StrategyCanary,
				Canary: &domain.CanaryConfig{
					InitialPercentage:   10,
					IncrementPercentage: 30,
					EvaluationWindow:    time.Minute,
					Thresholds:          domain.HealthThresholds{SuccessRateMin: 0.95},
				},
			},
			Targets: []domain.Target{
				{ID: "t1", Key: "cluster-1", Name: "a"},
				{ID: "t2", Key: "cluster-2", Name: "b"},
			},
			Status:       domain.RolloutPlanning,
			AutoRollback: true,
			StartedAt:    time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		}
	}

	t.Run("CreateAndGet", func(t *testing.T) {
		repo := factory(t)
		ctx := context.Background()
		ro := sampleRollout()
		ro.SetTargetStatus("t1", domain.TargetPending)
		ro.SetTargetStatus("t2", domain.TargetPending)

		if err := repo.Create(ctx, ro); err != nil {
			t.Fatalf("Create: %v", err)
		}

		got, err := repo.Get(ctx, "r1")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.Subject != "payments-operator" {
			t.Errorf("Subject = %q, want %q", got.Subject, "payments-operator")
		}
		if got.Strategy.Type != domain.StrategyCanary {
			t.Errorf("Strategy.Type = %q, want %q", got.Strategy.Type, domain.StrategyCanary)
		}
		if got.Strategy.Canary == nil || got.Strategy.Canary.InitialPercentage != 10 {
			t.Errorf("Strategy.Canary = %+v, want InitialPercentage 10", got.Strategy.Canary)
		}
		if len(got.Targets) != 2 {
			t.Errorf("Targets = %d, want 2", len(got.Targets))
		}
		if got.TargetStatus("t1") != domain.TargetPending {
			t.Errorf("TargetStatus(t1) = %q, want %q", got.TargetStatus("t1"), domain.TargetPending)
		}
		if !got.AutoRollback {
			t.Error("AutoRollback = false, want true")
		}
		if !got.StartedAt.Equal(ro.StartedAt) {
			t.Errorf("StartedAt = %v, want %v", got.StartedAt, ro.StartedAt)
		}
		if !got.CompletedAt.IsZero() {
			t.Errorf("CompletedAt = %v, want zero", got.CompletedAt)
		}
	})

	t.Run("CreateDuplicateID", func(t *testing.T) {
		repo := factory(t)
		ctx := context.Background()
		ro := sampleRollout()
		if err := repo.Create(ctx, ro); err != nil {
			t.Fatalf("first Create: %v", err)
		}
		ro.Subject = "other-subject"
		err := repo.Create(ctx, ro)
		if !errors.Is(err, domain.ErrAlreadyExists) {
			t.Fatalf("second Create: got %v, want ErrAlreadyExists", err)
		}
	})

	t.Run("CreateSecondActiveForSubject", func(t *testing.T) {
		repo := factory(t)
		ctx := context.Background()
		if err := repo.Create(ctx, sampleRollout()); err != nil {
			t.Fatalf("first Create: %v", err)
		}
		second := sampleRollout()
		second.ID = "r2"
		err := repo.Create(ctx, second)
		if !errors.Is(err, domain.ErrAlreadyInProgress) {
			t.Fatalf("second Create: got %v, want ErrAlreadyInProgress", err)
		}
	})

	t.Run("CreateAfterTerminal", func(t *testing.T) {
		repo := factory(t)
		ctx := context.Background()
		done := sampleRollout()
		done.Status = domain.RolloutCompleted
		done.CompletedAt = done.StartedAt.Add(time.Hour)
		if err := repo.Create(ctx, done); err != nil {
			t.Fatalf("Create terminal: %v", err)
		}

		next := sampleRollout()
		next.ID = "r2"
		if err := repo.Create(ctx, next); err != nil {
			t.Fatalf("Create after terminal: %v", err)
		}
	})

	t.Run("GetNotFound", func(t *testing.T) {
		repo := factory(t)
		_, err := repo.Get(context.Background(), "nonexistent")
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("Get: got %v, want ErrNotFound", err)
		}
	})

	t.Run("Update", func(t *testing.T) {
		repo := factory(t)
		ctx := context.Background()
		ro := sampleRollout()
		if err := repo.Create(ctx, ro); err != nil {
			t.Fatal(err)
		}

		ro.Status = domain.RolloutDeploying
		ro.CurrentStageIndex = 2
		ro.CancelRequested = true
		ro.RollbackReason = "error budget exhausted"
		ro.SetTargetStatus("t1", domain.TargetHealthy)
		if err := repo.Update(ctx, ro); err != nil {
			t.Fatalf("Update: %v", err)
		}

		got, err := repo.Get(ctx, "r1")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.Status != domain.RolloutDeploying {
			t.Errorf("Status = %q, want %q", got.Status, domain.RolloutDeploying)
		}
		if got.CurrentStageIndex != 2 {
			t.Errorf("CurrentStageIndex = %d, want 2", got.CurrentStageIndex)
		}
		if !got.CancelRequested {
			t.Error("CancelRequested = false, want true")
		}
		if got.RollbackReason != "error budget exhausted" {
			t.Errorf("RollbackReason = %q", got.RollbackReason)
		}
		if got.TargetStatus("t1") != domain.TargetHealthy {
			t.Errorf("TargetStatus(t1) = %q, want %q", got.TargetStatus("t1"), domain.TargetHealthy)
		}
	})

	t.Run("UpdateNotFound", func(t *testing.T) {
		repo := factory(t)
		ro := sampleRollout()
		ro.ID = "nonexistent"
		err := repo.Update(context.Background(), ro)
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("Update: got %v, want ErrNotFound", err)
		}
	})

	t.Run("List", func(t *testing.T) {
		repo := factory(t)
		ctx := context.Background()
		first := sampleRollout()
		second := sampleRollout()
		second.ID = "r2"
		second.Subject = "search-service"
		second.StartedAt = first.StartedAt.Add(time.Minute)
		if err := repo.Create(ctx, first); err != nil {
			t.Fatal(err)
		}
		if err := repo.Create(ctx, second); err != nil {
			t.Fatal(err)
		}

		got, err := repo.List(ctx)
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("List: got %d, want 2", len(got))
		}
	})

	t.Run("RequestCancel", func(t *testing.T) {
		repo := factory(t)
		ctx := context.Background()
		active := sampleRollout()
		active.Status = domain.RolloutDeploying
		if err := repo.Create(ctx, active); err != nil {
			t.Fatal(err)
		}

		if err := repo.RequestCancel(ctx, "r1", ""); err != nil {
			t.Fatalf("RequestCancel: %v", err)
		}
		got, err := repo.Get(ctx, "r1")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if !got.CancelRequested {
			t.Error("CancelRequested = false, want true")
		}
		if got.RollbackReason != "" {
			t.Errorf("RollbackReason = %q, empty reason must not overwrite", got.RollbackReason)
		}
		if got.Status != domain.RolloutDeploying {
			t.Errorf("Status = %q, cancel flag must not touch status", got.Status)
		}

		if err := repo.RequestCancel(ctx, "r1", "error budget exhausted"); err != nil {
			t.Fatalf("RequestCancel with reason: %v", err)
		}
		got, _ = repo.Get(ctx, "r1")
		if got.RollbackReason != "error budget exhausted" {
			t.Errorf("RollbackReason = %q", got.RollbackReason)
		}
	})

	t.Run("RequestCancelNotFound", func(t *testing.T) {
		repo := factory(t)
		err := repo.RequestCancel(context.Background(), "nonexistent", "reason")
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("RequestCancel: got %v, want ErrNotFound", err)
		}
	})

	t.Run("RequestCancelTerminal", func(t *testing.T) {
		repo := factory(t)
		ctx := context.Background()
		done := sampleRollout()
		done.Status = domain.RolloutCompleted
		done.CompletedAt = done.StartedAt.Add(time.Hour)
		if err := repo.Create(ctx, done); err != nil {
			t.Fatal(err)
		}

		err := repo.RequestCancel(ctx, "r1", "too late")
		if !errors.Is(err, domain.ErrInvalidArgument) {
			t.Fatalf("RequestCancel terminal: got %v, want ErrInvalidArgument", err)
		}

		// The terminal row is untouched: still completed, timestamp kept,
		// no cancel flag.
		got, getErr := repo.Get(ctx, "r1")
		if getErr != nil {
			t.Fatalf("Get: %v", getErr)
		}
		if got.Status != domain.RolloutCompleted {
			t.Errorf("Status = %q, terminal state lost", got.Status)
		}
		if got.CompletedAt.IsZero() {
			t.Error("CompletedAt zeroed by rejected cancel")
		}
		if got.CancelRequested {
			t.Error("CancelRequested set on terminal rollout")
		}
		if got.RollbackReason != "" {
			t.Errorf("RollbackReason = %q, want empty", got.RollbackReason)
		}
	})

	t.Run("ActiveBySubject", func(t *testing.T) {
		repo := factory(t)
		ctx := context.Background()

		done := sampleRollout()
		done.ID = "r0"
		done.Status = domain.RolloutRolledBack
		done.RolledBackAt = done.StartedAt.Add(time.Hour)
		done.CompletedAt = done.RolledBackAt
		if err := repo.Create(ctx, done); err != nil {
			t.Fatal(err)
		}

		if _, err := repo.ActiveBySubject(ctx, "payments-operator"); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("ActiveBySubject with only terminal: got %v, want ErrNotFound", err)
		}

		active := sampleRollout()
		active.Status = domain.RolloutDeploying
		if err := repo.Create(ctx, active); err != nil {
			t.Fatal(err)
		}

		got, err := repo.ActiveBySubject(ctx, "payments-operator")
		if err != nil {
			t.Fatalf("ActiveBySubject: %v", err)
		}
		if got.ID != "r1" {
			t.Errorf("ActiveBySubject ID = %q, want %q", got.ID, "r1")
		}

		if _, err := repo.ActiveBySubject(ctx, "unknown-subject"); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("ActiveBySubject unknown: got %v, want ErrNotFound", err)
		}
	})
}
