package domain_test

import (
	"errors"
	"testing"

	"github.com/stagegate/stagegate-server/internal/domain"
)

func TestRolloutTransition_HappyPath(t *testing.T) {
	ro := domain.Rollout{ID: "r1", Status: domain.RolloutPlanning}
	for _, next := range []domain.RolloutStatus{domain.RolloutDeploying, domain.RolloutCompleted} {
		if err := ro.Transition(next); err != nil {
			t.Fatalf("Transition(%s): %v", next, err)
		}
	}
	if ro.Status != domain.RolloutCompleted {
		t.Fatalf("Status = %s", ro.Status)
	}
}

func TestRolloutTransition_RollbackPath(t *testing.T) {
	ro := domain.Rollout{ID: "r1", Status: domain.RolloutDeploying}
	if err := ro.Transition(domain.RolloutRollingBack); err != nil {
		t.Fatal(err)
	}
	if err := ro.Transition(domain.RolloutRolledBack); err != nil {
		t.Fatal(err)
	}
}

func TestRolloutTransition_TerminalStatesAreFinal(t *testing.T) {
	for _, terminal := range []domain.RolloutStatus{
		domain.RolloutCompleted, domain.RolloutRolledBack, domain.RolloutFailed,
	} {
		ro := domain.Rollout{ID: "r1", Status: terminal}
		for _, next := range []domain.RolloutStatus{
			domain.RolloutPlanning, domain.RolloutDeploying, domain.RolloutRollingBack,
			domain.RolloutCompleted, domain.RolloutRolledBack, domain.RolloutFailed,
		} {
			if err := ro.Transition(next); !errors.Is(err, domain.ErrInvalidArgument) {
				t.Errorf("Transition(%s -> %s) = %v, want ErrInvalidArgument", terminal, next, err)
			}
		}
	}
}

func TestRolloutTransition_SkippingDeployingRejected(t *testing.T) {
	ro := domain.Rollout{ID: "r1", Status: domain.RolloutPlanning}
	if err := ro.Transition(domain.RolloutCompleted); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("Transition(planning -> completed) = %v, want ErrInvalidArgument", err)
	}
}

func TestRolloutTouchedTargets(t *testing.T) {
	ro := domain.Rollout{
		Targets: []domain.Target{{ID: "a"}, {ID: "b"}, {ID: "c"}, {ID: "d"}},
	}
	ro.SetTargetStatus("a", domain.TargetHealthy)
	ro.SetTargetStatus("b", domain.TargetActive)
	ro.SetTargetStatus("c", domain.TargetFailed)
	// d stays pending.

	touched := ro.TouchedTargets()
	if len(touched) != 3 {
		t.Fatalf("TouchedTargets() = %d targets, want 3", len(touched))
	}
	for _, target := range touched {
		if target.ID == "d" {
			t.Error("pending target d must not be touched")
		}
	}
}

func TestRolloutTargetStatus_DefaultsToPending(t *testing.T) {
	ro := domain.Rollout{Targets: []domain.Target{{ID: "a"}}}
	if got := ro.TargetStatus("a"); got != domain.TargetPending {
		t.Fatalf("TargetStatus = %s, want pending", got)
	}
}
