package domain_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stagegate/stagegate-server/internal/domain"
)

func TestStrategyValidate(t *testing.T) {
	cases := []struct {
		name     string
		strategy domain.Strategy
		wantErr  bool
	}{
		{
			name:     "direct ok",
			strategy: domain.Strategy{Type: domain.StrategyDirect, Direct: &domain.DirectConfig{}},
		},
		{
			name:     "direct missing config",
			strategy: domain.Strategy{Type: domain.StrategyDirect},
			wantErr:  true,
		},
		{
			name: "canary ok",
			strategy: domain.Strategy{Type: domain.StrategyCanary, Canary: &domain.CanaryConfig{
				InitialPercentage:   10,
				IncrementPercentage: 20,
				EvaluationWindow:    time.Minute,
			}},
		},
		{
			name: "canary zero initial percentage",
			strategy: domain.Strategy{Type: domain.StrategyCanary, Canary: &domain.CanaryConfig{
				IncrementPercentage: 20,
			}},
			wantErr: true,
		},
		{
			name: "canary initial percentage over 100",
			strategy: domain.Strategy{Type: domain.StrategyCanary, Canary: &domain.CanaryConfig{
				InitialPercentage:   120,
				IncrementPercentage: 20,
			}},
			wantErr: true,
		},
		{
			name: "canary zero increment",
			strategy: domain.Strategy{Type: domain.StrategyCanary, Canary: &domain.CanaryConfig{
				InitialPercentage: 10,
			}},
			wantErr: true,
		},
		{
			name:     "rolling ok",
			strategy: domain.Strategy{Type: domain.StrategyRolling, Rolling: &domain.RollingConfig{}},
		},
		{
			name:     "blue-green ok",
			strategy: domain.Strategy{Type: domain.StrategyBlueGreen, BlueGreen: &domain.BlueGreenConfig{}},
		},
		{
			name: "blue-green negative duration",
			strategy: domain.Strategy{Type: domain.StrategyBlueGreen, BlueGreen: &domain.BlueGreenConfig{
				ValidationPeriod: -time.Second,
			}},
			wantErr: true,
		},
		{
			name:     "unknown type",
			strategy: domain.Strategy{Type: "yolo"},
			wantErr:  true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.strategy.Validate()
			if tc.wantErr {
				if !errors.Is(err, domain.ErrInvalidArgument) {
					t.Fatalf("Validate() = %v, want ErrInvalidArgument", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate(): %v", err)
			}
		})
	}
}

func TestStrategyAbortOnTargetFailure(t *testing.T) {
	abort := map[domain.StrategyType]bool{
		domain.StrategyDirect:    true,
		domain.StrategyBlueGreen: true,
		domain.StrategyCanary:    false,
		domain.StrategyRolling:   false,
	}
	for typ, want := range abort {
		if got := (domain.Strategy{Type: typ}).AbortOnTargetFailure(); got != want {
			t.Errorf("AbortOnTargetFailure(%s) = %v, want %v", typ, got, want)
		}
	}
}
