package domain

import (
	"fmt"
	"time"
)

// StrategyType identifies the kind of rollout strategy.
type StrategyType string

const (
	StrategyDirect    StrategyType = "direct"
	StrategyCanary    StrategyType = "canary"
	StrategyRolling   StrategyType = "rolling"
	StrategyBlueGreen StrategyType = "blue-green"
)

// DirectConfig deploys everything in one stage. Unless health checks are
// skipped, a single post-deploy evaluation runs after a short fixed window.
type DirectConfig struct {
	SkipHealthChecks bool
	Thresholds       HealthThresholds
}

// CanaryConfig grows exposure from InitialPercentage by IncrementPercentage
// per stage until 100, evaluating health after each non-terminal stage.
type CanaryConfig struct {
	InitialPercentage   int
	IncrementPercentage int
	EvaluationWindow    time.Duration
	Thresholds          HealthThresholds
}

// RollingConfig deploys one target per stage. The default order is
// environment ascending (development, staging, production) then name
// ascending; Order overrides it when set.
type RollingConfig struct {
	EvaluationWindow   time.Duration
	PauseBetweenStages time.Duration
	Thresholds         HealthThresholds
	Order              []TargetID
}

// BlueGreenConfig stages the new version on the green side for all targets,
// validates it, then switches traffic atomically and monitors briefly. Blue
// is retained for RetentionPeriod after a successful switch so rollback is
// an instant weight flip; reclaiming it is an external cleanup task.
type BlueGreenConfig struct {
	ValidationPeriod           time.Duration
	PostSwitchMonitoringPeriod time.Duration
	RetentionPeriod            time.Duration
	Thresholds                 HealthThresholds
}

// Strategy is the closed tagged union of rollout strategies. Exactly the
// config matching Type must be set.
type Strategy struct {
	Type      StrategyType
	Direct    *DirectConfig    `json:",omitempty"`
	Canary    *CanaryConfig    `json:",omitempty"`
	Rolling   *RollingConfig   `json:",omitempty"`
	BlueGreen *BlueGreenConfig `json:",omitempty"`
}

// Validate checks that the strategy is well formed.
func (s Strategy) Validate() error {
	switch s.Type {
	case StrategyDirect:
		if s.Direct == nil {
			return fmt.Errorf("%w: direct strategy requires a direct config", ErrInvalidArgument)
		}
	case StrategyCanary:
		c := s.Canary
		if c == nil {
			return fmt.Errorf("%w: canary strategy requires a canary config", ErrInvalidArgument)
		}
		if c.InitialPercentage < 1 || c.InitialPercentage > 100 {
			return fmt.Errorf("%w: initial percentage %d must be in [1,100]", ErrInvalidArgument, c.InitialPercentage)
		}
		if c.IncrementPercentage < 1 {
			return fmt.Errorf("%w: increment percentage %d must be positive", ErrInvalidArgument, c.IncrementPercentage)
		}
		if c.EvaluationWindow < 0 {
			return fmt.Errorf("%w: evaluation window must not be negative", ErrInvalidArgument)
		}
	case StrategyRolling:
		r := s.Rolling
		if r == nil {
			return fmt.Errorf("%w: rolling strategy requires a rolling config", ErrInvalidArgument)
		}
		if r.EvaluationWindow < 0 || r.PauseBetweenStages < 0 {
			return fmt.Errorf("%w: rolling durations must not be negative", ErrInvalidArgument)
		}
	case StrategyBlueGreen:
		b := s.BlueGreen
		if b == nil {
			return fmt.Errorf("%w: blue-green strategy requires a blue-green config", ErrInvalidArgument)
		}
		if b.ValidationPeriod < 0 || b.PostSwitchMonitoringPeriod < 0 || b.RetentionPeriod < 0 {
			return fmt.Errorf("%w: blue-green durations must not be negative", ErrInvalidArgument)
		}
	default:
		return fmt.Errorf("%w: unsupported strategy type %q", ErrInvalidArgument, s.Type)
	}
	return nil
}

// AbortOnTargetFailure reports whether a single failed target apply aborts
// the stage. Direct and blue-green abort on any failure; canary and rolling
// tolerate failures up to the success-rate threshold.
func (s Strategy) AbortOnTargetFailure() bool {
	switch s.Type {
	case StrategyDirect, StrategyBlueGreen:
		return true
	default:
		return false
	}
}

// Thresholds returns the health thresholds carried by the strategy config.
func (s Strategy) Thresholds() HealthThresholds {
	switch s.Type {
	case StrategyDirect:
		if s.Direct != nil {
			return s.Direct.Thresholds
		}
	case StrategyCanary:
		if s.Canary != nil {
			return s.Canary.Thresholds
		}
	case StrategyRolling:
		if s.Rolling != nil {
			return s.Rolling.Thresholds
		}
	case StrategyBlueGreen:
		if s.BlueGreen != nil {
			return s.BlueGreen.Thresholds
		}
	}
	return HealthThresholds{}
}
