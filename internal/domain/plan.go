package domain

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// StageKind distinguishes ordinary delivery stages from the blue-green
// traffic switch.
type StageKind string

const (
	StageDeliver StageKind = "deliver"
	StageSwitch  StageKind = "switch"
)

// directEvaluationWindow is the fixed post-deploy window for the direct
// strategy when health checks are not skipped.
const directEvaluationWindow = 30 * time.Second

// Stage is one step of a rollout plan. Targets lists the targets newly
// included at this stage; the active set at any point is the union of all
// prior stages' targets. Stages are computed once at plan time and never
// change; only the rollout's stage index moves.
type Stage struct {
	Index               int
	Kind                StageKind
	Percentage          int
	Targets             []TargetID
	RequiresHealthCheck bool
	EvaluationWindow    time.Duration
	PauseAfter          time.Duration

	// Reapply marks the blue-green switch: the coordinator re-applies the
	// target version to every target, already active or not. A blue-green
	// deployer treats an apply against a validated green as the cutover.
	Reapply bool
}

// PlanStages expands a strategy and an ordered target list into the ordered
// stage list the coordinator executes. It is pure and side-effect-free.
func PlanStages(strategy Strategy, targets []Target) ([]Stage, error) {
	if err := strategy.Validate(); err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("%w: rollout requires at least one target", ErrInvalidArgument)
	}

	switch strategy.Type {
	case StrategyDirect:
		return planDirect(*strategy.Direct, targets), nil
	case StrategyCanary:
		return planCanary(*strategy.Canary, targets)
	case StrategyRolling:
		return planRolling(*strategy.Rolling, targets)
	case StrategyBlueGreen:
		return planBlueGreen(*strategy.BlueGreen, targets), nil
	default:
		return nil, fmt.Errorf("%w: unsupported strategy type %q", ErrInvalidArgument, strategy.Type)
	}
}

func planDirect(cfg DirectConfig, targets []Target) []Stage {
	stage := Stage{
		Index:      0,
		Kind:       StageDeliver,
		Percentage: 100,
		Targets:    targetIDs(targets),
	}
	if !cfg.SkipHealthChecks {
		stage.RequiresHealthCheck = true
		stage.EvaluationWindow = directEvaluationWindow
	}
	return []Stage{stage}
}

// planCanary orders targets by bucket (ties broken by name) and covers a
// cumulative prefix of ceil(N*p/100) targets at each percentage p. Each
// stage's target set is the prefix minus everything covered by prior
// stages, so the union over all stages is exactly the target list.
func planCanary(cfg CanaryConfig, targets []Target) ([]Stage, error) {
	ordered, err := orderByBucket(targets)
	if err != nil {
		return nil, err
	}

	var stages []Stage
	total := len(ordered)
	covered := 0
	pct := cfg.InitialPercentage

	for {
		count := int(math.Ceil(float64(total) * float64(pct) / 100))
		if count > total {
			count = total
		}

		stage := Stage{
			Index:      len(stages),
			Kind:       StageDeliver,
			Percentage: pct,
		}
		if count > covered {
			stage.Targets = targetIDs(ordered[covered:count])
			covered = count
		}

		if pct >= 100 {
			// Terminal stage: progression ends here, no further gate.
			stages = append(stages, stage)
			return stages, nil
		}

		stage.RequiresHealthCheck = true
		stage.EvaluationWindow = cfg.EvaluationWindow
		stages = append(stages, stage)

		pct += cfg.IncrementPercentage
		if pct > 100 {
			pct = 100
		}
	}
}

func planRolling(cfg RollingConfig, targets []Target) ([]Stage, error) {
	ordered, err := orderRolling(cfg, targets)
	if err != nil {
		return nil, err
	}

	total := len(ordered)
	stages := make([]Stage, 0, total)
	for i, t := range ordered {
		stage := Stage{
			Index:               i,
			Kind:                StageDeliver,
			Percentage:          ((i + 1) * 100) / total,
			Targets:             []TargetID{t.ID},
			RequiresHealthCheck: true,
			EvaluationWindow:    cfg.EvaluationWindow,
		}
		if i < total-1 {
			stage.PauseAfter = cfg.PauseBetweenStages
		}
		stages = append(stages, stage)
	}
	return stages, nil
}

func planBlueGreen(cfg BlueGreenConfig, targets []Target) []Stage {
	ids := targetIDs(targets)
	return []Stage{
		{
			Index:               0,
			Kind:                StageDeliver,
			Percentage:          100,
			Targets:             ids,
			RequiresHealthCheck: true,
			EvaluationWindow:    cfg.ValidationPeriod,
		},
		{
			Index:               1,
			Kind:                StageSwitch,
			Percentage:          100,
			Targets:             ids,
			Reapply:             true,
			RequiresHealthCheck: true,
			EvaluationWindow:    cfg.PostSwitchMonitoringPeriod,
		},
	}
}

// orderByBucket sorts targets by bucket, then name. Bucket-ordered prefix
// inclusion keeps stage membership monotonic across percentages.
func orderByBucket(targets []Target) ([]Target, error) {
	type bucketed struct {
		target Target
		bucket int
	}
	bs := make([]bucketed, len(targets))
	for i, t := range targets {
		b, err := Bucket(t.Key)
		if err != nil {
			return nil, fmt.Errorf("target %q: %w", t.ID, err)
		}
		bs[i] = bucketed{target: t, bucket: b}
	}
	sort.SliceStable(bs, func(i, j int) bool {
		if bs[i].bucket != bs[j].bucket {
			return bs[i].bucket < bs[j].bucket
		}
		return bs[i].target.Name < bs[j].target.Name
	})
	ordered := make([]Target, len(bs))
	for i, b := range bs {
		ordered[i] = b.target
	}
	return ordered, nil
}

func orderRolling(cfg RollingConfig, targets []Target) ([]Target, error) {
	if len(cfg.Order) == 0 {
		ordered := make([]Target, len(targets))
		copy(ordered, targets)
		sort.SliceStable(ordered, func(i, j int) bool {
			ri, rj := environmentRank(ordered[i].Environment), environmentRank(ordered[j].Environment)
			if ri != rj {
				return ri < rj
			}
			return ordered[i].Name < ordered[j].Name
		})
		return ordered, nil
	}

	index := make(map[TargetID]Target, len(targets))
	for _, t := range targets {
		index[t.ID] = t
	}
	if len(cfg.Order) != len(targets) {
		return nil, fmt.Errorf("%w: explicit order lists %d targets, rollout has %d",
			ErrInvalidArgument, len(cfg.Order), len(targets))
	}
	ordered := make([]Target, 0, len(cfg.Order))
	seen := make(map[TargetID]bool, len(cfg.Order))
	for _, id := range cfg.Order {
		t, ok := index[id]
		if !ok {
			return nil, fmt.Errorf("%w: ordered target %q not in rollout target set", ErrInvalidArgument, id)
		}
		if seen[id] {
			return nil, fmt.Errorf("%w: target %q listed twice in explicit order", ErrInvalidArgument, id)
		}
		seen[id] = true
		ordered = append(ordered, t)
	}
	return ordered, nil
}

func targetIDs(targets []Target) []TargetID {
	ids := make([]TargetID, len(targets))
	for i, t := range targets {
		ids[i] = t.ID
	}
	return ids
}
