package domain

// TargetID identifies a registered target.
type TargetID string

// Environment tags a target with its deployment environment. The rolling
// strategy orders targets by environment (development first, production
// last); no other component reads it.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// environmentRank orders environments for rolling rollouts. Unknown
// environments sort after production.
func environmentRank(e Environment) int {
	switch e {
	case EnvDevelopment:
		return 0
	case EnvStaging:
		return 1
	case EnvProduction:
		return 2
	default:
		return 3
	}
}

// Target is a unit of exposure: a cluster, a node, or a user segment.
// Key is the stable bucketing key; it must not change once a rollout
// over the target has started.
type Target struct {
	ID          TargetID
	Key         string
	Name        string
	Environment Environment
}

// TargetStatus tracks a single target's progress within a rollout.
type TargetStatus string

const (
	TargetPending    TargetStatus = "pending"
	TargetActive     TargetStatus = "active"
	TargetHealthy    TargetStatus = "healthy"
	TargetFailed     TargetStatus = "failed"
	TargetRolledBack TargetStatus = "rolled-back"
)
