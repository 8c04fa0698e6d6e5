package domain

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// limitedDeployer bounds total in-flight applies across every rollout
// sharing it, so concurrent rollouts cannot overload target systems.
type limitedDeployer struct {
	inner Deployer
	sem   *semaphore.Weighted
}

// LimitDeployer wraps a deployer with a global concurrency ceiling of n
// in-flight applies. n <= 0 returns the deployer unchanged.
func LimitDeployer(d Deployer, n int) Deployer {
	if n <= 0 {
		return d
	}
	return &limitedDeployer{inner: d, sem: semaphore.NewWeighted(int64(n))}
}

func (l *limitedDeployer) Apply(ctx context.Context, subject SubjectID, target Target, version string) error {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer l.sem.Release(1)
	return l.inner.Apply(ctx, subject, target, version)
}
