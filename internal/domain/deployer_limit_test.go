package domain_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stagegate/stagegate-server/internal/domain"
)

type countingDeployer struct {
	inFlight atomic.Int64
	peak     atomic.Int64
}

func (d *countingDeployer) Apply(ctx context.Context, subject domain.SubjectID, target domain.Target, version string) error {
	n := d.inFlight.Add(1)
	for {
		p := d.peak.Load()
		if n <= p || d.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(2 * time.Millisecond)
	d.inFlight.Add(-1)
	return nil
}

func TestLimitDeployerCapsInFlightApplies(t *testing.T) {
	inner := &countingDeployer{}
	limited := domain.LimitDeployer(inner, 2)

	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = limited.Apply(context.Background(), "svc", domain.Target{ID: "t"}, "v1")
		}()
	}
	wg.Wait()

	if p := inner.peak.Load(); p > 2 {
		t.Errorf("peak in-flight = %d, want <= 2", p)
	}
}

func TestLimitDeployerZeroIsPassthrough(t *testing.T) {
	inner := &countingDeployer{}
	if got := domain.LimitDeployer(inner, 0); got != domain.Deployer(inner) {
		t.Error("LimitDeployer(d, 0) should return d unchanged")
	}
}

func TestLimitDeployerHonorsContext(t *testing.T) {
	inner := &countingDeployer{}
	limited := domain.LimitDeployer(inner, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// With a cancelled context the semaphore acquire fails fast.
	if err := limited.Apply(ctx, "svc", domain.Target{ID: "t"}, "v1"); err == nil {
		t.Error("Apply with cancelled context: want error")
	}
}
