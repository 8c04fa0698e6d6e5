package syncworkflow

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stagegate/stagegate-server/internal/domain"
)

func TestRunAllBoundsConcurrency(t *testing.T) {
	r := &syncRunner{
		activityCtx: context.Background(),
		cancelCtx:   context.Background(),
	}

	var inFlight, peak atomic.Int64
	activity := domain.NewActivity("count", func(ctx context.Context, in any) (any, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return in, nil
	})

	ins := make([]any, 10)
	for i := range ins {
		ins[i] = i
	}
	results := r.RunAll(&anyAdapter{activity}, ins, 3)

	if len(results) != 10 {
		t.Fatalf("results = %d, want 10", len(results))
	}
	for i, res := range results {
		if res.Err != nil {
			t.Fatalf("result %d: %v", i, res.Err)
		}
		if res.Out != i {
			t.Errorf("result %d = %v, positional order lost", i, res.Out)
		}
	}
	if p := peak.Load(); p > 3 {
		t.Errorf("peak concurrency = %d, want <= 3", p)
	}
}

func TestSleepWokenByCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := &syncRunner{
		activityCtx: context.WithoutCancel(ctx),
		cancelCtx:   ctx,
	}

	done := make(chan error, 1)
	go func() { done <- r.Sleep(time.Minute) }()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Sleep: got %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Sleep did not wake on cancel")
	}

	// Activities keep a live context so post-cancel reverts still run.
	if err := r.activityCtx.Err(); err != nil {
		t.Fatalf("activity context cancelled: %v", err)
	}
}

// anyAdapter exposes a domain.Activity[any, any] directly for runner-level
// tests without going through RunActivities.
type anyAdapter struct {
	inner domain.Activity[any, any]
}

func (a *anyAdapter) Name() string { return a.inner.Name() }
func (a *anyAdapter) Run(ctx context.Context, in any) (any, error) {
	return a.inner.Run(ctx, in)
}
