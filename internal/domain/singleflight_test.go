package domain_test

import (
	"errors"
	"testing"

	"github.com/stagegate/stagegate-server/internal/domain"
)

func TestSubjectLocks_AcquireAndRelease(t *testing.T) {
	locks := domain.NewSubjectLocks()
	if err := locks.TryAcquire("flag-x", "r1"); err != nil {
		t.Fatal(err)
	}
	if err := locks.TryAcquire("flag-x", "r2"); !errors.Is(err, domain.ErrAlreadyInProgress) {
		t.Fatalf("second acquire = %v, want ErrAlreadyInProgress", err)
	}
	// Different subject is independent.
	if err := locks.TryAcquire("flag-y", "r2"); err != nil {
		t.Fatal(err)
	}
	locks.Release("flag-x", "r1")
	if err := locks.TryAcquire("flag-x", "r2"); err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
}

func TestSubjectLocks_ReleaseByNonHolderIsNoop(t *testing.T) {
	locks := domain.NewSubjectLocks()
	if err := locks.TryAcquire("svc", "r1"); err != nil {
		t.Fatal(err)
	}
	locks.Release("svc", "r2")
	if holder, ok := locks.Holder("svc"); !ok || holder != "r1" {
		t.Fatalf("Holder = %q, %v; want r1 held", holder, ok)
	}
}

func TestSubjectLocks_DoubleReleaseIsSafe(t *testing.T) {
	locks := domain.NewSubjectLocks()
	if err := locks.TryAcquire("svc", "r1"); err != nil {
		t.Fatal(err)
	}
	locks.Release("svc", "r1")
	locks.Release("svc", "r1")
	if _, ok := locks.Holder("svc"); ok {
		t.Fatal("subject should be free")
	}
}
