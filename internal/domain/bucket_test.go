package domain_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stagegate/stagegate-server/internal/domain"
)

func TestBucket_Deterministic(t *testing.T) {
	for _, key := range []string{"cluster-a", "user:42", "prod/eu-west-1"} {
		first, err := domain.Bucket(key)
		if err != nil {
			t.Fatalf("Bucket(%q): %v", key, err)
		}
		for i := 0; i < 10; i++ {
			again, err := domain.Bucket(key)
			if err != nil {
				t.Fatalf("Bucket(%q): %v", key, err)
			}
			if again != first {
				t.Fatalf("Bucket(%q) = %d, previously %d", key, again, first)
			}
		}
	}
}

func TestBucket_EmptyKey(t *testing.T) {
	if _, err := domain.Bucket(""); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("Bucket(\"\") error = %v, want ErrInvalidArgument", err)
	}
}

func TestBucket_Range(t *testing.T) {
	for i := 0; i < 1000; i++ {
		b, err := domain.Bucket(fmt.Sprintf("key-%d", i))
		if err != nil {
			t.Fatal(err)
		}
		if b < 0 || b >= domain.BucketCount {
			t.Fatalf("Bucket(key-%d) = %d, want [0,%d)", i, b, domain.BucketCount)
		}
	}
}

func TestBucket_RoughlyUniform(t *testing.T) {
	// 1000 distinct keys over 100 buckets: expect ~10 per bucket, and no
	// bucket more than 3x the uniform frequency.
	counts := make(map[int]int)
	for i := 0; i < 1000; i++ {
		b, err := domain.Bucket(fmt.Sprintf("key-%d", i))
		if err != nil {
			t.Fatal(err)
		}
		counts[b]++
	}
	for b, n := range counts {
		if n > 30 {
			t.Errorf("bucket %d has %d keys, want <= 30", b, n)
		}
	}
}

func TestIncludedAt_Monotonic(t *testing.T) {
	key := "cluster-eu-1"
	b, err := domain.Bucket(key)
	if err != nil {
		t.Fatal(err)
	}
	for pct := 0; pct <= 100; pct++ {
		included, err := domain.IncludedAt(key, pct)
		if err != nil {
			t.Fatal(err)
		}
		want := pct > b
		if included != want {
			t.Fatalf("IncludedAt(%q, %d) = %v, want %v (bucket %d)", key, pct, included, want, b)
		}
	}
}
