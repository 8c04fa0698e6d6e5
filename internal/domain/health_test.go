package domain_test

import (
	"strings"
	"testing"

	"github.com/stagegate/stagegate-server/internal/domain"
)

func TestEvaluateHealth_Passes(t *testing.T) {
	verdict := domain.EvaluateHealth(
		domain.HealthSnapshot{
			SuccessRate: 0.99,
			Metrics:     map[string]float64{"error-rate": 0.01, "latency-p99-ms": 120},
		},
		domain.HealthThresholds{
			SuccessRateMin: 0.95,
			MetricMaxima:   map[string]float64{"error-rate": 0.05, "latency-p99-ms": 500},
		},
	)
	if !verdict.Passed {
		t.Fatalf("verdict failed: %s", verdict.Reason)
	}
}

func TestEvaluateHealth_SuccessRateBelowMinimum(t *testing.T) {
	verdict := domain.EvaluateHealth(
		domain.HealthSnapshot{SuccessRate: 0.80},
		domain.HealthThresholds{SuccessRateMin: 0.95},
	)
	if verdict.Passed {
		t.Fatal("expected failure")
	}
	if !strings.Contains(verdict.Reason, "success rate") {
		t.Errorf("Reason = %q, want mention of success rate", verdict.Reason)
	}
}

func TestEvaluateHealth_MetricExceedsMaximum(t *testing.T) {
	verdict := domain.EvaluateHealth(
		domain.HealthSnapshot{
			SuccessRate: 1.0,
			Metrics:     map[string]float64{"error-rate": 0.2},
		},
		domain.HealthThresholds{
			SuccessRateMin: 0.95,
			MetricMaxima:   map[string]float64{"error-rate": 0.05},
		},
	)
	if verdict.Passed {
		t.Fatal("expected failure")
	}
	if !strings.Contains(verdict.Reason, "error-rate") {
		t.Errorf("Reason = %q, want mention of error-rate", verdict.Reason)
	}
}

func TestEvaluateHealth_MissingConfiguredMetricFailsClosed(t *testing.T) {
	verdict := domain.EvaluateHealth(
		domain.HealthSnapshot{SuccessRate: 1.0},
		domain.HealthThresholds{
			SuccessRateMin: 0.95,
			MetricMaxima:   map[string]float64{"latency-p99-ms": 500},
		},
	)
	if verdict.Passed {
		t.Fatal("expected failure for missing configured metric")
	}
}
