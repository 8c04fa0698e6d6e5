package domain

import (
	"fmt"
	"sort"
)

// HealthSnapshot is one evaluation of the active targets' health, produced
// by an external [HealthEvaluator]. SuccessRate is in [0,1]; Metrics holds
// named values such as error rate or p99 latency.
type HealthSnapshot struct {
	SuccessRate float64
	Metrics     map[string]float64
}

// HealthThresholds are the limits a snapshot is judged against. A snapshot
// fails when its success rate is below SuccessRateMin or any metric named
// in MetricMaxima exceeds its maximum.
type HealthThresholds struct {
	SuccessRateMin float64
	MetricMaxima   map[string]float64
}

// HealthVerdict is the outcome of a health gate evaluation.
type HealthVerdict struct {
	Passed bool
	Reason string
}

// EvaluateHealth compares a snapshot against thresholds. It is a pure
// comparison; fetching the snapshot is the evaluator's job. A metric that
// is configured but absent from the snapshot fails the gate (fail-closed).
func EvaluateHealth(snapshot HealthSnapshot, thresholds HealthThresholds) HealthVerdict {
	if snapshot.SuccessRate < thresholds.SuccessRateMin {
		return HealthVerdict{
			Reason: fmt.Sprintf("success rate %.3f below minimum %.3f",
				snapshot.SuccessRate, thresholds.SuccessRateMin),
		}
	}

	names := make([]string, 0, len(thresholds.MetricMaxima))
	for name := range thresholds.MetricMaxima {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		max := thresholds.MetricMaxima[name]
		value, ok := snapshot.Metrics[name]
		if !ok {
			return HealthVerdict{
				Reason: fmt.Sprintf("metric %q missing from snapshot", name),
			}
		}
		if value > max {
			return HealthVerdict{
				Reason: fmt.Sprintf("metric %q at %.3f exceeds maximum %.3f", name, value, max),
			}
		}
	}

	return HealthVerdict{Passed: true}
}
