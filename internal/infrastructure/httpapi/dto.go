package httpapi

import (
	"fmt"
	"time"

	"github.com/stagegate/stagegate-server/internal/domain"
)

type thresholdsDTO struct {
	SuccessRateMin float64            `json:"success_rate_min"`
	MetricMaxima   map[string]float64 `json:"metric_maxima,omitempty"`
}

func (d thresholdsDTO) toDomain() domain.HealthThresholds {
	return domain.HealthThresholds{
		SuccessRateMin: d.SuccessRateMin,
		MetricMaxima:   d.MetricMaxima,
	}
}

type directDTO struct {
	SkipHealthChecks bool          `json:"skip_health_checks"`
	Thresholds       thresholdsDTO `json:"thresholds"`
}

type canaryDTO struct {
	InitialPercentage   int           `json:"initial_percentage"`
	IncrementPercentage int           `json:"increment_percentage"`
	EvaluationWindow    string        `json:"evaluation_window"`
	Thresholds          thresholdsDTO `json:"thresholds"`
}

type rollingDTO struct {
	EvaluationWindow   string        `json:"evaluation_window"`
	PauseBetweenStages string        `json:"pause_between_stages,omitempty"`
	Thresholds         thresholdsDTO `json:"thresholds"`
	Order              []string      `json:"order,omitempty"`
}

type blueGreenDTO struct {
	ValidationPeriod           string        `json:"validation_period"`
	PostSwitchMonitoringPeriod string        `json:"post_switch_monitoring_period"`
	RetentionPeriod            string        `json:"retention_period,omitempty"`
	Thresholds                 thresholdsDTO `json:"thresholds"`
}

type strategyDTO struct {
	Type      string        `json:"type"`
	Direct    *directDTO    `json:"direct,omitempty"`
	Canary    *canaryDTO    `json:"canary,omitempty"`
	Rolling   *rollingDTO   `json:"rolling,omitempty"`
	BlueGreen *blueGreenDTO `json:"blue_green,omitempty"`
}

func (d strategyDTO) toDomain() (domain.Strategy, error) {
	s := domain.Strategy{Type: domain.StrategyType(d.Type)}

	if d.Direct != nil {
		s.Direct = &domain.DirectConfig{
			SkipHealthChecks: d.Direct.SkipHealthChecks,
			Thresholds:       d.Direct.Thresholds.toDomain(),
		}
	}
	if d.Canary != nil {
		window, err := parseDuration(d.Canary.EvaluationWindow, "evaluation_window")
		if err != nil {
			return s, err
		}
		s.Canary = &domain.CanaryConfig{
			InitialPercentage:   d.Canary.InitialPercentage,
			IncrementPercentage: d.Canary.IncrementPercentage,
			EvaluationWindow:    window,
			Thresholds:          d.Canary.Thresholds.toDomain(),
		}
	}
	if d.Rolling != nil {
		window, err := parseDuration(d.Rolling.EvaluationWindow, "evaluation_window")
		if err != nil {
			return s, err
		}
		pause, err := parseDuration(d.Rolling.PauseBetweenStages, "pause_between_stages")
		if err != nil {
			return s, err
		}
		order := make([]domain.TargetID, len(d.Rolling.Order))
		for i, id := range d.Rolling.Order {
			order[i] = domain.TargetID(id)
		}
		if len(order) == 0 {
			order = nil
		}
		s.Rolling = &domain.RollingConfig{
			EvaluationWindow:   window,
			PauseBetweenStages: pause,
			Thresholds:         d.Rolling.Thresholds.toDomain(),
			Order:              order,
		}
	}
	if d.BlueGreen != nil {
		validation, err := parseDuration(d.BlueGreen.ValidationPeriod, "validation_period")
		if err != nil {
			return s, err
		}
		monitoring, err := parseDuration(d.BlueGreen.PostSwitchMonitoringPeriod, "post_switch_monitoring_period")
		if err != nil {
			return s, err
		}
		retention, err := parseDuration(d.BlueGreen.RetentionPeriod, "retention_period")
		if err != nil {
			return s, err
		}
		s.BlueGreen = &domain.BlueGreenConfig{
			ValidationPeriod:           validation,
			PostSwitchMonitoringPeriod: monitoring,
			RetentionPeriod:            retention,
			Thresholds:                 d.BlueGreen.Thresholds.toDomain(),
		}
	}
	return s, nil
}

func parseDuration(s, field string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", field, s, err)
	}
	return d, nil
}

type targetDTO struct {
	ID          string `json:"id"`
	Key         string `json:"key"`
	Name        string `json:"name"`
	Environment string `json:"environment,omitempty"`
}

func (d targetDTO) toDomain() domain.Target {
	return domain.Target{
		ID:          domain.TargetID(d.ID),
		Key:         d.Key,
		Name:        d.Name,
		Environment: domain.Environment(d.Environment),
	}
}

func targetResponse(t domain.Target) targetDTO {
	return targetDTO{
		ID:          string(t.ID),
		Key:         t.Key,
		Name:        t.Name,
		Environment: string(t.Environment),
	}
}

type startRolloutRequest struct {
	Subject             string      `json:"subject"`
	TargetVersion       string      `json:"target_version"`
	PreviousVersion     string      `json:"previous_version"`
	Strategy            strategyDTO `json:"strategy"`
	Targets             []targetDTO `json:"targets"`
	DisableAutoRollback bool        `json:"disable_auto_rollback"`
}

type rollbackRequest struct {
	Reason string `json:"reason"`
}

type rolloutResponse struct {
	ID                string            `json:"id"`
	Subject           string            `json:"subject"`
	TargetVersion     string            `json:"target_version"`
	PreviousVersion   string            `json:"previous_version,omitempty"`
	StrategyType      string            `json:"strategy_type"`
	Status            string            `json:"status"`
	CurrentStageIndex int               `json:"current_stage_index"`
	TargetStatuses    map[string]string `json:"target_statuses"`
	AutoRollback      bool              `json:"auto_rollback"`
	RollbackReason    string            `json:"rollback_reason,omitempty"`
	ErrorMessage      string            `json:"error_message,omitempty"`
	StartedAt         time.Time         `json:"started_at"`
	CompletedAt       *time.Time        `json:"completed_at,omitempty"`
	RolledBackAt      *time.Time        `json:"rolled_back_at,omitempty"`
}

func toRolloutResponse(ro domain.Rollout) rolloutResponse {
	statuses := make(map[string]string, len(ro.Targets))
	for _, t := range ro.Targets {
		statuses[string(t.ID)] = string(ro.TargetStatus(t.ID))
	}
	resp := rolloutResponse{
		ID:                string(ro.ID),
		Subject:           string(ro.Subject),
		TargetVersion:     ro.TargetVersion,
		PreviousVersion:   ro.PreviousVersion,
		StrategyType:      string(ro.Strategy.Type),
		Status:            string(ro.Status),
		CurrentStageIndex: ro.CurrentStageIndex,
		TargetStatuses:    statuses,
		AutoRollback:      ro.AutoRollback,
		RollbackReason:    ro.RollbackReason,
		ErrorMessage:      ro.ErrorMessage,
		StartedAt:         ro.StartedAt,
	}
	if !ro.CompletedAt.IsZero() {
		t := ro.CompletedAt
		resp.CompletedAt = &t
	}
	if !ro.RolledBackAt.IsZero() {
		t := ro.RolledBackAt
		resp.RolledBackAt = &t
	}
	return resp
}
