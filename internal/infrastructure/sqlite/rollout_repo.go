package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/stagegate/stagegate-server/internal/domain"
)

const rolloutColumns = `id, subject, target_version, previous_version, strategy, targets,
	 status, current_stage_index, target_statuses, auto_rollback, cancel_requested,
	 rollback_reason, error_message, started_at, completed_at, rolled_back_at`

// RolloutRepo implements [domain.RolloutRepository] backed by SQLite.
type RolloutRepo struct {
	DB *sql.DB
}

func (r *RolloutRepo) Create(ctx context.Context, ro domain.Rollout) error {
	strategy, err := json.Marshal(ro.Strategy)
	if err != nil {
		return fmt.Errorf("marshal strategy: %w", err)
	}
	targets, err := json.Marshal(ro.Targets)
	if err != nil {
		return fmt.Errorf("marshal targets: %w", err)
	}
	statuses, err := json.Marshal(ro.TargetStatuses)
	if err != nil {
		return fmt.Errorf("marshal target statuses: %w", err)
	}

	_, err = r.DB.ExecContext(ctx,
		`INSERT INTO rollouts (`+rolloutColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(ro.ID), string(ro.Subject), ro.TargetVersion, ro.PreviousVersion,
		string(strategy), string(targets), string(ro.Status), ro.CurrentStageIndex,
		string(statuses), boolInt(ro.AutoRollback), boolInt(ro.CancelRequested),
		ro.RollbackReason, ro.ErrorMessage,
		ro.StartedAt.UTC().Format(timeLayout), nullTime(ro.CompletedAt), nullTime(ro.RolledBackAt),
	)
	if err != nil {
		if isActiveSubjectViolation(err) {
			return fmt.Errorf("subject %q: %w", ro.Subject, domain.ErrAlreadyInProgress)
		}
		if isUniqueViolation(err) {
			return fmt.Errorf("rollout %q: %w", ro.ID, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("insert rollout: %w", err)
	}
	return nil
}

func (r *RolloutRepo) Get(ctx context.Context, id domain.RolloutID) (domain.Rollout, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT `+rolloutColumns+` FROM rollouts WHERE id = ?`, string(id))
	return scanRollout(row)
}

func (r *RolloutRepo) List(ctx context.Context) ([]domain.Rollout, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+rolloutColumns+` FROM rollouts ORDER BY started_at`)
	if err != nil {
		return nil, fmt.Errorf("list rollouts: %w", err)
	}
	defer rows.Close()

	var rollouts []domain.Rollout
	for rows.Next() {
		ro, err := scanRollout(rows)
		if err != nil {
			return nil, err
		}
		rollouts = append(rollouts, ro)
	}
	return rollouts, rows.Err()
}

func (r *RolloutRepo) Update(ctx context.Context, ro domain.Rollout) error {
	strategy, err := json.Marshal(ro.Strategy)
	if err != nil {
		return fmt.Errorf("marshal strategy: %w", err)
	}
	targets, err := json.Marshal(ro.Targets)
	if err != nil {
		return fmt.Errorf("marshal targets: %w", err)
	}
	statuses, err := json.Marshal(ro.TargetStatuses)
	if err != nil {
		return fmt.Errorf("marshal target statuses: %w", err)
	}

	res, err := r.DB.ExecContext(ctx,
		`UPDATE rollouts
		 SET subject = ?, target_version = ?, previous_version = ?, strategy = ?,
		     targets = ?, status = ?, current_stage_index = ?, target_statuses = ?,
		     auto_rollback = ?, cancel_requested = ?, rollback_reason = ?,
		     error_message = ?, started_at = ?, completed_at = ?, rolled_back_at = ?
		 WHERE id = ?`,
		string(ro.Subject), ro.TargetVersion, ro.PreviousVersion, string(strategy),
		string(targets), string(ro.Status), ro.CurrentStageIndex, string(statuses),
		boolInt(ro.AutoRollback), boolInt(ro.CancelRequested), ro.RollbackReason,
		ro.ErrorMessage, ro.StartedAt.UTC().Format(timeLayout),
		nullTime(ro.CompletedAt), nullTime(ro.RolledBackAt), string(ro.ID),
	)
	if err != nil {
		return fmt.Errorf("update rollout: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("rollout %q: %w", ro.ID, domain.ErrNotFound)
	}
	return nil
}

// RequestCancel sets the cancel flag on an active rollout with a single
// conditional UPDATE, so a concurrent terminal save by the coordinator can
// never be overwritten.
func (r *RolloutRepo) RequestCancel(ctx context.Context, id domain.RolloutID, reason string) error {
	placeholders := make([]string, len(domain.ActiveStatuses))
	args := []any{reason, reason, string(id)}
	for i, s := range domain.ActiveStatuses {
		placeholders[i] = "?"
		args = append(args, string(s))
	}

	res, err := r.DB.ExecContext(ctx,
		`UPDATE rollouts
		 SET cancel_requested = 1,
		     rollback_reason = CASE WHEN ? != '' THEN ? ELSE rollback_reason END
		 WHERE id = ? AND status IN (`+strings.Join(placeholders, ", ")+`)`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("request cancel: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		ro, err := r.Get(ctx, id)
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: rollout %q is already %s", domain.ErrInvalidArgument, id, ro.Status)
	}
	return nil
}

func (r *RolloutRepo) ActiveBySubject(ctx context.Context, subject domain.SubjectID) (domain.Rollout, error) {
	placeholders := make([]string, len(domain.ActiveStatuses))
	args := []any{string(subject)}
	for i, s := range domain.ActiveStatuses {
		placeholders[i] = "?"
		args = append(args, string(s))
	}
	row := r.DB.QueryRowContext(ctx,
		`SELECT `+rolloutColumns+` FROM rollouts
		 WHERE subject = ? AND status IN (`+strings.Join(placeholders, ", ")+`)`,
		args...,
	)
	return scanRollout(row)
}

func scanRollout(s scanner) (domain.Rollout, error) {
	var ro domain.Rollout
	var id, subject, strategyJSON, targetsJSON, statusStr, statusesJSON, startedAt string
	var autoRollback, cancelRequested int
	var completedAt, rolledBackAt sql.NullString

	err := s.Scan(&id, &subject, &ro.TargetVersion, &ro.PreviousVersion,
		&strategyJSON, &targetsJSON, &statusStr, &ro.CurrentStageIndex,
		&statusesJSON, &autoRollback, &cancelRequested,
		&ro.RollbackReason, &ro.ErrorMessage, &startedAt, &completedAt, &rolledBackAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ro, fmt.Errorf("%w", domain.ErrNotFound)
		}
		return ro, fmt.Errorf("scan rollout: %w", err)
	}

	ro.ID = domain.RolloutID(id)
	ro.Subject = domain.SubjectID(subject)
	ro.Status = domain.RolloutStatus(statusStr)
	ro.AutoRollback = autoRollback != 0
	ro.CancelRequested = cancelRequested != 0

	if err := json.Unmarshal([]byte(strategyJSON), &ro.Strategy); err != nil {
		return ro, fmt.Errorf("unmarshal strategy: %w", err)
	}
	if err := json.Unmarshal([]byte(targetsJSON), &ro.Targets); err != nil {
		return ro, fmt.Errorf("unmarshal targets: %w", err)
	}
	if err := json.Unmarshal([]byte(statusesJSON), &ro.TargetStatuses); err != nil {
		return ro, fmt.Errorf("unmarshal target statuses: %w", err)
	}

	if ro.StartedAt, err = parseTime(startedAt); err != nil {
		return ro, fmt.Errorf("parse started_at: %w", err)
	}
	if ro.CompletedAt, err = parseNullTime(completedAt); err != nil {
		return ro, fmt.Errorf("parse completed_at: %w", err)
	}
	if ro.RolledBackAt, err = parseNullTime(rolledBackAt); err != nil {
		return ro, fmt.Errorf("parse rolled_back_at: %w", err)
	}
	return ro, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
