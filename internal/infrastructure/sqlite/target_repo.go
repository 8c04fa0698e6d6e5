package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/stagegate/stagegate-server/internal/domain"
)

// TargetRepo implements [domain.TargetRepository] backed by SQLite.
type TargetRepo struct {
	DB *sql.DB
}

func (r *TargetRepo) Create(ctx context.Context, t domain.Target) error {
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO targets (id, key, name, environment) VALUES (?, ?, ?, ?)`,
		string(t.ID), t.Key, t.Name, string(t.Environment),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("target %q: %w", t.ID, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("insert target: %w", err)
	}
	return nil
}

func (r *TargetRepo) Get(ctx context.Context, id domain.TargetID) (domain.Target, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT id, key, name, environment FROM targets WHERE id = ?`,
		string(id),
	)
	return scanTarget(row)
}

func (r *TargetRepo) List(ctx context.Context) ([]domain.Target, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id, key, name, environment FROM targets ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}
	defer rows.Close()

	var targets []domain.Target
	for rows.Next() {
		t, err := scanTarget(rows)
		if err != nil {
			return nil, err
		}
		targets = append(targets, t)
	}
	return targets, rows.Err()
}

func (r *TargetRepo) Delete(ctx context.Context, id domain.TargetID) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM targets WHERE id = ?`, string(id))
	if err != nil {
		return fmt.Errorf("delete target: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("target %q: %w", id, domain.ErrNotFound)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTarget(s scanner) (domain.Target, error) {
	var t domain.Target
	var id, env string
	if err := s.Scan(&id, &t.Key, &t.Name, &env); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return t, fmt.Errorf("%w", domain.ErrNotFound)
		}
		return t, fmt.Errorf("scan target: %w", err)
	}
	t.ID = domain.TargetID(id)
	t.Environment = domain.Environment(env)
	return t, nil
}
