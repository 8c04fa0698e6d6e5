package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/stagegate/stagegate-server/internal/domain"
)

// RecordingDeployer implements [domain.Deployer] by recording the applied
// version per (subject, target) in SQLite. This is the naive implementation
// used until a real delivery backend is wired in; the upsert makes repeated
// applies of the same version idempotent.
type RecordingDeployer struct {
	DB  *sql.DB
	Now func() time.Time
}

func (d *RecordingDeployer) Apply(ctx context.Context, subject domain.SubjectID, target domain.Target, version string) error {
	_, err := d.DB.ExecContext(ctx,
		`INSERT INTO applied_versions (subject, target_id, version, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (subject, target_id) DO UPDATE
		 SET version = excluded.version, updated_at = excluded.updated_at`,
		string(subject), string(target.ID), version, d.now().UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("record applied version: %w", err)
	}
	return nil
}

// AppliedVersion returns the version currently recorded for the target, or
// ErrNotFound when nothing has been applied yet.
func (d *RecordingDeployer) AppliedVersion(ctx context.Context, subject domain.SubjectID, id domain.TargetID) (string, error) {
	var version string
	err := d.DB.QueryRowContext(ctx,
		`SELECT version FROM applied_versions WHERE subject = ? AND target_id = ?`,
		string(subject), string(id),
	).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("no applied version for %s/%s: %w", subject, id, domain.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("query applied version: %w", err)
	}
	return version, nil
}

func (d *RecordingDeployer) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}
