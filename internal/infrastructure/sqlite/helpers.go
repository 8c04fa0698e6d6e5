package sqlite

import (
	"database/sql"
	"strings"
	"time"
)

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// isActiveSubjectViolation reports whether err is a violation of the
// partial unique index guarding one active rollout per subject.
func isActiveSubjectViolation(err error) bool {
	return isUniqueViolation(err) && strings.Contains(err.Error(), "rollouts_active_subject")
}

const timeLayout = time.RFC3339Nano

func nullTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(timeLayout), Valid: true}
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

func parseNullTime(s sql.NullString) (time.Time, error) {
	if !s.Valid {
		return time.Time{}, nil
	}
	return time.Parse(timeLayout, s.String)
}
