package domain

import "errors"

var (
	// ErrNotFound indicates that a requested resource does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates that a resource with the same identity
	// already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidArgument indicates that a caller-provided value violates
	// a precondition.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrAlreadyInProgress indicates that the subject already has an
	// active rollout. Nothing is mutated when this is returned.
	ErrAlreadyInProgress = errors.New("rollout already in progress")

	// ErrRollbackFailed indicates that one or more targets could not be
	// reverted within the retry budget. The rollout is left in
	// [RolloutFailed] and the unreverted targets require manual
	// intervention; this is the only error the engine escalates.
	ErrRollbackFailed = errors.New("rollback failed")
)
