package domain

import (
	"fmt"
	"sync"
)

// SubjectLocks is the per-subject single-flight lock registry: at most one
// rollout may hold a subject at a time, for its entire active lifetime.
// This is the only process-wide mutable structure the engine owns.
type SubjectLocks struct {
	mu   sync.Mutex
	held map[SubjectID]RolloutID
}

func NewSubjectLocks() *SubjectLocks {
	return &SubjectLocks{held: make(map[SubjectID]RolloutID)}
}

// TryAcquire takes the subject's lock for the rollout, or returns
// ErrAlreadyInProgress without blocking if another rollout holds it.
func (l *SubjectLocks) TryAcquire(subject SubjectID, rollout RolloutID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if holder, ok := l.held[subject]; ok {
		return fmt.Errorf("%w: subject %q held by rollout %q", ErrAlreadyInProgress, subject, holder)
	}
	l.held[subject] = rollout
	return nil
}

// Release frees the subject's lock if the rollout holds it. Releasing a
// lock held by a different rollout is a no-op, so double release on an
// exit path cannot free someone else's lock.
func (l *SubjectLocks) Release(subject SubjectID, rollout RolloutID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[subject] == rollout {
		delete(l.held, subject)
	}
}

// Holder returns the rollout currently holding the subject, if any.
func (l *SubjectLocks) Holder(subject SubjectID) (RolloutID, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	id, ok := l.held[subject]
	return id, ok
}
