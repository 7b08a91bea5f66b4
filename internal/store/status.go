package store

import (
	"errors"
	"fmt"
)

// Status is the lifecycle state of a book-processing job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// ErrIllegalTransition is returned when a status change would move a
// job backward or out of a terminal state.
var ErrIllegalTransition = errors.New("illegal status transition")

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether s is a terminal state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// transitionSource returns the only status a job may be in for a
// transition into `to`. Jobs move pending -> processing ->
// {completed|failed} and never backward.
func transitionSource(to Status) (Status, error) {
	switch to {
	case StatusProcessing:
		return StatusPending, nil
	case StatusCompleted, StatusFailed:
		return StatusProcessing, nil
	default:
		return "", fmt.Errorf("%w: no transition into %q", ErrIllegalTransition, to)
	}
}

// ValidateTransition rejects any move not on the
// pending -> processing -> {completed|failed} path.
func ValidateTransition(from, to Status) error {
	want, err := transitionSource(to)
	if err != nil {
		return err
	}
	if from != want {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
	}
	return nil
}
