// Package batch defines the BatchJob lifecycle for asynchronous embedding work.
//
// Valid status graph:
//
//	pending ──► submitted ──► in_progress ──► completed
//	   │            │               │
//	   └────────────┴───────────────┴──► failed
//
// submitted may also move straight to completed.
// completed and failed are terminal states.
package batch

import (
	"time"

	"github.com/cockroachdb/errors"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusSubmitted  Status = "submitted"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// ErrInvalidTransition is returned when a status change is not in the transition table.
var ErrInvalidTransition = errors.New("invalid batch status transition")

var validTransitions = map[Status][]Status{
	StatusPending:    {StatusSubmitted, StatusFailed},
	StatusSubmitted:  {StatusInProgress, StatusCompleted, StatusFailed},
	StatusInProgress: {StatusCompleted, StatusFailed},
	// completed and failed have no outgoing transitions
}

// ParseStatus converts a stored string to a Status.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	switch st {
	case StatusPending, StatusSubmitted, StatusInProgress, StatusCompleted, StatusFailed:
		return st, nil
	}
	return "", errors.Newf("unknown batch status %q", s)
}

func IsTransitionAllowed(from, to Status) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

func IsTerminal(s Status) bool {
	return s == StatusCompleted || s == StatusFailed
}

// Outstanding reports whether a batch still needs polling.
func Outstanding(s Status) bool {
	return s == StatusSubmitted || s == StatusInProgress
}

// BatchJob tracks one submission to the external embedding service.
type BatchJob struct {
	BatchID        string
	Status         Status
	JobCount       int
	ProcessedCount int
	ErrorMessage   *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	CompletedAt    *time.Time
}

// Transition moves b to status to. Reaching a terminal state stamps CompletedAt.
func (b *BatchJob) Transition(to Status, now time.Time) error {
	if !IsTransitionAllowed(b.Status, to) {
		return errors.Wrapf(ErrInvalidTransition, "%s -> %s", b.Status, to)
	}
	b.Status = to
	b.UpdatedAt = now
	if IsTerminal(to) {
		t := now
		b.CompletedAt = &t
	}
	return nil
}
