package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotDue is returned by a job runner when the job fired too early.
// The job is put back without spending an attempt.
var ErrNotDue = errors.New("scheduler: job not due")

// Job is one pending resolution.
type Job struct {
	ID         string    `json:"id"`
	SignalID   uint64    `json:"signal_id"`
	DueAt      time.Time `json:"due_at"`
	Attempts   int       `json:"attempts"`
	LastError  string    `json:"last_error,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// JobID is stable per signal so enqueueing the same signal twice is a no-op.
func JobID(signalID uint64) string {
	return fmt.Sprintf("resolve:%d", signalID)
}

func NewJob(signalID uint64, dueAt, now time.Time) Job {
	return Job{
		ID:         JobID(signalID),
		SignalID:   signalID,
		DueAt:      dueAt.UTC(),
		EnqueuedAt: now.UTC(),
	}
}

// Queue is a durable delay queue. Claimed jobs are leased and must be
// either acked or retried; an expired lease makes the job due again.
type Queue interface {
	Enqueue(ctx context.Context, job Job) (bool, error)
	Claim(ctx context.Context, now time.Time, limit int) ([]Job, error)
	Retry(ctx context.Context, job Job, at time.Time) error
	Ack(ctx context.Context, job Job) error
	Len(ctx context.Context) (int64, error)
}
