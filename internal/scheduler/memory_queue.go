package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"
)

type MemoryQueue struct {
	Lease time.Duration

	mu       sync.Mutex
	jobs     map[string]Job
	due      map[string]time.Time
	inflight map[string]time.Time
}

func NewMemoryQueue(lease time.Duration) *MemoryQueue {
	return &MemoryQueue{
		Lease:    lease,
		jobs:     map[string]Job{},
		due:      map[string]time.Time{},
		inflight: map[string]time.Time{},
	}
}

func (q *MemoryQueue) Enqueue(_ context.Context, job Job) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.jobs[job.ID]; ok {
		return false, nil
	}
	q.jobs[job.ID] = job
	q.due[job.ID] = job.DueAt
	return true, nil
}

func (q *MemoryQueue) Claim(_ context.Context, now time.Time, limit int) ([]Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for id, until := range q.inflight {
		if !until.After(now) {
			delete(q.inflight, id)
			q.due[id] = now
		}
	}

	ids := make([]string, 0, len(q.due))
	for id, at := range q.due {
		if !at.After(now) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		if q.due[ids[i]].Equal(q.due[ids[j]]) {
			return ids[i] < ids[j]
		}
		return q.due[ids[i]].Before(q.due[ids[j]])
	})
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}

	out := make([]Job, 0, len(ids))
	for _, id := range ids {
		delete(q.due, id)
		q.inflight[id] = now.Add(q.lease())
		out = append(out, q.jobs[id])
	}
	return out, nil
}

func (q *MemoryQueue) Retry(_ context.Context, job Job, at time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.inflight, job.ID)
	job.DueAt = at.UTC()
	q.jobs[job.ID] = job
	q.due[job.ID] = job.DueAt
	return nil
}

func (q *MemoryQueue) Ack(_ context.Context, job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.inflight, job.ID)
	delete(q.due, job.ID)
	delete(q.jobs, job.ID)
	return nil
}

func (q *MemoryQueue) Len(context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.jobs)), nil
}

func (q *MemoryQueue) lease() time.Duration {
	if q.Lease <= 0 {
		return 2 * time.Minute
	}
	return q.Lease
}
