package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"memetic/internal/config"
	"memetic/internal/models"
	"memetic/internal/repository"
)

var (
	ErrJobNotFound  = errors.New("scheduler: failed job not found")
	ErrJobNotParked = errors.New("scheduler: failed job is not parked")
)

// Runner resolves one signal. The engine implements it.
type Runner interface {
	ResolveScheduled(ctx context.Context, signalID uint64) error
}

type Observer interface {
	ObserveJob(result string)
}

// ExpiredSignals lists ACTIVE signals whose expiry is at or before a timestamp.
type ExpiredSignals interface {
	ListExpiredActiveSignals(ctx context.Context, expiredBefore int64, limit int) ([]models.Signal, error)
}

type Scheduler struct {
	Queue    Queue
	Runner   Runner
	Failed   repository.FailedJobRepository
	Signals  ExpiredSignals
	Logger   *zap.Logger
	Observer Observer

	PollInterval     time.Duration
	Concurrency      int
	MaxAttempts      int
	BaseBackoff      time.Duration
	JobTimeout       time.Duration
	GraceAfterExpiry time.Duration
	ReconcileLimit   int

	Now func() time.Time
}

func New(cfg config.SchedulerConfig, queue Queue, runner Runner, repo repository.Repository, logger *zap.Logger) *Scheduler {
	s := &Scheduler{
		Queue:            queue,
		Runner:           runner,
		Logger:           logger,
		PollInterval:     cfg.PollInterval,
		Concurrency:      cfg.Concurrency,
		MaxAttempts:      cfg.MaxAttempts,
		BaseBackoff:      cfg.BaseBackoff,
		JobTimeout:       cfg.JobTimeout,
		GraceAfterExpiry: cfg.GraceAfterExpiry,
		ReconcileLimit:   cfg.ReconcileLimit,
	}
	if repo != nil {
		s.Failed = repo
		s.Signals = repo
	}
	return s
}

func (s *Scheduler) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Scheduler) log() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

func (s *Scheduler) observe(result string) {
	if s.Observer != nil {
		s.Observer.ObserveJob(result)
	}
}

func (s *Scheduler) concurrency() int {
	if s.Concurrency <= 0 {
		return 4
	}
	return s.Concurrency
}

func (s *Scheduler) maxAttempts() int {
	if s.MaxAttempts <= 0 {
		return 3
	}
	return s.MaxAttempts
}

// Backoff is BaseBackoff * 2^(attempts-1).
func (s *Scheduler) Backoff(attempts int) time.Duration {
	base := s.BaseBackoff
	if base <= 0 {
		base = 2 * time.Second
	}
	if attempts < 1 {
		attempts = 1
	}
	return base << (attempts - 1)
}

// Enqueue schedules the signal for resolution at dueAt.
func (s *Scheduler) Enqueue(ctx context.Context, signalID uint64, dueAt time.Time) (bool, error) {
	if s == nil || s.Queue == nil {
		return false, errors.New("scheduler: queue not configured")
	}
	return s.Queue.Enqueue(ctx, NewJob(signalID, dueAt, s.now()))
}

func (s *Scheduler) Run(ctx context.Context) error {
	if s == nil || s.Queue == nil || s.Runner == nil {
		return errors.New("scheduler: queue and runner are required")
	}
	interval := s.PollInterval
	if interval <= 0 {
		interval = time.Second
	}
	s.log().Info("scheduler started",
		zap.Duration("poll_interval", interval),
		zap.Int("concurrency", s.concurrency()),
	)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := s.Tick(ctx); err != nil && ctx.Err() == nil {
			s.log().Warn("scheduler tick failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			s.log().Info("scheduler stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Tick claims due jobs and runs them, returning once all of them settled.
func (s *Scheduler) Tick(ctx context.Context) (int, error) {
	jobs, err := s.Queue.Claim(ctx, s.now(), s.concurrency())
	if err != nil {
		return 0, fmt.Errorf("claim jobs: %w", err)
	}
	if len(jobs) == 0 {
		return 0, nil
	}
	var g errgroup.Group
	g.SetLimit(s.concurrency())
	for _, job := range jobs {
		g.Go(func() error {
			s.runJob(ctx, job)
			return nil
		})
	}
	_ = g.Wait()
	return len(jobs), nil
}

func (s *Scheduler) runJob(ctx context.Context, job Job) {
	jctx := ctx
	if s.JobTimeout > 0 {
		var cancel context.CancelFunc
		jctx, cancel = context.WithTimeout(ctx, s.JobTimeout)
		defer cancel()
	}
	err := s.Runner.ResolveScheduled(jctx, job.SignalID)
	log := s.log().With(zap.Uint64("signal_id", job.SignalID), zap.String("job_id", job.ID))

	switch {
	case err == nil:
		if aerr := s.Queue.Ack(ctx, job); aerr != nil {
			log.Warn("ack job failed", zap.Error(aerr))
		}
		s.observe("resolved")
		return
	case ctx.Err() != nil:
		// Shutting down: hand the job back without spending an attempt.
		if rerr := s.Queue.Retry(context.WithoutCancel(ctx), job, s.now()); rerr != nil {
			log.Warn("return job on shutdown failed", zap.Error(rerr))
		}
		return
	case errors.Is(err, ErrNotDue):
		at := job.DueAt
		if floor := s.now().Add(s.Backoff(1)); at.Before(floor) {
			at = floor
		}
		if rerr := s.Queue.Retry(ctx, job, at); rerr != nil {
			log.Warn("reschedule early job failed", zap.Error(rerr))
		}
		s.observe("not_due")
		return
	}

	job.Attempts++
	job.LastError = err.Error()
	if job.Attempts < s.maxAttempts() {
		at := s.now().Add(s.Backoff(job.Attempts))
		log.Warn("resolution failed, retrying",
			zap.Int("attempts", job.Attempts),
			zap.Time("retry_at", at),
			zap.Error(err),
		)
		if rerr := s.Queue.Retry(ctx, job, at); rerr != nil {
			log.Error("retry job failed", zap.Error(rerr))
		}
		s.observe("retried")
		return
	}

	if perr := s.park(ctx, job); perr != nil {
		log.Error("park job failed, keeping it queued", zap.Error(perr))
		if rerr := s.Queue.Retry(ctx, job, s.now().Add(s.Backoff(job.Attempts))); rerr != nil {
			log.Error("retry job failed", zap.Error(rerr))
		}
		return
	}
	if aerr := s.Queue.Ack(ctx, job); aerr != nil {
		log.Warn("ack parked job failed", zap.Error(aerr))
	}
	log.Error("resolution failed permanently, job parked",
		zap.Int("attempts", job.Attempts),
		zap.Error(err),
	)
	s.observe("parked")
}

func (s *Scheduler) park(ctx context.Context, job Job) error {
	if s.Failed == nil {
		return errors.New("scheduler: failed job store not configured")
	}
	return s.Failed.InsertFailedJob(ctx, &models.FailedResolutionJob{
		ID:        uuid.NewString(),
		SignalID:  job.SignalID,
		Attempts:  job.Attempts,
		LastError: job.LastError,
		Status:    models.FailedJobStatusParked,
		FailedAt:  s.now().UTC(),
	})
}

// Reconcile re-enqueues ACTIVE signals that expired more than GraceAfterExpiry ago.
func (s *Scheduler) Reconcile(ctx context.Context) (int, error) {
	if s.Signals == nil {
		return 0, nil
	}
	now := s.now()
	limit := s.ReconcileLimit
	if limit <= 0 {
		limit = 500
	}
	signals, err := s.Signals.ListExpiredActiveSignals(ctx, now.Add(-s.GraceAfterExpiry).Unix(), limit)
	if err != nil {
		return 0, fmt.Errorf("list expired signals: %w", err)
	}
	added := 0
	for _, sig := range signals {
		ok, err := s.Queue.Enqueue(ctx, NewJob(sig.SignalID, now, now))
		if err != nil {
			return added, err
		}
		if ok {
			added++
		}
	}
	if added > 0 {
		s.log().Info("reconcile enqueued stranded signals",
			zap.Int("enqueued", added),
			zap.Int("scanned", len(signals)),
		)
	}
	return added, nil
}

// Requeue puts a parked job back on the queue with a fresh attempt budget.
func (s *Scheduler) Requeue(ctx context.Context, id string) (Job, error) {
	if s.Failed == nil {
		return Job{}, errors.New("scheduler: failed job store not configured")
	}
	parked, err := s.Failed.GetFailedJob(ctx, id)
	if err != nil {
		return Job{}, err
	}
	if parked == nil {
		return Job{}, ErrJobNotFound
	}
	if parked.Status != models.FailedJobStatusParked {
		return Job{}, ErrJobNotParked
	}
	now := s.now()
	job := NewJob(parked.SignalID, now, now)
	if _, err := s.Queue.Enqueue(ctx, job); err != nil {
		return Job{}, err
	}
	if err := s.Failed.MarkFailedJobRequeued(ctx, parked.ID, now.UTC()); err != nil {
		return Job{}, err
	}
	s.log().Info("parked job requeued", zap.String("failed_job_id", id), zap.Uint64("signal_id", parked.SignalID))
	return job, nil
}
