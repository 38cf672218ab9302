package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/smsmaster/sms-engine/internal/domain"
	"github.com/smsmaster/sms-engine/internal/observability"
	"github.com/smsmaster/sms-engine/internal/queue"
	"github.com/smsmaster/sms-engine/internal/repository"
	"go.uber.org/zap"
)

const (
	defaultScanInterval = 5 * time.Second
	defaultScanLimit    = 100
)

// Scheduler fires due jobs into the dispatch queue. A single loop wakes on a
// timer tick or an explicit Wake, scans the store for due jobs, and wins each
// firing through a guarded status transition so one due_at never fires twice.
type Scheduler struct {
	jobs      repository.JobRepository
	messages  repository.MessageRepository
	publisher queue.Publisher
	logger    *zap.Logger
	metrics   *observability.Metrics
	interval  time.Duration
	limit     int
	wake      chan struct{}

	now   func() time.Time
	newID func() string
}

func NewScheduler(
	jobs repository.JobRepository,
	messages repository.MessageRepository,
	publisher queue.Publisher,
	interval time.Duration,
	limit int,
	logger *zap.Logger,
) (*Scheduler, error) {
	if jobs == nil {
		return nil, fmt.Errorf("%w: job repository is required", domain.ErrValidation)
	}
	if messages == nil {
		return nil, fmt.Errorf("%w: message repository is required", domain.ErrValidation)
	}
	if publisher == nil {
		return nil, fmt.Errorf("%w: queue publisher is required", domain.ErrValidation)
	}
	if interval <= 0 {
		interval = defaultScanInterval
	}
	if limit <= 0 {
		limit = defaultScanLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Scheduler{
		jobs:      jobs,
		messages:  messages,
		publisher: publisher,
		logger:    logger,
		interval:  interval,
		limit:     limit,
		wake:      make(chan struct{}, 1),
		now:       time.Now,
		newID:     uuid.NewString,
	}, nil
}

func (s *Scheduler) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// Wake nudges the loop to scan before the next tick. Non-blocking; wakes
// already pending are collapsed into one.
func (s *Scheduler) Wake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := s.scanDue(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("scheduler initial scan failed", zap.Error(err))
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case <-s.wake:
		}

		if err := s.scanDue(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.logger.Error("scheduler scan failed", zap.Error(err))
		}
	}
}

func (s *Scheduler) scanDue(ctx context.Context) error {
	now := s.now().UTC()

	dueJobs, err := s.jobs.GetDue(ctx, now, s.limit)
	if err != nil {
		return fmt.Errorf("failed to fetch due jobs: %w", err)
	}

	for i := range dueJobs {
		s.fire(ctx, &dueJobs[i], now)
	}

	return nil
}

func (s *Scheduler) fire(ctx context.Context, job *domain.ScheduledJob, now time.Time) {
	won, err := s.jobs.MarkFiring(ctx, job.ID)
	if err != nil {
		s.logger.Error("failed to transition job to firing",
			zap.String("jobId", job.ID),
			zap.Error(err),
		)
		return
	}
	if !won {
		// Cancelled or claimed by a concurrent scan between fetch and here.
		s.logger.Info("job no longer schedulable, skipping",
			zap.String("jobId", job.ID),
		)
		return
	}

	msg := job.MaterializeMessage(s.newID(), s.newID(), now)
	if err := s.messages.Create(ctx, msg); err != nil {
		// Nothing was enqueued yet; put the job back so the next scan
		// retries it instead of stranding it in FIRING.
		s.logger.Error("failed to create message for fired job, releasing",
			zap.String("jobId", job.ID),
			zap.Error(err),
		)
		if releaseErr := s.jobs.Release(ctx, job.ID); releaseErr != nil {
			s.logger.Error("failed to release fired job",
				zap.String("jobId", job.ID),
				zap.Error(releaseErr),
			)
		}
		return
	}

	payload := queue.DispatchMessage{
		MessageID:     msg.ID,
		CorrelationID: msg.CorrelationID,
		ProviderHint:  msg.ProviderHint,
	}
	if err := s.publisher.Publish(ctx, queue.DispatchQueue, payload); err != nil {
		s.logger.Error("failed to enqueue fired job message",
			zap.String("jobId", job.ID),
			zap.String("messageId", msg.ID),
			zap.Error(err),
		)
		failureKind := domain.AttemptOutcomeTransient
		markErr := s.messages.MarkTerminal(ctx, msg.ID, domain.StatusFailed, repository.TerminalResult{
			FailureKind: &failureKind,
		})
		if markErr != nil {
			s.logger.Error("failed to fail unenqueued message",
				zap.String("messageId", msg.ID),
				zap.Error(markErr),
			)
		}
	}

	if job.Recurrence.IsRecurring() {
		s.scheduleNext(ctx, job, now)
	}

	if err := s.jobs.Complete(ctx, job.ID, msg.ID); err != nil {
		// The message is already enqueued, so the fire must not repeat;
		// retry the settle once before giving up on the record.
		s.logger.Warn("failed to complete fired job, retrying once",
			zap.String("jobId", job.ID),
			zap.Error(err),
		)
		if err := s.jobs.Complete(ctx, job.ID, msg.ID); err != nil {
			s.logger.Error("failed to complete fired job",
				zap.String("jobId", job.ID),
				zap.Error(err),
			)
			return
		}
	}

	s.metrics.IncJobFired()
	s.logger.Info("job fired",
		zap.String("jobId", job.ID),
		zap.String("messageId", msg.ID),
		zap.Time("dueAt", job.DueAt),
	)
}

// scheduleNext clones a recurring job forward. The next due time anchors on
// the fired due_at, not on now, so the cadence never drifts; a stretch of
// missed occurrences collapses into the single fire that just happened.
func (s *Scheduler) scheduleNext(ctx context.Context, job *domain.ScheduledJob, now time.Time) {
	nextDue := job.Recurrence.NextAfter(job.DueAt, now)

	clone := &domain.ScheduledJob{
		ID:           s.newID(),
		Recipient:    job.Recipient,
		Body:         job.Body,
		ProviderHint: job.ProviderHint,
		DueAt:        nextDue,
		Recurrence:   job.Recurrence,
		Status:       domain.JobStatusScheduled,
	}

	if err := s.jobs.Create(ctx, clone); err != nil {
		s.logger.Error("failed to schedule next recurrence",
			zap.String("jobId", job.ID),
			zap.Time("nextDueAt", nextDue),
			zap.Error(err),
		)
		return
	}

	s.logger.Info("recurrence scheduled",
		zap.String("jobId", job.ID),
		zap.String("nextJobId", clone.ID),
		zap.Time("nextDueAt", nextDue),
	)
}
