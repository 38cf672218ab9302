package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/smsmaster/sms-engine/internal/domain"
	"github.com/smsmaster/sms-engine/internal/provider"
	"github.com/smsmaster/sms-engine/internal/queue"
	"github.com/smsmaster/sms-engine/internal/ratelimit"
	"github.com/smsmaster/sms-engine/internal/repository"
	"go.uber.org/zap"
)

// Waker nudges the scheduler loop so a freshly inserted job is considered
// before the next tick.
type Waker interface {
	Wake()
}

// ProviderStatus is the operator view of one registered provider.
type ProviderStatus struct {
	Name      string
	Usable    bool
	Remaining int64
}

// EngineService is the submission surface: it accepts immediate and scheduled
// sends, exposes status queries, and hands delivery to the queue and the
// scheduler.
type EngineService struct {
	messages  repository.MessageRepository
	jobs      repository.JobRepository
	attempts  repository.AttemptRepository
	registry  *provider.Registry
	limiter   ratelimit.Limiter
	publisher queue.Publisher
	waker     Waker
	logger    *zap.Logger

	defaultOrder []string
}

func NewEngineService(
	messages repository.MessageRepository,
	jobs repository.JobRepository,
	attempts repository.AttemptRepository,
	registry *provider.Registry,
	limiter ratelimit.Limiter,
	publisher queue.Publisher,
	defaultOrder []string,
	logger *zap.Logger,
) (*EngineService, error) {
	if messages == nil {
		return nil, fmt.Errorf("%w: message repository is required", domain.ErrValidation)
	}
	if jobs == nil {
		return nil, fmt.Errorf("%w: job repository is required", domain.ErrValidation)
	}
	if attempts == nil {
		return nil, fmt.Errorf("%w: attempt repository is required", domain.ErrValidation)
	}
	if registry == nil {
		return nil, fmt.Errorf("%w: provider registry is required", domain.ErrValidation)
	}
	if limiter == nil {
		return nil, fmt.Errorf("%w: rate limiter is required", domain.ErrValidation)
	}
	if publisher == nil {
		return nil, fmt.Errorf("%w: queue publisher is required", domain.ErrValidation)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &EngineService{
		messages:     messages,
		jobs:         jobs,
		attempts:     attempts,
		registry:     registry,
		limiter:      limiter,
		publisher:    publisher,
		logger:       logger,
		defaultOrder: defaultOrder,
	}, nil
}

// SetWaker attaches the scheduler wake hook. Optional; without it a new job
// waits for the next scan tick.
func (s *EngineService) SetWaker(waker Waker) {
	if s == nil {
		return
	}
	s.waker = waker
}

// SubmitImmediate accepts a message for dispatch. The message is persisted as
// pending and enqueued; the worker pool settles it into a terminal status.
// Submission fails fast when no usable provider could serve the message.
func (s *EngineService) SubmitImmediate(ctx context.Context, msg *domain.Message) (*domain.Message, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := prepareMessageForCreate(msg); err != nil {
		return nil, err
	}

	if order := s.registry.Order(msg.ProviderHint, s.defaultOrder); len(order) == 0 {
		s.logger.Error("submission rejected, no usable provider",
			zap.String("providerHint", msg.ProviderHint),
		)
		return nil, fmt.Errorf("no usable sms provider configured")
	}

	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, err
	}

	payload := queue.DispatchMessage{
		MessageID:     msg.ID,
		CorrelationID: msg.CorrelationID,
		ProviderHint:  msg.ProviderHint,
	}
	if err := s.publisher.Publish(ctx, queue.DispatchQueue, payload); err != nil {
		s.logger.Error("failed to publish message",
			zap.String("messageId", msg.ID),
			zap.Error(err),
		)
		failureKind := domain.AttemptOutcomeTransient
		markErr := s.messages.MarkTerminal(ctx, msg.ID, domain.StatusFailed, repository.TerminalResult{
			FailureKind: &failureKind,
		})
		if markErr != nil {
			s.logger.Error("failed to mark message as failed after publish error",
				zap.String("messageId", msg.ID),
				zap.Error(markErr),
			)
			return nil, fmt.Errorf("failed to publish message: %w (failed to mark as failed: %v)", err, markErr)
		}
		msg.Status = domain.StatusFailed
		return nil, fmt.Errorf("failed to publish message: %w", err)
	}

	return msg, nil
}

// SubmitScheduled accepts a future-dated or recurring job. A due time in the
// past is allowed; the job fires on the next scan.
func (s *EngineService) SubmitScheduled(ctx context.Context, job *domain.ScheduledJob) (*domain.ScheduledJob, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := prepareJobForCreate(job); err != nil {
		return nil, err
	}

	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, err
	}

	if s.waker != nil {
		s.waker.Wake()
	}

	return job, nil
}

func (s *EngineService) CancelScheduled(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: job id is required", domain.ErrValidation)
	}
	return s.jobs.Cancel(ctx, strings.TrimSpace(id))
}

func (s *EngineService) GetMessage(ctx context.Context, id string) (*domain.Message, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: message id is required", domain.ErrValidation)
	}
	return s.messages.GetByID(ctx, strings.TrimSpace(id))
}

func (s *EngineService) ListMessages(ctx context.Context, params repository.MessageListParams) ([]domain.Message, int64, error) {
	return s.messages.List(ctx, params)
}

func (s *EngineService) GetJob(ctx context.Context, id string) (*domain.ScheduledJob, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: job id is required", domain.ErrValidation)
	}
	return s.jobs.GetByID(ctx, strings.TrimSpace(id))
}

func (s *EngineService) ListJobs(ctx context.Context, params repository.JobListParams) ([]domain.ScheduledJob, int64, error) {
	return s.jobs.List(ctx, params)
}

// GetAttempts returns the delivery attempt log for one message.
func (s *EngineService) GetAttempts(ctx context.Context, messageID string) ([]domain.DeliveryAttempt, error) {
	if strings.TrimSpace(messageID) == "" {
		return nil, fmt.Errorf("%w: message id is required", domain.ErrValidation)
	}

	messageID = strings.TrimSpace(messageID)
	if _, err := s.messages.GetByID(ctx, messageID); err != nil {
		return nil, err
	}
	return s.attempts.GetByMessageID(ctx, messageID)
}

// ProviderStatuses reports each registered provider with its usability and
// remaining quota in the current window.
func (s *EngineService) ProviderStatuses(ctx context.Context) ([]ProviderStatus, error) {
	names := s.registry.Names()
	sort.Strings(names)

	statuses := make([]ProviderStatus, 0, len(names))
	for _, name := range names {
		remaining, err := s.limiter.Remaining(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("failed to read remaining quota for provider %s: %w", name, err)
		}
		statuses = append(statuses, ProviderStatus{
			Name:      name,
			Usable:    s.registry.Usable(name),
			Remaining: remaining,
		})
	}

	return statuses, nil
}

func prepareMessageForCreate(m *domain.Message) error {
	if m == nil {
		return fmt.Errorf("%w: message is required", domain.ErrValidation)
	}

	m.Recipient = strings.TrimSpace(m.Recipient)
	m.Body = strings.TrimSpace(m.Body)
	m.ProviderHint = strings.TrimSpace(m.ProviderHint)
	m.CorrelationID = strings.TrimSpace(m.CorrelationID)
	if m.CorrelationID == "" {
		m.CorrelationID = uuid.NewString()
	}

	m.ID = strings.TrimSpace(m.ID)
	if m.ID == "" {
		m.ID = uuid.NewString()
	}

	m.Status = domain.StatusPending
	m.AttemptCount = 0
	m.Provider = nil
	m.ProviderMessageID = nil
	m.FailureKind = nil

	return m.Validate()
}

func prepareJobForCreate(j *domain.ScheduledJob) error {
	if j == nil {
		return fmt.Errorf("%w: job is required", domain.ErrValidation)
	}

	j.Recipient = strings.TrimSpace(j.Recipient)
	j.Body = strings.TrimSpace(j.Body)
	j.ProviderHint = strings.TrimSpace(j.ProviderHint)

	j.ID = strings.TrimSpace(j.ID)
	if j.ID == "" {
		j.ID = uuid.NewString()
	}

	if j.Recurrence.Kind == "" {
		j.Recurrence.Kind = domain.RecurrenceNone
	}
	if j.Recurrence.IsRecurring() && j.Recurrence.Interval == 0 {
		j.Recurrence.Interval = 1
	}

	j.DueAt = j.DueAt.UTC()
	j.Status = domain.JobStatusScheduled
	j.MessageID = nil

	return j.Validate()
}
