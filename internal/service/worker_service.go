package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/smsmaster/sms-engine/internal/domain"
	"github.com/smsmaster/sms-engine/internal/observability"
	"github.com/smsmaster/sms-engine/internal/queue"
	"github.com/smsmaster/sms-engine/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const minWorkerConcurrency = 1

// MessageDispatcher settles one pending message against the provider chain.
type MessageDispatcher interface {
	Dispatch(ctx context.Context, msg *domain.Message) error
}

// WorkerService runs the consumer pool draining the dispatch queue.
type WorkerService struct {
	messages    repository.MessageRepository
	consumer    queue.Consumer
	dispatcher  MessageDispatcher
	logger      *zap.Logger
	metrics     *observability.Metrics
	concurrency int
}

func NewWorkerService(
	messages repository.MessageRepository,
	consumer queue.Consumer,
	dispatcher MessageDispatcher,
	concurrency int,
	logger *zap.Logger,
) (*WorkerService, error) {
	if messages == nil {
		return nil, fmt.Errorf("%w: message repository is required", domain.ErrValidation)
	}
	if consumer == nil {
		return nil, fmt.Errorf("%w: queue consumer is required", domain.ErrValidation)
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("%w: dispatcher is required", domain.ErrValidation)
	}
	if concurrency < minWorkerConcurrency {
		concurrency = minWorkerConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &WorkerService{
		messages:    messages,
		consumer:    consumer,
		dispatcher:  dispatcher,
		logger:      logger,
		concurrency: concurrency,
	}, nil
}

func (s *WorkerService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// Start consumes the dispatch queue until context cancellation.
func (s *WorkerService) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	g, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < s.concurrency; i++ {
		workerID := i + 1

		g.Go(func() error {
			s.logger.Info("worker started",
				zap.Int("workerId", workerID),
				zap.String("queue", queue.DispatchQueue),
			)

			err := s.consumer.Consume(groupCtx, queue.DispatchQueue, s.processMessage)
			if err != nil {
				s.logger.Error("worker stopped with error",
					zap.Int("workerId", workerID),
					zap.Error(err),
				)
				return err
			}

			s.logger.Info("worker stopped", zap.Int("workerId", workerID))
			return nil
		})
	}

	return g.Wait()
}

func (s *WorkerService) processMessage(ctx context.Context, payload queue.DispatchMessage) error {
	msg, err := s.messages.GetByID(ctx, payload.MessageID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.logger.Warn("message not found, skipping",
				zap.String("messageId", payload.MessageID),
			)
			return nil
		}
		return fmt.Errorf("failed to load message %s: %w", payload.MessageID, err)
	}

	s.metrics.IncWorkerInFlight()
	defer s.metrics.DecWorkerInFlight()

	return s.dispatcher.Dispatch(ctx, msg)
}
