package dispatch

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/smsmaster/sms-engine/internal/domain"
	"github.com/smsmaster/sms-engine/internal/observability"
	"github.com/smsmaster/sms-engine/internal/provider"
	"github.com/smsmaster/sms-engine/internal/ratelimit"
	"github.com/smsmaster/sms-engine/internal/repository"
	"go.uber.org/zap"
)

const (
	minSendAttempts      = 1
	maxRetryDelay        = 60 * time.Second
	defaultBackoffBase   = time.Second
	maxRetryJitterMillis = 250
	defaultSendTimeout   = 10 * time.Second
)

// Dispatcher walks the provider order for one message and settles it into a
// terminal status. Transient failures are retried on the same provider,
// quota and rate-limit conditions fall through to the next provider, and
// permanent failures settle the message immediately.
type Dispatcher struct {
	registry *provider.Registry
	limiter  ratelimit.Limiter
	messages repository.MessageRepository
	attempts repository.AttemptRepository
	logger   *zap.Logger
	metrics  *observability.Metrics

	defaultOrder []string
	maxAttempts  int
	backoffBase  time.Duration
	sendTimeout  time.Duration

	now      func() time.Time
	randIntn func(n int) int
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewDispatcher(
	registry *provider.Registry,
	limiter ratelimit.Limiter,
	messages repository.MessageRepository,
	attempts repository.AttemptRepository,
	defaultOrder []string,
	maxAttempts int,
	backoffBase time.Duration,
	sendTimeout time.Duration,
	logger *zap.Logger,
) (*Dispatcher, error) {
	if registry == nil {
		return nil, fmt.Errorf("%w: provider registry is required", domain.ErrValidation)
	}
	if limiter == nil {
		return nil, fmt.Errorf("%w: rate limiter is required", domain.ErrValidation)
	}
	if messages == nil {
		return nil, fmt.Errorf("%w: message repository is required", domain.ErrValidation)
	}
	if attempts == nil {
		return nil, fmt.Errorf("%w: attempt repository is required", domain.ErrValidation)
	}
	if maxAttempts < minSendAttempts {
		maxAttempts = minSendAttempts
	}
	if backoffBase <= 0 {
		backoffBase = defaultBackoffBase
	}
	if sendTimeout <= 0 {
		sendTimeout = defaultSendTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Dispatcher{
		registry:     registry,
		limiter:      limiter,
		messages:     messages,
		attempts:     attempts,
		logger:       logger,
		defaultOrder: defaultOrder,
		maxAttempts:  maxAttempts,
		backoffBase:  backoffBase,
		sendTimeout:  sendTimeout,
		now:          time.Now,
		randIntn:     rand.Intn,
		sleep:        sleepWithContext,
	}, nil
}

func (d *Dispatcher) SetMetrics(metrics *observability.Metrics) {
	if d == nil {
		return
	}
	d.metrics = metrics
}

// Dispatch settles one pending message. It returns an error only for
// infrastructure problems (store or limiter unavailable); delivery failures
// themselves end in a terminal message status and a nil return.
func (d *Dispatcher) Dispatch(ctx context.Context, msg *domain.Message) error {
	if msg == nil {
		return fmt.Errorf("%w: message is required", domain.ErrValidation)
	}
	if msg.Status.IsTerminal() {
		// Redelivery of an already-settled message; ack and skip.
		return nil
	}

	logger := observability.WithContextLogger(d.logger, ctx)

	order := d.registry.Order(msg.ProviderHint, d.defaultOrder)
	if len(order) == 0 {
		logger.Error("no usable providers for message",
			zap.String("messageId", msg.ID),
			zap.String("providerHint", msg.ProviderHint),
		)
		return d.settleFailed(ctx, msg, "", domain.AttemptOutcomeFatal)
	}

	attemptNumber := msg.AttemptCount
	lastOutcome := ""
	lastProvider := ""
	sendAttempted := false

providers:
	for _, name := range order {
		adapter, ok := d.registry.Get(name)
		if !ok {
			continue
		}

		for try := 1; try <= d.maxAttempts; try++ {
			allowed, err := d.limiter.TryConsume(ctx, name)
			if err != nil {
				return fmt.Errorf("rate limiter failed for provider %s: %w", name, err)
			}
			if !allowed {
				attemptNumber++
				if err := d.recordAttempt(ctx, msg.ID, name, attemptNumber, domain.AttemptOutcomeRateLimited, nil, nil); err != nil {
					return err
				}
				// Skips count toward the persisted total so attempt
				// numbering stays monotonic across redeliveries.
				if err := d.messages.IncrementAttemptCount(ctx, msg.ID); err != nil {
					logger.Warn("failed to increment attempt count",
						zap.String("messageId", msg.ID),
						zap.Error(err),
					)
				}
				d.metrics.IncRateLimited(name)
				logger.Info("provider rate limited, falling back",
					zap.String("messageId", msg.ID),
					zap.String("provider", name),
				)
				lastOutcome = domain.AttemptOutcomeRateLimited
				lastProvider = name
				continue providers
			}

			attemptNumber++
			sendAttempted = true
			lastProvider = name

			sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
			sendStart := d.now()
			outcome, sendErr := adapter.Send(sendCtx, msg.Recipient, msg.Body)
			cancel()
			d.metrics.ObserveSendDuration(name, d.now().Sub(sendStart))

			if err := d.messages.IncrementAttemptCount(ctx, msg.ID); err != nil {
				logger.Warn("failed to increment attempt count",
					zap.String("messageId", msg.ID),
					zap.Error(err),
				)
			}

			if sendErr == nil {
				if err := d.recordAttempt(ctx, msg.ID, name, attemptNumber, domain.AttemptOutcomeSent, outcome, nil); err != nil {
					return err
				}
				return d.settleSent(ctx, msg, name, outcome)
			}

			kind := provider.KindOf(sendErr)
			lastOutcome = attemptOutcomeForKind(kind)
			if err := d.recordAttempt(ctx, msg.ID, name, attemptNumber, lastOutcome, outcome, sendErr); err != nil {
				return err
			}

			switch kind {
			case provider.KindTransient:
				if ctx.Err() != nil {
					return ctx.Err()
				}
				if try < d.maxAttempts {
					d.metrics.IncSendRetry(name)
					delay := d.computeRetryDelay(try)
					logger.Info("transient send failure, retrying",
						zap.String("messageId", msg.ID),
						zap.String("provider", name),
						zap.Int("attempt", try),
						zap.Duration("delay", delay),
						zap.Error(sendErr),
					)
					if err := d.sleep(ctx, delay); err != nil {
						return err
					}
					continue
				}
				logger.Warn("provider retries exhausted, falling back",
					zap.String("messageId", msg.ID),
					zap.String("provider", name),
					zap.Error(sendErr),
				)
				continue providers

			case provider.KindQuotaExceeded:
				logger.Warn("provider quota exceeded, falling back",
					zap.String("messageId", msg.ID),
					zap.String("provider", name),
					zap.Error(sendErr),
				)
				continue providers

			case provider.KindInvalidRecipient:
				logger.Warn("invalid recipient, failing message",
					zap.String("messageId", msg.ID),
					zap.String("provider", name),
					zap.Error(sendErr),
				)
				return d.settleFailed(ctx, msg, name, lastOutcome)

			case provider.KindFatal:
				d.registry.Quarantine(name)
				logger.Error("fatal provider error, quarantining and failing message",
					zap.String("messageId", msg.ID),
					zap.String("provider", name),
					zap.Error(sendErr),
				)
				return d.settleFailed(ctx, msg, name, lastOutcome)
			}
		}
	}

	if !sendAttempted {
		// Every usable provider was skipped by the limiter; the message
		// settles as rate limited rather than failed.
		return d.settleRateLimited(ctx, msg, lastProvider)
	}
	return d.settleFailed(ctx, msg, lastProvider, lastOutcome)
}

func (d *Dispatcher) settleSent(ctx context.Context, msg *domain.Message, providerName string, outcome *provider.DeliveryOutcome) error {
	result := repository.TerminalResult{Provider: &providerName}
	if outcome != nil && strings.TrimSpace(outcome.MessageID) != "" {
		result.ProviderMessageID = &outcome.MessageID
	}

	if err := d.markTerminal(ctx, msg.ID, domain.StatusSent, result); err != nil {
		return err
	}
	d.metrics.IncMessageSent(providerName)
	d.logger.Info("message sent",
		zap.String("messageId", msg.ID),
		zap.String("provider", providerName),
	)
	return nil
}

func (d *Dispatcher) settleFailed(ctx context.Context, msg *domain.Message, providerName, failureKind string) error {
	if failureKind == "" {
		failureKind = domain.AttemptOutcomeFatal
	}

	result := repository.TerminalResult{FailureKind: &failureKind}
	if providerName != "" {
		result.Provider = &providerName
	}

	if err := d.markTerminal(ctx, msg.ID, domain.StatusFailed, result); err != nil {
		return err
	}
	d.metrics.IncMessageFailed(providerName, failureKind)
	return nil
}

func (d *Dispatcher) settleRateLimited(ctx context.Context, msg *domain.Message, providerName string) error {
	failureKind := domain.AttemptOutcomeRateLimited
	result := repository.TerminalResult{FailureKind: &failureKind}
	if providerName != "" {
		result.Provider = &providerName
	}

	if err := d.markTerminal(ctx, msg.ID, domain.StatusRateLimited, result); err != nil {
		return err
	}
	d.metrics.IncMessageRateLimited(providerName)
	return nil
}

// markTerminal applies the terminal transition, retrying once on a store
// error. Conflicts from a concurrent settle are treated as done.
func (d *Dispatcher) markTerminal(ctx context.Context, id string, status domain.Status, result repository.TerminalResult) error {
	err := d.messages.MarkTerminal(ctx, id, status, result)
	if err != nil && !errors.Is(err, domain.ErrConflict) && !errors.Is(err, domain.ErrNotFound) {
		d.logger.Warn("terminal status update failed, retrying once",
			zap.String("messageId", id),
			zap.Error(err),
		)
		err = d.messages.MarkTerminal(ctx, id, status, result)
	}
	if errors.Is(err, domain.ErrConflict) {
		d.logger.Warn("message already settled with a different status",
			zap.String("messageId", id),
			zap.String("status", status.String()),
		)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to mark message %s as %s: %w", id, status, err)
	}
	return nil
}

func (d *Dispatcher) recordAttempt(
	ctx context.Context,
	messageID string,
	providerName string,
	attemptNumber int,
	outcome string,
	resp *provider.DeliveryOutcome,
	sendErr error,
) error {
	var statusCode *int
	var responseBody *string
	var attemptErr *string

	if resp != nil {
		if resp.StatusCode > 0 {
			value := resp.StatusCode
			statusCode = &value
		}
		if body := strings.TrimSpace(resp.Body); body != "" {
			value := resp.Body
			responseBody = &value
		}
	}

	if sendErr != nil {
		value := sendErr.Error()
		attemptErr = &value

		var providerErr *provider.Error
		if errors.As(sendErr, &providerErr) && providerErr.StatusCode > 0 && statusCode == nil {
			value := providerErr.StatusCode
			statusCode = &value
		}
	}

	attempt := &domain.DeliveryAttempt{
		ID:            uuid.NewString(),
		MessageID:     messageID,
		Provider:      providerName,
		AttemptNumber: attemptNumber,
		Outcome:       outcome,
		StatusCode:    statusCode,
		ResponseBody:  responseBody,
		Error:         attemptErr,
		CreatedAt:     d.now().UTC(),
	}

	if err := d.attempts.Create(ctx, attempt); err != nil {
		return fmt.Errorf("failed to record delivery attempt: %w", err)
	}
	return nil
}

func (d *Dispatcher) computeRetryDelay(attemptNumber int) time.Duration {
	if attemptNumber < 1 {
		attemptNumber = 1
	}

	delay := d.backoffBase
	for i := 1; i < attemptNumber; i++ {
		delay *= 2
		if delay >= maxRetryDelay {
			delay = maxRetryDelay
			break
		}
	}

	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}

	jitterMillis := 0
	if d.randIntn != nil && maxRetryJitterMillis > 0 {
		jitterMillis = d.randIntn(maxRetryJitterMillis + 1)
	}

	return delay + time.Duration(jitterMillis)*time.Millisecond
}

func attemptOutcomeForKind(kind provider.ErrorKind) string {
	switch kind {
	case provider.KindQuotaExceeded:
		return domain.AttemptOutcomeQuotaExceeded
	case provider.KindInvalidRecipient:
		return domain.AttemptOutcomeInvalidRecipient
	case provider.KindFatal:
		return domain.AttemptOutcomeFatal
	default:
		return domain.AttemptOutcomeTransient
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
