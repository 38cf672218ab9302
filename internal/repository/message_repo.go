package repository

import (
	"context"
	"errors"
	"time"

	"github.com/smsmaster/sms-engine/internal/domain"
	"gorm.io/gorm"
)

type MessageListParams struct {
	Status   *domain.Status
	Provider *string
	From     *time.Time
	To       *time.Time
	Page     int
	PageSize int
}

type MessageRepository interface {
	Create(ctx context.Context, m *domain.Message) error
	GetByID(ctx context.Context, id string) (*domain.Message, error)
	List(ctx context.Context, params MessageListParams) ([]domain.Message, int64, error)
	// MarkTerminal moves a pending message into a terminal status. It is
	// idempotent per message id: repeating the same transition is a no-op,
	// while a different terminal status for an already-settled message is
	// ErrConflict.
	MarkTerminal(ctx context.Context, id string, status domain.Status, result TerminalResult) error
	IncrementAttemptCount(ctx context.Context, id string) error
}

// TerminalResult carries the delivery facts folded into the message row
// alongside its terminal status.
type TerminalResult struct {
	Provider          *string
	ProviderMessageID *string
	FailureKind       *string
}

type GormMessageRepo struct {
	db *gorm.DB
}

func NewGormMessageRepo(db *gorm.DB) *GormMessageRepo {
	return &GormMessageRepo{db: db}
}

func (r *GormMessageRepo) Create(ctx context.Context, m *domain.Message) error {
	model := messageModelFromDomain(m)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if m != nil {
		*m = *messageModelToDomain(model)
	}
	return nil
}

func (r *GormMessageRepo) GetByID(ctx context.Context, id string) (*domain.Message, error) {
	var model MessageModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return messageModelToDomain(&model), nil
}

func (r *GormMessageRepo) List(ctx context.Context, params MessageListParams) ([]domain.Message, int64, error) {
	query := r.db.WithContext(ctx).Model(&MessageModel{})

	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}
	if params.Provider != nil {
		query = query.Where("provider = ?", *params.Provider)
	}
	if params.From != nil {
		query = query.Where("created_at >= ?", *params.From)
	}
	if params.To != nil {
		query = query.Where("created_at <= ?", *params.To)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := max(params.Page, 1)
	pageSize := params.PageSize
	if pageSize < 1 {
		pageSize = 50
	}
	pageSize = min(pageSize, 100)

	var models []MessageModel
	err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&models).Error
	if err != nil {
		return nil, 0, err
	}

	messages := make([]domain.Message, 0, len(models))
	for i := range models {
		messages = append(messages, *messageModelToDomain(&models[i]))
	}

	return messages, total, nil
}

func (r *GormMessageRepo) MarkTerminal(ctx context.Context, id string, status domain.Status, result TerminalResult) error {
	if !status.IsTerminal() {
		return domain.ErrConflict
	}

	updates := map[string]any{"status": status}
	if result.Provider != nil {
		updates["provider"] = *result.Provider
	}
	if result.ProviderMessageID != nil {
		updates["provider_message_id"] = *result.ProviderMessageID
	}
	if result.FailureKind != nil {
		updates["failure_kind"] = *result.FailureKind
	}

	res := r.db.WithContext(ctx).
		Model(&MessageModel{}).
		Where("id = ? AND status = ?", id, domain.StatusPending).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}

	// Nothing pending matched: distinguish a retried idempotent update from
	// a genuinely conflicting transition.
	current, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if current.Status == status {
		return nil
	}
	return domain.ErrConflict
}

func (r *GormMessageRepo) IncrementAttemptCount(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).
		Model(&MessageModel{}).
		Where("id = ?", id).
		Update("attempt_count", gorm.Expr("attempt_count + 1"))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
