package repository

import (
	"context"
	"errors"
	"time"

	"github.com/smsmaster/sms-engine/internal/domain"
	"gorm.io/gorm"
)

type JobListParams struct {
	Status   *domain.JobStatus
	Page     int
	PageSize int
}

type JobRepository interface {
	Create(ctx context.Context, j *domain.ScheduledJob) error
	GetByID(ctx context.Context, id string) (*domain.ScheduledJob, error)
	List(ctx context.Context, params JobListParams) ([]domain.ScheduledJob, int64, error)
	// GetDue returns scheduled jobs with due_at <= before, ordered by due
	// time, so the scan cost tracks jobs actually due rather than total jobs.
	GetDue(ctx context.Context, before time.Time, limit int) ([]domain.ScheduledJob, error)
	// MarkFiring transitions SCHEDULED -> FIRING and reports whether this
	// caller won the transition, so a job never fires twice for one due_at.
	MarkFiring(ctx context.Context, id string) (bool, error)
	// Complete settles a fired job, recording the message it produced.
	Complete(ctx context.Context, id string, messageID string) error
	// Release returns a FIRING job to SCHEDULED so a later scan can retry
	// it, for fires that failed before any message was enqueued.
	Release(ctx context.Context, id string) error
	// Cancel succeeds only while the job is still SCHEDULED; anything later
	// is ErrConflict.
	Cancel(ctx context.Context, id string) error
}

type GormJobRepo struct {
	db *gorm.DB
}

func NewGormJobRepo(db *gorm.DB) *GormJobRepo {
	return &GormJobRepo{db: db}
}

func (r *GormJobRepo) Create(ctx context.Context, j *domain.ScheduledJob) error {
	model := jobModelFromDomain(j)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if j != nil {
		*j = *jobModelToDomain(model)
	}
	return nil
}

func (r *GormJobRepo) GetByID(ctx context.Context, id string) (*domain.ScheduledJob, error) {
	var model ScheduledJobModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return jobModelToDomain(&model), nil
}

func (r *GormJobRepo) List(ctx context.Context, params JobListParams) ([]domain.ScheduledJob, int64, error) {
	query := r.db.WithContext(ctx).Model(&ScheduledJobModel{})

	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
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

	var models []ScheduledJobModel
	err := query.
		Order("due_at ASC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&models).Error
	if err != nil {
		return nil, 0, err
	}

	jobs := make([]domain.ScheduledJob, 0, len(models))
	for i := range models {
		jobs = append(jobs, *jobModelToDomain(&models[i]))
	}

	return jobs, total, nil
}

func (r *GormJobRepo) GetDue(ctx context.Context, before time.Time, limit int) ([]domain.ScheduledJob, error) {
	var models []ScheduledJobModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND due_at <= ?", domain.JobStatusScheduled, before).
		Order("due_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	jobs := make([]domain.ScheduledJob, 0, len(models))
	for i := range models {
		jobs = append(jobs, *jobModelToDomain(&models[i]))
	}

	return jobs, nil
}

func (r *GormJobRepo) MarkFiring(ctx context.Context, id string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&ScheduledJobModel{}).
		Where("id = ? AND status = ?", id, domain.JobStatusScheduled).
		Update("status", domain.JobStatusFiring)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *GormJobRepo) Complete(ctx context.Context, id string, messageID string) error {
	updates := map[string]any{"status": domain.JobStatusCompleted}
	if messageID != "" {
		updates["message_id"] = messageID
	}

	result := r.db.WithContext(ctx).
		Model(&ScheduledJobModel{}).
		Where("id = ? AND status = ?", id, domain.JobStatusFiring).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *GormJobRepo) Release(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).
		Model(&ScheduledJobModel{}).
		Where("id = ? AND status = ?", id, domain.JobStatusFiring).
		Update("status", domain.JobStatusScheduled)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *GormJobRepo) Cancel(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).
		Model(&ScheduledJobModel{}).
		Where("id = ? AND status = ?", id, domain.JobStatusScheduled).
		Update("status", domain.JobStatusCancelled)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		// Either the job does not exist or it is past the point of
		// cancellation; the caller distinguishes via GetByID.
		var count int64
		if err := r.db.WithContext(ctx).
			Model(&ScheduledJobModel{}).
			Where("id = ?", id).
			Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return domain.ErrNotFound
		}
		return domain.ErrConflict
	}
	return nil
}
