package repository

import (
	"time"

	"github.com/smsmaster/sms-engine/internal/domain"
)

// MessageModel is the persistence model for the messages table.
type MessageModel struct {
	ID                string        `gorm:"type:uuid;primaryKey"`
	CorrelationID     string        `gorm:"type:varchar(36);not null"`
	JobID             *string       `gorm:"type:uuid"`
	Recipient         string        `gorm:"type:varchar(20);not null"`
	Body              string        `gorm:"type:text;not null"`
	ProviderHint      string        `gorm:"type:varchar(50)"`
	Status            domain.Status `gorm:"type:varchar(20);not null"`
	Provider          *string       `gorm:"type:varchar(50)"`
	ProviderMessageID *string       `gorm:"type:varchar(255)"`
	FailureKind       *string       `gorm:"type:varchar(20)"`
	AttemptCount      int           `gorm:"not null;default:0"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (MessageModel) TableName() string {
	return "messages"
}

// DeliveryAttemptModel is the persistence model for delivery_attempts.
type DeliveryAttemptModel struct {
	ID            string  `gorm:"type:uuid;primaryKey"`
	MessageID     string  `gorm:"type:uuid;not null"`
	Provider      string  `gorm:"type:varchar(50);not null"`
	AttemptNumber int     `gorm:"not null"`
	Outcome       string  `gorm:"type:varchar(20);not null"`
	StatusCode    *int    `gorm:"type:int"`
	ResponseBody  *string `gorm:"type:text"`
	Error         *string `gorm:"type:text"`
	CreatedAt     time.Time
}

func (DeliveryAttemptModel) TableName() string {
	return "delivery_attempts"
}

// ScheduledJobModel is the persistence model for scheduled_jobs.
type ScheduledJobModel struct {
	ID                 string                `gorm:"type:uuid;primaryKey"`
	Recipient          string                `gorm:"type:varchar(20);not null"`
	Body               string                `gorm:"type:text;not null"`
	ProviderHint       string                `gorm:"type:varchar(50)"`
	DueAt              time.Time             `gorm:"type:timestamptz;not null"`
	RecurrenceKind     domain.RecurrenceKind `gorm:"type:varchar(10);not null;default:'NONE'"`
	RecurrenceInterval int                   `gorm:"not null;default:1"`
	Status             domain.JobStatus      `gorm:"type:varchar(20);not null"`
	MessageID          *string               `gorm:"type:uuid"`
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (ScheduledJobModel) TableName() string {
	return "scheduled_jobs"
}

func messageModelFromDomain(m *domain.Message) *MessageModel {
	if m == nil {
		return nil
	}

	return &MessageModel{
		ID:                m.ID,
		CorrelationID:     m.CorrelationID,
		JobID:             m.JobID,
		Recipient:         m.Recipient,
		Body:              m.Body,
		ProviderHint:      m.ProviderHint,
		Status:            m.Status,
		Provider:          m.Provider,
		ProviderMessageID: m.ProviderMessageID,
		FailureKind:       m.FailureKind,
		AttemptCount:      m.AttemptCount,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}

func messageModelToDomain(m *MessageModel) *domain.Message {
	if m == nil {
		return nil
	}

	return &domain.Message{
		ID:                m.ID,
		CorrelationID:     m.CorrelationID,
		JobID:             m.JobID,
		Recipient:         m.Recipient,
		Body:              m.Body,
		ProviderHint:      m.ProviderHint,
		Status:            m.Status,
		Provider:          m.Provider,
		ProviderMessageID: m.ProviderMessageID,
		FailureKind:       m.FailureKind,
		AttemptCount:      m.AttemptCount,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}

func attemptModelFromDomain(a *domain.DeliveryAttempt) *DeliveryAttemptModel {
	if a == nil {
		return nil
	}

	return &DeliveryAttemptModel{
		ID:            a.ID,
		MessageID:     a.MessageID,
		Provider:      a.Provider,
		AttemptNumber: a.AttemptNumber,
		Outcome:       a.Outcome,
		StatusCode:    a.StatusCode,
		ResponseBody:  a.ResponseBody,
		Error:         a.Error,
		CreatedAt:     a.CreatedAt,
	}
}

func attemptModelToDomain(m *DeliveryAttemptModel) *domain.DeliveryAttempt {
	if m == nil {
		return nil
	}

	return &domain.DeliveryAttempt{
		ID:            m.ID,
		MessageID:     m.MessageID,
		Provider:      m.Provider,
		AttemptNumber: m.AttemptNumber,
		Outcome:       m.Outcome,
		StatusCode:    m.StatusCode,
		ResponseBody:  m.ResponseBody,
		Error:         m.Error,
		CreatedAt:     m.CreatedAt,
	}
}

func jobModelFromDomain(j *domain.ScheduledJob) *ScheduledJobModel {
	if j == nil {
		return nil
	}

	return &ScheduledJobModel{
		ID:                 j.ID,
		Recipient:          j.Recipient,
		Body:               j.Body,
		ProviderHint:       j.ProviderHint,
		DueAt:              j.DueAt,
		RecurrenceKind:     j.Recurrence.Kind,
		RecurrenceInterval: j.Recurrence.Interval,
		Status:             j.Status,
		MessageID:          j.MessageID,
		CreatedAt:          j.CreatedAt,
		UpdatedAt:          j.UpdatedAt,
	}
}

func jobModelToDomain(m *ScheduledJobModel) *domain.ScheduledJob {
	if m == nil {
		return nil
	}

	return &domain.ScheduledJob{
		ID:           m.ID,
		Recipient:    m.Recipient,
		Body:         m.Body,
		ProviderHint: m.ProviderHint,
		DueAt:        m.DueAt,
		Recurrence: domain.Recurrence{
			Kind:     m.RecurrenceKind,
			Interval: m.RecurrenceInterval,
		},
		Status:    m.Status,
		MessageID: m.MessageID,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}
