package domain

import "time"

// DeliveryAttempt records a single provider attempt for a message.
type DeliveryAttempt struct {
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

// Attempt outcome labels stored on DeliveryAttempt.Outcome.
const (
	AttemptOutcomeSent             = "SENT"
	AttemptOutcomeTransient        = "TRANSIENT"
	AttemptOutcomeQuotaExceeded    = "QUOTA_EXCEEDED"
	AttemptOutcomeInvalidRecipient = "INVALID_RECIPIENT"
	AttemptOutcomeFatal            = "FATAL"
	AttemptOutcomeRateLimited      = "RATE_LIMITED"
)
