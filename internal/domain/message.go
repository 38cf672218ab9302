package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Status represents the lifecycle state of a message.
//
// The transition graph is strictly PENDING -> {SENT | FAILED | RATE_LIMITED};
// a message never leaves a terminal status.
type Status string

const (
	StatusPending     Status = "PENDING"
	StatusSent        Status = "SENT"
	StatusFailed      Status = "FAILED"
	StatusRateLimited Status = "RATE_LIMITED"
)

func (s Status) String() string { return string(s) }

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusSent, StatusFailed, StatusRateLimited:
		return true
	}
	return false
}

// IsTerminal reports whether no further transitions are allowed.
func (s Status) IsTerminal() bool {
	return s == StatusSent || s == StatusFailed || s == StatusRateLimited
}

func ParseStatusFromString(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid status %q", ErrValidation, s)
	}
	return st, nil
}

// MaxMessageContent is the single-segment SMS content limit in characters.
const MaxMessageContent = 160

// e164Pattern matches E.164 phone numbers: a plus sign followed by up to
// fifteen digits, the first of which is non-zero.
var e164Pattern = regexp.MustCompile(`^\+[1-9]\d{1,14}$`)

// ValidRecipient reports whether the recipient is a valid E.164 phone number.
func ValidRecipient(recipient string) bool {
	return e164Pattern.MatchString(recipient)
}

// Message is the core domain entity representing an outbound SMS.
type Message struct {
	ID                string  `gorm:"type:uuid;primaryKey"`
	CorrelationID     string  `gorm:"type:varchar(36);not null"`
	JobID             *string `gorm:"type:uuid"`
	Recipient         string  `gorm:"type:varchar(20);not null"`
	Body              string  `gorm:"type:text;not null"`
	ProviderHint      string  `gorm:"type:varchar(50)"`
	Status            Status  `gorm:"type:varchar(20);not null"`
	Provider          *string `gorm:"type:varchar(50)"`
	ProviderMessageID *string `gorm:"type:varchar(255)"`
	FailureKind       *string `gorm:"type:varchar(20)"`
	AttemptCount      int     `gorm:"not null;default:0"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (m *Message) Validate() error {
	if strings.TrimSpace(m.Recipient) == "" {
		return fmt.Errorf("%w: recipient is required", ErrValidation)
	}
	if !ValidRecipient(m.Recipient) {
		return fmt.Errorf("%w: recipient %q is not an E.164 phone number", ErrValidation, m.Recipient)
	}
	if m.Body == "" {
		return fmt.Errorf("%w: body is required", ErrValidation)
	}
	if bodyLen := len([]rune(m.Body)); bodyLen > MaxMessageContent {
		return fmt.Errorf("%w: body exceeds %d characters (got %d)", ErrValidation, MaxMessageContent, bodyLen)
	}
	if !m.Status.IsValid() {
		return fmt.Errorf("%w: invalid status %q", ErrValidation, m.Status)
	}
	return nil
}
