package domain

import (
	"fmt"
	"strings"
	"time"
)

// JobStatus represents the lifecycle state of a scheduled job.
//
// SCHEDULED -> FIRING -> COMPLETED, or SCHEDULED -> CANCELLED. A job that has
// started firing can no longer be cancelled.
type JobStatus string

const (
	JobStatusScheduled JobStatus = "SCHEDULED"
	JobStatusFiring    JobStatus = "FIRING"
	JobStatusCompleted JobStatus = "COMPLETED"
	JobStatusCancelled JobStatus = "CANCELLED"
)

func (s JobStatus) String() string { return string(s) }

func (s JobStatus) IsValid() bool {
	switch s {
	case JobStatusScheduled, JobStatusFiring, JobStatusCompleted, JobStatusCancelled:
		return true
	}
	return false
}

func ParseJobStatusFromString(s string) (JobStatus, error) {
	st := JobStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid job status %q", ErrValidation, s)
	}
	return st, nil
}

// RecurrenceKind represents the repeat rule attached to a scheduled job.
type RecurrenceKind string

const (
	RecurrenceNone    RecurrenceKind = "NONE"
	RecurrenceDaily   RecurrenceKind = "DAILY"
	RecurrenceWeekly  RecurrenceKind = "WEEKLY"
	RecurrenceMonthly RecurrenceKind = "MONTHLY"
)

func (k RecurrenceKind) String() string { return string(k) }

func (k RecurrenceKind) IsValid() bool {
	switch k {
	case RecurrenceNone, RecurrenceDaily, RecurrenceWeekly, RecurrenceMonthly:
		return true
	}
	return false
}

func ParseRecurrenceKindFromString(s string) (RecurrenceKind, error) {
	k := RecurrenceKind(strings.ToUpper(strings.TrimSpace(s)))
	if !k.IsValid() {
		return "", fmt.Errorf("%w: invalid recurrence %q", ErrValidation, s)
	}
	return k, nil
}

// Recurrence is a repeat rule: every Interval days/weeks/months.
type Recurrence struct {
	Kind     RecurrenceKind `gorm:"type:varchar(10);not null;default:'NONE'"`
	Interval int            `gorm:"not null;default:1"`
}

func (r Recurrence) IsRecurring() bool {
	return r.Kind != RecurrenceNone && r.Kind != ""
}

func (r Recurrence) Validate() error {
	if !r.Kind.IsValid() {
		return fmt.Errorf("%w: invalid recurrence %q", ErrValidation, r.Kind)
	}
	if r.IsRecurring() && r.Interval < 1 {
		return fmt.Errorf("%w: recurrence interval must be at least 1 (got %d)", ErrValidation, r.Interval)
	}
	return nil
}

// NextAfter returns the due time of the occurrence following firedDueAt.
//
// The interval is anchored on the fired due time, not on the wall clock, so a
// late fire does not drift the series. If the process slept through several
// occurrences the result is advanced by whole intervals until it is strictly
// after now, producing exactly one catch-up fire for the missed stretch.
// Monthly recurrences clamp to the last day of shorter months (a job due on
// Jan 31 fires next on Feb 28/29).
func (r Recurrence) NextAfter(firedDueAt, now time.Time) time.Time {
	if !r.IsRecurring() {
		return time.Time{}
	}

	interval := r.Interval
	if interval < 1 {
		interval = 1
	}

	next := firedDueAt
	steps := 1
	for {
		switch r.Kind {
		case RecurrenceDaily:
			next = firedDueAt.AddDate(0, 0, interval*steps)
		case RecurrenceWeekly:
			next = firedDueAt.AddDate(0, 0, 7*interval*steps)
		case RecurrenceMonthly:
			next = addMonthsClamped(firedDueAt, interval*steps)
		}
		if next.After(now) {
			return next
		}
		steps++
	}
}

// addMonthsClamped adds months without the normalization rollover of
// time.AddDate (Jan 31 + 1 month is Feb 28/29, not Mar 2/3).
func addMonthsClamped(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	targetMonth := time.Month(int(month) + months)

	firstOfTarget := time.Date(year, targetMonth, 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	if last := lastDayOfMonth(firstOfTarget); day > last {
		day = last
	}

	return time.Date(firstOfTarget.Year(), firstOfTarget.Month(), day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func lastDayOfMonth(t time.Time) int {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, t.Location()).Day()
}

// ScheduledJob is a future-dated or recurring delivery owned by the scheduler.
//
// A recurring job, once fired, is cloned forward to the next due time and the
// fired instance transitions to COMPLETED; recurrence state lives on the job.
type ScheduledJob struct {
	ID           string     `gorm:"type:uuid;primaryKey"`
	Recipient    string     `gorm:"type:varchar(20);not null"`
	Body         string     `gorm:"type:text;not null"`
	ProviderHint string     `gorm:"type:varchar(50)"`
	DueAt        time.Time  `gorm:"type:timestamptz;not null"`
	Recurrence   Recurrence `gorm:"embedded;embeddedPrefix:recurrence_"`
	Status       JobStatus  `gorm:"type:varchar(20);not null"`
	MessageID    *string    `gorm:"type:uuid"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (j *ScheduledJob) Validate() error {
	if strings.TrimSpace(j.Recipient) == "" {
		return fmt.Errorf("%w: recipient is required", ErrValidation)
	}
	if !ValidRecipient(j.Recipient) {
		return fmt.Errorf("%w: recipient %q is not an E.164 phone number", ErrValidation, j.Recipient)
	}
	if j.Body == "" {
		return fmt.Errorf("%w: body is required", ErrValidation)
	}
	if bodyLen := len([]rune(j.Body)); bodyLen > MaxMessageContent {
		return fmt.Errorf("%w: body exceeds %d characters (got %d)", ErrValidation, MaxMessageContent, bodyLen)
	}
	if j.DueAt.IsZero() {
		return fmt.Errorf("%w: due time is required", ErrValidation)
	}
	if err := j.Recurrence.Validate(); err != nil {
		return err
	}
	if !j.Status.IsValid() {
		return fmt.Errorf("%w: invalid job status %q", ErrValidation, j.Status)
	}
	return nil
}

// MaterializeMessage builds the pending message for one firing of the job.
func (j *ScheduledJob) MaterializeMessage(id, correlationID string, now time.Time) *Message {
	jobID := j.ID
	return &Message{
		ID:            id,
		CorrelationID: correlationID,
		JobID:         &jobID,
		Recipient:     j.Recipient,
		Body:          j.Body,
		ProviderHint:  j.ProviderHint,
		Status:        StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}
