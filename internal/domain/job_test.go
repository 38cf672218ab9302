package domain

import (
	"errors"
	"testing"
	"time"
)

func TestRecurrenceValidate(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name       string
		recurrence Recurrence
		wantErr    bool
	}{
		{name: "none", recurrence: Recurrence{Kind: RecurrenceNone}},
		{name: "daily", recurrence: Recurrence{Kind: RecurrenceDaily, Interval: 1}},
		{name: "every third week", recurrence: Recurrence{Kind: RecurrenceWeekly, Interval: 3}},
		{name: "invalid kind", recurrence: Recurrence{Kind: "HOURLY", Interval: 1}, wantErr: true},
		{name: "zero interval", recurrence: Recurrence{Kind: RecurrenceDaily, Interval: 0}, wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			err := tc.recurrence.Validate()
			if tc.wantErr {
				if !errors.Is(err, ErrValidation) {
					t.Fatalf("Validate() error = %v, want ErrValidation", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate() error = %v", err)
			}
		})
	}
}

func TestRecurrenceNextAfter(t *testing.T) {
	t.Parallel()

	due := time.Date(2026, time.March, 10, 9, 30, 0, 0, time.UTC)

	testCases := []struct {
		name       string
		recurrence Recurrence
		firedDueAt time.Time
		now        time.Time
		want       time.Time
	}{
		{
			name:       "daily anchored on due time",
			recurrence: Recurrence{Kind: RecurrenceDaily, Interval: 1},
			firedDueAt: due,
			now:        due.Add(5 * time.Minute),
			want:       due.AddDate(0, 0, 1),
		},
		{
			name:       "daily fired late still anchors on due time",
			recurrence: Recurrence{Kind: RecurrenceDaily, Interval: 1},
			firedDueAt: due,
			now:        due.Add(3 * time.Hour),
			want:       due.AddDate(0, 0, 1),
		},
		{
			name:       "daily missed several occurrences advances past now",
			recurrence: Recurrence{Kind: RecurrenceDaily, Interval: 1},
			firedDueAt: due,
			now:        due.AddDate(0, 0, 4).Add(time.Hour),
			want:       due.AddDate(0, 0, 5),
		},
		{
			name:       "weekly with interval",
			recurrence: Recurrence{Kind: RecurrenceWeekly, Interval: 2},
			firedDueAt: due,
			now:        due.Add(time.Minute),
			want:       due.AddDate(0, 0, 14),
		},
		{
			name:       "monthly clamps january 31 to february end",
			recurrence: Recurrence{Kind: RecurrenceMonthly, Interval: 1},
			firedDueAt: time.Date(2026, time.January, 31, 8, 0, 0, 0, time.UTC),
			now:        time.Date(2026, time.January, 31, 8, 1, 0, 0, time.UTC),
			want:       time.Date(2026, time.February, 28, 8, 0, 0, 0, time.UTC),
		},
		{
			name:       "monthly clamp in leap year",
			recurrence: Recurrence{Kind: RecurrenceMonthly, Interval: 1},
			firedDueAt: time.Date(2024, time.January, 31, 8, 0, 0, 0, time.UTC),
			now:        time.Date(2024, time.January, 31, 8, 1, 0, 0, time.UTC),
			want:       time.Date(2024, time.February, 29, 8, 0, 0, 0, time.UTC),
		},
		{
			name:       "monthly across year boundary",
			recurrence: Recurrence{Kind: RecurrenceMonthly, Interval: 2},
			firedDueAt: time.Date(2026, time.November, 30, 8, 0, 0, 0, time.UTC),
			now:        time.Date(2026, time.November, 30, 9, 0, 0, 0, time.UTC),
			want:       time.Date(2027, time.January, 30, 8, 0, 0, 0, time.UTC),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := tc.recurrence.NextAfter(tc.firedDueAt, tc.now)
			if !got.Equal(tc.want) {
				t.Fatalf("NextAfter() = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestRecurrenceNextAfterNonRecurring(t *testing.T) {
	t.Parallel()

	next := Recurrence{Kind: RecurrenceNone}.NextAfter(time.Now(), time.Now())
	if !next.IsZero() {
		t.Fatalf("NextAfter() = %s, want zero time", next)
	}
}

func TestScheduledJobValidate(t *testing.T) {
	t.Parallel()

	valid := ScheduledJob{
		Recipient:  "+15551234567",
		Body:       "Reminder",
		DueAt:      time.Date(2026, time.June, 1, 12, 0, 0, 0, time.UTC),
		Recurrence: Recurrence{Kind: RecurrenceNone},
		Status:     JobStatusScheduled,
	}

	testCases := []struct {
		name    string
		mutate  func(j *ScheduledJob)
		wantErr bool
	}{
		{name: "valid", mutate: func(j *ScheduledJob) {}},
		{name: "bad recipient", mutate: func(j *ScheduledJob) { j.Recipient = "555-1234" }, wantErr: true},
		{name: "missing body", mutate: func(j *ScheduledJob) { j.Body = "" }, wantErr: true},
		{name: "zero due time", mutate: func(j *ScheduledJob) { j.DueAt = time.Time{} }, wantErr: true},
		{name: "bad recurrence interval", mutate: func(j *ScheduledJob) {
			j.Recurrence = Recurrence{Kind: RecurrenceMonthly, Interval: -1}
		}, wantErr: true},
		{name: "invalid status", mutate: func(j *ScheduledJob) { j.Status = "PAUSED" }, wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			j := valid
			tc.mutate(&j)

			err := j.Validate()
			if tc.wantErr {
				if !errors.Is(err, ErrValidation) {
					t.Fatalf("Validate() error = %v, want ErrValidation", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate() error = %v", err)
			}
		})
	}
}

func TestScheduledJobMaterializeMessage(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_750_000_000, 0).UTC()
	job := ScheduledJob{
		ID:           "job-1",
		Recipient:    "+15551234567",
		Body:         "Reminder",
		ProviderHint: "twilio",
		Status:       JobStatusFiring,
	}

	msg := job.MaterializeMessage("msg-1", "corr-1", now)

	if msg.Status != StatusPending {
		t.Fatalf("status = %s, want PENDING", msg.Status)
	}
	if msg.JobID == nil || *msg.JobID != "job-1" {
		t.Fatalf("jobID = %v, want job-1", msg.JobID)
	}
	if msg.Recipient != job.Recipient || msg.Body != job.Body {
		t.Fatal("message should carry the job template")
	}
	if msg.ProviderHint != "twilio" {
		t.Fatalf("providerHint = %q, want twilio", msg.ProviderHint)
	}
	if err := msg.Validate(); err != nil {
		t.Fatalf("materialized message should be valid: %v", err)
	}
}
