package domain

import (
	"errors"
	"strings"
	"testing"
)

func TestParseStatusFromString(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		input   string
		want    Status
		wantErr bool
	}{
		{input: "pending", want: StatusPending},
		{input: " SENT ", want: StatusSent},
		{input: "failed", want: StatusFailed},
		{input: "rate_limited", want: StatusRateLimited},
		{input: "queued", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			t.Parallel()

			got, err := ParseStatusFromString(tc.input)
			if tc.wantErr {
				if !errors.Is(err, ErrValidation) {
					t.Fatalf("ParseStatusFromString() error = %v, want ErrValidation", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseStatusFromString() error = %v", err)
			}
			if got != tc.want {
				t.Fatalf("ParseStatusFromString() = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestStatusIsTerminal(t *testing.T) {
	t.Parallel()

	if StatusPending.IsTerminal() {
		t.Fatal("PENDING should not be terminal")
	}
	for _, s := range []Status{StatusSent, StatusFailed, StatusRateLimited} {
		if !s.IsTerminal() {
			t.Fatalf("%s should be terminal", s)
		}
	}
}

func TestMessageValidate(t *testing.T) {
	t.Parallel()

	valid := Message{
		Recipient: "+15551234567",
		Body:      "Reminder",
		Status:    StatusPending,
	}

	testCases := []struct {
		name    string
		mutate  func(m *Message)
		wantErr bool
	}{
		{name: "valid", mutate: func(m *Message) {}},
		{name: "missing recipient", mutate: func(m *Message) { m.Recipient = "" }, wantErr: true},
		{name: "recipient without plus", mutate: func(m *Message) { m.Recipient = "15551234567" }, wantErr: true},
		{name: "recipient with letters", mutate: func(m *Message) { m.Recipient = "+1555CALLNOW" }, wantErr: true},
		{name: "recipient too long", mutate: func(m *Message) { m.Recipient = "+123456789012345678" }, wantErr: true},
		{name: "missing body", mutate: func(m *Message) { m.Body = "" }, wantErr: true},
		{name: "body too long", mutate: func(m *Message) { m.Body = strings.Repeat("x", MaxMessageContent+1) }, wantErr: true},
		{name: "body at limit", mutate: func(m *Message) { m.Body = strings.Repeat("x", MaxMessageContent) }},
		{name: "invalid status", mutate: func(m *Message) { m.Status = "QUEUED" }, wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			m := valid
			tc.mutate(&m)

			err := m.Validate()
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
