package provider

import (
	"context"
	"testing"
)

type staticProvider struct {
	name string
}

func (p *staticProvider) Name() string { return p.name }

func (p *staticProvider) Send(ctx context.Context, recipient, body string) (*DeliveryOutcome, error) {
	return &DeliveryOutcome{StatusCode: 200}, nil
}

func newTestRegistry(t *testing.T, names ...string) *Registry {
	t.Helper()

	r := NewRegistry()
	for _, name := range names {
		if err := r.Register(&staticProvider{name: name}); err != nil {
			t.Fatalf("Register(%q) error = %v", name, err)
		}
	}
	return r
}

func TestRegistryRegisterRejectsDuplicates(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t, "twilio")
	if err := r.Register(&staticProvider{name: "Twilio"}); err == nil {
		t.Fatal("Register() should reject duplicate names")
	}
}

func TestRegistryOrderHintFirst(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t, "twilio", "textbelt")

	order := r.Order("textbelt", []string{"twilio", "textbelt"})
	if len(order) != 2 || order[0] != "textbelt" || order[1] != "twilio" {
		t.Fatalf("Order() = %v, want [textbelt twilio]", order)
	}
}

func TestRegistryOrderSkipsUnknownAndDuplicate(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t, "twilio")

	order := r.Order("nexmo", []string{"twilio", "twilio", "textbelt"})
	if len(order) != 1 || order[0] != "twilio" {
		t.Fatalf("Order() = %v, want [twilio]", order)
	}
}

func TestRegistryQuarantineExcludesProvider(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t, "twilio", "textbelt")
	r.Quarantine("twilio")

	if r.Usable("twilio") {
		t.Fatal("quarantined provider should not be usable")
	}
	if !r.Usable("textbelt") {
		t.Fatal("other providers should remain usable")
	}

	order := r.Order("twilio", []string{"twilio", "textbelt"})
	if len(order) != 1 || order[0] != "textbelt" {
		t.Fatalf("Order() = %v, want [textbelt]", order)
	}
}

func TestRegistryOrderEmptyWhenNothingUsable(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t, "twilio")
	r.Quarantine("twilio")

	if order := r.Order("", []string{"twilio"}); len(order) != 0 {
		t.Fatalf("Order() = %v, want empty", order)
	}
}
