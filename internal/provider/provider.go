package provider

import "context"

// Provider is the outbound SMS delivery port. Expected failure modes come
// back as a classified *Error, never a panic; only unrecoverable setup
// problems fail an adapter's constructor.
type Provider interface {
	// Name is the stable identifier used in provider order and quota config.
	Name() string
	// Send delivers one message. It may block on network I/O; the caller
	// bounds it through ctx.
	Send(ctx context.Context, recipient, body string) (*DeliveryOutcome, error)
}

// DeliveryOutcome stores provider call metadata for audit and persistence.
type DeliveryOutcome struct {
	StatusCode int
	Body       string
	MessageID  string
}
