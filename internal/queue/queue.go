package queue

import "context"

// Work queue names. All dispatches share one queue; failed deliveries that
// exhaust broker redelivery land in the dead-letter queue.
const (
	DispatchQueue = "sms.dispatch"
	DispatchDLQ   = "dlq.sms.dispatch"
)

// Publisher publishes dispatch messages to a queue.
type Publisher interface {
	Publish(ctx context.Context, queue string, msg DispatchMessage) error
	Close() error
}

// MessageHandler handles a consumed queue message.
type MessageHandler func(ctx context.Context, msg DispatchMessage) error

// Consumer consumes dispatch messages from a queue.
type Consumer interface {
	Consume(ctx context.Context, queue string, handler MessageHandler) error
	Close() error
}
