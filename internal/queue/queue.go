package queue

import (
	"context"
	"errors"
)

// Publisher publishes batch trigger messages to a queue.
type Publisher interface {
	Publish(ctx context.Context, queue string, msg BatchTriggerMessage) error
	Close() error
}

// MessageHandler handles a consumed queue message. Returning an error
// wrapping ErrPermanent dead-letters the message; any other error requeues it.
type MessageHandler func(ctx context.Context, msg BatchTriggerMessage) error

// Consumer consumes batch trigger messages from a queue.
type Consumer interface {
	Consume(ctx context.Context, queue string, handler MessageHandler) error
	Close() error
}

var ErrPermanent = errors.New("permanent message failure")

const (
	// BatchQueue carries start requests for account batches.
	BatchQueue = "enrollment.batch"

	dlqPrefix = "dlq."
)

// DLQName returns the dead-letter queue name for a work queue, e.g.
// dlq.enrollment.batch.
func DLQName(queue string) string {
	return dlqPrefix + queue
}

// WorkQueueNames returns every work queue the service declares.
func WorkQueueNames() []string {
	return []string{BatchQueue}
}
