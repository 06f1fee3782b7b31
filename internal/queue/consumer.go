package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

var _ Consumer = (*RabbitMQConsumer)(nil)

type RabbitMQConsumer struct {
	client   *RabbitMQ
	prefetch int
	logger   *zap.Logger
}

func NewRabbitMQConsumer(client *RabbitMQ, prefetch int, logger *zap.Logger) *RabbitMQConsumer {
	if prefetch < 1 {
		prefetch = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RabbitMQConsumer{
		client:   client,
		prefetch: prefetch,
		logger:   logger,
	}
}

// Consume delivers batch triggers from queue to handler until ctx is done,
// resubscribing with backoff whenever the broker drops the subscription.
func (c *RabbitMQConsumer) Consume(ctx context.Context, queue string, handler MessageHandler) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("consumer is not initialized")
	}
	if queue == "" {
		return fmt.Errorf("queue name is required")
	}
	if handler == nil {
		return fmt.Errorf("message handler is required")
	}

	wait := reconnectBackoff
	for ctx.Err() == nil {
		err := c.subscribe(ctx, queue, handler)
		if ctx.Err() != nil {
			break
		}
		if err == nil {
			wait = reconnectBackoff
			continue
		}

		c.logger.Warn("batch trigger subscription lost", zap.String("queue", queue), zap.Error(err))
		if wait, err = waitBackoff(ctx, wait); err != nil {
			break
		}
	}
	return nil
}

func (c *RabbitMQConsumer) subscribe(ctx context.Context, queue string, handler MessageHandler) error {
	ch, err := c.client.channel(ctx)
	if err != nil {
		return err
	}
	defer ch.Close() //nolint:errcheck // best-effort channel close

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set qos: %w", err)
	}

	deliveries, err := ch.ConsumeWithContext(ctx, queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to consume queue %q: %w", queue, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}
			msg, err := decodeDelivery(d.Body)
			if err != nil {
				c.logger.Warn("dropping malformed batch trigger",
					zap.Error(err),
					zap.String("messageId", d.MessageId),
				)
				if err := d.Reject(false); err != nil {
					return fmt.Errorf("failed to reject malformed trigger: %w", err)
				}
				continue
			}
			if err := c.settle(d, msg, handler(ctx, msg)); err != nil {
				return err
			}
		}
	}
}

func decodeDelivery(body []byte) (BatchTriggerMessage, error) {
	var msg BatchTriggerMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return msg, fmt.Errorf("invalid json: %w", err)
	}
	if err := msg.Validate(); err != nil {
		return msg, err
	}
	return msg, nil
}

// settle acks, requeues or dead-letters a delivery based on the handler
// result. A transient failure is requeued once; a redelivered trigger that
// fails again goes to the dead-letter queue.
func (c *RabbitMQConsumer) settle(d amqp.Delivery, msg BatchTriggerMessage, handlerErr error) error {
	if handlerErr == nil {
		if err := d.Ack(false); err != nil {
			return fmt.Errorf("failed to ack batch trigger: %w", err)
		}
		return nil
	}

	if errors.Is(handlerErr, ErrPermanent) || d.Redelivered {
		c.logger.Warn("dead-lettering batch trigger",
			zap.Error(handlerErr),
			zap.String("accountId", msg.AccountID),
			zap.Bool("redelivered", d.Redelivered),
		)
		if err := d.Reject(false); err != nil {
			return fmt.Errorf("failed to dead-letter batch trigger: %w", err)
		}
		return nil
	}

	if err := d.Nack(false, true); err != nil {
		return fmt.Errorf("failed to requeue batch trigger: %w", err)
	}
	return nil
}

func (c *RabbitMQConsumer) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}
