package queue

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	dlxExchangeName    = "enroller.dlx"
	defaultDialTimeout = 15 * time.Second
	reconnectBackoff   = time.Second
	maxBackoff         = 30 * time.Second
)

// RabbitMQOptions tunes the broker topology.
type RabbitMQOptions struct {
	// TriggerTTL expires batch triggers nobody consumed in time. Zero keeps
	// them until a worker picks them up.
	TriggerTTL  time.Duration
	DialTimeout time.Duration
}

// RabbitMQ owns one broker connection shared by the trigger publisher and
// consumer. Topology is declared once per connection.
type RabbitMQ struct {
	url  string
	opts RabbitMQOptions

	mu         sync.Mutex
	conn       *amqp.Connection
	declaredOn *amqp.Connection
}

func NewRabbitMQ(ctx context.Context, url string, opts RabbitMQOptions) (*RabbitMQ, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("rabbitmq url is required")
	}
	if opts.TriggerTTL < 0 {
		return nil, fmt.Errorf("trigger ttl must be >= 0")
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = defaultDialTimeout
	}

	r := &RabbitMQ{url: url, opts: opts}

	dialCtx, cancel := context.WithTimeout(ctx, opts.DialTimeout)
	defer cancel()

	if _, err := r.connection(dialCtx); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *RabbitMQ) Close() error {
	r.mu.Lock()
	conn := r.conn
	r.conn = nil
	r.declaredOn = nil
	r.mu.Unlock()

	if conn == nil || conn.IsClosed() {
		return nil
	}
	return conn.Close()
}

// channel opens a channel on a live connection, redialing once when the
// current connection turns out to be dead.
func (r *RabbitMQ) channel(ctx context.Context) (*amqp.Channel, error) {
	conn, err := r.connection(ctx)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		r.forget(conn)
		if conn, err = r.connection(ctx); err != nil {
			return nil, err
		}
		if ch, err = conn.Channel(); err != nil {
			return nil, fmt.Errorf("failed to open rabbitmq channel after reconnect: %w", err)
		}
	}

	if err := r.declareOnce(conn, ch); err != nil {
		_ = ch.Close()
		return nil, err
	}
	return ch, nil
}

func (r *RabbitMQ) connection(ctx context.Context) (*amqp.Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn != nil && !r.conn.IsClosed() {
		return r.conn, nil
	}

	wait := reconnectBackoff
	for {
		conn, err := amqp.Dial(r.url)
		if err == nil {
			r.conn = conn
			return conn, nil
		}

		if wait, err = waitBackoff(ctx, wait); err != nil {
			return nil, fmt.Errorf("rabbitmq connect canceled: %w", err)
		}
	}
}

func (r *RabbitMQ) forget(conn *amqp.Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn == conn {
		r.conn = nil
	}
	_ = conn.Close()
}

func (r *RabbitMQ) declareOnce(conn *amqp.Connection, ch *amqp.Channel) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.declaredOn == conn {
		return nil
	}
	if err := declareTopology(ch, r.opts.TriggerTTL); err != nil {
		return err
	}
	r.declaredOn = conn
	return nil
}

// waitBackoff sleeps for wait and returns the next, doubled, delay.
func waitBackoff(ctx context.Context, wait time.Duration) (time.Duration, error) {
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return wait, ctx.Err()
	case <-timer.C:
	}
	return min(wait*2, maxBackoff), nil
}

func workQueueArgs(queueName string, ttl time.Duration) amqp.Table {
	args := amqp.Table{
		"x-dead-letter-exchange":    dlxExchangeName,
		"x-dead-letter-routing-key": queueName,
	}
	if ttl > 0 {
		args["x-message-ttl"] = ttl.Milliseconds()
	}
	return args
}

func declareTopology(ch *amqp.Channel, ttl time.Duration) error {
	if err := ch.ExchangeDeclare(dlxExchangeName, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare dlx exchange: %w", err)
	}

	for _, queueName := range WorkQueueNames() {
		dlqName := DLQName(queueName)
		if _, err := ch.QueueDeclare(dlqName, true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare dlq %q: %w", dlqName, err)
		}
		if err := ch.QueueBind(dlqName, queueName, dlxExchangeName, false, nil); err != nil {
			return fmt.Errorf("failed to bind dlq %q: %w", dlqName, err)
		}
		if _, err := ch.QueueDeclare(queueName, true, false, false, false, workQueueArgs(queueName, ttl)); err != nil {
			return fmt.Errorf("failed to declare queue %q: %w", queueName, err)
		}
	}
	return nil
}
