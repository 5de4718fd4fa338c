package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPTransport publishes to and consumes from durable RabbitMQ queues
type AMQPTransport struct {
	conn *amqp.Connection
	ch   *amqp.Channel

	mu       sync.Mutex
	declared map[string]bool
}

// NewAMQPTransport dials url and opens a channel with a prefetch of one message
func NewAMQPTransport(url string) (*AMQPTransport, error) {
	if url == "" {
		return nil, errors.New("amqp url is required")
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open rabbitmq channel: %w", err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to set rabbitmq qos: %w", err)
	}
	return &AMQPTransport{conn: conn, ch: ch, declared: make(map[string]bool)}, nil
}

func (t *AMQPTransport) declare(queue string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.declared[queue] {
		return nil
	}
	if _, err := t.ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare rabbitmq queue %s: %w", queue, err)
	}
	t.declared[queue] = true
	return nil
}

func (t *AMQPTransport) Publish(ctx context.Context, queue string, payload []byte) error {
	if err := t.declare(queue); err != nil {
		return err
	}
	return t.ch.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         payload,
	})
}

// Consume acknowledges handled messages and requeues the ones the handler rejects
func (t *AMQPTransport) Consume(ctx context.Context, queue string, handler Handler) error {
	if err := t.declare(queue); err != nil {
		return err
	}
	msgs, err := t.ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to consume rabbitmq queue %s: %w", queue, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return ErrClosed
			}
			if err := handler(ctx, msg.Body); err != nil {
				_ = msg.Nack(false, true)
				continue
			}
			_ = msg.Ack(false)
		}
	}
}

func (t *AMQPTransport) Close() error {
	if t == nil {
		return nil
	}
	if t.ch != nil {
		_ = t.ch.Close()
	}
	if t.conn != nil {
		return t.conn.Close()
	}
	return nil
}
