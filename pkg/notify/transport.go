package notify

import (
	"context"
	"errors"
	"sync"
)

// Handler processes one raw message. Returning an error asks the transport to redeliver it.
type Handler func(ctx context.Context, payload []byte) error

// Transport moves raw messages between named queues
type Transport interface {
	Publish(ctx context.Context, queue string, payload []byte) error
	// Consume blocks delivering messages of queue to handler until ctx is done or the transport fails
	Consume(ctx context.Context, queue string, handler Handler) error
	Close() error
}

// ErrClosed is returned by a closed transport
var ErrClosed = errors.New("transport closed")

// MemoryTransport keeps one buffered channel per queue, for tests and single-process runs.
// Queue channels are never closed; Close signals through done.
type MemoryTransport struct {
	mu     sync.Mutex
	size   int
	queues map[string]chan []byte
	done   chan struct{}
	closed bool
}

// NewMemoryTransport creates a transport whose queues buffer size messages
func NewMemoryTransport(size int) *MemoryTransport {
	if size <= 0 {
		size = 64
	}
	return &MemoryTransport{size: size, queues: make(map[string]chan []byte), done: make(chan struct{})}
}

func (t *MemoryTransport) queue(name string) (chan []byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, ErrClosed
	}
	ch, ok := t.queues[name]
	if !ok {
		ch = make(chan []byte, t.size)
		t.queues[name] = ch
	}
	return ch, nil
}

func (t *MemoryTransport) Publish(ctx context.Context, queue string, payload []byte) error {
	ch, err := t.queue(queue)
	if err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.done:
		return ErrClosed
	case ch <- append([]byte(nil), payload...):
		return nil
	}
}

func (t *MemoryTransport) Consume(ctx context.Context, queue string, handler Handler) error {
	ch, err := t.queue(queue)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.done:
			return ErrClosed
		case payload := <-ch:
			if err := handler(ctx, payload); err != nil {
				// redeliver without blocking the consumer on a full buffer
				select {
				case ch <- payload:
				default:
				}
			}
		}
	}
}

// Receive pops one message from queue, waiting until ctx is done. Used by tests and the CLI.
func (t *MemoryTransport) Receive(ctx context.Context, queue string) ([]byte, error) {
	ch, err := t.queue(queue)
	if err != nil {
		return nil, err
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.done:
		return nil, ErrClosed
	case payload := <-ch:
		return payload, nil
	}
}

func (t *MemoryTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.closed = true
		close(t.done)
	}
	return nil
}
