package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zetaflow/intentd/pkg/execerr"
	"github.com/zetaflow/intentd/pkg/logger"
	"github.com/zetaflow/intentd/pkg/orchestrator"
)

const (
	intentQueue  = "test:intents"
	confirmQueue = "test:confirmations"
)

func startBridge(t *testing.T, account string) (*Bridge, *MemoryTransport, context.CancelFunc) {
	transport := NewMemoryTransport(8)
	bridge := NewBridge(transport, intentQueue, confirmQueue, &logger.EmptyLogger{}).WithAccount(account)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = bridge.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return bridge, transport, cancel
}

func receiveEvent(t *testing.T, transport *MemoryTransport) Event {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	payload, err := transport.Receive(ctx, confirmQueue)
	require.NoError(t, err)

	var event Event
	require.NoError(t, json.Unmarshal(payload, &event))
	return event
}

func TestBridgeInbound(t *testing.T) {
	bridge, transport, _ := startBridge(t, "user-1")
	ctx := context.Background()

	other, err := IntentMessage(orchestrator.Intent{ID: "skip", Action: orchestrator.ActionStake, UserID: "user-2"})
	require.NoError(t, err)
	require.NoError(t, transport.Publish(ctx, intentQueue, other))
	require.NoError(t, transport.Publish(ctx, intentQueue, []byte("{not json")))

	mine, err := IntentMessage(orchestrator.Intent{ID: "take", Action: orchestrator.ActionStake, Amount: "1", UserID: "USER-1", FileID: "f"})
	require.NoError(t, err)
	require.NoError(t, transport.Publish(ctx, intentQueue, mine))

	select {
	case intent := <-bridge.Intents():
		assert.Equal(t, "take", intent.ID)
		assert.Equal(t, "f", intent.FileID)
		assert.Equal(t, orchestrator.ActionStake, intent.Action)
	case <-time.After(time.Second):
		t.Fatal("intent not delivered")
	}

	cancelMsg, err := CancelMessage(Cancel{UserID: "user-1", TransactionID: "take"})
	require.NoError(t, err)
	require.NoError(t, transport.Publish(ctx, intentQueue, cancelMsg))

	select {
	case c := <-bridge.Cancels():
		assert.Equal(t, "take", c.TransactionID)
	case <-time.After(time.Second):
		t.Fatal("cancel not delivered")
	}
}

func TestTrackerTerminalEvents(t *testing.T) {
	ctx := context.Background()
	intent := orchestrator.Intent{ID: "intent-1", UserID: "user-1"}

	t.Run("success", func(t *testing.T) {
		bridge, transport, _ := startBridge(t, "")
		tracker := bridge.Track(ctx, intent)

		pending := receiveEvent(t, transport)
		assert.Equal(t, EventPending, pending.Type)
		assert.Equal(t, "intent-1", pending.TransactionID)
		assert.Nil(t, pending.TxHash)

		sent, err := tracker.Finish(ctx, orchestrator.Outcome{State: orchestrator.StateSuccess, TxHash: "0xabc", Confirmed: true}, nil)
		require.NoError(t, err)
		assert.True(t, sent)

		event := receiveEvent(t, transport)
		assert.Equal(t, EventSuccess, event.Type)
		assert.Equal(t, "user-1", event.UserID)
		assert.True(t, event.Confirmed)
		require.NotNil(t, event.TxHash)
		assert.Equal(t, "0xabc", *event.TxHash)

		sent, err = tracker.Finish(ctx, orchestrator.Outcome{State: orchestrator.StateError}, errors.New("late"))
		require.NoError(t, err)
		assert.False(t, sent)
		assert.Equal(t, EventSuccess, tracker.Terminal())
	})

	t.Run("error carries null hash and kind", func(t *testing.T) {
		bridge, transport, _ := startBridge(t, "")
		tracker := bridge.Track(ctx, intent)
		receiveEvent(t, transport)

		_, err := tracker.Finish(ctx, orchestrator.Outcome{State: orchestrator.StateError},
			execerr.New(execerr.KindAmountTooSmall, "too small"))
		require.NoError(t, err)

		ctxTimeout, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		payload, err := transport.Receive(ctxTimeout, confirmQueue)
		require.NoError(t, err)
		assert.Contains(t, string(payload), `"tx_hash":null`)

		var event Event
		require.NoError(t, json.Unmarshal(payload, &event))
		assert.Equal(t, EventError, event.Type)
		assert.False(t, event.Confirmed)
		assert.Equal(t, "amount_too_small", event.ErrorKind)
	})

	t.Run("cancelled", func(t *testing.T) {
		bridge, transport, _ := startBridge(t, "")
		tracker := bridge.Track(ctx, intent)
		receiveEvent(t, transport)

		_, err := tracker.Finish(ctx, orchestrator.Outcome{State: orchestrator.StateCancelled, CancelledAfterSubmit: true}, nil)
		require.NoError(t, err)

		event := receiveEvent(t, transport)
		assert.Equal(t, EventCancelled, event.Type)
		assert.Contains(t, event.Reason, "may still complete")
		assert.True(t, EventCancelled.Terminal())
		assert.False(t, EventPending.Terminal())
	})
}

func TestMemoryTransportRedelivers(t *testing.T) {
	transport := NewMemoryTransport(4)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, transport.Publish(ctx, "q", []byte("a")))

	var seen []string
	err := transport.Consume(ctx, "q", func(_ context.Context, payload []byte) error {
		seen = append(seen, string(payload))
		if len(seen) == 1 {
			return errors.New("try again")
		}
		cancel()
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"a", "a"}, seen)

	require.NoError(t, transport.Close())
	assert.ErrorIs(t, transport.Publish(context.Background(), "q", nil), ErrClosed)
}

func TestMemoryTransportCloseUnblocksPublish(t *testing.T) {
	transport := NewMemoryTransport(1)
	ctx := context.Background()
	require.NoError(t, transport.Publish(ctx, "q", []byte("a")))

	blocked := make(chan error, 1)
	go func() {
		blocked <- transport.Publish(ctx, "q", []byte("b"))
	}()
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, transport.Close())

	select {
	case err := <-blocked:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("publish still blocked after close")
	}

	_, err := transport.Receive(ctx, "q")
	assert.ErrorIs(t, err, ErrClosed)
	err = transport.Consume(ctx, "q", func(context.Context, []byte) error { return nil })
	assert.ErrorIs(t, err, ErrClosed)
	assert.NoError(t, transport.Close())
}

func TestMemoryTransportCloseStopsConsumer(t *testing.T) {
	transport := NewMemoryTransport(1)
	consumed := make(chan error, 1)
	go func() {
		consumed <- transport.Consume(context.Background(), "q", func(context.Context, []byte) error {
			return errors.New("redeliver")
		})
	}()
	require.NoError(t, transport.Publish(context.Background(), "q", []byte("a")))
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, transport.Close())

	select {
	case err := <-consumed:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("consumer still running after close")
	}
}

func TestBridgePublishCancelledContext(t *testing.T) {
	transport := NewMemoryTransport(1)
	bridge := NewBridge(transport, intentQueue, confirmQueue, &logger.EmptyLogger{})
	require.NoError(t, bridge.Publish(context.Background(), Event{Type: EventPending, TransactionID: "a"}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := bridge.Publish(ctx, Event{Type: EventSuccess, TransactionID: "a"})
	assert.ErrorIs(t, err, context.Canceled)

	require.NoError(t, transport.Close())
	err = bridge.Publish(context.Background(), Event{Type: EventSuccess, TransactionID: "a"})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestTransportConstructors(t *testing.T) {
	_, err := NewRedisTransport(context.Background(), RedisConfig{})
	assert.Error(t, err)

	_, err = NewAMQPTransport("")
	assert.Error(t, err)
}
