package notify

import (
	"context"
	"sync"

	"github.com/zetaflow/intentd/pkg/execerr"
	"github.com/zetaflow/intentd/pkg/orchestrator"
)

// Tracker publishes exactly one terminal event for an intent
type Tracker struct {
	bridge   *Bridge
	userID   string
	intentID string

	mu       sync.Mutex
	terminal EventType
}

// Finish publishes the terminal event matching outcome and err.
// Only the first call publishes; later calls return false.
func (t *Tracker) Finish(ctx context.Context, outcome orchestrator.Outcome, err error) (bool, error) {
	event := Event{
		UserID:        t.userID,
		TransactionID: t.intentID,
		Confirmed:     outcome.Confirmed,
		ExplorerURL:   outcome.ExplorerURL,
	}
	if outcome.TxHash != "" {
		hash := outcome.TxHash
		event.TxHash = &hash
	}

	switch {
	case outcome.State == orchestrator.StateCancelled:
		event.Type = EventCancelled
		if outcome.CancelledAfterSubmit {
			event.Reason = "cancelled after submission, the transaction may still complete"
		}
	case err != nil:
		event.Type = EventError
		event.Confirmed = false
		event.Reason = err.Error()
		event.ErrorKind = string(execerr.KindOf(err))
	default:
		event.Type = EventSuccess
	}

	t.mu.Lock()
	if t.terminal != "" {
		t.mu.Unlock()
		return false, nil
	}
	t.terminal = event.Type
	t.mu.Unlock()

	return true, t.bridge.Publish(ctx, event)
}

// Terminal returns the terminal event type sent so far, or "" if none
func (t *Tracker) Terminal() EventType {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.terminal
}
