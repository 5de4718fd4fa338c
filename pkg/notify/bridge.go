package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/zetaflow/intentd/pkg/logger"
	"github.com/zetaflow/intentd/pkg/metrics"
	"github.com/zetaflow/intentd/pkg/orchestrator"
)

const (
	directionIn  = "in"
	directionOut = "out"
)

// Bridge is the producer/consumer pair on top of a Transport
type Bridge struct {
	transport    Transport
	intentQueue  string
	confirmQueue string
	account      string
	intents      chan orchestrator.Intent
	cancels      chan Cancel
	now          func() time.Time
	logger       logger.Logger
}

// NewBridge creates a bridge reading intentQueue and writing confirmQueue
func NewBridge(t Transport, intentQueue, confirmQueue string, log logger.Logger) *Bridge {
	return &Bridge{
		transport:    t,
		intentQueue:  intentQueue,
		confirmQueue: confirmQueue,
		intents:      make(chan orchestrator.Intent),
		cancels:      make(chan Cancel, 16),
		now:          time.Now,
		logger:       log,
	}
}

// WithAccount drops inbound intents addressed to another user
func (b *Bridge) WithAccount(account string) *Bridge {
	b.account = account
	return b
}

// Intents delivers accepted inbound intents one at a time
func (b *Bridge) Intents() <-chan orchestrator.Intent {
	return b.intents
}

// Cancels delivers inbound cancel requests
func (b *Bridge) Cancels() <-chan Cancel {
	return b.cancels
}

// Run consumes the intent queue until ctx is done
func (b *Bridge) Run(ctx context.Context) error {
	b.logger.Info("Notification bridge consuming %s", b.intentQueue)
	return b.transport.Consume(ctx, b.intentQueue, b.handle)
}

func (b *Bridge) handle(ctx context.Context, payload []byte) error {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		// malformed messages are dropped, redelivery would loop forever
		b.logger.Error("Dropping malformed bridge message: %v", err)
		return nil
	}
	metrics.BridgeEvents.WithLabelValues(directionIn, msg.Type).Inc()

	switch msg.Type {
	case MessageIntent:
		var intent orchestrator.Intent
		if err := json.Unmarshal(msg.Data, &intent); err != nil {
			b.logger.Error("Dropping malformed intent: %v", err)
			return nil
		}
		if !b.addressedToUs(intent.UserID) {
			b.logger.Debug("Ignoring intent %s for user %s", intent.ID, intent.UserID)
			return nil
		}
		select {
		case b.intents <- intent:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	case MessageCancel:
		var cancel Cancel
		if err := json.Unmarshal(msg.Data, &cancel); err != nil {
			b.logger.Error("Dropping malformed cancel: %v", err)
			return nil
		}
		if !b.addressedToUs(cancel.UserID) {
			return nil
		}
		select {
		case b.cancels <- cancel:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	b.logger.Debug("Ignoring bridge message of type %q", msg.Type)
	return nil
}

func (b *Bridge) addressedToUs(userID string) bool {
	return b.account == "" || userID == "" || strings.EqualFold(userID, b.account)
}

// Publish sends event on the confirmation queue
func (b *Bridge) Publish(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = b.now().UTC()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	if err := b.transport.Publish(ctx, b.confirmQueue, payload); err != nil {
		return err
	}
	metrics.BridgeEvents.WithLabelValues(directionOut, string(event.Type)).Inc()
	return nil
}

// Track starts the lifecycle of intent and publishes its pending event
func (b *Bridge) Track(ctx context.Context, intent orchestrator.Intent) *Tracker {
	t := &Tracker{bridge: b, userID: intent.UserID, intentID: intent.ID}
	if err := b.Publish(ctx, Event{Type: EventPending, UserID: t.userID, TransactionID: t.intentID}); err != nil {
		b.logger.Error("Failed to publish pending event for %s: %v", intent.ID, err)
	}
	return t
}
