// Package notify bridges intent execution to the backend over an asynchronous queue:
// intents and cancels come in, lifecycle events and confirmations go out.
package notify

import (
	"encoding/json"
	"time"

	"github.com/zetaflow/intentd/pkg/orchestrator"
)

// EventType is the lifecycle stage reported for an intent
type EventType string

const (
	EventPending   EventType = "pending"
	EventSuccess   EventType = "success"
	EventError     EventType = "error"
	EventCancelled EventType = "cancelled"
)

// Terminal reports whether the event ends an intent's lifecycle
func (t EventType) Terminal() bool {
	return t == EventSuccess || t == EventError || t == EventCancelled
}

// Event is published on the confirmation queue. UserID, Confirmed and TxHash form the
// confirmation the backend waits for; TxHash is null when nothing was submitted.
type Event struct {
	Type          EventType `json:"type"`
	UserID        string    `json:"user_id"`
	TransactionID string    `json:"transaction_id"`
	Confirmed     bool      `json:"confirmed"`
	TxHash        *string   `json:"tx_hash"`
	ExplorerURL   string    `json:"explorer_url,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	ErrorKind     string    `json:"error_kind,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// Inbound message types
const (
	MessageIntent = "intent"
	MessageCancel = "cancel"
)

// Message is the inbound envelope
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Cancel asks the session of UserID to stop the intent TransactionID
type Cancel struct {
	UserID        string `json:"user_id"`
	TransactionID string `json:"transaction_id,omitempty"`
}

// IntentMessage builds the inbound envelope for intent, used by producers and tests
func IntentMessage(intent orchestrator.Intent) ([]byte, error) {
	data, err := json.Marshal(intent)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Message{Type: MessageIntent, Data: data})
}

// CancelMessage builds the inbound envelope for a cancel
func CancelMessage(cancel Cancel) ([]byte, error) {
	data, err := json.Marshal(cancel)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Message{Type: MessageCancel, Data: data})
}
