package orchestrator

import (
	"sync"

	"github.com/zetaflow/intentd/pkg/execerr"
	"github.com/zetaflow/intentd/pkg/metrics"
)

// ExecutionState is the lifecycle of the intent a session is running
type ExecutionState string

const (
	StateIdle          ExecutionState = "idle"
	StateWaitingWallet ExecutionState = "waiting-wallet"
	StateSuccess       ExecutionState = "success"
	StateError         ExecutionState = "error"
	StateCancelled     ExecutionState = "cancelled"
)

// ErrBusy is returned by Begin while another intent is waiting for the wallet
var ErrBusy = execerr.New(execerr.KindPreconditionFailed, "another intent is waiting for the wallet")

// Session gates execution for one account: at most one intent may be waiting for the wallet.
type Session struct {
	mu        sync.Mutex
	account   string
	state     ExecutionState
	intentID  string
	cancelled bool
	submitted bool
}

// NewSession creates an idle session for account
func NewSession(account string) *Session {
	return &Session{account: account, state: StateIdle}
}

// Account returns the account the session belongs to
func (s *Session) Account() string {
	return s.account
}

// Begin moves the session to waiting-wallet for intentID. It has no side effect when busy.
func (s *Session) Begin(intentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateWaitingWallet {
		return ErrBusy
	}
	s.state = StateWaitingWallet
	s.intentID = intentID
	s.cancelled = false
	s.submitted = false
	metrics.ActiveSessions.Inc()
	return nil
}

// Finish records the terminal state of the running intent
func (s *Session) Finish(state ExecutionState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateWaitingWallet {
		metrics.ActiveSessions.Dec()
	}
	s.state = state
}

// Cancel asks the running intent to stop. It reports whether a transaction was already
// submitted, in which case that transaction still proceeds on-chain. Without a running
// intent Cancel does nothing and returns false.
func (s *Session) Cancel() (afterSubmit bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateWaitingWallet {
		return false
	}
	s.cancelled = true
	return s.submitted
}

// State returns the current execution state
func (s *Session) State() ExecutionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IntentID returns the id of the intent most recently begun
func (s *Session) IntentID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.intentID
}

func (s *Session) cancelRequested() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

// beginSubmit flags a signing request as in flight and returns the previous flag
func (s *Session) beginSubmit() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.submitted
	s.submitted = true
	return prev
}

func (s *Session) clearSubmitted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitted = false
}

func (s *Session) wasSubmitted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submitted
}
