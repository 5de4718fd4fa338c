// Package execerr defines the error kinds surfaced by intent execution.
package execerr

import (
	"errors"
	"fmt"
)

// Kind discriminates execution failures.
type Kind string

const (
	KindInvalidAmount           Kind = "invalid_amount"
	KindAmountTooSmall          Kind = "amount_too_small"
	KindChainSwitchRejected     Kind = "chain_switch_rejected"
	KindWalletUnavailable       Kind = "wallet_unavailable"
	KindInsufficientFunds       Kind = "insufficient_funds"
	KindPreconditionFailed      Kind = "precondition_failed"
	KindTransactionFailed       Kind = "transaction_failed"
	KindExecutionReverted       Kind = "execution_reverted"
	KindUnsupportedAction       Kind = "unsupported_action"
	KindInvalidRecipientAddress Kind = "invalid_recipient_address"
)

// Error is the tagged error returned by every execution component.
type Error struct {
	Kind   Kind
	Revert RevertKind
	Reason string
	Cause  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := string(e.Kind)
	if e.Revert != "" {
		msg += " (" + string(e.Revert) + ")"
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// New creates an error of the given kind.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and reason to cause.
func Wrap(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Reason: fmt.Sprintf(format, args...), Cause: cause}
}

// Reverted builds an ExecutionReverted error for a decoded revert.
func Reverted(revert RevertKind, reason string, cause error) *Error {
	return &Error{Kind: KindExecutionReverted, Revert: revert, Reason: reason, Cause: cause}
}

// As returns the outermost *Error in the chain.
func As(err error) (*Error, bool) {
	var typed *Error
	if errors.As(err, &typed) {
		return typed, true
	}
	return nil, false
}

// KindOf returns the kind of the outermost *Error, or "" when err is untyped.
func KindOf(err error) Kind {
	if typed, ok := As(err); ok {
		return typed.Kind
	}
	return ""
}

// Is reports whether any *Error in the chain has the given kind.
func Is(err error, kind Kind) bool {
	for err != nil {
		var typed *Error
		if !errors.As(err, &typed) {
			return false
		}
		if typed.Kind == kind {
			return true
		}
		err = typed.Cause
	}
	return false
}

// RevertOf returns the revert kind carried anywhere in the chain.
func RevertOf(err error) RevertKind {
	for err != nil {
		var typed *Error
		if !errors.As(err, &typed) {
			return ""
		}
		if typed.Revert != "" {
			return typed.Revert
		}
		err = typed.Cause
	}
	return ""
}
