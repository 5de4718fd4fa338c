package execerr

import (
	"bytes"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// RevertKind classifies contract revert payloads.
type RevertKind string

const (
	RevertInvalidArgument       RevertKind = "invalid-argument"
	RevertInsufficientBalance   RevertKind = "insufficient-balance"
	RevertInsufficientAllowance RevertKind = "insufficient-allowance"
	RevertUnknown               RevertKind = "unknown-revert"
)

// selector -> kind. Error(string) is the generic require() revert.
var revertSelectors = map[string]RevertKind{
	"08c379a0": RevertInvalidArgument,
	"11c37937": RevertInsufficientBalance,
	"fe382aa7": RevertInsufficientBalance,
	"8c5c5360": RevertInsufficientAllowance,
}

// DecodeRevert maps the leading selector of a revert payload to a RevertKind.
func DecodeRevert(data []byte) RevertKind {
	if len(data) < 4 {
		return RevertUnknown
	}
	if kind, ok := revertSelectors[hex.EncodeToString(data[:4])]; ok {
		return kind
	}
	return RevertUnknown
}

// RevertReason returns the Error(string) reason when the payload carries one.
func RevertReason(data []byte) string {
	if len(data) < 4 || !bytes.Equal(data[:4], []byte{0x08, 0xc3, 0x79, 0xa0}) {
		return ""
	}
	reason, err := abi.UnpackRevert(data)
	if err != nil {
		return ""
	}
	return reason
}

// RevertData extracts revert bytes from a provider error, if any.
func RevertData(err error) ([]byte, bool) {
	var dataErr rpc.DataError
	if !errors.As(err, &dataErr) {
		return nil, false
	}
	switch v := dataErr.ErrorData().(type) {
	case string:
		raw, decodeErr := hexutil.Decode(v)
		if decodeErr != nil || len(raw) == 0 {
			return nil, false
		}
		return raw, true
	case []byte:
		if len(v) == 0 {
			return nil, false
		}
		return v, true
	}
	return nil, false
}

// FromRevert builds an ExecutionReverted error from a provider error carrying revert data.
// ok is false when err has no revert payload.
func FromRevert(err error) (*Error, bool) {
	data, ok := RevertData(err)
	if !ok {
		return nil, false
	}
	kind := DecodeRevert(data)
	reason := RevertReason(data)
	if reason == "" {
		reason = revertMessage(kind, err)
	}
	return Reverted(kind, reason, err), true
}

func revertMessage(kind RevertKind, err error) string {
	switch kind {
	case RevertInsufficientBalance:
		return "insufficient token balance"
	case RevertInsufficientAllowance:
		return "insufficient allowance, approve first"
	case RevertInvalidArgument:
		return "invalid argument"
	}
	msg := err.Error()
	if idx := strings.Index(msg, "execution reverted"); idx >= 0 {
		return strings.TrimSpace(msg[idx:])
	}
	return msg
}
