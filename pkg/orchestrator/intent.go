package orchestrator

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/zetaflow/intentd/pkg/amount"
	"github.com/zetaflow/intentd/pkg/execerr"
)

// Action is the kind of value movement an intent asks for
type Action string

const (
	ActionTransfer           Action = "transfer"
	ActionCrossChainTransfer Action = "cross_chain_transfer"
	ActionStake              Action = "stake"
	ActionUnstake            Action = "unstake"
	ActionClaim              Action = "claim"
)

// Intent is a declarative value-movement request. It is passed by value and
// never modified once accepted; retrying with other parameters means a new intent.
type Intent struct {
	ID        string `json:"id,omitempty"`
	Action    Action `json:"action"`
	FromChain string `json:"fromChain,omitempty"`
	ToChain   string `json:"toChain,omitempty"`
	FromToken string `json:"fromToken,omitempty"`
	ToToken   string `json:"toToken,omitempty"`
	Amount    string `json:"amount,omitempty"`
	Recipient string `json:"recipient,omitempty"`

	// UserID and FileID are set by the notification bridge
	UserID string `json:"user_id,omitempty"`
	FileID string `json:"file_id,omitempty"`
}

// accept assigns an id to intents that arrive without one
func accept(intent Intent) Intent {
	if intent.ID == "" {
		intent.ID = uuid.NewString()
	}
	return intent
}

// normalizedAction lowercases the action and maps the aliases the backend sends
func normalizedAction(a Action) Action {
	switch s := strings.ToLower(strings.TrimSpace(string(a))); s {
	case "xfer", "cross_chain", "crosschain", "cross-chain-transfer":
		return ActionCrossChainTransfer
	default:
		return Action(s)
	}
}

// parseAmount normalizes raw and converts it to wei; zero and negatives are rejected
func parseAmount(raw string) (*big.Int, error) {
	if _, err := amount.Normalize(raw); err != nil {
		return nil, err
	}
	value, err := amount.ToWei(raw)
	if err != nil {
		return nil, err
	}
	if value.Sign() <= 0 {
		return nil, execerr.New(execerr.KindInvalidAmount, "amount %q must be greater than zero", raw)
	}
	return value, nil
}

// resolveRecipient defaults to account when raw is empty
func resolveRecipient(raw string, account common.Address) (common.Address, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return account, nil
	}
	if !common.IsHexAddress(raw) {
		return common.Address{}, execerr.New(execerr.KindInvalidRecipientAddress, "recipient %q is not a valid address", raw)
	}
	return common.HexToAddress(raw), nil
}

// isNativeToken reports whether token names the native currency (or is absent)
func isNativeToken(token string) bool {
	switch strings.ToUpper(strings.TrimSpace(token)) {
	case "", "ZETA", "NATIVE":
		return true
	}
	return false
}

// isWrappedToken reports whether token names WZETA
func isWrappedToken(token string) bool {
	return strings.EqualFold(strings.TrimSpace(token), "WZETA")
}
