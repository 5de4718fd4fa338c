package execerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type revertError struct {
	msg  string
	data interface{}
}

func (e revertError) Error() string          { return e.msg }
func (e revertError) ErrorCode() int         { return 3 }
func (e revertError) ErrorData() interface{} { return e.data }

func encodeErrorString(t *testing.T, reason string) []byte {
	t.Helper()
	stringType, err := abi.NewType("string", "", nil)
	require.NoError(t, err)
	packed, err := abi.Arguments{{Type: stringType}}.Pack(reason)
	require.NoError(t, err)
	return append([]byte{0x08, 0xc3, 0x79, 0xa0}, packed...)
}

func TestDecodeRevert(t *testing.T) {
	testCases := []struct {
		name     string
		data     []byte
		expected RevertKind
	}{
		{"error string", []byte{0x08, 0xc3, 0x79, 0xa0, 0x00}, RevertInvalidArgument},
		{"insufficient balance", []byte{0x11, 0xc3, 0x79, 0x37}, RevertInsufficientBalance},
		{"insufficient balance alt", []byte{0xfe, 0x38, 0x2a, 0xa7, 0x01, 0x02}, RevertInsufficientBalance},
		{"insufficient allowance", []byte{0x8c, 0x5c, 0x53, 0x60, 0xaa}, RevertInsufficientAllowance},
		{"unknown selector", []byte{0xde, 0xad, 0xbe, 0xef}, RevertUnknown},
		{"short payload", []byte{0x8c, 0x5c}, RevertUnknown},
		{"empty", nil, RevertUnknown},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, DecodeRevert(tc.data))
		})
	}
}

func TestFromRevert(t *testing.T) {
	t.Run("allowance selector is never unknown", func(t *testing.T) {
		payload := hexutil.Encode([]byte{0x8c, 0x5c, 0x53, 0x60, 0, 0, 0, 1})
		err := fmt.Errorf("send stake: %w", revertError{msg: "execution reverted", data: payload})

		typed, ok := FromRevert(err)
		require.True(t, ok)
		assert.Equal(t, KindExecutionReverted, typed.Kind)
		assert.Equal(t, RevertInsufficientAllowance, typed.Revert)
		assert.Contains(t, typed.Reason, "approve first")
	})

	t.Run("error string reason is decoded", func(t *testing.T) {
		payload := hexutil.Encode(encodeErrorString(t, "amount must be positive"))
		typed, ok := FromRevert(revertError{msg: "execution reverted", data: payload})

		require.True(t, ok)
		assert.Equal(t, RevertInvalidArgument, typed.Revert)
		assert.Equal(t, "amount must be positive", typed.Reason)
	})

	t.Run("unknown revert passes message through", func(t *testing.T) {
		typed, ok := FromRevert(revertError{msg: "rpc: execution reverted: Stake locked", data: "0xdeadbeef"})

		require.True(t, ok)
		assert.Equal(t, RevertUnknown, typed.Revert)
		assert.Equal(t, "execution reverted: Stake locked", typed.Reason)
	})

	t.Run("no revert data", func(t *testing.T) {
		_, ok := FromRevert(errors.New("connection refused"))
		assert.False(t, ok)

		_, ok = FromRevert(revertError{msg: "execution reverted", data: "0x"})
		assert.False(t, ok)
	})
}

func TestKindHelpers(t *testing.T) {
	inner := Reverted(RevertInsufficientBalance, "short", nil)
	outer := Wrap(KindPreconditionFailed, inner, "approve failed")
	wrapped := fmt.Errorf("stake: %w", outer)

	assert.Equal(t, KindPreconditionFailed, KindOf(wrapped))
	assert.True(t, Is(wrapped, KindPreconditionFailed))
	assert.True(t, Is(wrapped, KindExecutionReverted))
	assert.False(t, Is(wrapped, KindInvalidAmount))
	assert.Equal(t, RevertInsufficientBalance, RevertOf(wrapped))
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))

	assert.Equal(t, "precondition_failed: approve failed: execution_reverted (insufficient-balance): short", outer.Error())
}
