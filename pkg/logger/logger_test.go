package logger

import (
	"bytes"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStdLogger(t *testing.T) {
	t.Run("filters below level", func(t *testing.T) {
		var buf bytes.Buffer
		l := NewStdLogger(false, NoticeLevel).WithOutput(log.New(&buf, "", 0))

		l.Debug("debug %d", 1)
		l.Info("info %d", 2)
		l.Notice("notice %d", 3)
		l.Error("error %d", 4)

		assert.Equal(t, "[NOTICE] notice 3\n[ERROR]  error 4\n", buf.String())
	})

	t.Run("chain prefix", func(t *testing.T) {
		var buf bytes.Buffer
		l := NewStdLogger(false, DebugLevel).WithOutput(log.New(&buf, "", 0))

		l.InfoWithChain(7001, "wrapped %s", "0.5")
		l.ErrorWithChain(97, "send failed")
		l.DebugWithChain(12345, "unknown chain")

		assert.Equal(t, "[INFO]   [ATHENS] wrapped 0.5\n[ERROR]  [BSC-T]  send failed\n[DEBUG]  unknown chain\n", buf.String())
	})
}

func TestParseLevel(t *testing.T) {
	testCases := map[string]Level{
		"debug":  DebugLevel,
		"INFO":   InfoLevel,
		"":       InfoLevel,
		"notice": NoticeLevel,
		"error":  ErrorLevel,
	}
	for input, expected := range testCases {
		level, err := ParseLevel(input)
		require.NoError(t, err)
		assert.Equal(t, expected, level)
	}

	_, err := ParseLevel("verbose")
	assert.Error(t, err)
}
