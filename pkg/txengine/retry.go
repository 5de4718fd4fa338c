package txengine

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
)

// RateLimitCode is the JSON-RPC error code providers use for throttling
const RateLimitCode = -32005

const (
	DefaultMaxAttempts  = 5
	DefaultInitialDelay = 2 * time.Second
)

// Policy bounds the confirmation wait
type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration
}

// DefaultPolicy waits up to 5 times, sleeping 2s, 4s, 8s, 16s, 32s
var DefaultPolicy = Policy{MaxAttempts: DefaultMaxAttempts, InitialDelay: DefaultInitialDelay}

// RetryState is the immutable state of one confirmation wait
type RetryState struct {
	Attempt     int
	Delay       time.Duration
	MaxAttempts int
}

// NewRetryState returns the state of the first attempt
func NewRetryState(p Policy) RetryState {
	return RetryState{Attempt: 1, Delay: p.InitialDelay, MaxAttempts: p.MaxAttempts}
}

// Next returns the state of the following attempt with the delay doubled
func (s RetryState) Next() RetryState {
	return RetryState{Attempt: s.Attempt + 1, Delay: s.Delay * 2, MaxAttempts: s.MaxAttempts}
}

// Exhausted reports whether no attempt is left
func (s RetryState) Exhausted() bool {
	return s.Attempt > s.MaxAttempts
}

// Schedule lists the delays slept after each rate-limited attempt
func Schedule(p Policy) []time.Duration {
	var delays []time.Duration
	for s := NewRetryState(p); !s.Exhausted(); s = s.Next() {
		delays = append(delays, s.Delay)
	}
	return delays
}

// IsRateLimited reports whether err is provider throttling rather than a real failure
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}

	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == RateLimitCode {
		return true
	}

	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusTooManyRequests {
		return true
	}

	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "rate limit") || strings.Contains(errStr, "too many requests")
}
