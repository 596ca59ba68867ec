package client

import (
	"fmt"
	"time"

	"chatrelay/common"
)

// ConnectionState is the client connection lifecycle. Transitions are
// sequential; there is never more than one in-flight attempt.
type ConnectionState string

const (
	StateIdle         ConnectionState = "idle"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateStreaming    ConnectionState = "streaming"
	StateReconnecting ConnectionState = "reconnecting"
	StateDisconnected ConnectionState = "disconnected"
	StateFailed       ConnectionState = "failed"
)

// Client-side error codes.
const (
	CodeConnectionTimeout = "CONNECTION_TIMEOUT"
	CodeConnectionFailed  = "CONNECTION_FAILED"
	CodeParseError        = "PARSE_ERROR"
)

// RelayError is a client-side failure with a stable code. Partial holds any
// content accumulated before the failure so the caller can keep it.
type RelayError struct {
	Code    string
	Message string
	Partial string
}

func (e *RelayError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// RetryPolicy governs reconnection backoff.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func RetryPolicyFromConfig(config common.RetryConfig) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: config.MaxAttempts,
		BaseDelay:   config.BaseDelay,
		MaxDelay:    config.MaxDelay,
	}
}

// Delay returns the backoff before retry number attempt (zero-based):
// base doubled per attempt, capped at MaxDelay.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	delay := p.BaseDelay
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// stateTracker deduplicates connection status notifications: exactly one
// callback per transition.
type stateTracker struct {
	current ConnectionState
	notify  func(state ConnectionState)
}

func newStateTracker(notify func(state ConnectionState)) *stateTracker {
	return &stateTracker{current: StateIdle, notify: notify}
}

func (s *stateTracker) transition(next ConnectionState) {
	if s.current == next {
		return
	}
	s.current = next
	if s.notify != nil {
		s.notify(next)
	}
}
