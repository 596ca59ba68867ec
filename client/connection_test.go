package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryPolicyDelay(t *testing.T) {
	policy := RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
	}

	t.Run("doubles per attempt", func(t *testing.T) {
		assert.Equal(t, 1*time.Second, policy.Delay(0))
		assert.Equal(t, 2*time.Second, policy.Delay(1))
		assert.Equal(t, 4*time.Second, policy.Delay(2))
		assert.Equal(t, 8*time.Second, policy.Delay(3))
		assert.Equal(t, 16*time.Second, policy.Delay(4))
	})

	t.Run("caps at max delay", func(t *testing.T) {
		assert.Equal(t, 30*time.Second, policy.Delay(5))
		assert.Equal(t, 30*time.Second, policy.Delay(20))
	})

	t.Run("base above max stays capped", func(t *testing.T) {
		tight := RetryPolicy{BaseDelay: time.Minute, MaxDelay: 10 * time.Second}
		assert.Equal(t, 10*time.Second, tight.Delay(0))
	})
}

func TestStateTracker(t *testing.T) {
	t.Run("one notification per transition", func(t *testing.T) {
		var seen []ConnectionState
		tracker := newStateTracker(func(state ConnectionState) {
			seen = append(seen, state)
		})

		tracker.transition(StateConnecting)
		tracker.transition(StateConnecting) // repeat, suppressed
		tracker.transition(StateConnected)
		tracker.transition(StateStreaming)
		tracker.transition(StateStreaming) // repeat, suppressed
		tracker.transition(StateDisconnected)

		assert.Equal(t, []ConnectionState{
			StateConnecting, StateConnected, StateStreaming, StateDisconnected,
		}, seen)
	})

	t.Run("nil callback is safe", func(t *testing.T) {
		tracker := newStateTracker(nil)
		tracker.transition(StateConnecting)
		assert.Equal(t, StateConnecting, tracker.current)
	})
}
