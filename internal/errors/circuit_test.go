package errors

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCircuitBreaker_OpensAfterMaxFailures(t *testing.T) {
	// Given: a breaker that trips after 2 failures
	cb := NewCircuitBreaker("embed", WithMaxFailures(2), WithResetTimeout(time.Hour))

	// When: two failures are recorded
	assert.True(t, cb.Allow())
	cb.RecordFailure()
	assert.Equal(t, StateClosed, cb.State())
	cb.RecordFailure()

	// Then: calls fail fast
	assert.Equal(t, StateOpen, cb.State())
	assert.False(t, cb.Allow())
}

func TestCircuitBreaker_SuccessResets(t *testing.T) {
	cb := NewCircuitBreaker("embed", WithMaxFailures(2))
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()

	assert.Equal(t, StateClosed, cb.State())
	assert.True(t, cb.Allow())
}

func TestCircuitBreaker_HalfOpenAllowsSingleProbe(t *testing.T) {
	// Given: an open breaker whose cooldown has passed
	now := time.Now()
	cb := NewCircuitBreaker("embed", WithMaxFailures(1), WithResetTimeout(time.Minute))
	cb.now = func() time.Time { return now }
	cb.RecordFailure()
	assert.False(t, cb.Allow())

	now = now.Add(2 * time.Minute)
	assert.Equal(t, StateHalfOpen, cb.State())

	// When: two callers race for the probe
	first := cb.Allow()
	second := cb.Allow()

	// Then: only one gets through
	assert.True(t, first)
	assert.False(t, second)

	// And: a successful probe closes the circuit
	cb.RecordSuccess()
	assert.True(t, cb.Allow())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
	assert.Equal(t, "unknown", State(9).String())
}
