package circuit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b := New(Config{FailureThreshold: 2, SuccessThreshold: 1, Timeout: time.Minute})

	require.True(t, b.Allow())
	b.Record(false)
	assert.Equal(t, Closed, b.GetState())

	require.True(t, b.Allow())
	b.Record(false)
	assert.Equal(t, Open, b.GetState())
	assert.False(t, b.Allow())
}

func TestBreaker_HalfOpenAfterTimeout(t *testing.T) {
	b := New(Config{FailureThreshold: 1, SuccessThreshold: 1, Timeout: 10 * time.Millisecond})

	b.Record(false)
	require.Equal(t, Open, b.GetState())
	require.False(t, b.Allow())

	time.Sleep(15 * time.Millisecond)
	assert.True(t, b.Allow())
	assert.Equal(t, HalfOpen, b.GetState())
}

func TestBreaker_ClosesAfterSuccessThreshold(t *testing.T) {
	b := New(Config{FailureThreshold: 1, SuccessThreshold: 2, Timeout: time.Millisecond})

	b.Record(false)
	time.Sleep(2 * time.Millisecond)
	require.True(t, b.Allow())

	b.Record(true)
	assert.Equal(t, HalfOpen, b.GetState())

	b.Record(true)
	assert.Equal(t, Closed, b.GetState())
}

func TestBreaker_FailureInHalfOpenReopens(t *testing.T) {
	b := New(Config{FailureThreshold: 1, SuccessThreshold: 2, Timeout: time.Millisecond})

	b.Record(false)
	time.Sleep(2 * time.Millisecond)
	require.True(t, b.Allow())

	b.Record(false)
	assert.Equal(t, Open, b.GetState())
}

func TestBreaker_Reset(t *testing.T) {
	b := New(Config{FailureThreshold: 1, SuccessThreshold: 1, Timeout: time.Minute})

	b.Record(false)
	require.Equal(t, Open, b.GetState())

	b.Reset()
	assert.Equal(t, Closed, b.GetState())
	assert.True(t, b.Allow())
}

func TestError_Message(t *testing.T) {
	err := &Error{State: Open}
	assert.Contains(t, err.Error(), "OPEN")
}
