package p2perr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorIsMatchesBareKindSentinel(t *testing.T) {
	err := New(Banned, "node.Connect", nil)
	assert.True(t, errors.Is(err, Banned))
	assert.False(t, errors.Is(err, Timeout))
}

func TestErrorIsMatchesWrappedError(t *testing.T) {
	outer := New(Io, "wire.ReadFrame", New(Io, "inner", nil))
	assert.True(t, errors.Is(outer, Io))
}

func TestUnwrapExposesUnderlyingCause(t *testing.T) {
	cause := errors.New("boom")
	err := New(DecryptFailed, "noise.Decrypt", cause)
	assert.Equal(t, cause, errors.Unwrap(err))
}

func TestClosesConnectionPolicy(t *testing.T) {
	assert.True(t, Banned.ClosesConnection())
	assert.True(t, ProtocolViolation.ClosesConnection())
	assert.False(t, Backpressure.ClosesConnection())
}

func TestFatalPolicy(t *testing.T) {
	assert.True(t, ConfigInvalid.Fatal())
	assert.True(t, LockPoisoned.Fatal())
	assert.False(t, Timeout.Fatal())
}

func TestErrorMessageIncludesOpAndKind(t *testing.T) {
	err := New(QueueFull, "bridge.Queue.Push", nil)
	assert.Contains(t, err.Error(), "bridge.Queue.Push")
	assert.Contains(t, err.Error(), "queue_full")
}
