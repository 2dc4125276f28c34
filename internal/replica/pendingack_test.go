package replica

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPendingAckPushAndPopIfMatchesCancelsTimer(t *testing.T) {
	f := newPendingAckFIFO()
	fired := false
	f.push("payload-1", 42, time.Hour, func(string, uint64) { fired = true })

	sessionID, ok := f.popIfMatches("payload-1")
	require.True(t, ok)
	assert.EqualValues(t, 42, sessionID)
	assert.Equal(t, 0, f.len())
	assert.False(t, fired)
}

func TestPendingAckPopIfMatchesRejectsMismatch(t *testing.T) {
	f := newPendingAckFIFO()
	f.push("payload-1", 1, time.Hour, func(string, uint64) {})

	_, ok := f.popIfMatches("payload-2")
	assert.False(t, ok)
	assert.Equal(t, 1, f.len())
}

func TestPendingAckExpiresFrontAfterDeadline(t *testing.T) {
	f := newPendingAckFIFO()
	done := make(chan struct{})
	var timedOutPayload string

	f.push("payload-1", 7, 10*time.Millisecond, func(payload string, _ uint64) {
		timedOutPayload = payload
		close(done)
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timeout callback never fired")
	}
	assert.Equal(t, "payload-1", timedOutPayload)
	assert.Equal(t, 0, f.len())
}

func TestPendingAckExpiryNoOpIfAlreadyPopped(t *testing.T) {
	f := newPendingAckFIFO()
	fired := false
	f.push("payload-1", 1, 10*time.Millisecond, func(string, uint64) { fired = true })

	_, ok := f.popIfMatches("payload-1")
	require.True(t, ok)

	time.Sleep(30 * time.Millisecond)
	assert.False(t, fired)
}

func TestPendingAckFIFOOrder(t *testing.T) {
	f := newPendingAckFIFO()
	f.push("a", 1, time.Hour, func(string, uint64) {})
	f.push("b", 2, time.Hour, func(string, uint64) {})

	_, ok := f.popIfMatches("b")
	assert.False(t, ok, "b is not at the front")

	id, ok := f.popIfMatches("a")
	require.True(t, ok)
	assert.EqualValues(t, 1, id)

	id, ok = f.popIfMatches("b")
	require.True(t, ok)
	assert.EqualValues(t, 2, id)
}

func TestPendingAckDrainCancelsAllTimers(t *testing.T) {
	f := newPendingAckFIFO()
	fired := false
	f.push("a", 1, 10*time.Millisecond, func(string, uint64) { fired = true })
	f.drain()

	time.Sleep(30 * time.Millisecond)
	assert.False(t, fired)
	assert.Equal(t, 0, f.len())
}
