package session

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSink struct {
	mu       sync.Mutex
	received []string
	failing  bool
}

func (f *fakeSink) Send(text string) error {
	if f.failing {
		return fmt.Errorf("sink closed")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.received = append(f.received, text)
	return nil
}

func TestRegisterReturnsDistinctIDs(t *testing.T) {
	reg := New(nil)
	a := reg.Register(&fakeSink{})
	b := reg.Register(&fakeSink{})
	assert.NotEqual(t, a, b)
	assert.Equal(t, 2, reg.Len())
}

func TestUnregisterToleratesAbsentID(t *testing.T) {
	reg := New(nil)
	assert.NotPanics(t, func() { reg.Unregister(12345) })
}

func TestBroadcastDeliversToAll(t *testing.T) {
	reg := New(nil)
	sinks := []*fakeSink{{}, {}, {}}
	for _, s := range sinks {
		reg.Register(s)
	}

	reg.Broadcast("primary")

	for _, s := range sinks {
		require.Len(t, s.received, 1)
		assert.Equal(t, "primary", s.received[0])
	}
}

func TestBroadcastFailureDoesNotRemoveEntry(t *testing.T) {
	reg := New(nil)
	id := reg.Register(&fakeSink{failing: true})

	reg.Broadcast("replicated: x")

	assert.Equal(t, 1, reg.Len())
	reg.Unregister(id)
	assert.Equal(t, 0, reg.Len())
}

func TestSendToTargetsSingleSession(t *testing.T) {
	reg := New(nil)
	a := &fakeSink{}
	b := &fakeSink{}
	idA := reg.Register(a)
	reg.Register(b)

	reg.SendTo(idA, "unreplicated: y")

	assert.Len(t, a.received, 1)
	assert.Len(t, b.received, 0)
}
