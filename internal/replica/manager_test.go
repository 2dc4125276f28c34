package replica

import (
	"context"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ar4mirez/pixring/internal/canvas"
	"github.com/ar4mirez/pixring/internal/manifest"
	"github.com/ar4mirez/pixring/internal/peerlink"
	"github.com/ar4mirez/pixring/internal/ringproto"
	"github.com/ar4mirez/pixring/internal/session"
)

// recordingSink is a session.Sink test double that records every
// delivered frame.
type recordingSink struct {
	mu       sync.Mutex
	received []string
}

func (s *recordingSink) Send(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.received = append(s.received, text)
	return nil
}

func (s *recordingSink) snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.received))
	copy(out, s.received)
	return out
}

func oneNodeManifest(selfID uint16) *manifest.ConnectionInfoDict {
	return &manifest.ConnectionInfoDict{
		Backend: []manifest.ReplicaInfo{
			{ID: selfID, PeerAddress: "127.0.0.1", PeerPort: 9000, Active: true},
		},
	}
}

func newTestManager(t *testing.T, selfID uint16) (*Manager, *recordingSink) {
	t.Helper()
	sink := &recordingSink{}
	registry := session.New(nil)
	registry.Register(sink)

	m := New(DefaultConfig(selfID), oneNodeManifest(selfID), canvas.NewMemoryStore(), registry, nil)
	return m, sink
}

// pipedLink returns two connected *peerlink.Link values backed by a
// net.Pipe, standing in for a real TCP ring link in tests.
func pipedLink(t *testing.T) (*peerlink.Link, *peerlink.Link) {
	t.Helper()
	a, b := net.Pipe()
	return peerlink.New(a), peerlink.New(b)
}

func TestHandleSubmitAloneAppliesAndBroadcastsImmediately(t *testing.T) {
	m, sink := newTestManager(t, 1)
	m.engine.SeedPrimary()

	p := canvas.Pixel{X: 1, Y: 2, Colour: 3, Updated: 4}
	m.handleSubmit(p, 99)

	stored, err := m.store.GetAll(nil)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, p, stored[0])

	frame, err := ringproto.EncodePixel(p)
	require.NoError(t, err)
	assert.Contains(t, sink.snapshot(), "replicated: "+frame)
	assert.Equal(t, 0, m.pending.len(), "single-node short circuit never touches the FIFO")
}

func TestHandleSubmitWithSuccessorQueuesAndForwards(t *testing.T) {
	m, _ := newTestManager(t, 1)
	m.engine.SeedPrimary()
	mine, theirs := pipedLink(t)
	m.successor = mine
	m.successorID = 2

	recv := make(chan string, 1)
	go func() {
		frame, err := theirs.Recv()
		require.NoError(t, err)
		recv <- frame
	}()

	p := canvas.Pixel{X: 5, Y: 6, Colour: 7, Updated: 8}
	m.handleSubmit(p, 1)

	select {
	case frame := <-recv:
		want, _ := ringproto.EncodePixel(p)
		assert.Equal(t, want, frame)
	case <-time.After(time.Second):
		t.Fatal("successor never received forwarded frame")
	}
	assert.Equal(t, 1, m.pending.len())
}

func TestHandleSubmitOnSecondaryRejectsWithoutTouchingRing(t *testing.T) {
	sink := &recordingSink{}
	registry := session.New(nil)
	sessionID := registry.Register(sink)

	m := New(DefaultConfig(1), oneNodeManifest(1), canvas.NewMemoryStore(), registry, nil)
	// Not seeded as primary or secondary: IsPrimary defaults false.
	mine, theirs := pipedLink(t)
	t.Cleanup(func() { _ = mine.Close(); _ = theirs.Close() })
	m.successor = mine
	m.successorID = 2

	recv := make(chan string, 1)
	go func() {
		frame, err := theirs.Recv()
		if err == nil {
			recv <- frame
		}
	}()

	p := canvas.Pixel{X: 5, Y: 6, Colour: 7, Updated: 8}
	m.handleSubmit(p, sessionID)

	select {
	case <-recv:
		t.Fatal("secondary must not originate ring traffic for a local submission")
	case <-time.After(50 * time.Millisecond):
	}

	frame, _ := ringproto.EncodePixel(p)
	assert.Contains(t, sink.snapshot(), "unreplicated: "+frame)
	assert.Equal(t, 0, m.pending.len())

	stored, err := m.store.GetAll(nil)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestHandleRingPixelPrimaryAcksOnFIFOMatch(t *testing.T) {
	m, sink := newTestManager(t, 1)
	m.engine.SeedPrimary()

	p := canvas.Pixel{X: 1, Y: 1, Colour: 9, Updated: 1}
	frame, _ := ringproto.EncodePixel(p)
	m.pending.push(frame, 1, time.Hour, func(string, uint64) {})

	m.handlePredecessorFrame(frame)

	stored, _ := m.store.GetAll(nil)
	require.Len(t, stored, 1)
	assert.Contains(t, sink.snapshot(), "replicated: "+frame)
	assert.Equal(t, 0, m.pending.len())
}

func TestHandleRingPixelPrimaryWarnsOnMismatchWithoutApplying(t *testing.T) {
	m, sink := newTestManager(t, 1)
	m.engine.SeedPrimary()

	other, _ := ringproto.EncodePixel(canvas.Pixel{X: 9, Y: 9, Colour: 9, Updated: 9})
	m.pending.push(other, 1, time.Hour, func(string, uint64) {})

	mismatch, _ := ringproto.EncodePixel(canvas.Pixel{X: 1, Y: 1, Colour: 1, Updated: 1})
	m.handlePredecessorFrame(mismatch)

	stored, _ := m.store.GetAll(nil)
	assert.Empty(t, stored)
	assert.Empty(t, sink.snapshot())
	assert.Equal(t, 1, m.pending.len())
}

// failingStore is a canvas.Store double whose Upsert always errors,
// used to exercise the primary's StoreError path without a real
// database.
type failingStore struct {
	canvas.Store
}

func (failingStore) Upsert(context.Context, canvas.Pixel) error {
	return fmt.Errorf("store: forced failure")
}

func TestHandleRingPixelPrimaryLeavesFIFOEntryOnStoreError(t *testing.T) {
	sink := &recordingSink{}
	registry := session.New(nil)
	registry.Register(sink)

	m := New(DefaultConfig(1), oneNodeManifest(1), failingStore{canvas.NewMemoryStore()}, registry, nil)
	m.engine.SeedPrimary()

	p := canvas.Pixel{X: 1, Y: 1, Colour: 9, Updated: 1}
	frame, _ := ringproto.EncodePixel(p)
	m.pending.push(frame, 1, time.Hour, func(string, uint64) {})

	m.handlePredecessorFrame(frame)

	// Neither replicated nor unreplicated yet: the entry stays at the
	// front so its own timer decides the outcome, per the ack
	// dichotomy invariant (never neither while the primary is up).
	assert.Empty(t, sink.snapshot())
	assert.Equal(t, 1, m.pending.len())
}

func TestHandleRingPixelSecondaryAppliesAndForwards(t *testing.T) {
	m, _ := newTestManager(t, 2)
	m.engine.SeedSecondary(1)
	mine, theirs := pipedLink(t)
	m.successor = mine
	m.successorID = 3

	recv := make(chan string, 1)
	go func() {
		frame, err := theirs.Recv()
		require.NoError(t, err)
		recv <- frame
	}()

	p := canvas.Pixel{X: 2, Y: 2, Colour: 2, Updated: 2}
	frame, _ := ringproto.EncodePixel(p)
	m.handlePredecessorFrame(frame)

	stored, _ := m.store.GetAll(nil)
	require.Len(t, stored, 1)
	assert.Equal(t, p, stored[0])

	select {
	case got := <-recv:
		assert.Equal(t, frame, got)
	case <-time.After(time.Second):
		t.Fatal("secondary never forwarded pixel")
	}
}

func TestHandleRingPixelDebugModeDropsWithoutForwarding(t *testing.T) {
	m, _ := newTestManager(t, 2)
	m.cfg.Debug = true
	m.engine.SeedSecondary(1)
	mine, theirs := pipedLink(t)
	m.successor = mine
	m.successorID = 3
	_ = theirs

	p := canvas.Pixel{X: 3, Y: 3, Colour: 3, Updated: 3}
	frame, _ := ringproto.EncodePixel(p)

	done := make(chan struct{})
	go func() {
		m.handlePredecessorFrame(frame)
		close(done)
	}()
	<-done

	stored, _ := m.store.GetAll(nil)
	require.Len(t, stored, 1)
}

func TestHandleSyncSecondaryAdoptsAndForwards(t *testing.T) {
	m, _ := newTestManager(t, 2)
	m.engine.SeedSecondary(0)
	mine, theirs := pipedLink(t)
	m.successor = mine
	m.successorID = 3

	recv := make(chan string, 1)
	go func() {
		frame, err := theirs.Recv()
		require.NoError(t, err)
		recv <- frame
	}()

	sm := ringproto.SyncMessage{
		Pixels:        []canvas.Pixel{{X: 1, Y: 1, Colour: 1, Updated: 1}},
		Conn:          *oneNodeManifest(2),
		Leader:        1,
		PredecessorID: 1,
	}
	m.handleSync(sm)

	assert.EqualValues(t, 1, m.engine.Info().LeaderID)
	stored, _ := m.store.GetAll(nil)
	require.Len(t, stored, 1)

	select {
	case frame := <-recv:
		msg, err := ringproto.Parse(frame)
		require.NoError(t, err)
		require.Equal(t, ringproto.KindSync, msg.Kind)
		assert.EqualValues(t, 2, msg.Sync.PredecessorID, "forwarding replica rewrites predecessor_id to its own id")
	case <-time.After(time.Second):
		t.Fatal("sync never forwarded")
	}
}

func TestHandleSyncPrimaryClearsLatchWithoutForwarding(t *testing.T) {
	m, _ := newTestManager(t, 1)
	m.engine.SeedPrimary()
	m.sentSync = true

	mine, theirs := pipedLink(t)
	m.successor = mine
	m.successorID = 2
	_ = theirs

	m.handleSync(ringproto.SyncMessage{Conn: *oneNodeManifest(1)})
	assert.False(t, m.sentSync)
}

func TestHandleDisconnectFrameForwardsOnceThenStops(t *testing.T) {
	m, _ := newTestManager(t, 1)
	mine, theirs := pipedLink(t)
	m.successor = mine
	m.successorID = 2

	recv := make(chan string, 1)
	go func() {
		frame, err := theirs.Recv()
		require.NoError(t, err)
		recv <- frame
	}()

	m.announceDisconnect(9)
	select {
	case frame := <-recv:
		assert.Equal(t, ringproto.EncodeDisconnect(9), frame)
	case <-time.After(time.Second):
		t.Fatal("disconnect never forwarded")
	}
	// The announcement returning to its originator closes the loop: no
	// further forward happens.
	m.handleDisconnectFrame(9)
	assert.Empty(t, m.sentDisconnect)
}
