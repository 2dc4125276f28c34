package replica

import (
	"sync"
	"time"
)

// pendingEntry is one originated payload awaiting round-trip
// confirmation. timer is owned by the FIFO and cancelled on pop.
type pendingEntry struct {
	payload   string
	sessionID uint64
	timer     *time.Timer
}

// pendingAckFIFO is the primary's ordered queue of originated pixel
// messages. All operations are O(1) and the mutex is never held
// across I/O; the 5s timeout is a fire-and-forget timer goroutine
// that only ever touches the FIFO through these same locked methods,
// per the concurrency model's single carved-out exception.
type pendingAckFIFO struct {
	mu      sync.Mutex
	entries []pendingEntry
}

func newPendingAckFIFO() *pendingAckFIFO {
	return &pendingAckFIFO{}
}

// push enqueues payload with a deadline timer that calls onTimeout if
// the entry is still at the front of the FIFO when it fires.
func (f *pendingAckFIFO) push(payload string, sessionID uint64, deadline time.Duration, onTimeout func(payload string, sessionID uint64)) {
	entry := pendingEntry{payload: payload, sessionID: sessionID}

	f.mu.Lock()
	entry.timer = time.AfterFunc(deadline, func() {
		f.expireIfFront(payload, sessionID, onTimeout)
	})
	f.entries = append(f.entries, entry)
	f.mu.Unlock()
}

// expireIfFront pops payload only if it is still the front entry,
// matching the FIFO semantics: "if the FIFO's front still equals this
// exact payload, pop it and notify".
func (f *pendingAckFIFO) expireIfFront(payload string, sessionID uint64, onTimeout func(payload string, sessionID uint64)) {
	f.mu.Lock()
	if len(f.entries) == 0 || f.entries[0].payload != payload {
		f.mu.Unlock()
		return
	}
	f.entries = f.entries[1:]
	f.mu.Unlock()

	onTimeout(payload, sessionID)
}

// frontMatches reports whether payload is the current front entry,
// without popping it or touching its timer. Used to check a round-trip
// ack is legitimate before doing the store write that must succeed
// before the entry is actually popped.
func (f *pendingAckFIFO) frontMatches(payload string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries) > 0 && f.entries[0].payload == payload
}

// popIfMatches pops the front entry if it equals payload, cancelling
// its timer, and returns (sessionID, true). If the front does not
// match (a lost/reordered ack), it returns (0, false) and leaves the
// FIFO untouched.
func (f *pendingAckFIFO) popIfMatches(payload string) (uint64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.entries) == 0 || f.entries[0].payload != payload {
		return 0, false
	}

	front := f.entries[0]
	front.timer.Stop()
	f.entries = f.entries[1:]
	return front.sessionID, true
}

// len reports the current queue depth, used by metrics.
func (f *pendingAckFIFO) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

// drain cancels every pending timer without invoking callbacks, used
// on shutdown.
func (f *pendingAckFIFO) drain() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.entries {
		e.timer.Stop()
	}
	f.entries = nil
}
