// Package session maintains the in-process table of websocket
// sessions attached to this replica and fans control notifications
// out to them.
package session

import (
	"crypto/rand"
	"encoding/binary"
	"sync"

	"go.uber.org/zap"
)

// Sink is a non-blocking send endpoint toward a single websocket
// session, owned by that session's handler goroutine.
type Sink interface {
	// Send delivers a text frame. Implementations must not block the
	// caller; a full outbound buffer should drop or log rather than
	// wait.
	Send(text string) error
}

// Registry maps conn_id to a Sink. It is safe for concurrent use:
// websocket handlers register and unregister their sessions while the
// replica controller broadcasts and sends to them; Sinks themselves
// may be written to from any goroutine.
type Registry struct {
	mu       sync.RWMutex
	sessions map[uint64]Sink
	logger   *zap.Logger
}

// New creates an empty registry.
func New(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{sessions: make(map[uint64]Sink), logger: logger}
}

// Register generates a random 64-bit conn_id, inserts sink, and
// returns the id.
func (r *Registry) Register(sink Sink) uint64 {
	id := randomConnID()

	r.mu.Lock()
	r.sessions[id] = sink
	r.mu.Unlock()

	r.logger.Debug("session registered", zap.Uint64("conn_id", id))
	return id
}

// Unregister removes connID. Tolerant of absent ids.
func (r *Registry) Unregister(connID uint64) {
	r.mu.Lock()
	delete(r.sessions, connID)
	r.mu.Unlock()
}

// Broadcast performs a non-blocking send to every registered session.
// A send failure is logged but does not remove the entry — the
// session handler owns removal on disconnect.
func (r *Registry) Broadcast(text string) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for id, sink := range r.sessions {
		if err := sink.Send(text); err != nil {
			r.logger.Warn("broadcast send failed", zap.Uint64("conn_id", id), zap.Error(err))
		}
	}
}

// SendTo delivers text to a single session by conn_id. It is a no-op
// if connID is not registered.
func (r *Registry) SendTo(connID uint64, text string) {
	r.mu.RLock()
	sink, ok := r.sessions[connID]
	r.mu.RUnlock()

	if !ok {
		return
	}
	if err := sink.Send(text); err != nil {
		r.logger.Warn("send_to failed", zap.Uint64("conn_id", connID), zap.Error(err))
	}
}

// Len reports the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func randomConnID() uint64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		panic("session: crypto/rand unavailable: " + err.Error())
	}
	return binary.BigEndian.Uint64(buf[:])
}
