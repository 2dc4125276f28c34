// Package election implements Chang-Roberts leader election on the
// unidirectional ring: candidate tokens propagate in one direction
// and only the highest-id token completes the loop.
package election

import (
	"sync"

	"go.uber.org/zap"

	"github.com/ar4mirez/pixring/internal/ringproto"
)

// Outcome is the result of processing one inbound election frame: the
// ring frame the caller should forward (empty if none), and whether
// this replica just became primary.
type Outcome struct {
	Forward        string
	BecamePrimary  bool
	LeaderChanged  bool
}

// Config holds the election engine's tunables. There are none beyond
// the replica's own id today, but the struct mirrors the rest of the
// codebase's Default*Config() idiom for future knobs (e.g. a bounded
// retry count for initiate-under-churn).
type Config struct {
	SelfID uint16
}

// DefaultConfig returns the zero-value config for selfID.
func DefaultConfig(selfID uint16) Config {
	return Config{SelfID: selfID}
}

// Engine holds per-replica Chang-Roberts state: leader_id and
// election_running. All mutation happens on the controller goroutine
// that owns an Engine; the mutex exists only so Info() can be called
// from a metrics-scraping goroutine without coordination.
type Engine struct {
	mu              sync.RWMutex
	cfg             Config
	leaderID        uint16
	electionRunning bool
	isPrimary       bool
	logger          *zap.Logger
}

// New creates an election engine for cfg.
func New(cfg Config, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{cfg: cfg, logger: logger}
}

// Info is a point-in-time snapshot of election state.
type Info struct {
	LeaderID        uint16
	ElectionRunning bool
	IsPrimary       bool
}

// Info returns a snapshot safe to read concurrently with controller
// mutation.
func (e *Engine) Info() Info {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Info{LeaderID: e.leaderID, ElectionRunning: e.electionRunning, IsPrimary: e.isPrimary}
}

// SeedPrimary marks this replica primary with itself as leader,
// without running an election — used for the join-sequence "become
// alone" and "assert PRIMARY env var" paths.
func (e *Engine) SeedPrimary() {
	e.mu.Lock()
	e.leaderID = e.cfg.SelfID
	e.isPrimary = true
	e.electionRunning = false
	e.mu.Unlock()
}

// SeedSecondary records leaderID as the known leader without running
// an election — used when adopting leader state from /sync. This
// replica stays primary only if leaderID is its own id.
func (e *Engine) SeedSecondary(leaderID uint16) {
	e.mu.Lock()
	e.leaderID = leaderID
	e.isPrimary = leaderID == e.cfg.SelfID
	e.electionRunning = false
	e.mu.Unlock()
}

// Initiate starts a new election, called by the topology controller
// when the leader's departure is detected. It returns the candidate
// frame to forward to the successor.
func (e *Engine) Initiate() string {
	e.mu.Lock()
	e.electionRunning = true
	e.mu.Unlock()

	e.logger.Info("initiating election", zap.Uint16("self_id", e.cfg.SelfID))
	return ringproto.EncodeElectionCandidate(e.cfg.SelfID)
}

// OnCandidate processes an inbound /election election <k> frame.
func (e *Engine) OnCandidate(k uint16) Outcome {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch {
	case k > e.cfg.SelfID:
		return Outcome{Forward: ringproto.EncodeElectionCandidate(k)}

	case k < e.cfg.SelfID:
		if !e.electionRunning {
			e.electionRunning = true
			return Outcome{Forward: ringproto.EncodeElectionCandidate(e.cfg.SelfID)}
		}
		// Already running our own candidacy; the smaller token is
		// dropped per Chang-Roberts (it cannot win).
		return Outcome{}

	default: // k == self: our own candidacy has gone all the way round
		return Outcome{Forward: ringproto.EncodeElectionLeader(e.cfg.SelfID)}
	}
}

// OnLeader processes an inbound /election leader <k> frame.
func (e *Engine) OnLeader(k uint16) Outcome {
	e.mu.Lock()
	prevLeader := e.leaderID
	e.leaderID = k
	e.electionRunning = false

	if k == e.cfg.SelfID {
		e.isPrimary = true
		e.mu.Unlock()
		e.logger.Info("became primary", zap.Uint16("self_id", e.cfg.SelfID))
		return Outcome{BecamePrimary: true, LeaderChanged: prevLeader != k}
	}

	e.isPrimary = false
	e.mu.Unlock()
	return Outcome{Forward: ringproto.EncodeElectionLeader(k), LeaderChanged: prevLeader != k}
}
