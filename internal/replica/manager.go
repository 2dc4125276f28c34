// Package replica implements the per-process topology controller and
// replication engine: ring membership, Chang-Roberts election wiring,
// and at-most-one-in-flight pixel propagation with PendingAck timeout.
//
// A single goroutine (Run) owns every field below except pending,
// which has its own mutex so the PendingAck timeout timer may touch
// it from outside that goroutine without crossing an await point on
// any other state.
package replica

import (
	"context"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/ar4mirez/pixring/internal/canvas"
	"github.com/ar4mirez/pixring/internal/election"
	"github.com/ar4mirez/pixring/internal/manifest"
	"github.com/ar4mirez/pixring/internal/metrics"
	"github.com/ar4mirez/pixring/internal/peerlink"
	"github.com/ar4mirez/pixring/internal/session"
)

// Config configures a Manager.
type Config struct {
	// SelfID is this replica's id in the manifest.
	SelfID uint16

	// Primary asserts this replica should consider itself the initial
	// primary regardless of how the join sequence resolves, mirroring
	// the PRIMARY env var's role in cluster bootstrap.
	Primary bool

	// Debug, when set, makes secondaries apply and log inbound pixel
	// writes without forwarding them further around the ring.
	Debug bool

	// DialTimeout bounds each join-candidate dial attempt.
	DialTimeout time.Duration

	// ReplicationTimeout is the PendingAck deadline.
	ReplicationTimeout time.Duration
}

// DefaultConfig fills in the fixed timeouts: 2s per dial attempt, 5s
// PendingAck deadline.
func DefaultConfig(selfID uint16) Config {
	return Config{
		SelfID:             selfID,
		DialTimeout:        2 * time.Second,
		ReplicationTimeout: 5 * time.Second,
	}
}

// Manager is the topology controller plus replication engine for one
// replica process.
type Manager struct {
	cfg      Config
	logger   *zap.Logger
	store    canvas.Store
	engine   *election.Engine
	sessions *session.Registry
	pending  *pendingAckFIFO
	metrics  *metrics.Metrics

	manifest *manifest.ConnectionInfoDict

	listener net.Listener

	successor     *peerlink.Link
	successorID   uint16
	predecessor   *peerlink.Link
	predecessorID uint16

	sentSync       bool
	sentDisconnect map[uint16]struct{}

	cmdCh     chan Command
	predMsgCh chan predFrame
	acceptCh  chan peerJoin
	stopCh    chan struct{}
}

// predFrame is one line read off the predecessor link, tagged with
// the link it came from so the controller can discard frames from a
// reader goroutine whose link has since been replaced.
type predFrame struct {
	frame string
	err   error
	link  *peerlink.Link
}

// peerJoin is the result of a completed inbound handshake: the peer's
// self-announced ReplicaInfo plus the link it arrived on.
type peerJoin struct {
	info manifest.ReplicaInfo
	link *peerlink.Link
}

// New constructs a Manager. dict is the loaded manifest; it becomes
// the controller's live, mutable topology record.
func New(cfg Config, dict *manifest.ConnectionInfoDict, store canvas.Store, sessions *session.Registry, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		cfg:            cfg,
		logger:         logger,
		store:          store,
		engine:         election.New(election.DefaultConfig(cfg.SelfID), logger),
		sessions:       sessions,
		pending:        newPendingAckFIFO(),
		manifest:       dict,
		sentDisconnect: make(map[uint16]struct{}),
		cmdCh:          make(chan Command, 64),
		predMsgCh:      make(chan predFrame, 8),
		acceptCh:       make(chan peerJoin, 8),
		stopCh:         make(chan struct{}),
	}
}

// Election exposes the election engine for the HTTP front end's
// status endpoints.
func (m *Manager) Election() *election.Engine { return m.engine }

// PendingCount reports the PendingAck FIFO depth, for metrics.
func (m *Manager) PendingCount() int { return m.pending.len() }

// SetMetrics attaches a metrics sink. It is optional: a Manager with
// no metrics attached simply skips recording, matching the nil-safe
// zap.Logger idiom used elsewhere in this package.
func (m *Manager) SetMetrics(mx *metrics.Metrics) { m.metrics = mx }

func (m *Manager) selfInfo() manifest.ReplicaInfo {
	info, _ := m.manifest.Self(m.cfg.SelfID)
	return info
}

// sendToSuccessor writes frame to the current successor link, if any,
// handling a send failure as successor departure.
func (m *Manager) sendToSuccessor(frame string) {
	if m.successor == nil {
		return
	}
	if err := m.successor.Send(frame); err != nil {
		m.logger.Warn("successor send failed", zap.Uint16("successor_id", m.successorID), zap.Error(err))
		m.handleSuccessorLost()
		return
	}
}

// setPredecessor replaces the current predecessor link (closing the
// old one, if any) and starts a reader goroutine feeding predMsgCh.
func (m *Manager) setPredecessor(info manifest.ReplicaInfo, link *peerlink.Link) {
	if m.predecessor != nil {
		_ = m.predecessor.Close()
	}
	m.predecessor = link
	m.predecessorID = info.ID
	if m.metrics != nil {
		m.metrics.SetPredecessorConnected(true)
	}
	go m.predReaderLoop(link)
}

func (m *Manager) predReaderLoop(link *peerlink.Link) {
	for {
		frame, err := link.Recv()
		select {
		case m.predMsgCh <- predFrame{frame: frame, err: err, link: link}:
		case <-m.stopCh:
			return
		}
		if err != nil {
			return
		}
	}
}

// Shutdown stops the controller loop and releases network resources.
// It is idempotent-ish: callers should only call it once.
func (m *Manager) Shutdown(ctx context.Context) error {
	close(m.stopCh)
	m.pending.drain()
	if m.listener != nil {
		_ = m.listener.Close()
	}
	if m.successor != nil {
		_ = m.successor.Close()
	}
	if m.predecessor != nil {
		_ = m.predecessor.Close()
	}
	if err := m.store.Close(); err != nil {
		return err
	}
	return nil
}
