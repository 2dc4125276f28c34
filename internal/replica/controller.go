package replica

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/ar4mirez/pixring/internal/canvas"
	"github.com/ar4mirez/pixring/internal/election"
	"github.com/ar4mirez/pixring/internal/peerlink"
	"github.com/ar4mirez/pixring/internal/ringproto"
)

// Run is the controller's single goroutine: a three-way select over
// session commands, predecessor frames, and completed inbound
// handshakes. All ring/election/topology state is mutated only here.
func (m *Manager) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case cmd := <-m.cmdCh:
			m.dispatch(cmd)

		case pf := <-m.predMsgCh:
			if pf.link != m.predecessor {
				continue // stale reader from an already-replaced link
			}
			if pf.err != nil {
				if errors.Is(pf.err, peerlink.ErrPredecessorLost) {
					m.handlePredecessorLost()
				} else {
					m.logger.Warn("predecessor read failed", zap.Error(pf.err))
				}
				continue
			}
			m.handlePredecessorFrame(pf.frame)

		case pj := <-m.acceptCh:
			m.handlePeerJoin(pj)
		}
	}
}

func (m *Manager) dispatch(cmd Command) {
	switch c := cmd.(type) {
	case SubmitCommand:
		m.handleSubmit(c.Pixel, c.SessionID)
	}
}

// handleSubmit originates a pixel write from a local session: the
// single-node short-circuit applies and acks immediately; otherwise
// it pushes onto the PendingAck FIFO and forwards to the successor.
// Only the primary is authorized to originate ring traffic; a
// submission landing on a secondary (a client connected before seeing
// the "primary" announcement) is rejected rather than half-applied,
// since a secondary has no PendingAck FIFO to round-trip it through.
func (m *Manager) handleSubmit(p canvas.Pixel, sessionID uint64) {
	frame, err := ringproto.EncodePixel(p)
	if err != nil {
		m.logger.Error("encode pixel failed", zap.Error(err))
		return
	}

	if !m.engine.Info().IsPrimary {
		m.logger.Warn("rejecting submission on non-primary replica", zap.Uint64("conn_id", sessionID))
		m.sessions.SendTo(sessionID, "unreplicated: "+frame)
		if m.metrics != nil {
			m.metrics.RecordReplicationError("not_primary")
		}
		return
	}

	if m.successor == nil {
		m.applyAndBroadcast(p, frame, "replicated: ")
		return
	}

	m.pending.push(frame, sessionID, m.cfg.ReplicationTimeout, func(payload string, _ uint64) {
		m.sessions.Broadcast("unreplicated: " + payload)
		if m.metrics != nil {
			m.metrics.RecordTimeout()
			m.metrics.SetPendingDepth(m.pending.len())
		}
	})
	m.sendToSuccessor(frame)
	if m.metrics != nil {
		m.metrics.SetPendingDepth(m.pending.len())
	}
}

func (m *Manager) applyAndBroadcast(p canvas.Pixel, frame, prefix string) {
	ctx := context.Background()
	if err := m.store.Upsert(ctx, p); err != nil {
		m.logger.Error("store upsert failed", zap.Error(err))
		if m.metrics != nil {
			m.metrics.RecordReplicationError("store")
		}
		return
	}
	m.sessions.Broadcast(prefix + frame)
	if m.metrics != nil {
		m.metrics.RecordPixelWrite("session")
	}
}

func (m *Manager) handlePredecessorFrame(frame string) {
	msg, err := ringproto.Parse(frame)
	if err != nil {
		m.logger.Warn("dropping malformed ring frame", zap.Error(err))
		return
	}

	switch msg.Kind {
	case ringproto.KindPixel:
		m.handleRingPixel(msg.Pixel, frame)
	case ringproto.KindSync:
		m.handleSync(msg.Sync)
	case ringproto.KindAllPixels:
		m.handleAllPixels(msg.AllPixels, frame)
	case ringproto.KindElectionCandidate:
		m.forwardElection(m.engine.OnCandidate(msg.ElectionID))
	case ringproto.KindElectionLeader:
		out := m.engine.OnLeader(msg.ElectionID)
		if out.BecamePrimary {
			m.sessions.Broadcast("primary")
		}
		m.forwardElection(out)
	case ringproto.KindDisconnect:
		m.handleDisconnectFrame(msg.DisconnectID)
	case ringproto.KindNewConnection:
		m.handleNewConnection(msg.NewConnection)
	}
}

func (m *Manager) forwardElection(out election.Outcome) {
	if out.Forward != "" {
		m.sendToSuccessor(out.Forward)
	}
}
