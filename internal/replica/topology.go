package replica

import (
	"go.uber.org/zap"

	"github.com/ar4mirez/pixring/internal/ringproto"
)

// handlePeerJoin absorbs a freshly handshaken inbound connection. It
// always records the peer as the new predecessor. If this replica was
// alone, it also dials the peer back as its new successor (closing a
// two-node ring) and originates /sync. Otherwise it splices the peer
// into the ring via /new_connection and still originates /sync so the
// newcomer picks up current state.
func (m *Manager) handlePeerJoin(pj peerJoin) {
	m.manifest.Upsert(pj.info)
	m.setPredecessor(pj.info, pj.link)
	if m.metrics != nil {
		m.metrics.SetActiveReplicas(m.manifest.ActiveCount())
	}

	if m.successor == nil {
		link, err := dialAndHandshake(pj.info.SocketAddr(), m.selfInfo(), m.cfg.DialTimeout)
		if err != nil {
			m.logger.Warn("failed to dial new peer back as successor", zap.Uint16("peer_id", pj.info.ID), zap.Error(err))
			return
		}
		m.successor = link
		m.successorID = pj.info.ID
		if m.metrics != nil {
			m.metrics.SetSuccessorConnected(true)
			m.metrics.SetActiveReplicas(m.manifest.ActiveCount())
		}
		m.logger.Info("closed two-node ring with new peer", zap.Uint16("peer_id", pj.info.ID))
		m.originateSync()
		return
	}

	nc := ringproto.NewConMessage{From: pj.info, Effecting: m.selfInfo()}
	frame, err := ringproto.EncodeNewConnection(nc)
	if err != nil {
		m.logger.Error("encode new_connection failed", zap.Error(err))
		return
	}
	m.sendToSuccessor(frame)
	m.originateSync()
}

// handleNewConnection retargets this replica's successor to the
// newcomer if this replica is the one whose current successor is
// "effecting" (the node the newcomer first connected to); otherwise
// it forwards the announcement on unchanged.
func (m *Manager) handleNewConnection(nc ringproto.NewConMessage) {
	if nc.Effecting.ID != m.successorID {
		frame, err := ringproto.EncodeNewConnection(nc)
		if err != nil {
			m.logger.Error("encode new_connection failed", zap.Error(err))
			return
		}
		m.sendToSuccessor(frame)
		return
	}

	link, err := dialAndHandshake(nc.From.SocketAddr(), m.selfInfo(), m.cfg.DialTimeout)
	if err != nil {
		m.logger.Warn("failed to retarget successor to new peer", zap.Uint16("peer_id", nc.From.ID), zap.Error(err))
		return
	}

	old := m.successor
	m.successor = link
	m.successorID = nc.From.ID
	if old != nil {
		_ = old.Close()
	}
	m.logger.Info("retargeted successor", zap.Uint16("new_successor_id", nc.From.ID))
}

// handleDisconnectFrame prunes a dead replica from the manifest and
// forwards the announcement once around the ring. It uses the same
// one-shot latch pattern as /sync: the replica that originated the
// announcement recognises it coming back and stops forwarding.
func (m *Manager) handleDisconnectFrame(id uint16) {
	m.manifest.SetActive(id, false)

	if _, originated := m.sentDisconnect[id]; originated {
		delete(m.sentDisconnect, id)
		return
	}
	m.announceDisconnect(id)
}

func (m *Manager) announceDisconnect(id uint16) {
	m.sentDisconnect[id] = struct{}{}
	m.sendToSuccessor(ringproto.EncodeDisconnect(id))
}

// handleSuccessorLost reacts to a failed write to the successor: the
// dead id is pruned, a replacement is dialed via the manifest's ring
// order, a new election starts if the departed id was leader, and the
// departure is announced so other replicas prune it too.
func (m *Manager) handleSuccessorLost() {
	if m.metrics != nil {
		m.metrics.RecordReplicationError("successor_lost")
		m.metrics.SetSuccessorConnected(false)
	}

	deadID := m.successorID
	m.manifest.SetActive(deadID, false)
	if m.successor != nil {
		_ = m.successor.Close()
	}
	m.successor = nil
	m.successorID = 0

	if next, err := m.manifest.Successor(m.cfg.SelfID); err == nil {
		link, dialErr := dialAndHandshake(next.SocketAddr(), m.selfInfo(), m.cfg.DialTimeout)
		if dialErr == nil {
			m.successor = link
			m.successorID = next.ID
			if m.metrics != nil {
				m.metrics.SetSuccessorConnected(true)
			}
		} else {
			m.logger.Warn("failed to dial replacement successor", zap.Uint16("candidate_id", next.ID), zap.Error(dialErr))
		}
	}

	if deadID == m.engine.Info().LeaderID {
		token := m.engine.Initiate()
		if m.metrics != nil {
			m.metrics.RecordElection()
		}
		if m.successor != nil {
			m.sendToSuccessor(token)
		} else {
			m.engine.SeedPrimary()
		}
	}

	m.announceDisconnect(deadID)
	if m.metrics != nil {
		m.metrics.SetActiveReplicas(m.manifest.ActiveCount())
	}
}

// handlePredecessorLost reacts to the predecessor link closing: the
// dead id is pruned and announced, and if this replica is now the
// only active member it declares the alone loop and tells local
// sessions it is primary.
func (m *Manager) handlePredecessorLost() {
	if m.metrics != nil {
		m.metrics.RecordReplicationError("predecessor_lost")
		m.metrics.SetPredecessorConnected(false)
	}

	deadID := m.predecessorID
	m.manifest.SetActive(deadID, false)
	m.predecessor = nil
	m.predecessorID = 0

	m.announceDisconnect(deadID)
	if m.metrics != nil {
		m.metrics.SetActiveReplicas(m.manifest.ActiveCount())
	}

	if m.manifest.ActiveCount() <= 1 {
		if m.successor != nil {
			_ = m.successor.Close()
		}
		m.successor = nil
		m.successorID = 0
		if m.metrics != nil {
			m.metrics.SetSuccessorConnected(false)
		}
		m.engine.SeedPrimary()
		m.sessions.Broadcast("primary")
	}
}
