package replica

import (
	"context"

	"go.uber.org/zap"

	"github.com/ar4mirez/pixring/internal/canvas"
	"github.com/ar4mirez/pixring/internal/ringproto"
)

// handleRingPixel processes a pixel frame arriving on the predecessor
// link: on the primary it is a round-trip confirmation (or a
// lost/reordered ack if the FIFO front doesn't match); on a secondary
// it is applied locally and forwarded on (unless running in debug
// mode, which applies and logs without forwarding).
func (m *Manager) handleRingPixel(p canvas.Pixel, frame string) {
	if m.engine.Info().IsPrimary {
		if !m.pending.frontMatches(frame) {
			m.logger.Warn("pixel ack did not match FIFO front (lost or reordered)")
			if m.metrics != nil {
				m.metrics.RecordReplicationError("protocol")
			}
			return
		}

		ctx := context.Background()
		if err := m.store.Upsert(ctx, p); err != nil {
			// Leave the FIFO entry in place: it is still the front, so
			// its 5s timer keeps running and will fire "unreplicated:"
			// to the originating session when it expires. Popping here
			// would give the session neither reply.
			m.logger.Error("store upsert failed on ack", zap.Error(err))
			if m.metrics != nil {
				m.metrics.RecordReplicationError("store")
			}
			return
		}

		if _, ok := m.pending.popIfMatches(frame); !ok {
			// The front changed between the peek and the upsert
			// completing (its timer expired and popped it first);
			// the write is applied, but no session is left to ack.
			return
		}
		if m.metrics != nil {
			m.metrics.SetPendingDepth(m.pending.len())
			m.metrics.RecordAck()
			m.metrics.RecordPixelWrite("ring")
		}
		m.sessions.Broadcast("replicated: " + frame)
		return
	}

	ctx := context.Background()
	if err := m.store.Upsert(ctx, p); err != nil {
		m.logger.Error("store upsert failed", zap.Error(err))
		if m.metrics != nil {
			m.metrics.RecordReplicationError("store")
		}
		return
	}
	if m.metrics != nil {
		m.metrics.RecordPixelWrite("ring")
	}
	if m.cfg.Debug {
		m.logger.Debug("debug mode: applied without forwarding", zap.Int32("x", p.X), zap.Int32("y", p.Y))
		return
	}
	m.sendToSuccessor(frame)
}

// handleAllPixels applies a full-state /all_pixels payload verbatim
// and forwards it on unless this replica is primary, closing the
// loop the same way /sync does.
func (m *Manager) handleAllPixels(pixels []canvas.Pixel, frame string) {
	ctx := context.Background()
	if err := m.store.ReplaceAll(ctx, pixels); err != nil {
		m.logger.Error("replace all failed", zap.Error(err))
		return
	}
	if !m.engine.Info().IsPrimary {
		m.sendToSuccessor(frame)
	}
}

// handleSync processes an inbound /sync: the primary absorbs topology
// and leader state once per traversal and never forwards; every other
// replica applies the pixel snapshot, adopts conn/leader, learns its
// predecessor id, rewrites the field to its own id, and forwards on.
func (m *Manager) handleSync(sm ringproto.SyncMessage) {
	if m.engine.Info().IsPrimary {
		if m.sentSync {
			m.sentSync = false
			return
		}
		m.manifest = &sm.Conn
		m.engine.SeedSecondary(sm.Leader)
		return
	}

	ctx := context.Background()
	if err := m.store.ReplaceAll(ctx, sm.Pixels); err != nil {
		m.logger.Error("replace all failed during sync", zap.Error(err))
	}
	m.manifest = &sm.Conn
	m.engine.SeedSecondary(sm.Leader)
	m.predecessorID = sm.PredecessorID

	sm.PredecessorID = m.cfg.SelfID
	frame, err := ringproto.EncodeSync(sm)
	if err != nil {
		m.logger.Error("encode sync failed", zap.Error(err))
		return
	}
	m.sendToSuccessor(frame)
}

// originateSync sends a fresh /sync from this replica, setting the
// one-shot latch that lets the primary recognise its own frame
// returning after a full loop.
func (m *Manager) originateSync() {
	ctx := context.Background()
	pixels, err := m.store.GetAll(ctx)
	if err != nil {
		m.logger.Error("get all pixels for sync failed", zap.Error(err))
		return
	}

	sm := ringproto.SyncMessage{
		Pixels:        pixels,
		Conn:          *m.manifest,
		Leader:        m.engine.Info().LeaderID,
		PredecessorID: m.cfg.SelfID,
	}
	frame, err := ringproto.EncodeSync(sm)
	if err != nil {
		m.logger.Error("encode sync failed", zap.Error(err))
		return
	}
	m.sentSync = true
	m.sendToSuccessor(frame)
}
