package replica

import (
	"encoding/json"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/ar4mirez/pixring/internal/manifest"
	"github.com/ar4mirez/pixring/internal/peerlink"
)

// Join runs the boot sequence: open the peer listener, then try each
// active candidate in manifest order until one accepts. The first
// successful dial becomes this replica's successor; if none succeed,
// the replica declares itself alone and primary.
func (m *Manager) Join() error {
	self := m.selfInfo()

	lis, err := net.Listen("tcp", net.JoinHostPort(self.PeerAddress, fmt.Sprintf("%d", self.PeerPort)))
	if err != nil {
		return fmt.Errorf("replica: listen on peer port: %w", err)
	}
	m.listener = lis
	go m.acceptLoop()

	for _, cand := range m.manifest.ActiveReplicas() {
		if cand.ID == m.cfg.SelfID {
			continue
		}
		link, err := dialAndHandshake(cand.SocketAddr(), self, m.cfg.DialTimeout)
		if err != nil {
			m.logger.Debug("join candidate unreachable", zap.Uint16("candidate_id", cand.ID), zap.Error(err))
			continue
		}
		m.successor = link
		m.successorID = cand.ID
		m.logger.Info("joined ring as secondary", zap.Uint16("successor_id", cand.ID))
		if m.cfg.Primary {
			m.engine.SeedPrimary()
		}
		return nil
	}

	m.logger.Info("no active peers reachable, starting alone")
	m.engine.SeedPrimary()
	return nil
}

// dialAndHandshake connects to addr and sends self's own ReplicaInfo
// as the first frame, the uniform handshake every outbound ring link
// establishment uses (initial join, re-splice retarget, and
// reconnect-after-departure all share this helper).
func dialAndHandshake(addr string, self manifest.ReplicaInfo, timeout time.Duration) (*peerlink.Link, error) {
	link, err := peerlink.Dial(addr, timeout)
	if err != nil {
		return nil, err
	}
	b, err := json.Marshal(self)
	if err != nil {
		link.Close()
		return nil, err
	}
	if err := link.Send(string(b)); err != nil {
		link.Close()
		return nil, err
	}
	return link, nil
}

func (m *Manager) acceptLoop() {
	for {
		conn, err := m.listener.Accept()
		if err != nil {
			select {
			case <-m.stopCh:
				return
			default:
				m.logger.Warn("accept failed", zap.Error(err))
				return
			}
		}
		go m.handshakeAccept(conn)
	}
}

// handshakeAccept reads the peer's self-announced ReplicaInfo off a
// freshly accepted connection and hands the result to the controller
// goroutine. It runs off the controller goroutine so a slow or
// misbehaving peer cannot stall the select loop.
func (m *Manager) handshakeAccept(conn net.Conn) {
	link := peerlink.New(conn)
	frame, err := link.Recv()
	if err != nil {
		m.logger.Warn("peer handshake read failed", zap.Error(err))
		link.Close()
		return
	}

	var info manifest.ReplicaInfo
	if err := json.Unmarshal([]byte(frame), &info); err != nil {
		m.logger.Warn("peer handshake payload malformed", zap.Error(err))
		link.Close()
		return
	}

	select {
	case m.acceptCh <- peerJoin{info: info, link: link}:
	case <-m.stopCh:
		link.Close()
	}
}
