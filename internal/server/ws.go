package server

import (
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ar4mirez/pixring/internal/canvas"
)

// heartbeatInterval and clientTimeout mirror the original handler's
// ping cadence and disconnect threshold: ping at half the timeout.
const (
	heartbeatInterval = 5 * time.Second
	clientTimeout     = 10 * time.Second
	sendBufferSize    = 32
)

// wsSession is the Sink a browser connection registers in the session
// registry. Send is non-blocking: a full buffer drops the frame
// rather than stalling the controller goroutine that called it.
type wsSession struct {
	conn   *websocket.Conn
	sendCh chan string
	logger *zap.Logger
}

func (w *wsSession) Send(text string) error {
	select {
	case w.sendCh <- text:
		return nil
	default:
		w.logger.Warn("websocket send buffer full, dropping frame")
		return nil
	}
}

// wsHandler upgrades the connection, registers it as a session sink,
// and runs its read/write pumps until either side disconnects.
func (s *Server) wsHandler(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	sess := &wsSession{conn: conn, sendCh: make(chan string, sendBufferSize), logger: s.logger}
	connID := s.sessions.Register(sess)
	if s.metrics != nil {
		s.metrics.SetSessionsActive(s.sessions.Len())
	}
	s.logger.Info("websocket connected", zap.Uint64("conn_id", connID))

	done := make(chan struct{})
	go s.wsWritePump(sess, done)
	s.wsReadPump(conn, connID)

	close(done)
	s.sessions.Unregister(connID)
	if s.metrics != nil {
		s.metrics.SetSessionsActive(s.sessions.Len())
	}
	_ = conn.Close()
	s.logger.Info("websocket disconnected", zap.Uint64("conn_id", connID))
}

// wsReadPump reads inbound pixel writes until the client disconnects
// or exceeds clientTimeout without a pong.
func (s *Server) wsReadPump(conn *websocket.Conn, connID uint64) {
	_ = conn.SetReadDeadline(time.Now().Add(clientTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(clientTimeout))
	})

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var p canvas.Pixel
		if err := json.Unmarshal(msg, &p); err != nil {
			s.logger.Warn("malformed pixel frame from websocket", zap.Uint64("conn_id", connID), zap.Error(err))
			continue
		}
		s.manager.Submit(p, connID)
	}
}

// wsWritePump drains sendCh to the socket and sends heartbeat pings at
// heartbeatInterval, half the client timeout as the original does.
func (s *Server) wsWritePump(sess *wsSession, done <-chan struct{}) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case text := <-sess.sendCh:
			if err := sess.conn.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
				return
			}
		case <-ticker.C:
			if err := sess.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
