package replica

import "github.com/ar4mirez/pixring/internal/canvas"

// Command is a message session tasks hand to the controller. It is
// the only channel by which session goroutines mutate controller
// state — per the concurrency model, all ring-state transitions
// happen on the controller goroutine.
type Command interface{ isCommand() }

// SubmitCommand carries a session-originated pixel write into the
// replication engine.
type SubmitCommand struct {
	Pixel     canvas.Pixel
	SessionID uint64
}

func (SubmitCommand) isCommand() {}

// Submit enqueues a pixel write from a websocket session or HTTP
// handler. It never blocks the caller for longer than a channel send;
// callers run on their own per-session goroutine. It reports false if
// the manager is shutting down and the write was dropped.
func (m *Manager) Submit(pixel canvas.Pixel, sessionID uint64) bool {
	select {
	case m.cmdCh <- SubmitCommand{Pixel: pixel, SessionID: sessionID}:
		return true
	case <-m.stopCh:
		return false
	}
}
