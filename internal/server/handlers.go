package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ar4mirez/pixring/internal/canvas"
)

// ErrorResponse is the JSON body returned for request failures.
type ErrorResponse struct {
	Error string `json:"error"`
}

func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "pixring",
	})
}

// readyHandler reports whether this replica can serve traffic: it is
// ready when the canvas store is reachable. The current leader id and
// primary flag are reported in the body but do not affect readiness.
func (s *Server) readyHandler(c *gin.Context) {
	if _, err := s.store.GetAll(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"error":  err.Error(),
		})
		return
	}

	info := s.manager.Election().Info()
	c.JSON(http.StatusOK, gin.H{
		"status":     "ready",
		"leader_id":  info.LeaderID,
		"is_primary": info.IsPrimary,
		"sessions":   s.sessions.Len(),
	})
}

// canvasResponse is the envelope the external HTTP contract promises:
// {"command":"get_pixels","payload":[Pixel…]}.
type canvasResponse struct {
	Command string         `json:"command"`
	Payload []canvas.Pixel `json:"payload"`
}

// canvasHandler returns the full Postgres-backed pixel grid, mirroring
// the original's Pixel::all snapshot endpoint.
func (s *Server) canvasHandler(c *gin.Context) {
	pixels, err := s.store.GetAll(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, canvasResponse{Command: "get_pixels", Payload: pixels})
}

// pixelHandler accepts a single pixel write over plain HTTP, for
// clients that don't hold a websocket session. It is submitted to the
// replica controller exactly like a websocket-originated write, with
// sessionID 0. Replicated/unreplicated outcomes are broadcast to every
// session; the rejection a non-primary replica sends to the submitting
// session alone reaches no one for an HTTP write.
func (s *Server) pixelHandler(c *gin.Context) {
	var p canvas.Pixel
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid pixel: " + err.Error()})
		return
	}

	if !s.manager.Submit(p, 0) {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "replica is shutting down"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "submitted"})
}
