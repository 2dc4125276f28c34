package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ar4mirez/pixring/internal/canvas"
	"github.com/ar4mirez/pixring/internal/config"
	"github.com/ar4mirez/pixring/internal/manifest"
	"github.com/ar4mirez/pixring/internal/replica"
	"github.com/ar4mirez/pixring/internal/session"
)

// newTestServer builds a single-node replica (no successor, so every
// submission short-circuits to an immediate ack) wired to an
// in-memory canvas store, matching scenario 1's steady-state shape
// minus the other two replicas.
func newTestServer(t *testing.T) *Server {
	t.Helper()

	dict := &manifest.ConnectionInfoDict{
		Backend: []manifest.ReplicaInfo{
			{ID: 1, PeerAddress: "127.0.0.1", PeerPort: 0, PublicAddress: "127.0.0.1", PublicPort: 0, Active: true},
		},
	}

	store := canvas.NewMemoryStore()
	sessions := session.New(zap.NewNop())
	mgr := replica.New(replica.DefaultConfig(1), dict, store, sessions, zap.NewNop())
	require.NoError(t, mgr.Join())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = mgr.Run(ctx) }()

	cfg := &config.Config{ID: 1, Address: "127.0.0.1:0", LogLevel: "error"}
	srv := New(cfg, store, mgr, sessions, zap.NewNop(), nil)
	t.Cleanup(func() { _ = mgr.Shutdown(context.Background()) })
	return srv
}

func TestHealthHandler(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyHandlerReportsPrimary(t *testing.T) {
	srv := newTestServer(t)

	// Join is synchronous and seeds primary before Run starts
	// draining the command channel, so ready is immediately true.
	require.Eventually(t, func() bool {
		req := httptest.NewRequest(http.MethodGet, "/ready", nil)
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			return false
		}
		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		return body["is_primary"] == true
	}, time.Second, 10*time.Millisecond)
}

func TestCanvasHandlerEnvelope(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/canvas", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body canvasResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "get_pixels", body.Command)
}

func TestPixelHandlerSubmitsAndReplicates(t *testing.T) {
	srv := newTestServer(t)

	payload, err := json.Marshal(canvas.Pixel{X: 0, Y: 0, Colour: 7, Updated: 1})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/pixel", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)

	require.Eventually(t, func() bool {
		pixels, err := srv.store.GetAll(context.Background())
		require.NoError(t, err)
		for _, p := range pixels {
			if p == (canvas.Pixel{X: 0, Y: 0, Colour: 7, Updated: 1}) {
				return true
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)
}

func TestPixelHandlerRejectsMalformedBody(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/pixel", bytes.NewReader([]byte("not json")))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
