package canvasclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientGetCanvas(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/canvas", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(CanvasResponse{
			Command: "get_pixels",
			Payload: []Pixel{{X: 1, Y: 2, Colour: 3, Updated: 4}},
		})
	}))
	defer srv.Close()

	c := New(WithBaseURL(srv.URL))
	pixels, err := c.GetCanvas(context.Background())
	require.NoError(t, err)
	require.Len(t, pixels, 1)
	assert.Equal(t, Pixel{X: 1, Y: 2, Colour: 3, Updated: 4}, pixels[0])
}

func TestClientPutPixel(t *testing.T) {
	var received Pixel
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/pixel", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c := New(WithBaseURL(srv.URL))
	err := c.PutPixel(context.Background(), Pixel{X: 5, Y: 5, Colour: 1, Updated: 10})
	require.NoError(t, err)
	assert.Equal(t, Pixel{X: 5, Y: 5, Colour: 1, Updated: 10}, received)
}

func TestClientSurfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "replica is shutting down"})
	}))
	defer srv.Close()

	c := New(WithBaseURL(srv.URL))
	err := c.PutPixel(context.Background(), Pixel{})
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.Equal(t, "replica is shutting down", apiErr.Message)
}

func TestClientHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(HealthResponse{Status: "healthy", Service: "pixring"})
	}))
	defer srv.Close()

	c := New(WithBaseURL(srv.URL))
	resp, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "healthy", resp.Status)
}

func TestWsURLRewritesScheme(t *testing.T) {
	c := New(WithBaseURL("http://localhost:8080"))
	assert.Equal(t, "ws://localhost:8080/ws", c.wsURL())

	c2 := New(WithBaseURL("https://canvas.example.com"))
	assert.Equal(t, "wss://canvas.example.com/ws", c2.wsURL())
}
