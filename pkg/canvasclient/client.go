// Package canvasclient is the SDK for driving a canvas replica's
// HTTP and websocket front end: health/readiness probes, full-canvas
// snapshot, single-pixel submission, and a live feed of replication
// outcomes.
package canvasclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// DefaultTimeout is the default HTTP client timeout.
	DefaultTimeout = 30 * time.Second
	// DefaultBaseURL is the default replica URL.
	DefaultBaseURL = "http://localhost:8080"
)

// Client is the canvas replica SDK client.
type Client struct {
	baseURL    string
	httpClient *http.Client
	headers    map[string]string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithBaseURL sets the base URL for the client.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// New creates a new canvas client with the given options.
func New(opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		headers:    make(map[string]string),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// do performs an HTTP request and decodes the response.
func (c *Client) do(ctx context.Context, method, path string, body, result interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("canvasclient: encode request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("canvasclient: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("canvasclient: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("canvasclient: read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if err := json.Unmarshal(respBody, apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = string(respBody)
		}
		return apiErr
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("canvasclient: decode response: %w", err)
		}
	}
	return nil
}

// Health checks whether the replica process is up.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.do(ctx, http.MethodGet, "/health", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Ready checks whether the replica can serve traffic and reports its
// current election state.
func (c *Client) Ready(ctx context.Context) (*ReadyResponse, error) {
	var resp ReadyResponse
	if err := c.do(ctx, http.MethodGet, "/ready", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetCanvas fetches the full pixel grid.
func (c *Client) GetCanvas(ctx context.Context) ([]Pixel, error) {
	var resp CanvasResponse
	if err := c.do(ctx, http.MethodGet, "/canvas", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Payload, nil
}

// PutPixel submits a single pixel write over plain HTTP.
func (c *Client) PutPixel(ctx context.Context, p Pixel) error {
	return c.do(ctx, http.MethodPost, "/pixel", p, nil)
}

// wsURL rewrites the client's http(s) base URL to ws(s) and appends
// the /ws path.
func (c *Client) wsURL() string {
	u := c.baseURL
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/ws"
}

// WatchFunc is called for every frame the websocket session
// receives: the literal string "primary", "replicated: <payload>", or
// "unreplicated: <payload>".
type WatchFunc func(frame string)

// Watch opens a websocket session to the replica and invokes fn for
// every server-to-client frame until ctx is cancelled or the
// connection drops.
func (c *Client) Watch(ctx context.Context, fn WatchFunc) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.wsURL(), nil)
	if err != nil {
		return fmt.Errorf("canvasclient: dial websocket: %w", err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("canvasclient: websocket read: %w", err)
		}
		fn(string(msg))
	}
}

// SubmitPixel writes a pixel over the given open websocket connection
// established via DialWS, for callers that want to submit and watch
// acknowledgements on the same session rather than using PutPixel's
// fire-and-forget HTTP path.
func (c *Client) SubmitPixel(conn *websocket.Conn, p Pixel) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("canvasclient: encode pixel: %w", err)
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

// DialWS opens a raw websocket connection to the replica's /ws
// endpoint, for callers that need to both submit pixels and watch
// acknowledgements interleaved on one session.
func (c *Client) DialWS(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.wsURL(), nil)
	if err != nil {
		return nil, fmt.Errorf("canvasclient: dial websocket: %w", err)
	}
	return conn, nil
}
