package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Client provides HTTP client functionality to communicate with the devsrv daemon
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// Config holds client configuration
type Config struct {
	BaseURL string
	Timeout time.Duration
	Logger  *slog.Logger // Optional logger for client operations
}

// DefaultConfig returns default client configuration
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://127.0.0.1:8080/api",
		Timeout: 15 * time.Second,
	}
}

// APIError is a non-2xx answer from the daemon. Kind carries the
// supervisor error category, e.g. "NotFound" or "AlreadyRunning".
type APIError struct {
	Status  int
	Kind    string
	Message string
}

func (e *APIError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("%s (%s)", e.Message, e.Kind)
	}
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.Message)
}

// IsKind reports whether err is an APIError of the given kind.
func IsKind(err error, kind string) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.Kind == kind
}

// New creates a new devsrv API client
func New(config Config) *Client {
	def := DefaultConfig()
	if config.BaseURL == "" {
		config.BaseURL = def.BaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = def.Timeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Client{
		baseURL: config.BaseURL,
		logger:  config.Logger,
		client:  &http.Client{Timeout: config.Timeout},
	}
}

// BaseURL returns the API root the client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

// IsReachable checks if the daemon is running and reachable
func (c *Client) IsReachable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/servers", nil)
	if err != nil {
		c.logger.Debug("Failed to create request for reachability check", "error", err)
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("Daemon unreachable", "error", err)
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	c.logger.Debug("Daemon reachability check", "status", resp.StatusCode)
	return resp.StatusCode == http.StatusOK
}

// List returns every server in registration order.
func (c *Client) List(ctx context.Context) ([]ServerStatus, error) {
	var out []ServerStatus
	err := c.do(ctx, http.MethodGet, "/servers", nil, &out)
	return out, err
}

// Get returns one server.
func (c *Client) Get(ctx context.Context, name string) (ServerStatus, error) {
	var out ServerStatus
	err := c.do(ctx, http.MethodGet, serverPath(name, ""), nil, &out)
	return out, err
}

// Create scaffolds a new server.
func (c *Client) Create(ctx context.Context, req CreateRequest) (ServerStatus, error) {
	var out ServerStatus
	err := c.do(ctx, http.MethodPost, "/servers", req, &out)
	return out, err
}

// Add registers an existing entry file.
func (c *Client) Add(ctx context.Context, req AddRequest) (ServerStatus, error) {
	var out ServerStatus
	err := c.do(ctx, http.MethodPost, "/servers", req, &out)
	return out, err
}

// Delete stops and unregisters a server.
func (c *Client) Delete(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodDelete, serverPath(name, ""), nil, nil)
}

// Start starts a server.
func (c *Client) Start(ctx context.Context, name string) (ServerStatus, error) {
	return c.action(ctx, name, "start")
}

// Stop stops a server.
func (c *Client) Stop(ctx context.Context, name string) (ServerStatus, error) {
	return c.action(ctx, name, "stop")
}

// Restart stops and starts a server.
func (c *Client) Restart(ctx context.Context, name string) (ServerStatus, error) {
	return c.action(ctx, name, "restart")
}

func (c *Client) action(ctx context.Context, name, verb string) (ServerStatus, error) {
	c.logger.Debug("server action", "name", name, "action", verb)
	var out ServerStatus
	err := c.do(ctx, http.MethodPost, serverPath(name, verb), nil, &out)
	return out, err
}

// SetMonitoring turns sampling on or off.
func (c *Client) SetMonitoring(ctx context.Context, name string, on bool) (ServerStatus, error) {
	var out ServerStatus
	err := c.do(ctx, http.MethodPost, serverPath(name, "monitor"), map[string]string{"state": onOff(on)}, &out)
	return out, err
}

// SetAutoRestart turns automatic restarts on or off.
func (c *Client) SetAutoRestart(ctx context.Context, name string, on bool) (ServerStatus, error) {
	var out ServerStatus
	err := c.do(ctx, http.MethodPost, serverPath(name, "auto_restart"), map[string]string{"state": onOff(on)}, &out)
	return out, err
}

// Send writes one line to a server's input.
func (c *Client) Send(ctx context.Context, name, text string) error {
	return c.do(ctx, http.MethodPost, serverPath(name, "send"), map[string]string{"text": text}, nil)
}

// Log returns output lines newer than after. With wait > 0 the daemon holds
// the request until a line arrives or wait elapses.
func (c *Client) Log(ctx context.Context, name string, after uint64, wait time.Duration) (LogPage, error) {
	q := url.Values{}
	if after > 0 {
		q.Set("after", strconv.FormatUint(after, 10))
	}
	if wait > 0 {
		q.Set("wait", wait.String())
	}
	p := serverPath(name, "log")
	if len(q) > 0 {
		p += "?" + q.Encode()
	}
	var out LogPage
	err := c.do(ctx, http.MethodGet, p, nil, &out)
	return out, err
}

// Usage samples a running server.
func (c *Client) Usage(ctx context.Context, name string) (Sample, error) {
	var out Sample
	err := c.do(ctx, http.MethodGet, serverPath(name, "usage"), nil, &out)
	return out, err
}

// Path returns a server's entry file.
func (c *Client) Path(ctx context.Context, name string) (string, error) {
	var out struct {
		Path string `json:"path"`
	}
	err := c.do(ctx, http.MethodGet, serverPath(name, "path"), nil, &out)
	return out.Path, err
}

func serverPath(name, verb string) string {
	p := "/servers/" + url.PathEscape(name)
	if verb != "" {
		p += "/" + verb
	}
	return p
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

// do performs HTTP request with common error handling
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		rdr = bytes.NewReader(data)
	}
	u := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, u, rdr)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("HTTP request failed", "error", err, "url", u)
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.handleErrorResponse(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// handleErrorResponse handles HTTP error responses
func (c *Client) handleErrorResponse(resp *http.Response) error {
	var errorResp ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errorResp); err != nil || errorResp.Error == "" {
		c.logger.Debug("Failed to decode error response", "status", resp.StatusCode)
		return &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}
	c.logger.Debug("API request failed", "error", errorResp.Error, "kind", errorResp.Kind, "status", resp.StatusCode)
	return &APIError{Status: resp.StatusCode, Kind: errorResp.Kind, Message: errorResp.Error}
}
