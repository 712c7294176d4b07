package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/taskpulse/taskpulse/internal/monitor"
	"github.com/taskpulse/taskpulse/internal/workspace"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// HTTPError carries the server's structured error payload.
type HTTPError struct {
	StatusCode int
	Code       string
	Message    string

	retryAfter time.Duration
}

func (e *HTTPError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("server responded %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("server responded %d %s: %s", e.StatusCode, e.Code, e.Message)
}

// SnapshotList is the /v1/monitor/snapshots response shape.
type SnapshotList struct {
	Count     int                `json:"count"`
	Snapshots []monitor.Snapshot `json:"snapshots"`
}

type APIClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

func NewAPIClient(baseURL, token string) *APIClient {
	c := &APIClient{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:      strings.TrimSpace(token),
		httpClient: &http.Client{Timeout: 60 * time.Second},
		maxRetries: 2,
		baseDelay:  100 * time.Millisecond,
		maxDelay:   2 * time.Second,
	}
	if c.baseURL == "" {
		c.baseURL = "http://127.0.0.1:8080"
	}
	return c
}

func (c *APIClient) Health(ctx context.Context) error {
	return c.call(ctx, http.MethodGet, "/health", nil, nil)
}

func (c *APIClient) Discover(ctx context.Context, rootID, userEmail string) (workspace.DiscoveryResult, error) {
	q := url.Values{}
	if strings.TrimSpace(userEmail) != "" {
		q.Set("user", strings.TrimSpace(userEmail))
	}
	path := fmt.Sprintf("/v1/workspaces/%s/discover", url.PathEscape(strings.TrimSpace(rootID)))
	if encoded := q.Encode(); encoded != "" {
		path += "?" + encoded
	}
	var out workspace.DiscoveryResult
	err := c.call(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

func (c *APIClient) MonitorStatus(ctx context.Context) (monitor.MonitorStatus, error) {
	var out monitor.MonitorStatus
	err := c.call(ctx, http.MethodGet, "/v1/monitor", nil, &out)
	return out, err
}

func (c *APIClient) StartMonitor(ctx context.Context) (monitor.MonitorStatus, error) {
	var out monitor.MonitorStatus
	err := c.call(ctx, http.MethodPost, "/v1/monitor/start", nil, &out)
	return out, err
}

func (c *APIClient) StopMonitor(ctx context.Context) (monitor.MonitorStatus, error) {
	var out monitor.MonitorStatus
	err := c.call(ctx, http.MethodPost, "/v1/monitor/stop", nil, &out)
	return out, err
}

func (c *APIClient) Tick(ctx context.Context) (monitor.TickResult, error) {
	var out monitor.TickResult
	err := c.call(ctx, http.MethodPost, "/v1/monitor/tick", nil, &out)
	return out, err
}

func (c *APIClient) ResetSnapshots(ctx context.Context) error {
	return c.call(ctx, http.MethodPost, "/v1/monitor/reset", nil, nil)
}

func (c *APIClient) SetTracked(ctx context.Context, collectionIDs []string) (monitor.MonitorStatus, error) {
	body := map[string]any{"tracked": collectionIDs}
	var out monitor.MonitorStatus
	err := c.call(ctx, http.MethodPut, "/v1/monitor/tracked", body, &out)
	return out, err
}

func (c *APIClient) Snapshots(ctx context.Context) (SnapshotList, error) {
	var out SnapshotList
	err := c.call(ctx, http.MethodGet, "/v1/monitor/snapshots", nil, &out)
	return out, err
}

// StreamFeed subscribes to the websocket feed and invokes handle for
// every change event until the context is canceled.
func (c *APIClient) StreamFeed(ctx context.Context, handle func(monitor.ChangeEvent)) error {
	feedURL, err := c.websocketURL("/v1/feed")
	if err != nil {
		return err
	}
	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}
	conn, _, err := websocket.Dial(ctx, feedURL, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return err
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	for {
		var event monitor.ChangeEvent
		if err := wsjson.Read(ctx, conn, &event); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		handle(event)
	}
}

func (c *APIClient) websocketURL(path string) (string, error) {
	parsed, err := url.Parse(c.baseURL)
	if err != nil {
		return "", err
	}
	switch parsed.Scheme {
	case "http":
		parsed.Scheme = "ws"
	case "https":
		parsed.Scheme = "wss"
	}
	parsed.Path = strings.TrimRight(parsed.Path, "/") + path
	return parsed.String(), nil
}

// call sends one API request, retrying connection failures, 429s, and
// 5xx responses with doubling delays. A Retry-After header, when the
// server sends one, takes precedence over the computed delay.
func (c *APIClient) call(ctx context.Context, method, requestPath string, body, out any) error {
	var payload []byte
	if body != nil {
		marshaled, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = marshaled
	}

	delay := c.baseDelay
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}
	for attempt := 0; ; attempt++ {
		err := c.send(ctx, method, requestPath, payload, out)
		if err == nil || attempt >= c.maxRetries || !retryable(err) {
			return err
		}
		wait := delay
		if hint := retryAfterHint(err); hint > 0 {
			wait = hint
		}
		if c.maxDelay > 0 && wait > c.maxDelay {
			wait = c.maxDelay
		}
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
		delay *= 2
	}
}

func (c *APIClient) send(ctx context.Context, method, requestPath string, payload []byte, out any) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+requestPath, body)
	if err != nil {
		return err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("X-Correlation-Id", correlationID())
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil || len(data) == 0 {
			return nil
		}
		return json.Unmarshal(data, out)
	}
	return newHTTPError(resp, data)
}

func newHTTPError(resp *http.Response, body []byte) *HTTPError {
	httpErr := &HTTPError{
		StatusCode: resp.StatusCode,
		Message:    strings.TrimSpace(string(body)),
	}
	if seconds, err := strconv.Atoi(strings.TrimSpace(resp.Header.Get("Retry-After"))); err == nil && seconds > 0 {
		httpErr.retryAfter = time.Duration(seconds) * time.Second
	}
	var parsed struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &parsed) == nil {
		httpErr.Code = parsed.Code
		if parsed.Message != "" {
			httpErr.Message = parsed.Message
		}
	}
	return httpErr
}

// retryable reports whether a request is worth repeating: transport
// failures, rate limits, and server-side errors.
func retryable(err error) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == http.StatusTooManyRequests || httpErr.StatusCode >= 500
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

func retryAfterHint(err error) time.Duration {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.retryAfter
	}
	return 0
}

func correlationID() string {
	return fmt.Sprintf("cli_%d", time.Now().UnixNano())
}
