package workspace

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// AccessTokenProvider supplies the upstream bearer token per call, so
// rotated credentials take effect without a client rebuild.
type AccessTokenProvider func(ctx context.Context) (string, error)

// StaticToken wraps a fixed token in an AccessTokenProvider.
func StaticToken(token string) AccessTokenProvider {
	return func(context.Context) (string, error) { return token, nil }
}

type NotionClientOptions struct {
	BaseURL       string
	TokenProvider AccessTokenProvider
	HTTPClient    *http.Client
	APIVersion    string
	UserAgent     string
	PageSize      int
	MaxRetries    int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
}

// HTTPNotionClient implements Client against a Notion-compatible REST API.
// Retries 429 and 5xx responses with exponential backoff capped at
// MaxDelay, honoring Retry-After when present.
type HTTPNotionClient struct {
	baseURL       string
	tokenProvider AccessTokenProvider
	httpClient    *http.Client
	apiVersion    string
	userAgent     string
	pageSize      int
	maxRetries    int
	baseDelay     time.Duration
	maxDelay      time.Duration
}

func NewHTTPNotionClient(opts NotionClientOptions) *HTTPNotionClient {
	c := &HTTPNotionClient{
		baseURL:       strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"),
		tokenProvider: opts.TokenProvider,
		httpClient:    opts.HTTPClient,
		apiVersion:    strings.TrimSpace(opts.APIVersion),
		userAgent:     strings.TrimSpace(opts.UserAgent),
		pageSize:      opts.PageSize,
		maxRetries:    opts.MaxRetries,
		baseDelay:     opts.BaseDelay,
		maxDelay:      opts.MaxDelay,
	}
	if c.baseURL == "" {
		c.baseURL = "https://api.notion.com"
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	if c.apiVersion == "" {
		c.apiVersion = "2022-06-28"
	}
	// The upstream API rejects page sizes above 100.
	if c.pageSize <= 0 || c.pageSize > 100 {
		c.pageSize = 100
	}
	if c.maxRetries <= 0 {
		c.maxRetries = 3
	}
	if c.baseDelay <= 0 {
		c.baseDelay = 100 * time.Millisecond
	}
	if c.maxDelay <= 0 {
		c.maxDelay = 2 * time.Second
	}
	return c
}

func (c *HTTPNotionClient) ListChildren(ctx context.Context, nodeID, cursor string) (*BlockList, error) {
	nodeID = strings.TrimSpace(nodeID)
	if nodeID == "" {
		return nil, fmt.Errorf("%w: node id is required", ErrInvalidInput)
	}
	query := url.Values{}
	query.Set("page_size", strconv.Itoa(c.pageSize))
	if cursor != "" {
		query.Set("start_cursor", cursor)
	}
	path := "/v1/blocks/" + url.PathEscape(nodeID) + "/children?" + query.Encode()

	var out BlockList
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPNotionClient) QueryCollection(ctx context.Context, collectionID, cursor string) (*PageList, error) {
	collectionID = strings.TrimSpace(collectionID)
	if collectionID == "" {
		return nil, fmt.Errorf("%w: collection id is required", ErrInvalidInput)
	}
	body := map[string]any{"page_size": c.pageSize}
	if cursor != "" {
		body["start_cursor"] = cursor
	}
	path := "/v1/databases/" + url.PathEscape(collectionID) + "/query"

	var out PageList
	if err := c.do(ctx, http.MethodPost, path, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPNotionClient) GetPage(ctx context.Context, pageID string) (*Page, error) {
	pageID = strings.TrimSpace(pageID)
	if pageID == "" {
		return nil, fmt.Errorf("%w: page id is required", ErrInvalidInput)
	}
	var out Page
	if err := c.do(ctx, http.MethodGet, "/v1/pages/"+url.PathEscape(pageID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPNotionClient) do(ctx context.Context, method, path string, payload, out any) error {
	if c == nil {
		return fmt.Errorf("nil notion client")
	}
	if c.tokenProvider == nil {
		return fmt.Errorf("token provider is required")
	}
	token, err := c.tokenProvider(ctx)
	if err != nil {
		return err
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("access token is empty")
	}

	var body []byte
	if payload != nil {
		body, err = json.Marshal(payload)
		if err != nil {
			return err
		}
	}

	bo := backoff{wait: c.baseDelay, max: c.maxDelay}
	for attempt := 0; ; attempt++ {
		status, respBody, header, reqErr := c.roundTrip(ctx, method, path, token, body)
		switch {
		case reqErr != nil:
			if attempt >= c.maxRetries {
				return reqErr
			}
		case status >= 200 && status < 300:
			if out == nil {
				return nil
			}
			if err := json.Unmarshal(respBody, out); err != nil {
				return fmt.Errorf("decode upstream response: %w", err)
			}
			return nil
		case status == http.StatusTooManyRequests || status >= 500:
			if attempt >= c.maxRetries {
				return apiErrorFromResponse(status, respBody)
			}
		default:
			return apiErrorFromResponse(status, respBody)
		}
		if err := sleepContext(ctx, bo.next(header.Get("Retry-After"))); err != nil {
			return err
		}
	}
}

func (c *HTTPNotionClient) roundTrip(ctx context.Context, method, path, token string, body []byte) (int, []byte, http.Header, error) {
	var reqBody io.Reader
	if body != nil {
		reqBody = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return 0, nil, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Notion-Version", c.apiVersion)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, nil, err
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, nil, err
	}
	return resp.StatusCode, respBody, resp.Header, nil
}

func apiErrorFromResponse(statusCode int, respBody []byte) error {
	apiErr := &APIError{
		StatusCode: statusCode,
		Message:    strings.TrimSpace(string(respBody)),
	}
	var parsed struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if json.Unmarshal(respBody, &parsed) == nil {
		if parsed.Code != "" {
			apiErr.Code = parsed.Code
		}
		if strings.TrimSpace(parsed.Message) != "" {
			apiErr.Message = strings.TrimSpace(parsed.Message)
		}
	}
	return apiErr
}

// backoff produces doubling delays capped at max. A Retry-After hint
// from the server overrides the computed delay without advancing it.
type backoff struct {
	wait time.Duration
	max  time.Duration
}

func (b *backoff) next(retryAfterHeader string) time.Duration {
	if hinted := parseRetryAfterSeconds(retryAfterHeader); hinted > 0 {
		if hinted > b.max {
			return b.max
		}
		return hinted
	}
	d := b.wait
	if d > b.max {
		d = b.max
	}
	b.wait *= 2
	return d
}

func parseRetryAfterSeconds(header string) time.Duration {
	seconds, err := strconv.Atoi(strings.TrimSpace(header))
	if err != nil || seconds <= 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
