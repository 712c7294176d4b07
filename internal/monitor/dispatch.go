package monitor

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/taskpulse/taskpulse/internal/workspace"
)

// ChangeEvent describes one detected status transition. It is consumed
// once by a dispatcher and never persisted.
type ChangeEvent struct {
	ID             string           `json:"id"`
	EntityID       string           `json:"entityId"`
	EntityTitle    string           `json:"entityTitle"`
	CollectionID   string           `json:"collectionId"`
	PreviousLabel  string           `json:"previousLabel"`
	CurrentLabel   string           `json:"currentLabel"`
	PreviousBucket workspace.Bucket `json:"previousBucket"`
	CurrentBucket  workspace.Bucket `json:"currentBucket"`
	OwnerEmail     string           `json:"ownerEmail,omitempty"`
	Project        string           `json:"project"`
	Due            string           `json:"due,omitempty"`
	Priority       string           `json:"priority,omitempty"`
	URL            string           `json:"url,omitempty"`
	DetectedAt     time.Time        `json:"detectedAt"`
}

// Dispatcher delivers change events. Implementations own formatting and
// transport; the monitor only cares about success or failure.
type Dispatcher interface {
	Dispatch(ctx context.Context, event ChangeEvent) error
}

// DispatcherFunc adapts a function to the Dispatcher interface.
type DispatcherFunc func(ctx context.Context, event ChangeEvent) error

func (f DispatcherFunc) Dispatch(ctx context.Context, event ChangeEvent) error {
	return f(ctx, event)
}

type WebhookDispatcherOptions struct {
	URL        string
	Secret     string
	HTTPClient *http.Client
	UserAgent  string
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// WebhookDispatcher POSTs events as JSON to a configured endpoint,
// signing each request with HMAC-SHA256 over timestamp and body so the
// receiver can authenticate and replay-guard deliveries. 429 and 5xx
// responses are retried with capped exponential backoff.
type WebhookDispatcher struct {
	url        string
	secret     string
	httpClient *http.Client
	userAgent  string
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

func NewWebhookDispatcher(opts WebhookDispatcherOptions) (*WebhookDispatcher, error) {
	endpoint := strings.TrimSpace(opts.URL)
	if endpoint == "" {
		return nil, fmt.Errorf("%w: webhook url is required", ErrInvalidInput)
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 2
	}
	baseDelay := opts.BaseDelay
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}
	maxDelay := opts.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 2 * time.Second
	}
	return &WebhookDispatcher{
		url:        endpoint,
		secret:     opts.Secret,
		httpClient: httpClient,
		userAgent:  strings.TrimSpace(opts.UserAgent),
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		maxDelay:   maxDelay,
	}, nil
}

func (d *WebhookDispatcher) Dispatch(ctx context.Context, event ChangeEvent) error {
	if d == nil {
		return fmt.Errorf("webhook dispatcher is nil")
	}
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		timestamp := time.Now().UTC().Format(time.RFC3339)
		req.Header.Set("X-Taskpulse-Timestamp", timestamp)
		if d.secret != "" {
			req.Header.Set("X-Taskpulse-Signature", signPayload(d.secret, timestamp, body))
		}
		if d.userAgent != "" {
			req.Header.Set("User-Agent", d.userAgent)
		}

		resp, err := d.httpClient.Do(req)
		if err != nil {
			if attempt < d.maxRetries {
				if waitErr := d.wait(ctx, attempt+1, ""); waitErr != nil {
					return waitErr
				}
				continue
			}
			return err
		}

		respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
			return nil
		}

		retryable := resp.StatusCode == http.StatusTooManyRequests ||
			(resp.StatusCode >= 500 && resp.StatusCode <= 599)
		if retryable && attempt < d.maxRetries {
			if waitErr := d.wait(ctx, attempt+1, resp.Header.Get("Retry-After")); waitErr != nil {
				return waitErr
			}
			continue
		}
		if readErr != nil {
			return fmt.Errorf("webhook delivery failed: status=%d", resp.StatusCode)
		}
		return fmt.Errorf("webhook delivery failed: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
}

func (d *WebhookDispatcher) wait(ctx context.Context, attempt int, retryAfterHeader string) error {
	delay := d.baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= d.maxDelay {
			delay = d.maxDelay
			break
		}
	}
	if header := strings.TrimSpace(retryAfterHeader); header != "" {
		if seconds, err := strconv.Atoi(header); err == nil && seconds > 0 {
			delay = time.Duration(seconds) * time.Second
			if delay > d.maxDelay {
				delay = d.maxDelay
			}
		}
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// signPayload computes the hex HMAC-SHA256 of timestamp, a newline, and
// the raw body. Receivers recompute the same digest to verify.
func signPayload(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(timestamp))
	_, _ = mac.Write([]byte("\n"))
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// FanoutDispatcher delivers each event to every target, attempting all of
// them even after a failure and reporting the failures joined.
type FanoutDispatcher struct {
	targets []Dispatcher
	log     zerolog.Logger
}

func NewFanoutDispatcher(log zerolog.Logger, targets ...Dispatcher) *FanoutDispatcher {
	kept := make([]Dispatcher, 0, len(targets))
	for _, target := range targets {
		if target != nil {
			kept = append(kept, target)
		}
	}
	return &FanoutDispatcher{targets: kept, log: log}
}

func (f *FanoutDispatcher) Dispatch(ctx context.Context, event ChangeEvent) error {
	var errs []error
	for _, target := range f.targets {
		if err := target.Dispatch(ctx, event); err != nil {
			f.log.Warn().Err(err).Str("event", event.ID).Msg("dispatch target failed")
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("dispatch failed for %d of %d targets: %w", len(errs), len(f.targets), errs[0])
	}
	return nil
}
