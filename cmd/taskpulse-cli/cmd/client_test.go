package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

func TestAPIClientSendsAuthAndCorrelationHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer secret-token" {
			t.Errorf("expected bearer header, got %q", got)
		}
		if got := r.Header.Get("X-Correlation-Id"); !strings.HasPrefix(got, "cli_") {
			t.Errorf("expected cli correlation id, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer server.Close()

	client := NewAPIClient(server.URL+"/", "secret-token")
	if err := client.Health(context.Background()); err != nil {
		t.Fatalf("health failed: %v", err)
	}
}

func TestAPIClientRetriesTransientFailure(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		call := atomic.AddInt32(&calls, 1)
		if call == 1 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"code":"unavailable","message":"retry"}`))
			return
		}
		if r.URL.Path != "/v1/monitor" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"running":true,"interval":"45s","tracked":["col_a"],"cacheSize":3}`))
	}))
	defer server.Close()

	client := NewAPIClient(server.URL, "token")
	client.baseDelay = 1
	status, err := client.MonitorStatus(context.Background())
	if err != nil {
		t.Fatalf("expected retry to recover from transient 503, got error: %v", err)
	}
	if !status.Running {
		t.Fatalf("expected running status")
	}
	if status.CacheSize != 3 {
		t.Fatalf("expected cache size 3, got %d", status.CacheSize)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("expected exactly 2 calls (1 retry), got %d", atomic.LoadInt32(&calls))
	}
}

func TestAPIClientRetriesRateLimitedRequests(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer server.Close()

	client := NewAPIClient(server.URL, "token")
	client.baseDelay = 1
	if err := client.Health(context.Background()); err != nil {
		t.Fatalf("expected 429 to be retried, got error: %v", err)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("expected exactly 2 calls, got %d", atomic.LoadInt32(&calls))
	}
}

func TestAPIClientMapsErrorPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"code":"not_found","message":"workspace root not found"}`))
	}))
	defer server.Close()

	client := NewAPIClient(server.URL, "token")
	_, err := client.Discover(context.Background(), "root_missing", "")
	if err == nil {
		t.Fatal("expected an error for 404")
	}
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected *HTTPError, got %T: %v", err, err)
	}
	if httpErr.StatusCode != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", httpErr.StatusCode)
	}
	if httpErr.Code != "not_found" {
		t.Fatalf("expected code not_found, got %q", httpErr.Code)
	}
	if httpErr.Message != "workspace root not found" {
		t.Fatalf("expected server message, got %q", httpErr.Message)
	}
}

func TestAPIClientSetTrackedSendsBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/v1/monitor/tracked" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body struct {
			Tracked []string `json:"tracked"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if len(body.Tracked) != 2 || body.Tracked[0] != "col_a" || body.Tracked[1] != "col_b" {
			t.Errorf("unexpected tracked set: %v", body.Tracked)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"running":false,"interval":"45s","tracked":["col_a","col_b"],"cacheSize":0}`))
	}))
	defer server.Close()

	client := NewAPIClient(server.URL, "token")
	status, err := client.SetTracked(context.Background(), []string{"col_a", "col_b"})
	if err != nil {
		t.Fatalf("set tracked failed: %v", err)
	}
	if len(status.Tracked) != 2 {
		t.Fatalf("expected two tracked collections, got %v", status.Tracked)
	}
}

func TestWebsocketURLSwitchesScheme(t *testing.T) {
	cases := map[string]string{
		"http://127.0.0.1:8080":     "ws://127.0.0.1:8080/v1/feed",
		"https://pulse.example.com": "wss://pulse.example.com/v1/feed",
	}
	for base, want := range cases {
		got, err := NewAPIClient(base, "").websocketURL("/v1/feed")
		if err != nil {
			t.Fatalf("websocket url for %s: %v", base, err)
		}
		if got != want {
			t.Fatalf("expected %s, got %s", want, got)
		}
	}
}
