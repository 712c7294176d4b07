// Package httpapi exposes the discovery engine and the status monitor
// over a small authenticated JSON control plane, plus a websocket feed
// of change events.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/taskpulse/taskpulse/internal/monitor"
	"github.com/taskpulse/taskpulse/internal/workspace"
)

// WorkspaceDiscoverer is the slice of the workspace engine the API
// serves.
type WorkspaceDiscoverer interface {
	Discover(ctx context.Context, rootID, userEmail string) (*workspace.DiscoveryResult, error)
}

type ServerOptions struct {
	Discoverer WorkspaceDiscoverer
	Monitor    *monitor.Monitor
	Cache      *monitor.Cache
	Feed       *FeedHub

	// APIToken guards every /v1 route. Empty disables auth.
	APIToken        string
	RateLimitMax    int
	RateLimitWindow time.Duration
	MaxBodyBytes    int64
	Log             zerolog.Logger
}

type Server struct {
	discoverer   WorkspaceDiscoverer
	monitor      *monitor.Monitor
	cache        *monitor.Cache
	feed         *FeedHub
	apiToken     string
	maxBodyBytes int64
	throttle     *throttle
	log          zerolog.Logger
}

func NewServer(opts ServerOptions) *Server {
	if opts.RateLimitWindow <= 0 {
		opts.RateLimitWindow = time.Minute
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}
	srv := &Server{
		discoverer:   opts.Discoverer,
		monitor:      opts.Monitor,
		cache:        opts.Cache,
		feed:         opts.Feed,
		apiToken:     opts.APIToken,
		maxBodyBytes: opts.MaxBodyBytes,
		log:          opts.Log,
	}
	if opts.RateLimitMax > 0 {
		srv.throttle = newThrottle(opts.RateLimitMax, opts.RateLimitWindow)
	}
	return srv
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/health" && r.Method == http.MethodGet {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}

	correlationID := strings.TrimSpace(r.Header.Get("X-Correlation-Id"))
	if correlationID == "" {
		correlationID = uuid.NewString()
	}

	if denial := authorizeRequest(r, s.apiToken); denial != nil {
		writeError(w, denial.status, denial.code, denial.reason, correlationID)
		return
	}

	if s.throttle != nil {
		admitted, retryIn := s.throttle.admit(clientKey(r), time.Now().UTC())
		if !admitted {
			seconds := int(math.Ceil(retryIn.Seconds()))
			if seconds < 1 {
				seconds = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(seconds))
			writeError(w, http.StatusTooManyRequests, "rate_limited", "request rate above configured limit", correlationID)
			return
		}
	}

	s.route(w, r, correlationID)
}

func (s *Server) route(w http.ResponseWriter, r *http.Request, correlationID string) {
	if r.Method == http.MethodGet {
		if rest, ok := strings.CutPrefix(r.URL.Path, "/v1/workspaces/"); ok {
			if rootID, matched := strings.CutSuffix(rest, "/discover"); matched && !strings.Contains(rootID, "/") {
				s.handleDiscover(w, r, rootID, correlationID)
				return
			}
		}
	}

	switch r.Method + " " + r.URL.Path {
	case "GET /v1/feed":
		s.handleFeed(w, r, correlationID)
	case "GET /v1/monitor":
		writeJSON(w, http.StatusOK, s.monitor.Status())
	case "POST /v1/monitor/start":
		s.monitor.Start()
		writeJSON(w, http.StatusOK, s.monitor.Status())
	case "POST /v1/monitor/stop":
		s.monitor.Stop()
		writeJSON(w, http.StatusOK, s.monitor.Status())
	case "POST /v1/monitor/tick":
		s.handleTick(w, r, correlationID)
	case "POST /v1/monitor/reset":
		s.handleReset(w, correlationID)
	case "GET /v1/monitor/snapshots":
		s.handleSnapshots(w)
	case "PUT /v1/monitor/tracked":
		s.handleSetTracked(w, r, correlationID)
	default:
		writeError(w, http.StatusNotFound, "not_found", "no such route", correlationID)
	}
}

func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request, rootID, correlationID string) {
	userEmail := strings.TrimSpace(r.URL.Query().Get("user"))
	started := time.Now()
	result, err := s.discoverer.Discover(r.Context(), rootID, userEmail)
	if err != nil {
		switch {
		case errors.Is(err, workspace.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, "bad_request", err.Error(), correlationID)
		case errors.Is(err, workspace.ErrNotFound):
			writeError(w, http.StatusNotFound, "not_found", err.Error(), correlationID)
		case errors.Is(err, workspace.ErrUnauthorized):
			writeError(w, http.StatusBadGateway, "upstream_unauthorized", err.Error(), correlationID)
		default:
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error(), correlationID)
		}
		return
	}
	s.log.Info().
		Str("root", rootID).
		Str("user", userEmail).
		Dur("took", time.Since(started)).
		Str("correlationId", correlationID).
		Msg("discovery served")
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleTick(w http.ResponseWriter, r *http.Request, correlationID string) {
	result, err := s.monitor.Tick(r.Context())
	if err != nil {
		if errors.Is(err, monitor.ErrTickInFlight) {
			writeError(w, http.StatusConflict, "tick_in_flight", "a tick is already running", correlationID)
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error(), correlationID)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleReset(w http.ResponseWriter, correlationID string) {
	if err := s.cache.Reset(); err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error(), correlationID)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "snapshots": s.cache.Len()})
}

func (s *Server) handleSnapshots(w http.ResponseWriter) {
	snapshots := s.cache.Snapshots()
	writeJSON(w, http.StatusOK, map[string]any{
		"count":     len(snapshots),
		"snapshots": snapshots,
	})
}

func (s *Server) handleSetTracked(w http.ResponseWriter, r *http.Request, correlationID string) {
	var req struct {
		Tracked []string `json:"tracked"`
	}
	if !s.decodeBody(w, r, correlationID, &req) {
		return
	}
	tracked := make([]string, 0, len(req.Tracked))
	for _, id := range req.Tracked {
		if trimmed := strings.TrimSpace(id); trimmed != "" {
			tracked = append(tracked, trimmed)
		}
	}
	s.monitor.SetTracked(tracked)
	writeJSON(w, http.StatusOK, s.monitor.Status())
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request, correlationID string) {
	if s.feed == nil {
		writeError(w, http.StatusNotFound, "not_found", "event feed not enabled", correlationID)
		return
	}
	s.feed.handleSubscribe(w, r)
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// decodeBody parses a JSON request body into dst, enforcing the
// configured size cap. It writes the error response itself and reports
// whether the caller should proceed.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, correlationID string, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBodyBytes)
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "request body exceeds size limit", correlationID)
	} else {
		writeError(w, http.StatusBadRequest, "bad_request", "malformed json body", correlationID)
	}
	return false
}

type errorBody struct {
	Code          string `json:"code"`
	Message       string `json:"message"`
	CorrelationID string `json:"correlationId"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message, correlationID string) {
	writeJSON(w, status, errorBody{Code: code, Message: message, CorrelationID: correlationID})
}

// throttle is a fixed-window request counter keyed by client address.
type throttle struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	buckets map[string]*throttleBucket
}

type throttleBucket struct {
	windowEnd time.Time
	hits      int
}

func newThrottle(limit int, window time.Duration) *throttle {
	return &throttle{
		limit:   limit,
		window:  window,
		buckets: make(map[string]*throttleBucket),
	}
}

// admit records one request for key. When the budget is exhausted it
// reports false plus the time until the window resets.
func (t *throttle) admit(key string, now time.Time) (bool, time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	bucket := t.buckets[key]
	if bucket == nil || !now.Before(bucket.windowEnd) {
		t.buckets[key] = &throttleBucket{windowEnd: now.Add(t.window), hits: 1}
		return true, 0
	}
	if bucket.hits >= t.limit {
		return false, bucket.windowEnd.Sub(now)
	}
	bucket.hits++
	return true, 0
}
