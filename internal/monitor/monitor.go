package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/taskpulse/taskpulse/internal/workspace"
)

const (
	defaultInterval    = 45 * time.Second
	defaultTickTimeout = 30 * time.Second
)

// CollectionReader is the slice of the workspace engine the monitor
// needs: an unfiltered read that absorbs failures into emptiness.
type CollectionReader interface {
	ReadAll(ctx context.Context, collectionID string) []workspace.Record
}

type MonitorOptions struct {
	Reader     CollectionReader
	Cache      *Cache
	Dispatcher Dispatcher
	Tracked    []string
	// Interval is the wall-clock tick period.
	Interval time.Duration
	// TickTimeout bounds one tick's reads and dispatches, so a stalled
	// upstream call cannot wedge the loop across intervals.
	TickTimeout time.Duration
	Log         zerolog.Logger
}

// TickStats accumulates over the monitor's lifetime.
type TickStats struct {
	Ticks            int64     `json:"ticks"`
	Changes          int64     `json:"changes"`
	DispatchFailures int64     `json:"dispatchFailures"`
	LastTickAt       time.Time `json:"lastTickAt"`
	LastTickMillis   int64     `json:"lastTickMillis"`
}

// TickResult reports what a single tick did.
type TickResult struct {
	Collections      int           `json:"collections"`
	Records          int           `json:"records"`
	Changes          int           `json:"changes"`
	DispatchFailures int           `json:"dispatchFailures"`
	Duration         time.Duration `json:"-"`
}

// MonitorStatus is the introspection shape served by the control API.
type MonitorStatus struct {
	Running   bool      `json:"running"`
	Interval  string    `json:"interval"`
	Tracked   []string  `json:"tracked"`
	CacheSize int       `json:"cacheSize"`
	Stats     TickStats `json:"stats"`
}

// Monitor re-reads tracked collections on a fixed interval and emits one
// ChangeEvent per observed label transition.
//
// Ticks never overlap: a token gate serializes the interval loop and
// manual Tick calls. The cache commit is unconditional, so a transition
// whose dispatch failed is not redetected on the next tick.
type Monitor struct {
	reader      CollectionReader
	cache       *Cache
	dispatcher  Dispatcher
	interval    time.Duration
	tickTimeout time.Duration
	log         zerolog.Logger

	mu      sync.Mutex
	tracked []string
	running bool
	stopCh  chan struct{}
	stats   TickStats

	wg       sync.WaitGroup
	tickGate chan struct{}
}

func NewMonitor(opts MonitorOptions) (*Monitor, error) {
	if opts.Reader == nil {
		return nil, fmt.Errorf("%w: collection reader is required", ErrInvalidInput)
	}
	if opts.Cache == nil {
		return nil, fmt.Errorf("%w: status cache is required", ErrInvalidInput)
	}
	if opts.Dispatcher == nil {
		return nil, fmt.Errorf("%w: dispatcher is required", ErrInvalidInput)
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	tickTimeout := opts.TickTimeout
	if tickTimeout <= 0 {
		tickTimeout = defaultTickTimeout
	}
	return &Monitor{
		reader:      opts.Reader,
		cache:       opts.Cache,
		dispatcher:  opts.Dispatcher,
		interval:    interval,
		tickTimeout: tickTimeout,
		log:         opts.Log,
		tracked:     append([]string(nil), opts.Tracked...),
		tickGate:    make(chan struct{}, 1),
	}, nil
}

// Start launches the interval loop. Starting a running monitor is a
// no-op beyond a log notice.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		m.log.Info().Msg("monitor already running, ignoring start")
		return
	}
	m.running = true
	m.stopCh = make(chan struct{})
	m.wg.Add(1)
	go m.run(m.stopCh)
	m.log.Info().Dur("interval", m.interval).Int("tracked", len(m.tracked)).Msg("monitor started")
}

// Stop halts the loop and waits for any in-flight tick, including a
// manually triggered one, before returning. Stopping a stopped monitor
// is a no-op.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stopCh)
	m.mu.Unlock()

	m.wg.Wait()
	m.tickGate <- struct{}{}
	<-m.tickGate
	m.log.Info().Msg("monitor stopped")
}

func (m *Monitor) run(stopCh chan struct{}) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			if _, err := m.Tick(context.Background()); err != nil {
				if errors.Is(err, ErrTickInFlight) {
					m.log.Debug().Msg("previous tick still in flight, skipping interval")
					continue
				}
				m.log.Warn().Err(err).Msg("tick failed")
			}
		}
	}
}

// Running reports whether the interval loop is active.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// SetTracked atomically replaces the tracked collection set. Takes
// effect on the next tick.
func (m *Monitor) SetTracked(collectionIDs []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tracked = append([]string(nil), collectionIDs...)
	m.log.Info().Int("tracked", len(m.tracked)).Msg("tracked collections updated")
}

// Status snapshots the monitor's introspection view.
func (m *Monitor) Status() MonitorStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return MonitorStatus{
		Running:   m.running,
		Interval:  m.interval.String(),
		Tracked:   append([]string(nil), m.tracked...),
		CacheSize: m.cache.Len(),
		Stats:     m.stats,
	}
}

// Tick runs one read/diff/notify pass. A call colliding with an
// in-flight tick returns ErrTickInFlight instead of running
// concurrently.
func (m *Monitor) Tick(ctx context.Context) (TickResult, error) {
	select {
	case m.tickGate <- struct{}{}:
	default:
		return TickResult{}, ErrTickInFlight
	}
	defer func() { <-m.tickGate }()

	started := time.Now()
	ctx, cancel := context.WithTimeout(ctx, m.tickTimeout)
	defer cancel()

	m.mu.Lock()
	tracked := append([]string(nil), m.tracked...)
	m.mu.Unlock()

	var result TickResult
	for _, collectionID := range tracked {
		records := m.reader.ReadAll(ctx, collectionID)
		if len(records) == 0 {
			// Empty and unreadable are indistinguishable here; either
			// way the tick must not mutate the cache for this
			// collection.
			m.log.Debug().Str("collection", collectionID).Msg("no records this tick")
			continue
		}
		result.Collections++
		result.Records += len(records)

		now := time.Now().UTC()
		for i := range records {
			record := &records[i]
			current := Snapshot{
				EntityID:  record.ID,
				Title:     record.Title,
				RawLabel:  record.Status.RawLabel,
				Bucket:    record.Status.Bucket,
				CheckedAt: now,
			}

			previous, seen := m.cache.Lookup(record.ID)
			if seen && previous.RawLabel != current.RawLabel {
				event := m.buildEvent(collectionID, previous, record, now)
				result.Changes++
				if err := m.dispatcher.Dispatch(ctx, event); err != nil {
					result.DispatchFailures++
					m.log.Error().Err(err).
						Str("entity", record.ID).
						Str("from", previous.RawLabel).
						Str("to", current.RawLabel).
						Msg("change notification failed")
				} else {
					m.log.Info().
						Str("entity", record.ID).
						Str("from", previous.RawLabel).
						Str("to", current.RawLabel).
						Msg("status change dispatched")
				}
			}

			// Committed regardless of dispatch outcome; a failed
			// delivery must not re-fire on the next tick.
			m.cache.Commit(current)
		}
	}

	if err := m.cache.Flush(); err != nil {
		m.log.Warn().Err(err).Msg("snapshot flush failed")
	}

	result.Duration = time.Since(started)
	m.mu.Lock()
	m.stats.Ticks++
	m.stats.Changes += int64(result.Changes)
	m.stats.DispatchFailures += int64(result.DispatchFailures)
	m.stats.LastTickAt = started.UTC()
	m.stats.LastTickMillis = result.Duration.Milliseconds()
	m.mu.Unlock()

	return result, nil
}

func (m *Monitor) buildEvent(collectionID string, previous Snapshot, record *workspace.Record, now time.Time) ChangeEvent {
	owner := record.OwnerEmail
	if owner == "" && len(record.PeopleEmails) > 0 {
		owner = record.PeopleEmails[0]
	}
	project := record.Project
	if project == "" {
		project = "Unknown"
	}
	return ChangeEvent{
		ID:             uuid.NewString(),
		EntityID:       record.ID,
		EntityTitle:    record.Title,
		CollectionID:   collectionID,
		PreviousLabel:  previous.RawLabel,
		CurrentLabel:   record.Status.RawLabel,
		PreviousBucket: previous.Bucket,
		CurrentBucket:  record.Status.Bucket,
		OwnerEmail:     owner,
		Project:        project,
		Due:            record.Due,
		Priority:       record.Priority,
		URL:            record.URL,
		DetectedAt:     now,
	}
}
