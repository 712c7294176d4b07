package httpapi

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/taskpulse/taskpulse/internal/monitor"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const (
	feedSubscriberBuffer = 16
	feedWriteTimeout     = 5 * time.Second
)

// FeedHub broadcasts change events to websocket subscribers. It
// implements monitor.Dispatcher, so the monitor's fanout can treat the
// live feed like any other notification target.
type FeedHub struct {
	log zerolog.Logger

	mu          sync.Mutex
	subscribers map[*feedSubscriber]struct{}
}

type feedSubscriber struct {
	events    chan monitor.ChangeEvent
	closeSlow func()
}

func NewFeedHub(log zerolog.Logger) *FeedHub {
	return &FeedHub{
		log:         log,
		subscribers: make(map[*feedSubscriber]struct{}),
	}
}

// Dispatch fans the event out to every connected subscriber. A
// subscriber whose buffer is full is disconnected rather than allowed
// to stall the tick.
func (h *FeedHub) Dispatch(_ context.Context, event monitor.ChangeEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subscribers {
		select {
		case sub.events <- event:
		default:
			go sub.closeSlow()
		}
	}
	return nil
}

// SubscriberCount reports the number of live feed connections.
func (h *FeedHub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

func (h *FeedHub) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.CloseNow()

	sub := &feedSubscriber{
		events: make(chan monitor.ChangeEvent, feedSubscriberBuffer),
		closeSlow: func() {
			_ = conn.Close(websocket.StatusPolicyViolation, "subscriber too slow to keep up")
		},
	}
	h.add(sub)
	defer h.remove(sub)
	h.log.Debug().Int("subscribers", h.SubscriberCount()).Msg("feed subscriber connected")

	// The feed is write-only; CloseRead surfaces client disconnects
	// through the returned context.
	ctx := conn.CloseRead(r.Context())
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-sub.events:
			writeCtx, cancel := context.WithTimeout(ctx, feedWriteTimeout)
			err := wsjson.Write(writeCtx, conn, event)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func (h *FeedHub) add(sub *feedSubscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subscribers[sub] = struct{}{}
}

func (h *FeedHub) remove(sub *feedSubscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subscribers, sub)
}
