package httpapi

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taskpulse/taskpulse/internal/monitor"
	"github.com/taskpulse/taskpulse/internal/workspace"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

func feedURL(ts string) string {
	return "ws" + strings.TrimPrefix(ts, "http") + "/v1/feed"
}

func TestFeedStreamsDispatchedEvents(t *testing.T) {
	ts, fixture := newTestServer(t, ServerOptions{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, feedURL(ts.URL)+"?token="+testToken, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	require.Eventually(t, func() bool {
		return fixture.feed.SubscriberCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	event := monitor.ChangeEvent{
		ID:             "evt_42",
		EntityID:       "r1",
		EntityTitle:    "Ship the edit queue",
		PreviousLabel:  "In Progress",
		CurrentLabel:   "Done",
		PreviousBucket: workspace.BucketInProgress,
		CurrentBucket:  workspace.BucketCompleted,
		DetectedAt:     time.Now().UTC(),
	}
	require.NoError(t, fixture.feed.Dispatch(ctx, event))

	var got monitor.ChangeEvent
	require.NoError(t, wsjson.Read(ctx, conn, &got))
	assert.Equal(t, "evt_42", got.ID)
	assert.Equal(t, "In Progress", got.PreviousLabel)
	assert.Equal(t, "Done", got.CurrentLabel)
	assert.Equal(t, workspace.BucketCompleted, got.CurrentBucket)
}

func TestFeedAcceptsBearerHeader(t *testing.T) {
	ts, fixture := newTestServer(t, ServerOptions{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, feedURL(ts.URL), &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": []string{"Bearer " + testToken}},
	})
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	require.Eventually(t, func() bool {
		return fixture.feed.SubscriberCount() == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestFeedRejectsMissingToken(t *testing.T) {
	ts, _ := newTestServer(t, ServerOptions{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, resp, err := websocket.Dial(ctx, feedURL(ts.URL), nil)
	require.Error(t, err)
	if conn != nil {
		conn.CloseNow()
	}
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestFeedRemovesDisconnectedSubscribers(t *testing.T) {
	ts, fixture := newTestServer(t, ServerOptions{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, feedURL(ts.URL)+"?token="+testToken, nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return fixture.feed.SubscriberCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, ""))
	require.Eventually(t, func() bool {
		return fixture.feed.SubscriberCount() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestFeedDispatchWithoutSubscribersIsNoop(t *testing.T) {
	_, fixture := newTestServer(t, ServerOptions{})
	require.NoError(t, fixture.feed.Dispatch(context.Background(), monitor.ChangeEvent{ID: "evt_1"}))
}

func TestFeedDisconnectsSlowSubscribers(t *testing.T) {
	hub := NewFeedHub(zerolog.Nop())

	closed := make(chan struct{})
	sub := &feedSubscriber{
		events:    make(chan monitor.ChangeEvent, 1),
		closeSlow: func() { close(closed) },
	}
	hub.add(sub)

	// The first event fills the one-slot buffer; the second finds it
	// full and must trigger the disconnect instead of blocking.
	require.NoError(t, hub.Dispatch(context.Background(), monitor.ChangeEvent{ID: "evt_1"}))
	require.NoError(t, hub.Dispatch(context.Background(), monitor.ChangeEvent{ID: "evt_2"}))

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("slow subscriber was not disconnected")
	}
}
