package websocket

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/codeclash/codeclash-backend/internal/models"
)

type presenceRecorder struct {
	events chan string
}

func newPresenceRecorder() *presenceRecorder {
	return &presenceRecorder{events: make(chan string, 8)}
}

func (r *presenceRecorder) SetActivity(subjectID string, status models.ActivityStatus) {
	r.events <- subjectID + ":" + string(status)
}

func (r *presenceRecorder) next(t *testing.T) string {
	t.Helper()
	select {
	case e := <-r.events:
		return e
	case <-time.After(time.Second):
		t.Fatal("expected a presence event")
		return ""
	}
}

func newTestClient(h *Hub, userID string) *Client {
	return &Client{
		hub:    h,
		send:   make(chan *Message, 8),
		userID: userID,
		topics: map[string]bool{"subject:" + userID: true},
	}
}

func TestHubPresenceNotifications(t *testing.T) {
	hub := NewHub()
	rec := newPresenceRecorder()
	hub.SetPresenceListener(rec)

	client := newTestClient(hub, "alice")
	hub.registerClient(client)
	assert.Equal(t, "alice:active", rec.next(t))

	hub.unregisterClient(client)
	assert.Equal(t, "alice:disconnected", rec.next(t))
}

func TestHubReplacedConnectionIsNotADisconnect(t *testing.T) {
	hub := NewHub()
	rec := newPresenceRecorder()
	hub.SetPresenceListener(rec)

	first := newTestClient(hub, "alice")
	hub.registerClient(first)
	assert.Equal(t, "alice:active", rec.next(t))

	second := newTestClient(hub, "alice")
	hub.registerClient(second)
	assert.Equal(t, "alice:active", rec.next(t))

	// the stale connection's teardown must not mark alice offline
	hub.unregisterClient(first)
	select {
	case e := <-rec.events:
		t.Fatalf("unexpected presence event %s", e)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestAllowTopic(t *testing.T) {
	assert.True(t, allowTopic("alice", "match:m1"))
	assert.True(t, allowTopic("alice", "subject:alice"))
	assert.False(t, allowTopic("alice", "subject:bob"))
	assert.False(t, allowTopic("alice", "lobby"))
}
