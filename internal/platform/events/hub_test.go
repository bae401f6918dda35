package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func newTestClient(userID uuid.UUID) *Client {
	return &Client{UserID: userID, Send: make(chan []byte, 8)}
}

func receiveEvent(t *testing.T, client *Client) Event {
	t.Helper()
	select {
	case data := <-client.Send:
		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			t.Fatalf("unmarshal event: %v", err)
		}
		return ev
	default:
		t.Fatal("no event received")
		return Event{}
	}
}

func TestHub_RegisterUnregister(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	userID := uuid.New()

	c1 := newTestClient(userID)
	c2 := newTestClient(userID)
	hub.Register(c1)
	hub.Register(c2)

	if got := hub.ClientCount(); got != 2 {
		t.Errorf("ClientCount = %d, want 2", got)
	}
	if got := hub.UserConnCount(userID); got != 2 {
		t.Errorf("UserConnCount = %d, want 2", got)
	}
	if !hub.IsOnline(userID) {
		t.Error("user should be online")
	}

	hub.Unregister(c1)
	if got := hub.UserConnCount(userID); got != 1 {
		t.Errorf("UserConnCount after unregister = %d, want 1", got)
	}

	hub.Unregister(c2)
	if hub.IsOnline(userID) {
		t.Error("user should be offline after last connection closes")
	}
	// Double unregister is a no-op.
	hub.Unregister(c2)
	if got := hub.ClientCount(); got != 0 {
		t.Errorf("ClientCount = %d, want 0", got)
	}
}

func TestHub_PublishToUsers(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	alice := uuid.New()
	bob := uuid.New()
	carol := uuid.New()

	aliceTab1 := newTestClient(alice)
	aliceTab2 := newTestClient(alice)
	bobConn := newTestClient(bob)
	carolConn := newTestClient(carol)
	for _, c := range []*Client{aliceTab1, aliceTab2, bobConn, carolConn} {
		hub.Register(c)
	}

	hub.PublishToUsers(context.Background(), []uuid.UUID{alice, bob},
		NewEvent("new_message", map[string]string{"roomId": "r1"}))

	for _, c := range []*Client{aliceTab1, aliceTab2, bobConn} {
		ev := receiveEvent(t, c)
		if ev.Name != "new_message" {
			t.Errorf("event name = %q, want new_message", ev.Name)
		}
	}
	if len(carolConn.Send) != 0 {
		t.Error("carol should not receive the event")
	}
}

func TestHub_PublishToAllExcludesSender(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	sender := uuid.New()
	other := uuid.New()

	senderConn := newTestClient(sender)
	otherConn := newTestClient(other)
	hub.Register(senderConn)
	hub.Register(otherConn)

	hub.PublishToAll(context.Background(), NewEvent("emergency_broadcast", nil), sender)

	if len(senderConn.Send) != 0 {
		t.Error("excluded sender should not receive the event")
	}
	ev := receiveEvent(t, otherConn)
	if ev.Name != "emergency_broadcast" {
		t.Errorf("event name = %q", ev.Name)
	}
	if ev.Timestamp.IsZero() {
		t.Error("expected timestamp to be set")
	}
}

func TestHub_SlowClientDoesNotBlock(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	userID := uuid.New()
	slow := &Client{UserID: userID, Send: make(chan []byte)} // unbuffered, never drained
	hub.Register(slow)

	done := make(chan struct{})
	go func() {
		hub.PublishToUsers(context.Background(), []uuid.UUID{userID}, NewEvent("typing", nil))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on slow client")
	}
}

func TestHub_PublishToOfflineUserIsNoop(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	hub.PublishToUsers(context.Background(), []uuid.UUID{uuid.New()}, NewEvent("noop", nil))
}
