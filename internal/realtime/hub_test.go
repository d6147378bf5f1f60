package realtime

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestConnection(hub *Hub, userID string) *Connection {
	return NewConnection(hub, nil, userID, "chat")
}

func drain(t *testing.T, c *Connection) []Event {
	t.Helper()

	var events []Event
	for {
		select {
		case event, ok := <-c.send:
			if !ok {
				return events
			}
			events = append(events, event)
		default:
			return events
		}
	}
}

func TestAdmitAndBroadcast(t *testing.T) {
	hub := NewHub()
	alice := newTestConnection(hub, "alice")
	bob := newTestConnection(hub, "bob")

	hub.Admit(alice, "room", "user:alice")
	hub.Admit(bob, "room")

	require.Equal(t, 2, hub.GroupSize("room"))
	require.Equal(t, 1, hub.GroupSize("user:alice"))

	hub.Broadcast("room", NewEvent("first", nil))
	hub.Broadcast("room", NewEvent("second", nil))

	for _, conn := range []*Connection{alice, bob} {
		events := drain(t, conn)
		require.Len(t, events, 2)
		require.Equal(t, "first", events[0].Type)
		require.Equal(t, "second", events[1].Type)
	}
}

func TestBroadcastExceptSkipsOriginator(t *testing.T) {
	hub := NewHub()
	alice := newTestConnection(hub, "alice")
	bob := newTestConnection(hub, "bob")

	hub.Admit(alice, "room")
	hub.Admit(bob, "room")

	hub.BroadcastExcept("room", NewEvent("typing", nil), "alice")

	require.Empty(t, drain(t, alice))

	events := drain(t, bob)
	require.Len(t, events, 1)
	require.Equal(t, "typing", events[0].Type)
}

func TestBroadcastToUnknownGroupIsNoop(t *testing.T) {
	hub := NewHub()
	hub.Broadcast("nowhere", NewEvent("lost", nil))
	require.Zero(t, hub.GroupSize("nowhere"))
}

func TestDismissRemovesFromAllGroups(t *testing.T) {
	hub := NewHub()
	alice := newTestConnection(hub, "alice")

	hub.Admit(alice, "room", "user:alice")
	hub.Dismiss(alice)

	require.Zero(t, hub.GroupSize("room"))
	require.Zero(t, hub.GroupSize("user:alice"))

	hub.Broadcast("room", NewEvent("orphan", nil))
	require.Empty(t, drain(t, alice))

	// Dismiss is idempotent.
	hub.Dismiss(alice)
}

func TestCloseRunsOnce(t *testing.T) {
	hub := NewHub()
	alice := newTestConnection(hub, "alice")
	hub.Admit(alice, "room")

	var closes atomic.Int32
	alice.OnClose(func() { closes.Add(1) })

	alice.Close()
	alice.Close()

	require.Equal(t, int32(1), closes.Load())
	require.Zero(t, hub.GroupSize("room"))

	// Sends after close are dropped without panicking.
	alice.Send(NewEvent("late", nil))
}

func TestSlowConsumerIsDropped(t *testing.T) {
	hub := NewHub()
	alice := newTestConnection(hub, "alice")
	hub.Admit(alice, "room")

	// Nothing reads from the connection, so the buffer eventually fills and
	// the overflowing event forces a close.
	for i := 0; i <= defaultBufferSize; i++ {
		hub.Broadcast("room", NewEvent("flood", nil))
	}

	require.Eventually(t, func() bool {
		return hub.GroupSize("room") == 0
	}, time.Second, 10*time.Millisecond)
}
