package realtime

import (
	"encoding/json"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/trasealla/delivery-tracking/pkg/track"
)

// newTestHub builds a hub against a client that never connects; the
// tests below exercise membership and local broadcast only, neither of
// which requires a live Redis.
func newTestHub() *Hub {
	rdb := goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:1"})
	return NewHub(rdb, zerolog.Nop())
}

func newTestClient(h *Hub) *Client {
	return NewClient(h, nil, "t1")
}

func TestHub_RoomLifecycle(t *testing.T) {
	h := newTestHub()
	c1 := newTestClient(h)
	c2 := newTestClient(h)
	room := track.TenantRoom("t1")

	h.Join(c1, room)
	h.Join(c2, room)
	// Joining twice is a no-op.
	h.Join(c1, room)

	if got := h.Subscribers(room); got != 2 {
		t.Fatalf("subscribers = %d, want 2", got)
	}
	if got := h.RoomCount(); got != 1 {
		t.Fatalf("rooms = %d, want 1", got)
	}

	h.Leave(c1, room)
	if got := h.Subscribers(room); got != 1 {
		t.Fatalf("subscribers after leave = %d, want 1", got)
	}
	if got := h.RoomCount(); got != 1 {
		t.Fatal("room must survive while a subscriber remains")
	}

	// Last subscriber out tears the room down.
	h.Leave(c2, room)
	if got := h.RoomCount(); got != 0 {
		t.Fatalf("rooms after last leave = %d, want 0", got)
	}

	// Leaving again must be harmless.
	h.Leave(c2, room)
}

func TestHub_RemoveClientLeavesAllRooms(t *testing.T) {
	h := newTestHub()
	c := newTestClient(h)

	h.Join(c, track.TenantRoom("t1"))
	h.Join(c, track.OrderRoom("TRK-A"))
	if got := h.RoomCount(); got != 2 {
		t.Fatalf("rooms = %d, want 2", got)
	}

	h.removeClient(c)
	if got := h.RoomCount(); got != 0 {
		t.Fatalf("rooms after removeClient = %d, want 0", got)
	}
}

func TestHub_BroadcastReachesSubscribers(t *testing.T) {
	h := newTestHub()
	c := newTestClient(h)
	room := track.OrderRoom("TRK-A")
	h.Join(c, room)

	event, err := track.NewLocationEvent(track.AgentPosition{
		AgentID: "agent-7", Lat: 25.18, Lng: 55.25, Timestamp: time.Now().UTC(),
	})
	if err != nil {
		t.Fatal(err)
	}
	payload, _ := json.Marshal(event)

	h.broadcast(room, payload)

	select {
	case got := <-c.send:
		var decoded track.Event
		if err := json.Unmarshal(got, &decoded); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if decoded.Event != track.EventDriverLocation {
			t.Errorf("event = %s, want driver:location", decoded.Event)
		}
	default:
		t.Fatal("subscriber did not receive the broadcast")
	}

	// Broadcasting into a room nobody watches must not panic.
	h.broadcast(track.OrderRoom("TRK-B"), payload)
}

func TestHub_SlowSubscriberDroppedWithoutPanic(t *testing.T) {
	h := newTestHub()
	stalled := newTestClient(h) // nobody drains its send channel
	room := track.OrderRoom("TRK-A")
	h.Join(stalled, room)

	event, err := track.NewLocationEvent(track.AgentPosition{
		AgentID: "agent-7", Lat: 25.18, Lng: 55.25, Timestamp: time.Now().UTC(),
	})
	if err != nil {
		t.Fatal(err)
	}
	payload, _ := json.Marshal(event)

	// Fill the buffer and keep broadcasting past it: the overflow drop
	// must detach the client, and later broadcasts must not send on the
	// closed channel.
	for i := 0; i < sendBuffer+2; i++ {
		h.broadcast(room, payload)
	}

	if got := h.Subscribers(room); got != 0 {
		t.Fatalf("subscribers after overflow = %d, want 0", got)
	}
	if got := h.RoomCount(); got != 0 {
		t.Fatalf("rooms after dropping last subscriber = %d, want 0", got)
	}
	// The send channel must be closed so the client's writePump exits.
	for closed := false; !closed; {
		select {
		case _, ok := <-stalled.send:
			closed = !ok
		default:
			t.Fatal("send channel left open after drop")
		}
	}

	// Detaching the same client again (e.g. its readPump exiting) must
	// be a no-op, not a double close.
	h.removeClient(stalled)
}

func TestHub_CrossTenantJoinDenied(t *testing.T) {
	h := newTestHub()
	c := newTestClient(h) // credentialed for tenant t1

	c.handle(track.Command{Action: track.ActionJoinTenant, TenantID: "t2"})
	if got := h.RoomCount(); got != 0 {
		t.Fatal("client joined another tenant's room")
	}

	c.handle(track.Command{Action: track.ActionJoinTenant, TenantID: "t1"})
	if got := h.Subscribers(track.TenantRoom("t1")); got != 1 {
		t.Fatal("client failed to join its own tenant room")
	}

	// Order rooms are public by token.
	c.handle(track.Command{Action: track.ActionJoinTracking, Token: "TRK-A"})
	if got := h.Subscribers(track.OrderRoom("TRK-A")); got != 1 {
		t.Fatal("client failed to join order room")
	}
}
