// Package realtime implements the server side of the location channel:
// a WebSocket hub with reference-counted rooms bridged to Redis pub/sub
// so fan-out reaches subscribers on every instance.
package realtime

import (
	"context"
	"encoding/json"
	"sync"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/trasealla/delivery-tracking/internal/api/metrics"
	"github.com/trasealla/delivery-tracking/internal/infrastructure/db/redis"
	"github.com/trasealla/delivery-tracking/pkg/track"
)

// Hub owns room membership. Rooms come into existence on the first join
// and disappear (including their Redis subscription) when the last
// subscriber leaves.
type Hub struct {
	rdb *goredis.Client
	log zerolog.Logger

	mu    sync.Mutex
	rooms map[track.Room]*roomState
}

type roomState struct {
	subs   map[*Client]struct{}
	pubsub *goredis.PubSub
	cancel context.CancelFunc
}

// NewHub creates a Hub backed by the given Redis client.
func NewHub(rdb *goredis.Client, log zerolog.Logger) *Hub {
	return &Hub{
		rdb:   rdb,
		log:   log,
		rooms: make(map[track.Room]*roomState),
	}
}

// Join subscribes a client to a room, creating the room (and its Redis
// subscription) when it is the first member. Idempotent per client.
func (h *Hub) Join(c *Client, room track.Room) {
	h.mu.Lock()
	defer h.mu.Unlock()

	rs, ok := h.rooms[room]
	if !ok {
		ctx, cancel := context.WithCancel(context.Background())
		rs = &roomState{
			subs:   make(map[*Client]struct{}),
			pubsub: h.rdb.Subscribe(ctx, redis.ChannelName(room)),
			cancel: cancel,
		}
		h.rooms[room] = rs
		metrics.ChannelRooms.Set(float64(len(h.rooms)))
		go h.forward(room, rs.pubsub)
		h.log.Debug().Str("room", string(room)).Msg("room created")
	}

	if _, already := rs.subs[c]; already {
		return
	}
	rs.subs[c] = struct{}{}
	c.rooms[room] = struct{}{}
}

// Leave removes a client from a room, tearing the room down when it was
// the last member. Idempotent.
func (h *Hub) Leave(c *Client, room track.Room) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c, room)
}

func (h *Hub) leaveLocked(c *Client, room track.Room) {
	rs, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(rs.subs, c)
	delete(c.rooms, room)
	if len(rs.subs) == 0 {
		rs.cancel()
		_ = rs.pubsub.Close()
		delete(h.rooms, room)
		metrics.ChannelRooms.Set(float64(len(h.rooms)))
		h.log.Debug().Str("room", string(room)).Msg("room torn down")
	}
}

// removeClient drops a disconnected client from every room it joined
// and closes its send channel.
func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.detachLocked(c)
}

// detachLocked removes a client from every room and closes its send
// channel in one critical section. Membership removal and close must be
// atomic: a broadcast must never see a subscribed client whose channel
// is already closed.
func (h *Hub) detachLocked(c *Client) {
	for room := range c.rooms {
		h.leaveLocked(c, room)
	}
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// RoomCount returns the number of active rooms. Exposed for readiness
// diagnostics and tests.
func (h *Hub) RoomCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms)
}

// Subscribers returns the number of subscribers in a room.
func (h *Hub) Subscribers(room track.Room) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	rs, ok := h.rooms[room]
	if !ok {
		return 0
	}
	return len(rs.subs)
}

// forward pumps messages from a room's Redis channel to its local
// subscribers until the room is torn down.
func (h *Hub) forward(room track.Room, pubsub *goredis.PubSub) {
	for msg := range pubsub.Channel() {
		h.broadcast(room, []byte(msg.Payload))
	}
}

// broadcast delivers a raw event payload to each subscriber of a room.
// Slow consumers are dropped rather than allowed to stall the room.
func (h *Hub) broadcast(room track.Room, payload []byte) {
	var envelope struct {
		Event string `json:"event"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		h.log.Warn().Err(err).Str("room", string(room)).Msg("malformed room payload")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	rs, ok := h.rooms[room]
	if !ok {
		return
	}

	// Sends stay under the hub lock so they cannot race a detach closing
	// the channel. The buffered non-blocking send keeps the critical
	// section short regardless of consumer speed.
	var dropped []*Client
	for c := range rs.subs {
		select {
		case c.send <- payload:
			metrics.ChannelEventsTotal.WithLabelValues(envelope.Event).Inc()
		default:
			dropped = append(dropped, c)
		}
	}
	for _, c := range dropped {
		h.log.Warn().Str("room", string(room)).Msg("dropping slow channel client")
		h.detachLocked(c)
	}
}
