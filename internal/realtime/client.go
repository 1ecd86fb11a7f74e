package realtime

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"github.com/trasealla/delivery-tracking/internal/api/metrics"
	"github.com/trasealla/delivery-tracking/pkg/track"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 64
)

// Client is one WebSocket connection multiplexing any number of room
// subscriptions. Inbound messages are track.Command room requests;
// outbound messages are track.Event payloads.
type Client struct {
	hub  *Hub
	conn *websocket.Conn

	// tenantID from the connection's credential; clients may only join
	// tenant rooms matching it. Order rooms are public by token.
	tenantID string

	send  chan []byte
	rooms map[track.Room]struct{}

	// closed marks the send channel closed. Guarded by hub.mu so a
	// broadcast holding the lock can never send after the close.
	closed bool
}

// NewClient wraps an upgraded connection. Call Run to start the pumps.
func NewClient(hub *Hub, conn *websocket.Conn, tenantID string) *Client {
	return &Client{
		hub:      hub,
		conn:     conn,
		tenantID: tenantID,
		send:     make(chan []byte, sendBuffer),
		rooms:    make(map[track.Room]struct{}),
	}
}

// Run services the connection until it drops. It blocks; the caller
// owns the goroutine (the HTTP handler's).
func (c *Client) Run() {
	metrics.ChannelClients.Inc()
	defer metrics.ChannelClients.Dec()

	go c.writePump()
	c.readPump()
}

// readPump consumes room commands until the connection drops, then
// detaches the client from every room and closes the send channel.
func (c *Client) readPump() {
	defer func() {
		c.hub.removeClient(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var cmd track.Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			c.hub.log.Debug().Err(err).Msg("malformed channel command")
			continue
		}
		c.handle(cmd)
	}
}

func (c *Client) handle(cmd track.Command) {
	room, err := cmd.Room()
	if err != nil {
		c.hub.log.Debug().Err(err).Str("action", cmd.Action).Msg("rejected channel command")
		return
	}
	// Tenant rooms are scoped by credential; a client cannot watch
	// another tenant's fleet.
	if room.IsTenant() && room.Scope() != c.tenantID {
		c.hub.log.Warn().
			Str("room", string(room)).
			Str("tenant_id", c.tenantID).
			Msg("cross-tenant room join denied")
		return
	}

	if cmd.Join() {
		c.hub.Join(c, room)
	} else {
		c.hub.Leave(c, room)
	}
}

// writePump flushes outbound events and keeps the connection alive with
// pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
