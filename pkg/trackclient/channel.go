package trackclient

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/trasealla/delivery-tracking/pkg/track"
)

const (
	// DefaultBackoffMin is the first reconnect delay after a drop.
	DefaultBackoffMin = 1 * time.Second
	// DefaultBackoffMax caps the reconnect delay. Reconnection retries
	// forever; connection loss degrades to polling, it is never fatal.
	DefaultBackoffMax = 5 * time.Second
)

// Conn is the subset of *websocket.Conn the channel needs. Tests
// substitute scripted connections.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteJSON(v any) error
	Close() error
}

// DialFunc opens one channel connection.
type DialFunc func(ctx context.Context) (Conn, error)

// WebsocketDialer returns a DialFunc for the server's /ws endpoint.
// authToken, when non-empty, is sent as a bearer credential so tenant
// rooms can be joined.
func WebsocketDialer(url, authToken string) DialFunc {
	return func(ctx context.Context) (Conn, error) {
		header := http.Header{}
		if authToken != "" {
			header.Set("Authorization", "Bearer "+authToken)
		}
		conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
		if resp != nil && resp.Body != nil {
			defer resp.Body.Close()
		}
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
}

// ChannelConfig tunes a LocationChannel.
type ChannelConfig struct {
	Dial       DialFunc
	BackoffMin time.Duration // zero means DefaultBackoffMin
	BackoffMax time.Duration // zero means DefaultBackoffMax
}

// Subscription is a cancellable handle on a channel callback.
type Subscription struct {
	once   sync.Once
	cancel func()
}

// Cancel detaches the callback. Safe to call more than once.
func (s *Subscription) Cancel() {
	s.once.Do(s.cancel)
}

// LocationChannel maintains a single transport connection per process;
// rooms are joined as lightweight subscriptions over it. Room
// membership is ref-counted and survives reconnects: after every
// successful dial the channel re-joins every room still held. Incoming
// positions are applied latest-timestamp-wins, so out-of-order delivery
// never regresses a displayed position.
type LocationChannel struct {
	dial       DialFunc
	backoffMin time.Duration
	backoffMax time.Duration
	log        zerolog.Logger

	mu         sync.Mutex
	rooms      map[track.Room]int
	positions  map[string]track.AgentPosition
	posSubs    map[uint64]func(track.AgentPosition)
	statusSubs map[uint64]func(track.StatusNotice)
	nextSubID  uint64
	connected  bool
	conn       Conn

	// writeMu serializes outbound command writes. Join and Leave write
	// from caller goroutines while the run loop re-joins rooms after a
	// reconnect, and the transport forbids concurrent writers.
	writeMu sync.Mutex

	ctx      context.Context
	cancelFn context.CancelFunc
	stopOnce sync.Once
	done     chan struct{}
}

// NewLocationChannel builds a channel and starts its connection loop.
// Stop releases it.
func NewLocationChannel(cfg ChannelConfig, log zerolog.Logger) *LocationChannel {
	if cfg.BackoffMin <= 0 {
		cfg.BackoffMin = DefaultBackoffMin
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = DefaultBackoffMax
	}

	ctx, cancel := context.WithCancel(context.Background())
	ch := &LocationChannel{
		dial:       cfg.Dial,
		backoffMin: cfg.BackoffMin,
		backoffMax: cfg.BackoffMax,
		log:        log,
		rooms:      make(map[track.Room]int),
		positions:  make(map[string]track.AgentPosition),
		posSubs:    make(map[uint64]func(track.AgentPosition)),
		statusSubs: make(map[uint64]func(track.StatusNotice)),
		ctx:        ctx,
		cancelFn:   cancel,
		done:       make(chan struct{}),
	}
	go ch.run()
	return ch
}

// Join adds a room subscription. The first join of a room sends the
// join command; nested joins only bump the ref-count.
func (ch *LocationChannel) Join(room track.Room) {
	ch.mu.Lock()
	ch.rooms[room]++
	first := ch.rooms[room] == 1
	conn := ch.conn
	ch.mu.Unlock()

	if first && conn != nil {
		ch.send(conn, roomCommand(room, true))
	}
}

// Leave drops one reference on a room; the leave command is sent only
// when the last reference goes away. Leaving an unjoined room is a
// no-op.
func (ch *LocationChannel) Leave(room track.Room) {
	ch.mu.Lock()
	n, ok := ch.rooms[room]
	if !ok {
		ch.mu.Unlock()
		return
	}
	n--
	last := n <= 0
	if last {
		delete(ch.rooms, room)
	} else {
		ch.rooms[room] = n
	}
	conn := ch.conn
	ch.mu.Unlock()

	if last && conn != nil {
		ch.send(conn, roomCommand(room, false))
	}
}

// Connected reports whether the transport is currently up. When false,
// the session controller's fallback poller carries the view.
func (ch *LocationChannel) Connected() bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.connected
}

// CurrentPosition returns the latest known position for an agent.
func (ch *LocationChannel) CurrentPosition(agentID string) (track.AgentPosition, bool) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	pos, ok := ch.positions[agentID]
	return pos, ok
}

// OnPositionUpdate registers a callback invoked for every accepted
// (non-stale) position. Cancel the returned handle to detach.
func (ch *LocationChannel) OnPositionUpdate(fn func(track.AgentPosition)) *Subscription {
	ch.mu.Lock()
	id := ch.nextSubID
	ch.nextSubID++
	ch.posSubs[id] = fn
	ch.mu.Unlock()

	return &Subscription{cancel: func() {
		ch.mu.Lock()
		delete(ch.posSubs, id)
		ch.mu.Unlock()
	}}
}

// OnStatusNotice registers a callback for order status pushes.
func (ch *LocationChannel) OnStatusNotice(fn func(track.StatusNotice)) *Subscription {
	ch.mu.Lock()
	id := ch.nextSubID
	ch.nextSubID++
	ch.statusSubs[id] = fn
	ch.mu.Unlock()

	return &Subscription{cancel: func() {
		ch.mu.Lock()
		delete(ch.statusSubs, id)
		ch.mu.Unlock()
	}}
}

// Stop tears the channel down. Idempotent.
func (ch *LocationChannel) Stop() {
	ch.stopOnce.Do(func() {
		ch.cancelFn()
		ch.mu.Lock()
		if ch.conn != nil {
			_ = ch.conn.Close()
		}
		ch.mu.Unlock()
		<-ch.done
	})
}

// run dials, services the connection, and redials forever with bounded
// exponential backoff until Stop.
func (ch *LocationChannel) run() {
	defer close(ch.done)

	backoff := ch.backoffMin
	for {
		if ch.ctx.Err() != nil {
			return
		}

		conn, err := ch.dial(ch.ctx)
		if err != nil {
			ch.log.Debug().Err(err).Dur("retry_in", backoff).Msg("channel dial failed")
			select {
			case <-ch.ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > ch.backoffMax {
				backoff = ch.backoffMax
			}
			continue
		}
		backoff = ch.backoffMin

		ch.attach(conn)
		ch.serve(conn)
		ch.detach(conn)
	}
}

// attach installs a fresh connection and re-joins every held room, so
// membership survives reconnects transparently to callers.
func (ch *LocationChannel) attach(conn Conn) {
	ch.mu.Lock()
	ch.conn = conn
	ch.connected = true
	rooms := make([]track.Room, 0, len(ch.rooms))
	for room := range ch.rooms {
		rooms = append(rooms, room)
	}
	ch.mu.Unlock()

	for _, room := range rooms {
		ch.send(conn, roomCommand(room, true))
	}
}

func (ch *LocationChannel) detach(conn Conn) {
	_ = conn.Close()
	ch.mu.Lock()
	if ch.conn == conn {
		ch.conn = nil
		ch.connected = false
	}
	ch.mu.Unlock()
}

// serve reads events until the connection drops.
func (ch *LocationChannel) serve(conn Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var event track.Event
		if err := json.Unmarshal(data, &event); err != nil {
			ch.log.Debug().Err(err).Msg("malformed channel event")
			continue
		}
		ch.dispatch(event)
	}
}

func (ch *LocationChannel) dispatch(event track.Event) {
	switch event.Event {
	case track.EventDriverLocation:
		var pos track.AgentPosition
		if err := json.Unmarshal(event.Data, &pos); err != nil {
			ch.log.Debug().Err(err).Msg("malformed location payload")
			return
		}
		ch.applyPosition(pos)

	case track.EventOrderStatus:
		var notice track.StatusNotice
		if err := json.Unmarshal(event.Data, &notice); err != nil {
			ch.log.Debug().Err(err).Msg("malformed status payload")
			return
		}
		ch.mu.Lock()
		subs := make([]func(track.StatusNotice), 0, len(ch.statusSubs))
		for _, fn := range ch.statusSubs {
			subs = append(subs, fn)
		}
		ch.mu.Unlock()
		for _, fn := range subs {
			fn(notice)
		}
	}
}

// applyPosition stores pos if it is newer than the cached entry and
// notifies subscribers. Stale samples are dropped without notification.
func (ch *LocationChannel) applyPosition(pos track.AgentPosition) {
	ch.mu.Lock()
	if cur, ok := ch.positions[pos.AgentID]; ok && !pos.NewerThan(cur) {
		ch.mu.Unlock()
		return
	}
	ch.positions[pos.AgentID] = pos
	subs := make([]func(track.AgentPosition), 0, len(ch.posSubs))
	for _, fn := range ch.posSubs {
		subs = append(subs, fn)
	}
	ch.mu.Unlock()

	for _, fn := range subs {
		fn(pos)
	}
}

func (ch *LocationChannel) send(conn Conn, cmd track.Command) {
	ch.writeMu.Lock()
	defer ch.writeMu.Unlock()
	if err := conn.WriteJSON(cmd); err != nil {
		ch.log.Debug().Err(err).Str("action", cmd.Action).Msg("channel command send failed")
	}
}

func roomCommand(room track.Room, join bool) track.Command {
	if room.IsTenant() {
		action := track.ActionLeaveTenant
		if join {
			action = track.ActionJoinTenant
		}
		return track.Command{Action: action, TenantID: room.Scope()}
	}
	action := track.ActionLeaveTracking
	if join {
		action = track.ActionJoinTracking
	}
	return track.Command{Action: action, Token: room.Scope()}
}
