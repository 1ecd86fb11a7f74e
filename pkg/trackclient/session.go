package trackclient

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/trasealla/delivery-tracking/pkg/geo"
	"github.com/trasealla/delivery-tracking/pkg/track"
)

// DefaultPollInterval is the fallback snapshot poll period while an
// order is in motion. A client that missed a push self-heals within one
// interval.
const DefaultPollInterval = 15 * time.Second

// SessionState is the lifecycle state of a tracking session.
type SessionState string

const (
	SessionIdle     SessionState = "idle"
	SessionLoading  SessionState = "loading"
	SessionError    SessionState = "error"
	SessionTracking SessionState = "tracking"
)

// RoomChannel is what the session controller needs from the shared
// location channel. *LocationChannel satisfies it.
type RoomChannel interface {
	Join(room track.Room)
	Leave(room track.Room)
	Connected() bool
	OnPositionUpdate(fn func(track.AgentPosition)) *Subscription
	OnStatusNotice(fn func(track.StatusNotice)) *Subscription
}

// SessionView is the published read-only snapshot of a session. The
// session controller is its only writer; render surfaces and derived
// readers consume copies.
type SessionView struct {
	State        SessionState
	ErrorMessage string

	Snapshot *Snapshot
	Position *track.AgentPosition

	// DistanceToDestKm and ETAMinutes are recomputed on every accepted
	// position; valid only when HasEstimate is true (a destination and
	// a position are both known).
	HasEstimate      bool
	DistanceToDestKm float64
	ETAMinutes       int

	// Stale is the soft indicator that background refreshes are
	// failing. The last-known state above stays displayable throughout.
	Stale bool
}

// SessionConfig configures a Session.
type SessionConfig struct {
	Fetcher      SnapshotFetcher
	Channel      RoomChannel
	PollInterval time.Duration // zero means DefaultPollInterval
	Log          zerolog.Logger
}

// Session tracks one order end to end: initial snapshot, room
// membership while the order is in motion, a fallback poller, and
// timestamp-based reconciliation of the push and poll paths.
type Session struct {
	token   string
	fetcher SnapshotFetcher
	channel RoomChannel
	poll    time.Duration
	log     zerolog.Logger

	mu         sync.RWMutex
	view       SessionView
	lastUpdate time.Time
	joined     bool
	stopped    bool

	posSub    *Subscription
	statusSub *Subscription
	pollStop  context.CancelFunc
	stopOnce  sync.Once
}

// NewSession creates a session for a tracking token. Call Start to run it.
func NewSession(token string, cfg SessionConfig) *Session {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	return &Session{
		token:   token,
		fetcher: cfg.Fetcher,
		channel: cfg.Channel,
		poll:    cfg.PollInterval,
		log:     cfg.Log,
		view:    SessionView{State: SessionIdle},
	}
}

// Start fetches the initial snapshot and, while the order is in motion,
// joins its room and starts the fallback poller. A fetch failure moves
// the session to Error with the server-reported reason and is returned
// to the caller.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	s.view.State = SessionLoading
	s.mu.Unlock()

	snap, err := s.fetcher.Snapshot(ctx, s.token)
	if err != nil {
		s.mu.Lock()
		s.view.State = SessionError
		s.view.ErrorMessage = err.Error()
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	s.view.State = SessionTracking
	s.view.ErrorMessage = ""
	s.applySnapshotLocked(snap)
	inMotion := snap.Status.InMotion()
	s.mu.Unlock()

	// A finished order gets no room and no poller: nothing beyond the
	// snapshot is meaningful and a stale moving marker must not appear.
	if !inMotion {
		return nil
	}

	// Each wiring step publishes its handle under the lock before the
	// next runs, and re-checks stopped after it: a terminal push landing
	// mid-wiring (teardown runs as soon as the status callback is live)
	// must not leave a poller, a subscription, or a room behind.
	pollCtx, cancelPoll := context.WithCancel(context.Background())
	s.mu.Lock()
	s.pollStop = cancelPoll
	s.mu.Unlock()

	posSub := s.channel.OnPositionUpdate(s.onPosition)
	statusSub := s.channel.OnStatusNotice(s.onStatus)

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		posSub.Cancel()
		statusSub.Cancel()
		return nil
	}
	s.posSub = posSub
	s.statusSub = statusSub
	s.mu.Unlock()

	room := track.OrderRoom(s.token)
	s.channel.Join(room)

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		s.channel.Leave(room)
		return nil
	}
	s.joined = true
	s.mu.Unlock()

	go s.runPoller(pollCtx)
	return nil
}

// View returns a copy of the current session view.
func (s *Session) View() SessionView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view
}

// TimeSinceUpdate is the live-computed age of the newest accepted
// position. It increases continuously between updates; zero when no
// position has ever been seen.
func (s *Session) TimeSinceUpdate() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastUpdate.IsZero() {
		return 0
	}
	return time.Since(s.lastUpdate)
}

// Stop tears the session down: leaves the room, cancels the
// subscriptions and the poller, and returns the state to Idle while
// keeping the last view displayable. Idempotent.
func (s *Session) Stop() {
	s.stopOnce.Do(s.teardown)
}

func (s *Session) teardown() {
	s.mu.Lock()
	s.stopped = true
	pollStop := s.pollStop
	posSub := s.posSub
	statusSub := s.statusSub
	joined := s.joined
	s.joined = false
	if s.view.State == SessionTracking {
		s.view.State = SessionIdle
	}
	s.mu.Unlock()

	if pollStop != nil {
		pollStop()
	}
	if posSub != nil {
		posSub.Cancel()
	}
	if statusSub != nil {
		statusSub.Cancel()
	}
	if joined {
		s.channel.Leave(track.OrderRoom(s.token))
	}
}

// onPosition handles a push update from the room.
func (s *Session) onPosition(pos track.AgentPosition) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.view.Snapshot == nil {
		return
	}
	// The order room only carries the assigned agent, but the shared
	// channel may also serve a tenant room; filter to this order's
	// agent when the snapshot names one.
	if agent := s.snapshotAgentLocked(); agent != "" && pos.AgentID != agent {
		return
	}
	s.applyPositionLocked(pos)
}

// onStatus handles a status push for this order.
func (s *Session) onStatus(notice track.StatusNotice) {
	if notice.TrackingToken != s.token {
		return
	}

	s.mu.Lock()
	terminal := s.applyStatusLocked(notice.Status)
	s.mu.Unlock()

	if terminal {
		s.Stop()
	}
}

// runPoller re-fetches the snapshot on a fixed period so a missed push
// self-heals. Poll failures are retried silently: the view keeps its
// last state and only the stale indicator flips.
func (s *Session) runPoller(ctx context.Context) {
	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		snap, err := s.fetcher.Snapshot(ctx, s.token)
		if err != nil {
			s.mu.Lock()
			s.view.Stale = true
			s.mu.Unlock()
			s.log.Debug().Err(err).Str("tracking_token", s.token).Msg("fallback poll failed")
			continue
		}

		s.mu.Lock()
		s.view.Stale = false
		s.applySnapshotLocked(snap)
		terminal := snap.Status.IsTerminal()
		s.mu.Unlock()

		if terminal {
			s.Stop()
			return
		}
	}
}

// applySnapshotLocked merges a fetched snapshot into the view. The
// snapshot's position goes through the same latest-timestamp-wins rule
// as push updates, so the poll path can never regress the marker.
func (s *Session) applySnapshotLocked(snap *Snapshot) {
	s.view.Snapshot = snap
	if snap.Position != nil {
		s.applyPositionLocked(*snap.Position)
	} else {
		s.recomputeLocked()
	}
}

// applyPositionLocked is the single reconciliation point for both
// producers (push and poll), keyed by latest timestamp wins.
func (s *Session) applyPositionLocked(pos track.AgentPosition) {
	if cur := s.view.Position; cur != nil && !pos.NewerThan(*cur) {
		return
	}
	p := pos
	s.view.Position = &p
	s.lastUpdate = time.Now()
	s.recomputeLocked()
}

// applyStatusLocked updates the order status and reports whether it is
// terminal.
func (s *Session) applyStatusLocked(status track.OrderStatus) bool {
	if s.view.Snapshot != nil {
		s.view.Snapshot.Status = status
		s.view.Snapshot.NextStatuses = status.LegalNextStatuses()
	}
	return status.IsTerminal()
}

// recomputeLocked refreshes the derived distance and ETA.
func (s *Session) recomputeLocked() {
	s.view.HasEstimate = false
	snap := s.view.Snapshot
	pos := s.view.Position
	if snap == nil || snap.Destination == nil || pos == nil {
		return
	}

	dist := geo.DistanceKm(pos.Lat, pos.Lng, snap.Destination.Lat, snap.Destination.Lng)
	s.view.HasEstimate = true
	s.view.DistanceToDestKm = dist
	s.view.ETAMinutes = geo.ETAMinutes(dist, pos.SpeedKmh)
}

func (s *Session) snapshotAgentLocked() string {
	if s.view.Snapshot != nil {
		return s.view.Snapshot.AgentID
	}
	return ""
}
