package trackclient

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trasealla/delivery-tracking/pkg/track"
)

type stubFetcher struct {
	mu    sync.Mutex
	fn    func(token string) (*Snapshot, error)
	calls int
}

func (f *stubFetcher) Snapshot(_ context.Context, token string) (*Snapshot, error) {
	f.mu.Lock()
	f.calls++
	fn := f.fn
	f.mu.Unlock()
	return fn(token)
}

func (f *stubFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *stubFetcher) set(fn func(token string) (*Snapshot, error)) {
	f.mu.Lock()
	f.fn = fn
	f.mu.Unlock()
}

type stubChannel struct {
	mu        sync.Mutex
	joins     []track.Room
	leaves    []track.Room
	posFns    map[uint64]func(track.AgentPosition)
	statusFns map[uint64]func(track.StatusNotice)
	nextID    uint64

	// statusOnRegister, when set, is delivered to a status callback
	// before its registration returns, like a push racing session
	// wiring.
	statusOnRegister *track.StatusNotice
}

func newStubChannel() *stubChannel {
	return &stubChannel{
		posFns:    make(map[uint64]func(track.AgentPosition)),
		statusFns: make(map[uint64]func(track.StatusNotice)),
	}
}

func (c *stubChannel) Join(room track.Room) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.joins = append(c.joins, room)
}

func (c *stubChannel) Leave(room track.Room) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.leaves = append(c.leaves, room)
}

func (c *stubChannel) Connected() bool { return true }

func (c *stubChannel) OnPositionUpdate(fn func(track.AgentPosition)) *Subscription {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.posFns[id] = fn
	c.mu.Unlock()
	return &Subscription{cancel: func() {
		c.mu.Lock()
		delete(c.posFns, id)
		c.mu.Unlock()
	}}
}

func (c *stubChannel) OnStatusNotice(fn func(track.StatusNotice)) *Subscription {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.statusFns[id] = fn
	notice := c.statusOnRegister
	c.mu.Unlock()
	if notice != nil {
		fn(*notice)
	}
	return &Subscription{cancel: func() {
		c.mu.Lock()
		delete(c.statusFns, id)
		c.mu.Unlock()
	}}
}

func (c *stubChannel) pushPosition(pos track.AgentPosition) {
	c.mu.Lock()
	fns := make([]func(track.AgentPosition), 0, len(c.posFns))
	for _, fn := range c.posFns {
		fns = append(fns, fn)
	}
	c.mu.Unlock()
	for _, fn := range fns {
		fn(pos)
	}
}

func (c *stubChannel) pushStatus(notice track.StatusNotice) {
	c.mu.Lock()
	fns := make([]func(track.StatusNotice), 0, len(c.statusFns))
	for _, fn := range c.statusFns {
		fns = append(fns, fn)
	}
	c.mu.Unlock()
	for _, fn := range fns {
		fn(notice)
	}
}

func (c *stubChannel) joinCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.joins)
}

func (c *stubChannel) leaveCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.leaves)
}

func inTransitSnapshot() *Snapshot {
	return &Snapshot{
		TrackingToken: "TRK-7A8B9C2D",
		Status:        track.StatusInTransit,
		NextStatuses:  track.StatusInTransit.LegalNextStatuses(),
		RecipientName: "Amina",
		Destination:   &track.Coordinates{Lat: 25.20, Lng: 55.27},
		AgentID:       "agent-7",
	}
}

func TestSession_InTransitScenario(t *testing.T) {
	fetcher := &stubFetcher{fn: func(string) (*Snapshot, error) {
		return inTransitSnapshot(), nil
	}}
	channel := newStubChannel()
	s := NewSession("TRK-7A8B9C2D", SessionConfig{
		Fetcher: fetcher,
		Channel: channel,
		Log:     zerolog.Nop(),
	})
	defer s.Stop()

	require.NoError(t, s.Start(context.Background()))
	require.Equal(t, SessionTracking, s.View().State)
	require.Equal(t, 1, channel.joinCount(), "in-motion order joins its room")

	channel.pushPosition(track.AgentPosition{
		AgentID:   "agent-7",
		Lat:       25.18,
		Lng:       55.25,
		Timestamp: time.Now().UTC(),
	})

	view := s.View()
	require.NotNil(t, view.Position)
	require.True(t, view.HasEstimate)
	assert.InDelta(t, 3.05, view.DistanceToDestKm, 0.15, "distance should be about 3.1 km")
	assert.Equal(t, 5, view.ETAMinutes, "ETA at the 40 km/h default")

	first := s.TimeSinceUpdate()
	time.Sleep(20 * time.Millisecond)
	assert.Greater(t, s.TimeSinceUpdate(), first, "time since update keeps increasing")
}

func TestSession_TerminalOrderNeverJoinsOrPolls(t *testing.T) {
	fetcher := &stubFetcher{fn: func(string) (*Snapshot, error) {
		snap := inTransitSnapshot()
		snap.Status = track.StatusDelivered
		snap.NextStatuses = nil
		return snap, nil
	}}
	channel := newStubChannel()
	s := NewSession("TRK-7A8B9C2D", SessionConfig{
		Fetcher:      fetcher,
		Channel:      channel,
		PollInterval: 10 * time.Millisecond,
		Log:          zerolog.Nop(),
	})
	defer s.Stop()

	require.NoError(t, s.Start(context.Background()))

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, channel.joinCount(), "terminal order must not join a room")
	assert.Equal(t, 1, fetcher.callCount(), "no polling beyond the initial snapshot")
	assert.Equal(t, SessionTracking, s.View().State)
}

func TestSession_NotFoundEndsInError(t *testing.T) {
	fetcher := &stubFetcher{fn: func(string) (*Snapshot, error) {
		return nil, &APIError{Kind: track.ErrNotFound, Message: "order not found"}
	}}
	s := NewSession("TRK-NOPE", SessionConfig{
		Fetcher: fetcher,
		Channel: newStubChannel(),
		Log:     zerolog.Nop(),
	})

	err := s.Start(context.Background())
	require.ErrorIs(t, err, track.ErrNotFound)

	view := s.View()
	assert.Equal(t, SessionError, view.State)
	assert.Equal(t, "order not found", view.ErrorMessage, "server reason surfaces verbatim")
}

func TestSession_PollFailureSetsStaleKeepsState(t *testing.T) {
	fetcher := &stubFetcher{fn: func(string) (*Snapshot, error) {
		return inTransitSnapshot(), nil
	}}
	channel := newStubChannel()
	s := NewSession("TRK-7A8B9C2D", SessionConfig{
		Fetcher:      fetcher,
		Channel:      channel,
		PollInterval: 5 * time.Millisecond,
		Log:          zerolog.Nop(),
	})
	defer s.Stop()

	require.NoError(t, s.Start(context.Background()))

	fetcher.set(func(string) (*Snapshot, error) {
		return nil, &APIError{Kind: track.ErrUnavailable, Message: "http 503"}
	})

	require.Eventually(t, func() bool {
		return s.View().Stale
	}, time.Second, time.Millisecond, "failed polls must flip the stale indicator")

	view := s.View()
	require.NotNil(t, view.Snapshot, "last-known state stays displayable while refreshes fail")
	assert.Equal(t, SessionTracking, view.State)

	fetcher.set(func(string) (*Snapshot, error) {
		return inTransitSnapshot(), nil
	})
	require.Eventually(t, func() bool {
		return !s.View().Stale
	}, time.Second, time.Millisecond, "a successful poll clears the stale indicator")
}

func TestSession_PollCannotRegressPushedPosition(t *testing.T) {
	newer := time.Now().UTC()
	older := newer.Add(-time.Minute)

	snapWithOldPosition := inTransitSnapshot()
	snapWithOldPosition.Position = &track.AgentPosition{
		AgentID: "agent-7", Lat: 25.00, Lng: 55.00, Timestamp: older,
	}

	fetcher := &stubFetcher{fn: func(string) (*Snapshot, error) {
		return snapWithOldPosition, nil
	}}
	channel := newStubChannel()
	s := NewSession("TRK-7A8B9C2D", SessionConfig{
		Fetcher:      fetcher,
		Channel:      channel,
		PollInterval: 5 * time.Millisecond,
		Log:          zerolog.Nop(),
	})
	defer s.Stop()

	require.NoError(t, s.Start(context.Background()))

	channel.pushPosition(track.AgentPosition{
		AgentID: "agent-7", Lat: 25.18, Lng: 55.25, Timestamp: newer,
	})

	initialPolls := fetcher.callCount()
	require.Eventually(t, func() bool {
		return fetcher.callCount() > initialPolls+1
	}, time.Second, time.Millisecond)

	view := s.View()
	require.NotNil(t, view.Position)
	assert.True(t, view.Position.Timestamp.Equal(newer),
		"poll carrying an older position must not overwrite the pushed one")
	assert.Equal(t, 25.18, view.Position.Lat)
}

func TestSession_TerminalStatusPushTearsDown(t *testing.T) {
	fetcher := &stubFetcher{fn: func(string) (*Snapshot, error) {
		return inTransitSnapshot(), nil
	}}
	channel := newStubChannel()
	s := NewSession("TRK-7A8B9C2D", SessionConfig{
		Fetcher:      fetcher,
		Channel:      channel,
		PollInterval: time.Hour,
		Log:          zerolog.Nop(),
	})

	require.NoError(t, s.Start(context.Background()))
	require.Equal(t, 1, channel.joinCount())

	channel.pushStatus(track.StatusNotice{
		TrackingToken: "TRK-7A8B9C2D",
		Status:        track.StatusDelivered,
	})

	assert.Equal(t, 1, channel.leaveCount(), "terminal status must leave the room")
	view := s.View()
	assert.Equal(t, SessionIdle, view.State)
	assert.Equal(t, track.StatusDelivered, view.Snapshot.Status)

	// Ignores notices for other orders.
	channel.pushStatus(track.StatusNotice{TrackingToken: "TRK-OTHER", Status: track.StatusCancelled})
	assert.Equal(t, track.StatusDelivered, s.View().Snapshot.Status)
}

func TestSession_TerminalPushDuringStartLeavesNothingRunning(t *testing.T) {
	fetcher := &stubFetcher{fn: func(string) (*Snapshot, error) {
		return inTransitSnapshot(), nil
	}}
	channel := newStubChannel()
	// The order finishes the instant the status callback goes live,
	// before the rest of the session wiring runs.
	channel.statusOnRegister = &track.StatusNotice{
		TrackingToken: "TRK-7A8B9C2D",
		Status:        track.StatusDelivered,
	}
	s := NewSession("TRK-7A8B9C2D", SessionConfig{
		Fetcher:      fetcher,
		Channel:      channel,
		PollInterval: 20 * time.Millisecond,
		Log:          zerolog.Nop(),
	})

	require.NoError(t, s.Start(context.Background()))

	view := s.View()
	assert.Equal(t, SessionIdle, view.State)
	assert.Equal(t, track.StatusDelivered, view.Snapshot.Status)

	// Room membership stayed balanced and the poller never started.
	assert.Equal(t, channel.joinCount(), channel.leaveCount())
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, fetcher.callCount(), "no poll may run after the teardown")
}

func TestSession_StopIsIdempotent(t *testing.T) {
	fetcher := &stubFetcher{fn: func(string) (*Snapshot, error) {
		return inTransitSnapshot(), nil
	}}
	channel := newStubChannel()
	s := NewSession("TRK-7A8B9C2D", SessionConfig{
		Fetcher: fetcher,
		Channel: channel,
		Log:     zerolog.Nop(),
	})

	require.NoError(t, s.Start(context.Background()))
	s.Stop()
	s.Stop()

	assert.Equal(t, 1, channel.leaveCount(), "double Stop must leave once")
	assert.Equal(t, SessionIdle, s.View().State)
}

func TestSession_FiltersOtherAgentsPositions(t *testing.T) {
	fetcher := &stubFetcher{fn: func(string) (*Snapshot, error) {
		return inTransitSnapshot(), nil
	}}
	channel := newStubChannel()
	s := NewSession("TRK-7A8B9C2D", SessionConfig{
		Fetcher: fetcher,
		Channel: channel,
		Log:     zerolog.Nop(),
	})
	defer s.Stop()

	require.NoError(t, s.Start(context.Background()))

	channel.pushPosition(track.AgentPosition{
		AgentID: "someone-else", Lat: 1, Lng: 1, Timestamp: time.Now().UTC(),
	})
	assert.Nil(t, s.View().Position, "positions of unrelated agents are ignored")
}
