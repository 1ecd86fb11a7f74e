package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/trasealla/delivery-tracking/internal/core/ports"
	"github.com/trasealla/delivery-tracking/pkg/track"
)

func newTestPositionService(repo *stubOrderRepo, store *stubPositionStore, pub *stubPublisher) ports.PositionService {
	return NewPositionService(store, repo, pub, zerolog.Nop())
}

func TestApply_StoresAndFansOutToTenantRoom(t *testing.T) {
	repo := newStubOrderRepo()
	store := newStubPositionStore()
	pub := &stubPublisher{}
	svc := newTestPositionService(repo, store, pub)

	err := svc.Apply(context.Background(), ports.PositionInput{
		AgentID: "agent-7", TenantID: "t1",
		Lat: 25.18, Lng: 55.25, SpeedKmh: 32,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if _, ok := store.current["agent-7"]; !ok {
		t.Fatal("position not stored")
	}
	rooms := pub.rooms()
	if len(rooms) != 1 || rooms[0] != track.TenantRoom("t1") {
		t.Errorf("published rooms = %v, want [tenant:t1]", rooms)
	}
	if pub.published[0].Event.Event != track.EventDriverLocation {
		t.Errorf("event = %s, want driver:location", pub.published[0].Event.Event)
	}
}

func TestApply_FansOutToOrderRoomWhenAgentHasActiveOrder(t *testing.T) {
	repo := newStubOrderRepo()
	repo.byAgent["agent-7"] = testOrder(track.StatusInTransit)
	pub := &stubPublisher{}
	svc := newTestPositionService(repo, newStubPositionStore(), pub)

	err := svc.Apply(context.Background(), ports.PositionInput{
		AgentID: "agent-7", TenantID: "t1",
		Lat: 25.18, Lng: 55.25,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	rooms := pub.rooms()
	if len(rooms) != 2 || rooms[0] != track.TenantRoom("t1") || rooms[1] != track.OrderRoom("TRK-1A2B3C4D") {
		t.Errorf("published rooms = %v, want [tenant:t1 order:TRK-1A2B3C4D]", rooms)
	}
}

func TestApply_OutOfOrderTimestampsKeepLatest(t *testing.T) {
	repo := newStubOrderRepo()
	store := newStubPositionStore()
	pub := &stubPublisher{}
	svc := newTestPositionService(repo, store, pub)

	t1 := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	t2 := t1.Add(30 * time.Second)

	// The newer sample arrives first.
	if err := svc.Apply(context.Background(), ports.PositionInput{
		AgentID: "agent-7", TenantID: "t1", Lat: 25.19, Lng: 55.26, Timestamp: t2,
	}); err != nil {
		t.Fatalf("Apply t2: %v", err)
	}
	// Then the older one.
	if err := svc.Apply(context.Background(), ports.PositionInput{
		AgentID: "agent-7", TenantID: "t1", Lat: 25.10, Lng: 55.10, Timestamp: t1,
	}); err != nil {
		t.Fatalf("Apply t1: %v", err)
	}

	cur := store.current["agent-7"]
	if !cur.Timestamp.Equal(t2) || cur.Lat != 25.19 {
		t.Errorf("stored position = %+v, want the t2 sample", cur)
	}
	// Stale sample must not be broadcast either.
	if len(pub.published) != 1 {
		t.Errorf("broadcasts = %d, want 1", len(pub.published))
	}
}

func TestApply_RejectsMalformedInput(t *testing.T) {
	svc := newTestPositionService(newStubOrderRepo(), newStubPositionStore(), &stubPublisher{})

	cases := []ports.PositionInput{
		{TenantID: "t1", Lat: 1, Lng: 1},               // missing agent
		{AgentID: "a", Lat: 1, Lng: 1},                 // missing tenant
		{AgentID: "a", TenantID: "t1", Lat: 99, Lng: 0},  // lat out of range
		{AgentID: "a", TenantID: "t1", Lat: 0, Lng: 181}, // lng out of range
	}
	for i, in := range cases {
		if err := svc.Apply(context.Background(), in); !errors.Is(err, track.ErrValidationFailed) {
			t.Errorf("case %d: err = %v, want ErrValidationFailed", i, err)
		}
	}
}

func TestLiveLocations_ScopedToTenant(t *testing.T) {
	store := newStubPositionStore()
	now := time.Now().UTC()
	store.current["a1"] = track.AgentPosition{AgentID: "a1", TenantID: "t1", Timestamp: now}
	store.current["a2"] = track.AgentPosition{AgentID: "a2", TenantID: "t2", Timestamp: now}
	svc := newTestPositionService(newStubOrderRepo(), store, &stubPublisher{})

	got, err := svc.LiveLocations(context.Background(), "t1")
	if err != nil {
		t.Fatalf("LiveLocations: %v", err)
	}
	if len(got) != 1 || got[0].AgentID != "a1" {
		t.Errorf("LiveLocations = %+v, want only a1", got)
	}

	if _, err := svc.LiveLocations(context.Background(), ""); !errors.Is(err, track.ErrValidationFailed) {
		t.Errorf("empty tenant err = %v, want ErrValidationFailed", err)
	}
}
