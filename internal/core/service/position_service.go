package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/trasealla/delivery-tracking/internal/api/metrics"
	"github.com/trasealla/delivery-tracking/internal/core/ports"
	"github.com/trasealla/delivery-tracking/pkg/track"
)

type positionService struct {
	positions ports.PositionStore
	orders    ports.OrderRepository
	publisher ports.RoomPublisher
	log       zerolog.Logger
}

// NewPositionService returns a PositionService implementation.
func NewPositionService(
	positions ports.PositionStore,
	orders ports.OrderRepository,
	publisher ports.RoomPublisher,
	log zerolog.Logger,
) ports.PositionService {
	return &positionService{
		positions: positions,
		orders:    orders,
		publisher: publisher,
		log:       log,
	}
}

// Apply validates and stores a position sample, then fans it out.
// The store enforces latest-timestamp-wins; a stale sample (older than
// the stored one) is dropped silently so out-of-order delivery can
// never regress the displayed position.
func (s *positionService) Apply(ctx context.Context, in ports.PositionInput) error {
	if in.AgentID == "" || in.TenantID == "" {
		metrics.PositionsDiscardedTotal.WithLabelValues("invalid").Inc()
		return fmt.Errorf("apply position: %w: agent_id and tenant_id required", track.ErrValidationFailed)
	}
	if in.Lat < -90 || in.Lat > 90 || in.Lng < -180 || in.Lng > 180 {
		metrics.PositionsDiscardedTotal.WithLabelValues("invalid").Inc()
		return fmt.Errorf("apply position: %w: coordinates out of range", track.ErrValidationFailed)
	}
	if in.Timestamp.IsZero() {
		in.Timestamp = time.Now().UTC()
	}

	pos := track.AgentPosition{
		AgentID:   in.AgentID,
		TenantID:  in.TenantID,
		Lat:       in.Lat,
		Lng:       in.Lng,
		SpeedKmh:  in.SpeedKmh,
		Heading:   in.Heading,
		Timestamp: in.Timestamp.UTC(),
	}

	applied, err := s.positions.Apply(ctx, pos)
	if err != nil {
		return fmt.Errorf("apply position: %w", err)
	}
	if !applied {
		metrics.PositionsDiscardedTotal.WithLabelValues("stale").Inc()
		s.log.Debug().
			Str("agent_id", pos.AgentID).
			Time("timestamp", pos.Timestamp).
			Msg("stale position discarded")
		return nil
	}
	metrics.PositionsAppliedTotal.Inc()

	s.fanOut(ctx, pos)
	return nil
}

// fanOut publishes an accepted position to the tenant room and, when the
// agent is moving an order, to that order's room.
func (s *positionService) fanOut(ctx context.Context, pos track.AgentPosition) {
	event, err := track.NewLocationEvent(pos)
	if err != nil {
		s.log.Error().Err(err).Msg("encode location event")
		return
	}

	rooms := []track.Room{track.TenantRoom(pos.TenantID)}
	order, err := s.orders.FindActiveByAgent(ctx, pos.AgentID)
	switch {
	case err == nil:
		rooms = append(rooms, track.OrderRoom(order.TrackingToken))
	case errors.Is(err, track.ErrNotFound):
		// agent idle, tenant room only
	default:
		s.log.Warn().Err(err).Str("agent_id", pos.AgentID).Msg("active order lookup failed")
	}

	for _, room := range rooms {
		if err := s.publisher.Publish(ctx, room, event); err != nil {
			s.log.Warn().Err(err).Str("room", string(room)).Msg("location broadcast failed")
		}
	}
}

// LiveLocations returns the latest known position per agent of a tenant.
func (s *positionService) LiveLocations(ctx context.Context, tenantID string) ([]track.AgentPosition, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("live locations: %w: tenant_id required", track.ErrValidationFailed)
	}
	positions, err := s.positions.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("live locations: %w", err)
	}
	return positions, nil
}
