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

// ScanDeduper abstracts the idempotency store for scan events (Redis).
// Repeated scans of the same code within the dedup window are audited
// once.
type ScanDeduper interface {
	IsDuplicate(ctx context.Context, token, scanType string, ts time.Time) (bool, error)
	Mark(ctx context.Context, token, scanType string, ts time.Time) error
}

type trackingService struct {
	orders    ports.OrderRepository
	positions ports.PositionStore
	publisher ports.RoomPublisher
	dedup     ScanDeduper
	log       zerolog.Logger
}

// NewTrackingService returns a TrackingService implementation.
func NewTrackingService(
	orders ports.OrderRepository,
	positions ports.PositionStore,
	publisher ports.RoomPublisher,
	dedup ScanDeduper,
	log zerolog.Logger,
) ports.TrackingService {
	return &trackingService{
		orders:    orders,
		positions: positions,
		publisher: publisher,
		dedup:     dedup,
		log:       log,
	}
}

// GetSnapshot resolves a tracking token into the order, its legal next
// statuses, and the agent's current position when one is known.
func (s *trackingService) GetSnapshot(ctx context.Context, token string) (*ports.OrderSnapshot, error) {
	order, err := s.orders.FindByToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("get snapshot: %w", err)
	}

	snap := &ports.OrderSnapshot{
		Order:        order,
		NextStatuses: order.Status.LegalNextStatuses(),
	}

	if order.AgentID != "" {
		pos, err := s.positions.Current(ctx, order.AgentID)
		switch {
		case err == nil:
			snap.Position = pos
		default:
			// A missing or unreachable position store never blocks the
			// snapshot; the order view stays displayable without it.
			s.log.Debug().Err(err).Str("agent_id", order.AgentID).Msg("no current position")
		}
	}

	return snap, nil
}

// RecordScan appends a scan audit record for the order. A scan does not
// change status; duplicate scans within the dedup window are skipped.
func (s *trackingService) RecordScan(ctx context.Context, in ports.ScanInput) error {
	if in.ScanType == "" {
		return fmt.Errorf("record scan: %w: scan_type required", track.ErrValidationFailed)
	}

	// Resolve first so an unknown token is reported as NotFound.
	order, err := s.orders.FindByToken(ctx, in.TrackingToken)
	if err != nil {
		return fmt.Errorf("record scan: %w", err)
	}

	now := time.Now().UTC()
	isDup, err := s.dedup.IsDuplicate(ctx, order.TrackingToken, in.ScanType, now)
	if err != nil {
		s.log.Warn().Err(err).Str("tracking_token", in.TrackingToken).Msg("scan dedup check failed, recording anyway")
	} else if isDup {
		s.log.Debug().Str("tracking_token", in.TrackingToken).Str("scan_type", in.ScanType).Msg("duplicate scan skipped")
		return nil
	}

	if err := s.orders.InsertScan(ctx, &ports.ScanRecord{
		TrackingToken: order.TrackingToken,
		ScanType:      in.ScanType,
		Location:      in.Location,
		ScannedAt:     now,
	}); err != nil {
		return fmt.Errorf("record scan: %w", err)
	}

	if markErr := s.dedup.Mark(ctx, order.TrackingToken, in.ScanType, now); markErr != nil {
		s.log.Warn().Err(markErr).Str("tracking_token", in.TrackingToken).Msg("failed to set scan dedup key")
	}
	metrics.ScansRecordedTotal.WithLabelValues(in.ScanType).Inc()

	s.log.Info().
		Str("tracking_token", in.TrackingToken).
		Str("scan_type", in.ScanType).
		Msg("scan recorded")
	return nil
}

// TransitionStatus validates the requested transition against the
// status table and applies it. The order is only mutated after
// validation passes; a rejection leaves both persisted and returned
// state untouched.
func (s *trackingService) TransitionStatus(ctx context.Context, in ports.TransitionInput) (*ports.OrderSnapshot, error) {
	if !in.Status.Valid() {
		return nil, fmt.Errorf("transition: %w: unknown status %q", track.ErrValidationFailed, in.Status)
	}

	order, err := s.orders.FindByToken(ctx, in.TrackingToken)
	if err != nil {
		return nil, fmt.Errorf("transition: %w", err)
	}

	if !order.Status.CanTransitionTo(in.Status) {
		metrics.TransitionsRejectedTotal.Inc()
		return nil, fmt.Errorf("transition: %w (from %s to %s)", track.ErrInvalidTransition, order.Status, in.Status)
	}

	event := track.StatusEvent{
		Status:    in.Status,
		Note:      in.Note,
		Location:  in.Location,
		Timestamp: time.Now().UTC(),
	}

	var codCollected *float64
	if in.Status == track.StatusDelivered && in.CODCollected != nil {
		codCollected = in.CODCollected
	}

	if err := s.orders.ApplyTransition(ctx, order.TrackingToken, order.Status, event, codCollected); err != nil {
		if errors.Is(err, track.ErrInvalidTransition) {
			metrics.TransitionsRejectedTotal.Inc()
		}
		return nil, fmt.Errorf("transition: %w", err)
	}
	metrics.TransitionsTotal.WithLabelValues(string(in.Status)).Inc()

	order.Status = in.Status
	order.StatusHistory = append(order.StatusHistory, event)
	if codCollected != nil {
		order.CODCollected = *codCollected
	}

	s.notifyStatus(ctx, order, event)

	s.log.Info().
		Str("tracking_token", order.TrackingToken).
		Str("status", string(in.Status)).
		Msg("status transition applied")

	return &ports.OrderSnapshot{
		Order:        order,
		NextStatuses: order.Status.LegalNextStatuses(),
	}, nil
}

// notifyStatus pushes the transition to the order room and the tenant
// room. Broadcast failures are logged, not surfaced: subscribers
// self-heal from the snapshot endpoint within one poll interval.
func (s *trackingService) notifyStatus(ctx context.Context, order *track.Order, ev track.StatusEvent) {
	notice := track.StatusNotice{
		TrackingToken: order.TrackingToken,
		Status:        ev.Status,
		Note:          ev.Note,
		Timestamp:     ev.Timestamp.Format(time.RFC3339),
	}
	wireEvent, err := track.NewStatusEvent(notice)
	if err != nil {
		s.log.Error().Err(err).Msg("encode status event")
		return
	}

	for _, room := range []track.Room{track.OrderRoom(order.TrackingToken), track.TenantRoom(order.TenantID)} {
		if err := s.publisher.Publish(ctx, room, wireEvent); err != nil {
			s.log.Warn().Err(err).Str("room", string(room)).Msg("status broadcast failed")
		}
	}
}
