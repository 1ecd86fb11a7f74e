package ports

import (
	"context"
	"time"

	"github.com/trasealla/delivery-tracking/pkg/track"
)

// OrderSnapshot is the full tracking view returned for a token: the
// order, the set of legal next statuses derived from the transition
// table, and the agent's current position when one is known.
type OrderSnapshot struct {
	Order        *track.Order
	NextStatuses []track.OrderStatus
	Position     *track.AgentPosition // nil when the agent has never pinged
}

// ScanInput describes a scan of an order code by an agent device.
type ScanInput struct {
	TrackingToken string
	ScanType      string
	Location      *track.Coordinates
}

// TransitionInput describes an attempted status change.
type TransitionInput struct {
	TrackingToken string
	Status        track.OrderStatus
	Note          string
	Location      *track.Coordinates
	CODCollected  *float64
}

// TrackingService exposes the order-facing operations of the tracking core.
type TrackingService interface {
	// GetSnapshot resolves a tracking token into the current order view.
	GetSnapshot(ctx context.Context, token string) (*OrderSnapshot, error)

	// RecordScan appends a scan audit record. It never changes status.
	RecordScan(ctx context.Context, in ScanInput) error

	// TransitionStatus validates the requested transition against the
	// status table, persists it, and notifies the order's room. Illegal
	// transitions return track.ErrInvalidTransition and leave the order
	// untouched.
	TransitionStatus(ctx context.Context, in TransitionInput) (*OrderSnapshot, error)
}

// PositionInput is a raw position sample pushed by an agent device.
type PositionInput struct {
	AgentID   string
	TenantID  string
	Lat       float64
	Lng       float64
	SpeedKmh  float64
	Heading   float64
	Timestamp time.Time
}

// PositionService ingests agent position samples and serves the
// operations map.
type PositionService interface {
	// Apply stores the sample (latest-timestamp-wins) and, when
	// accepted, fans it out to the tenant room and to the order room of
	// any in-motion order assigned to the agent.
	Apply(ctx context.Context, in PositionInput) error

	// LiveLocations returns the latest position per agent of a tenant.
	LiveLocations(ctx context.Context, tenantID string) ([]track.AgentPosition, error)
}
