package ports

import (
	"context"
	"time"

	"github.com/trasealla/delivery-tracking/pkg/track"
)

// OrderRepository defines persistence operations for delivery orders.
type OrderRepository interface {
	// FindByToken retrieves an order by its public tracking token.
	FindByToken(ctx context.Context, token string) (*track.Order, error)

	// ApplyTransition atomically sets the order's status (and optional
	// COD collected amount) and appends the status event to the history.
	// The write is a compare-and-set on the validated source status: if
	// the order moved on concurrently, track.ErrInvalidTransition is
	// returned and nothing is written.
	ApplyTransition(ctx context.Context, token string, from track.OrderStatus, event track.StatusEvent, codCollected *float64) error

	// InsertScan appends a scan record to the order's audit collection.
	// Scans never change order status.
	InsertScan(ctx context.Context, scan *ScanRecord) error

	// FindActiveByAgent returns the agent's current in-motion order
	// (picked_up or in_transit), or track.ErrNotFound when the agent has
	// none. Used to route position updates into the order room.
	FindActiveByAgent(ctx context.Context, agentID string) (*track.Order, error)
}

// ScanRecord is a single scan of an order's code by an agent device.
type ScanRecord struct {
	TrackingToken string
	ScanType      string
	Location      *track.Coordinates
	ScannedAt     time.Time
}
