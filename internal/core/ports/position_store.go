package ports

import (
	"context"

	"github.com/trasealla/delivery-tracking/pkg/track"
)

// PositionStore keeps the latest known position per agent.
// Implementations must enforce latest-timestamp-wins: an update carrying
// an older timestamp than the stored one is discarded, whatever order
// the updates arrive in.
type PositionStore interface {
	// Apply stores pos if it is newer than the current entry for the
	// agent. It reports whether the position was accepted.
	Apply(ctx context.Context, pos track.AgentPosition) (bool, error)

	// Current returns the latest position for an agent, or
	// track.ErrNotFound when none has ever been recorded.
	Current(ctx context.Context, agentID string) (*track.AgentPosition, error)

	// ListByTenant returns the latest position of every agent belonging
	// to a tenant (the operations map's initial snapshot).
	ListByTenant(ctx context.Context, tenantID string) ([]track.AgentPosition, error)
}
