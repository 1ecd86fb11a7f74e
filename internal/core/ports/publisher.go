package ports

import (
	"context"

	"github.com/trasealla/delivery-tracking/pkg/track"
)

// RoomPublisher fans wire events out to the members of a room. The
// transport (and cross-instance broker, if any) lives behind this
// interface; the tracking core only decides which rooms an event
// belongs to.
type RoomPublisher interface {
	Publish(ctx context.Context, room track.Room, event track.Event) error
}
