package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/trasealla/delivery-tracking/pkg/track"
)

// channelPrefix namespaces room fan-out channels in Redis pub/sub.
const channelPrefix = "room:"

// ChannelName returns the Redis pub/sub channel carrying a room's events.
func ChannelName(room track.Room) string {
	return channelPrefix + string(room)
}

// Publisher fans wire events out through Redis pub/sub so that every
// server instance holding subscribers of a room receives them.
type Publisher struct {
	client *redis.Client
}

// NewPublisher creates a Publisher wrapping the given client.
func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

// Publish sends the event to the room's channel. Delivery is
// best-effort: pub/sub has no backlog, and subscribers self-heal from
// the snapshot endpoint.
func (p *Publisher) Publish(ctx context.Context, room track.Room, event track.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("publisher: marshal: %w", err)
	}
	if err := p.client.Publish(ctx, ChannelName(room), payload).Err(); err != nil {
		return fmt.Errorf("publisher: publish %s: %w", room, err)
	}
	return nil
}
