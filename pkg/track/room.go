package track

import (
	"fmt"
	"strings"
)

// Room is a named real-time subscription scope. Two forms exist:
//
//	tenant:<id>    all agents of one tenant (operations map)
//	order:<token>  the single agent assigned to one order (public view)
//
// Rooms are created implicitly on first join and torn down by the
// transport layer when the last subscriber leaves.
type Room string

const (
	roomPrefixTenant = "tenant:"
	roomPrefixOrder  = "order:"
)

// TenantRoom returns the room covering every agent of a tenant.
func TenantRoom(tenantID string) Room {
	return Room(roomPrefixTenant + tenantID)
}

// OrderRoom returns the room scoped to a single order's tracking token.
func OrderRoom(token string) Room {
	return Room(roomPrefixOrder + token)
}

// ParseRoom validates a raw room name and returns it as a Room.
func ParseRoom(s string) (Room, error) {
	switch {
	case strings.HasPrefix(s, roomPrefixTenant) && len(s) > len(roomPrefixTenant):
		return Room(s), nil
	case strings.HasPrefix(s, roomPrefixOrder) && len(s) > len(roomPrefixOrder):
		return Room(s), nil
	}
	return "", fmt.Errorf("%w: malformed room %q", ErrValidationFailed, s)
}

// IsTenant reports whether r is a tenant-wide room.
func (r Room) IsTenant() bool { return strings.HasPrefix(string(r), roomPrefixTenant) }

// IsOrder reports whether r is a single-order room.
func (r Room) IsOrder() bool { return strings.HasPrefix(string(r), roomPrefixOrder) }

// Scope returns the identifier part of the room name (tenant ID or
// tracking token).
func (r Room) Scope() string {
	if i := strings.IndexByte(string(r), ':'); i >= 0 {
		return string(r)[i+1:]
	}
	return string(r)
}
