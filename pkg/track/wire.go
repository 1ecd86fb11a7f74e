package track

import "encoding/json"

// Real-time wire protocol. Clients send Commands over the channel to
// manage room membership; the server fans Events out to room members.

// Command actions accepted by the channel endpoint.
const (
	ActionJoinTenant    = "join-tenant"
	ActionLeaveTenant   = "leave-tenant"
	ActionJoinTracking  = "join-tracking"
	ActionLeaveTracking = "leave-tracking"
)

// Event names emitted by the server.
const (
	EventDriverLocation = "driver:location"
	EventOrderStatus    = "order:status"
)

// Command is a client-to-server room membership request.
type Command struct {
	Action   string `json:"action"`
	TenantID string `json:"tenant_id,omitempty"`
	Token    string `json:"token,omitempty"`
}

// Room resolves the room a command refers to.
func (c Command) Room() (Room, error) {
	switch c.Action {
	case ActionJoinTenant, ActionLeaveTenant:
		if c.TenantID == "" {
			return "", ErrValidationFailed
		}
		return TenantRoom(c.TenantID), nil
	case ActionJoinTracking, ActionLeaveTracking:
		if c.Token == "" {
			return "", ErrValidationFailed
		}
		return OrderRoom(c.Token), nil
	}
	return "", ErrValidationFailed
}

// Join reports whether the command adds a subscription (as opposed to
// removing one).
func (c Command) Join() bool {
	return c.Action == ActionJoinTenant || c.Action == ActionJoinTracking
}

// Event is the server-to-client envelope. Data holds the event-specific
// payload: an AgentPosition for EventDriverLocation, a StatusNotice for
// EventOrderStatus.
type Event struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// StatusNotice is the payload of an EventOrderStatus event.
type StatusNotice struct {
	TrackingToken string      `json:"tracking_token"`
	Status        OrderStatus `json:"status"`
	Note          string      `json:"note,omitempty"`
	Timestamp     string      `json:"timestamp"`
}

// NewLocationEvent wraps a position into a wire event.
func NewLocationEvent(pos AgentPosition) (Event, error) {
	data, err := json.Marshal(pos)
	if err != nil {
		return Event{}, err
	}
	return Event{Event: EventDriverLocation, Data: data}, nil
}

// NewStatusEvent wraps a status notice into a wire event.
func NewStatusEvent(n StatusNotice) (Event, error) {
	data, err := json.Marshal(n)
	if err != nil {
		return Event{}, err
	}
	return Event{Event: EventOrderStatus, Data: data}, nil
}
