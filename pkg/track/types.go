// Package track defines the shared vocabulary of the delivery tracking
// core: the order state machine, geographic positions, room naming and
// the real-time wire events. It is imported by the server internals and
// by the trackclient library so that both sides validate against the
// same transition table.
package track

import "time"

// Coordinates represents a geographic point.
type Coordinates struct {
	Lat float64 `json:"lat" bson:"lat"`
	Lng float64 `json:"lng" bson:"lng"`
}

// StatusEvent records a single status transition on an order.
// Events are append-only and strictly non-decreasing in timestamp; the
// most recent event's status always equals the order's current status.
type StatusEvent struct {
	Status    OrderStatus  `json:"status" bson:"status"`
	Note      string       `json:"note,omitempty" bson:"note,omitempty"`
	Location  *Coordinates `json:"location,omitempty" bson:"location,omitempty"`
	Timestamp time.Time    `json:"timestamp" bson:"timestamp"`
}

// Order is the tracking core's view of a delivery order.
type Order struct {
	ID             string       `json:"id" bson:"_id,omitempty"`
	TenantID       string       `json:"tenant_id" bson:"tenant_id"`
	TrackingToken  string       `json:"tracking_token" bson:"tracking_token"`
	Status         OrderStatus  `json:"status" bson:"status"`
	RecipientName  string       `json:"recipient_name" bson:"recipient_name"`
	RecipientPhone string       `json:"recipient_phone,omitempty" bson:"recipient_phone,omitempty"`
	Address        string       `json:"recipient_address,omitempty" bson:"recipient_address,omitempty"`
	Destination    *Coordinates `json:"destination,omitempty" bson:"destination,omitempty"`
	AgentID        string       `json:"agent_id,omitempty" bson:"agent_id,omitempty"`
	PaymentMethod  string       `json:"payment_method,omitempty" bson:"payment_method,omitempty"`
	CODAmount      float64      `json:"cod_amount,omitempty" bson:"cod_amount,omitempty"`
	CODCollected   float64      `json:"cod_collected_amount,omitempty" bson:"cod_collected_amount,omitempty"`
	StatusHistory  []StatusEvent `json:"status_history" bson:"status_history"`
	CreatedAt      time.Time    `json:"created_at" bson:"created_at"`
}

// AgentPosition is the last known position of a delivery agent.
// Speed and heading are optional sensor samples; a SpeedKmh of zero or
// below means "no usable sample" and consumers fall back to the default
// reference speed for ETA purposes.
type AgentPosition struct {
	AgentID   string    `json:"agent_id" bson:"agent_id"`
	TenantID  string    `json:"tenant_id,omitempty" bson:"tenant_id,omitempty"`
	Lat       float64   `json:"lat" bson:"lat"`
	Lng       float64   `json:"lng" bson:"lng"`
	SpeedKmh  float64   `json:"speed,omitempty" bson:"speed,omitempty"`
	Heading   float64   `json:"heading,omitempty" bson:"heading,omitempty"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
}

// Coordinates returns the position as a Coordinates value.
func (p AgentPosition) Coordinates() Coordinates {
	return Coordinates{Lat: p.Lat, Lng: p.Lng}
}

// NewerThan reports whether p carries a strictly later sample than
// other. It is the sole ordering primitive for position reconciliation:
// for any agent only the position with the latest timestamp is
// retained, regardless of arrival order.
func (p AgentPosition) NewerThan(other AgentPosition) bool {
	return p.Timestamp.After(other.Timestamp)
}

// AgentStatus is the operational state of an agent shown on the live map.
type AgentStatus string

const (
	AgentAvailable AgentStatus = "available"
	AgentBusy      AgentStatus = "busy"
	AgentReturning AgentStatus = "returning"
	AgentOnBreak   AgentStatus = "break"
	AgentOffline   AgentStatus = "offline"
)
