package track

// OrderStatus represents the lifecycle state of a delivery order.
type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusConfirmed OrderStatus = "confirmed"
	StatusAssigned  OrderStatus = "assigned"
	StatusPickedUp  OrderStatus = "picked_up"
	StatusInTransit OrderStatus = "in_transit"
	StatusDelivered OrderStatus = "delivered"
	StatusFailed    OrderStatus = "failed"
	StatusReturned  OrderStatus = "returned"
	StatusCancelled OrderStatus = "cancelled"
)

// legalTransitions is the single source of truth for the order state
// machine. Both the server (authoritative validation) and any client
// offering "next action" affordances derive from this table; there is no
// per-screen duplicate anywhere in the module.
var legalTransitions = map[OrderStatus][]OrderStatus{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusPickedUp, StatusCancelled},
	StatusAssigned:  {StatusPickedUp, StatusCancelled},
	StatusPickedUp:  {StatusInTransit, StatusFailed, StatusReturned},
	StatusInTransit: {StatusDelivered, StatusFailed, StatusReturned},
	StatusFailed:    {StatusReturned, StatusConfirmed},
	// delivered, returned, cancelled: terminal, no outgoing transitions
}

// LegalNextStatuses returns the set of statuses reachable from s.
// The returned slice is a copy and safe to mutate.
func (s OrderStatus) LegalNextStatuses() []OrderStatus {
	allowed := legalTransitions[s]
	out := make([]OrderStatus, len(allowed))
	copy(out, allowed)
	return out
}

// CanTransitionTo reports whether a transition from s to next is legal.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range legalTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether s has no outgoing transitions. Once an
// order reaches a terminal status, no further position updates are
// meaningful and tracking sessions tear themselves down.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case StatusDelivered, StatusReturned, StatusCancelled:
		return true
	}
	return false
}

// InMotion reports whether an agent is expected to be moving toward the
// destination, i.e. whether live position tracking is worthwhile.
func (s OrderStatus) InMotion() bool {
	return s == StatusPickedUp || s == StatusInTransit
}

// Valid reports whether s is a known order status.
func (s OrderStatus) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusAssigned, StatusPickedUp,
		StatusInTransit, StatusDelivered, StatusFailed, StatusReturned, StatusCancelled:
		return true
	}
	return false
}
