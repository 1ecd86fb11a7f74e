package handler

import (
	"time"

	"github.com/trasealla/delivery-tracking/internal/core/ports"
	"github.com/trasealla/delivery-tracking/pkg/geo"
	"github.com/trasealla/delivery-tracking/pkg/track"
)

// --- Request types ---

type scanRequest struct {
	ScanType string   `json:"scan_type" validate:"required,oneof=driver_scan warehouse_scan customer_scan"`
	Lat      *float64 `json:"lat,omitempty" validate:"omitempty,latitude"`
	Lng      *float64 `json:"lng,omitempty" validate:"omitempty,longitude"`
}

type transitionRequest struct {
	Status       string   `json:"status" validate:"required"`
	Note         string   `json:"note,omitempty" validate:"omitempty,max=500"`
	Lat          *float64 `json:"lat,omitempty" validate:"omitempty,latitude"`
	Lng          *float64 `json:"lng,omitempty" validate:"omitempty,longitude"`
	CODCollected *float64 `json:"cod_collected_amount,omitempty" validate:"omitempty,gte=0"`
}

// --- Response types ---

type coordinatesResponse struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type statusEventResponse struct {
	Status    string               `json:"status"`
	Note      string               `json:"note,omitempty"`
	Location  *coordinatesResponse `json:"location,omitempty"`
	Timestamp string               `json:"timestamp"`
}

type positionResponse struct {
	AgentID   string  `json:"agent_id"`
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	SpeedKmh  float64 `json:"speed,omitempty"`
	Heading   float64 `json:"heading,omitempty"`
	Timestamp string  `json:"timestamp"`
}

// derivedResponse carries the server-computed distance and ETA that the
// tracking view renders. Present only when both a destination and a
// current position are known.
type derivedResponse struct {
	DistanceKm float64 `json:"distance_km"`
	ETAMinutes int     `json:"eta_minutes"`
}

type snapshotResponse struct {
	TrackingToken string                `json:"tracking_token"`
	Status        string                `json:"status"`
	NextStatuses  []string              `json:"next_statuses"`
	RecipientName string                `json:"recipient_name"`
	Address       string                `json:"recipient_address,omitempty"`
	Destination   *coordinatesResponse  `json:"destination,omitempty"`
	AgentID       string                `json:"agent_id,omitempty"`
	PaymentMethod string                `json:"payment_method,omitempty"`
	CODAmount     float64               `json:"cod_amount,omitempty"`
	CODCollected  float64               `json:"cod_collected_amount,omitempty"`
	StatusHistory []statusEventResponse `json:"status_history"`
	Position      *positionResponse     `json:"position,omitempty"`
	Derived       *derivedResponse      `json:"derived,omitempty"`
	CreatedAt     string                `json:"created_at"`
}

func newSnapshotResponse(snap *ports.OrderSnapshot) snapshotResponse {
	order := snap.Order

	next := make([]string, 0, len(snap.NextStatuses))
	for _, s := range snap.NextStatuses {
		next = append(next, string(s))
	}

	history := make([]statusEventResponse, 0, len(order.StatusHistory))
	for _, ev := range order.StatusHistory {
		history = append(history, statusEventResponse{
			Status:    string(ev.Status),
			Note:      ev.Note,
			Location:  newCoordinatesResponse(ev.Location),
			Timestamp: ev.Timestamp.UTC().Format(time.RFC3339),
		})
	}

	resp := snapshotResponse{
		TrackingToken: order.TrackingToken,
		Status:        string(order.Status),
		NextStatuses:  next,
		RecipientName: order.RecipientName,
		Address:       order.Address,
		Destination:   newCoordinatesResponse(order.Destination),
		AgentID:       order.AgentID,
		PaymentMethod: order.PaymentMethod,
		CODAmount:     order.CODAmount,
		CODCollected:  order.CODCollected,
		StatusHistory: history,
		CreatedAt:     order.CreatedAt.UTC().Format(time.RFC3339),
	}

	if snap.Position != nil {
		resp.Position = &positionResponse{
			AgentID:   snap.Position.AgentID,
			Lat:       snap.Position.Lat,
			Lng:       snap.Position.Lng,
			SpeedKmh:  snap.Position.SpeedKmh,
			Heading:   snap.Position.Heading,
			Timestamp: snap.Position.Timestamp.UTC().Format(time.RFC3339),
		}
		if order.Destination != nil {
			dist := geo.DistanceKm(snap.Position.Lat, snap.Position.Lng,
				order.Destination.Lat, order.Destination.Lng)
			resp.Derived = &derivedResponse{
				DistanceKm: dist,
				ETAMinutes: geo.ETAMinutes(dist, snap.Position.SpeedKmh),
			}
		}
	}

	return resp
}

func newCoordinatesResponse(c *track.Coordinates) *coordinatesResponse {
	if c == nil {
		return nil
	}
	return &coordinatesResponse{Lat: c.Lat, Lng: c.Lng}
}

func coordinatesFromRequest(lat, lng *float64) *track.Coordinates {
	if lat == nil || lng == nil {
		return nil
	}
	return &track.Coordinates{Lat: *lat, Lng: *lng}
}
