package trackclient

import (
	"github.com/trasealla/delivery-tracking/pkg/track"
)

// Bounds is an axis-aligned lat/lng box.
type Bounds struct {
	MinLat, MinLng float64
	MaxLat, MaxLng float64
}

// Contains reports whether p lies inside the box.
func (b Bounds) Contains(p track.Coordinates) bool {
	return p.Lat >= b.MinLat && p.Lat <= b.MaxLat &&
		p.Lng >= b.MinLng && p.Lng <= b.MaxLng
}

// Center returns the midpoint of the box.
func (b Bounds) Center() track.Coordinates {
	return track.Coordinates{
		Lat: (b.MinLat + b.MaxLat) / 2,
		Lng: (b.MinLng + b.MaxLng) / 2,
	}
}

// boundsOf returns the padded bounding box of a point set.
func boundsOf(points []track.Coordinates, padding float64) Bounds {
	b := Bounds{
		MinLat: points[0].Lat, MaxLat: points[0].Lat,
		MinLng: points[0].Lng, MaxLng: points[0].Lng,
	}
	for _, p := range points[1:] {
		if p.Lat < b.MinLat {
			b.MinLat = p.Lat
		}
		if p.Lat > b.MaxLat {
			b.MaxLat = p.Lat
		}
		if p.Lng < b.MinLng {
			b.MinLng = p.Lng
		}
		if p.Lng > b.MaxLng {
			b.MaxLng = p.Lng
		}
	}
	b.MinLat -= padding
	b.MaxLat += padding
	b.MinLng -= padding
	b.MaxLng += padding
	return b
}

// defaultPadding keeps markers off the viewport edge after a fit,
// in degrees (~1 km at the equator).
const defaultPadding = 0.01

// Viewport is the fit-once-then-pan camera model for a map surface.
// The first FitOnce sizes the view to contain all points; afterwards
// Observe only pans (keeping the span, i.e. the zoom) when a point
// leaves the visible bounds. The bounding-box fit never re-runs, so the
// zoom level cannot visibly jump on updates.
type Viewport struct {
	fitted bool
	bounds Bounds
}

// NewViewport returns an unfitted viewport.
func NewViewport() *Viewport {
	return &Viewport{}
}

// Fitted reports whether the one-time fit has happened.
func (v *Viewport) Fitted() bool { return v.fitted }

// Bounds returns the current visible bounds. Zero value until fitted.
func (v *Viewport) Bounds() Bounds { return v.bounds }

// Center returns the current view center. Zero value until fitted.
func (v *Viewport) Center() track.Coordinates { return v.bounds.Center() }

// FitOnce fits the viewport to contain every point. Only the first call
// with a non-empty point set has any effect; it reports whether the fit
// ran.
func (v *Viewport) FitOnce(points ...track.Coordinates) bool {
	if v.fitted || len(points) == 0 {
		return false
	}
	v.bounds = boundsOf(points, defaultPadding)
	v.fitted = true
	return true
}

// Observe feeds a position update. In-bounds points leave the viewport
// untouched; an out-of-bounds point pans the view (same span, new
// center) to re-include it. It reports whether a pan happened.
func (v *Viewport) Observe(p track.Coordinates) bool {
	if !v.fitted {
		return false
	}
	if v.bounds.Contains(p) {
		return false
	}

	spanLat := v.bounds.MaxLat - v.bounds.MinLat
	spanLng := v.bounds.MaxLng - v.bounds.MinLng
	v.bounds = Bounds{
		MinLat: p.Lat - spanLat/2,
		MaxLat: p.Lat + spanLat/2,
		MinLng: p.Lng - spanLng/2,
		MaxLng: p.Lng + spanLng/2,
	}
	return true
}

// MarkerColor maps an order status to its marker color. Purely derived
// from the status enum, never tracked separately.
func MarkerColor(status track.OrderStatus) string {
	switch status {
	case track.StatusPending:
		return "#9E9E9E" // grey
	case track.StatusConfirmed, track.StatusAssigned:
		return "#2196F3" // blue
	case track.StatusPickedUp, track.StatusInTransit:
		return "#FF9800" // orange
	case track.StatusDelivered:
		return "#4CAF50" // green
	case track.StatusFailed, track.StatusReturned:
		return "#F44336" // red
	case track.StatusCancelled:
		return "#607D8B" // blue-grey
	default:
		return "#9E9E9E"
	}
}

// AgentMarkerColor maps an agent's operational status to its marker
// color on the operations map.
func AgentMarkerColor(status track.AgentStatus) string {
	switch status {
	case track.AgentAvailable:
		return "#4CAF50"
	case track.AgentBusy:
		return "#FF9800"
	case track.AgentReturning:
		return "#2196F3"
	case track.AgentOnBreak:
		return "#9E9E9E"
	case track.AgentOffline:
		return "#607D8B"
	default:
		return "#9E9E9E"
	}
}
