// Package geo provides the coordinate math used for delivery ETA
// heuristics: great-circle distance and a linear time estimate. Accuracy
// is deliberately haversine-level; ellipsoidal corrections are
// irrelevant at city scale.
package geo

import "math"

const earthRadiusKm = 6371.0

// DefaultSpeedKmh is the reference speed assumed whenever an agent has
// no usable instantaneous speed sample.
const DefaultSpeedKmh = 40.0

// MaxPlausibleSpeedKmh bounds instantaneous speed samples. Readings
// above it (GPS glitches) are clamped to the default rather than
// propagated into displayed ETAs.
const MaxPlausibleSpeedKmh = 150.0

// DistanceKm returns the great-circle distance in kilometres between
// two points given as (lat, lng) degree pairs.
func DistanceKm(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*
			math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}

// ETAMinutes returns ceil(distanceKm / speedKmh * 60). A speed outside
// the plausible range (<=0 or > MaxPlausibleSpeedKmh) falls back to
// DefaultSpeedKmh. A zero distance yields zero.
func ETAMinutes(distanceKm, speedKmh float64) int {
	if distanceKm <= 0 {
		return 0
	}
	speed := ClampSpeed(speedKmh)
	return int(math.Ceil(distanceKm / speed * 60))
}

// ClampSpeed maps an implausible instantaneous speed sample to
// DefaultSpeedKmh and returns plausible samples unchanged.
func ClampSpeed(speedKmh float64) float64 {
	if speedKmh <= 0 || speedKmh > MaxPlausibleSpeedKmh {
		return DefaultSpeedKmh
	}
	return speedKmh
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
