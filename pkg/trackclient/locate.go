package trackclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/trasealla/delivery-tracking/pkg/track"
)

// DefaultSensorTimeout bounds a geolocation sensor read. A sensor that
// has not answered by then is treated as unavailable rather than
// blocking the caller indefinitely.
const DefaultSensorTimeout = 4 * time.Second

// PositionSensor reads the device's current coordinates.
type PositionSensor interface {
	Read(ctx context.Context) (track.Coordinates, error)
}

// Locate reads the sensor with a bounded timeout. Zero timeout means
// DefaultSensorTimeout. A timeout or sensor failure comes back as
// track.ErrUnavailable: callers attach the coordinate when they have
// one and proceed without it otherwise.
func Locate(ctx context.Context, sensor PositionSensor, timeout time.Duration) (track.Coordinates, error) {
	if timeout <= 0 {
		timeout = DefaultSensorTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	pos, err := sensor.Read(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return track.Coordinates{}, fmt.Errorf("%w: position sensor timed out", track.ErrUnavailable)
		}
		return track.Coordinates{}, fmt.Errorf("%w: position sensor: %v", track.ErrUnavailable, err)
	}
	return pos, nil
}
