package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const dedupTTL = time.Minute

// ScanDedup provides idempotency checks for scan events backed by Redis.
// A driver holding a code in front of the camera produces the same scan
// many times per second; only the first within the window is audited.
// Key format: scan:<tracking_token>:<scan_type>:<unix_minute>
type ScanDedup struct {
	client *redis.Client
}

// NewScanDedup creates a ScanDedup wrapping the given Redis client.
func NewScanDedup(client *redis.Client) *ScanDedup {
	return &ScanDedup{client: client}
}

// IsDuplicate reports whether an equivalent scan was already recorded
// within the dedup window.
func (d *ScanDedup) IsDuplicate(ctx context.Context, token, scanType string, ts time.Time) (bool, error) {
	n, err := d.client.Exists(ctx, d.key(token, scanType, ts)).Result()
	if err != nil {
		return false, fmt.Errorf("scan dedup check: %w", err)
	}
	return n > 0, nil
}

// Mark records that this scan has been processed (expires after dedupTTL).
func (d *ScanDedup) Mark(ctx context.Context, token, scanType string, ts time.Time) error {
	return d.client.Set(ctx, d.key(token, scanType, ts), "1", dedupTTL).Err()
}

func (d *ScanDedup) key(token, scanType string, ts time.Time) string {
	return fmt.Sprintf("scan:%s:%s:%d", token, scanType, ts.Unix()/60)
}
