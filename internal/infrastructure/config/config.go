package config

import (
	"context"
	"time"

	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Port      string `env:"PORT,      default=8080"`
	Env       string `env:"ENV,       default=development"`
	JWTSecret string `env:"JWT_SECRET"`
	LogLevel  string `env:"LOG_LEVEL, default=info"`

	Mongo    MongoConfig
	Redis    RedisConfig
	Tracking TrackingConfig
}

type MongoConfig struct {
	URI      string `env:"MONGO_URI, default=mongodb://localhost:27017"`
	Database string `env:"MONGO_DB,  default=delivery_tracking"`
}

type RedisConfig struct {
	Addr string `env:"REDIS_ADDR, default=localhost:6379"`
	DB   int    `env:"REDIS_DB,   default=0"`
}

// TrackingConfig carries the product-tuned tracking constants. They are
// configuration, not invariants: deployments may retune them.
type TrackingConfig struct {
	// PollInterval is the fallback snapshot poll period used by clients
	// while an order is in motion.
	PollInterval time.Duration `env:"TRACKING_POLL_INTERVAL, default=15s"`
	// DefaultSpeedKmh is the reference speed for ETA estimates when no
	// usable instantaneous speed sample exists.
	DefaultSpeedKmh float64 `env:"TRACKING_DEFAULT_SPEED_KMH, default=40"`
	// MaxSpeedKmh bounds plausible instantaneous speed samples.
	MaxSpeedKmh float64 `env:"TRACKING_MAX_SPEED_KMH, default=150"`
	// IngestWorkers is the number of sharded position-ingest workers.
	IngestWorkers int `env:"TRACKING_INGEST_WORKERS, default=8"`
}

// Load reads configuration from environment variables using go-envconfig.
func Load(ctx context.Context) (*Config, error) {
	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
