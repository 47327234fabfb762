package broadcast

import (
	"context"
	"fmt"

	"kod-admin/internal/config"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Drivers accepted in BROADCAST_DRIVER.
const (
	DriverRedis  = "redis"
	DriverMemory = "memory"
)

// Store is the realtime read path for role permission snapshots. The sync
// service is its only writer.
type Store interface {
	// Write fully replaces the snapshot at path and notifies subscribers.
	Write(ctx context.Context, path string, snap Snapshot) error
	// Read returns the current value at path.
	Read(ctx context.Context, path string) (Event, error)
	// Subscribe delivers the current value of path followed by one event per
	// change until the subscription is closed or ctx is done.
	Subscribe(ctx context.Context, path string) (Subscription, error)
	// Ping reports whether the store is reachable.
	Ping(ctx context.Context) error
}

// Subscription is a standing listener on one path.
type Subscription interface {
	Events() <-chan Event
	// Close releases the listener. It is safe to call more than once; after
	// it returns no further events are delivered.
	Close() error
}

// NewStore builds the configured Store. The memory driver only serves a single
// process and is meant for local development.
func NewStore(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) (Store, error) {
	switch cfg.BroadcastDriver {
	case DriverMemory:
		logger.Warn("using in-process broadcast store; permission changes are not shared across instances")
		return NewMemoryStore(), nil
	case DriverRedis, "":
		client, err := NewRedisClient(lc, cfg)
		if err != nil {
			return nil, err
		}
		logger.Info("connected to broadcast store", zap.String("addr", cfg.RedisAddr))
		return NewRedisStore(client, logger), nil
	default:
		return nil, fmt.Errorf("broadcast: unknown driver %q", cfg.BroadcastDriver)
	}
}

// PathsFromConfig selects the broadcast root for the configured environment.
func PathsFromConfig(cfg *config.Config) Paths {
	return NewPaths(cfg.Environment)
}
