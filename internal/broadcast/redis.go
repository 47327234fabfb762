package broadcast

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"kod-admin/internal/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// NewRedisClient creates the broadcast store connection and binds it to the
// application lifecycle.
func NewRedisClient(lc fx.Lifecycle, cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("broadcast: ping: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})

	return client, nil
}

// RedisStore keeps each snapshot under a key named after its path and
// announces changes on a pub/sub channel of the same name.
type RedisStore struct {
	client *redis.Client
	logger *zap.Logger
}

func NewRedisStore(client *redis.Client, logger *zap.Logger) *RedisStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisStore{client: client, logger: logger}
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Write(ctx context.Context, path string, snap Snapshot) error {
	payload, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, path, payload, 0)
		pipe.Publish(ctx, path, payload)
		return nil
	})
	if err != nil {
		return fmt.Errorf("broadcast: write %s: %w", path, err)
	}
	return nil
}

func (s *RedisStore) Read(ctx context.Context, path string) (Event, error) {
	raw, err := s.client.Get(ctx, path).Bytes()
	if errors.Is(err, redis.Nil) {
		return Event{Path: path, Status: EventNoData}, nil
	}
	if err != nil {
		return Event{}, fmt.Errorf("broadcast: read %s: %w", path, err)
	}
	return decodeSnapshot(path, raw), nil
}

func (s *RedisStore) Subscribe(ctx context.Context, path string) (Subscription, error) {
	pubsub := s.client.Subscribe(ctx, path)

	// Wait for the confirmation so no change published after Subscribe
	// returns can be missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("broadcast: subscribe %s: %w", path, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	sub := &redisSubscription{
		events: make(chan Event, 8),
		pubsub: pubsub,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go sub.run(runCtx, s, path)

	return sub, nil
}

const (
	healthCheckInterval = 30 * time.Second
	minRetryDelay       = 100 * time.Millisecond
	maxRetryDelay       = 5 * time.Second
)

type redisSubscription struct {
	events chan Event
	pubsub *redis.PubSub
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
	err    error
}

func (r *redisSubscription) Events() <-chan Event {
	return r.events
}

func (r *redisSubscription) Close() error {
	r.once.Do(func() {
		r.cancel()
		r.err = r.pubsub.Close()
		<-r.done
	})
	return r.err
}

func (r *redisSubscription) run(ctx context.Context, store *RedisStore, path string) {
	defer close(r.done)
	defer close(r.events)

	emit := func(ev Event) bool {
		select {
		case r.events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	// Notifications only signal a change; the value is always re-read so a
	// late message never brings back an older set.
	emitCurrent := func() bool {
		ev, err := store.Read(ctx, path)
		if err != nil {
			if ctx.Err() != nil {
				return false
			}
			store.logger.Warn("broadcast read failed", zap.String("path", path), zap.Error(err))
			ev = Event{Path: path, Status: EventError, Err: err}
		}
		return emit(ev)
	}

	if !emitCurrent() {
		return
	}

	// Receive is used instead of Channel so that a dropped connection is
	// reported. go-redis resubscribes on the next Receive and the resulting
	// confirmation triggers a fresh read.
	backoff := minRetryDelay
	failing := false
	for {
		msg, err := r.pubsub.ReceiveTimeout(ctx, healthCheckInterval)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			if isTimeout(err) {
				if err := r.pubsub.Ping(ctx); err == nil {
					continue
				}
			}
			if !failing {
				failing = true
				store.logger.Warn("broadcast subscription lost", zap.String("path", path), zap.Error(err))
				if !emit(Event{Path: path, Status: EventError, Err: fmt.Errorf("broadcast: subscription %s: %w", path, err)}) {
					return
				}
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, maxRetryDelay)
			continue
		}

		switch m := msg.(type) {
		case *redis.Subscription:
			if m.Kind != "subscribe" {
				continue
			}
			if failing {
				store.logger.Info("broadcast subscription restored", zap.String("path", path))
			}
			failing = false
			backoff = minRetryDelay
			if !emitCurrent() {
				return
			}
		case *redis.Message:
			if !emitCurrent() {
				return
			}
		}
	}
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
