package bridge

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/hollyvale/mqttdash/config"
	"github.com/hollyvale/mqttdash/log"
)

// A Publisher sends a payload to a pub/sub channel.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// A Subscriber delivers payloads from pub/sub channels to fn until ctx
// is canceled.
type Subscriber interface {
	Subscribe(ctx context.Context, fn func(channel string, payload []byte), channels ...string) error
}

// Redis implements Publisher and Subscriber on a Redis server.
type Redis struct {
	rdb *redis.Client
}

// NewRedis connects to the Redis server described by cfg. The connection
// is verified with a ping.
func NewRedis(ctx context.Context, cfg config.RedisConfig) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}

	log.Info("Connected to Redis", "addr", cfg.Addr, "db", cfg.DB)

	return &Redis{rdb: rdb}, nil
}

// Close releases the Redis connection.
func (r *Redis) Close() error {
	return r.rdb.Close()
}

func (r *Redis) Publish(ctx context.Context, channel string, payload []byte) error {
	return r.rdb.Publish(ctx, channel, payload).Err()
}

// Subscribe consumes the channels until ctx is canceled. Messages are
// delivered on the subscription goroutine, so fn must not block.
func (r *Redis) Subscribe(ctx context.Context, fn func(channel string, payload []byte), channels ...string) error {
	ps := r.rdb.Subscribe(ctx, channels...)

	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return err
	}

	go func() {
		defer func() { _ = ps.Close() }()

		ch := ps.Channel()

		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				fn(msg.Channel, []byte(msg.Payload))
			}
		}
	}()

	return nil
}
