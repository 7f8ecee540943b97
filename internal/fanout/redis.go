package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisRelay publishes events on a pub/sub channel so every API instance sees
// them. When the relay is in use the local hub is fed only by Subscribe, which
// keeps an instance from delivering its own events twice.
type RedisRelay struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger
}

// NewRedisClient parses url and pings the server
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

func NewRedisRelay(client *redis.Client, channel string, logger *zap.Logger) *RedisRelay {
	return &RedisRelay{client: client, channel: channel, logger: logger.Named("redis-relay")}
}

func (r *RedisRelay) Name() string { return "redis" }

func (r *RedisRelay) Deliver(ctx context.Context, msg Message) error {
	if err := r.client.Publish(ctx, r.channel, msg.Data).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Subscribe forwards every relayed event to local until stop is called or ctx
// ends. It returns once the subscription is confirmed by the server.
func (r *RedisRelay) Subscribe(ctx context.Context, local Sink) (stop func(), err error) {
	sub := r.client.Subscribe(ctx, r.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", r.channel, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok {
					return
				}
				r.forward(ctx, local, m)
			}
		}
	}()

	return func() {
		cancel()
		_ = sub.Close()
		<-done
	}, nil
}

func (r *RedisRelay) forward(ctx context.Context, local Sink, m *redis.Message) {
	var event Event
	if err := json.Unmarshal([]byte(m.Payload), &event); err != nil {
		r.logger.Warn("Dropping malformed relayed event", zap.Error(err))
		return
	}

	deliverCtx, cancel := context.WithTimeout(ctx, deliverTimeout)
	defer cancel()
	if err := local.Deliver(deliverCtx, Message{Event: event, Data: []byte(m.Payload)}); err != nil {
		r.logger.Warn("Local delivery of relayed event failed",
			zap.String("event", event.Type),
			zap.String("sink", local.Name()),
			zap.Error(err),
		)
	}
}
