// Package redis implements the ephemeral store and the price-event channel
// on top of go-redis.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coinpulse/coinpulse/internal/api/store"
	"github.com/coinpulse/coinpulse/pkg/slogx"
	goredis "github.com/redis/go-redis/v9"
)

// Config holds connection settings.
type Config struct {
	Addr     string
	Username string
	Password string
	DB       int
}

// Ephemeral is a store.Ephemeral backed by Redis. Keys expire natively.
type Ephemeral struct {
	client *goredis.Client
}

var _ store.Ephemeral = (*Ephemeral)(nil)

// New connects and pings.
func New(ctx context.Context, cfg Config) (*Ephemeral, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", cfg.Addr, err)
	}
	return &Ephemeral{client: client}, nil
}

func (e *Ephemeral) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		return errors.New("redis: ephemeral ttl must be positive")
	}
	return e.client.Set(ctx, key, value, ttl).Err()
}

func (e *Ephemeral) Get(ctx context.Context, key string) (string, error) {
	v, err := e.client.Get(ctx, key).Result()
	return v, mapNil(err)
}

func (e *Ephemeral) Delete(ctx context.Context, key string) error {
	return e.client.Del(ctx, key).Err()
}

// Take uses GETDEL, which Redis executes atomically.
func (e *Ephemeral) Take(ctx context.Context, key string) (string, error) {
	v, err := e.client.GetDel(ctx, key).Result()
	return v, mapNil(err)
}

func (e *Ephemeral) Ping(ctx context.Context) error {
	return e.client.Ping(ctx).Err()
}

func (e *Ephemeral) Close() error {
	return e.client.Close()
}

// Publish sends payload on channel.
func (e *Ephemeral) Publish(ctx context.Context, channel, payload string) error {
	return e.client.Publish(ctx, channel, payload).Err()
}

// Subscribe calls fn for every message on channel until ctx is cancelled.
// fn runs on the subscriber goroutine; slow handlers delay later messages.
func (e *Ephemeral) Subscribe(ctx context.Context, channel string, fn func(ctx context.Context, payload string)) error {
	sub := e.client.Subscribe(ctx, channel)
	defer sub.Close()

	// Wait for the subscription confirmation so callers know messages
	// published after this returns are delivered.
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redis: subscribe %s: %w", channel, err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			func() {
				defer func() {
					if r := recover(); r != nil {
						slogx.FromContext(ctx).Error("redis subscriber handler panicked", "channel", channel, "panic", r)
					}
				}()
				fn(ctx, msg.Payload)
			}()
		}
	}
}

func mapNil(err error) error {
	if errors.Is(err, goredis.Nil) {
		return store.ErrNotFound
	}
	return err
}
