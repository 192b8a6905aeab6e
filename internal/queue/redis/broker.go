// Package redis implements the set broker on Redis SPOP/SADD.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Config describes the Redis connection.
type Config struct {
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// Cmdable is the subset of the go-redis client the broker needs.
type Cmdable interface {
	SPop(ctx context.Context, key string) *goredis.StringCmd
	SAdd(ctx context.Context, key string, members ...any) *goredis.IntCmd
	SCard(ctx context.Context, key string) *goredis.IntCmd
	Ping(ctx context.Context) *goredis.StatusCmd
}

// Broker pops and pushes record ids on Redis sets.
type Broker struct {
	client Cmdable
	closer func() error
}

// NewClient dials Redis and verifies the connection with PING.
func NewClient(ctx context.Context, cfg Config) (*goredis.Client, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis.addr is required")
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return client, nil
}

// New wraps an existing client. Close on the broker closes client when it
// implements io.Closer.
func New(client Cmdable) *Broker {
	b := &Broker{client: client}
	if c, ok := client.(interface{ Close() error }); ok {
		b.closer = c.Close
	}
	return b
}

// Pop removes a random member of key. ok is false when the set is empty.
func (b *Broker) Pop(ctx context.Context, key string) (string, bool, error) {
	id, err := b.client.SPop(ctx, key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("spop %s: %w", key, err)
	}
	return id, true, nil
}

// Add inserts ids into key.
func (b *Broker) Add(ctx context.Context, key string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	members := make([]any, len(ids))
	for i, id := range ids {
		members[i] = id
	}
	if err := b.client.SAdd(ctx, key, members...).Err(); err != nil {
		return fmt.Errorf("sadd %s: %w", key, err)
	}
	return nil
}

// Len returns the number of ids waiting under key.
func (b *Broker) Len(ctx context.Context, key string) (int64, error) {
	n, err := b.client.SCard(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("scard %s: %w", key, err)
	}
	return n, nil
}

// Ping checks connectivity.
func (b *Broker) Ping(ctx context.Context) error {
	if err := b.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

// Close releases the client.
func (b *Broker) Close() error {
	if b.closer == nil {
		return nil
	}
	if err := b.closer(); err != nil {
		return fmt.Errorf("close redis: %w", err)
	}
	return nil
}
