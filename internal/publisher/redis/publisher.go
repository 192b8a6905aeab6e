// Package redis publishes notifications on Redis pub/sub channels.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	goredis "github.com/redis/go-redis/v9"
)

// Client is the subset of the go-redis client used for publishing.
type Client interface {
	Publish(ctx context.Context, channel string, message any) *goredis.IntCmd
}

// Publisher sends JSON payloads with PUBLISH.
type Publisher struct {
	client Client
}

// New wraps client.
func New(client Client) *Publisher {
	return &Publisher{client: client}
}

// Publish marshals payload and publishes it on channel. The returned id is
// the number of subscribers that received it.
func (p *Publisher) Publish(ctx context.Context, channel string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	n, err := p.client.Publish(ctx, channel, data).Result()
	if err != nil {
		return "", fmt.Errorf("publish to %s: %w", channel, err)
	}
	return strconv.FormatInt(n, 10), nil
}

// Close is a no-op; the client belongs to the broker.
func (p *Publisher) Close() error { return nil }
