// Package redis implements the decision audit sink using Redis/Valkey streams.
package redis

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/dwsmith1983/queuegate/internal/provider"
	"github.com/dwsmith1983/queuegate/pkg/types"
)

// Compile-time interface satisfaction check.
var _ provider.DecisionSink = (*RedisProvider)(nil)

const (
	defaultPrefix    = "queuegate:"
	defaultStreamMax = 1000
)

// RedisProvider stores decisions in one capped stream per job.
type RedisProvider struct {
	client    *goredis.Client
	prefix    string
	streamMax int64
}

// New creates a new RedisProvider.
func New(cfg *types.RedisConfig) *RedisProvider {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	p := NewFromClient(client, cfg.KeyPrefix)
	if cfg.StreamMax > 0 {
		p.streamMax = cfg.StreamMax
	}
	return p
}

// NewFromClient creates a RedisProvider from an existing client (useful for testing).
func NewFromClient(client *goredis.Client, prefix string) *RedisProvider {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &RedisProvider{
		client:    client,
		prefix:    prefix,
		streamMax: defaultStreamMax,
	}
}

// Start initializes the provider connection.
func (p *RedisProvider) Start(ctx context.Context) error {
	return p.Ping(ctx)
}

// Stop closes the provider connection.
func (p *RedisProvider) Stop(_ context.Context) error {
	return p.client.Close()
}

// Ping checks connectivity to the Redis server.
func (p *RedisProvider) Ping(ctx context.Context) error {
	if err := p.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// Client returns the underlying Redis client (for advanced usage/testing).
func (p *RedisProvider) Client() *goredis.Client {
	return p.client
}
