package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	tokenKeyPrefix  = "radius:device-token:"
	defaultTokenTTL = time.Hour
)

// TokenCache shares the device API bearer token between console processes.
type TokenCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewTokenCache returns a TokenCache whose tokens expire after an hour.
func NewTokenCache(client *redis.Client) *TokenCache {
	return &TokenCache{client: client, ttl: defaultTokenTTL}
}

// Load returns the cached token for key, or "" when none is cached.
func (c *TokenCache) Load(ctx context.Context, key string) (string, error) {
	token, err := c.client.Get(ctx, tokenKeyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load device token: %w", err)
	}
	return token, nil
}

// Store overwrites the cached token for key.
func (c *TokenCache) Store(ctx context.Context, key, token string) error {
	if err := c.client.Set(ctx, tokenKeyPrefix+key, token, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store device token: %w", err)
	}
	return nil
}
