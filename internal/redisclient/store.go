// Package redisclient keeps the console's small pieces of shared state in
// Redis: the device API token and the provisioning audit journal.
package redisclient

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mohit83k/hotspot-console/internal/model"
)

const (
	// AuditKeyPrefix starts every audit journal key.
	AuditKeyPrefix = "radius:audit:"

	defaultAuditTTL = 30 * 24 * time.Hour
)

// NewClient returns a go-redis client with auto-reconnect and retry.
func NewClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:            addr,
		Password:        password,
		DB:              db,
		MaxRetries:      5,
		MinRetryBackoff: 100 * time.Millisecond,
		MaxRetryBackoff: 1 * time.Second,
	})
}

// AuditStore journals committed provisioning writes.
type AuditStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewAuditStore returns an AuditStore whose entries expire after 30 days.
func NewAuditStore(client *redis.Client) *AuditStore {
	return &AuditStore{client: client, ttl: defaultAuditTTL}
}

// AuditKey returns the journal key for ev:
// radius:audit:<username>:<action>:<timestamp>:<event id>.
func AuditKey(ev model.AuditEvent) string {
	return fmt.Sprintf("%s%s:%s:%s:%s", AuditKeyPrefix, ev.Username, ev.Action, ev.Timestamp.UTC().Format("20060102T150405"), ev.ID)
}

// Save stores the event as JSON with a TTL.
func (a *AuditStore) Save(ctx context.Context, ev model.AuditEvent) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal audit event: %w", err)
	}

	if err := a.client.Set(ctx, AuditKey(ev), string(value), a.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save audit event in redis: %w", err)
	}
	return nil
}

// Get loads one journal entry by key.
func (a *AuditStore) Get(ctx context.Context, key string) (model.AuditEvent, error) {
	var ev model.AuditEvent
	raw, err := a.client.Get(ctx, key).Result()
	if err != nil {
		return ev, fmt.Errorf("failed to read audit event %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		return ev, fmt.Errorf("failed to unmarshal audit event %s: %w", key, err)
	}
	return ev, nil
}
