package api

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const denylistPrefix = "denylist:"

// Denylist records revoked token ids until their natural expiry. Lookups
// must be cheap; a lookup error means the caller cannot prove the token is
// still good and must fail closed.
type Denylist interface {
	Add(ctx context.Context, tokenID string, ttl time.Duration) error
	Contains(ctx context.Context, tokenID string) (bool, error)
}

// RedisDenylist stores revocations as TTL'd redis keys so the set
// self-prunes as tokens expire.
type RedisDenylist struct {
	client *redis.Client
}

// NewRedisDenylist wraps an existing redis client.
func NewRedisDenylist(client *redis.Client) (*RedisDenylist, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	return &RedisDenylist{client: client}, nil
}

func (d *RedisDenylist) Add(ctx context.Context, tokenID string, ttl time.Duration) error {
	if tokenID == "" {
		return errors.New("token id is required")
	}
	if ttl <= 0 {
		return nil
	}
	return d.client.Set(ctx, denylistPrefix+tokenID, "revoked", ttl).Err()
}

func (d *RedisDenylist) Contains(ctx context.Context, tokenID string) (bool, error) {
	_, err := d.client.Get(ctx, denylistPrefix+tokenID).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// MemoryDenylist is a process-local denylist for tests and single-node
// development runs. Expired entries are swept on each write.
type MemoryDenylist struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

func NewMemoryDenylist() *MemoryDenylist {
	return &MemoryDenylist{entries: make(map[string]time.Time), now: time.Now}
}

func (d *MemoryDenylist) Add(_ context.Context, tokenID string, ttl time.Duration) error {
	if tokenID == "" {
		return errors.New("token id is required")
	}
	if ttl <= 0 {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	for id, until := range d.entries {
		if now.After(until) {
			delete(d.entries, id)
		}
	}
	d.entries[tokenID] = now.Add(ttl)
	return nil
}

func (d *MemoryDenylist) Contains(_ context.Context, tokenID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	until, ok := d.entries[tokenID]
	if !ok {
		return false, nil
	}
	return d.now().Before(until), nil
}
