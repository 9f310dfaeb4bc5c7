package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Store is the cache contract shared by the in-process and database backends.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	IncrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}

// GetJSON decodes the cached value for key into a fresh T.
func GetJSON[T any](ctx context.Context, s Store, key string) (*T, bool, error) {
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}

	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		// An undecodable entry is treated as a miss and dropped.
		_ = s.Delete(ctx, key)
		return nil, false, fmt.Errorf("cache: decode %q: %w", key, err)
	}
	return &out, true, nil
}

// SetJSON encodes value and stores it under key.
func SetJSON(ctx context.Context, s Store, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: encode %q: %w", key, err)
	}
	return s.Set(ctx, key, raw, ttl)
}
