package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// BytesCache is a minimal cache API storing raw bytes with TTL.
// Used for rendered dashboard payloads; a miss is (nil, false, nil).
type BytesCache interface {
	GetBytes(ctx context.Context, key string) (b []byte, ok bool, err error)
	SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// GetJSON decodes the cached value under key into T. An undecodable entry
// counts as a miss.
func GetJSON[T any](ctx context.Context, c BytesCache, key string) (T, bool, error) {
	var v T
	b, ok, err := c.GetBytes(ctx, key)
	if err != nil || !ok {
		return v, false, err
	}
	if err := json.Unmarshal(b, &v); err != nil {
		return v, false, nil
	}
	return v, true, nil
}

// SetJSON stores v as JSON under key.
func SetJSON[T any](ctx context.Context, c BytesCache, key string, v T, ttl time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return c.SetBytes(ctx, key, b, ttl)
}
