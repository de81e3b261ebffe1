package cache

import (
	"context"
	"encoding/json"
	"time"
)

// Store is a byte-oriented key/value cache with per-entry TTL.
type Store interface {
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// GetJSON decodes a cached JSON value into dst. A decode failure is reported as a miss.
func GetJSON(ctx context.Context, s Store, key string, dst any) (bool, error) {
	if s == nil {
		return false, nil
	}
	raw, found, err := s.Get(ctx, key)
	if err != nil || !found {
		return false, err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, nil
	}
	return true, nil
}

func SetJSON(ctx context.Context, s Store, key string, value any, ttl time.Duration) error {
	if s == nil {
		return nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.Set(ctx, key, raw, ttl)
}
