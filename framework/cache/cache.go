// Package cache provides key/value stores with expiry behind one Store
// interface, and a Manager that builds the configured stores by name.
package cache

import (
	"context"
	"encoding/json"
	"time"
)

// Store is a cache backend. A ttl of zero stores the value forever.
type Store interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Has(ctx context.Context, key string) (bool, error)
	Forget(ctx context.Context, key string) (bool, error)
	Flush(ctx context.Context) error
}

// Remember returns the cached value for key, or stores and returns the
// result of fn when the key is missing.
//
//	b, err := cache.Remember(ctx, store, "stats", time.Minute, func() ([]byte, error) {
//	    return computeStats(ctx)
//	})
func Remember(ctx context.Context, s Store, key string, ttl time.Duration, fn func() ([]byte, error)) ([]byte, error) {
	if v, ok, err := s.Get(ctx, key); err != nil {
		return nil, err
	} else if ok {
		return v, nil
	}
	v, err := fn()
	if err != nil {
		return nil, err
	}
	if err := s.Put(ctx, key, v, ttl); err != nil {
		return nil, err
	}
	return v, nil
}

// GetJSON decodes a cached JSON value into dst.
func GetJSON(ctx context.Context, s Store, key string, dst any) (bool, error) {
	b, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	return true, json.Unmarshal(b, dst)
}

// PutJSON stores v as JSON.
func PutJSON(ctx context.Context, s Store, key string, v any, ttl time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.Put(ctx, key, b, ttl)
}
