package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"IPHForecast/pkg/config"
)

// BytesCache stores raw response bodies with a TTL.
type BytesCache interface {
	GetBytes(ctx context.Context, key string) (b []byte, ok bool, err error)
	SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Close() error
}

// New picks the backend named by cache.type.
func New(cfg *config.Config) BytesCache {
	switch cfg.Cache.Type {
	case "redis":
		return NewRedisCache(RedisConfig{
			Addr:        cfg.Redis.Addr,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			Prefix:      "iph:",
			DialTimeout: cfg.Redis.DialTimeout,
		})
	case "none":
		return NopCache{}
	default:
		return NewTTLCache(cfg.Cache.MaxEntries)
	}
}

// GetJSON decodes a cached value into dest. A miss returns false and no error.
func GetJSON(ctx context.Context, c BytesCache, key string, dest interface{}) (bool, error) {
	b, ok, err := c.GetBytes(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(b, dest); err != nil {
		return false, fmt.Errorf("decode cached %s: %w", key, err)
	}
	return true, nil
}

func SetJSON(ctx context.Context, c BytesCache, key string, v interface{}, ttl time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return c.SetBytes(ctx, key, b, ttl)
}

// NopCache never hits.
type NopCache struct{}

func (NopCache) GetBytes(context.Context, string) ([]byte, bool, error)        { return nil, false, nil }
func (NopCache) SetBytes(context.Context, string, []byte, time.Duration) error { return nil }
func (NopCache) Close() error                                                  { return nil }
