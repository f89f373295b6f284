package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/kislikjeka/pesaprime/internal/platform/asset"
	"github.com/kislikjeka/pesaprime/internal/platform/currency"
	"github.com/kislikjeka/pesaprime/pkg/logger"
)

const (
	// DefaultTTL bounds how stale cached reference data can be
	DefaultTTL = 60 * time.Second

	// KeyPrefix namespaces every key written by this package
	KeyPrefix = "pesaprime:"
)

// Cache is a Redis-backed read-through cache for currency and asset records
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	logger *logger.Logger
}

var (
	_ currency.Cache = (*CurrencyCache)(nil)
	_ asset.Cache    = (*AssetCache)(nil)
)

// NewCache creates a reference-data cache. A non-positive ttl uses DefaultTTL.
func NewCache(client *redis.Client, ttl time.Duration, log *logger.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		client: client,
		ttl:    ttl,
		logger: logger.OrNop(log).WithField("component", "cache"),
	}
}

// Currencies returns the currency.Cache view
func (c *Cache) Currencies() *CurrencyCache {
	return &CurrencyCache{c: c}
}

// Assets returns the asset.Cache view
func (c *Cache) Assets() *AssetCache {
	return &AssetCache{c: c}
}

func (c *Cache) get(ctx context.Context, key string, v any) (bool, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		c.logger.Debug("cache miss", "key", key)
		return false, nil
	}
	if err != nil {
		c.logger.Error("cache error", "operation", "get", "key", key, "error", err)
		return false, fmt.Errorf("failed to get %s: %w", key, err)
	}

	if err := json.Unmarshal(val, v); err != nil {
		return false, fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return true, nil
}

func (c *Cache) set(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}

	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Error("cache error", "operation", "set", "key", key, "error", err)
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

// Clear removes every key written by this package
func (c *Cache) Clear(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, KeyPrefix+"*", 0).Iterator()

	pipe := c.client.Pipeline()
	count := 0
	for iter.Next(ctx) {
		pipe.Del(ctx, iter.Val())
		count++
		if count >= 100 {
			if _, err := pipe.Exec(ctx); err != nil {
				return fmt.Errorf("failed to clear cache: %w", err)
			}
			pipe = c.client.Pipeline()
			count = 0
		}
	}

	if count > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("failed to clear cache: %w", err)
		}
	}

	return iter.Err()
}

// CurrencyCache caches currencies by code
type CurrencyCache struct {
	c *Cache
}

func currencyKey(code string) string {
	return KeyPrefix + "currency:" + code
}

// Get returns a cached currency
func (cc *CurrencyCache) Get(ctx context.Context, code string) (*currency.Currency, bool, error) {
	var cur currency.Currency
	ok, err := cc.c.get(ctx, currencyKey(code), &cur)
	if !ok || err != nil {
		return nil, false, err
	}
	return &cur, true, nil
}

// Set caches a currency
func (cc *CurrencyCache) Set(ctx context.Context, cur *currency.Currency) error {
	return cc.c.set(ctx, currencyKey(cur.Code), cur)
}

// AssetCache caches assets by ID
type AssetCache struct {
	c *Cache
}

func assetKey(id uuid.UUID) string {
	return KeyPrefix + "asset:" + id.String()
}

// Get returns a cached asset
func (ac *AssetCache) Get(ctx context.Context, id uuid.UUID) (*asset.Asset, bool, error) {
	var a asset.Asset
	ok, err := ac.c.get(ctx, assetKey(id), &a)
	if !ok || err != nil {
		return nil, false, err
	}
	return &a, true, nil
}

// Set caches an asset
func (ac *AssetCache) Set(ctx context.Context, a *asset.Asset) error {
	return ac.c.set(ctx, assetKey(a.ID), a)
}

// Invalidate drops a cached asset after its prices or rates change
func (ac *AssetCache) Invalidate(ctx context.Context, id uuid.UUID) error {
	if err := ac.c.client.Del(ctx, assetKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate asset %s: %w", id, err)
	}
	return nil
}
