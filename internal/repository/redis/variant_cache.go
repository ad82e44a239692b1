package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/prakyath/spree-commerse/internal/domain"
)

const (
	variantKeyPrefix        = "variant:"
	productVariantKeyPrefix = "product_variants:"
)

// VariantCache implements repository.VariantCache using Redis. Each cached
// variant is also indexed under its product so a product change can evict
// all of its variants.
type VariantCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewVariantCache creates a new Redis-backed variant cache.
func NewVariantCache(client *redis.Client, ttl time.Duration) *VariantCache {
	return &VariantCache{client: client, ttl: ttl}
}

// Get returns the cached variant, or (nil, nil) on a miss.
func (c *VariantCache) Get(ctx context.Context, id string) (*domain.Variant, error) {
	data, err := c.client.Get(ctx, variantKeyPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get variant: %w", err)
	}

	var v domain.Variant
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("unmarshal variant: %w", err)
	}
	return &v, nil
}

// Set caches v and adds it to its product's index.
func (c *VariantCache) Set(ctx context.Context, v *domain.Variant) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal variant: %w", err)
	}

	pipe := c.client.TxPipeline()
	pipe.Set(ctx, variantKeyPrefix+v.ID, data, c.ttl)
	if v.ProductID != "" {
		indexKey := productVariantKeyPrefix + v.ProductID
		pipe.SAdd(ctx, indexKey, v.ID)
		pipe.Expire(ctx, indexKey, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis set variant: %w", err)
	}
	return nil
}

// InvalidateVariant evicts one variant.
func (c *VariantCache) InvalidateVariant(ctx context.Context, id string) error {
	if err := c.client.Del(ctx, variantKeyPrefix+id).Err(); err != nil {
		return fmt.Errorf("redis del variant: %w", err)
	}
	return nil
}

// InvalidateProduct evicts every cached variant of a product.
func (c *VariantCache) InvalidateProduct(ctx context.Context, productID string) error {
	indexKey := productVariantKeyPrefix + productID

	ids, err := c.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return fmt.Errorf("redis smembers product variants: %w", err)
	}

	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, variantKeyPrefix+id)
	}
	keys = append(keys, indexKey)

	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del product variants: %w", err)
	}
	return nil
}
