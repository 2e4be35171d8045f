package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"catalog-admin/internal/domain"

	"github.com/redis/go-redis/v9"
)

// ErrStaleFill is returned by Set when the product was invalidated after the
// lookup that produced its generation.
var ErrStaleFill = errors.New("cached product invalidated since lookup")

// generations outlive any in-flight read by a wide margin
const generationTTL = 24 * time.Hour

// Lookup is the result of one cache read. On a miss, Generation is handed back
// to Set so a fill that raced an invalidation is dropped.
type Lookup struct {
	Product    *domain.Product
	Hit        bool
	Generation int64
}

// ProductCache keeps recently read products keyed by id
type ProductCache interface {
	Get(ctx context.Context, id string) (Lookup, error)
	Set(ctx context.Context, product *domain.Product, generation int64) error
	Invalidate(ctx context.Context, ids ...string) error
}

type redisProductCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisProductCache stores products as JSON with the given TTL
func NewRedisProductCache(client *redis.Client, ttl time.Duration) ProductCache {
	return &redisProductCache{client: client, ttl: ttl}
}

func productKey(id string) string {
	return fmt.Sprintf("catalog:product:%s", id)
}

func generationKey(id string) string {
	return fmt.Sprintf("catalog:product:%s:gen", id)
}

// Get returns the cached product, or on a miss the generation to fill with
func (c *redisProductCache) Get(ctx context.Context, id string) (Lookup, error) {
	values, err := c.client.MGet(ctx, productKey(id), generationKey(id)).Result()
	if err != nil {
		return Lookup{}, fmt.Errorf("failed to read cached product: %w", err)
	}

	generation, err := parseGeneration(values[1])
	if err != nil {
		return Lookup{}, err
	}

	raw, ok := values[0].(string)
	if !ok {
		return Lookup{Generation: generation}, nil
	}

	var product domain.Product
	if err := json.Unmarshal([]byte(raw), &product); err != nil {
		return Lookup{}, fmt.Errorf("failed to decode cached product: %w", err)
	}
	return Lookup{Product: &product, Hit: true, Generation: generation}, nil
}

// Set stores product only if no invalidation happened since the lookup that
// returned generation.
func (c *redisProductCache) Set(ctx context.Context, product *domain.Product, generation int64) error {
	raw, err := json.Marshal(product)
	if err != nil {
		return fmt.Errorf("failed to encode product: %w", err)
	}

	genKey := generationKey(product.ID)
	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, genKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != generation {
			return ErrStaleFill
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, productKey(product.ID), raw, c.ttl)
			return nil
		})
		return err
	}, genKey)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrStaleFill), errors.Is(err, redis.TxFailedErr):
		return ErrStaleFill
	default:
		return fmt.Errorf("failed to cache product: %w", err)
	}
}

// Invalidate drops the entries and bumps their generations
func (c *redisProductCache) Invalidate(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range ids {
			pipe.Incr(ctx, generationKey(id))
			pipe.Expire(ctx, generationKey(id), generationTTL)
			pipe.Del(ctx, productKey(id))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to invalidate products: %w", err)
	}
	return nil
}

func parseGeneration(v interface{}) (int64, error) {
	s, ok := v.(string)
	if !ok {
		return 0, nil
	}
	generation, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to decode cache generation: %w", err)
	}
	return generation, nil
}

type nopProductCache struct{}

// NewNopProductCache returns a cache that never stores anything
func NewNopProductCache() ProductCache {
	return nopProductCache{}
}

func (nopProductCache) Get(context.Context, string) (Lookup, error) {
	return Lookup{}, nil
}

func (nopProductCache) Set(context.Context, *domain.Product, int64) error { return nil }

func (nopProductCache) Invalidate(context.Context, ...string) error { return nil }
