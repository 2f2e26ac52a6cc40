package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/oddsworks/parimutuel/internal/domain"
)

// PriceCache implements domain.PriceSource using Redis hashes. Each feed's
// latest observation is stored at key "price:{feed}" with fields "price"
// (scaled integer) and "ts" (Unix nanosecond timestamp). The feeder writes,
// the engine reads; staleness is judged by the engine against "ts".
type PriceCache struct {
	rdb *redis.Client
}

// NewPriceCache creates a PriceCache backed by the given Client.
func NewPriceCache(c *Client) *PriceCache {
	return &PriceCache{rdb: c.Underlying()}
}

func priceKey(feed string) string {
	return "price:" + feed
}

// Publish stores the latest observation for a feed.
func (pc *PriceCache) Publish(ctx context.Context, feed string, obs domain.Observation) error {
	fields := map[string]interface{}{
		"price": strconv.FormatInt(obs.Price, 10),
		"ts":    strconv.FormatInt(obs.ObservedAt.UnixNano(), 10),
	}
	if err := pc.rdb.HSet(ctx, priceKey(feed), fields).Err(); err != nil {
		return fmt.Errorf("redis: publish price %s: %w", feed, err)
	}
	return nil
}

// Observe retrieves the latest observation for a feed. It returns
// domain.ErrNotFound when the feed has never been written.
func (pc *PriceCache) Observe(ctx context.Context, feed string) (domain.Observation, error) {
	vals, err := pc.rdb.HGetAll(ctx, priceKey(feed)).Result()
	if err != nil {
		return domain.Observation{}, fmt.Errorf("redis: observe %s: %w", feed, err)
	}
	if len(vals) == 0 {
		return domain.Observation{}, domain.ErrNotFound
	}

	priceStr, ok := vals["price"]
	if !ok {
		return domain.Observation{}, domain.ErrNotFound
	}
	price, err := strconv.ParseInt(priceStr, 10, 64)
	if err != nil {
		return domain.Observation{}, fmt.Errorf("redis: parse price %s: %w", feed, err)
	}

	tsStr, ok := vals["ts"]
	if !ok {
		return domain.Observation{}, domain.ErrNotFound
	}
	tsNano, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return domain.Observation{}, fmt.Errorf("redis: parse ts %s: %w", feed, err)
	}

	return domain.Observation{Price: price, ObservedAt: time.Unix(0, tsNano).UTC()}, nil
}

// Compile-time interface check.
var _ domain.PriceSource = (*PriceCache)(nil)
