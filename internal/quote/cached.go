package quote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Tonic56/stock-trading-simulator/internal/models"
	"github.com/redis/go-redis/v9"
)

const cacheKeyPrefix = "quote:"

// Cached is a read-through Redis cache in front of another provider. Redis
// failures are logged and the upstream provider answers instead. Lookups on a
// context marked with WithFresh bypass the read but refresh the entry.
type Cached struct {
	next Provider
	rdb  *redis.Client
	ttl  time.Duration
	log  *slog.Logger
}

func NewCached(next Provider, rdb *redis.Client, ttl time.Duration, log *slog.Logger) *Cached {
	return &Cached{
		next: next,
		rdb:  rdb,
		ttl:  ttl,
		log:  log,
	}
}

func (c *Cached) Lookup(ctx context.Context, symbol string) (*models.Quote, error) {
	symbol = NormalizeSymbol(symbol)
	key := cacheKeyPrefix + symbol

	if !IsFresh(ctx) {
		if q, ok := c.cached(ctx, symbol, key); ok {
			return q, nil
		}
	}

	q, err := c.next.Lookup(ctx, symbol)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(q)
	if err != nil {
		return nil, fmt.Errorf("quote.Cached: marshal: %w", err)
	}

	if err := c.rdb.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		c.log.Warn("failed to cache quote", "symbol", symbol, "error", err)
	}

	return q, nil
}

func (c *Cached) cached(ctx context.Context, symbol, key string) (*models.Quote, bool) {
	cached, err := c.rdb.Get(ctx, key).Result()
	switch {
	case err == nil:
		var q models.Quote
		if err := json.Unmarshal([]byte(cached), &q); err == nil {
			return &q, true
		}
		c.log.Warn("corrupt cached quote, refetching", "symbol", symbol)
	case errors.Is(err, redis.Nil):
	default:
		c.log.Warn("quote cache read failed", "symbol", symbol, "error", err)
	}

	return nil, false
}
