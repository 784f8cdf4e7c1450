package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/Tonic56/stock-trading-simulator/internal/events"
	"github.com/Tonic56/stock-trading-simulator/storage/redis"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

// unreachable points at a closed port so every command fails fast.
func unreachable(t *testing.T) *goredis.Client {
	t.Helper()
	client := goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1",
		MaxRetries:  -1,
		DialTimeout: 200 * time.Millisecond,
	})
	t.Cleanup(func() { client.Close() })
	return client
}

func TestPublisherSurfacesErrors(t *testing.T) {
	p := redis.NewPublisher(unreachable(t), "ledger.trades")

	err := p.Publish(context.Background(), events.TradeEvent{UserID: "u1", Kind: "buy"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "redis publisher")
}

func TestDenylistSurfacesErrors(t *testing.T) {
	d := redis.NewDenylist(unreachable(t))
	ctx := context.Background()

	assert.Error(t, d.Add(ctx, "token-id", time.Minute))

	revoked, err := d.Contains(ctx, "token-id")
	assert.Error(t, err)
	assert.False(t, revoked)
}
