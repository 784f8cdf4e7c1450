package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Tonic56/stock-trading-simulator/internal/events"
	"github.com/redis/go-redis/v9"
)

// Publisher broadcasts trade events on a pub/sub channel for live consumers.
type Publisher struct {
	client  *redis.Client
	channel string
}

func NewPublisher(client *redis.Client, channel string) *Publisher {
	return &Publisher{
		client:  client,
		channel: channel,
	}
}

func (p *Publisher) Publish(ctx context.Context, event events.TradeEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("redis publisher: marshal: %w", err)
	}

	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publisher: %w", err)
	}
	return nil
}
