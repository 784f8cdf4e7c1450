package kaffka

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/Tonic56/stock-trading-simulator/internal/config"
	"github.com/Tonic56/stock-trading-simulator/internal/events"
	"github.com/segmentio/kafka-go"
)

type Consumer struct {
	reader *kafka.Reader
	log    *slog.Logger
}

func NewConsumer(cfg config.KafkaConfig, log *slog.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})

	return &Consumer{
		reader: r,
		log:    log,
	}
}

// Start reads until ctx is cancelled and closes out when it returns.
// Undecodable messages are logged and skipped.
func (c *Consumer) Start(ctx context.Context, wg *sync.WaitGroup, out chan<- events.TradeEvent) {
	defer wg.Done()
	defer close(out)
	defer func() {
		if err := c.reader.Close(); err != nil {
			c.log.Warn("error closing kafka reader", "error", err)
		}
	}()

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				c.log.Info("kafka consumer stopped")
				return
			}
			c.log.Error("failed to read kafka message", "error", err)
			continue
		}

		var event events.TradeEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			c.log.Warn("skipping malformed trade event", "offset", msg.Offset, "error", err)
			continue
		}

		select {
		case out <- event:
		case <-ctx.Done():
			return
		}
	}
}
