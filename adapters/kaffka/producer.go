package kaffka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/Tonic56/stock-trading-simulator/internal/config"
	"github.com/Tonic56/stock-trading-simulator/internal/events"
	"github.com/segmentio/kafka-go"
)

// Producer writes trade events keyed by user id, so one user's events stay
// ordered within a partition.
type Producer struct {
	writer *kafka.Writer
	log    *slog.Logger
}

func NewProducer(cfg config.KafkaConfig, log *slog.Logger) *Producer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
		RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
		MaxAttempts:  cfg.MaxAttempts,
		WriteTimeout: cfg.WriteTimeout,
		Async:        true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				log.Error("failed to deliver trade events", "count", len(messages), "error", err)
			}
		},
	}

	return &Producer{
		writer: w,
		log:    log,
	}
}

func (p *Producer) Publish(ctx context.Context, event events.TradeEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("kafka producer: marshal: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.UserID),
		Value: value,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka producer: %w", err)
	}
	return nil
}

func (p *Producer) Close() error {
	p.log.Info("closing kafka producer...")
	return p.writer.Close()
}
