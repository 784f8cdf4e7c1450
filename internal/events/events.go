package events

import (
	"context"
	"errors"
	"time"

	"github.com/Tonic56/stock-trading-simulator/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TradeEvent is emitted once per committed ledger entry.
type TradeEvent struct {
	MessageID  string           `json:"message_id"`
	UserID     string           `json:"user_id"`
	Kind       models.EntryKind `json:"kind"`
	Symbol     string           `json:"symbol,omitempty"`
	Name       string           `json:"name,omitempty"`
	Shares     int64            `json:"shares"`
	Price      decimal.Decimal  `json:"price"`
	Amount     decimal.Decimal  `json:"amount"`
	Balance    decimal.Decimal  `json:"balance"`
	OccurredAt time.Time        `json:"occurred_at"`
}

// FromEntry builds the event for a committed history entry. Amount is the
// debit for a buy and the credit otherwise.
func FromEntry(entry *models.HistoryEntry) TradeEvent {
	amount := entry.Credit.Decimal
	if entry.Debit.Valid {
		amount = entry.Debit.Decimal
	}

	return TradeEvent{
		MessageID:  uuid.NewString(),
		UserID:     entry.UserID.String(),
		Kind:       entry.Kind,
		Symbol:     entry.Symbol,
		Name:       entry.Name,
		Shares:     entry.Shares,
		Price:      entry.Price.Decimal,
		Amount:     amount,
		Balance:    entry.BalanceAfter,
		OccurredAt: entry.OccurredAt,
	}
}

type Publisher interface {
	Publish(ctx context.Context, event TradeEvent) error
}

type nopPublisher struct{}

func Nop() Publisher { return nopPublisher{} }

func (nopPublisher) Publish(context.Context, TradeEvent) error { return nil }

type multiPublisher []Publisher

// Multi fans an event out to every publisher and joins their errors.
func Multi(publishers ...Publisher) Publisher {
	return multiPublisher(publishers)
}

func (m multiPublisher) Publish(ctx context.Context, event TradeEvent) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
