package models

import (
	"github.com/shopspring/decimal"
)

type Quote struct {
	Symbol string          `json:"symbol"`
	Name   string          `json:"name"`
	Price  decimal.Decimal `json:"price"`
}

type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

type TradeItem struct {
	Symbol string `json:"symbol"`
	Side   Side   `json:"side"`
	Shares int64  `json:"shares"`
}

type HoldingView struct {
	Symbol       string          `json:"symbol"`
	Name         string          `json:"name"`
	TotalShares  int64           `json:"totalShares"`
	CurrentPrice decimal.Decimal `json:"currentPrice"`
	CurrentTotal decimal.Decimal `json:"currentTotal"`
}

type PortfolioView struct {
	UserID     string          `json:"userID"`
	UserName   string          `json:"userName"`
	Cash       decimal.Decimal `json:"cash"`
	TotalValue decimal.Decimal `json:"totalValue"`
	Holdings   []HoldingView   `json:"holdings"`
}

// AggregateRow is one symbol's summed position deltas. Price is the last
// cached display price, if any. MaxID is the newest delta included in the sum.
type AggregateRow struct {
	Symbol string
	Name   string
	Shares int64
	Price  decimal.NullDecimal
	MaxID  uint
}

type BatchResult struct {
	Applied  []HistoryEntry `json:"applied"`
	FailedAt int            `json:"failedAt"`
}
