package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type EntryKind string

const (
	KindBuy     EntryKind = "buy"
	KindSell    EntryKind = "sell"
	KindDeposit EntryKind = "deposit"
)

func (user *User) BeforeCreate(tx *gorm.DB) (err error) {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	return
}

type User struct {
	ID           uuid.UUID       `gorm:"type:uuid;primaryKey;" json:"id"`
	Username     string          `gorm:"unique;not null" json:"username"`
	PasswordHash string          `gorm:"not null" json:"-"`
	Cash         decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"cash"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// Position is one signed share delta. The holding for a symbol is the sum of
// its deltas; Price and Total cache the last valuation shown to the user.
type Position struct {
	ID        uint                `gorm:"primaryKey" json:"id"`
	UserID    uuid.UUID           `gorm:"type:uuid;index:idx_positions_user_symbol;not null" json:"userId"`
	Symbol    string              `gorm:"index:idx_positions_user_symbol;not null" json:"symbol"`
	Name      string              `gorm:"not null" json:"name"`
	Shares    int64               `gorm:"not null" json:"shares"`
	Price     decimal.NullDecimal `gorm:"type:decimal(20,4)" json:"price"`
	Total     decimal.NullDecimal `gorm:"type:decimal(20,4)" json:"total"`
	CreatedAt time.Time           `json:"createdAt"`
}

// HistoryEntry is append-only. Shares is positive for a buy, negative for a
// sell and zero for a deposit.
type HistoryEntry struct {
	ID           uint                `gorm:"primaryKey" json:"id"`
	UserID       uuid.UUID           `gorm:"type:uuid;index;not null" json:"userId"`
	Kind         EntryKind           `gorm:"size:16;not null" json:"kind"`
	Name         string              `json:"name"`
	Symbol       string              `json:"symbol"`
	Shares       int64               `gorm:"not null" json:"shares"`
	Price        decimal.NullDecimal `gorm:"type:decimal(20,4)" json:"price"`
	Debit        decimal.NullDecimal `gorm:"type:decimal(20,4)" json:"debit"`
	Credit       decimal.NullDecimal `gorm:"type:decimal(20,4)" json:"credit"`
	BalanceAfter decimal.Decimal     `gorm:"type:decimal(20,4);not null" json:"balance"`
	OccurredAt   time.Time           `gorm:"index;not null" json:"datetime"`
}

func (HistoryEntry) TableName() string {
	return "history"
}

func (Position) TableName() string {
	return "portfolio"
}
