package repository

import (
	"github.com/Tonic56/stock-trading-simulator/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type HistoryRepository interface {
	Append(entry *models.HistoryEntry) error
	ListByUser(userID uuid.UUID) ([]models.HistoryEntry, error)
	SumDebits(userID uuid.UUID) (decimal.Decimal, error)
	SumCredits(userID uuid.UUID) (decimal.Decimal, error)
}

type historyRepository struct {
	db *gorm.DB
}

func NewHistoryRepository(db *gorm.DB) HistoryRepository {
	return &historyRepository{db: db}
}

func (db *historyRepository) Append(entry *models.HistoryEntry) error {
	return db.db.Create(entry).Error
}

func (db *historyRepository) ListByUser(userID uuid.UUID) ([]models.HistoryEntry, error) {
	var entries []models.HistoryEntry

	if err := db.db.Where("user_id = ?", userID).Order("occurred_at, id").Find(&entries).Error; err != nil {
		return nil, err
	}

	return entries, nil
}

func (db *historyRepository) SumDebits(userID uuid.UUID) (decimal.Decimal, error) {
	return db.sum(userID, "debit")
}

// SumCredits includes deposits as well as sale proceeds.
func (db *historyRepository) SumCredits(userID uuid.UUID) (decimal.Decimal, error) {
	return db.sum(userID, "credit")
}

func (db *historyRepository) sum(userID uuid.UUID, column string) (decimal.Decimal, error) {
	var total decimal.NullDecimal

	row := db.db.Model(&models.HistoryEntry{}).
		Select("SUM("+column+")").
		Where("user_id = ?", userID).
		Row()
	if err := row.Scan(&total); err != nil {
		return decimal.Zero, err
	}

	if !total.Valid {
		return decimal.Zero, nil
	}
	return total.Decimal, nil
}
