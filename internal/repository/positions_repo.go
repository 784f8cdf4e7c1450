package repository

import (
	"github.com/Tonic56/stock-trading-simulator/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type PositionsRepository interface {
	AddDelta(position *models.Position) error
	Holding(userID uuid.UUID, symbol string) (int64, error)
	Aggregate(userID uuid.UUID) ([]models.AggregateRow, error)
	DeleteSymbol(userID uuid.UUID, symbol string, upToID uint) (int64, error)
	UpdateDisplay(userID uuid.UUID, symbol string, price, total decimal.Decimal) error
}

type positionsRepository struct {
	db *gorm.DB
}

func NewPositionsRepository(db *gorm.DB) PositionsRepository {
	return &positionsRepository{
		db: db,
	}
}

func (db *positionsRepository) AddDelta(position *models.Position) error {
	return db.db.Create(position).Error
}

func (db *positionsRepository) Holding(userID uuid.UUID, symbol string) (int64, error) {
	var shares int64

	err := db.db.Model(&models.Position{}).
		Select("COALESCE(CAST(SUM(shares) AS BIGINT), 0)").
		Where("user_id = ? AND symbol = ?", userID, symbol).
		Scan(&shares).Error
	if err != nil {
		return 0, err
	}

	return shares, nil
}

func (db *positionsRepository) Aggregate(userID uuid.UUID) ([]models.AggregateRow, error) {
	var rows []models.AggregateRow

	err := db.db.Model(&models.Position{}).
		Select("symbol, MAX(name) AS name, CAST(SUM(shares) AS BIGINT) AS shares, MAX(price) AS price, MAX(id) AS max_id").
		Where("user_id = ?", userID).
		Group("symbol").
		Order("symbol").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	return rows, nil
}

// DeleteSymbol removes the user's deltas for symbol with id <= upToID and
// reports how many rows were removed. Deltas added after the aggregate was
// read are kept.
func (db *positionsRepository) DeleteSymbol(userID uuid.UUID, symbol string, upToID uint) (int64, error) {
	result := db.db.Where("user_id = ? AND symbol = ? AND id <= ?", userID, symbol, upToID).Delete(&models.Position{})

	if result.Error != nil {
		return 0, result.Error
	}

	return result.RowsAffected, nil
}

func (db *positionsRepository) UpdateDisplay(userID uuid.UUID, symbol string, price, total decimal.Decimal) error {
	return db.db.Model(&models.Position{}).
		Where("user_id = ? AND symbol = ?", userID, symbol).
		Updates(map[string]any{
			"price": decimal.NewNullDecimal(price),
			"total": decimal.NewNullDecimal(total),
		}).Error
}
