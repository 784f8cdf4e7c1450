package repository_test

import (
	"testing"

	"github.com/Tonic56/stock-trading-simulator/internal/models"
	"github.com/Tonic56/stock-trading-simulator/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPositionsAggregate(t *testing.T) {
	testDB := setupTestDB(t)
	repo := repository.NewPositionsRepository(testDB)

	alice, bob := uuid.New(), uuid.New()
	deltas := []models.Position{
		{UserID: alice, Symbol: "AAPL", Name: "Apple Inc", Shares: 10},
		{UserID: alice, Symbol: "AAPL", Name: "Apple Inc", Shares: -4},
		{UserID: alice, Symbol: "MSFT", Name: "Microsoft Corp", Shares: 3},
		{UserID: alice, Symbol: "MSFT", Name: "Microsoft Corp", Shares: -3},
		{UserID: bob, Symbol: "AAPL", Name: "Apple Inc", Shares: 7},
	}
	for i := range deltas {
		require.NoError(t, repo.AddDelta(&deltas[i]))
	}

	t.Run("holding", func(t *testing.T) {
		shares, err := repo.Holding(alice, "AAPL")
		require.NoError(t, err)
		assert.Equal(t, int64(6), shares)

		shares, err = repo.Holding(alice, "TSLA")
		require.NoError(t, err)
		assert.Equal(t, int64(0), shares)
	})

	t.Run("aggregate_is_per_user", func(t *testing.T) {
		rows, err := repo.Aggregate(alice)
		require.NoError(t, err)
		assert.Equal(t, []models.AggregateRow{
			{Symbol: "AAPL", Name: "Apple Inc", Shares: 6, MaxID: deltas[1].ID},
			{Symbol: "MSFT", Name: "Microsoft Corp", Shares: 0, MaxID: deltas[3].ID},
		}, rows)
	})

	t.Run("delete_symbol_keeps_newer_deltas", func(t *testing.T) {
		late := models.Position{UserID: alice, Symbol: "MSFT", Name: "Microsoft Corp", Shares: 2}
		require.NoError(t, repo.AddDelta(&late))

		removed, err := repo.DeleteSymbol(alice, "MSFT", deltas[3].ID)
		require.NoError(t, err)
		assert.Equal(t, int64(2), removed)

		shares, err := repo.Holding(alice, "MSFT")
		require.NoError(t, err)
		assert.Equal(t, int64(2), shares)
	})

	t.Run("delete_symbol_is_scoped_to_user", func(t *testing.T) {
		removed, err := repo.DeleteSymbol(alice, "AAPL", deltas[1].ID)
		require.NoError(t, err)
		assert.Equal(t, int64(2), removed)

		shares, err := repo.Holding(bob, "AAPL")
		require.NoError(t, err)
		assert.Equal(t, int64(7), shares)
	})

	t.Run("update_display", func(t *testing.T) {
		price := decimal.RequireFromString("150.25")
		total := price.Mul(decimal.NewFromInt(7))
		require.NoError(t, repo.UpdateDisplay(bob, "AAPL", price, total))

		var stored models.Position
		require.NoError(t, testDB.Where("user_id = ? AND symbol = ?", bob, "AAPL").First(&stored).Error)
		require.True(t, stored.Price.Valid)
		assert.True(t, stored.Price.Decimal.Equal(price))
		assert.True(t, stored.Total.Decimal.Equal(total))
	})
}
