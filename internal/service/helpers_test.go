package service_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/Tonic56/stock-trading-simulator/internal/events"
	"github.com/Tonic56/stock-trading-simulator/internal/models"
	"github.com/Tonic56/stock-trading-simulator/internal/quote"
	"github.com/Tonic56/stock-trading-simulator/internal/repository"
	"github.com/Tonic56/stock-trading-simulator/internal/service"
	"github.com/Tonic56/stock-trading-simulator/lib/errs"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to connect database: %v", err)
	}

	if err := db.AutoMigrate(&models.User{}, &models.Position{}, &models.HistoryEntry{}); err != nil {
		t.Fatalf("failed to migrate database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql db: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })

	return db
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeQuotes struct {
	mu     sync.Mutex
	prices map[string]decimal.Decimal
	errs   map[string]error
	calls  int
	fresh  int
}

func newFakeQuotes() *fakeQuotes {
	return &fakeQuotes{
		prices: make(map[string]decimal.Decimal),
		errs:   make(map[string]error),
	}
}

func (f *fakeQuotes) set(symbol, price string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices[symbol] = decimal.RequireFromString(price)
	delete(f.errs, symbol)
}

func (f *fakeQuotes) fail(symbol string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[symbol] = err
}

func (f *fakeQuotes) Lookup(ctx context.Context, symbol string) (*models.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if quote.IsFresh(ctx) {
		f.fresh++
	}

	if err, ok := f.errs[symbol]; ok {
		return nil, err
	}
	price, ok := f.prices[symbol]
	if !ok {
		return nil, errs.ErrInvalidSymbol
	}
	return &models.Quote{Symbol: symbol, Name: symbol + " Inc", Price: price}, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.TradeEvent
}

func (p *recordingPublisher) Publish(_ context.Context, ev events.TradeEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

type recordingObserver struct {
	mu       sync.Mutex
	outcomes []string
}

func (o *recordingObserver) ObserveTrade(kind, outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, kind+":"+outcome)
}

type tradingFixture struct {
	db        *gorm.DB
	quotes    *fakeQuotes
	publisher *recordingPublisher
	observer  *recordingObserver
	svc       service.TradingService
	users     repository.UsersRepository
	positions repository.PositionsRepository
	history   repository.HistoryRepository
}

func newTradingFixture(t *testing.T, policy service.BatchPolicy) *tradingFixture {
	t.Helper()

	db := setupTestDB(t)
	f := &tradingFixture{
		db:        db,
		quotes:    newFakeQuotes(),
		publisher: &recordingPublisher{},
		observer:  &recordingObserver{},
		users:     repository.NewUsersRepository(db),
		positions: repository.NewPositionsRepository(db),
		history:   repository.NewHistoryRepository(db),
	}
	f.svc = service.NewTradingService(db, f.quotes, f.publisher, f.observer, policy, discardLogger())
	return f
}

func (f *tradingFixture) newUser(t *testing.T, cash string) uuid.UUID {
	t.Helper()

	user := &models.User{
		Username:     "user-" + uuid.NewString(),
		PasswordHash: "hash",
		Cash:         decimal.RequireFromString(cash),
	}
	require.NoError(t, f.users.CreateUser(user))
	return user.ID
}

func (f *tradingFixture) cash(t *testing.T, userID uuid.UUID) decimal.Decimal {
	t.Helper()

	user, err := f.users.GetUserByID(userID)
	require.NoError(t, err)
	return user.Cash
}

func (f *tradingFixture) holding(t *testing.T, userID uuid.UUID, symbol string) int64 {
	t.Helper()

	shares, err := f.positions.Holding(userID, symbol)
	require.NoError(t, err)
	return shares
}

func (f *tradingFixture) historyLen(t *testing.T, userID uuid.UUID) int {
	t.Helper()

	entries, err := f.history.ListByUser(userID)
	require.NoError(t, err)
	return len(entries)
}

func (f *tradingFixture) positionRows(t *testing.T, userID uuid.UUID) int64 {
	t.Helper()

	var n int64
	require.NoError(t, f.db.Model(&models.Position{}).Where("user_id = ?", userID).Count(&n).Error)
	return n
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
