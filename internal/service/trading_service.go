package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Tonic56/stock-trading-simulator/internal/events"
	"github.com/Tonic56/stock-trading-simulator/internal/models"
	"github.com/Tonic56/stock-trading-simulator/internal/quote"
	"github.com/Tonic56/stock-trading-simulator/internal/repository"
	"github.com/Tonic56/stock-trading-simulator/lib/errs"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const moneyScale = 4

type BatchPolicy string

const (
	// BatchAtomic applies a batch in one transaction; any failure rolls back
	// every item.
	BatchAtomic BatchPolicy = "atomic"
	// BatchPartial commits item by item and stops at the first failure,
	// keeping what was already applied.
	BatchPartial BatchPolicy = "partial"
)

func ParseBatchPolicy(s string) (BatchPolicy, error) {
	switch BatchPolicy(s) {
	case BatchAtomic, BatchPartial:
		return BatchPolicy(s), nil
	default:
		return "", fmt.Errorf("unknown batch policy %q", s)
	}
}

type TradeObserver interface {
	ObserveTrade(kind, outcome string)
}

type TradingService interface {
	Quote(ctx context.Context, symbol string) (*models.Quote, error)
	Buy(ctx context.Context, userID uuid.UUID, symbol string, shares int64) (*models.HistoryEntry, error)
	Sell(ctx context.Context, userID uuid.UUID, symbol string, shares int64) (*models.HistoryEntry, error)
	Deposit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (*models.HistoryEntry, error)
	ViewPortfolio(ctx context.Context, userID uuid.UUID) (*models.PortfolioView, error)
	BatchTrade(ctx context.Context, userID uuid.UUID, items []models.TradeItem) (*models.BatchResult, error)
	History(ctx context.Context, userID uuid.UUID) ([]models.HistoryEntry, error)
}

type tradingService struct {
	db        *gorm.DB
	quotes    quote.Provider
	publisher events.Publisher
	observer  TradeObserver
	policy    BatchPolicy
	log       *slog.Logger
	now       func() time.Time
}

func NewTradingService(
	db *gorm.DB,
	quotes quote.Provider,
	publisher events.Publisher,
	observer TradeObserver,
	policy BatchPolicy,
	log *slog.Logger,
) TradingService {
	if publisher == nil {
		publisher = events.Nop()
	}

	return &tradingService{
		db:        db,
		quotes:    quotes,
		publisher: publisher,
		observer:  observer,
		policy:    policy,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *tradingService) Quote(ctx context.Context, symbol string) (*models.Quote, error) {
	symbol = quote.NormalizeSymbol(symbol)
	if symbol == "" {
		return nil, errs.ErrInvalidSymbol
	}

	return s.quotes.Lookup(ctx, symbol)
}

// Buy returns a nil entry and no error when shares is zero.
func (s *tradingService) Buy(ctx context.Context, userID uuid.UUID, symbol string, shares int64) (*models.HistoryEntry, error) {
	return s.single(ctx, userID, models.TradeItem{Symbol: symbol, Side: models.SideBuy, Shares: shares})
}

// Sell returns a nil entry and no error when shares is zero.
func (s *tradingService) Sell(ctx context.Context, userID uuid.UUID, symbol string, shares int64) (*models.HistoryEntry, error) {
	return s.single(ctx, userID, models.TradeItem{Symbol: symbol, Side: models.SideSell, Shares: shares})
}

func (s *tradingService) single(ctx context.Context, userID uuid.UUID, item models.TradeItem) (*models.HistoryEntry, error) {
	op := "service.trading." + string(item.Side)

	item, skip, err := normalizeItem(item)
	if err != nil {
		s.observe(item.Side, err)
		return nil, err
	}
	if skip {
		return nil, nil
	}

	quotes := s.prefetchQuotes(ctx, []models.TradeItem{item})

	var entry *models.HistoryEntry
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		entry, err = s.apply(tx, userID, item, quotes)
		return err
	})

	s.observe(item.Side, err)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("trade executed", "userID", userID, "side", item.Side, "symbol", item.Symbol, "shares", item.Shares)
	s.publish(ctx, entry)

	return entry, nil
}

func (s *tradingService) BatchTrade(ctx context.Context, userID uuid.UUID, items []models.TradeItem) (*models.BatchResult, error) {
	const op = "service.trading.BatchTrade"

	result := &models.BatchResult{Applied: []models.HistoryEntry{}, FailedAt: -1}

	if err := validateBatch(items); err != nil {
		return result, err
	}

	quotes := s.prefetchQuotes(ctx, items)

	if s.policy == BatchPartial {
		for i, item := range items {
			var entry *models.HistoryEntry
			err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
				var err error
				entry, err = s.applyItem(tx, userID, item, quotes)
				return err
			})
			s.observe(item.Side, err)
			if err != nil {
				result.FailedAt = i
				return result, fmt.Errorf("%s: item %d: %w", op, i, err)
			}
			if entry != nil {
				result.Applied = append(result.Applied, *entry)
				s.publish(ctx, entry)
			}
		}
		return result, nil
	}

	var applied []models.HistoryEntry
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i, item := range items {
			entry, err := s.applyItem(tx, userID, item, quotes)
			if err != nil {
				s.observe(item.Side, err)
				result.FailedAt = i
				return fmt.Errorf("item %d: %w", i, err)
			}
			if entry != nil {
				applied = append(applied, *entry)
			}
		}
		return nil
	})
	if err != nil {
		return result, fmt.Errorf("%s: %w", op, err)
	}

	for i := range applied {
		s.observe(models.Side(applied[i].Kind), nil)
		s.publish(ctx, &applied[i])
	}
	result.Applied = append(result.Applied, applied...)

	s.log.Info("batch executed", "userID", userID, "items", len(items), "applied", len(applied))
	return result, nil
}

func validateBatch(items []models.TradeItem) error {
	if len(items) == 0 {
		return errs.ErrInvalidBatch
	}

	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		symbol := quote.NormalizeSymbol(item.Symbol)
		if _, dup := seen[symbol]; dup {
			return errs.ErrInvalidBatch
		}
		seen[symbol] = struct{}{}
	}

	return nil
}

func (s *tradingService) applyItem(tx *gorm.DB, userID uuid.UUID, item models.TradeItem, quotes quoteSet) (*models.HistoryEntry, error) {
	item, skip, err := normalizeItem(item)
	if err != nil || skip {
		return nil, err
	}
	return s.apply(tx, userID, item, quotes)
}

// apply runs inside a transaction. The user row is locked first so that the
// cash and holding reads below cannot race another trade by the same user.
func (s *tradingService) apply(tx *gorm.DB, userID uuid.UUID, item models.TradeItem, quotes quoteSet) (*models.HistoryEntry, error) {
	usersRepo := repository.NewUsersRepository(tx)
	positionsRepo := repository.NewPositionsRepository(tx)
	historyRepo := repository.NewHistoryRepository(tx)

	user, err := usersRepo.LockUserByID(userID)
	if err != nil {
		return nil, err
	}

	shares := decimal.NewFromInt(item.Shares)
	entry := &models.HistoryEntry{
		UserID:     userID,
		Kind:       models.EntryKind(item.Side),
		Symbol:     item.Symbol,
		OccurredAt: s.now(),
	}

	switch item.Side {
	case models.SideBuy:
		q, err := quotes.get(item.Symbol)
		if err != nil {
			return nil, err
		}

		debit := q.Price.Mul(shares)
		balance := user.Cash.Sub(debit)
		if balance.IsNegative() {
			return nil, errs.ErrInsufficientFunds
		}

		entry.Name = q.Name
		entry.Shares = item.Shares
		entry.Price = decimal.NewNullDecimal(q.Price)
		entry.Debit = decimal.NewNullDecimal(debit)
		entry.BalanceAfter = balance

	case models.SideSell:
		held, err := positionsRepo.Holding(userID, item.Symbol)
		if err != nil {
			return nil, err
		}
		if item.Shares > held {
			return nil, errs.ErrInsufficientShares
		}

		q, err := quotes.get(item.Symbol)
		if err != nil {
			return nil, err
		}

		credit := q.Price.Mul(shares)

		entry.Name = q.Name
		entry.Shares = -item.Shares
		entry.Price = decimal.NewNullDecimal(q.Price)
		entry.Credit = decimal.NewNullDecimal(credit)
		entry.BalanceAfter = user.Cash.Add(credit)
	}

	if err := usersRepo.UpdateCash(userID, entry.BalanceAfter); err != nil {
		return nil, err
	}

	if err := historyRepo.Append(entry); err != nil {
		return nil, err
	}

	if err := positionsRepo.AddDelta(&models.Position{
		UserID: userID,
		Symbol: item.Symbol,
		Name:   entry.Name,
		Shares: entry.Shares,
	}); err != nil {
		return nil, err
	}

	return entry, nil
}

// normalizeItem validates an item. skip is true for a zero-share request,
// which is a no-op rather than an error.
func normalizeItem(item models.TradeItem) (models.TradeItem, bool, error) {
	if item.Side != models.SideBuy && item.Side != models.SideSell {
		return item, false, errs.ErrInvalidSide
	}
	if item.Shares < 0 {
		return item, false, errs.ErrInvalidQuantity
	}
	if item.Shares == 0 {
		return item, true, nil
	}

	item.Symbol = quote.NormalizeSymbol(item.Symbol)
	if item.Symbol == "" {
		return item, false, errs.ErrInvalidSymbol
	}

	return item, false, nil
}

type quoteResult struct {
	quote *models.Quote
	err   error
}

type quoteSet map[string]quoteResult

func (q quoteSet) get(symbol string) (*models.Quote, error) {
	res, ok := q[symbol]
	if !ok {
		return nil, errs.ErrQuoteUnavailable
	}
	return res.quote, res.err
}

// prefetchQuotes resolves quotes before any transaction opens. Failures are
// kept per symbol and only surface when the item that needs them is applied.
func (s *tradingService) prefetchQuotes(ctx context.Context, items []models.TradeItem) quoteSet {
	quotes := make(quoteSet, len(items))

	for _, item := range items {
		item, skip, err := normalizeItem(item)
		if err != nil || skip {
			continue
		}
		if _, done := quotes[item.Symbol]; done {
			continue
		}

		q, err := s.quotes.Lookup(ctx, item.Symbol)
		if err == nil && q.Price.IsNegative() {
			err = errs.ErrInvalidSymbol
		}
		quotes[item.Symbol] = quoteResult{quote: q, err: err}
	}

	return quotes
}

func (s *tradingService) Deposit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (*models.HistoryEntry, error) {
	const op = "service.trading.Deposit"

	// Cash is stored with four decimal places; finer amounts would be
	// silently truncated by the column.
	if !amount.IsPositive() || !amount.Equal(amount.Round(moneyScale)) {
		s.observeKind(string(models.KindDeposit), errs.ErrInvalidAmount)
		return nil, errs.ErrInvalidAmount
	}

	var entry *models.HistoryEntry
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		usersRepo := repository.NewUsersRepository(tx)
		historyRepo := repository.NewHistoryRepository(tx)

		user, err := usersRepo.LockUserByID(userID)
		if err != nil {
			return err
		}

		balance := user.Cash.Add(amount)
		if err := usersRepo.UpdateCash(userID, balance); err != nil {
			return err
		}

		entry = &models.HistoryEntry{
			UserID:       userID,
			Kind:         models.KindDeposit,
			Credit:       decimal.NewNullDecimal(amount),
			BalanceAfter: balance,
			OccurredAt:   s.now(),
		}
		return historyRepo.Append(entry)
	})

	s.observeKind(string(models.KindDeposit), err)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("funds deposited", "userID", userID, "amount", amount.String())
	s.publish(ctx, entry)

	return entry, nil
}

// ViewPortfolio values every open holding at a fresh quote. Symbols whose
// deltas sum to zero are deleted instead of shown.
func (s *tradingService) ViewPortfolio(ctx context.Context, userID uuid.UUID) (*models.PortfolioView, error) {
	const op = "service.trading.ViewPortfolio"

	var (
		user *models.User
		open []models.AggregateRow
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		usersRepo := repository.NewUsersRepository(tx)
		positionsRepo := repository.NewPositionsRepository(tx)

		// Same lock as a trade, so no delta lands between the sum and the prune.
		var err error
		user, err = usersRepo.LockUserByID(userID)
		if err != nil {
			return err
		}

		rows, err := positionsRepo.Aggregate(userID)
		if err != nil {
			return err
		}

		for _, row := range rows {
			if row.Shares == 0 {
				removed, err := positionsRepo.DeleteSymbol(userID, row.Symbol, row.MaxID)
				if err != nil {
					return err
				}
				s.log.Debug("pruned closed position", "userID", userID, "symbol", row.Symbol, "rows", removed)
				continue
			}
			open = append(open, row)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	view := &models.PortfolioView{
		UserID:     user.ID.String(),
		UserName:   user.Username,
		Cash:       user.Cash,
		TotalValue: user.Cash,
		Holdings:   make([]models.HoldingView, 0, len(open)),
	}

	positionsRepo := repository.NewPositionsRepository(s.db.WithContext(ctx))

	for _, row := range open {
		price, err := s.currentPrice(ctx, row)
		if err != nil {
			return nil, fmt.Errorf("%s: %s: %w", op, row.Symbol, err)
		}

		total := price.Mul(decimal.NewFromInt(row.Shares))
		if err := positionsRepo.UpdateDisplay(userID, row.Symbol, price, total); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		view.Holdings = append(view.Holdings, models.HoldingView{
			Symbol:       row.Symbol,
			Name:         row.Name,
			TotalShares:  row.Shares,
			CurrentPrice: price,
			CurrentTotal: total,
		})
		view.TotalValue = view.TotalValue.Add(total)
	}

	return view, nil
}

// currentPrice prefers a fresh quote and falls back to the last cached
// display price when the provider is unavailable.
func (s *tradingService) currentPrice(ctx context.Context, row models.AggregateRow) (decimal.Decimal, error) {
	q, err := s.quotes.Lookup(quote.WithFresh(ctx), row.Symbol)
	if err == nil {
		return q.Price, nil
	}

	if errors.Is(err, errs.ErrQuoteUnavailable) && row.Price.Valid {
		s.log.Warn("quote unavailable, using cached price", "symbol", row.Symbol, "error", err)
		return row.Price.Decimal, nil
	}

	return decimal.Zero, err
}

func (s *tradingService) History(ctx context.Context, userID uuid.UUID) ([]models.HistoryEntry, error) {
	entries, err := repository.NewHistoryRepository(s.db.WithContext(ctx)).ListByUser(userID)
	if err != nil {
		return nil, fmt.Errorf("service.trading.History: %w", err)
	}
	return entries, nil
}

func (s *tradingService) publish(ctx context.Context, entry *models.HistoryEntry) {
	if err := s.publisher.Publish(ctx, events.FromEntry(entry)); err != nil {
		s.log.Warn("failed to publish trade event", "userID", entry.UserID, "kind", entry.Kind, "error", err)
	}
}

// observe labels by side. Anything but buy or sell is recorded as "invalid"
// so request input never becomes a label value.
func (s *tradingService) observe(side models.Side, err error) {
	kind := "invalid"
	if side == models.SideBuy || side == models.SideSell {
		kind = string(side)
	}
	s.observeKind(kind, err)
}

func (s *tradingService) observeKind(kind string, err error) {
	if s.observer == nil {
		return
	}
	s.observer.ObserveTrade(kind, Outcome(err))
}

// Outcome maps an error to a short label for metrics.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, errs.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, errs.ErrInsufficientShares):
		return "insufficient_shares"
	case errors.Is(err, errs.ErrInvalidSymbol):
		return "invalid_symbol"
	case errors.Is(err, errs.ErrInvalidQuantity), errors.Is(err, errs.ErrInvalidAmount), errors.Is(err, errs.ErrInvalidSide):
		return "invalid_request"
	case errors.Is(err, errs.ErrQuoteUnavailable):
		return "quote_unavailable"
	default:
		return "error"
	}
}
