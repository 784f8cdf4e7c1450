package clkhouse

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/Tonic56/stock-trading-simulator/internal/config"
	"github.com/Tonic56/stock-trading-simulator/internal/events"
)

func NewClient(ctx context.Context, cfg config.ClickHouseConfig) (driver.Conn, error) {
	const op = "adapters/clkhouse.NewClient"

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("%s: ping: %w", op, err)
	}

	return conn, nil
}

type Repository struct {
	conn          driver.Conn
	table         string
	batchSize     int
	flushInterval time.Duration
	log           *slog.Logger
}

func NewRepository(conn driver.Conn, cfg config.ClickHouseConfig, log *slog.Logger) *Repository {
	return &Repository{
		conn:          conn,
		table:         cfg.Table,
		batchSize:     cfg.BatchSize,
		flushInterval: cfg.FlushInterval,
		log:           log,
	}
}

func (r *Repository) CreateTable(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			message_id  String,
			user_id     String,
			kind        LowCardinality(String),
			symbol      LowCardinality(String),
			name        String,
			shares      Int64,
			price       Decimal(20, 4),
			amount      Decimal(20, 4),
			balance     Decimal(20, 4),
			occurred_at DateTime64(3, 'UTC')
		) ENGINE = MergeTree()
		ORDER BY (user_id, occurred_at)`, r.table)

	return r.conn.Exec(ctx, query)
}

// BatchInsert drains in, flushing whenever batchSize events are buffered or
// flushInterval elapses. Remaining events are flushed when in closes.
func (r *Repository) BatchInsert(ctx context.Context, wg *sync.WaitGroup, in <-chan events.TradeEvent) {
	defer wg.Done()

	ticker := time.NewTicker(r.flushInterval)
	defer ticker.Stop()

	buf := make([]events.TradeEvent, 0, r.batchSize)

	flush := func(ctx context.Context) {
		if len(buf) == 0 {
			return
		}
		if err := r.insert(ctx, buf); err != nil {
			r.log.Error("failed to insert trade events", "count", len(buf), "error", err)
		} else {
			r.log.Debug("inserted trade events", "count", len(buf))
		}
		buf = buf[:0]
	}

	for {
		select {
		case event, ok := <-in:
			if !ok {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				flush(shutdownCtx)
				cancel()
				r.log.Info("clickhouse writer stopped")
				return
			}
			buf = append(buf, event)
			if len(buf) >= r.batchSize {
				flush(ctx)
			}
		case <-ticker.C:
			flush(ctx)
		}
	}
}

func (r *Repository) insert(ctx context.Context, rows []events.TradeEvent) error {
	batch, err := r.conn.PrepareBatch(ctx, "INSERT INTO "+r.table)
	if err != nil {
		return err
	}

	for _, e := range rows {
		err := batch.Append(
			e.MessageID,
			e.UserID,
			string(e.Kind),
			e.Symbol,
			e.Name,
			e.Shares,
			e.Price,
			e.Amount,
			e.Balance,
			e.OccurredAt,
		)
		if err != nil {
			_ = batch.Abort()
			return err
		}
	}

	return batch.Send()
}
