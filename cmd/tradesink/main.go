package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/Tonic56/stock-trading-simulator/adapters/clkhouse"
	"github.com/Tonic56/stock-trading-simulator/adapters/kaffka"
	"github.com/Tonic56/stock-trading-simulator/internal/config"
	"github.com/Tonic56/stock-trading-simulator/internal/events"
)

func main() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wg := new(sync.WaitGroup)

	cfg := config.MustLoadSink()

	chClient, err := clkhouse.NewClient(ctx, cfg.ClickHouse)
	if err != nil {
		log.Error("Failed to create ClickHouse client. Exiting.", "error", err)
		os.Exit(1)
	}
	defer chClient.Close()

	repo := clkhouse.NewRepository(chClient, cfg.ClickHouse, log)

	if err := repo.CreateTable(ctx); err != nil {
		log.Error("Failed to create table", "error", err)
		os.Exit(1)
	}

	tradeEvents := make(chan events.TradeEvent, 500)

	cons := kaffka.NewConsumer(cfg.Kafka, log)

	wg.Add(2)
	go cons.Start(ctx, wg, tradeEvents)
	go repo.BatchInsert(ctx, wg, tradeEvents)

	<-c
	cancel()
	log.Info("Received shutdown signal")
	log.Info("Waiting for goroutines to finish...")
	wg.Wait()
	log.Info("Shutdown complete")
}
