package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"

	"github.com/Tonic56/stock-trading-simulator/adapters/kaffka"
	"github.com/Tonic56/stock-trading-simulator/internal/config"
	"github.com/Tonic56/stock-trading-simulator/internal/events"
	"github.com/Tonic56/stock-trading-simulator/internal/grpc/health"
	httphandler "github.com/Tonic56/stock-trading-simulator/internal/handler/http"
	"github.com/Tonic56/stock-trading-simulator/internal/metrics"
	"github.com/Tonic56/stock-trading-simulator/internal/quote"
	"github.com/Tonic56/stock-trading-simulator/internal/repository"
	"github.com/Tonic56/stock-trading-simulator/internal/service"
	"github.com/Tonic56/stock-trading-simulator/internal/websocket"
	"github.com/Tonic56/stock-trading-simulator/storage/postgres"
	"github.com/Tonic56/stock-trading-simulator/storage/redis"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

type App struct {
	cfg             *config.Config
	log             *slog.Logger
	grpcServer      *grpc.Server
	httpServer      *http.Server
	storage         *postgres.Storage
	redisClient     *goredis.Client
	redisSubscriber *redis.Subscriber
	producer        *kaffka.Producer
	wsManager       *websocket.Manager
	healthChecker   *health.Checker
	stopOnce        sync.Once

	ctx    context.Context
	cancel context.CancelFunc
}

func New(log *slog.Logger, cfg *config.Config) *App {
	ctx, cancel := context.WithCancel(context.Background())

	storage, err := postgres.New(cfg.Database)
	if err != nil {
		panic(fmt.Errorf("failed to init storage: %w", err))
	}

	initialCash, err := decimal.NewFromString(cfg.Trading.InitialCash)
	if err != nil {
		panic(fmt.Errorf("invalid INITIAL_CASH %q: %w", cfg.Trading.InitialCash, err))
	}

	policy, err := service.ParseBatchPolicy(cfg.Trading.BatchPolicy)
	if err != nil {
		panic(err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	appMetrics := metrics.NewMetrics(registry)

	redisClient := redis.NewClient(cfg.Redis)
	redisSubscriber := redis.NewSubscriber(redisClient, log)

	var quotes quote.Provider = quote.NewAlphaVantage(cfg.Quote.BaseURL, cfg.Quote.APIKey, cfg.Quote.RatePerMin, log)
	quotes = quote.NewCached(quotes, redisClient, cfg.Quote.CacheTTL, log)
	quotes = quote.WithTimeout(quotes, cfg.Quote.Timeout, appMetrics)

	publishers := []events.Publisher{redis.NewPublisher(redisClient, cfg.Redis.TradeChannel)}
	var producer *kaffka.Producer
	if cfg.Kafka.Enabled {
		producer = kaffka.NewProducer(cfg.Kafka, log)
		publishers = append(publishers, producer)
		log.Info("kafka trade stream enabled", "topic", cfg.Kafka.Topic)
	}

	usersRepo := repository.NewUsersRepository(storage.DB)
	usersService := service.NewUsersService(usersRepo, initialCash, bcrypt.DefaultCost)
	tradingService := service.NewTradingService(storage.DB, quotes, events.Multi(publishers...), appMetrics, policy, log)
	tokenService := service.NewTokenService(cfg.Security.JWTSecret, cfg.Security.TokenTTL, redis.NewDenylist(redisClient))

	wsManager := websocket.NewManager(log, redisSubscriber, cfg.Redis.TradeChannel, tradingService)

	healthChecker := health.NewChecker(storage, cfg.GRPC.HealthInterval, log)
	grpcServer := grpc.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthChecker.Server)
	if cfg.GRPC.EnableReflection {
		reflection.Register(grpcServer)
		log.Info("gRPC reflection enabled")
	}

	ginEngine := gin.New()
	ginEngine.Use(gin.Recovery(), appMetrics.Middleware())
	ginEngine.GET("/metrics", gin.WrapH(appMetrics.Handler()))

	httpHandler := httphandler.NewHandler(usersService, tradingService, tokenService, wsManager, log)
	httpHandler.RegisterRoutes(ginEngine)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.HTTP.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})

	httpServer := &http.Server{
		Addr:    net.JoinHostPort("", strconv.FormatUint(uint64(cfg.HTTP.Port), 10)),
		Handler: corsHandler.Handler(ginEngine),
	}

	return &App{
		log:             log,
		cfg:             cfg,
		grpcServer:      grpcServer,
		httpServer:      httpServer,
		storage:         storage,
		redisClient:     redisClient,
		redisSubscriber: redisSubscriber,
		producer:        producer,
		wsManager:       wsManager,
		healthChecker:   healthChecker,
		ctx:             ctx,
		cancel:          cancel,
	}
}

func (a *App) Run() error {
	errChan := make(chan error, 2)
	a.log.Info("starting application components...")

	go func() {
		a.log.Info("websocket manager started")
		a.wsManager.Run(a.ctx)
		a.log.Info("websocket manager stopped")
	}()

	go a.healthChecker.Run(a.ctx)

	go func() {
		if err := a.runGRPC(); err != nil {
			errChan <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()

	go func() {
		if err := a.runHTTP(); err != nil {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	err := <-errChan
	a.log.Warn("shutting down application due to an error", "error", err)

	a.Stop()
	return err
}

// Stop is safe to call more than once.
func (a *App) Stop() {
	a.stopOnce.Do(a.stop)
}

func (a *App) stop() {
	a.log.Info("stopping application components gracefully...")

	a.cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), a.cfg.HTTP.Timeout)
	defer shutdownCancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.log.Warn("failed to gracefully shutdown HTTP server", "error", err)
	} else {
		a.log.Info("HTTP server stopped")
	}

	a.grpcServer.GracefulStop()
	a.log.Info("gRPC server stopped")

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.log.Warn("failed to close kafka producer", "error", err)
		}
	}

	a.redisSubscriber.Close()
	if err := a.redisClient.Close(); err != nil {
		a.log.Warn("failed to close redis client", "error", err)
	}

	if err := a.storage.Stop(); err != nil {
		a.log.Error("failed to stop storage", "error", err)
	} else {
		a.log.Info("database connection closed")
	}
}

func (a *App) runGRPC() error {
	const op = "app.runGRPC"

	grpcAddress := net.JoinHostPort("", strconv.FormatUint(uint64(a.cfg.GRPC.Port), 10))
	listener, err := net.Listen("tcp", grpcAddress)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	a.log.Info("gRPC server is running", "addr", listener.Addr().String())

	if err := a.grpcServer.Serve(listener); err != nil {
		if !errors.Is(err, net.ErrClosed) && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	return nil
}

func (a *App) runHTTP() error {
	const op = "app.runHTTP"

	a.log.Info("HTTP server is running", "addr", a.httpServer.Addr)

	if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
