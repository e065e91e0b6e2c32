package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shop-service/config"
	"shop-service/internal/api"
	"shop-service/internal/broker"
	"shop-service/internal/redisclient"
	"shop-service/internal/service"
	"shop-service/internal/store"
	"shop-service/internal/store/memstore"
	"shop-service/internal/util"
	"shop-service/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := util.InitLogger(cfg.Server.Env, cfg.Server.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting shop service",
		zap.String("env", cfg.Server.Env),
		zap.String("port", cfg.Server.Port),
		zap.String("store_driver", cfg.Database.Driver))

	tp, err := util.InitTracer(cfg.Observ.JaegerEndpoint)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Error("Error shutting down tracer", zap.Error(err))
		}
	}()

	repo, err := openRepository(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to open store", zap.Error(err))
	}
	defer repo.Close()

	var idempotency service.IdempotencyStore
	if cfg.Redis.Addr != "" {
		redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.IdempotencyTTL)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()
		idempotency = redisClient
		logger.Info("Redis connected", zap.String("addr", cfg.Redis.Addr))
	} else {
		logger.Warn("REDIS_ADDR not set, idempotency keys are ignored")
	}

	var publisher service.EventPublisher
	var eventWorker *worker.OrderEventWorker
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	if len(cfg.Kafka.Brokers) > 0 {
		producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder)
		defer producer.Close()
		publisher = broker.NewEventPublisher(producer)
		logger.Info("Kafka producer initialized", zap.Strings("brokers", cfg.Kafka.Brokers))

		consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder, cfg.Kafka.ConsumerGroup)
		eventWorker = worker.NewOrderEventWorker(consumer, repo)
		go func() {
			if err := eventWorker.Start(workerCtx); err != nil && workerCtx.Err() == nil {
				logger.Error("Order event worker error", zap.Error(err))
			}
		}()
	} else {
		logger.Warn("KAFKA_BROKERS not set, order events are not published")
	}

	ledger := service.NewStockLedger()
	guests := service.NewGuestResolver(repo)
	orderService := service.NewOrderService(repo, ledger, guests, publisher, idempotency)
	cartService := service.NewCartService(repo)
	statusService := service.NewStatusService(repo, ledger, publisher)

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(orderService, cartService, statusService, repo, cfg.Server.RequestTimeout)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if eventWorker != nil {
		if err := eventWorker.Stop(); err != nil {
			logger.Error("Error stopping order event worker", zap.Error(err))
		}
	}

	logger.Info("Server exited")
}

// openRepository connects the configured store and applies migrations
func openRepository(cfg *config.Config, logger *zap.Logger) (store.Repository, error) {
	if cfg.Database.Driver == config.StoreDriverMemory {
		logger.Warn("Using in-memory store, data is lost on exit")
		return memstore.New(), nil
	}

	if cfg.Database.RunMigrations {
		if err := store.RunMigrations(cfg.Database.URL, logger); err != nil {
			return nil, err
		}
	}

	db, err := store.NewStore(cfg.Database.URL, store.PoolConfig{
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("Database connected")
	return db, nil
}
