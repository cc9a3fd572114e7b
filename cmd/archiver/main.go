// Command archiver is the long-running server: it loads
// configuration, wires the Store/Exchange Client/Ingestion Engine/
// Realtime Merger, serves the HTTP query surface and WebSocket
// realtime client surface, and runs a graceful shutdown on signal.
//
// Grounded on the teacher's cmd/server/main.go (config load, logger
// construction, DB connect, router wiring, signal-based shutdown).
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	_ "github.com/jackc/pgx/v4/stdlib"

	"github.com/tradingplatform/candlearchiver/internal/cache"
	"github.com/tradingplatform/candlearchiver/internal/config"
	"github.com/tradingplatform/candlearchiver/internal/eventbus"
	"github.com/tradingplatform/candlearchiver/internal/exchange"
	"github.com/tradingplatform/candlearchiver/internal/gapfill"
	"github.com/tradingplatform/candlearchiver/internal/ingestion"
	"github.com/tradingplatform/candlearchiver/internal/queryapi"
	"github.com/tradingplatform/candlearchiver/internal/realtime"
	"github.com/tradingplatform/candlearchiver/internal/rsi"
	"github.com/tradingplatform/candlearchiver/internal/store"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := createLogger(cfg.Logging.Level)
	defer logger.Sync()

	db, err := connectToDB(cfg.Database)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if _, err := db.Exec(store.Schema); err != nil {
		logger.Fatal("failed to apply schema", zap.Error(err))
	}

	candleStore := store.NewPostgresStore(db, logger)
	exchangeClient := exchange.NewBinanceClient(cfg.Exchange.BaseURL, cfg.Exchange.WSBaseURL, cfg.Exchange.FetchTimeout, cfg.Realtime.StallTimeout, logger)
	engine := ingestion.New(candleStore, exchangeClient, logger)
	filler := gapfill.New(candleStore, logger)

	var responseCache *cache.RedisCache
	if cfg.Redis.Enabled {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		responseCache = cache.NewRedisCache(redisClient, "candlearchiver", logger)
	}
	rsiCache := rsi.New(candleStore, responseCache, cfg.Redis.TTL, rsi.DefaultPeriod)
	engine.SetRSICache(rsiCache)

	var publisher realtime.Publisher
	if cfg.Kafka.Enabled {
		kp := eventbus.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.ClientID, logger)
		defer kp.Close()
		publisher = kp
	}
	merger := realtime.New(candleStore, exchangeClient, engine, publisher, logger, cfg.Realtime.FanoutQueueDepth)
	merger.SetRSICache(rsiCache)

	handlers := queryapi.New(queryapi.Handlers{
		Store:    candleStore,
		Engine:   engine,
		Filler:   filler,
		RSICache: rsiCache,
		Merger:   merger,
		Provider: exchangeClient.Provider(),
		Logger:   logger,
	})

	router := setupRouter(handlers, responseCache, cfg.Redis.TTL)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("starting server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
}

func createLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         "json",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}
	logger, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	return logger
}

func connectToDB(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	db, err := sqlx.Connect("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	return db, nil
}

func setupRouter(h *queryapi.Handlers, responseCache *cache.RedisCache, cacheTTL time.Duration) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	queryapi.RegisterRoutes(router, h, responseCache, cacheTTL)
	return router
}
