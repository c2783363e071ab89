package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"nft-marketplace/internal/api/handlers"
	"nft-marketplace/internal/api/middleware"
	"nft-marketplace/internal/config"
	"nft-marketplace/internal/infrastructure/mysql"
	"nft-marketplace/internal/infrastructure/redis"
	"nft-marketplace/internal/services"
	"nft-marketplace/pkg/logger"

	redisClient "github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New().Fatal("Failed to load config", "error", err)
	}
	log := logger.NewWithLevel(cfg.Log.Level)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize Redis
	rdb := redisClient.NewClient(&redisClient.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	ctx, cancel := context.WithTimeout(rootCtx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}

	// Initialize MySQL
	db, err := mysql.Open(ctx, cfg.MySQL)
	if err != nil {
		log.Error("Failed to connect to MySQL", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := mysql.EnsureSchema(ctx, db); err != nil {
		log.Error("Failed to apply schema", "error", err)
		os.Exit(1)
	}

	eventRepo := mysql.NewMySQLAuctionEventRepository(db)
	recorder := services.NewEventRecorder(eventRepo, log)

	go func() {
		if err := recorder.Start(rootCtx, redis.NewRedisEventSubscriber(rdb, log)); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("Event recorder failed", "error", err)
			stop()
		}
	}()

	router := mux.NewRouter()
	router.Use(middleware.CORS(log))
	router.HandleFunc("/auctions/{index}/history", handlers.NewHistoryHandler(eventRepo, log).GetAuctionHistory).Methods("GET")

	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Analytics.Host, cfg.Analytics.Port),
		Handler: router,
	}

	go func() {
		log.Info("Starting analytics server", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server failed to start", "error", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("Shutting down analytics service...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}

	log.Info("Analytics service stopped")
}
