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

	"nft-marketplace/internal/api/middleware"
	"nft-marketplace/internal/config"
	"nft-marketplace/internal/infrastructure/redis"
	"nft-marketplace/internal/infrastructure/websocket"
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

	connManager := websocket.NewConnectionManager(log)
	notifier := websocket.NewNotifier(connManager)
	eventListener := services.NewEventListener(connManager, notifier, notifier, log)
	eventSubscriber := redis.NewRedisEventSubscriber(rdb, log)

	router := mux.NewRouter()
	router.Use(middleware.CORS(log))
	router.HandleFunc("/ws/auctions/{index}", websocket.NewWebSocketHandler(connManager, log).HandleConnection).Methods("GET")
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"ok","service":"notification-service"}`)
	}).Methods("GET")

	go func() {
		if err := eventListener.Start(rootCtx, eventSubscriber); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("Event listener failed", "error", err)
			stop()
		}
	}()

	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Notifier.Host, cfg.Notifier.Port),
		Handler: router,
	}

	go func() {
		log.Info("Starting notification server", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server failed to start", "error", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("Shutting down notification service...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}

	log.Info("Notification service stopped")
}
