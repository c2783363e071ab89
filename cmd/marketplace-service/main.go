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
	"nft-marketplace/internal/config"
	"nft-marketplace/internal/domain"
	"nft-marketplace/internal/infrastructure/leader"
	"nft-marketplace/internal/infrastructure/mysql"
	"nft-marketplace/internal/infrastructure/redis"
	"nft-marketplace/internal/services"
	"nft-marketplace/pkg/logger"

	redisClient "github.com/go-redis/redis/v8"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New().Fatal("Failed to load config", "error", err)
	}
	log := logger.NewWithLevel(cfg.Log.Level)
	log.Info("Starting marketplace service", "config", cfg.GetConfigString())

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
	log.Info("Connected to Redis", "address", cfg.Redis.Address)

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
	log.Info("Connected to MySQL")

	// Only one instance may own the registry arena
	lease := leader.NewRedisLease(rdb, cfg.Marketplace.RegistryAddress, cfg.Lease.TTL, log)
	if err := lease.AcquireBlocking(rootCtx, cfg.Instance.ID, cfg.Lease.RetryInterval); err != nil {
		log.Error("Gave up waiting for registry lease", "error", err)
		os.Exit(1)
	}
	go func() {
		if err := lease.Hold(rootCtx, cfg.Instance.ID); errors.Is(err, leader.ErrLeaseLost) {
			log.Error("Registry lease lost, shutting down", "instance_id", cfg.Instance.ID)
			stop()
		}
	}()

	registryAddress := domain.Address(cfg.Marketplace.RegistryAddress)
	directory := services.NewContractDirectory(registryAddress)
	for _, ref := range cfg.Marketplace.AssetContracts {
		directory.RegisterAssetCollection(domain.ContractRef(ref), redis.NewRedisAssetCollection(rdb, domain.ContractRef(ref)))
	}
	for _, ref := range cfg.Marketplace.PaymentContracts {
		directory.RegisterTokenLedger(domain.ContractRef(ref), redis.NewRedisTokenLedger(rdb, domain.ContractRef(ref)))
	}

	eventPublisher := redis.NewEventPublisher(rdb)
	clock := services.SystemClock{}

	registry := services.NewAuctionRegistry(services.RegistryConfig{
		Name:                 cfg.Marketplace.Name,
		Address:              registryAddress,
		MinDuration:          cfg.Marketplace.MinDuration,
		RefundRequiresExpiry: cfg.Marketplace.RefundRequiresExpiry,
	}, directory, mysql.NewMySQLAuctionRepository(db), eventPublisher, clock, log)

	restoreCtx, restoreCancel := context.WithTimeout(rootCtx, 30*time.Second)
	err = registry.Restore(restoreCtx)
	restoreCancel()
	if err != nil {
		log.Error("Failed to restore auction registry", "error", err)
		os.Exit(1)
	}

	watcher := services.NewExpiryWatcher(cfg.Scheduler.ExpiryScan, registry, eventPublisher, clock, log)
	if err := watcher.Start(rootCtx); err != nil {
		log.Error("Failed to start expiry watcher", "error", err)
		os.Exit(1)
	}

	// Initialize Echo
	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.RequestID())
	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: `{"time":"${time_rfc3339}","id":"${id}","remote_ip":"${remote_ip}","method":"${method}","uri":"${uri}","status":${status},"error":"${error}","latency_human":"${latency_human}"}` + "\n",
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{echo.GET, echo.POST, echo.OPTIONS},
		AllowHeaders: []string{
			echo.HeaderOrigin,
			echo.HeaderContentType,
			echo.HeaderAccept,
			handlers.PrincipalHeader,
		},
		MaxAge: 86400,
	}))

	handlers.RegisterRoutes(e,
		handlers.NewAuctionHandler(registry, log),
		handlers.NewCollaboratorHandler(directory, log),
		"marketplace-service")

	if rootCtx.Err() != nil {
		log.Error("Stopped before serving", "error", rootCtx.Err())
		os.Exit(1)
	}

	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Info("Starting marketplace server", "address", serverAddr)

	go func() {
		if err := e.Start(serverAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server failed to start", "error", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("Shutting down marketplace service...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := watcher.Stop(); err != nil {
		log.Error("Failed to stop expiry watcher", "error", err)
	}
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}
	if err := lease.Release(shutdownCtx, cfg.Instance.ID); err != nil {
		log.Error("Failed to release registry lease", "error", err)
	}

	log.Info("Marketplace service stopped")
}
