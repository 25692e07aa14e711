package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"erp-offline-sync/internal/api"
	"erp-offline-sync/internal/cache"
	"erp-offline-sync/internal/config"
	"erp-offline-sync/internal/database"
	"erp-offline-sync/internal/logger"
	"erp-offline-sync/internal/network"
	"erp-offline-sync/internal/queue"
	"erp-offline-sync/internal/remote"
	"erp-offline-sync/internal/store"
	"erp-offline-sync/internal/sync"
)

func main() {
	// Load Config
	cfg, err := config.LoadConfig("config.yaml")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Init Logger
	if err := logger.InitLogger(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Log.Info("Starting offline sync engine")

	// Open the on-device database backing cache and queue
	db, err := database.NewDatabase(cfg.Storage)
	if err != nil {
		logger.Log.Fatal("Failed to open database", zap.Error(err))
	}

	st, err := store.NewSQLiteStore(db)
	if err != nil {
		logger.Log.Fatal("Failed to init store", zap.Error(err))
	}
	defer st.Close()

	// Build the service graph: cache, queue, monitor, remote client, manager
	cacheStore := cache.New(st)
	defer cacheStore.Close()

	actionQueue := queue.New(st)

	monitor := network.NewMonitor(cfg.Network)
	defer monitor.Close()

	remoteClient := remote.NewHTTPClient(cfg.Remote)

	manager := sync.NewManager(cfg.Sync, cacheStore, actionQueue, remoteClient, monitor, st)
	manager.Start()
	defer manager.Stop()

	scheduler := sync.NewScheduler(cfg.Scheduler, manager)
	scheduler.Start()
	defer scheduler.Stop()

	// Init API
	handler := api.NewHandler(manager, cacheStore, actionQueue, monitor, cfg.Server)
	router := handler.Routes()

	// Start Server
	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		logger.Log.Info("Server listening", zap.String("addr", serverAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatal("Server failed", zap.Error(err))
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down...")
}
