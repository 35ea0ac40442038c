package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gastra-system/config"
	"gastra-system/internal/database"
	"gastra-system/internal/locking"
	invhandler "gastra-system/internal/services/inventory/handler"
	ledgerhandler "gastra-system/internal/services/ledger/handler"
	saleshandler "gastra-system/internal/services/sales/handler"
)

func main() {
	cfg := config.LoadConfig()
	logger := config.GetLogger()

	db, err := database.NewConnection(cfg.DSN())
	if err != nil {
		logger.Fatal("failed to connect to database: " + err.Error())
	}
	if err := database.MigrateLedgerDB(db); err != nil {
		logger.Fatal("failed to migrate database: " + err.Error())
	}

	redisClient := config.NewRedisClient(cfg.Redis)

	var locker locking.Locker
	if cfg.Ledger.UseRedisLock {
		locker = locking.NewRedisLocker(redisClient, cfg.Ledger.LockWait)
	} else {
		locker = locking.NewKeyLock(cfg.Ledger.LockWait)
	}

	inventory := invhandler.NewInventoryHandler(db, redisClient)
	ledger := ledgerhandler.NewLedgerHandler(db, redisClient, locker, inventory, cfg.Ledger)
	sales := saleshandler.NewSalesHandler(db, redisClient, ledger, inventory)

	router := setupRouter(ledger, inventory, sales)

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	go func() {
		logger.Info("ledger server listening on :" + cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error: " + err.Error())
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("forced shutdown: " + err.Error())
	}
}
