// Package main is the entry point for the archival worker.
// It polls every order's report.json and issues the inbound delivery note
// once an order becomes archived.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"commesse/internal/app"
	"commesse/internal/config"
	"commesse/internal/domain/trigger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := app.NewLogger(cfg)
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.OrdersRoot == "" {
		log.Fatalw("ORDERS_ROOT is required by the worker")
	}
	log.Infow("starting archival worker", "root", cfg.OrdersRoot, "interval", cfg.PollInterval)

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatalw("failed to wire document engine", "error", err)
	}

	watcher := trigger.NewWatcher(a.Reconciler, a.Trigger, cfg.PollInterval, log)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		watcher.Run(ctx)
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down worker...")
	cancel()
	wg.Wait()

	closeCtx, closeCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer closeCancel()
	a.Close(closeCtx)

	log.Info("worker stopped")
}
