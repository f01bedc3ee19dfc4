// Package main is the entry point for the delivery-note API server.
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

	"commesse/internal/app"
	"commesse/internal/config"
	v1 "commesse/internal/infrastructure/http/v1"
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

	ctx := context.Background()
	log.Info("starting commesse server")

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatalw("failed to wire document engine", "error", err)
	}

	routerCfg := v1.RouterConfig{
		Logger:      log,
		Issuer:      a.Service,
		Counter:     a.Generator,
		Trigger:     a.Trigger,
		DataDir:     cfg.DataDir,
		CORSOrigins: cfg.CORSOrigins,
		Debug:       cfg.Development(),
	}
	if a.Pool != nil {
		routerCfg.DB = a.Pool
		routerCfg.Registry = a.Registry
	}

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      v1.NewHandler(routerCfg),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infow("server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("server failed", "error", err)
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	// Give outstanding requests 30 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("server forced to shutdown", "error", err)
	}
	// Pending archival timers are dropped; the worker or the next status write re-triggers them.
	a.Close(shutdownCtx)

	log.Info("server stopped")
}
