/*
Package main is the entry point for the messaging relay backend.

It is responsible for loading configuration, initializing the global logging system,
connecting to the message store, setting up the HTTP server, starting the relay,
and gracefully handling operating system interrupt signals (SIGINT, SIGTERM)
to ensure a smooth server shutdown.
*/
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Tzinov15/messaging-app-backend/internal/app/db"
	"github.com/Tzinov15/messaging-app-backend/internal/app/relay"
	"github.com/Tzinov15/messaging-app-backend/internal/app/store"
	"github.com/Tzinov15/messaging-app-backend/internal/configs"
	"github.com/Tzinov15/messaging-app-backend/internal/handler"
	"github.com/Tzinov15/messaging-app-backend/internal/pkg/logx"
)

func main() {
	// Load configuration from environment variables
	cfg, err := configs.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize global logger
	logx.InitGlobalLogger(cfg.Environment == "development")
	logx.Logger().Info().
		Str("environment", cfg.Environment).
		Int("port", cfg.Port).
		Strs("allowed_origins", cfg.AllowedOrigins).
		Dur("server_reply_delay", cfg.ServerReplyDelay).
		Msg("Configuration loaded successfully")

	// Create a context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connect to the message store. Unreachable storage at boot is the one
	// fatal path in this process.
	pool, err := db.NewPool(cfg.DatabaseDSN)
	if err != nil {
		logx.Fatal(err, "Failed to initialize message store")
	}
	defer pool.Close()

	messageStore := store.NewMessageStore(pool)

	// Initialize the relay and start its presence loop.
	messageRelay := relay.NewRelay(messageStore, cfg.ServerReplyDelay)
	go messageRelay.Run()

	// Setup HTTP server and routes
	deps := &handler.AppDeps{
		Relay:  messageRelay,
		Config: cfg,
	}
	router := handler.Router(deps)

	serverAddr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logx.Info(fmt.Sprintf("Messaging relay starting on http://localhost%s", serverAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logx.Fatal(err, "Server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server with a timeout of 5 seconds.
	<-ctx.Done()
	logx.Info("Received shutdown signal. Starting graceful shutdown...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logx.Fatal(err, "Server forced to shutdown")
	}

	messageRelay.Shutdown()

	logx.Info("Server gracefully stopped.")
}
