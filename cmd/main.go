/*
Package main is the entry point for the Taskflow server.

It is responsible for loading configuration, initializing the global logging system,
connecting to PostgreSQL and object storage, starting the realtime Hub, serving HTTP,
and gracefully handling operating system interrupt signals (SIGINT, SIGTERM)
to ensure a smooth server shutdown.
*/
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

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"taskflow/internal/app/collab"
	"taskflow/internal/app/db"
	"taskflow/internal/app/storage"
	"taskflow/internal/configs"
	"taskflow/internal/handler"
	"taskflow/internal/pkg/logx"
)

func main() {
	configFile := pflag.StringP("config", "c", "", "optional YAML config file; environment variables take precedence")
	pflag.Parse()

	cfg, err := configs.LoadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logx.InitGlobalLogger(cfg.IsDevelopment())
	logx.Logger().Info().
		Str("environment", cfg.Environment).
		Int("port", cfg.Port).
		Strs("allowed_origins", cfg.AllowedOrigins).
		Dur("auth_grace_period", cfg.AuthGracePeriod).
		Float64("event_rate", cfg.EventRate).
		Int("event_burst", cfg.EventBurst).
		Msg("Configuration loaded successfully")

	// Create a context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logx.Fatal(err, "Server stopped with error")
	}

	logx.Info("Server gracefully stopped.")
}

func run(ctx context.Context, cfg *configs.AppConfig) error {
	pool, err := db.NewPool(ctx, cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	defer pool.Close()

	store := db.NewStore(pool)

	var storageService storage.StorageService
	storageCfg := storage.ServiceConfig{
		S3BucketName:      cfg.S3BucketName,
		S3Endpoint:        cfg.S3Endpoint,
		S3AccessKeyID:     cfg.S3AccessKeyID,
		S3SecretAccessKey: cfg.S3SecretAccessKey,
		S3Region:          cfg.S3Region,
	}
	if storageCfg.Enabled() {
		storageService, err = storage.NewStorageService(ctx, storageCfg)
		if err != nil {
			return fmt.Errorf("failed to initialize storage: %w", err)
		}
	} else {
		logx.Warn("Object storage is not configured; attachment routes are disabled.")
	}

	hub := collab.NewHub(
		collab.NewVerifier(cfg.JWTSecret, store),
		store,
		collab.WithEventRate(rate.Limit(cfg.EventRate), cfg.EventBurst),
	)

	router := handler.Router(ctx, &handler.AppDeps{
		Hub:            hub,
		Config:         cfg,
		Users:          store,
		Projects:       store,
		StorageService: storageService,
	})

	serverAddr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logx.Info(fmt.Sprintf("Taskflow Server starting on http://localhost%s", serverAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logx.Info("Received shutdown signal. Starting graceful shutdown...")

		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelShutdown()

		// Hijacked websocket connections are not tracked by the server; the Hub closes them.
		err := server.Shutdown(shutdownCtx)
		hub.Shutdown()

		if err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}
