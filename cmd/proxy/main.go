package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"finance-tracker/internal/config"
	"finance-tracker/internal/database"
	"finance-tracker/internal/logging"
	"finance-tracker/internal/proxy"
)

func main() {
	cfg := config.Load()
	logging.Setup(os.Stderr, cfg.LogLevel, cfg.LogFormat)

	if err := cfg.ValidateProxy(); err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store database.DocumentStore
	defaultURI := cfg.MongoURI
	if cfg.UseMemoryStore {
		slog.Info("using in-memory document store for local development")
		store = database.NewMemoryStore()
		if defaultURI == "" {
			defaultURI = "memory://"
		}
	} else {
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		mongoStore, err := database.NewMongoStore(connectCtx, cfg.MongoURI)
		cancel()
		if err != nil {
			slog.Error("failed to initialize MongoDB", "err", err)
			os.Exit(1)
		}
		store = mongoStore
	}

	srv := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: proxy.New(store, proxy.Defaults{
			ConnectionString: defaultURI,
			Database:         cfg.MongoDB,
			Collection:       cfg.MongoCollection,
		}).Handler(cfg.AllowedOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("start server", "err", err)
			stop()
		}
	}()
	slog.Info("proxy started", "addr", srv.Addr)

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "err", err)
	}
	if err := store.Close(shutdownCtx); err != nil {
		slog.Error("close store", "err", err)
	}
}
