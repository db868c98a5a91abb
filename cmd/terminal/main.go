package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/tapcard/terminal/internal/platform/config"
	"github.com/tapcard/terminal/internal/platform/logger"
	"github.com/tapcard/terminal/internal/terminal/connectivity"
	"github.com/tapcard/terminal/internal/terminal/domain"
	"github.com/tapcard/terminal/internal/terminal/gateway"
	"github.com/tapcard/terminal/internal/terminal/remote"
	"github.com/tapcard/terminal/internal/terminal/store"
	boltstore "github.com/tapcard/terminal/internal/terminal/store/bolt"
	memorystore "github.com/tapcard/terminal/internal/terminal/store/memory"
	"github.com/tapcard/terminal/internal/terminal/sync"
	transporthttp "github.com/tapcard/terminal/internal/terminal/transport/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	appLogger := logger.New(cfg.LogLevel)
	appLogger.Info("Terminal starting...", "log_level", cfg.LogLevel, "store_backend", cfg.StoreBackend)

	var kv store.Store
	switch cfg.StoreBackend {
	case "memory":
		kv = memorystore.New()
		appLogger.Warn("Using in-memory store; nothing will survive a restart")
	default:
		kv, err = boltstore.Open(cfg.StorePath)
		if err != nil {
			appLogger.Error("Failed to open local store", "path", cfg.StorePath, "error", err)
			os.Exit(1)
		}
	}
	defer kv.Close()
	repo := store.NewRepository(kv, appLogger)
	appLogger.Info("Local store ready", "path", cfg.StorePath)

	prober := connectivity.NewProber(appLogger, repo, cfg.ProbeURL, cfg.ProbeTimeout, nil)
	remoteClient := remote.NewClient(appLogger, cfg.APIBaseURL, cfg.APITimeout, nil)

	defaults := domain.Settings{
		AllowOfflineTransactions: cfg.AllowOfflineTransactions,
		SyncOnConnection:         cfg.SyncOnConnection,
		APIUrl:                   cfg.APIBaseURL,
	}

	gw := gateway.New(remoteClient, repo, prober, defaults, appLogger)
	engine := sync.NewEngine(remoteClient, repo, prober, cfg.ProbeMaxRetries, cfg.ProbeRetryDelay, appLogger)
	watcher := sync.NewWatcher(engine, prober, repo, defaults, cfg.WatcherInterval, appLogger)

	handler := transporthttp.NewHandler(gw, engine, repo, appLogger, validator.New())

	router := chi.NewRouter()
	router.Use(chimiddleware.Recoverer)
	router.Use(transporthttp.PrometheusMetricsMiddleware)
	router.Handle("/metrics", promhttp.Handler())
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	handler.RegisterRoutes(router)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.ListenPort),
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		appLogger.Info("HTTP server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		if err := watcher.Run(groupCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		appLogger.Info("Shutting down HTTP server")
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		appLogger.Error("Terminal exited with error", "error", err)
		os.Exit(1)
	}
	appLogger.Info("Terminal stopped")
}
