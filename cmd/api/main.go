package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/your-org/ema/internal/api"
	"github.com/your-org/ema/internal/api/handlers"
	"github.com/your-org/ema/internal/api/ws"
	"github.com/your-org/ema/internal/catalog"
	"github.com/your-org/ema/internal/config"
	"github.com/your-org/ema/internal/jobs"
	"github.com/your-org/ema/internal/observability"
	"github.com/your-org/ema/internal/queue"
	"github.com/your-org/ema/internal/storage"
	"github.com/your-org/ema/internal/watch"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("starting evidence manager API", "port", cfg.Server.Port, "root", cfg.Repository.Root)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	readyChecks := map[string]handlers.Check{}

	// WebSocket hub
	hub := ws.NewHub()
	go hub.Run(ctx)

	notifiers := catalog.Notifiers{hub}

	// Connect to NATS
	if cfg.NATS.URL != "" {
		publisher, err := queue.NewPublisher(cfg.NATS.URL, cfg.NATS.SubjectPrefix)
		if err != nil {
			slog.Error("connect to nats", "error", err)
			os.Exit(1)
		}
		defer publisher.Close()

		if err := publisher.EnsureStream(ctx); err != nil {
			slog.Warn("ensure nats stream", "error", err)
		}
		notifiers = append(notifiers, publisher)
		readyChecks["nats"] = func(context.Context) error { return publisher.Ping() }
	}

	opts := catalog.Options{
		Root:        cfg.Repository.Root,
		ScanWorkers: cfg.Repository.ScanWorkers,
		MatchByName: cfg.Repository.MatchByNameEnabled(),
		StagingDir:  cfg.Archive.StagingDir,
		Notifier:    notifiers,
	}

	// Connect to MinIO
	if cfg.Mirror.Enabled {
		mirror, err := storage.NewArchiveMirror(cfg.Mirror)
		if err != nil {
			slog.Error("connect to minio", "error", err)
			os.Exit(1)
		}
		if err := mirror.EnsureBucket(ctx); err != nil {
			slog.Warn("ensure minio bucket", "error", err)
		}
		opts.Mirror = mirror
		readyChecks["mirror"] = mirror.Ping
	}

	svc, err := catalog.New(ctx, opts)
	if err != nil {
		slog.Error("open repository", "root", cfg.Repository.Root, "error", err)
		os.Exit(1)
	}
	for _, w := range svc.Warnings() {
		slog.Warn("skipped person folder", "folder", w.Folder, "reason", w.Reason)
	}

	jobManager := jobs.NewManager(notifiers)

	if cfg.Watch.Enabled {
		watcher, err := watch.New(cfg.Repository.Root, svc, notifiers, cfg.Watch.Debounce)
		if err != nil {
			slog.Warn("start repository watcher", "error", err)
		} else {
			go func() {
				if err := watcher.Run(ctx); err != nil {
					slog.Error("repository watcher stopped", "error", err)
				}
			}()
		}
	}

	// Setup router
	router := api.NewRouter(api.RouterConfig{
		APIKey:      cfg.Server.APIKey,
		Service:     svc,
		Jobs:        jobManager,
		Hub:         hub,
		ReadyChecks: readyChecks,
	})

	// Start HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  5 * time.Minute,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("API server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down API server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	// Running archive jobs stop at their next person boundary.
	jobManager.StopAll()
	cancel()

	slog.Info("API server stopped")
}
