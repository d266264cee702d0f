package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"hls-window/internal/orchestrator"
	"hls-window/internal/platform/config"
	"hls-window/internal/platform/logger"
	"hls-window/internal/platform/metrics"
	"hls-window/internal/platform/ratelimit"
	"hls-window/internal/platform/storage"
	"hls-window/internal/window"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = config.Load()

	settings, err := config.Resolve()
	log := logger.New(settings.LogLevel, settings.LogFormat)
	if err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, settings, log)
	if err != nil {
		log.Error("open store failed", "backend", settings.StoreBackend, "error", err)
		os.Exit(1)
	}
	defer closeStore()

	met := metrics.New()
	var svc *orchestrator.Service
	repo := orchestrator.NewInMemoryRepositoryWithStore(store, orchestrator.RepositoryOptions{
		Limits: window.Limits{
			ManifestTimeWindow: settings.ManifestTimeWindowMs,
			TimestampTolerance: settings.TimestampToleranceMs,
		},
		Strict: settings.StrictAssertions,
		Logger: log,
		OnLoad: func(id orchestrator.PlaylistID, p *window.Playlist) { svc.WatchPlaylist(id, p) },
	})
	svc = orchestrator.NewService(repo, orchestrator.ServiceOptions{
		Logger:       log,
		Metrics:      met,
		ClipDuration: settings.ClipDurationMs,
	})
	h := orchestrator.NewHandler(svc, log)

	if n, err := repo.Preload(ctx); err != nil {
		log.Warn("preload playlists failed", "error", err)
	} else if n > 0 {
		log.Info("playlists restored", "count", n)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Method(http.MethodGet, "/metrics", met.Handler(func() { met.SetActivePlaylists(svc.ActivePlaylists()) }))
	h.Routes(r, ratelimit.PerSecond(settings.IngestRateLimit))

	addr := ":" + settings.Port
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("server starting",
		"port", settings.Port,
		"manifest_time_window_ms", settings.ManifestTimeWindowMs,
		"store_backend", settings.StoreBackend,
		"strict_assertions", settings.StrictAssertions,
		"log_level", settings.LogLevel,
	)

	<-ctx.Done()
	log.Info("shutdown signal received, draining connections")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
		closeStore()
		os.Exit(1)
	}

	log.Info("server stopped")
}

// openStore returns the configured playlist store and its release function.
func openStore(ctx context.Context, s config.Settings, log *slog.Logger) (orchestrator.Store, func(), error) {
	if s.StoreBackend == "" || s.StoreBackend == "memory" {
		return orchestrator.NewInMemoryStore(), func() {}, nil
	}

	b, err := storage.Open(ctx, storage.Config{Kind: s.StoreBackend, Path: s.StorePath, RedisAddr: s.RedisAddr}, log)
	if err != nil {
		return nil, nil, err
	}
	var once sync.Once
	return b, func() {
		once.Do(func() {
			if err := b.Close(); err != nil {
				log.Error("close store failed", "error", err)
			}
		})
	}, nil
}
