package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	app "discussion-room/internal/app"
	"discussion-room/internal/chat"
	httpx "discussion-room/internal/http"
	store "discussion-room/internal/store"
	ws "discussion-room/internal/ws"
	"discussion-room/pkg/auth"
)

func main() {
	// Load local .env (dev only)
	_ = godotenv.Load()

	cfg := app.LoadConfig()
	logger := app.NewLogger(cfg.Env, cfg.LogLevel)
	logger.Info("config.loaded", "config", cfg.Redacted())

	// Cancel on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Postgres connection + migrations
	pg, err := store.NewPostgres(ctx, cfg, logger)
	if err != nil {
		logger.Error("postgres connect", "err", err)
		log.Fatal(err)
	}
	defer pg.Close()
	if err := store.RunMigrations(ctx, pg, logger); err != nil {
		logger.Error("migrations", "err", err)
		log.Fatal(err)
	}

	// Optional Redis mirror of recent history in front of Postgres
	var persistence chat.Persistence = pg
	if cfg.RedisAddr != "" {
		rdb, err := store.NewRedis(ctx, cfg)
		if err != nil {
			logger.Error("redis connect", "err", err)
			log.Fatal(err)
		}
		defer rdb.Close()
		persistence = store.NewRedisRecent(rdb, pg, cfg.CacheSize, cfg.RedisHistoryTTL, logger)
		logger.Info("redis.enabled", "addr", cfg.RedisAddr)
	}

	// Chat core
	registry := chat.NewRegistry()
	cache := chat.NewCache(cfg.CacheSize)
	broadcaster := chat.NewBroadcaster(logger, registry, cache, persistence)

	sweeper, err := startSweeper(cfg.SweepSchedule, cfg.RoomIdleTTL, cache, logger)
	if err != nil {
		logger.Error("sweeper", "err", err)
		log.Fatal(err)
	}

	// WebSocket hub
	hub := ws.NewHub(logger, registry, broadcaster, ws.Options{
		JWT:            auth.New(cfg.JWTSecret),
		MsgRate:        cfg.MsgRate,
		MsgBurst:       cfg.MsgBurst,
		OriginPatterns: cfg.CORSAllow,
	})

	// HTTP + WS router
	router := httpx.NewRouter(cfg, logger, hub, pg)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server
	go func() {
		logger.Info("server.listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server.crash", "err", err)
			cancel()
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()
	logger.Info("server.shutdown.start")

	if sweeper != nil {
		<-sweeper.Stop().Done()
	}

	// shutdown
	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	_ = srv.Shutdown(shutdownCtx)

	logger.Info("server.shutdown.complete")
	_ = os.Stdout.Sync()
}
