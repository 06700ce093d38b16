package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"gomoku-server/internal/auth"
	appcfg "gomoku-server/internal/config"
	"gomoku-server/internal/coordinator"
	"gomoku-server/internal/forfeit"
	"gomoku-server/internal/httpapi"
	"gomoku-server/internal/metrics"
	"gomoku-server/internal/msgcat"
	"gomoku-server/internal/obslog"
	"gomoku-server/internal/presence"
	"gomoku-server/internal/realtime"
	"gomoku-server/internal/session"
	"gomoku-server/internal/store"
)

func main() {
	_ = godotenv.Load()

	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	logger := obslog.L()

	ctx := context.Background()

	st, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("database open failed", zap.Error(err))
	}
	defer st.Close()
	if err := st.Migrate(ctx); err != nil {
		logger.Fatal("migration failed", zap.Error(err))
	}

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal("bad redis url", zap.Error(err))
		}
		rdb = redis.NewClient(opts)
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable, token revocation disabled", zap.Error(err))
		}
		defer rdb.Close()
	}

	tokens, err := auth.NewManager(cfg.JWTSecret,
		time.Duration(cfg.AccessTTLSec)*time.Second,
		time.Duration(cfg.RefreshTTLSec)*time.Second, rdb)
	if err != nil {
		logger.Fatal("auth init failed", zap.Error(err))
	}

	cat, err := msgcat.New(cfg.MessageOverrideDir)
	if err != nil {
		logger.Fatal("message catalog failed", zap.Error(err))
	}

	registry := presence.NewRegistry()
	sessions := session.NewStore(st.Matches)
	forfeits := forfeit.NewScheduler(time.Duration(cfg.ForfeitGraceSec) * time.Second)
	defer forfeits.Stop()

	coord := coordinator.New(registry, sessions, forfeits, st.Rooms, st.Users, st.Matches, cat)
	hub := realtime.NewHub(tokens, registry, cfg.AllowedOrigins)
	hub.AttachHandler(coord)
	coord.AttachTransport(hub)

	staleAge := time.Duration(cfg.RoomStaleHours) * time.Hour
	api := httpapi.NewServer(st, tokens, hub, staleAge)

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		logger.Fatal("scheduler init failed", zap.Error(err))
	}
	_, err = scheduler.NewJob(
		gocron.DurationJob(time.Hour),
		gocron.NewTask(func() {
			n, err := st.Rooms.PruneStale(context.Background(), staleAge)
			if err != nil {
				logger.Warn("room prune sweep failed", zap.Error(err))
				return
			}
			if n > 0 {
				logger.Info("room prune sweep", zap.Int64("removed", n))
			}
		}),
	)
	if err != nil {
		logger.Fatal("prune job failed", zap.Error(err))
	}
	scheduler.Start()
	defer func() { _ = scheduler.Shutdown() }()

	metrics.StartServer(cfg.MetricsAddr, cfg.MetricsPath)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("server listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	hub.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown incomplete", zap.Error(err))
	}
}
