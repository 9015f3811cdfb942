package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/park285/chess-arena/internal/challenge"
	appcfg "github.com/park285/chess-arena/internal/config"
	"github.com/park285/chess-arena/internal/game"
	"github.com/park285/chess-arena/internal/obslog"
	"github.com/park285/chess-arena/internal/presence"
	"github.com/park285/chess-arena/internal/registry"
	"github.com/park285/chess-arena/internal/router"
	"github.com/park285/chess-arena/internal/ws"
	"go.uber.org/zap"
)

func main() {
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	cfg, err := appcfg.Load()
	if err != nil {
		obslog.L().Fatal("config_error", zap.Error(err))
	}

	reg := registry.New()
	pub := presence.NewPublisher(reg, cfg.StalenessWindow, cfg.PresenceTick)

	games := game.NewManager(cfg.MoveValidation, cfg.MaxConcurrentGames)
	if cfg.RedisURL != "" {
		store, err := game.NewStore(cfg.RedisURL)
		if err != nil {
			obslog.L().Fatal("archive_init_error", zap.Error(err))
		}
		defer func() { _ = store.Close() }()
		games.AttachArchive(store)
	}
	if cfg.DatabaseURL != "" {
		repo, err := game.NewRepository(cfg.DatabaseURL)
		if err != nil {
			obslog.L().Fatal("repository_init_error", zap.Error(err))
		}
		defer func() { _ = repo.Close() }()
		games.AttachRepository(repo)
	}

	challenges := challenge.NewManager(reg, games, cfg.ChallengeTTL)
	defer challenges.Stop()

	rtr := router.New(challenges, games)
	server := ws.NewServer(reg, rtr, pub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go pub.Run(ctx)

	health := ws.NewHealthServer()
	go func() {
		if err := health.ListenAndServe(cfg.HealthAddr); err != nil {
			obslog.L().Error("health_server_error", zap.Error(err))
		}
	}()

	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		obslog.L().Info("server_listen", zap.String("addr", cfg.ListenAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			obslog.L().Fatal("server_error", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	obslog.L().Info("server_shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	_ = health.Shutdown()
}
