package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/zzb13647948235-source/ArtIsLife-sub001/internal/api"
	"github.com/zzb13647948235-source/ArtIsLife-sub001/internal/auction"
	"github.com/zzb13647948235-source/ArtIsLife-sub001/internal/catalog"
	"github.com/zzb13647948235-source/ArtIsLife-sub001/internal/config"
	"github.com/zzb13647948235-source/ArtIsLife-sub001/internal/db"
	"github.com/zzb13647948235-source/ArtIsLife-sub001/internal/identity"
	"github.com/zzb13647948235-source/ArtIsLife-sub001/internal/ledger"
	"github.com/zzb13647948235-source/ArtIsLife-sub001/internal/market"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadAPIFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	var store api.UserStore
	if cfg.DatabaseURL != "" {
		pool, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("db connect failed", "err", err)
			os.Exit(1)
		}
		defer pool.Close()
		if err := db.Migrate(ctx, pool); err != nil {
			logger.Error("migrate failed", "err", err)
			os.Exit(1)
		}
		store = ledger.NewPgStore(pool, logger)
	} else {
		logger.Warn("DATABASE_URL not set, ledgers are in-memory")
		store = ledger.NewMemStore()
	}

	seed := cfg.PriceSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := market.NewRand(seed)

	var pub market.Publisher
	if cfg.RedisURL != "" {
		rp, err := market.NewRedisPublisher(ctx, cfg.RedisURL)
		if err != nil {
			logger.Error("redis connect failed", "err", err)
			os.Exit(1)
		}
		defer rp.Close()
		pub = rp
	}

	gallery := catalog.Gallery()
	board := market.NewBoard(rng, pub, logger)
	defer board.Close()
	if cfg.SeedGallery {
		for _, item := range gallery {
			board.Track(item)
		}
	}

	auctions := auction.NewManager(store, rng, logger)
	defer auctions.Shutdown()

	idClient := identity.NewClient(cfg.IdentityURL, cfg.IdentityAnonKey)
	server := api.New(logger, idClient, store, gallery, board, auctions)
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("artislife api listening", "addr", cfg.Addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "err", err)
		os.Exit(1)
	}
}
