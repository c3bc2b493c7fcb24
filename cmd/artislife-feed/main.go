package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/zzb13647948235-source/ArtIsLife-sub001/internal/catalog"
	"github.com/zzb13647948235-source/ArtIsLife-sub001/internal/config"
	"github.com/zzb13647948235-source/ArtIsLife-sub001/internal/market"
)

// artislife-feed runs the price walk headless and publishes every sample
// to Redis, for deployments that serve tickers from a separate process.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadFeedFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	pub, err := market.NewRedisPublisher(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error("redis connect failed", "err", err)
		os.Exit(1)
	}
	defer pub.Close()

	seed := cfg.PriceSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	board := market.NewBoard(market.NewRand(seed), pub, logger)
	defer board.Close()

	gallery := catalog.Gallery()
	for _, item := range gallery {
		board.Track(item)
	}

	logger.Info("price feed started", "items", len(gallery))
	<-ctx.Done()
	logger.Info("price feed shutdown")
}
