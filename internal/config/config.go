package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type APIConfig struct {
	Addr            string
	DatabaseURL     string
	RedisURL        string
	IdentityURL     string
	IdentityAnonKey string
	PriceSeed       int64
	ShutdownGrace   time.Duration
	SeedGallery     bool
}

type FeedConfig struct {
	RedisURL  string
	PriceSeed int64
}

type CLIConfig struct {
	APIBaseURL string
}

// LoadAPIFromEnv reads the API server configuration. DATABASE_URL is
// optional: without it the server keeps ledgers in memory, which is
// how the dev loop and the tests run.
func LoadAPIFromEnv() (APIConfig, error) {
	addr := os.Getenv("PORT")
	if addr != "" {
		if !strings.HasPrefix(addr, ":") {
			addr = ":" + addr
		}
	} else {
		addr = envDefault("ARTISLIFE_API_ADDR", ":8080")
	}

	cfg := APIConfig{
		Addr:            addr,
		DatabaseURL:     strings.TrimSpace(os.Getenv("DATABASE_URL")),
		RedisURL:        strings.TrimSpace(os.Getenv("REDIS_URL")),
		IdentityURL:     strings.TrimRight(strings.TrimSpace(os.Getenv("SUPABASE_URL")), "/"),
		IdentityAnonKey: strings.TrimSpace(os.Getenv("SUPABASE_ANON_KEY")),
		PriceSeed:       envInt64Default("ARTISLIFE_PRICE_SEED", 0),
		ShutdownGrace:   envDurationDefault("ARTISLIFE_SHUTDOWN_GRACE", 10*time.Second),
		SeedGallery:     envBoolDefault("ARTISLIFE_SEED_GALLERY", true),
	}
	if cfg.IdentityURL == "" {
		return cfg, fmt.Errorf("SUPABASE_URL is required")
	}
	if cfg.IdentityAnonKey == "" {
		return cfg, fmt.Errorf("SUPABASE_ANON_KEY is required")
	}
	return cfg, nil
}

// LoadFeedFromEnv reads the price feed daemon configuration. The feed
// is pointless without a broker, so REDIS_URL is mandatory here.
func LoadFeedFromEnv() (FeedConfig, error) {
	cfg := FeedConfig{
		RedisURL:  strings.TrimSpace(os.Getenv("REDIS_URL")),
		PriceSeed: envInt64Default("ARTISLIFE_PRICE_SEED", 0),
	}
	if cfg.RedisURL == "" {
		return cfg, fmt.Errorf("REDIS_URL is required")
	}
	return cfg, nil
}

func LoadCLIFromEnv() CLIConfig {
	return CLIConfig{
		APIBaseURL: strings.TrimRight(envDefault("ARTCTL_API_BASE_URL", "http://localhost:8080"), "/"),
	}
}

func envDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envDurationDefault(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envInt64Default(key string, fallback int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func envBoolDefault(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
