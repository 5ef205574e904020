package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"coinspread/internal/aggregate"
	"coinspread/internal/cache"
	"coinspread/internal/config"
	"coinspread/internal/exchange"
	"coinspread/internal/logger"
	"coinspread/internal/monitor"
	"coinspread/internal/paper"
	"coinspread/internal/scanner"
	"coinspread/internal/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// .env is optional; real deployments set variables in the environment.
	_ = godotenv.Load()

	configPath := os.Getenv("COINSPREAD_CONFIG")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.EnsureDirs(); err != nil {
		return fmt.Errorf("failed to prepare data directories: %w", err)
	}
	if err := logger.Init(cfg.Log, cfg.Storage.LogsDir); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := buildCache(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}
	defer store.Close()

	providers, err := exchange.ForConfig(cfg)
	if err != nil {
		return fmt.Errorf("failed to build exchange providers: %w", err)
	}

	mon := monitor.New(cfg.Scanner.MaxHistory)
	mon.Start(cfg.Scanner.Interval())
	defer mon.Stop()

	sc := scanner.New(providers, store, mon, scanner.Options{
		Symbols:     cfg.Trading.Symbols,
		TTL:         cfg.Cache.TTL(),
		Concurrency: cfg.API.MaxConcurrency,
		MaxHistory:  cfg.Scanner.MaxHistory,
	})
	go sc.Run(ctx, cfg.Scanner.Interval())

	tradeStore, err := paper.NewStore(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("failed to open trade store: %w", err)
	}
	engine := paper.NewEngine(tradeStore, cfg.Trading.MaxPositionUSD)

	agg := aggregate.New(&http.Client{Timeout: cfg.API.Timeout()})

	srv := server.New(cfg, sc, agg, engine, store, mon)

	logger.Info().
		Int("port", cfg.Server.Port).
		Strs("exchanges", cfg.Trading.Exchanges).
		Strs("symbols", cfg.Trading.Symbols).
		Msg("starting coinspread")

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	logger.Info().Msg("shutdown complete")
	return nil
}

func buildCache(ctx context.Context, cfg *config.Config) (cache.Cache, error) {
	switch cfg.Cache.Backend {
	case "redis":
		return cache.NewRedisCache(ctx, cfg.Redis.URL)
	default:
		return cache.NewMemoryCache(cfg.Cache.MaxSize, cfg.Cache.CleanupInterval()), nil
	}
}
