package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/pflag"
	"go.uber.org/automaxprocs/maxprocs"

	"html2image/internal/config"
	"html2image/internal/convert"
	"html2image/internal/http/server"
	"html2image/internal/infra/chrome"
	"html2image/internal/infra/logging"
	"html2image/internal/infra/pathlock"
	"html2image/internal/infra/postgres"
	"html2image/internal/infra/ratelimit"
	"html2image/internal/render"
	"html2image/internal/tokens"
)

func main() {
	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logging.InitLogger(
		cfg.Logger.File,
		cfg.Logger.MaxSizeMB,
		cfg.Logger.MaxBackups,
		cfg.Logger.MaxAgeDays,
		cfg.Logger.Compress,
		cfg.Logger.Level,
	)
	logging.SetLogLevel(cfg.Logger.Level)

	if _, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...any) {
		logging.Debug(fmt.Sprintf(format, args...))
	})); err != nil {
		logging.Warn("Failed to set GOMAXPROCS", "error", err)
	}

	if err := os.MkdirAll(cfg.Output.Root, 0o755); err != nil {
		logging.Error("Failed to create output root", "root", cfg.Output.Root, "error", err)
		os.Exit(1)
	}

	size := render.ResolvePoolSize(cfg.Render.MaxConcurrent)
	pool, err := chrome.NewPool(size)
	if err != nil {
		logging.Error("Failed to create browser pool", "error", err)
		os.Exit(1)
	}
	renderer := render.NewService(newEngine(cfg.Render), pool, cfg.Render)

	locker := pathlock.New(cfg)
	converter := convert.NewService(cfg.Output.Root, renderer, locker)

	store := ratelimit.NewStore(ratelimit.RedisConfig{
		Addr: cfg.Cache.RedisHost,
		DB:   cfg.Cache.RateLimitDB,
	})

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	var cache *tokens.Cache
	var db *postgres.DB
	if cfg.Auth.Enabled {
		cache, db = startTokenReload(ctx, cfg)
	}

	app := server.New(server.Deps{
		Config:    cfg,
		Converter: converter,
		Stats:     renderer,
		Tokens:    cache,
		RateStore: store,
	})

	logging.Info("Starting html2image",
		"addr", cfg.Server.Host+cfg.Server.Port,
		"engine", renderer.EngineName(),
		"pool_size", size,
		"output_root", cfg.Output.Root,
		"lock_backend", cfg.Locks.Backend,
		"auth", cfg.Auth.Enabled,
	)

	idleConnsClosed := make(chan struct{})
	startServer(app, cfg, idleConnsClosed)
	<-idleConnsClosed

	stop()
	pool.Close()
	if err := locker.Close(); err != nil {
		logging.Warn("Failed to close path locker", "error", err)
	}
	if err := store.Close(); err != nil {
		logging.Warn("Failed to close rate limit store", "error", err)
	}
	if db != nil {
		if err := db.Close(); err != nil {
			logging.Warn("Failed to close postgres", "error", err)
		}
	}
}

// loadConfig reads the file named by --config, falling back to CONFIG_PATH.
func loadConfig(args []string) (config.Config, error) {
	flags := pflag.NewFlagSet("html2image", pflag.ContinueOnError)
	path := flags.String("config", "", "path to the YAML config file (default: $CONFIG_PATH or config.yaml)")
	if err := flags.Parse(args); err != nil {
		return config.Config{}, err
	}
	if *path != "" {
		return config.LoadFrom(*path), nil
	}
	return config.Load(), nil
}

func newEngine(cfg config.RenderConfig) render.Engine {
	if cfg.Engine == config.EngineRod {
		return chrome.NewRod(cfg)
	}
	return chrome.NewChromedp(cfg)
}

// startTokenReload loads API tokens from Postgres and keeps them fresh until ctx ends.
func startTokenReload(ctx context.Context, cfg config.Config) (*tokens.Cache, *postgres.DB) {
	cache := tokens.NewCache()
	dsn, err := postgres.DSN(cfg.Auth.Postgres)
	if err != nil {
		logging.Error("Invalid postgres configuration", "error", err)
		return cache, nil
	}
	db := postgres.NewDB()
	tokens.NewReloader(postgres.NewTokenRepository(db, dsn), cache, cfg.Auth.ReloadInterval).Start(ctx)
	return cache, db
}

// startServer starts the Fiber app and listens for shutdown signals
func startServer(app *fiber.App, cfg config.Config, idleConnsClosed chan struct{}) {
	go func() {
		if err := app.Listen(cfg.Server.Host + cfg.Server.Port); err != nil {
			logging.Error("Server error", "error", err)
		}
	}()

	// Listen for OS termination signals
	sigint := make(chan os.Signal, 1)
	signal.Notify(sigint, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigint)
	<-sigint

	logging.Warn("Shutdown signal received, closing server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logging.Error("Server forced to shutdown", "error", err)
	}

	close(idleConnsClosed)
	logging.Info("Server stopped cleanly")
}
