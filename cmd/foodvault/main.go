package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/peterbourgon/ff/v4"

	"github.com/Marioshad/foodvault/internal/analytics"
	"github.com/Marioshad/foodvault/internal/auth"
	"github.com/Marioshad/foodvault/internal/config"
	"github.com/Marioshad/foodvault/internal/inventory"
	"github.com/Marioshad/foodvault/internal/receipt"
	"github.com/Marioshad/foodvault/internal/reconcile"
	"github.com/Marioshad/foodvault/internal/scanning"
	"github.com/Marioshad/foodvault/internal/server"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		var perr *config.ParseError
		if errors.As(err, &perr) {
			fmt.Fprintf(os.Stderr, "%s\n", perr.Usage)
		}
		if errors.Is(err, ff.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if cfg.ShowVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	slog.SetDefault(cfg.Logger(os.Stderr))
	slog.Info("Starting foodvault", "version", version, "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}
	slog.Info("Shut down")
}

func run(ctx context.Context, cfg *config.Config) error {
	store, sessions, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	scanner, err := openScanner(ctx, cfg)
	if err != nil {
		return err
	}
	defer scanner.Close()

	archive, err := openArchive(ctx, cfg)
	if err != nil {
		return err
	}

	inventoryService := inventory.NewService(store)
	srv := server.NewServer(server.Services{
		Inventory: inventoryService,
		Receipts: receipt.NewService(scanner, archive, receipt.Options{
			MaxUpload: int64(cfg.MaxUpload),
			Timeout:   cfg.ExtractionTimeout,
		}),
		Reconcile: reconcile.NewEngine(inventoryService, cfg.DefaultUnit, cfg.ShelfLifeDays),
		Analytics: analytics.NewService(store),
		Auth:      auth.NewService(store, sessions, cfg.SessionTTL),
	}, server.Options{
		Development:  cfg.Development(),
		SecureCookie: cfg.CookieSecure,
		AllowOrigin:  cfg.CORSOrigin,
	})

	return srv.Start(ctx, fmt.Sprintf(":%d", cfg.Port))
}

// openStore opens the entity store and the session store that shares its handle
func openStore(ctx context.Context, cfg *config.Config) (inventory.Store, auth.SessionStore, error) {
	switch cfg.Store {
	case config.StorePostgres:
		slog.Info("Connecting to Postgres...")
		store, err := inventory.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("opening postgres store: %w", err)
		}
		return store, auth.NewPostgresSessions(store.Conn()), nil
	case config.StoreBolt:
		slog.Info("Initializing database...", "path", cfg.DBPath)
		store, err := inventory.NewBoltStore(cfg.DBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("opening bolt store: %w", err)
		}
		sessions, err := auth.NewBoltSessions(store.DB())
		if err != nil {
			store.Close()
			return nil, nil, fmt.Errorf("opening bolt sessions: %w", err)
		}
		return store, sessions, nil
	default:
		slog.Warn("Using in-memory store; data is lost on exit")
		return inventory.NewMemoryStore(), auth.NewMemorySessions(), nil
	}
}

func openScanner(ctx context.Context, cfg *config.Config) (scanning.Scanner, error) {
	switch cfg.Scanner {
	case config.ScannerOllama:
		slog.Info("Initializing Ollama scanner...", "url", cfg.OllamaURL, "model", cfg.OllamaModel, "strategy", cfg.Strategy())
		scanner, err := scanning.NewOllama(cfg.OllamaURL, cfg.OllamaModel, cfg.Strategy())
		if err != nil {
			return nil, fmt.Errorf("initializing ollama: %w", err)
		}
		return scanner, nil
	default:
		slog.Info("Initializing Gemini scanner...", "model", cfg.GeminiModel)
		scanner, err := scanning.NewGemini(ctx, cfg.GeminiKey, cfg.GeminiModel)
		if err != nil {
			return nil, fmt.Errorf("initializing gemini: %w", err)
		}
		return scanner, nil
	}
}

func openArchive(ctx context.Context, cfg *config.Config) (receipt.Storage, error) {
	switch cfg.Archive {
	case config.ArchiveS3:
		slog.Info("Initializing S3 archive...", "bucket", cfg.S3.Bucket, "endpoint", cfg.S3.Endpoint)
		archive, err := receipt.NewS3Storage(ctx, cfg.S3)
		if err != nil {
			return nil, fmt.Errorf("initializing s3 archive: %w", err)
		}
		return archive, nil
	case config.ArchiveLocal:
		slog.Info("Initializing storage...", "path", cfg.StoragePath)
		archive, err := receipt.NewLocalStorage(cfg.StoragePath)
		if err != nil {
			return nil, fmt.Errorf("initializing storage: %w", err)
		}
		return archive, nil
	default:
		slog.Info("Receipt archive disabled")
		return nil, nil
	}
}
