// Package config parses command line flags, FOODVAULT_* environment
// variables and an optional config file into a Config.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/Marioshad/foodvault/internal/auth"
	"github.com/Marioshad/foodvault/internal/inventory"
	"github.com/Marioshad/foodvault/internal/receipt"
	"github.com/Marioshad/foodvault/internal/reconcile"
	"github.com/Marioshad/foodvault/internal/scanning"
)

// EnvPrefix is prepended to flag names to form environment variable names
const EnvPrefix = "FOODVAULT"

const (
	StoreMemory   = "memory"
	StoreBolt     = "bolt"
	StorePostgres = "postgres"

	ScannerGemini = "gemini"
	ScannerOllama = "ollama"

	ArchiveNone  = "none"
	ArchiveLocal = "local"
	ArchiveS3    = "s3"
)

// Config is the fully parsed process configuration
type Config struct {
	Port      int
	Env       string
	LogLevel  string
	LogFormat string

	Store       string
	DBPath      string
	DatabaseURL string

	Scanner        string
	GeminiKey      string
	GeminiModel    string
	OllamaURL      string
	OllamaModel    string
	OllamaFreeText bool

	ExtractionTimeout time.Duration
	MaxUpload         int
	DefaultUnit       inventory.Unit
	ShelfLifeDays     int

	Archive     string
	StoragePath string
	S3          receipt.S3Config

	SessionTTL   time.Duration
	CookieSecure bool
	CORSOrigin   string

	ShowVersion bool
}

// ParseError is returned when the arguments can't be parsed; Usage is the
// rendered flag help to print alongside it
type ParseError struct {
	Err   error
	Usage string
}

func (e *ParseError) Error() string {
	return e.Err.Error()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Parse reads args, the environment and the --config file
func Parse(args []string) (*Config, error) {
	var cfg Config
	var defaultUnit string

	fs := ff.NewFlagSet("foodvault")
	fs.IntVar(&cfg.Port, 0, "port", 8080, "HTTP server port")
	fs.StringVar(&cfg.Env, 0, "env", "production", "Environment: 'production' or 'development'")
	fs.StringVar(&cfg.LogLevel, 0, "log-level", "info", "Log level: debug, info, warn or error")
	fs.StringVar(&cfg.LogFormat, 0, "log-format", "text", "Log format: 'text' or 'json'")
	fs.StringVar(&cfg.Store, 0, "store", StoreBolt, "Entity store: 'memory', 'bolt' or 'postgres'")
	fs.StringVar(&cfg.DBPath, 0, "db", "foodvault.db", "bbolt database file path")
	fs.StringVar(&cfg.DatabaseURL, 0, "database-url", "", "Postgres connection string")
	fs.StringVar(&cfg.Scanner, 0, "scanner", ScannerGemini, "Scanner type: 'gemini' or 'ollama'")
	fs.StringVar(&cfg.GeminiKey, 0, "gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
	fs.StringVar(&cfg.GeminiModel, 0, "gemini-model", "gemini-2.5-flash", "Google Gemini model name")
	fs.StringVar(&cfg.OllamaURL, 0, "ollama-url", "http://localhost:11434", "Ollama API base URL")
	fs.StringVar(&cfg.OllamaModel, 0, "ollama-model", "llava", "Ollama model name")
	fs.BoolVar(&cfg.OllamaFreeText, 0, "ollama-free-text", "Ask Ollama for line-oriented text instead of JSON")
	fs.DurationVar(&cfg.ExtractionTimeout, 0, "extraction-timeout", receipt.DefaultTimeout, "Upper bound for one receipt scan")
	fs.IntVar(&cfg.MaxUpload, 0, "max-upload", receipt.DefaultMaxUpload, "Largest accepted receipt upload in bytes")
	fs.StringVar(&defaultUnit, 0, "default-unit", string(reconcile.DefaultUnit), "Unit for committed receipt items")
	fs.IntVar(&cfg.ShelfLifeDays, 0, "shelf-life-days", reconcile.DefaultShelfLifeDays, "Default shelf life of committed receipt items")
	fs.StringVar(&cfg.Archive, 0, "archive", ArchiveLocal, "Receipt image archive: 'none', 'local' or 's3'")
	fs.StringVar(&cfg.StoragePath, 0, "storage", "./receipts", "Local archive directory")
	fs.StringVar(&cfg.S3.Bucket, 0, "s3-bucket", "", "S3 bucket for archived receipts")
	fs.StringVar(&cfg.S3.Region, 0, "s3-region", "us-east-1", "S3 region")
	fs.StringVar(&cfg.S3.Endpoint, 0, "s3-endpoint", "", "S3-compatible endpoint URL (MinIO, R2, ...)")
	fs.StringVar(&cfg.S3.AccessKey, 0, "s3-access-key", "", "S3 access key (default credential chain when empty)")
	fs.StringVar(&cfg.S3.SecretKey, 0, "s3-secret-key", "", "S3 secret key")
	fs.DurationVar(&cfg.SessionTTL, 0, "session-ttl", auth.DefaultSessionTTL, "Session lifetime")
	fs.BoolVar(&cfg.CookieSecure, 0, "cookie-secure", "Mark the session cookie Secure")
	fs.StringVar(&cfg.CORSOrigin, 0, "cors-origin", "", "Allowed CORS origin (default '*')")
	fs.BoolVar(&cfg.ShowVersion, 'v', "version", "Show version information")
	_ = fs.StringLong("config", "", "Config file (flag=value per line)")

	if err := ff.Parse(fs, args,
		ff.WithEnvVarPrefix(EnvPrefix),
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.PlainParser),
	); err != nil {
		return nil, &ParseError{Err: err, Usage: ffhelp.Flags(fs).String()}
	}

	cfg.DefaultUnit = inventory.Unit(defaultUnit)
	if cfg.GeminiKey == "" {
		cfg.GeminiKey = os.Getenv("GEMINI_API_KEY")
	}

	if err := cfg.validate(); err != nil {
		return nil, &ParseError{Err: err, Usage: ffhelp.Flags(fs).String()}
	}
	return &cfg, nil
}

func oneOf(name, value string, valid ...string) error {
	if !slices.Contains(valid, value) {
		return fmt.Errorf("invalid --%s %q, want one of %v", name, value, valid)
	}
	return nil
}

func (c *Config) validate() error {
	if c.ShowVersion {
		return nil
	}

	var level slog.Level
	errs := []error{
		oneOf("env", c.Env, "production", "development"),
		oneOf("log-format", c.LogFormat, "text", "json"),
		oneOf("store", c.Store, StoreMemory, StoreBolt, StorePostgres),
		oneOf("scanner", c.Scanner, ScannerGemini, ScannerOllama),
		oneOf("archive", c.Archive, ArchiveNone, ArchiveLocal, ArchiveS3),
		oneOf("default-unit", string(c.DefaultUnit),
			string(inventory.UnitPieces), string(inventory.UnitGram), string(inventory.UnitKilogram),
			string(inventory.UnitMillilitre), string(inventory.UnitLitre)),
		level.UnmarshalText([]byte(c.LogLevel)),
	}

	if c.Store == StorePostgres && c.DatabaseURL == "" {
		errs = append(errs, errors.New("--database-url is required with --store postgres"))
	}
	if c.Scanner == ScannerGemini && c.GeminiKey == "" {
		errs = append(errs, errors.New("gemini API key is required: set --gemini-key or GEMINI_API_KEY"))
	}
	if c.Archive == ArchiveS3 && c.S3.Bucket == "" {
		errs = append(errs, errors.New("--s3-bucket is required with --archive s3"))
	}
	if c.ShelfLifeDays < 0 {
		errs = append(errs, errors.New("--shelf-life-days must not be negative"))
	}
	if c.MaxUpload <= 0 {
		errs = append(errs, errors.New("--max-upload must be positive"))
	}
	return errors.Join(errs...)
}

// Development reports whether error bodies carry debugging detail
func (c *Config) Development() bool {
	return c.Env == "development"
}

// Strategy is the Ollama answer format
func (c *Config) Strategy() scanning.Strategy {
	if c.OllamaFreeText {
		return scanning.FreeText
	}
	return scanning.Structured
}

// Logger builds the process logger writing to w
func (c *Config) Logger(w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
