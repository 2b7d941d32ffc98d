package receipt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/Marioshad/foodvault/internal/inventory"
	"github.com/Marioshad/foodvault/internal/scanning"
)

const (
	DefaultMaxUpload = 5 << 20
	DefaultTimeout   = 60 * time.Second
)

var (
	// ErrEmpty is returned for an upload without content
	ErrEmpty = errors.New("no receipt image uploaded")

	// ErrTooLarge is returned for an upload above the size cap
	ErrTooLarge = errors.New("receipt image too large")
)

// IDGenerator generates unique IDs for archived receipts
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// defaultIDGenerator generates IDs using UnixNano timestamp
type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	return fmt.Sprintf("%d", time.Now().UnixNano())
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Options bounds a single extraction
type Options struct {
	MaxUpload int64
	Timeout   time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxUpload <= 0 {
		o.MaxUpload = DefaultMaxUpload
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	return o
}

// Extraction is the upload response: the scanned receipt plus the archive id
type Extraction struct {
	*scanning.ReceiptData
	ReceiptID string `json:"receiptId,omitempty"`
}

// Service runs receipt images through the scanner and optionally archives them
type Service struct {
	scanner     scanning.Scanner
	storage     Storage
	opts        Options
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a new Service. storage may be nil to disable archiving.
func NewService(scanner scanning.Scanner, storage Storage, opts Options) *Service {
	return NewServiceWithDeps(scanner, storage, opts, &defaultIDGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(scanner scanning.Scanner, storage Storage, opts Options, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		scanner:     scanner,
		storage:     storage,
		opts:        opts.withDefaults(),
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

// MaxUpload is the largest accepted image in bytes
func (s *Service) MaxUpload() int64 {
	return s.opts.MaxUpload
}

var (
	unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	spaceRuns   = regexp.MustCompile(`\s+`)
)

// sanitizeFilename cleans up a filename by removing special characters and truncating length
func sanitizeFilename(filename string) string {
	ext := unsafeChars.ReplaceAllString(filepath.Ext(filename), "")
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))

	base = unsafeChars.ReplaceAllString(base, "")
	base = strings.TrimSpace(spaceRuns.ReplaceAllString(base, " "))

	const maxLen = 50
	if len(base) > maxLen {
		base = base[:maxLen]
	}
	if base == "" {
		base = "receipt"
	}
	if ext != "" {
		ext = "." + ext
	}
	return base + ext
}

func ownerPrefix(owner int64) string {
	return fmt.Sprintf("%d-", owner)
}

type scanResult struct {
	data *scanning.ReceiptData
	err  error
}

// Extract scans one uploaded receipt for owner.
//
// The scanner runs on its own goroutine with a context that ignores the
// caller's cancellation and is bounded by the configured timeout. If ctx is
// cancelled first Extract returns ctx.Err() while the scan finishes in the
// background.
func (s *Service) Extract(ctx context.Context, owner int64, filename string, data []byte, contentType string) (*Extraction, error) {
	if len(data) == 0 {
		return nil, ErrEmpty
	}
	if int64(len(data)) > s.opts.MaxUpload {
		return nil, ErrTooLarge
	}

	results := make(chan scanResult, 1)
	go func() {
		scanCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.Timeout)
		defer cancel()

		started := s.timeSource.Now()
		receiptData, err := s.scanner.ScanReceipt(scanCtx, data, contentType)
		if err != nil {
			attrs := []any{
				"filename", filename,
				"content_type", contentType,
				"file_size", len(data),
				"elapsed", s.timeSource.Now().Sub(started),
				"error", err,
			}
			var xerr *scanning.ExtractionError
			if errors.As(err, &xerr) && xerr.Diagnostic != "" {
				attrs = append(attrs, "diagnostic", xerr.Diagnostic)
			}
			slog.Error("Failed to scan receipt", attrs...)
		}
		results <- scanResult{data: receiptData, err: err}
	}()

	var res scanResult
	select {
	case <-ctx.Done():
		slog.Warn("Client abandoned receipt upload", "filename", filename, "error", ctx.Err())
		return nil, ctx.Err()
	case res = <-results:
	}

	if res.err != nil {
		var xerr *scanning.ExtractionError
		if !errors.As(res.err, &xerr) {
			return nil, &scanning.ExtractionError{Err: res.err}
		}
		return nil, res.err
	}

	extraction := &Extraction{ReceiptData: res.data}
	if s.storage != nil {
		key := ownerPrefix(owner) + s.idGenerator.Generate() + "_" + sanitizeFilename(filename)
		if err := s.storage.Save(ctx, key, data, http.DetectContentType(data)); err != nil {
			slog.Warn("Failed to archive receipt", "key", key, "error", err)
		} else {
			extraction.ReceiptID = key
		}
	}
	return extraction, nil
}

// ReceiptFile returns an archived image and its content type.
// Images archived for another owner are reported as not found.
func (s *Service) ReceiptFile(ctx context.Context, owner int64, id string) ([]byte, string, error) {
	if s.storage == nil || !strings.HasPrefix(id, ownerPrefix(owner)) || validateKey(id) != nil {
		return nil, "", fmt.Errorf("receipt %s: %w", id, inventory.ErrNotFound)
	}

	data, err := s.storage.Get(ctx, id)
	if errors.Is(err, ErrFileNotFound) {
		return nil, "", fmt.Errorf("receipt %s: %w", id, inventory.ErrNotFound)
	}
	if err != nil {
		return nil, "", fmt.Errorf("getting receipt file: %w", err)
	}
	return data, http.DetectContentType(data), nil
}

// DeleteReceiptFile removes an archived image. The same ownership rule as
// ReceiptFile applies.
func (s *Service) DeleteReceiptFile(ctx context.Context, owner int64, id string) error {
	if s.storage == nil || !strings.HasPrefix(id, ownerPrefix(owner)) || validateKey(id) != nil {
		return fmt.Errorf("receipt %s: %w", id, inventory.ErrNotFound)
	}

	err := s.storage.Delete(ctx, id)
	if errors.Is(err, ErrFileNotFound) {
		return fmt.Errorf("receipt %s: %w", id, inventory.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("deleting receipt file: %w", err)
	}
	slog.Info("Deleted receipt file", "owner", owner, "key", id)
	return nil
}
