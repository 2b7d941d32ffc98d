package scanning

import (
	"context"
	"fmt"
)

// CandidateItem is one line item read off a receipt, not yet persisted
type CandidateItem struct {
	Name       string  `json:"name"`
	Price      int     `json:"price"` // cents
	Quantity   int     `json:"quantity"`
	Confidence float64 `json:"confidence"`
}

// ReceiptData contains the normalized extraction result for one receipt
type ReceiptData struct {
	Items       []CandidateItem `json:"items"`
	Language    string          `json:"language"`
	TotalAmount int             `json:"totalAmount"`    // cents
	Date        *string         `json:"date,omitempty"` // YYYY-MM-DD
	StoreName   *string         `json:"storeName,omitempty"`
}

// Scanner defines the interface for receipt scanning operations
type Scanner interface {
	// ScanReceipt reads a receipt image or PDF and extracts its line items.
	// Any failure is reported as an *ExtractionError; no partial result is returned.
	ScanReceipt(ctx context.Context, imageData []byte, contentType string) (*ReceiptData, error)
	// Close closes the scanner and releases resources
	Close() error
}

// ExtractionError is returned when the model call fails or its answer can't be parsed.
// Diagnostic holds the raw model output or upstream response for the server log.
type ExtractionError struct {
	Diagnostic string
	Err        error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extracting receipt: %v", e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

func extractionErr(diagnostic string, format string, args ...any) error {
	return &ExtractionError{Diagnostic: diagnostic, Err: fmt.Errorf(format, args...)}
}
