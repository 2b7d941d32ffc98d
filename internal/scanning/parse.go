package scanning

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Strategy selects how a model answer is turned into ReceiptData
type Strategy string

const (
	// Structured expects a JSON object
	Structured Strategy = "structured"
	// FreeText expects STORE:/DATE:/LANGUAGE:/TOTAL:/ITEM: lines
	FreeText Strategy = "free-text"
)

// Parse converts raw model output with the given strategy
func Parse(strategy Strategy, text string) (*ReceiptData, error) {
	switch strategy {
	case Structured:
		return parseStructured(text)
	case FreeText:
		return parseFreeText(text)
	default:
		return nil, fmt.Errorf("unknown strategy %q", strategy)
	}
}

// rawReceipt is the model's answer before normalization
type rawReceipt struct {
	Items       []rawItem `json:"items"`
	Language    *string   `json:"language"`
	TotalAmount float64   `json:"totalAmount"`
	Date        *string   `json:"date"`
	StoreName   *string   `json:"storeName"`
}

type rawItem struct {
	Name       string  `json:"name"`
	Price      float64 `json:"price"`
	Quantity   float64 `json:"quantity"`
	Confidence float64 `json:"confidence"`
}

// parseStructured strips fences and prose around the JSON object and decodes it
func parseStructured(text string) (*ReceiptData, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return nil, fmt.Errorf("no JSON object found in response")
	}
	endIdx := strings.LastIndex(text, "}")
	if endIdx < startIdx {
		return nil, fmt.Errorf("invalid JSON object in response")
	}
	text = text[startIdx : endIdx+1]

	var keys map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &keys); err != nil {
		return nil, fmt.Errorf("unmarshaling json: %w", err)
	}
	if items, ok := keys["items"]; !ok || string(items) == "null" {
		return nil, fmt.Errorf("response has no items array")
	}

	var raw rawReceipt
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, fmt.Errorf("unmarshaling json: %w", err)
	}
	return normalize(raw), nil
}

var (
	storeLine    = regexp.MustCompile(`(?im)^\s*STORE:\s*(.*?)\s*$`)
	dateLine     = regexp.MustCompile(`(?im)^\s*DATE:\s*(.*?)\s*$`)
	languageLine = regexp.MustCompile(`(?im)^\s*LANGUAGE:\s*(.*?)\s*$`)
	totalLine    = regexp.MustCompile(`(?im)^\s*TOTAL:\s*(-?[\d.]+)\s*$`)
	itemPrefix   = regexp.MustCompile(`(?i)^\s*ITEM:`)
	itemLine     = regexp.MustCompile(`(?i)^\s*ITEM:\s*(.+?)\s*\|\s*(-?[\d.]+)\s*\|\s*(-?[\d.]+)\s*\|\s*(-?[\d.]+|nan)\s*$`)
)

// parseFreeText reads the line format requested by freeTextPrompt.
// At least one recognised line is required and every ITEM: line must be
// well formed.
func parseFreeText(text string) (*ReceiptData, error) {
	var (
		raw     rawReceipt
		matched bool
	)

	if m := storeLine.FindStringSubmatch(text); m != nil {
		raw.StoreName = &m[1]
		matched = true
	}
	if m := dateLine.FindStringSubmatch(text); m != nil {
		raw.Date = &m[1]
		matched = true
	}
	if m := languageLine.FindStringSubmatch(text); m != nil {
		raw.Language = &m[1]
		matched = true
	}
	if m := totalLine.FindStringSubmatch(text); m != nil {
		total, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return nil, fmt.Errorf("parsing total %q: %w", m[1], err)
		}
		raw.TotalAmount = total
		matched = true
	}

	raw.Items = make([]rawItem, 0)
	for _, line := range strings.Split(text, "\n") {
		if !itemPrefix.MatchString(line) {
			continue
		}
		m := itemLine.FindStringSubmatch(line)
		if m == nil {
			return nil, fmt.Errorf("malformed item line %q", strings.TrimSpace(line))
		}
		item := rawItem{Name: m[1]}
		var err error
		if item.Quantity, err = strconv.ParseFloat(m[2], 64); err != nil {
			return nil, fmt.Errorf("parsing quantity of %q: %w", m[1], err)
		}
		if item.Price, err = strconv.ParseFloat(m[3], 64); err != nil {
			return nil, fmt.Errorf("parsing price of %q: %w", m[1], err)
		}
		if item.Confidence, err = strconv.ParseFloat(m[4], 64); err != nil {
			return nil, fmt.Errorf("parsing confidence of %q: %w", m[1], err)
		}
		raw.Items = append(raw.Items, item)
		matched = true
	}

	if !matched {
		return nil, fmt.Errorf("no receipt lines found in response")
	}
	return normalize(raw), nil
}

// dateFormats are tried in order when normalizing a receipt date
var dateFormats = []string{
	"2006-01-02",
	time.RFC3339,
	"2006/01/02",
	"01/02/2006",
	"02.01.2006",
}

// normalize applies the same rounding and clamping to every strategy's output
func normalize(raw rawReceipt) *ReceiptData {
	data := &ReceiptData{
		Items:       make([]CandidateItem, 0, len(raw.Items)),
		Language:    "en",
		TotalAmount: roundCents(raw.TotalAmount),
	}

	for _, it := range raw.Items {
		data.Items = append(data.Items, CandidateItem{
			Name:       strings.TrimSpace(it.Name),
			Price:      roundCents(it.Price),
			Quantity:   max(roundCents(it.Quantity), 0),
			Confidence: clamp01(it.Confidence),
		})
	}

	if raw.Language != nil {
		if lang := strings.ToLower(strings.TrimSpace(*raw.Language)); lang != "" {
			data.Language = lang
		}
	}
	if raw.StoreName != nil {
		if name := strings.TrimSpace(*raw.StoreName); name != "" {
			data.StoreName = &name
		}
	}
	if raw.Date != nil {
		data.Date = normalizeDate(*raw.Date)
	}
	return data
}

func normalizeDate(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range dateFormats {
		if d, err := time.Parse(layout, s); err == nil {
			out := d.Format("2006-01-02")
			return &out
		}
	}
	return nil
}

func roundCents(v float64) int {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return int(math.Round(v))
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Min(1, math.Max(0, v))
}
