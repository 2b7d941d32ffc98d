// Package reconcile turns operator-selected receipt candidates into
// persisted food items. Each selection succeeds or fails on its own; there
// is no transaction across the batch.
package reconcile

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Marioshad/foodvault/internal/inventory"
	"github.com/Marioshad/foodvault/internal/scanning"
)

const (
	DefaultUnit          = inventory.UnitPieces
	DefaultShelfLifeDays = 7
)

// ItemCreator persists one food item; *inventory.Service satisfies it
type ItemCreator interface {
	CreateFoodItem(ctx context.Context, owner int64, in inventory.NewFoodItem) (*inventory.FoodItem, error)
}

// Override replaces the defaults for one selected candidate
type Override struct {
	LocationID *int64          `json:"locationId,omitempty"`
	Unit       *inventory.Unit `json:"unit,omitempty"`
	ExpiryDate *inventory.Date `json:"expiryDate,omitempty"`
	Quantity   *int            `json:"quantity,omitempty"`
}

// Request is a commit of selected candidates into one location
type Request struct {
	Items      []scanning.CandidateItem `json:"items"`
	Selected   []int                    `json:"selected"`
	LocationID int64                    `json:"locationId"`
	Date       *string                  `json:"date,omitempty"`
	Overrides  map[int]Override         `json:"overrides,omitempty"`
}

// Failure explains why one selected index was not committed
type Failure struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// Result lists what was created and what was not
type Result struct {
	Created []*inventory.FoodItem `json:"created"`
	Failed  []Failure             `json:"failed"`
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type defaultTimeSource struct{}

func (defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Engine builds food items from candidates
type Engine struct {
	creator       ItemCreator
	defaultUnit   inventory.Unit
	shelfLifeDays int
	timeSource    TimeSource
}

// NewEngine creates an Engine. Zero values fall back to pieces and 7 days.
func NewEngine(creator ItemCreator, defaultUnit inventory.Unit, shelfLifeDays int) *Engine {
	return NewEngineWithDeps(creator, defaultUnit, shelfLifeDays, defaultTimeSource{})
}

// NewEngineWithDeps creates an Engine with a custom clock for testing
func NewEngineWithDeps(creator ItemCreator, defaultUnit inventory.Unit, shelfLifeDays int, timeSrc TimeSource) *Engine {
	if defaultUnit == "" {
		defaultUnit = DefaultUnit
	}
	if shelfLifeDays <= 0 {
		shelfLifeDays = DefaultShelfLifeDays
	}
	return &Engine{
		creator:       creator,
		defaultUnit:   defaultUnit,
		shelfLifeDays: shelfLifeDays,
		timeSource:    timeSrc,
	}
}

// Commit creates one food item per selected index.
//
// Items are purchased at commit time, or on the receipt date when the
// request carries one, and expire the configured number of days later.
// An empty selection, a missing location or an unparseable receipt date
// reject the whole request with a ValidationError. Everything else is
// judged per index and reported in Result.Failed.
func (e *Engine) Commit(ctx context.Context, owner int64, req Request) (*Result, error) {
	if len(req.Selected) == 0 {
		return nil, inventory.NewValidationError("selected", "select at least one item")
	}
	if req.LocationID <= 0 {
		return nil, inventory.NewValidationError("locationId", "is required")
	}

	purchased := e.timeSource.Now()
	base := inventory.DateOf(purchased)
	if req.Date != nil && *req.Date != "" {
		d, err := inventory.ParseDate(*req.Date)
		if err != nil {
			return nil, inventory.NewValidationError("date", err.Error())
		}
		base = d
		purchased = d.Time
	}
	expiry := base.AddDays(e.shelfLifeDays)

	result := &Result{
		Created: make([]*inventory.FoodItem, 0, len(req.Selected)),
		Failed:  make([]Failure, 0),
	}
	seen := make(map[int]bool, len(req.Selected))

	for _, idx := range req.Selected {
		if idx < 0 || idx >= len(req.Items) {
			result.Failed = append(result.Failed, Failure{Index: idx, Reason: "index out of range"})
			continue
		}
		if seen[idx] {
			result.Failed = append(result.Failed, Failure{Index: idx, Reason: "selected more than once"})
			continue
		}
		seen[idx] = true

		in := e.build(req.Items[idx], req.LocationID, expiry, purchased, req.Overrides[idx])
		item, err := e.creator.CreateFoodItem(ctx, owner, in)
		if err != nil {
			result.Failed = append(result.Failed, Failure{Index: idx, Reason: reason(err)})
			continue
		}
		result.Created = append(result.Created, item)
	}

	return result, nil
}

func (e *Engine) build(c scanning.CandidateItem, locationID int64, expiry inventory.Date, purchased time.Time, o Override) inventory.NewFoodItem {
	quantity := c.Quantity
	if quantity <= 0 {
		quantity = 1
	}
	price := c.Price

	in := inventory.NewFoodItem{
		Name:       c.Name,
		Quantity:   quantity,
		Unit:       e.defaultUnit,
		LocationID: locationID,
		ExpiryDate: expiry,
		Price:      &price,
		Purchased:  purchased,
	}

	if o.LocationID != nil {
		in.LocationID = *o.LocationID
	}
	if o.Unit != nil {
		in.Unit = *o.Unit
	}
	if o.ExpiryDate != nil {
		in.ExpiryDate = *o.ExpiryDate
	}
	if o.Quantity != nil {
		in.Quantity = *o.Quantity
	}
	return in
}

// reason flattens a create error into a message for the operator
func reason(err error) string {
	var verr *inventory.ValidationError
	if errors.As(err, &verr) {
		return strings.TrimPrefix(verr.Error(), "validation failed: ")
	}
	var perr *inventory.PersistenceError
	if errors.As(err, &perr) {
		return "could not be saved"
	}
	return err.Error()
}
