// Package analytics derives read-only views over an owner's inventory.
// Every function here is a pure projection; freshness always comes from
// the expiry package.
package analytics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Marioshad/foodvault/internal/expiry"
	"github.com/Marioshad/foodvault/internal/inventory"
)

const topItemsLimit = 5

// ValueAtRisk sums item value in cents by freshness
type ValueAtRisk struct {
	Expired      int `json:"expired"`
	ExpiringSoon int `json:"expiringSoon"`
}

// LocationUsage is the utilization of one location
type LocationUsage struct {
	LocationID int64   `json:"locationId"`
	Name       string  `json:"name"`
	Items      int     `json:"items"`
	ValueCents int     `json:"valueCents"`
	Value      float64 `json:"value"`
}

// ItemValue is one entry of the top-value ranking
type ItemValue struct {
	ID         int64   `json:"id"`
	Name       string  `json:"name"`
	ValueCents int     `json:"valueCents"`
	Value      float64 `json:"value"`
}

// Summary is the analytics page payload
type Summary struct {
	ValueAtRisk     ValueAtRisk     `json:"valueAtRisk"`
	Utilization     []LocationUsage `json:"utilization"`
	TopItems        []ItemValue     `json:"topItems"`
	TotalValueCents int             `json:"totalValueCents"`
	TotalValue      float64         `json:"totalValue"`
}

// Annotated is a food item with its freshness attached
type Annotated struct {
	*inventory.FoodItem
	Tier      expiry.Tier `json:"tier"`
	DaysUntil int         `json:"daysUntil"`
}

// ShoppingList groups items that need replacing
type ShoppingList struct {
	Expired  []Annotated `json:"expired"`
	LowStock []Annotated `json:"lowStock"`
}

func display(cents int) float64 {
	return float64(cents) / 100
}

func annotate(f *inventory.FoodItem, now time.Time) Annotated {
	days := expiry.DaysUntil(f.ExpiryDate.Time, now)
	return Annotated{FoodItem: f, Tier: expiry.TierFor(days), DaysUntil: days}
}

// Risk sums price×quantity of expired items and of items expiring within
// seven days. Items without a price count as zero.
func Risk(items []*inventory.FoodItem, now time.Time) ValueAtRisk {
	var risk ValueAtRisk
	for _, f := range items {
		switch tier := expiry.Classify(f.ExpiryDate.Time, now); {
		case tier == expiry.Expired:
			risk.Expired += f.Value()
		case tier.ExpiringSoon():
			risk.ExpiringSoon += f.Value()
		}
	}
	return risk
}

// Utilization reports item count and value for every location, empty ones included
func Utilization(locations []*inventory.Location, items []*inventory.FoodItem) []LocationUsage {
	usage := make([]LocationUsage, 0, len(locations))
	index := make(map[int64]int, len(locations))
	for i, l := range locations {
		index[l.ID] = i
		usage = append(usage, LocationUsage{LocationID: l.ID, Name: l.Name})
	}
	for _, f := range items {
		i, ok := index[f.LocationID]
		if !ok {
			continue
		}
		usage[i].Items++
		usage[i].ValueCents += f.Value()
	}
	for i := range usage {
		usage[i].Value = display(usage[i].ValueCents)
	}
	return usage
}

// TopItems ranks items by value, highest first. Ties keep collection order
// and zero-value items are left out.
func TopItems(items []*inventory.FoodItem, limit int) []ItemValue {
	ranked := make([]ItemValue, 0, len(items))
	for _, f := range items {
		if v := f.Value(); v > 0 {
			ranked = append(ranked, ItemValue{ID: f.ID, Name: f.Name, ValueCents: v, Value: display(v)})
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].ValueCents > ranked[j].ValueCents })
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

// TotalValue sums the value of every item in cents
func TotalValue(items []*inventory.FoodItem) int {
	total := 0
	for _, f := range items {
		total += f.Value()
	}
	return total
}

// ExpiringSoon returns critical and warning items, soonest first
func ExpiringSoon(items []*inventory.FoodItem, now time.Time) []Annotated {
	soon := make([]Annotated, 0)
	for _, f := range items {
		if a := annotate(f, now); a.Tier.ExpiringSoon() {
			soon = append(soon, a)
		}
	}
	sort.SliceStable(soon, func(i, j int) bool {
		return soon[i].ExpiryDate.Before(soon[j].ExpiryDate.Time)
	})
	return soon
}

// Shopping lists expired items and items with at most one unit left.
// An item can appear in both lists.
func Shopping(items []*inventory.FoodItem, now time.Time) ShoppingList {
	list := ShoppingList{Expired: make([]Annotated, 0), LowStock: make([]Annotated, 0)}
	for _, f := range items {
		a := annotate(f, now)
		if a.Tier == expiry.Expired {
			list.Expired = append(list.Expired, a)
		}
		if f.Quantity <= 1 {
			list.LowStock = append(list.LowStock, a)
		}
	}
	return list
}

// Source is the read side of the inventory used by Service
type Source interface {
	ListLocations(ctx context.Context, owner int64) ([]*inventory.Location, error)
	ListFoodItems(ctx context.Context, owner int64) ([]*inventory.FoodItem, error)
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type defaultTimeSource struct{}

func (defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Service loads an owner's inventory and projects it
type Service struct {
	source     Source
	timeSource TimeSource
}

// NewService creates a new Service using the wall clock
func NewService(source Source) *Service {
	return NewServiceWithDeps(source, defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with a custom time source for testing
func NewServiceWithDeps(source Source, timeSrc TimeSource) *Service {
	return &Service{source: source, timeSource: timeSrc}
}

func (s *Service) items(ctx context.Context, owner int64) ([]*inventory.FoodItem, error) {
	items, err := s.source.ListFoodItems(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("listing food items: %w", err)
	}
	return items, nil
}

// Report builds the analytics payload
func (s *Service) Report(ctx context.Context, owner int64) (*Summary, error) {
	items, err := s.items(ctx, owner)
	if err != nil {
		return nil, err
	}
	locations, err := s.source.ListLocations(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("listing locations: %w", err)
	}

	total := TotalValue(items)
	return &Summary{
		ValueAtRisk:     Risk(items, s.timeSource.Now()),
		Utilization:     Utilization(locations, items),
		TopItems:        TopItems(items, topItemsLimit),
		TotalValueCents: total,
		TotalValue:      display(total),
	}, nil
}

// Dashboard lists items expiring within seven days
func (s *Service) Dashboard(ctx context.Context, owner int64) ([]Annotated, error) {
	items, err := s.items(ctx, owner)
	if err != nil {
		return nil, err
	}
	return ExpiringSoon(items, s.timeSource.Now()), nil
}

// ShoppingList lists expired and low-stock items
func (s *Service) ShoppingList(ctx context.Context, owner int64) (*ShoppingList, error) {
	items, err := s.items(ctx, owner)
	if err != nil {
		return nil, err
	}
	list := Shopping(items, s.timeSource.Now())
	return &list, nil
}
